package repository

import "errors"

var (
	// ErrDuplicateKey wraps unique constraint violations
	ErrDuplicateKey = errors.New("duplicate key")
	// ErrAlreadyConverted is returned when a conditional conversion update matched no row
	ErrAlreadyConverted = errors.New("click log already converted")
)
