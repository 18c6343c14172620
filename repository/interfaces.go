// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"time"

	"github.com/amirphl/orochi-attribution/models"
)

// RepositoryContext key for transaction in context
type contextKey string

const TxContextKey contextKey = "tx"

type Repository[T any, F any] interface {
	ByID(ctx context.Context, id uint) (*T, error)
	ByFilter(ctx context.Context, filter F, orderBy string, limit, offset int) ([]*T, error)
	Save(ctx context.Context, entity *T) error
}

// ClickLogRepository defines operations for the click ledger
type ClickLogRepository interface {
	Repository[models.ClickLog, models.ClickLogFilter]
	ByUID(ctx context.Context, uid string) (*models.ClickLog, error)
	// MarkClicked sets clicked_at only when it is still null and reports whether this call set it
	MarkClicked(ctx context.Context, uid string, at time.Time) (bool, error)
	// Attribute converts an unconverted row. ErrAlreadyConverted when the row was converted first,
	// ErrDuplicateKey when the order id already funds another row.
	Attribute(ctx context.Context, id uint, attribution models.Attribution) error
	AttributedOrderIDs(ctx context.Context, orderIDs []string) (map[string]bool, error)
	ListUnconvertedBetween(ctx context.Context, from, to time.Time) ([]*models.ClickLog, error)
	ListCreatedBetween(ctx context.Context, from, to time.Time) ([]*models.ClickLog, error)
	ListRecentConversions(ctx context.Context, limit int) ([]*models.ClickLog, error)
	ListConvertedBetween(ctx context.Context, from, to time.Time) ([]*models.ClickLog, error)
	// ListActiveBetween returns logs created, clicked or converted in [from, to)
	ListActiveBetween(ctx context.Context, from, to time.Time) ([]*models.ClickLog, error)
	// CustomerRefsByBuyer maps buyer nicknames to the customer of their latest non-orphan conversion
	CustomerRefsByBuyer(ctx context.Context, nicknames []string) (map[string]string, error)
	// ShippingCitiesByCustomer lists the cities each customer has had non-orphan orders shipped to
	ShippingCitiesByCustomer(ctx context.Context, customerRefs []string) (map[string][]string, error)
}

// CorrelationRunRepository defines operations for correlation run history
type CorrelationRunRepository interface {
	Repository[models.CorrelationRun, models.CorrelationRunFilter]
	Update(ctx context.Context, run *models.CorrelationRun) error
	ListRecent(ctx context.Context, sellerID string, limit int) ([]*models.CorrelationRun, error)
}
