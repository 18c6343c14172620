package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Correlation run statuses
const (
	CorrelationRunStatusCompleted = "completed"
	CorrelationRunStatusFailed    = "failed"
)

// CorrelationRun records one non-dry correlation execution
type CorrelationRun struct {
	ID               uint              `gorm:"primaryKey" json:"id"`
	UUID             uuid.UUID         `gorm:"type:uuid;not null;uniqueIndex:uk_correlation_runs_uuid" json:"uuid"`
	SellerID         string            `gorm:"size:64;not null;index:idx_correlation_runs_seller_id" json:"seller_id"`
	TimeWindowHours  int               `gorm:"not null" json:"time_window_hours"`
	OrderLimit       int               `gorm:"not null" json:"order_limit"`
	OrdersProcessed  int               `gorm:"not null;default:0" json:"orders_processed"`
	OrdersWithClicks int               `gorm:"not null;default:0" json:"orders_with_clicks"`
	ClicksCorrelated int               `gorm:"not null;default:0" json:"clicks_correlated"`
	OrphansRecorded  int               `gorm:"not null;default:0" json:"orphans_recorded"`
	Status           string            `gorm:"size:16;not null" json:"status"`
	Error            *string           `gorm:"type:text" json:"error,omitempty"`
	Summary          datatypes.JSONMap `gorm:"type:jsonb" json:"summary"`
	StartedAt        time.Time         `gorm:"not null;index:idx_correlation_runs_started_at" json:"started_at"`
	FinishedAt       *time.Time        `json:"finished_at,omitempty"`
}

// TableName returns the table name for CorrelationRun
func (CorrelationRun) TableName() string { return "correlation_runs" }

// CorrelationRunFilter provides filter fields for repository queries
type CorrelationRunFilter struct {
	SellerID      *string
	Status        *string
	StartedAfter  *time.Time
	StartedBefore *time.Time
}
