package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// CorrelateConversionsRequest triggers a correlation run; out-of-range values are clamped
type CorrelateConversionsRequest struct {
	SellerID        string `json:"sellerId" validate:"required,max=64"`
	TimeWindowHours int    `json:"timeWindowHours"`
	OrderLimit      int    `json:"orderLimit"`
	DryRun          bool   `json:"dryRun"`
}

type CorrelationMatch struct {
	OrderID        string          `json:"orderId"`
	ClickLogID     *uint           `json:"clickLogId,omitempty"`
	CustomerRef    string          `json:"customerRef,omitempty"`
	ProductName    string          `json:"productName,omitempty"`
	Method         string          `json:"method"`
	Confidence     string          `json:"confidence"`
	Score          float64         `json:"score,omitempty"`
	TotalAmount    decimal.Decimal `json:"totalAmount"`
	ItemID         string          `json:"itemId,omitempty"`
	ItemTitle      string          `json:"itemTitle,omitempty"`
	BuyerNickname  string          `json:"buyerNickname,omitempty"`
	ShippingCity   string          `json:"shippingCity,omitempty"`
	OrderCreatedAt time.Time       `json:"orderCreatedAt"`
	ClickCreatedAt *time.Time      `json:"clickCreatedAt,omitempty"`
}

type CorrelateConversionsResponse struct {
	RunID            *string            `json:"runId,omitempty"`
	SellerID         string             `json:"sellerId"`
	DryRun           bool               `json:"dryRun"`
	TimeWindowHours  int                `json:"timeWindowHours"`
	OrderLimit       int                `json:"orderLimit"`
	OrdersProcessed  int                `json:"ordersProcessed"`
	OrdersSkipped    int                `json:"ordersSkipped"`
	OrdersWithClicks int                `json:"ordersWithClicks"`
	ClicksCorrelated int                `json:"clicksCorrelated"`
	OrphansRecorded  int                `json:"orphansRecorded"`
	OrdersUnmatched  int                `json:"ordersUnmatched"`
	Correlations     []CorrelationMatch `json:"correlations"`
}

type CorrelationRunDTO struct {
	UUID             string         `json:"uuid"`
	SellerID         string         `json:"sellerId"`
	TimeWindowHours  int            `json:"timeWindowHours"`
	OrderLimit       int            `json:"orderLimit"`
	OrdersProcessed  int            `json:"ordersProcessed"`
	OrdersWithClicks int            `json:"ordersWithClicks"`
	ClicksCorrelated int            `json:"clicksCorrelated"`
	OrphansRecorded  int            `json:"orphansRecorded"`
	Status           string         `json:"status"`
	Error            *string        `json:"error,omitempty"`
	Summary          map[string]any `json:"summary,omitempty"`
	StartedAt        time.Time      `json:"startedAt"`
	FinishedAt       *time.Time     `json:"finishedAt,omitempty"`
}

type ListCorrelationRunsResponse struct {
	Runs []CorrelationRunDTO `json:"runs"`
}

// StatsRangeRequest is the shared query for dashboard rollups
type StatsRangeRequest struct {
	DateFrom       string `query:"dateFrom"`
	DateTo         string `query:"dateTo"`
	ExcludeOrphans bool   `query:"excludeOrphans"`
	Limit          int    `query:"limit" validate:"omitempty,gte=1,lte=100"`
}

type ConfidenceBreakdown struct {
	High   int `json:"high"`
	Medium int `json:"medium"`
	Low    int `json:"low"`
}

type CustomerSpend struct {
	CustomerRef string          `json:"customerRef"`
	Conversions int             `json:"conversions"`
	Revenue     decimal.Decimal `json:"revenue"`
}

type ConversionStats struct {
	DateFrom            time.Time           `json:"dateFrom"`
	DateTo              time.Time           `json:"dateTo"`
	ExcludeOrphans      bool                `json:"excludeOrphans"`
	TotalLinks          int                 `json:"totalLinks"`
	ClickedLinks        int                 `json:"clickedLinks"`
	Conversions         int                 `json:"conversions"`
	OrphanConversions   int                 `json:"orphanConversions"`
	TotalRevenue        decimal.Decimal     `json:"totalRevenue"`
	ClickRate           float64             `json:"clickRate"`
	ConversionRate      float64             `json:"conversionRate"`
	RevenuePerClick     decimal.Decimal     `json:"revenuePerClick"`
	ConfidenceBreakdown ConfidenceBreakdown `json:"confidenceBreakdown"`
	MethodBreakdown     map[string]int      `json:"methodBreakdown"`
	TopCustomers        []CustomerSpend     `json:"topCustomers"`
}

type ConversionStatsResponse struct {
	Stats ConversionStats `json:"stats"`
}

type RecentConversionsResponse struct {
	ClickLogs []ClickLogDTO `json:"clickLogs"`
}

type TopProduct struct {
	ProductName string          `json:"productName"`
	ItemID      *string         `json:"itemId,omitempty"`
	Conversions int             `json:"conversions"`
	Revenue     decimal.Decimal `json:"revenue"`
}

type TopProductsResponse struct {
	Products []TopProduct `json:"products"`
}

type TopRegion struct {
	City        string          `json:"city"`
	Conversions int             `json:"conversions"`
	Revenue     decimal.Decimal `json:"revenue"`
}

type TopRegionsResponse struct {
	Regions []TopRegion `json:"regions"`
}

// ConversionEvent is published after an attribution is committed
type ConversionEvent struct {
	EventID     string          `json:"eventId"`
	ClickLogID  uint            `json:"clickLogId"`
	CustomerRef string          `json:"customerRef"`
	OrderID     string          `json:"orderId,omitempty"`
	Method      string          `json:"method"`
	Confidence  string          `json:"confidence"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	IsOrphan    bool            `json:"isOrphan"`
	ConvertedAt time.Time       `json:"convertedAt"`
}
