package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// GenerateClickLogRequest issues a tracked link for a customer/product pair
type GenerateClickLogRequest struct {
	CustomerRef string  `json:"customerRef" validate:"required,max=128"`
	ProductRef  string  `json:"productRef" validate:"required,max=512"`
	ItemID      *string `json:"itemId,omitempty" validate:"omitempty,max=64"`
	OriginalURL string  `json:"originalUrl" validate:"required,max=2048"`
	CampaignRef *string `json:"campaignRef,omitempty" validate:"omitempty,max=128"`
}

type GenerateClickLogResponse struct {
	ClickLog ClickLogDTO `json:"clickLog"`
}

// RegisterSaleRequest records a sale a human agent confirmed outside the marketplace feed
type RegisterSaleRequest struct {
	CustomerRef string          `json:"-"`
	ProductName string          `json:"productName" validate:"required,max=512"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	Notes       *string         `json:"notes,omitempty" validate:"omitempty,max=2000"`
}

type RegisterSaleResponse struct {
	ClickLog ClickLogDTO `json:"clickLog"`
}

// ClickLogDTO is the public shape of a ledger row
type ClickLogDTO struct {
	ID                    uint             `json:"id"`
	UID                   string           `json:"uid"`
	CustomerRef           string           `json:"customerRef"`
	ProductName           string           `json:"productName"`
	ProductItemID         *string          `json:"productItemId,omitempty"`
	OriginalURL           string           `json:"originalUrl,omitempty"`
	TrackedURL            string           `json:"trackedUrl,omitempty"`
	CampaignRef           *string          `json:"campaignRef,omitempty"`
	CreatedAt             time.Time        `json:"createdAt"`
	ClickedAt             *time.Time       `json:"clickedAt,omitempty"`
	Converted             bool             `json:"converted"`
	ConvertedAt           *time.Time       `json:"convertedAt,omitempty"`
	ConversionData        *ConversionDTO   `json:"conversionData,omitempty"`
	CorrelationMethod     *string          `json:"correlationMethod,omitempty"`
	CorrelationConfidence *string          `json:"correlationConfidence,omitempty"`
	IsOrphan              bool             `json:"isOrphan"`
	TotalAmount           *decimal.Decimal `json:"-"`
}

type ConversionDTO struct {
	OrderID        *string         `json:"orderId,omitempty"`
	TotalAmount    decimal.Decimal `json:"totalAmount"`
	ItemID         *string         `json:"itemId,omitempty"`
	ItemTitle      *string         `json:"itemTitle,omitempty"`
	BuyerFirstName *string         `json:"buyerFirstName,omitempty"`
	BuyerLastName  *string         `json:"buyerLastName,omitempty"`
	BuyerNickname  *string         `json:"buyerNickname,omitempty"`
	ShippingCity   *string         `json:"shippingCity,omitempty"`
	ManualNotes    *string         `json:"manualNotes,omitempty"`
}

type DailySeriesRequest struct {
	StartDate string `query:"startDate"`
	EndDate   string `query:"endDate"`
}

type DailySeriesPoint struct {
	Date        string `json:"date"`
	DateLabel   string `json:"dateLabel"`
	Links       int    `json:"links"`
	Clicks      int    `json:"clicks"`
	Conversions int    `json:"conversions"`
}

type DailySeriesResponse struct {
	ChartData []DailySeriesPoint `json:"chartData"`
}
