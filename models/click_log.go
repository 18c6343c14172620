package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ClickLog is one bot-issued tracked link and, once converted, the sale it is credited with.
// Conversion columns are either all unset (not converted) or written together by one update.
type ClickLog struct {
	ID            uint    `gorm:"primaryKey" json:"id"`
	UID           string  `gorm:"size:64;not null;uniqueIndex:uk_click_logs_uid" json:"uid"`
	CustomerRef   string  `gorm:"size:128;not null;index:idx_click_logs_customer_ref" json:"customer_ref"`
	ProductName   string  `gorm:"type:text;not null" json:"product_name"`
	ProductItemID *string `gorm:"size:64;index:idx_click_logs_product_item_id" json:"product_item_id,omitempty"`
	OriginalURL   string  `gorm:"type:text;not null" json:"original_url"`
	TrackedURL    string  `gorm:"type:text;not null" json:"tracked_url"`
	CampaignRef   *string `gorm:"size:128;index:idx_click_logs_campaign_ref" json:"campaign_ref,omitempty"`

	CreatedAt time.Time  `gorm:"not null;index:idx_click_logs_created_at" json:"created_at"`
	ClickedAt *time.Time `json:"clicked_at,omitempty"`

	Converted   bool       `gorm:"not null;default:false;index:idx_click_logs_converted" json:"converted"`
	ConvertedAt *time.Time `json:"converted_at,omitempty"`

	OrderID        *string          `gorm:"size:64;uniqueIndex:uk_click_logs_order_id,where:order_id IS NOT NULL" json:"order_id,omitempty"`
	TotalAmount    *decimal.Decimal `gorm:"type:numeric(14,2)" json:"total_amount,omitempty"`
	ItemID         *string          `gorm:"size:64" json:"item_id,omitempty"`
	ItemTitle      *string          `gorm:"type:text" json:"item_title,omitempty"`
	BuyerFirstName *string          `gorm:"size:128" json:"buyer_first_name,omitempty"`
	BuyerLastName  *string          `gorm:"size:128" json:"buyer_last_name,omitempty"`
	BuyerNickname  *string          `gorm:"size:128;index:idx_click_logs_buyer_nickname" json:"buyer_nickname,omitempty"`
	ShippingCity   *string          `gorm:"size:128" json:"shipping_city,omitempty"`
	ManualNotes    *string          `gorm:"type:text" json:"manual_notes,omitempty"`

	CorrelationMethod     *CorrelationMethod `gorm:"size:32" json:"correlation_method,omitempty"`
	CorrelationConfidence *Confidence        `gorm:"size:16" json:"correlation_confidence,omitempty"`
	IsOrphan              bool               `gorm:"not null;default:false" json:"is_orphan"`
}

// TableName returns the table name for ClickLog
func (ClickLog) TableName() string { return "click_logs" }

// ConversionData is the sale payload attached to a converted ClickLog
type ConversionData struct {
	OrderID        *string
	TotalAmount    decimal.Decimal
	ItemID         *string
	ItemTitle      *string
	BuyerFirstName *string
	BuyerLastName  *string
	BuyerNickname  *string
	ShippingCity   *string
	ManualNotes    *string
}

// Attribution is everything a single conversion write sets
type Attribution struct {
	Data        ConversionData
	Method      CorrelationMethod
	ConvertedAt time.Time
}

// ConversionData returns nil unless the log is converted
func (c *ClickLog) ConversionData() *ConversionData {
	if !c.Converted {
		return nil
	}
	data := &ConversionData{
		OrderID:        c.OrderID,
		ItemID:         c.ItemID,
		ItemTitle:      c.ItemTitle,
		BuyerFirstName: c.BuyerFirstName,
		BuyerLastName:  c.BuyerLastName,
		BuyerNickname:  c.BuyerNickname,
		ShippingCity:   c.ShippingCity,
		ManualNotes:    c.ManualNotes,
	}
	if c.TotalAmount != nil {
		data.TotalAmount = *c.TotalAmount
	}
	return data
}

// ApplyAttribution sets every conversion column from a. Confidence comes from the method.
func (c *ClickLog) ApplyAttribution(a Attribution) {
	method := a.Method
	confidence := method.Confidence()
	convertedAt := a.ConvertedAt.UTC()
	amount := a.Data.TotalAmount

	c.Converted = true
	c.ConvertedAt = &convertedAt
	c.OrderID = a.Data.OrderID
	c.TotalAmount = &amount
	c.ItemID = a.Data.ItemID
	c.ItemTitle = a.Data.ItemTitle
	c.BuyerFirstName = a.Data.BuyerFirstName
	c.BuyerLastName = a.Data.BuyerLastName
	c.BuyerNickname = a.Data.BuyerNickname
	c.ShippingCity = a.Data.ShippingCity
	c.ManualNotes = a.Data.ManualNotes
	c.CorrelationMethod = &method
	c.CorrelationConfidence = &confidence
}

// IsClicked reports whether the tracked link was ever visited
func (c *ClickLog) IsClicked() bool { return c.ClickedAt != nil }

// Revenue returns the converted amount or zero
func (c *ClickLog) Revenue() decimal.Decimal {
	if !c.Converted || c.TotalAmount == nil {
		return decimal.Zero
	}
	return *c.TotalAmount
}

// ClickLogFilter provides filter fields for repository queries
type ClickLogFilter struct {
	ID            *uint
	UID           *string
	CustomerRef   *string
	ProductItemID *string
	CampaignRef   *string
	OrderID       *string
	Converted     *bool
	IsOrphan      *bool
	Clicked       *bool
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}
