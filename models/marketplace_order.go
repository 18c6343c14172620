package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Marketplace order statuses that count as a completed sale
const (
	OrderStatusPaid      = "paid"
	OrderStatusConfirmed = "confirmed"
)

// MarketplaceOrder is a sale reported by the marketplace order feed. It is never persisted as-is.
type MarketplaceOrder struct {
	OrderID        string          `json:"order_id"`
	SellerID       string          `json:"seller_id"`
	Status         string          `json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	ItemID         string          `json:"item_id"`
	ItemTitle      string          `json:"item_title"`
	BuyerID        string          `json:"buyer_id"`
	BuyerNickname  string          `json:"buyer_nickname"`
	BuyerFirstName string          `json:"buyer_first_name"`
	BuyerLastName  string          `json:"buyer_last_name"`
	ShippingCity   string          `json:"shipping_city"`
}

// IsPaid reports whether the order represents collected money
func (o MarketplaceOrder) IsPaid() bool {
	switch strings.ToLower(o.Status) {
	case OrderStatusPaid, OrderStatusConfirmed:
		return true
	}
	return false
}

// ConversionData maps the order onto the ClickLog conversion columns
func (o MarketplaceOrder) ConversionData() ConversionData {
	return ConversionData{
		OrderID:        nonEmpty(o.OrderID),
		TotalAmount:    o.TotalAmount,
		ItemID:         nonEmpty(o.ItemID),
		ItemTitle:      nonEmpty(o.ItemTitle),
		BuyerFirstName: nonEmpty(o.BuyerFirstName),
		BuyerLastName:  nonEmpty(o.BuyerLastName),
		BuyerNickname:  nonEmpty(o.BuyerNickname),
		ShippingCity:   nonEmpty(o.ShippingCity),
	}
}

func nonEmpty(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
