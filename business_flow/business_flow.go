// Package businessflow contains the business logic for the application.
package businessflow

import (
	"context"
	"time"

	"github.com/amirphl/orochi-attribution/app/dto"
	"github.com/amirphl/orochi-attribution/models"
	"github.com/amirphl/orochi-attribution/utils"
)

const RequestIDKey = "X-Request-ID"

// MarketplaceOrderSource fetches the seller's most recent orders, newest first
type MarketplaceOrderSource interface {
	RecentOrders(ctx context.Context, sellerID string, limit int) ([]models.MarketplaceOrder, error)
}

// ConversionEventPublisher announces committed attributions to downstream consumers
type ConversionEventPublisher interface {
	PublishConversion(ctx context.Context, event dto.ConversionEvent) error
}

type noopPublisher struct{}

func (noopPublisher) PublishConversion(context.Context, dto.ConversionEvent) error { return nil }

// requestIDFrom reads the request id set by the handlers, if any
func requestIDFrom(ctx context.Context) string {
	if v, ok := ctx.Value(utils.RequestIDKey).(string); ok {
		return v
	}
	return ""
}

// ToClickLogDTO converts a click log model to its API representation
func ToClickLogDTO(row models.ClickLog) dto.ClickLogDTO {
	out := dto.ClickLogDTO{
		ID:            row.ID,
		UID:           row.UID,
		CustomerRef:   row.CustomerRef,
		ProductName:   row.ProductName,
		ProductItemID: row.ProductItemID,
		OriginalURL:   row.OriginalURL,
		TrackedURL:    row.TrackedURL,
		CampaignRef:   row.CampaignRef,
		CreatedAt:     row.CreatedAt.UTC(),
		ClickedAt:     utcPtr(row.ClickedAt),
		Converted:     row.Converted,
		ConvertedAt:   utcPtr(row.ConvertedAt),
		IsOrphan:      row.IsOrphan,
		TotalAmount:   row.TotalAmount,
	}
	if row.CorrelationMethod != nil {
		out.CorrelationMethod = utils.ToPtr(row.CorrelationMethod.String())
	}
	if row.CorrelationConfidence != nil {
		out.CorrelationConfidence = utils.ToPtr(string(*row.CorrelationConfidence))
	}
	if data := row.ConversionData(); data != nil {
		out.ConversionData = &dto.ConversionDTO{
			OrderID:        data.OrderID,
			TotalAmount:    data.TotalAmount,
			ItemID:         data.ItemID,
			ItemTitle:      data.ItemTitle,
			BuyerFirstName: data.BuyerFirstName,
			BuyerLastName:  data.BuyerLastName,
			BuyerNickname:  data.BuyerNickname,
			ShippingCity:   data.ShippingCity,
			ManualNotes:    data.ManualNotes,
		}
	}
	return out
}

func ToClickLogDTOs(rows []*models.ClickLog) []dto.ClickLogDTO {
	out := make([]dto.ClickLogDTO, 0, len(rows))
	for _, row := range rows {
		if row == nil {
			continue
		}
		out = append(out, ToClickLogDTO(*row))
	}
	return out
}

func ToCorrelationRunDTO(run models.CorrelationRun) dto.CorrelationRunDTO {
	return dto.CorrelationRunDTO{
		UUID:             run.UUID.String(),
		SellerID:         run.SellerID,
		TimeWindowHours:  run.TimeWindowHours,
		OrderLimit:       run.OrderLimit,
		OrdersProcessed:  run.OrdersProcessed,
		OrdersWithClicks: run.OrdersWithClicks,
		ClicksCorrelated: run.ClicksCorrelated,
		OrphansRecorded:  run.OrphansRecorded,
		Status:           run.Status,
		Error:            run.Error,
		Summary:          run.Summary,
		StartedAt:        run.StartedAt.UTC(),
		FinishedAt:       utcPtr(run.FinishedAt),
	}
}

func toConversionEvent(row models.ClickLog) dto.ConversionEvent {
	event := dto.ConversionEvent{
		EventID:     row.UID,
		ClickLogID:  row.ID,
		CustomerRef: row.CustomerRef,
		OrderID:     utils.Deref(row.OrderID),
		TotalAmount: row.Revenue(),
		IsOrphan:    row.IsOrphan,
	}
	if row.OrderID != nil {
		event.EventID = *row.OrderID
	}
	if row.CorrelationMethod != nil {
		event.Method = row.CorrelationMethod.String()
	}
	if row.CorrelationConfidence != nil {
		event.Confidence = string(*row.CorrelationConfidence)
	}
	if row.ConvertedAt != nil {
		event.ConvertedAt = row.ConvertedAt.UTC()
	}
	return event
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
