package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/amirphl/orochi-attribution/models"
	"gorm.io/gorm"
)

// ClickLogRepositoryImpl implements ClickLogRepository
type ClickLogRepositoryImpl struct {
	*BaseRepository[models.ClickLog, models.ClickLogFilter]
}

func NewClickLogRepository(db *gorm.DB) ClickLogRepository {
	return &ClickLogRepositoryImpl{BaseRepository: NewBaseRepository[models.ClickLog, models.ClickLogFilter](db)}
}

func (r *ClickLogRepositoryImpl) ByUID(ctx context.Context, uid string) (*models.ClickLog, error) {
	db := r.getDB(ctx)
	var row models.ClickLog
	if err := db.Where("uid = ?", uid).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *ClickLogRepositoryImpl) applyFilter(db *gorm.DB, f models.ClickLogFilter) *gorm.DB {
	if f.ID != nil {
		db = db.Where("id = ?", *f.ID)
	}
	if f.UID != nil {
		db = db.Where("uid = ?", *f.UID)
	}
	if f.CustomerRef != nil {
		db = db.Where("customer_ref = ?", *f.CustomerRef)
	}
	if f.ProductItemID != nil {
		db = db.Where("product_item_id = ?", *f.ProductItemID)
	}
	if f.CampaignRef != nil {
		db = db.Where("campaign_ref = ?", *f.CampaignRef)
	}
	if f.OrderID != nil {
		db = db.Where("order_id = ?", *f.OrderID)
	}
	if f.Converted != nil {
		db = db.Where("converted = ?", *f.Converted)
	}
	if f.IsOrphan != nil {
		db = db.Where("is_orphan = ?", *f.IsOrphan)
	}
	if f.Clicked != nil {
		if *f.Clicked {
			db = db.Where("clicked_at IS NOT NULL")
		} else {
			db = db.Where("clicked_at IS NULL")
		}
	}
	if f.CreatedAfter != nil {
		db = db.Where("created_at >= ?", *f.CreatedAfter)
	}
	if f.CreatedBefore != nil {
		db = db.Where("created_at < ?", *f.CreatedBefore)
	}
	return db
}

func (r *ClickLogRepositoryImpl) ByFilter(ctx context.Context, filter models.ClickLogFilter, orderBy string, limit, offset int) ([]*models.ClickLog, error) {
	db := r.getDB(ctx)
	query := applyPaging(r.applyFilter(db.Model(&models.ClickLog{}), filter), orderBy, limit, offset)
	var rows []*models.ClickLog
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *ClickLogRepositoryImpl) MarkClicked(ctx context.Context, uid string, at time.Time) (bool, error) {
	db := r.getDB(ctx)
	res := db.Model(&models.ClickLog{}).
		Where("uid = ? AND clicked_at IS NULL", uid).
		Update("clicked_at", gorm.Expr("GREATEST(?::timestamptz, created_at)", at.UTC()))
	if res.Error != nil {
		return false, fmt.Errorf("failed to mark click log %s clicked: %w", uid, res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *ClickLogRepositoryImpl) Attribute(ctx context.Context, id uint, attribution models.Attribution) error {
	db := r.getDB(ctx)

	var row models.ClickLog
	row.ApplyAttribution(attribution)

	res := db.Model(&models.ClickLog{}).
		Where("id = ? AND converted = ?", id, false).
		Updates(map[string]any{
			"converted":              true,
			"converted_at":           row.ConvertedAt,
			"order_id":               row.OrderID,
			"total_amount":           row.TotalAmount,
			"item_id":                row.ItemID,
			"item_title":             row.ItemTitle,
			"buyer_first_name":       row.BuyerFirstName,
			"buyer_last_name":        row.BuyerLastName,
			"buyer_nickname":         row.BuyerNickname,
			"shipping_city":          row.ShippingCity,
			"manual_notes":           row.ManualNotes,
			"correlation_method":     row.CorrelationMethod,
			"correlation_confidence": row.CorrelationConfidence,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to attribute click log %d: %w", id, translateError(res.Error))
	}
	if res.RowsAffected == 0 {
		return ErrAlreadyConverted
	}
	return nil
}

func (r *ClickLogRepositoryImpl) AttributedOrderIDs(ctx context.Context, orderIDs []string) (map[string]bool, error) {
	out := make(map[string]bool, len(orderIDs))
	if len(orderIDs) == 0 {
		return out, nil
	}
	db := r.getDB(ctx)
	var ids []string
	if err := db.Model(&models.ClickLog{}).
		Where("order_id IN ?", orderIDs).
		Pluck("order_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to load attributed order ids: %w", err)
	}
	for _, id := range ids {
		out[id] = true
	}
	return out, nil
}

// ListUnconvertedBetween returns unconverted logs with created_at in [from, to]
func (r *ClickLogRepositoryImpl) ListUnconvertedBetween(ctx context.Context, from, to time.Time) ([]*models.ClickLog, error) {
	db := r.getDB(ctx)
	var rows []*models.ClickLog
	if err := db.Where("converted = ? AND created_at >= ? AND created_at <= ?", false, from.UTC(), to.UTC()).
		Order("created_at DESC, id DESC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list unconverted click logs: %w", err)
	}
	return rows, nil
}

// ListCreatedBetween returns logs with created_at in [from, to)
func (r *ClickLogRepositoryImpl) ListCreatedBetween(ctx context.Context, from, to time.Time) ([]*models.ClickLog, error) {
	return r.ByFilter(ctx, models.ClickLogFilter{CreatedAfter: &from, CreatedBefore: &to}, "created_at ASC, id ASC", 0, 0)
}

// ListConvertedBetween returns converted logs with created_at in [from, to)
func (r *ClickLogRepositoryImpl) ListConvertedBetween(ctx context.Context, from, to time.Time) ([]*models.ClickLog, error) {
	converted := true
	return r.ByFilter(ctx, models.ClickLogFilter{Converted: &converted, CreatedAfter: &from, CreatedBefore: &to}, "converted_at DESC, id DESC", 0, 0)
}

func (r *ClickLogRepositoryImpl) ListActiveBetween(ctx context.Context, from, to time.Time) ([]*models.ClickLog, error) {
	db := r.getDB(ctx)
	from, to = from.UTC(), to.UTC()
	var rows []*models.ClickLog
	if err := db.Where("(created_at >= ? AND created_at < ?) OR (clicked_at >= ? AND clicked_at < ?) OR (converted_at >= ? AND converted_at < ?)",
		from, to, from, to, from, to).
		Order("created_at ASC, id ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list active click logs: %w", err)
	}
	return rows, nil
}

func (r *ClickLogRepositoryImpl) ListRecentConversions(ctx context.Context, limit int) ([]*models.ClickLog, error) {
	converted := true
	return r.ByFilter(ctx, models.ClickLogFilter{Converted: &converted}, "converted_at DESC, id DESC", limit, 0)
}

func (r *ClickLogRepositoryImpl) CustomerRefsByBuyer(ctx context.Context, nicknames []string) (map[string]string, error) {
	out := make(map[string]string, len(nicknames))
	if len(nicknames) == 0 {
		return out, nil
	}
	db := r.getDB(ctx)
	var rows []struct {
		BuyerNickname string
		CustomerRef   string
	}
	if err := db.Model(&models.ClickLog{}).
		Select("DISTINCT ON (buyer_nickname) buyer_nickname, customer_ref").
		Where("converted = ? AND is_orphan = ? AND buyer_nickname IN ?", true, false, nicknames).
		Order("buyer_nickname, converted_at DESC").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to resolve buyers: %w", err)
	}
	for _, row := range rows {
		out[row.BuyerNickname] = row.CustomerRef
	}
	return out, nil
}

func (r *ClickLogRepositoryImpl) ShippingCitiesByCustomer(ctx context.Context, customerRefs []string) (map[string][]string, error) {
	out := make(map[string][]string, len(customerRefs))
	if len(customerRefs) == 0 {
		return out, nil
	}
	db := r.getDB(ctx)
	var rows []struct {
		CustomerRef  string
		ShippingCity string
	}
	if err := db.Model(&models.ClickLog{}).
		Distinct("customer_ref", "shipping_city").
		Where("converted = ? AND is_orphan = ? AND shipping_city IS NOT NULL AND customer_ref IN ?", true, false, customerRefs).
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load shipping cities: %w", err)
	}
	for _, row := range rows {
		out[row.CustomerRef] = append(out[row.CustomerRef], row.ShippingCity)
	}
	return out, nil
}
