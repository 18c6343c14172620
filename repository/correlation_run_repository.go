package repository

import (
	"context"
	"fmt"

	"github.com/amirphl/orochi-attribution/models"
	"gorm.io/gorm"
)

// CorrelationRunRepositoryImpl implements CorrelationRunRepository
type CorrelationRunRepositoryImpl struct {
	*BaseRepository[models.CorrelationRun, models.CorrelationRunFilter]
}

func NewCorrelationRunRepository(db *gorm.DB) CorrelationRunRepository {
	return &CorrelationRunRepositoryImpl{BaseRepository: NewBaseRepository[models.CorrelationRun, models.CorrelationRunFilter](db)}
}

func (r *CorrelationRunRepositoryImpl) applyFilter(db *gorm.DB, f models.CorrelationRunFilter) *gorm.DB {
	if f.SellerID != nil {
		db = db.Where("seller_id = ?", *f.SellerID)
	}
	if f.Status != nil {
		db = db.Where("status = ?", *f.Status)
	}
	if f.StartedAfter != nil {
		db = db.Where("started_at >= ?", *f.StartedAfter)
	}
	if f.StartedBefore != nil {
		db = db.Where("started_at < ?", *f.StartedBefore)
	}
	return db
}

func (r *CorrelationRunRepositoryImpl) ByFilter(ctx context.Context, filter models.CorrelationRunFilter, orderBy string, limit, offset int) ([]*models.CorrelationRun, error) {
	db := r.getDB(ctx)
	query := applyPaging(r.applyFilter(db.Model(&models.CorrelationRun{}), filter), orderBy, limit, offset)
	var rows []*models.CorrelationRun
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *CorrelationRunRepositoryImpl) Update(ctx context.Context, run *models.CorrelationRun) error {
	db := r.getDB(ctx)
	if err := db.Save(run).Error; err != nil {
		return fmt.Errorf("failed to update correlation run %s: %w", run.UUID, err)
	}
	return nil
}

func (r *CorrelationRunRepositoryImpl) ListRecent(ctx context.Context, sellerID string, limit int) ([]*models.CorrelationRun, error) {
	filter := models.CorrelationRunFilter{}
	if sellerID != "" {
		filter.SellerID = &sellerID
	}
	return r.ByFilter(ctx, filter, "started_at DESC, id DESC", limit, 0)
}
