package businessflow

import (
	"context"
	"errors"
	"time"

	"github.com/amirphl/orochi-attribution/models"
	"github.com/amirphl/orochi-attribution/repository"
	"github.com/amirphl/orochi-attribution/utils"
	"github.com/sirupsen/logrus"
)

// ClickRecordFlow resolves a tracked link, stamps the first visit and returns the redirect target.
// Public flow, no authentication required.
type ClickRecordFlow interface {
	RecordClick(ctx context.Context, trackedRef string) (string, error)
}

type ClickRecordFlowImpl struct {
	repo repository.ClickLogRepository
	tx   repository.TxRunner
	now  func() time.Time
	log  *logrus.Entry
}

func NewClickRecordFlow(repo repository.ClickLogRepository, tx repository.TxRunner, log *logrus.Entry) ClickRecordFlow {
	return &ClickRecordFlowImpl{repo: repo, tx: tx, now: utils.UTCNow, log: log}
}

func (f *ClickRecordFlowImpl) RecordClick(ctx context.Context, trackedRef string) (string, error) {
	uid := ParseTrackedUID(trackedRef)
	if uid == "" {
		return "", ErrClickLogNotFound
	}
	var (
		row   *models.ClickLog
		first bool
	)
	err := f.tx(ctx, func(txCtx context.Context) error {
		var err error
		row, err = f.repo.ByUID(txCtx, uid)
		if err != nil {
			return NewBusinessError("CLICK_LOG_LOOKUP_FAILED", "Failed to lookup click log", err)
		}
		if row == nil || row.OriginalURL == "" {
			return ErrClickLogNotFound
		}
		first, err = f.repo.MarkClicked(txCtx, uid, f.now())
		if err != nil {
			return NewBusinessError("CLICK_RECORD_FAILED", "Failed to record click", err)
		}
		return nil
	})
	if err != nil {
		var be *BusinessError
		if errors.Is(err, ErrClickLogNotFound) || errors.As(err, &be) {
			return "", err
		}
		return "", NewBusinessError("CLICK_RECORD_FAILED", "Failed to record click", err)
	}
	if first {
		f.log.WithFields(logrus.Fields{
			"click_log_id": row.ID,
			"customer_ref": row.CustomerRef,
		}).Debug("first click recorded")
	}
	return row.OriginalURL, nil
}
