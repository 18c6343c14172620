package businessflow

import (
	"context"
	"strings"
	"time"

	"github.com/amirphl/orochi-attribution/app/dto"
	"github.com/amirphl/orochi-attribution/models"
	"github.com/amirphl/orochi-attribution/repository"
	"github.com/amirphl/orochi-attribution/utils"
	"github.com/sirupsen/logrus"
)

// ManualSaleFlow lets an agent record a sale they confirmed themselves, bypassing correlation
type ManualSaleFlow interface {
	RegisterManualSale(ctx context.Context, req *dto.RegisterSaleRequest) (*dto.RegisterSaleResponse, error)
}

type ManualSaleFlowImpl struct {
	repo      repository.ClickLogRepository
	publisher ConversionEventPublisher
	newUID    func() string
	now       func() time.Time
	log       *logrus.Entry
}

func NewManualSaleFlow(repo repository.ClickLogRepository, publisher ConversionEventPublisher, newUID func() string, log *logrus.Entry) ManualSaleFlow {
	if publisher == nil {
		publisher = noopPublisher{}
	}
	return &ManualSaleFlowImpl{
		repo:      repo,
		publisher: publisher,
		newUID:    newUID,
		now:       utils.UTCNow,
		log:       log,
	}
}

func (f *ManualSaleFlowImpl) RegisterManualSale(ctx context.Context, req *dto.RegisterSaleRequest) (*dto.RegisterSaleResponse, error) {
	if req == nil || strings.TrimSpace(req.CustomerRef) == "" {
		return nil, newValidationError(ErrCustomerRefRequired)
	}
	if strings.TrimSpace(req.ProductName) == "" {
		return nil, newValidationError(ErrProductNameRequired)
	}
	amount := req.TotalAmount.Round(2)
	if !amount.IsPositive() {
		return nil, newValidationError(ErrTotalAmountNotPositive)
	}

	now := f.now().UTC()
	var notes *string
	if req.Notes != nil && strings.TrimSpace(*req.Notes) != "" {
		notes = utils.ToPtr(strings.TrimSpace(*req.Notes))
	}

	row := &models.ClickLog{
		UID:         f.newUID(),
		CustomerRef: strings.TrimSpace(req.CustomerRef),
		ProductName: strings.TrimSpace(req.ProductName),
		CreatedAt:   now,
	}
	row.ApplyAttribution(models.Attribution{
		Data: models.ConversionData{
			TotalAmount: amount,
			ItemTitle:   utils.ToPtr(row.ProductName),
			ManualNotes: notes,
		},
		Method:      models.CorrelationMethodManual,
		ConvertedAt: now,
	})

	if err := f.repo.Save(ctx, row); err != nil {
		return nil, NewBusinessError("MANUAL_SALE_CREATE_FAILED", "Failed to register manual sale", err)
	}
	attributionsTotal.WithLabelValues(models.CorrelationMethodManual.String()).Inc()

	if err := f.publisher.PublishConversion(ctx, toConversionEvent(*row)); err != nil {
		f.log.WithError(err).WithField("click_log_id", row.ID).Warn("failed to publish manual sale event")
	}

	f.log.WithFields(logrus.Fields{
		"request_id":   requestIDFrom(ctx),
		"click_log_id": row.ID,
		"customer_ref": row.CustomerRef,
		"amount":       row.Revenue().StringFixed(2),
	}).Info("manual sale registered")

	return &dto.RegisterSaleResponse{ClickLog: ToClickLogDTO(*row)}, nil
}
