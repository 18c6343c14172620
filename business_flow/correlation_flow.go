package businessflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/amirphl/orochi-attribution/app/dto"
	"github.com/amirphl/orochi-attribution/config"
	"github.com/amirphl/orochi-attribution/models"
	"github.com/amirphl/orochi-attribution/repository"
	"github.com/amirphl/orochi-attribution/utils"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

// CorrelationFlow matches recent marketplace orders to issued click logs
type CorrelationFlow interface {
	CorrelateConversions(ctx context.Context, req *dto.CorrelateConversionsRequest) (*dto.CorrelateConversionsResponse, error)
	ListRuns(ctx context.Context, sellerID string, limit int) (*dto.ListCorrelationRunsResponse, error)
}

type CorrelationFlowImpl struct {
	clickLogRepo repository.ClickLogRepository
	runRepo      repository.CorrelationRunRepository
	tx           repository.TxRunner
	orders       MarketplaceOrderSource
	leases       LeaseManager
	publisher    ConversionEventPublisher
	cfg          config.CorrelationConfig
	sim          TextSimilarity
	newUID       func() string
	now          func() time.Time
	log          *logrus.Entry
}

func NewCorrelationFlow(
	clickLogRepo repository.ClickLogRepository,
	runRepo repository.CorrelationRunRepository,
	tx repository.TxRunner,
	orders MarketplaceOrderSource,
	leases LeaseManager,
	publisher ConversionEventPublisher,
	cfg config.CorrelationConfig,
	newUID func() string,
	log *logrus.Entry,
) CorrelationFlow {
	if publisher == nil {
		publisher = noopPublisher{}
	}
	if leases == nil {
		leases = NewLocalLeaseManager()
	}
	return &CorrelationFlowImpl{
		clickLogRepo: clickLogRepo,
		runRepo:      runRepo,
		tx:           tx,
		orders:       orders,
		leases:       leases,
		publisher:    publisher,
		cfg:          cfg,
		sim:          NewTextSimilarity(cfg.SimilarityAlgorithm),
		newUID:       newUID,
		now:          utils.UTCNow,
		log:          log,
	}
}

// correlationPlan is the matcher output for one invocation before anything is written
type correlationPlan struct {
	fetched  []models.MarketplaceOrder
	skipped  int
	pending  int
	matches  []Match
	buyerMap map[string]string
}

func (f *CorrelationFlowImpl) CorrelateConversions(ctx context.Context, req *dto.CorrelateConversionsRequest) (*dto.CorrelateConversionsResponse, error) {
	if req == nil || strings.TrimSpace(req.SellerID) == "" {
		return nil, newValidationError(ErrSellerIDRequired)
	}
	sellerID := strings.TrimSpace(req.SellerID)
	windowHours := utils.ClampInt(req.TimeWindowHours, f.defaultWindowHours(), utils.MinCorrelationWindowHours, utils.MaxCorrelationWindowHours)
	orderLimit := utils.ClampInt(req.OrderLimit, f.defaultOrderLimit(), utils.MinCorrelationOrderLimit, utils.MaxCorrelationOrderLimit)

	logger := f.log.WithFields(logrus.Fields{
		"request_id":   requestIDFrom(ctx),
		"seller_id":    sellerID,
		"window_hours": windowHours,
		"order_limit":  orderLimit,
		"dry_run":      req.DryRun,
	})

	if !req.DryRun {
		ttl := f.cfg.LeaseTTL
		if ttl <= 0 {
			ttl = utils.DefaultLeaseTTL
		}
		lease, err := f.leases.Acquire(ctx, utils.CorrelationLeaseName, ttl)
		if err != nil {
			if IsCorrelationAlreadyRunning(err) {
				correlationRunsTotal.WithLabelValues("already_running").Inc()
				return nil, NewBusinessError(CodeCorrelationAlreadyRunning, "A correlation run is already in progress", ErrCorrelationAlreadyRunning)
			}
			return nil, NewBusinessError("CORRELATION_LEASE_FAILED", "Failed to acquire correlation lease", err)
		}
		defer func() {
			if err := f.leases.Release(context.WithoutCancel(ctx), lease); err != nil {
				logger.WithError(err).Warn("failed to release correlation lease")
			}
		}()
	}

	started := f.now()
	resp := &dto.CorrelateConversionsResponse{
		SellerID:        sellerID,
		DryRun:          req.DryRun,
		TimeWindowHours: windowHours,
		OrderLimit:      orderLimit,
		Correlations:    []dto.CorrelationMatch{},
	}

	plan, err := f.plan(ctx, sellerID, windowHours, orderLimit)
	if err != nil {
		if !req.DryRun {
			f.recordRun(ctx, resp, started, nil, err)
			correlationRunsTotal.WithLabelValues("failed").Inc()
		}
		logger.WithError(err).Error("correlation run aborted")
		return nil, err
	}

	resp.OrdersProcessed = len(plan.fetched)
	resp.OrdersSkipped = plan.skipped
	resp.OrdersUnmatched = plan.pending - len(plan.matches)

	if req.DryRun {
		for _, m := range plan.matches {
			f.count(resp, m)
			resp.Correlations = append(resp.Correlations, toCorrelationMatch(m))
		}
		correlationRunsTotal.WithLabelValues("dry_run").Inc()
		correlationRunDuration.Observe(f.now().Sub(started).Seconds())
		logger.WithField("matches", len(plan.matches)).Info("dry correlation run finished")
		return resp, nil
	}

	writeErr := f.commit(ctx, resp, plan)
	summary := methodSummary(resp.Correlations)
	f.recordRun(ctx, resp, started, summary, writeErr)
	correlationRunDuration.Observe(f.now().Sub(started).Seconds())
	if writeErr != nil {
		correlationRunsTotal.WithLabelValues("failed").Inc()
		logger.WithError(writeErr).Error("correlation run failed while writing")
		return nil, writeErr
	}
	correlationRunsTotal.WithLabelValues("completed").Inc()

	logger.WithFields(logrus.Fields{
		"orders_processed":  resp.OrdersProcessed,
		"orders_skipped":    resp.OrdersSkipped,
		"clicks_correlated": resp.ClicksCorrelated,
		"orphans_recorded":  resp.OrphansRecorded,
	}).Info("correlation run finished")
	return resp, nil
}

// plan fetches orders and candidates and runs the matcher. It performs no writes.
func (f *CorrelationFlowImpl) plan(ctx context.Context, sellerID string, windowHours, orderLimit int) (*correlationPlan, error) {
	fetched, err := f.orders.RecentOrders(ctx, sellerID, orderLimit)
	if err != nil {
		return nil, NewBusinessError(CodeMarketplaceFetchFailed, "Failed to fetch marketplace orders", fmt.Errorf("%w: %w", ErrMarketplaceFetchFailed, err))
	}
	sort.SliceStable(fetched, func(i, j int) bool { return fetched[i].CreatedAt.After(fetched[j].CreatedAt) })
	if len(fetched) > orderLimit {
		fetched = fetched[:orderLimit]
	}
	out := &correlationPlan{fetched: fetched}

	ids := make([]string, 0, len(fetched))
	for _, o := range fetched {
		if o.OrderID != "" {
			ids = append(ids, o.OrderID)
		}
	}
	attributed, err := f.clickLogRepo.AttributedOrderIDs(ctx, ids)
	if err != nil {
		return nil, NewBusinessError("CORRELATION_LOOKUP_FAILED", "Failed to load attributed orders", err)
	}

	seen := make(map[string]struct{}, len(fetched))
	pending := make([]models.MarketplaceOrder, 0, len(fetched))
	for _, o := range fetched {
		if o.OrderID == "" || attributed[o.OrderID] {
			out.skipped++
			continue
		}
		if _, dup := seen[o.OrderID]; dup {
			out.skipped++
			continue
		}
		seen[o.OrderID] = struct{}{}
		o.CreatedAt = o.CreatedAt.UTC()
		pending = append(pending, o)
	}
	out.pending = len(pending)
	if len(pending) == 0 {
		return out, nil
	}

	window := time.Duration(windowHours) * time.Hour
	oldest, newest := pending[0].CreatedAt, pending[0].CreatedAt
	nicknames := make([]string, 0, len(pending))
	for _, o := range pending {
		if o.CreatedAt.Before(oldest) {
			oldest = o.CreatedAt
		}
		if o.CreatedAt.After(newest) {
			newest = o.CreatedAt
		}
		if o.BuyerNickname != "" {
			nicknames = append(nicknames, o.BuyerNickname)
		}
	}

	candidates, err := f.clickLogRepo.ListUnconvertedBetween(ctx, oldest.Add(-window), newest)
	if err != nil {
		return nil, NewBusinessError("CORRELATION_LOOKUP_FAILED", "Failed to load candidate click logs", err)
	}
	buyers, err := f.clickLogRepo.CustomerRefsByBuyer(ctx, nicknames)
	if err != nil {
		return nil, NewBusinessError("CORRELATION_LOOKUP_FAILED", "Failed to resolve buyers", err)
	}
	out.buyerMap = buyers

	var cities map[string][]string
	if f.cfg.CityCorroboration {
		refs := make([]string, 0, len(candidates))
		known := make(map[string]struct{}, len(candidates))
		for _, c := range candidates {
			if _, ok := known[c.CustomerRef]; !ok {
				known[c.CustomerRef] = struct{}{}
				refs = append(refs, c.CustomerRef)
			}
		}
		cities, err = f.clickLogRepo.ShippingCitiesByCustomer(ctx, refs)
		if err != nil {
			return nil, NewBusinessError("CORRELATION_LOOKUP_FAILED", "Failed to load customer cities", err)
		}
	}

	matcher := NewCorrelationMatcher(MatcherConfig{
		Window:                window,
		SimilarityThreshold:   f.cfg.SimilarityThreshold,
		CityCorroboration:     f.cfg.CityCorroboration,
		RequireCityMatch:      f.cfg.RequireCityMatch,
		RecordOrphans:         f.cfg.RecordOrphans,
		TimeMatchUnknownBuyer: f.cfg.TimeMatchUnknownBuyer,
		Workers:               f.cfg.Workers,
	}, f.sim)
	out.matches, err = matcher.Match(ctx, MatchInput{
		Orders:         pending,
		Candidates:     candidates,
		BuyerCustomers: buyers,
		CustomerCities: cities,
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// commit writes matches one at a time. A conflicting writer turns a match into a skip.
func (f *CorrelationFlowImpl) commit(ctx context.Context, resp *dto.CorrelateConversionsResponse, plan *correlationPlan) error {
	for _, m := range plan.matches {
		row, err := f.write(ctx, m, plan.buyerMap)
		if err != nil {
			if errors.Is(err, repository.ErrAlreadyConverted) || errors.Is(err, repository.ErrDuplicateKey) {
				resp.OrdersSkipped++
				f.log.WithField("order_id", m.Order.OrderID).Info("order attributed concurrently, skipping")
				continue
			}
			return NewBusinessErrorf("CORRELATION_WRITE_FAILED", "Failed to attribute order %s", err, m.Order.OrderID)
		}
		attributionsTotal.WithLabelValues(m.Method.String()).Inc()
		f.count(resp, m)

		match := toCorrelationMatch(m)
		match.ClickLogID = &row.ID
		resp.Correlations = append(resp.Correlations, match)

		if err := f.publisher.PublishConversion(ctx, toConversionEvent(*row)); err != nil {
			f.log.WithError(err).WithField("order_id", m.Order.OrderID).Warn("failed to publish conversion event")
		}
	}
	return nil
}

func (f *CorrelationFlowImpl) write(ctx context.Context, m Match, buyers map[string]string) (*models.ClickLog, error) {
	attribution := models.Attribution{
		Data:        m.Order.ConversionData(),
		Method:      m.Method,
		ConvertedAt: f.now(),
	}
	if m.ClickLog != nil {
		if err := f.clickLogRepo.Attribute(ctx, m.ClickLog.ID, attribution); err != nil {
			return nil, err
		}
		row := *m.ClickLog
		row.ApplyAttribution(attribution)
		return &row, nil
	}

	row := &models.ClickLog{
		UID:           f.newUID(),
		CustomerRef:   orphanCustomerRef(m.Order, buyers),
		ProductName:   orphanProductName(m.Order),
		ProductItemID: attribution.Data.ItemID,
		CreatedAt:     m.Order.CreatedAt.UTC(),
		IsOrphan:      true,
	}
	if attribution.ConvertedAt.Before(row.CreatedAt) {
		attribution.ConvertedAt = row.CreatedAt
	}
	row.ApplyAttribution(attribution)
	err := f.tx(ctx, func(txCtx context.Context) error {
		taken, err := f.clickLogRepo.AttributedOrderIDs(txCtx, []string{m.Order.OrderID})
		if err != nil {
			return err
		}
		if taken[m.Order.OrderID] {
			return repository.ErrDuplicateKey
		}
		return f.clickLogRepo.Save(txCtx, row)
	})
	if err != nil {
		return nil, err
	}
	return row, nil
}

func (f *CorrelationFlowImpl) count(resp *dto.CorrelateConversionsResponse, m Match) {
	if m.Method == models.CorrelationMethodOrphan {
		resp.OrphansRecorded++
		return
	}
	resp.OrdersWithClicks++
	resp.ClicksCorrelated++
}

// recordRun stores run history for non-dry invocations; failures here are logged only
func (f *CorrelationFlowImpl) recordRun(ctx context.Context, resp *dto.CorrelateConversionsResponse, started time.Time, summary datatypes.JSONMap, runErr error) {
	finished := f.now()
	run := &models.CorrelationRun{
		UUID:             uuid.New(),
		SellerID:         resp.SellerID,
		TimeWindowHours:  resp.TimeWindowHours,
		OrderLimit:       resp.OrderLimit,
		OrdersProcessed:  resp.OrdersProcessed,
		OrdersWithClicks: resp.OrdersWithClicks,
		ClicksCorrelated: resp.ClicksCorrelated,
		OrphansRecorded:  resp.OrphansRecorded,
		Status:           models.CorrelationRunStatusCompleted,
		Summary:          summary,
		StartedAt:        started,
		FinishedAt:       &finished,
	}
	if runErr != nil {
		run.Status = models.CorrelationRunStatusFailed
		run.Error = utils.ToPtr(runErr.Error())
	}
	if err := f.runRepo.Save(context.WithoutCancel(ctx), run); err != nil {
		f.log.WithError(err).Warn("failed to record correlation run")
		return
	}
	resp.RunID = utils.ToPtr(run.UUID.String())
}

func (f *CorrelationFlowImpl) ListRuns(ctx context.Context, sellerID string, limit int) (*dto.ListCorrelationRunsResponse, error) {
	limit = utils.ClampInt(limit, utils.DefaultTopListLimit, 1, utils.MaxTopListLimit)
	runs, err := f.runRepo.ListRecent(ctx, strings.TrimSpace(sellerID), limit)
	if err != nil {
		return nil, NewBusinessError("CORRELATION_RUNS_LIST_FAILED", "Failed to list correlation runs", err)
	}
	out := &dto.ListCorrelationRunsResponse{Runs: make([]dto.CorrelationRunDTO, 0, len(runs))}
	for _, run := range runs {
		out.Runs = append(out.Runs, ToCorrelationRunDTO(*run))
	}
	return out, nil
}

func (f *CorrelationFlowImpl) defaultWindowHours() int {
	if f.cfg.DefaultWindowHours > 0 {
		return f.cfg.DefaultWindowHours
	}
	return utils.DefaultCorrelationWindowHours
}

func (f *CorrelationFlowImpl) defaultOrderLimit() int {
	if f.cfg.DefaultOrderLimit > 0 {
		return f.cfg.DefaultOrderLimit
	}
	return utils.DefaultCorrelationOrderLimit
}

func toCorrelationMatch(m Match) dto.CorrelationMatch {
	out := dto.CorrelationMatch{
		OrderID:        m.Order.OrderID,
		Method:         m.Method.String(),
		Confidence:     string(m.Method.Confidence()),
		Score:          m.Score,
		TotalAmount:    m.Order.TotalAmount,
		ItemID:         m.Order.ItemID,
		ItemTitle:      m.Order.ItemTitle,
		BuyerNickname:  m.Order.BuyerNickname,
		ShippingCity:   m.Order.ShippingCity,
		OrderCreatedAt: m.Order.CreatedAt.UTC(),
	}
	if m.ClickLog != nil {
		out.ClickLogID = utils.ToPtr(m.ClickLog.ID)
		out.CustomerRef = m.ClickLog.CustomerRef
		out.ProductName = m.ClickLog.ProductName
		out.ClickCreatedAt = utils.ToPtr(m.ClickLog.CreatedAt.UTC())
	}
	return out
}

func methodSummary(matches []dto.CorrelationMatch) datatypes.JSONMap {
	summary := datatypes.JSONMap{}
	for _, m := range matches {
		n, _ := summary[m.Method].(int)
		summary[m.Method] = n + 1
	}
	return summary
}

func orphanCustomerRef(order models.MarketplaceOrder, buyers map[string]string) string {
	if ref, ok := buyers[order.BuyerNickname]; ok && order.BuyerNickname != "" {
		return ref
	}
	switch {
	case order.BuyerNickname != "":
		return "buyer:" + order.BuyerNickname
	case order.BuyerID != "":
		return "buyer:" + order.BuyerID
	}
	return "buyer:unknown"
}

func orphanProductName(order models.MarketplaceOrder) string {
	if t := strings.TrimSpace(order.ItemTitle); t != "" {
		return t
	}
	if order.ItemID != "" {
		return order.ItemID
	}
	return "marketplace order " + order.OrderID
}
