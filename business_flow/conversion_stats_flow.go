package businessflow

import (
	"context"
	"strings"
	"time"

	"github.com/amirphl/orochi-attribution/app/dto"
	"github.com/amirphl/orochi-attribution/repository"
	"github.com/amirphl/orochi-attribution/utils"
)

const maxDailySeriesRange = 366 * 24 * time.Hour

// ConversionStatsFlow serves the read-only dashboard rollups
type ConversionStatsFlow interface {
	ConversionStats(ctx context.Context, req *dto.StatsRangeRequest) (*dto.ConversionStatsResponse, error)
	DailySeries(ctx context.Context, req *dto.DailySeriesRequest) (*dto.DailySeriesResponse, error)
	RecentConversions(ctx context.Context, limit int) (*dto.RecentConversionsResponse, error)
	TopProducts(ctx context.Context, req *dto.StatsRangeRequest) (*dto.TopProductsResponse, error)
	TopRegions(ctx context.Context, req *dto.StatsRangeRequest) (*dto.TopRegionsResponse, error)
	ExportConversions(ctx context.Context, req *dto.StatsRangeRequest) (string, []byte, error)
}

type ConversionStatsFlowImpl struct {
	repo repository.ClickLogRepository
	now  func() time.Time
}

func NewConversionStatsFlow(repo repository.ClickLogRepository) ConversionStatsFlow {
	return &ConversionStatsFlowImpl{repo: repo, now: utils.UTCNow}
}

func (f *ConversionStatsFlowImpl) ConversionStats(ctx context.Context, req *dto.StatsRangeRequest) (*dto.ConversionStatsResponse, error) {
	from, to, err := resolveRange(req.DateFrom, req.DateTo, f.now())
	if err != nil {
		return nil, err
	}
	rows, err := f.repo.ListCreatedBetween(ctx, from, to)
	if err != nil {
		return nil, NewBusinessError("CONVERSION_STATS_FAILED", "Failed to load click logs", err)
	}
	stats := ComputeConversionStats(rows, from, to, req.ExcludeOrphans, utils.DefaultTopCustomers)
	return &dto.ConversionStatsResponse{Stats: stats}, nil
}

func (f *ConversionStatsFlowImpl) DailySeries(ctx context.Context, req *dto.DailySeriesRequest) (*dto.DailySeriesResponse, error) {
	from, to, err := resolveRange(req.StartDate, req.EndDate, f.now())
	if err != nil {
		return nil, err
	}
	if to.Sub(from) > maxDailySeriesRange {
		return nil, newValidationError(ErrDateRangeTooLarge)
	}
	rows, err := f.repo.ListActiveBetween(ctx, from, to)
	if err != nil {
		return nil, NewBusinessError("DAILY_SERIES_FAILED", "Failed to load click logs", err)
	}
	return &dto.DailySeriesResponse{ChartData: ComputeDailySeries(rows, from, to)}, nil
}

func (f *ConversionStatsFlowImpl) RecentConversions(ctx context.Context, limit int) (*dto.RecentConversionsResponse, error) {
	limit = utils.ClampInt(limit, utils.DefaultRecentConversion, 1, utils.MaxRecentConversion)
	rows, err := f.repo.ListRecentConversions(ctx, limit)
	if err != nil {
		return nil, NewBusinessError("RECENT_CONVERSIONS_FAILED", "Failed to load recent conversions", err)
	}
	return &dto.RecentConversionsResponse{ClickLogs: ToClickLogDTOs(rows)}, nil
}

func (f *ConversionStatsFlowImpl) TopProducts(ctx context.Context, req *dto.StatsRangeRequest) (*dto.TopProductsResponse, error) {
	from, to, err := resolveRange(req.DateFrom, req.DateTo, f.now())
	if err != nil {
		return nil, err
	}
	rows, err := f.repo.ListConvertedBetween(ctx, from, to)
	if err != nil {
		return nil, NewBusinessError("TOP_PRODUCTS_FAILED", "Failed to load conversions", err)
	}
	limit := utils.ClampInt(req.Limit, utils.DefaultTopListLimit, 1, utils.MaxTopListLimit)
	return &dto.TopProductsResponse{Products: ComputeTopProducts(rows, from, to, req.ExcludeOrphans, limit)}, nil
}

func (f *ConversionStatsFlowImpl) TopRegions(ctx context.Context, req *dto.StatsRangeRequest) (*dto.TopRegionsResponse, error) {
	from, to, err := resolveRange(req.DateFrom, req.DateTo, f.now())
	if err != nil {
		return nil, err
	}
	rows, err := f.repo.ListConvertedBetween(ctx, from, to)
	if err != nil {
		return nil, NewBusinessError("TOP_REGIONS_FAILED", "Failed to load conversions", err)
	}
	limit := utils.ClampInt(req.Limit, utils.DefaultTopListLimit, 1, utils.MaxTopListLimit)
	return &dto.TopRegionsResponse{Regions: ComputeTopRegions(rows, from, to, req.ExcludeOrphans, limit)}, nil
}

// resolveRange parses an optional [from, to) pair. Missing bounds default to the last 30 days
// ending now; a date-only upper bound includes that whole day.
func resolveRange(fromRaw, toRaw string, now time.Time) (time.Time, time.Time, error) {
	to := now.UTC()
	if s := strings.TrimSpace(toRaw); s != "" {
		t, err := utils.ParseDateOrTime(s)
		if err != nil {
			return time.Time{}, time.Time{}, newValidationError(ErrInvalidDate)
		}
		if len(s) == len(utils.DateLayout) {
			t = t.AddDate(0, 0, 1)
		}
		to = t
	}
	from := to.Add(-utils.DefaultStatsRange)
	if s := strings.TrimSpace(fromRaw); s != "" {
		t, err := utils.ParseDateOrTime(s)
		if err != nil {
			return time.Time{}, time.Time{}, newValidationError(ErrInvalidDate)
		}
		from = t
	}
	if from.After(to) {
		return time.Time{}, time.Time{}, newValidationError(ErrStartDateAfterEndDate)
	}
	return from, to, nil
}
