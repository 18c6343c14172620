package handlers

import (
	"time"

	"github.com/amirphl/orochi-attribution/app/dto"
	businessflow "github.com/amirphl/orochi-attribution/business_flow"
	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
)

const correlationTimeout = 2 * time.Minute

// AnalyticsHandlerInterface defines the contract for correlation and dashboard endpoints
type AnalyticsHandlerInterface interface {
	CorrelateConversions(c fiber.Ctx) error
	ListCorrelationRuns(c fiber.Ctx) error
	ConversionStats(c fiber.Ctx) error
	RecentConversions(c fiber.Ctx) error
	TopProducts(c fiber.Ctx) error
	TopRegions(c fiber.Ctx) error
	ExportConversions(c fiber.Ctx) error
}

type AnalyticsHandler struct {
	baseHandler
	correlationFlow businessflow.CorrelationFlow
	statsFlow       businessflow.ConversionStatsFlow
}

func NewAnalyticsHandler(correlationFlow businessflow.CorrelationFlow, statsFlow businessflow.ConversionStatsFlow, log *logrus.Entry) *AnalyticsHandler {
	return &AnalyticsHandler{
		baseHandler:     newBaseHandler(log),
		correlationFlow: correlationFlow,
		statsFlow:       statsFlow,
	}
}

// CorrelateConversions matches recent marketplace orders to click logs
// @Summary Correlate conversions
// @Description timeWindowHours is clamped to [1,168] and orderLimit to [10,50]. Dry runs never write.
// @Tags Analytics
// @Accept json
// @Produce json
// @Param request body dto.CorrelateConversionsRequest true "Correlation parameters"
// @Success 200 {object} dto.APIResponse{data=dto.CorrelateConversionsResponse} "Correlation result"
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 409 {object} dto.APIResponse "A correlation run is already in progress"
// @Failure 502 {object} dto.APIResponse "Marketplace fetch failed"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/analytics/correlate-conversions [post]
func (h *AnalyticsHandler) CorrelateConversions(c fiber.Ctx) error {
	var req dto.CorrelateConversionsRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if ok, err := h.validate(c, &req); !ok {
		return err
	}

	ctx, cancel := h.createRequestContextWithTimeout(c, "/api/v1/analytics/correlate-conversions", correlationTimeout)
	defer cancel()
	result, err := h.correlationFlow.CorrelateConversions(ctx, &req)
	if err != nil {
		return h.flowError(c, err, "Failed to correlate conversions", "CORRELATION_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Correlation completed", result)
}

// ListCorrelationRuns returns recent non-dry correlation runs
// @Summary List correlation runs
// @Tags Analytics
// @Produce json
// @Param sellerId query string false "Filter by seller"
// @Param limit query int false "Max runs (default 10, max 100)"
// @Success 200 {object} dto.APIResponse{data=dto.ListCorrelationRunsResponse} "Runs"
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/analytics/correlation-runs [get]
func (h *AnalyticsHandler) ListCorrelationRuns(c fiber.Ctx) error {
	limit, err := queryInt(c, "limit")
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, err.Error(), businessflow.CodeValidationError, nil)
	}
	ctx, cancel := h.createRequestContext(c, "/api/v1/analytics/correlation-runs")
	defer cancel()
	result, err := h.correlationFlow.ListRuns(ctx, c.Query("sellerId"), limit)
	if err != nil {
		return h.flowError(c, err, "Failed to list correlation runs", "CORRELATION_RUNS_LIST_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Correlation runs retrieved successfully", result)
}

// ConversionStats returns ledger totals and rates for a date range
// @Summary Conversion stats
// @Tags Analytics
// @Produce json
// @Param dateFrom query string false "Range start (YYYY-MM-DD or RFC3339)"
// @Param dateTo query string false "Range end (YYYY-MM-DD inclusive or RFC3339 exclusive)"
// @Param excludeOrphans query bool false "Leave orphan conversions out of totals and rates"
// @Success 200 {object} dto.APIResponse{data=dto.ConversionStatsResponse} "Stats"
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/analytics/conversions [get]
func (h *AnalyticsHandler) ConversionStats(c fiber.Ctx) error {
	req, err := h.statsRange(c)
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, err.Error(), businessflow.CodeValidationError, nil)
	}
	ctx, cancel := h.createRequestContext(c, "/api/v1/analytics/conversions")
	defer cancel()
	result, err := h.statsFlow.ConversionStats(ctx, req)
	if err != nil {
		return h.flowError(c, err, "Failed to compute conversion stats", "CONVERSION_STATS_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Conversion stats retrieved successfully", result)
}

// RecentConversions lists the latest converted click logs
// @Summary Recent conversions
// @Tags Analytics
// @Produce json
// @Param limit query int false "Max rows (default 10, max 100)"
// @Success 200 {object} dto.APIResponse{data=dto.RecentConversionsResponse} "Recent conversions"
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/analytics/conversions/recent [get]
func (h *AnalyticsHandler) RecentConversions(c fiber.Ctx) error {
	limit, err := queryInt(c, "limit")
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, err.Error(), businessflow.CodeValidationError, nil)
	}
	ctx, cancel := h.createRequestContext(c, "/api/v1/analytics/conversions/recent")
	defer cancel()
	result, err := h.statsFlow.RecentConversions(ctx, limit)
	if err != nil {
		return h.flowError(c, err, "Failed to load recent conversions", "RECENT_CONVERSIONS_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Recent conversions retrieved successfully", result)
}

// TopProducts ranks sold products by revenue
// @Summary Top products
// @Tags Analytics
// @Produce json
// @Param dateFrom query string false "Range start"
// @Param dateTo query string false "Range end"
// @Param excludeOrphans query bool false "Leave orphan conversions out"
// @Param limit query int false "Max rows (default 10, max 100)"
// @Success 200 {object} dto.APIResponse{data=dto.TopProductsResponse} "Top products"
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/analytics/top-products [get]
func (h *AnalyticsHandler) TopProducts(c fiber.Ctx) error {
	req, err := h.statsRange(c)
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, err.Error(), businessflow.CodeValidationError, nil)
	}
	if ok, verr := h.validate(c, req); !ok {
		return verr
	}
	ctx, cancel := h.createRequestContext(c, "/api/v1/analytics/top-products")
	defer cancel()
	result, err := h.statsFlow.TopProducts(ctx, req)
	if err != nil {
		return h.flowError(c, err, "Failed to rank products", "TOP_PRODUCTS_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Top products retrieved successfully", result)
}

// TopRegions ranks shipping cities by revenue
// @Summary Top regions
// @Tags Analytics
// @Produce json
// @Param dateFrom query string false "Range start"
// @Param dateTo query string false "Range end"
// @Param excludeOrphans query bool false "Leave orphan conversions out"
// @Param limit query int false "Max rows (default 10, max 100)"
// @Success 200 {object} dto.APIResponse{data=dto.TopRegionsResponse} "Top regions"
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/analytics/top-region [get]
func (h *AnalyticsHandler) TopRegions(c fiber.Ctx) error {
	req, err := h.statsRange(c)
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, err.Error(), businessflow.CodeValidationError, nil)
	}
	if ok, verr := h.validate(c, req); !ok {
		return verr
	}
	ctx, cancel := h.createRequestContext(c, "/api/v1/analytics/top-region")
	defer cancel()
	result, err := h.statsFlow.TopRegions(ctx, req)
	if err != nil {
		return h.flowError(c, err, "Failed to rank regions", "TOP_REGIONS_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Top regions retrieved successfully", result)
}

// ExportConversions downloads converted click logs as xlsx
// @Summary Export conversions
// @Tags Analytics
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param dateFrom query string false "Range start"
// @Param dateTo query string false "Range end"
// @Param excludeOrphans query bool false "Leave orphan conversions out"
// @Success 200 {file} file "Workbook"
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/analytics/conversions/export [get]
func (h *AnalyticsHandler) ExportConversions(c fiber.Ctx) error {
	req, err := h.statsRange(c)
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, err.Error(), businessflow.CodeValidationError, nil)
	}
	ctx, cancel := h.createRequestContextWithTimeout(c, "/api/v1/analytics/conversions/export", 30*time.Second)
	defer cancel()
	filename, data, err := h.statsFlow.ExportConversions(ctx, req)
	if err != nil {
		return h.flowError(c, err, "Failed to export conversions", "EXPORT_FAILED")
	}
	c.Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Set("Content-Disposition", "attachment; filename="+filename)
	return c.Send(data)
}

func (h *AnalyticsHandler) statsRange(c fiber.Ctx) (*dto.StatsRangeRequest, error) {
	exclude, err := queryBool(c, "excludeOrphans")
	if err != nil {
		return nil, err
	}
	limit, err := queryInt(c, "limit")
	if err != nil {
		return nil, err
	}
	return &dto.StatsRangeRequest{
		DateFrom:       c.Query("dateFrom"),
		DateTo:         c.Query("dateTo"),
		ExcludeOrphans: exclude,
		Limit:          limit,
	}, nil
}
