package handlers

import (
	"github.com/amirphl/orochi-attribution/app/dto"
	businessflow "github.com/amirphl/orochi-attribution/business_flow"
	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
)

// ClickLogHandlerInterface defines the contract for tracked link endpoints
type ClickLogHandlerInterface interface {
	Generate(c fiber.Ctx) error
	Daily(c fiber.Ctx) error
}

type ClickLogHandler struct {
	baseHandler
	issueFlow businessflow.LinkIssueFlow
	statsFlow businessflow.ConversionStatsFlow
}

func NewClickLogHandler(issueFlow businessflow.LinkIssueFlow, statsFlow businessflow.ConversionStatsFlow, log *logrus.Entry) *ClickLogHandler {
	return &ClickLogHandler{
		baseHandler: newBaseHandler(log),
		issueFlow:   issueFlow,
		statsFlow:   statsFlow,
	}
}

// Generate issues a tracked link
// @Summary Generate tracked link
// @Description Create a click log for a customer/product pair and return the tracked URL to embed in a bot reply
// @Tags ClickLogs
// @Accept json
// @Produce json
// @Param request body dto.GenerateClickLogRequest true "Link details"
// @Success 201 {object} dto.APIResponse{data=dto.GenerateClickLogResponse} "Tracked link created"
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/click-logs/generate [post]
func (h *ClickLogHandler) Generate(c fiber.Ctx) error {
	var req dto.GenerateClickLogRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if ok, err := h.validate(c, &req); !ok {
		return err
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/click-logs/generate")
	defer cancel()
	result, err := h.issueFlow.IssueLink(ctx, &req)
	if err != nil {
		return h.flowError(c, err, "Failed to generate tracked link", "CLICK_LOG_CREATE_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusCreated, "Tracked link generated successfully", result)
}

// Daily returns per-day links, clicks and conversions
// @Summary Daily click series
// @Tags ClickLogs
// @Produce json
// @Param startDate query string false "Start date (YYYY-MM-DD or RFC3339), default 30 days ago"
// @Param endDate query string false "End date (YYYY-MM-DD inclusive or RFC3339 exclusive), default now"
// @Success 200 {object} dto.APIResponse{data=dto.DailySeriesResponse} "Daily series"
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/click-logs/daily [get]
func (h *ClickLogHandler) Daily(c fiber.Ctx) error {
	req := dto.DailySeriesRequest{
		StartDate: c.Query("startDate"),
		EndDate:   c.Query("endDate"),
	}
	ctx, cancel := h.createRequestContext(c, "/api/v1/click-logs/daily")
	defer cancel()
	result, err := h.statsFlow.DailySeries(ctx, &req)
	if err != nil {
		return h.flowError(c, err, "Failed to build daily series", "DAILY_SERIES_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Daily series retrieved successfully", result)
}
