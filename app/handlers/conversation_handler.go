package handlers

import (
	"github.com/amirphl/orochi-attribution/app/dto"
	businessflow "github.com/amirphl/orochi-attribution/business_flow"
	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
)

// ConversationHandlerInterface defines the contract for agent actions on a conversation
type ConversationHandlerInterface interface {
	RegisterSale(c fiber.Ctx) error
}

type ConversationHandler struct {
	baseHandler
	flow businessflow.ManualSaleFlow
}

func NewConversationHandler(flow businessflow.ManualSaleFlow, log *logrus.Entry) *ConversationHandler {
	return &ConversationHandler{baseHandler: newBaseHandler(log), flow: flow}
}

// RegisterSale records a sale confirmed by an agent
// @Summary Register manual sale
// @Tags Conversations
// @Accept json
// @Produce json
// @Param customerRef path string true "Customer reference"
// @Param request body dto.RegisterSaleRequest true "Sale details"
// @Success 201 {object} dto.APIResponse{data=dto.RegisterSaleResponse} "Sale registered"
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/conversations/{customerRef}/register-sale [post]
func (h *ConversationHandler) RegisterSale(c fiber.Ctx) error {
	var req dto.RegisterSaleRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	req.CustomerRef = c.Params("customerRef")
	if ok, err := h.validate(c, &req); !ok {
		return err
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/conversations/:customerRef/register-sale")
	defer cancel()
	result, err := h.flow.RegisterManualSale(ctx, &req)
	if err != nil {
		return h.flowError(c, err, "Failed to register sale", "MANUAL_SALE_CREATE_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusCreated, "Sale registered successfully", result)
}
