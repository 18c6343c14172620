// Package handlers contains HTTP request handlers and presentation layer logic for the API endpoints
package handlers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/amirphl/orochi-attribution/app/dto"
	businessflow "github.com/amirphl/orochi-attribution/business_flow"
	"github.com/amirphl/orochi-attribution/utils"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
)

const defaultRequestTimeout = 10 * time.Second

// baseHandler carries the response helpers shared by every handler
type baseHandler struct {
	validator *validator.Validate
	log       *logrus.Entry
}

func newBaseHandler(log *logrus.Entry) baseHandler {
	return baseHandler{validator: validator.New(), log: log}
}

func (h *baseHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *baseHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// validate runs struct validation and renders the first failure list as a 400
func (h *baseHandler) validate(c fiber.Ctx, req any) (bool, error) {
	if err := h.validator.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			details := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				details = append(details, getValidationErrorMessage(fe))
			}
			return false, h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", businessflow.CodeValidationError, details)
		}
		return false, h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", businessflow.CodeValidationError, err.Error())
	}
	return true, nil
}

// flowError maps business errors onto HTTP statuses
func (h *baseHandler) flowError(c fiber.Ctx, err error, message, fallbackCode string) error {
	var be *businessflow.BusinessError
	if errors.As(err, &be) {
		switch be.Code {
		case businessflow.CodeValidationError:
			return h.ErrorResponse(c, fiber.StatusBadRequest, be.Message, be.Code, nil)
		case businessflow.CodeNotFound:
			return h.ErrorResponse(c, fiber.StatusNotFound, be.Message, be.Code, nil)
		case businessflow.CodeCorrelationAlreadyRunning:
			return h.ErrorResponse(c, fiber.StatusConflict, be.Message, be.Code, nil)
		case businessflow.CodeMarketplaceFetchFailed:
			h.log.WithError(err).Warn(message)
			return h.ErrorResponse(c, fiber.StatusBadGateway, be.Message, be.Code, nil)
		}
	}
	if businessflow.IsClickLogNotFound(err) {
		return h.ErrorResponse(c, fiber.StatusNotFound, "Click log not found", businessflow.CodeNotFound, nil)
	}
	h.log.WithError(err).Error(message)
	return h.ErrorResponse(c, fiber.StatusInternalServerError, message, fallbackCode, nil)
}

func (h *baseHandler) createRequestContext(c fiber.Ctx, endpoint string) (context.Context, context.CancelFunc) {
	return h.createRequestContextWithTimeout(c, endpoint, defaultRequestTimeout)
}

func (h *baseHandler) createRequestContextWithTimeout(c fiber.Ctx, endpoint string, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	ctx = context.WithValue(ctx, utils.RequestIDKey, requestID(c))
	ctx = context.WithValue(ctx, utils.UserAgentKey, c.Get("User-Agent"))
	ctx = context.WithValue(ctx, utils.IPAddressKey, c.IP())
	ctx = context.WithValue(ctx, utils.EndpointKey, endpoint)
	ctx = context.WithValue(ctx, utils.TimeoutKey, timeout)
	return ctx, cancel
}

func requestID(c fiber.Ctx) string {
	if id := c.Get(businessflow.RequestIDKey); id != "" {
		return id
	}
	return string(c.Response().Header.Peek(businessflow.RequestIDKey))
}

func queryInt(c fiber.Ctx, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", key)
	}
	return v, nil
}

func queryBool(c fiber.Ctx, key string) (bool, error) {
	raw := c.Query(key)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s must be true or false", key)
	}
	return v, nil
}

func getValidationErrorMessage(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return err.Field() + " is required"
	case "min":
		return err.Field() + " must be at least " + err.Param() + " characters"
	case "max":
		return err.Field() + " must be at most " + err.Param() + " characters"
	case "oneof":
		return err.Field() + " must be one of: " + err.Param()
	case "url":
		return err.Field() + " must be an absolute URL"
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", err.Field(), err.Param())
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", err.Field(), err.Param())
	default:
		return err.Field() + " is invalid"
	}
}
