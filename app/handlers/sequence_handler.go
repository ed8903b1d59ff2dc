// Package handlers contains HTTP request handlers for the sequence service
package handlers

import (
	"context"
	"log"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/quantsix/seqd/app/dto"
	"github.com/quantsix/seqd/app/middleware"
	businessflow "github.com/quantsix/seqd/business_flow"
	"github.com/quantsix/seqd/repository"
)

type SequenceHandlerInterface interface {
	Allocate(c fiber.Ctx) error
	Initialize(c fiber.Ctx) error
	Get(c fiber.Ctx) error
}

type SequenceHandler struct {
	flow      businessflow.SequenceFlow
	validator *validator.Validate
}

func NewSequenceHandler(flow businessflow.SequenceFlow) SequenceHandlerInterface {
	return &SequenceHandler{
		flow:      flow,
		validator: validator.New(),
	}
}

func (h *SequenceHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error:   dto.ErrorDetail{Code: errorCode, Details: details},
	})
}

func (h *SequenceHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{Success: true, Message: message, Data: data})
}

// Allocate draws the next value from a sequence
// @Summary Allocate Sequence Value
// @Description Allocate the next unique value for a named sequence, optionally formatted
// @Tags Sequences
// @Accept json
// @Produce json
// @Param key path string true "Sequence key"
// @Param request body dto.AllocateSequenceRequest false "Formatting options"
// @Success 200 {object} dto.APIResponse{data=dto.AllocateSequenceResponse} "Value allocated"
// @Failure 404 {object} dto.APIResponse "Sequence not registered"
// @Router /api/v1/sequences/{key}/allocate [post]
func (h *SequenceHandler) Allocate(c fiber.Ctx) error {
	key := c.Params("key")

	var req dto.AllocateSequenceRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
		}
	}

	// Validate request
	if err := h.validator.Struct(&req); err != nil {
		var validationErrors []string
		for _, err := range err.(validator.ValidationErrors) {
			validationErrors = append(validationErrors, err.Error())
		}
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors)
	}

	ctx, cancel := h.createRequestContext(c, 30*time.Second)
	defer cancel()

	resp := dto.AllocateSequenceResponse{SeqKey: key}

	// Raw when no formatting was requested, formatted string otherwise;
	// the two paths keep the contract statically typed on both sides.
	var err error
	if !req.WithPrefix && !req.WithDatetime {
		var value int64
		value, err = h.flow.NextID(ctx, key)
		resp.Value = &value
	} else {
		resp.Formatted, err = h.flow.NextFormatted(ctx, key, businessflow.AllocationOptions{
			WithPrefix:     req.WithPrefix,
			WithDatetime:   req.WithDatetime,
			DatetimeFormat: req.DatetimeFormat,
		})
	}

	if err != nil {
		if businessflow.IsSequenceNotFound(err) {
			middleware.ObserveAllocation(key, "not_found")
			return h.ErrorResponse(c, fiber.StatusNotFound, "Sequence not registered", "SEQUENCE_NOT_FOUND", nil)
		}

		middleware.ObserveAllocation(key, "error")
		log.Println("Sequence allocation failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to allocate sequence value", "ALLOCATION_FAILED", nil)
	}

	middleware.ObserveAllocation(key, "ok")
	return h.SuccessResponse(c, fiber.StatusOK, "Sequence value allocated", resp)
}

// Initialize registers a sequence definition if absent
// @Summary Initialize Sequence
// @Description Idempotently create a sequence definition; known keys use their documented configuration
// @Tags Sequences
// @Accept json
// @Produce json
// @Param request body dto.InitSequenceRequest true "Sequence defaults"
// @Success 200 {object} dto.APIResponse "Sequence present"
// @Router /api/v1/sequences [post]
func (h *SequenceHandler) Initialize(c fiber.Ctx) error {
	var req dto.InitSequenceRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}

	// Validate request
	if err := h.validator.Struct(&req); err != nil {
		var validationErrors []string
		for _, err := range err.(validator.ValidationErrors) {
			validationErrors = append(validationErrors, err.Error())
		}
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors)
	}

	ctx, cancel := h.createRequestContext(c, 30*time.Second)
	defer cancel()

	err := h.flow.EnsureSequence(ctx, req.SeqKey, businessflow.SequenceConfig{
		CurrentValue: req.CurrentValue,
		StepMin:      req.StepMin,
		StepMax:      req.StepMax,
		Prefix:       req.Prefix,
		Description:  req.Description,
	})
	if err != nil {
		log.Println("Sequence initialization failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to initialize sequence", "INITIALIZATION_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Sequence initialized", nil)
}

// Get returns a sequence definition without mutating it
// @Summary Get Sequence Definition
// @Tags Sequences
// @Produce json
// @Param key path string true "Sequence key"
// @Success 200 {object} dto.APIResponse{data=dto.SequenceDefinitionDTO} "Definition"
// @Failure 404 {object} dto.APIResponse "Sequence not registered"
// @Router /api/v1/sequences/{key} [get]
func (h *SequenceHandler) Get(c fiber.Ctx) error {
	key := c.Params("key")

	ctx, cancel := h.createRequestContext(c, 10*time.Second)
	defer cancel()

	seq, err := h.flow.Definition(ctx, key)
	if err != nil {
		if businessflow.IsSequenceNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Sequence not registered", "SEQUENCE_NOT_FOUND", nil)
		}
		log.Println("Sequence lookup failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to look up sequence", "LOOKUP_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Sequence retrieved", dto.SequenceDefinitionDTO{
		SeqKey:       seq.SeqKey,
		CurrentValue: seq.CurrentValue,
		StepMin:      seq.StepMin,
		StepMax:      seq.StepMax,
		Prefix:       seq.Prefix,
		Description:  seq.Description,
		CreatedAt:    seq.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    seq.UpdatedAt.Format(time.RFC3339),
	})
}

// createRequestContext builds the handler context, carrying the per-request
// transaction opened by the database middleware so repository calls join it.
func (h *SequenceHandler) createRequestContext(c fiber.Ctx, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	if tx := middleware.RequestTx(c); tx != nil {
		ctx = context.WithValue(ctx, repository.TxContextKey, tx)
	}
	return ctx, cancel
}
