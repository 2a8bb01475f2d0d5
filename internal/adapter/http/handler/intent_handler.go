package handler

import (
	"bridge-orchestrator/internal/adapter/http/dto"
	"bridge-orchestrator/internal/core/ports"
	"bridge-orchestrator/pkg/apperror"
	"bridge-orchestrator/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// HeaderIdempotencyKey carries the caller's idempotency key on confirm.
const HeaderIdempotencyKey = "Idempotency-Key"

// IntentHandler handles payment intent endpoints.
type IntentHandler struct {
	intentSvc ports.IntentService
}

// NewIntentHandler creates a new IntentHandler.
func NewIntentHandler(intentSvc ports.IntentService) *IntentHandler {
	return &IntentHandler{intentSvc: intentSvc}
}

// Create handles POST /api/v1/intents.
func (h *IntentHandler) Create(c *gin.Context) {
	var req dto.CreateIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	payerID, err := uuid.Parse(req.PayerID)
	if err != nil {
		response.Error(c, apperror.Validation("invalid payer_id"))
		return
	}
	amount, err := req.ParseAmount()
	if err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	override, err := req.ParsePlan()
	if err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	createReq := ports.CreateIntentRequest{
		PayerID:   payerID,
		AmountDue: amount,
		Currency:  req.Currency,
		Override:  override,
	}
	if req.MerchantID != nil {
		mid, err := uuid.Parse(*req.MerchantID)
		if err != nil {
			response.Error(c, apperror.Validation("invalid merchant_id"))
			return
		}
		createReq.MerchantID = &mid
	}

	intent, err := h.intentSvc.CreateIntent(c.Request.Context(), createReq)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.FromIntent(intent, nil))
}

// Confirm handles POST /api/v1/intents/:id/confirm.
func (h *IntentHandler) Confirm(c *gin.Context) {
	intentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid intent id"))
		return
	}

	idempotencyKey := c.GetHeader(HeaderIdempotencyKey)
	if idempotencyKey == "" {
		response.Error(c, apperror.Validation("Idempotency-Key header is required"))
		return
	}

	var req dto.ConfirmIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	payerID, err := uuid.Parse(req.PayerID)
	if err != nil {
		response.Error(c, apperror.Validation("invalid payer_id"))
		return
	}

	result, err := h.intentSvc.ConfirmIntent(c.Request.Context(), ports.ConfirmIntentRequest{
		IntentID:       intentID,
		PayerID:        payerID,
		IdempotencyKey: idempotencyKey,
		CorrelationID:  req.CorrelationID,
		SourceDetails:  req.SourceDetails,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, result)
}

// Get handles GET /api/v1/intents/:id.
func (h *IntentHandler) Get(c *gin.Context) {
	intentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid intent id"))
		return
	}

	intent, legs, err := h.intentSvc.GetIntent(c.Request.Context(), intentID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.FromIntent(intent, legs))
}
