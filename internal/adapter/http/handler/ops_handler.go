package handler

import (
	"strconv"

	"bridge-orchestrator/internal/adapter/http/dto"
	"bridge-orchestrator/internal/core/ports"
	"bridge-orchestrator/internal/resilience"
	"bridge-orchestrator/pkg/apperror"
	"bridge-orchestrator/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// OpsHandler exposes the operator console: event replay, unmatched event
// inspection, and circuit breaker status.
type OpsHandler struct {
	reconciler ports.Reconciler
	breakers   *resilience.Registry
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(reconciler ports.Reconciler, breakers *resilience.Registry) *OpsHandler {
	return &OpsHandler{reconciler: reconciler, breakers: breakers}
}

// Reprocess handles POST /api/v1/ops/reprocess.
func (h *OpsHandler) Reprocess(c *gin.Context) {
	var req dto.ReprocessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	reprocessReq := ports.ReprocessRequest{EventID: req.EventID}
	if req.PaymentID != nil {
		pid, err := uuid.Parse(*req.PaymentID)
		if err != nil {
			response.Error(c, apperror.Validation("invalid payment_id"))
			return
		}
		reprocessReq.PaymentID = &pid
	}

	result, err := h.reconciler.Reprocess(c.Request.Context(), reprocessReq)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, result)
}

// UnmatchedEvents handles GET /api/v1/ops/events/unmatched.
func (h *OpsHandler) UnmatchedEvents(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 500 {
			response.Error(c, apperror.Validation("limit must be between 1 and 500"))
			return
		}
		limit = parsed
	}

	events, err := h.reconciler.UnmatchedEvents(c.Request.Context(), limit)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, gin.H{"events": events, "count": len(events)})
}

// Breakers handles GET /api/v1/ops/breakers.
func (h *OpsHandler) Breakers(c *gin.Context) {
	response.OK(c, gin.H{"breakers": h.breakers.Snapshots()})
}
