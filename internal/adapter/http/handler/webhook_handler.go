package handler

import (
	"io"

	"bridge-orchestrator/internal/core/ports"
	"bridge-orchestrator/pkg/apperror"
	"bridge-orchestrator/pkg/response"

	"github.com/gin-gonic/gin"
)

// HeaderWebhookSignature carries the provider's HMAC signature.
const HeaderWebhookSignature = "X-Signature"

// WebhookHandler ingests asynchronous provider events.
type WebhookHandler struct {
	reconciler ports.Reconciler
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(reconciler ports.Reconciler) *WebhookHandler {
	return &WebhookHandler{reconciler: reconciler}
}

// Ingest handles POST /api/v1/webhooks/events. A 2xx tells the provider to
// stop redelivering, so reconciliation failures are recorded on the stored
// event rather than surfaced here.
func (h *WebhookHandler) Ingest(c *gin.Context) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil || len(raw) == 0 {
		response.Error(c, apperror.Validation("cannot read request body"))
		return
	}

	event, err := h.reconciler.HandleEvent(c.Request.Context(), raw, c.GetHeader(HeaderWebhookSignature))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, gin.H{
		"event_id": event.EventID,
		"matched":  event.Matched,
		"verified": event.Verified,
	})
}
