package handler

import (
	"context"
	"crypto/subtle"
	"net/http"

	"github.com/zapgate/zapgate/internal/model"
	"github.com/zapgate/zapgate/internal/reconciler"
	"github.com/zapgate/zapgate/internal/server/middleware"
)

// WebhookHandler receives billing provider callbacks.
type WebhookHandler struct {
	reconciler *reconciler.Reconciler
	secret     string
}

// NewWebhookHandler creates a WebhookHandler. An empty secret disables
// signature checking, which is only sensible behind a trusted proxy.
func NewWebhookHandler(rec *reconciler.Reconciler, secret string) *WebhookHandler {
	return &WebhookHandler{reconciler: rec, secret: secret}
}

// Billing handles a billing subscription event. The endpoint always
// acknowledges valid payloads quickly; the actual deauthorization work runs
// in the background.
// POST /webhooks/billing
func (h *WebhookHandler) Billing(w http.ResponseWriter, r *http.Request) {
	middleware.SetAction(r.Context(), "billing.webhook")

	if h.secret != "" {
		got := r.Header.Get("X-Webhook-Secret")
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) != 1 {
			writeError(w, http.StatusUnauthorized, model.ErrKindAuth, "invalid webhook secret")
			return
		}
	}

	var event reconciler.WebhookEvent
	if err := readJSON(r, &event); err != nil {
		writeError(w, http.StatusBadRequest, model.ErrKindValidation, "invalid event payload")
		return
	}

	// The billing provider may drop the line as soon as it has sent the
	// payload; the subscription-state writes still have to land.
	if err := h.reconciler.HandleWebhook(context.WithoutCancel(r.Context()), event); err != nil {
		writeError(w, http.StatusInternalServerError, model.ErrKindInternal, "failed to process event")
		return
	}

	writeSuccess(w, http.StatusOK, "event accepted", nil)
}
