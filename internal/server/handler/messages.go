package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zapgate/zapgate/internal/model"
	"github.com/zapgate/zapgate/internal/provider"
	"github.com/zapgate/zapgate/internal/server/middleware"
)

// MessageHandler serves the authenticated gateway surface for sending
// messages and checking their delivery state.
type MessageHandler struct {
	client *provider.Client
	pool   *provider.Pool
}

// NewMessageHandler creates a MessageHandler.
func NewMessageHandler(client *provider.Client, pool *provider.Pool) *MessageHandler {
	return &MessageHandler{client: client, pool: pool}
}

type sendTextRequest struct {
	Number                 string `json:"number"`
	Message                string `json:"message"`
	Delay                  int    `json:"delay,omitempty"`
	Forward                bool   `json:"forward,omitempty"`
	LinkPreview            bool   `json:"link_preview,omitempty"`
	LinkPreviewTitle       string `json:"link_preview_title,omitempty"`
	LinkPreviewDescription string `json:"link_preview_description,omitempty"`
	LinkPreviewImage       string `json:"link_preview_image,omitempty"`
	LinkPreviewLarge       bool   `json:"link_preview_large,omitempty"`
	Mentions               string `json:"mentions,omitempty"` // comma-separated numbers
	Read                   bool   `json:"read,omitempty"`
	ReadMessages           bool   `json:"read_messages,omitempty"`
}

type sendTextResponse struct {
	MessageID    string    `json:"message_id"`
	Status       string    `json:"status"`
	Recipient    string    `json:"recipient"`
	Message      string    `json:"message"`
	Timestamp    time.Time `json:"timestamp"`
	ConnectionID int64     `json:"connection_id"`
}

type messageStatusResponse struct {
	MessageID    string    `json:"message_id"`
	Status       string    `json:"status"`
	Timestamp    time.Time `json:"timestamp"`
	ConnectionID int64     `json:"connection_id"`
}

// splitMentions turns the comma-separated mentions field into the upstream
// list form, dropping empty items.
func splitMentions(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []string
	for _, m := range strings.Split(s, ",") {
		if m = strings.TrimSpace(m); m != "" {
			out = append(out, m)
		}
	}
	return out
}

// SendText relays a text message through the connection's provider instance.
// POST /v1/messages/send-text
func (h *MessageHandler) SendText(w http.ResponseWriter, r *http.Request) {
	middleware.SetAction(r.Context(), "message.send_text")
	conn := middleware.GetConnection(r.Context())

	var req sendTextRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, model.ErrKindValidation, "invalid request body")
		return
	}
	// Validation rejects before any upstream call or usage increment.
	var missing []string
	if strings.TrimSpace(req.Number) == "" {
		missing = append(missing, "number")
	}
	if strings.TrimSpace(req.Message) == "" {
		missing = append(missing, "message")
	}
	if len(missing) > 0 {
		writeError(w, http.StatusUnprocessableEntity, model.ErrKindValidation,
			"missing required field(s): "+strings.Join(missing, ", "))
		return
	}

	acct, err := h.pool.Get(conn.ProviderAccount)
	if err != nil {
		writeError(w, http.StatusInternalServerError, model.ErrKindInternal, "internal error")
		return
	}

	rec := middleware.GetRecorder(r.Context())
	result, err := h.client.SendText(r.Context(), rec, acct, conn, provider.SendTextRequest{
		Number:                 req.Number,
		Text:                   req.Message,
		Delay:                  req.Delay,
		Forward:                req.Forward,
		LinkPreview:            req.LinkPreview,
		LinkPreviewTitle:       req.LinkPreviewTitle,
		LinkPreviewDescription: req.LinkPreviewDescription,
		LinkPreviewImage:       req.LinkPreviewImage,
		LinkPreviewLarge:       req.LinkPreviewLarge,
		Mentioned:              splitMentions(req.Mentions),
		Read:                   req.Read,
		ReadMessages:           req.ReadMessages,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, model.ErrKindInternal, "failed to send message")
		return
	}

	writeSuccess(w, http.StatusOK, "message sent", sendTextResponse{
		MessageID:    result.MessageID,
		Status:       result.Status,
		Recipient:    req.Number,
		Message:      req.Message,
		Timestamp:    time.Now().UTC(),
		ConnectionID: conn.ID,
	})
}

// MessageStatus reports the delivery state of a previously sent message.
// GET /v1/messages/status/{messageId}
func (h *MessageHandler) MessageStatus(w http.ResponseWriter, r *http.Request) {
	middleware.SetAction(r.Context(), "message.status")
	conn := middleware.GetConnection(r.Context())

	messageID := chi.URLParam(r, "messageId")
	if messageID == "" {
		writeError(w, http.StatusUnprocessableEntity, model.ErrKindValidation, "missing message id")
		return
	}

	acct, err := h.pool.Get(conn.ProviderAccount)
	if err != nil {
		writeError(w, http.StatusInternalServerError, model.ErrKindInternal, "internal error")
		return
	}

	rec := middleware.GetRecorder(r.Context())
	status, err := h.client.MessageStatus(r.Context(), rec, acct, conn, messageID)
	if err != nil {
		if errors.Is(err, provider.ErrUpstream) {
			writeError(w, http.StatusInternalServerError, model.ErrKindInternal, "failed to fetch message status")
			return
		}
		writeError(w, http.StatusInternalServerError, model.ErrKindInternal, "internal error")
		return
	}

	writeSuccess(w, http.StatusOK, "message status", messageStatusResponse{
		MessageID:    messageID,
		Status:       status,
		Timestamp:    time.Now().UTC(),
		ConnectionID: conn.ID,
	})
}
