// Package api is the HTTP facade: thin pass-through handlers over the state
// store and the lifecycle controller. Session-acting endpoints are gated on
// the ready phase and reject deterministically with 503 otherwise.
package api

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"
	qrcode "github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	apiTypes "github.com/wabridge/wabridge/pkg/api"

	"github.com/wabridge/wabridge/internal/client"
	"github.com/wabridge/wabridge/internal/controller"
	"github.com/wabridge/wabridge/internal/domain"
	"github.com/wabridge/wabridge/internal/state"
	"github.com/wabridge/wabridge/internal/storage"
)

const qrImageSize = 256

// Handler routes control-surface requests to the session core.
type Handler struct {
	store      *state.Store
	controller *controller.Controller
	settings   *storage.Settings
	messageLog *storage.MessageLog
	logger     *zap.Logger
}

func NewHandler(store *state.Store, ctrl *controller.Controller, settings *storage.Settings, messageLog *storage.MessageLog, logger *zap.Logger) *Handler {
	return &Handler{
		store:      store,
		controller: ctrl,
		settings:   settings,
		messageLog: messageLog,
		logger:     logger,
	}
}

// Mount registers all routes on the provided router.
func (h *Handler) Mount(r chi.Router) {
	r.Get("/health", h.health)
	r.Get("/auth/qr", h.authQR)
	r.Post("/send", h.send)
	r.Post("/reply", h.reply)
	r.Get("/groups", h.groups)
	r.Get("/listen", h.listen)
	r.Post("/webhook/set", h.setWebhook)
	r.Get("/messages", h.messages)
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	snap := h.store.Snapshot()

	// Auth failures, disconnects, and restarts all collapse to
	// "disconnected"; callers learn the richer story from /auth/qr.
	status := apiTypes.StatusDisconnected
	if snap.Phase == domain.PhaseReady {
		status = apiTypes.StatusConnected
	}

	writeJSON(w, http.StatusOK, apiTypes.HealthResponse{
		Status:        status,
		Authenticated: snap.Authenticated,
		UptimeSeconds: int64(h.store.Uptime().Seconds()),
		Timestamp:     time.Now().UTC(),
	})
}

func (h *Handler) authQR(w http.ResponseWriter, r *http.Request) {
	snap := h.store.Snapshot()

	if snap.Authenticated {
		writeJSON(w, http.StatusOK, apiTypes.QRResponse{Message: "already authenticated"})
		return
	}
	if snap.QRPayload == "" {
		writeError(w, http.StatusServiceUnavailable, "not ready", "")
		return
	}

	png, err := qrcode.Encode(snap.QRPayload, qrcode.Medium, qrImageSize)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to encode qr", err.Error())
		return
	}
	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
	writeJSON(w, http.StatusOK, apiTypes.QRResponse{QR: dataURL})
}

func (h *Handler) send(w http.ResponseWriter, r *http.Request) {
	if !h.requireReady(w) {
		return
	}

	var req apiTypes.SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if strings.TrimSpace(req.To) == "" || req.Message == "" {
		writeError(w, http.StatusBadRequest, "to and message are required", "")
		return
	}

	resp, err := h.controller.SendMessage(r.Context(), req.To, req.Message, nil)
	if err != nil {
		h.logger.Warn("send failed", zap.String("to", req.To), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, apiTypes.SendResponse{
			Success: false,
			Error:   err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, apiTypes.SendResponse{Success: true, Response: resp})
}

func (h *Handler) reply(w http.ResponseWriter, r *http.Request) {
	if !h.requireReady(w) {
		return
	}

	var req apiTypes.ReplyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if strings.TrimSpace(req.ChatID) == "" || strings.TrimSpace(req.MessageID) == "" || req.ReplyText == "" {
		writeError(w, http.StatusBadRequest, "chatId, messageId and replyText are required", "")
		return
	}

	resp, err := h.controller.SendMessage(r.Context(), req.ChatID, req.ReplyText, &client.SendOptions{
		QuotedMessageID: req.MessageID,
	})
	if err != nil {
		h.logger.Warn("reply failed", zap.String("chat_id", req.ChatID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, apiTypes.SendResponse{
			Success: false,
			Error:   err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, apiTypes.SendResponse{Success: true, Response: resp})
}

func (h *Handler) groups(w http.ResponseWriter, r *http.Request) {
	if !h.requireReady(w) {
		return
	}

	chats, err := h.controller.GetChats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list chats", err.Error())
		return
	}

	groups := lo.FilterMap(chats, func(c domain.Chat, _ int) (apiTypes.Group, bool) {
		return apiTypes.Group{ID: c.ID, Name: c.Name}, c.IsGroup
	})
	writeJSON(w, http.StatusOK, apiTypes.GroupsResponse{Groups: groups})
}

func (h *Handler) listen(w http.ResponseWriter, r *http.Request) {
	h.store.SetListening(true)
	h.persistSettings()
	writeJSON(w, http.StatusOK, apiTypes.ListenResponse{Message: "listening for incoming messages"})
}

func (h *Handler) setWebhook(w http.ResponseWriter, r *http.Request) {
	var req apiTypes.WebhookSetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	// Stored unconditionally; the relay finds out at delivery time whether
	// the target is any good.
	h.store.SetWebhookURL(req.URL)
	h.persistSettings()
	writeJSON(w, http.StatusOK, apiTypes.WebhookSetResponse{Success: true, URL: req.URL})
}

func (h *Handler) messages(w http.ResponseWriter, r *http.Request) {
	if h.messageLog == nil {
		writeError(w, http.StatusNotFound, "message log disabled", "")
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit parameter", "")
			return
		}
		limit = n
	}

	logged, err := h.messageLog.RecentInbound(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read message log", err.Error())
		return
	}

	messages := make([]apiTypes.LoggedMessage, len(logged))
	for i, m := range logged {
		messages[i] = apiTypes.LoggedMessage{
			ID:        m.ID,
			From:      m.From,
			Body:      m.Body,
			ChatID:    m.ChatID,
			IsGroup:   m.IsGroup,
			HasMedia:  m.HasMedia,
			Timestamp: m.Timestamp,
			Delivery:  string(m.Delivery),
		}
	}
	writeJSON(w, http.StatusOK, apiTypes.MessagesResponse{Messages: messages})
}

// requireReady writes the deterministic not-ready rejection when the session
// phase is anything but Ready.
func (h *Handler) requireReady(w http.ResponseWriter) bool {
	if h.store.Phase() != domain.PhaseReady {
		writeError(w, http.StatusServiceUnavailable, "not ready", "")
		return false
	}
	return true
}

func (h *Handler) persistSettings() {
	if h.settings == nil {
		return
	}
	snap := h.store.Snapshot()
	if err := h.settings.Save(storage.RuntimeSettings{
		WebhookURL: snap.WebhookURL,
		Listening:  snap.Listening,
	}); err != nil {
		h.logger.Warn("failed to persist settings", zap.Error(err))
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, message, details string) {
	resp := apiTypes.ErrorResponse{Message: message}
	if details != "" {
		resp.Details = details
	}
	writeJSON(w, code, resp)
}
