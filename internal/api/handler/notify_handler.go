package handler

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	apimw "github.com/notifyhub/notificationsvc/internal/api/middleware"
	"github.com/notifyhub/notificationsvc/internal/domain"
	"github.com/notifyhub/notificationsvc/internal/service"
)

// NotifyHandler handles the notification submission endpoint.
type NotifyHandler struct {
	svc    *service.IngressService
	logger *zap.Logger
}

func NewNotifyHandler(svc *service.IngressService, logger *zap.Logger) *NotifyHandler {
	return &NotifyHandler{svc: svc, logger: logger}
}

// notifyRequest is the JSON envelope of the notify endpoint: the caller
// context plus the notification payload.
type notifyRequest struct {
	Context      string                `json:"context"`
	Notification *domain.NotifyRequest `json:"notification"`
}

// Notify handles POST /api/v1/notify
//
// @Summary     Submit a notification for delivery
// @Tags        notifications
// @Accept      json
// @Produce     json
// @Param       body  body      notifyRequest  true  "Caller context and notification payload"
// @Success     202   {object}  domain.Notification
// @Failure     422   {object}  map[string]string
// @Failure     503   {object}  map[string]string
// @Router      /api/v1/notify [post]
func (h *NotifyHandler) Notify(w http.ResponseWriter, r *http.Request) {
	var req notifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Notification == nil {
		respondError(w, http.StatusBadRequest, "missing notification payload")
		return
	}

	n, err := h.svc.Notify(r.Context(), req.Context, req.Notification)
	if err != nil {
		h.logger.Warn("notify rejected",
			zap.String("correlation_id", apimw.GetCorrelationID(r.Context())),
			zap.String("context", req.Context),
			zap.Error(err),
		)
		mapError(w, err)
		return
	}

	// Accepted for delivery, not yet delivered.
	respondJSON(w, http.StatusAccepted, n)
}
