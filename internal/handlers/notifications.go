package handlers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/peertutor/coinledger/internal/handlers/render"
	"github.com/peertutor/coinledger/internal/logger"
	"github.com/peertutor/coinledger/internal/models"
)

type notificationResponse struct {
	ID          uuid.UUID  `json:"id"`
	CreatedAt   time.Time  `json:"created_at"`
	Type        string     `json:"type"`
	Title       string     `json:"title"`
	Message     string     `json:"message"`
	RelatedID   *uuid.UUID `json:"related_id,omitempty"`
	RelatedType *string    `json:"related_type,omitempty"`
	Read        bool       `json:"read"`
}

func toNotificationResponse(n models.Notification) notificationResponse {
	return notificationResponse{
		ID:          n.ID,
		CreatedAt:   n.CreatedAt,
		Type:        n.Type,
		Title:       n.Title,
		Message:     n.Message,
		RelatedID:   n.RelatedID,
		RelatedType: n.RelatedType,
		Read:        n.IsRead,
	}
}

func handleListNotifications(service notificationService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := mustUser(w, r)
		if !ok {
			return
		}

		limit := queryInt(r, "limit", 0)

		notifications, err := service.List(r.Context(), user.ID, limit)
		if err != nil {
			serviceError(w, l, err)
			return
		}

		resp := make([]notificationResponse, 0, len(notifications))
		for _, n := range notifications {
			resp = append(resp, toNotificationResponse(n))
		}

		render.JSON(w, resp)
	})
}

func handleUnreadCount(service notificationService, l logger.Logger) http.Handler {
	type response struct {
		Count int64 `json:"count"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := mustUser(w, r)
		if !ok {
			return
		}

		count, err := service.UnreadCount(r.Context(), user.ID)
		if err != nil {
			serviceError(w, l, err)
			return
		}

		render.JSON(w, response{Count: count})
	})
}

func handleMarkRead(service notificationService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := mustUser(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		n, err := service.MarkRead(r.Context(), user.ID, id)
		if err != nil {
			serviceError(w, l, err)
			return
		}

		render.JSON(w, toNotificationResponse(n))
	})
}

func handleMarkAllRead(service notificationService, l logger.Logger) http.Handler {
	type response struct {
		Updated int64 `json:"updated"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := mustUser(w, r)
		if !ok {
			return
		}

		updated, err := service.MarkAllRead(r.Context(), user.ID)
		if err != nil {
			serviceError(w, l, err)
			return
		}

		render.JSON(w, response{Updated: updated})
	})
}
