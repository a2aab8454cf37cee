package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/peertutor/coinledger/internal/handlers/render"
	"github.com/peertutor/coinledger/internal/logger"
	"github.com/peertutor/coinledger/internal/models"
)

// sse writes one server-sent event and flushes it to the client
func sse(w http.ResponseWriter, flusher http.Flusher, event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("can't marshal event payload: %w", err)
	}

	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload); err != nil {
		return err
	}
	flusher.Flush()

	return nil
}

func sseHeaders(w http.ResponseWriter) (http.Flusher, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		render.ServiceError(w, "Streaming unsupported", http.StatusInternalServerError)
		return nil, false
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return flusher, true
}

// handleNotificationStream streams the authenticated user's new notifications
// until the client disconnects
func handleNotificationStream(sub subscriber, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := mustUser(w, r)
		if !ok {
			return
		}

		events := make(chan models.Notification, 16)
		unsubscribe, err := sub.SubscribeUserNotifications(r.Context(), user.ID, func(n models.Notification) {
			select {
			case events <- n:
			default:
				// slow client, drop rather than block the poller
			}
		})
		if err != nil {
			serviceError(w, l, err)
			return
		}
		defer unsubscribe()

		flusher, ok := sseHeaders(w)
		if !ok {
			return
		}

		for {
			select {
			case <-r.Context().Done():
				return
			case n := <-events:
				if err := sse(w, flusher, "notification", toNotificationResponse(n)); err != nil {
					l.Debug("notification stream closed", "user_id", user.ID, "error", err)
					return
				}
			}
		}
	})
}

// handleLessonStream streams lesson state changes to a lesson participant
func handleLessonStream(sub subscriber, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := mustUser(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		events := make(chan models.Lesson, 16)
		unsubscribe, err := sub.SubscribeLessonUpdates(r.Context(), id, func(lesson models.Lesson) {
			if lesson.TutorID != user.ID && lesson.StudentID != user.ID {
				return
			}
			select {
			case events <- lesson:
			default:
			}
		})
		if err != nil {
			serviceError(w, l, err)
			return
		}
		defer unsubscribe()

		flusher, ok := sseHeaders(w)
		if !ok {
			return
		}

		for {
			select {
			case <-r.Context().Done():
				return
			case lesson := <-events:
				if err := sse(w, flusher, "lesson", toLessonResponse(lesson)); err != nil {
					l.Debug("lesson stream closed", "lesson_id", id, "error", err)
					return
				}
			}
		}
	})
}
