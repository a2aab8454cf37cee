package handlers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/peertutor/coinledger/internal/handlers/render"
	"github.com/peertutor/coinledger/internal/logger"
	"github.com/peertutor/coinledger/internal/models"
)

type matchRequestResponse struct {
	ID           uuid.UUID `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	StudentID    uuid.UUID `json:"student_id"`
	TutorID      uuid.UUID `json:"tutor_id"`
	Message      string    `json:"message"`
	ScheduleNote *string   `json:"schedule_note,omitempty"`
	CoinCost     int64     `json:"coin_cost"`
	Status       string    `json:"status"`
	ExpiresAt    time.Time `json:"expires_at"`
}

func toMatchRequestResponse(req models.MatchRequest) matchRequestResponse {
	return matchRequestResponse{
		ID:           req.ID,
		CreatedAt:    req.CreatedAt,
		StudentID:    req.StudentID,
		TutorID:      req.TutorID,
		Message:      req.Message,
		ScheduleNote: req.ScheduleNote,
		CoinCost:     req.CoinCost,
		Status:       req.Status,
		ExpiresAt:    req.ExpiresAt,
	}
}

func toMatchRequestResponses(reqs []models.MatchRequest) []matchRequestResponse {
	out := make([]matchRequestResponse, 0, len(reqs))
	for _, req := range reqs {
		out = append(out, toMatchRequestResponse(req))
	}
	return out
}

func handleSendMatchRequest(service matchingService, l logger.Logger) http.Handler {
	type request struct {
		TutorID      uuid.UUID `json:"tutor_id" validate:"required"`
		Message      string    `json:"message" validate:"required"`
		ScheduleNote *string   `json:"schedule_note"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := mustUser(w, r)
		if !ok {
			return
		}

		req, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		created, err := service.SendMatchRequest(r.Context(), user, req.TutorID, req.Message, req.ScheduleNote)
		if err != nil {
			serviceError(w, l, err)
			return
		}

		render.JSONWithStatus(w, toMatchRequestResponse(created), http.StatusCreated)
	})
}

func handleListStudentRequests(service matchingService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := mustUser(w, r)
		if !ok {
			return
		}

		reqs, err := service.ListStudentRequests(r.Context(), user)
		if err != nil {
			serviceError(w, l, err)
			return
		}

		render.JSON(w, toMatchRequestResponses(reqs))
	})
}

func handleListTutorRequests(service matchingService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := mustUser(w, r)
		if !ok {
			return
		}

		reqs, err := service.ListTutorRequests(r.Context(), user)
		if err != nil {
			serviceError(w, l, err)
			return
		}

		render.JSON(w, toMatchRequestResponses(reqs))
	})
}

func handleApproveMatchRequest(service matchingService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := mustUser(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		req, err := service.ApproveMatchRequest(r.Context(), user, id)
		if err != nil {
			serviceError(w, l, err)
			return
		}

		render.JSON(w, toMatchRequestResponse(req))
	})
}

func handleRejectMatchRequest(service matchingService, l logger.Logger) http.Handler {
	type request struct {
		Reason string `json:"reason"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := mustUser(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		req, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		resolved, err := service.RejectMatchRequest(r.Context(), user, id, req.Reason)
		if err != nil {
			serviceError(w, l, err)
			return
		}

		render.JSON(w, toMatchRequestResponse(resolved))
	})
}

func handleCancelMatchRequest(service matchingService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := mustUser(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		resolved, err := service.CancelMatchRequest(r.Context(), user, id)
		if err != nil {
			serviceError(w, l, err)
			return
		}

		render.JSON(w, toMatchRequestResponse(resolved))
	})
}
