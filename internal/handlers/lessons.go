package handlers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/peertutor/coinledger/internal/handlers/render"
	"github.com/peertutor/coinledger/internal/logger"
	"github.com/peertutor/coinledger/internal/models"
	"github.com/peertutor/coinledger/internal/service/escrow"
)

type lessonResponse struct {
	ID              uuid.UUID  `json:"id"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	StudentID       uuid.UUID  `json:"student_id"`
	TutorID         uuid.UUID  `json:"tutor_id"`
	Subject         string     `json:"subject"`
	ScheduledAt     time.Time  `json:"scheduled_at"`
	DurationMinutes int        `json:"duration_minutes"`
	CoinCost        int64      `json:"coin_cost"`
	Status          string     `json:"status"`
	EscrowStatus    string     `json:"escrow_status"`
	LessonNotes     *string    `json:"lesson_notes,omitempty"`
	TutorFeedback   *string    `json:"tutor_feedback,omitempty"`
	StudentRating   *int       `json:"student_rating,omitempty"`
	ApprovedAt      *time.Time `json:"approved_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

func toLessonResponse(lesson models.Lesson) lessonResponse {
	return lessonResponse{
		ID:              lesson.ID,
		CreatedAt:       lesson.CreatedAt,
		UpdatedAt:       lesson.UpdatedAt,
		StudentID:       lesson.StudentID,
		TutorID:         lesson.TutorID,
		Subject:         lesson.Subject,
		ScheduledAt:     lesson.ScheduledAt,
		DurationMinutes: lesson.DurationMinutes,
		CoinCost:        lesson.CoinCost,
		Status:          lesson.Status,
		EscrowStatus:    lesson.EscrowStatus,
		LessonNotes:     lesson.LessonNotes,
		TutorFeedback:   lesson.TutorFeedback,
		StudentRating:   lesson.StudentRating,
		ApprovedAt:      lesson.ApprovedAt,
		CompletedAt:     lesson.CompletedAt,
	}
}

func handleBookLesson(service escrowService, l logger.Logger) http.Handler {
	type request struct {
		TutorID         uuid.UUID `json:"tutor_id" validate:"required"`
		Subject         string    `json:"subject" validate:"required"`
		ScheduledAt     time.Time `json:"scheduled_at" validate:"required"`
		DurationMinutes int       `json:"duration_minutes" validate:"required,gt=0"`
		CoinCost        int64     `json:"coin_cost" validate:"required,gt=0"`
		LessonNotes     *string   `json:"lesson_notes"`
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

		lesson, err := service.BookLesson(r.Context(), user, escrow.BookLessonParams{
			TutorID:         req.TutorID,
			Subject:         req.Subject,
			ScheduledAt:     req.ScheduledAt,
			DurationMinutes: req.DurationMinutes,
			CoinCost:        req.CoinCost,
			LessonNotes:     req.LessonNotes,
		})
		if err != nil {
			serviceError(w, l, err)
			return
		}

		render.JSONWithStatus(w, toLessonResponse(lesson), http.StatusCreated)
	})
}

func handleListLessons(service escrowService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := mustUser(w, r)
		if !ok {
			return
		}

		lessons, err := service.ListLessons(r.Context(), user)
		if err != nil {
			serviceError(w, l, err)
			return
		}

		resp := make([]lessonResponse, 0, len(lessons))
		for _, lesson := range lessons {
			resp = append(resp, toLessonResponse(lesson))
		}

		render.JSON(w, resp)
	})
}

// lessonAction factors the shared shape of the id-only lesson transitions
func lessonAction(
	l logger.Logger,
	action func(r *http.Request, user models.User, id uuid.UUID) (models.Lesson, error),
) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := mustUser(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		lesson, err := action(r, user, id)
		if err != nil {
			serviceError(w, l, err)
			return
		}

		render.JSON(w, toLessonResponse(lesson))
	})
}

func handleApproveLesson(service escrowService, l logger.Logger) http.Handler {
	return lessonAction(l, func(r *http.Request, user models.User, id uuid.UUID) (models.Lesson, error) {
		return service.ApproveLesson(r.Context(), user, id)
	})
}

func handleStartLesson(service escrowService, l logger.Logger) http.Handler {
	return lessonAction(l, func(r *http.Request, user models.User, id uuid.UUID) (models.Lesson, error) {
		return service.StartLesson(r.Context(), user, id)
	})
}

func handleCompleteLesson(service escrowService, l logger.Logger) http.Handler {
	type request struct {
		TutorFeedback *string `json:"tutor_feedback"`
		StudentRating *int    `json:"student_rating"`
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

		lesson, err := service.CompleteLesson(r.Context(), user, id, req.TutorFeedback, req.StudentRating)
		if err != nil {
			serviceError(w, l, err)
			return
		}

		render.JSON(w, toLessonResponse(lesson))
	})
}

func handleCancelLesson(service escrowService, l logger.Logger) http.Handler {
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

		lesson, err := service.CancelLesson(r.Context(), user, id, req.Reason)
		if err != nil {
			serviceError(w, l, err)
			return
		}

		render.JSON(w, toLessonResponse(lesson))
	})
}

func handleRejectLesson(service escrowService, l logger.Logger) http.Handler {
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

		lesson, err := service.RejectLesson(r.Context(), user, id, req.Reason)
		if err != nil {
			serviceError(w, l, err)
			return
		}

		render.JSON(w, toLessonResponse(lesson))
	})
}

func handleEscrowStatus(service escrowService, l logger.Logger) http.Handler {
	type response struct {
		Lesson       lessonResponse        `json:"lesson"`
		Transactions []transactionResponse `json:"transactions"`
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

		status, err := service.GetEscrowStatus(r.Context(), user, id)
		if err != nil {
			serviceError(w, l, err)
			return
		}

		resp := response{
			Lesson:       toLessonResponse(status.Lesson),
			Transactions: make([]transactionResponse, 0, len(status.Transactions)),
		}
		for _, tr := range status.Transactions {
			resp.Transactions = append(resp.Transactions, toTransactionResponse(tr))
		}

		render.JSON(w, resp)
	})
}
