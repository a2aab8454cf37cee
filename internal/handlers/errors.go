package handlers

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/peertutor/coinledger/internal/apperrors"
	"github.com/peertutor/coinledger/internal/handlers/render"
	"github.com/peertutor/coinledger/internal/handlers/userctx"
	"github.com/peertutor/coinledger/internal/logger"
	"github.com/peertutor/coinledger/internal/models"
)

// serviceError maps service sentinels to HTTP responses. Anything unrecognized
// becomes a 500 with the detail kept in the log, not the body
func serviceError(w http.ResponseWriter, l logger.Logger, err error) {
	switch {
	case errors.Is(err, apperrors.ErrBalanceInsufficient):
		render.ServiceError(w, "Not enough coins", http.StatusPaymentRequired)
	case errors.Is(err, apperrors.ErrAmountNotPositive):
		render.ServiceError(w, "Amount must be positive", http.StatusBadRequest)
	case errors.Is(err, apperrors.ErrMessageTooShort):
		render.ServiceError(w, "Message is too short", http.StatusBadRequest)
	case errors.Is(err, apperrors.ErrRatingInvalid):
		render.ServiceError(w, "Rating must be between 1 and 5", http.StatusBadRequest)
	case errors.Is(err, apperrors.ErrUserNotFound),
		errors.Is(err, apperrors.ErrStudentNotFound),
		errors.Is(err, apperrors.ErrTutorNotFound),
		errors.Is(err, apperrors.ErrRequestNotFound),
		errors.Is(err, apperrors.ErrRoomNotFound),
		errors.Is(err, apperrors.ErrLessonNotFound),
		errors.Is(err, apperrors.ErrTransactionNotFound),
		errors.Is(err, apperrors.ErrNotificationNotFound):
		render.ServiceError(w, "Not found", http.StatusNotFound)
	case errors.Is(err, apperrors.ErrRequestAlreadyPending):
		render.ServiceError(w, "A pending request for this tutor already exists", http.StatusConflict)
	case errors.Is(err, apperrors.ErrRequestAlreadyProcessed):
		render.ServiceError(w, "Request is already processed", http.StatusConflict)
	case errors.Is(err, apperrors.ErrLessonStateConflict):
		render.ServiceError(w, "Lesson is not in a state that allows this", http.StatusConflict)
	case errors.Is(err, apperrors.ErrNotAllowed):
		render.ServiceError(w, "Operation not allowed for this user", http.StatusForbidden)
	default:
		l.Error("request failed", "error", err.Error())
		render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
	}
}

// mustUser pulls the authenticated user set by the auth middleware. Routes are
// registered behind it, so a miss is a wiring bug
func mustUser(w http.ResponseWriter, r *http.Request) (models.User, bool) {
	user, ok := userctx.FromContext(r.Context())
	if !ok {
		render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
	}
	return user, ok
}

// pathID parses the {id} path segment of the matched route
func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		render.ServiceError(w, "Invalid id", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}
