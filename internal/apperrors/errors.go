package apperrors

import (
	"errors"
)

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrStudentNotFound = errors.New("student not found")
	ErrTutorNotFound   = errors.New("tutor not found")

	ErrBalanceInsufficient = errors.New("insufficient balance")
	ErrAmountNotPositive   = errors.New("amount must be positive")
	ErrTransactionNotFound = errors.New("transaction not found")

	ErrRequestNotFound         = errors.New("match request not found")
	ErrRoomNotFound            = errors.New("chat room not found")
	ErrRequestAlreadyPending   = errors.New("pending match request already exists for this pair")
	ErrRequestAlreadyProcessed = errors.New("match request already processed")
	ErrMessageTooShort         = errors.New("message is too short")

	ErrLessonNotFound      = errors.New("lesson not found")
	ErrLessonStateConflict = errors.New("lesson is not in a permitted status for this operation")
	ErrRatingInvalid       = errors.New("rating must be between 1 and 5")

	ErrNotificationNotFound = errors.New("notification not found")

	ErrNotAllowed = errors.New("operation not allowed for this user")
)
