package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	NotificationMatchRequestReceived  = "match_request_received"
	NotificationMatchRequestApproved  = "match_request_approved"
	NotificationMatchRequestRejected  = "match_request_rejected"
	NotificationMatchRequestCancelled = "match_request_cancelled"
	NotificationMatchRequestExpired   = "match_request_expired"
	NotificationLessonApproved        = "lesson_approved"
	NotificationLessonPayment         = "lesson_payment"
	NotificationLessonCancelled       = "lesson_cancelled"
	NotificationLessonRejected        = "lesson_rejected"
	NotificationCoinsPurchased        = "coins_purchased"
)

const (
	RelatedTypeMatchRequest = "match_request"
	RelatedTypeLesson       = "lesson"
	RelatedTypeTransaction  = "transaction"
)

type Notification struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	Type        string
	Title       string
	Message     string
	IsRead      bool
	RelatedID   *uuid.UUID
	RelatedType *string
	CreatedAt   time.Time
}
