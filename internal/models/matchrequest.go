package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	MatchRequestPending   = "pending"
	MatchRequestApproved  = "approved"
	MatchRequestRejected  = "rejected"
	MatchRequestCancelled = "cancelled"
	MatchRequestExpired   = "expired"
)

// MatchRequest is a student's paid request to connect with a tutor.
// The flat coin cost is held at creation and refunded on any terminal
// state except approved.
type MatchRequest struct {
	ID           uuid.UUID
	StudentID    uuid.UUID
	TutorID      uuid.UUID
	Message      string
	ScheduleNote *string
	Status       string
	CoinCost     int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
	ExpiresAt    time.Time
}
