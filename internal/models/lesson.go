package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	LessonPending    = "pending"
	LessonApproved   = "approved"
	LessonScheduled  = "scheduled"
	LessonInProgress = "in_progress"
	LessonCompleted  = "completed"
	LessonCancelled  = "cancelled"
	LessonRejected   = "rejected"
)

// Escrow status tracks fund custody independently from the lesson status.
const (
	EscrowNone     = "none"
	EscrowReserved = "reserved"
	EscrowEscrowed = "escrowed"
	EscrowReleased = "released"
	EscrowRefunded = "refunded"
)

type Lesson struct {
	ID              uuid.UUID
	TutorID         uuid.UUID
	StudentID       uuid.UUID
	Subject         string
	ScheduledAt     time.Time
	DurationMinutes int
	CoinCost        int64
	Status          string
	EscrowStatus    string
	LessonNotes     *string
	TutorFeedback   *string
	StudentRating   *int
	ApprovedAt      *time.Time
	CompletedAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
