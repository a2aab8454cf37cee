package models

import (
	"time"

	"github.com/google/uuid"
)

// ChatRoom is created as a side effect of approving a match request.
// Message content and moderation live in the chat subsystem, not here.
type ChatRoom struct {
	ID             uuid.UUID
	TutorID        uuid.UUID
	StudentID      uuid.UUID
	MatchRequestID uuid.UUID
	CreatedAt      time.Time
}
