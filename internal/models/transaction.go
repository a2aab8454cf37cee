package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	TransactionKindPurchase      = "purchase"
	TransactionKindSpend         = "spend"
	TransactionKindRefund        = "refund"
	TransactionKindMatching      = "matching"
	TransactionKindLessonPayment = "lesson_payment"
	TransactionKindLessonRefund  = "lesson_refund"
)

const (
	TransactionStatusPending   = "pending"
	TransactionStatusCompleted = "completed"
	TransactionStatusCancelled = "cancelled"
)

type Balance struct {
	ID      uuid.UUID
	UserID  uuid.UUID
	Current int64
}

// Transaction is one immutable ledger entry. Amount sign marks the direction:
// positive credits the user, negative debits.
// Only Status may change after creation (pending holds get completed or cancelled).
type Transaction struct {
	ID          uuid.UUID
	CreatedAt   time.Time
	UserID      uuid.UUID
	Amount      int64
	Kind        string
	Description string
	RelatedID   *uuid.UUID
	Status      string
}
