package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/peertutor/coinledger/internal/models"
)

// Storage aggregates every entity repository and allows running a group of
// repository calls in one database transaction.
type Storage interface {
	User() UserRepo
	Ledger() LedgerRepo
	MatchRequest() MatchRequestRepo
	Lesson() LessonRepo
	Notification() NotificationRepo
	ChatRoom() ChatRoomRepo

	// Run fn within a transaction. The storage passed to fn operates on that
	// transaction; returning an error rolls everything back.
	InTx(ctx context.Context, fn func(Storage) error) error
}

type UserRepo interface {
	// Create user. A zero balance row must be created alongside
	CreateUser(ctx context.Context, name string, role string) (models.User, error)

	// Get user by id
	// If user not found must return apperrors.ErrUserNotFound
	GetUser(ctx context.Context, id uuid.UUID) (models.User, error)
}

type ListTransactionsOpts struct {
	// 1-indexed page and page size
	Page  int
	Limit int
}

// TransactionPage is one page of ledger entries, newest first
type TransactionPage struct {
	Transactions []models.Transaction
	HasMore      bool
}

type LedgerRepo interface {
	// Apply transaction amount to the stored balance.
	// Must return apperrors.ErrBalanceInsufficient if the balance would go
	// negative and leave the balance untouched in that case.
	ApplyToBalance(ctx context.Context, userID uuid.UUID, delta int64) (models.Balance, error)

	GetBalance(ctx context.Context, userID uuid.UUID) (models.Balance, error)

	CreateTransaction(ctx context.Context, tr models.Transaction) (models.Transaction, error)

	ListTransactions(ctx context.Context, userID uuid.UUID, opts ListTransactionsOpts) (TransactionPage, error)

	// All ledger entries recorded against a matching request or lesson id,
	// oldest first. Used for escrow audits
	ListRelatedTransactions(ctx context.Context, relatedID uuid.UUID) ([]models.Transaction, error)

	// Flip status of the transaction related to the given entity.
	// Returns apperrors.ErrTransactionNotFound if no transaction with
	// relatedID in fromStatus exists
	SetRelatedTransactionStatus(ctx context.Context, relatedID uuid.UUID, fromStatus string, toStatus string) (models.Transaction, error)
}

type ListExpiredOpts struct {
	// Limit expiry scan to one party's requests; nil means all
	StudentID *uuid.UUID
	TutorID   *uuid.UUID

	// Max rows to return, 0 means no limit
	Limit int
}

type MatchRequestRepo interface {
	// Create request.
	// Must return apperrors.ErrRequestAlreadyPending if a pending request for
	// the same student/tutor pair already exists
	CreateRequest(ctx context.Context, req models.MatchRequest) (models.MatchRequest, error)

	GetRequest(ctx context.Context, id uuid.UUID) (models.MatchRequest, error)

	ListForStudent(ctx context.Context, studentID uuid.UUID) ([]models.MatchRequest, error)
	ListForTutor(ctx context.Context, tutorID uuid.UUID) ([]models.MatchRequest, error)

	// Pending requests whose expires_at has passed
	ListExpiredPending(ctx context.Context, before time.Time, opts ListExpiredOpts) ([]models.MatchRequest, error)

	// Transition a pending request into a terminal status.
	// Must return apperrors.ErrRequestAlreadyProcessed when the request exists
	// but is not pending, apperrors.ErrRequestNotFound when it does not exist
	ResolvePending(ctx context.Context, id uuid.UUID, status string) (models.MatchRequest, error)
}

// LessonChange carries the mutable part of a lesson transition. Nil fields
// keep their stored values
type LessonChange struct {
	Status       string
	EscrowStatus string

	ApprovedAt    *time.Time
	CompletedAt   *time.Time
	TutorFeedback *string
	StudentRating *int
}

type LessonRepo interface {
	CreateLesson(ctx context.Context, lesson models.Lesson) (models.Lesson, error)

	GetLesson(ctx context.Context, id uuid.UUID) (models.Lesson, error)

	// Lessons where the user participates as tutor or student, by schedule
	ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Lesson, error)

	// Transition lesson status, allowed only when current status is one of
	// fromStatuses. Must return apperrors.ErrLessonStateConflict otherwise,
	// apperrors.ErrLessonNotFound when the lesson does not exist
	Transition(ctx context.Context, id uuid.UUID, fromStatuses []string, change LessonChange) (models.Lesson, error)
}

type ListNotificationsOpts struct {
	// Max rows, 0 means no limit
	Limit int

	// Oldest first instead of the default newest first
	OldestFirst bool
}

type NotificationRepo interface {
	CreateNotification(ctx context.Context, n models.Notification) (models.Notification, error)

	ListForUser(ctx context.Context, userID uuid.UUID, opts ListNotificationsOpts) ([]models.Notification, error)

	// Mark single notification read, scoped to its recipient.
	// Must return apperrors.ErrNotificationNotFound for an unknown id or a
	// notification that belongs to someone else
	MarkRead(ctx context.Context, id uuid.UUID, userID uuid.UUID) (models.Notification, error)

	// Mark everything for the user read, returns number of rows updated
	MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error)

	UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error)
}

type ChatRoomRepo interface {
	// Create chat room for an approved match request
	CreateRoom(ctx context.Context, tutorID uuid.UUID, studentID uuid.UUID, matchRequestID uuid.UUID) (models.ChatRoom, error)

	GetRoomByRequest(ctx context.Context, matchRequestID uuid.UUID) (models.ChatRoom, error)
}
