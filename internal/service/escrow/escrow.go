package escrow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/peertutor/coinledger/internal/apperrors"
	"github.com/peertutor/coinledger/internal/logger"
	"github.com/peertutor/coinledger/internal/models"
	"github.com/peertutor/coinledger/internal/repository"
	"github.com/peertutor/coinledger/internal/service/ledger"
)

// DefaultFeeRate is the platform's cut of a completed lesson.
// Fixed at deployment time, never derived per lesson
var DefaultFeeRate = decimal.NewFromFloat(0.15)

type notifier interface {
	LessonApproved(ctx context.Context, lesson models.Lesson)
	LessonPaymentReleased(ctx context.Context, lesson models.Lesson, amount int64)
	LessonCancelled(ctx context.Context, lesson models.Lesson, reason string)
	LessonRejected(ctx context.Context, lesson models.Lesson, reason string)
}

type Config struct {
	// FeeRate falls back to DefaultFeeRate when zero
	FeeRate decimal.Decimal
}

// Service owns the paid lesson lifecycle: a variable-cost hold at booking,
// confirmation into escrow at approval, a fee split on completion and a full
// refund on rejection or cancellation.
type Service struct {
	feeRate decimal.Decimal

	storage  repository.Storage
	notifier notifier
	logger   logger.Logger
}

func NewService(cfg Config, storage repository.Storage, notifier notifier, l logger.Logger) *Service {
	if cfg.FeeRate.IsZero() {
		cfg.FeeRate = DefaultFeeRate
	}
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	return &Service{
		feeRate:  cfg.FeeRate,
		storage:  storage,
		notifier: notifier,
		logger:   l,
	}
}

type BookLessonParams struct {
	TutorID         uuid.UUID
	Subject         string
	ScheduledAt     time.Time
	DurationMinutes int
	CoinCost        int64
	LessonNotes     *string
}

// BookLesson debits the student immediately and records the hold as a pending
// transaction: funds are held but not yet confirmed by the tutor
func (s *Service) BookLesson(ctx context.Context, student models.User, p BookLessonParams) (models.Lesson, error) {
	var lesson models.Lesson

	if student.Role != models.RoleStudent {
		return lesson, apperrors.ErrNotAllowed
	}
	if p.CoinCost <= 0 || p.DurationMinutes <= 0 {
		return lesson, apperrors.ErrAmountNotPositive
	}

	tutor, err := s.storage.User().GetUser(ctx, p.TutorID)
	if err != nil || tutor.Role != models.RoleTutor {
		return lesson, apperrors.ErrTutorNotFound
	}

	now := time.Now()
	lesson = models.Lesson{
		ID:              uuid.New(),
		TutorID:         tutor.ID,
		StudentID:       student.ID,
		Subject:         p.Subject,
		ScheduledAt:     p.ScheduledAt,
		DurationMinutes: p.DurationMinutes,
		CoinCost:        p.CoinCost,
		Status:          models.LessonPending,
		EscrowStatus:    models.EscrowReserved,
		LessonNotes:     p.LessonNotes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err = s.storage.InTx(ctx, func(txStorage repository.Storage) error {
		_, err := ledger.Apply(ctx, txStorage, models.Transaction{
			UserID:      student.ID,
			Amount:      -p.CoinCost,
			Kind:        models.TransactionKindSpend,
			Description: fmt.Sprintf("hold for %s lesson with %s", p.Subject, tutor.Name),
			RelatedID:   &lesson.ID,
			Status:      models.TransactionStatusPending,
		})
		if err != nil {
			return err
		}

		lesson, err = txStorage.Lesson().CreateLesson(ctx, lesson)
		return err
	})

	return lesson, err
}

// ApproveLesson confirms the hold: the pending debit becomes a completed one
// and the funds are considered escrowed
func (s *Service) ApproveLesson(ctx context.Context, tutor models.User, lessonID uuid.UUID) (models.Lesson, error) {
	lesson, err := s.storage.Lesson().GetLesson(ctx, lessonID)
	if err != nil {
		return lesson, err
	}
	if lesson.TutorID != tutor.ID {
		return lesson, apperrors.ErrNotAllowed
	}

	now := time.Now()
	err = s.storage.InTx(ctx, func(txStorage repository.Storage) error {
		lesson, err = txStorage.Lesson().Transition(ctx, lessonID,
			[]string{models.LessonPending},
			repository.LessonChange{
				Status:       models.LessonApproved,
				EscrowStatus: models.EscrowEscrowed,
				ApprovedAt:   &now,
			},
		)
		if err != nil {
			return err
		}

		_, err = txStorage.Ledger().SetRelatedTransactionStatus(ctx, lessonID,
			models.TransactionStatusPending, models.TransactionStatusCompleted)
		return err
	})
	if err != nil {
		return lesson, err
	}

	s.notifier.LessonApproved(ctx, lesson)

	return lesson, nil
}

// StartLesson moves an approved lesson into progress; escrow custody is unchanged
func (s *Service) StartLesson(ctx context.Context, tutor models.User, lessonID uuid.UUID) (models.Lesson, error) {
	lesson, err := s.storage.Lesson().GetLesson(ctx, lessonID)
	if err != nil {
		return lesson, err
	}
	if lesson.TutorID != tutor.ID {
		return lesson, apperrors.ErrNotAllowed
	}

	return s.storage.Lesson().Transition(ctx, lessonID,
		[]string{models.LessonApproved},
		repository.LessonChange{
			Status:       models.LessonInProgress,
			EscrowStatus: models.EscrowEscrowed,
		},
	)
}

// CompleteLesson releases the escrowed funds: the tutor is paid the lesson
// cost minus the platform fee, the fee lands on the platform account, and
// tutor_credit + platform_fee always equals the original cost
func (s *Service) CompleteLesson(ctx context.Context, tutor models.User, lessonID uuid.UUID, feedback *string, rating *int) (models.Lesson, error) {
	lesson, err := s.storage.Lesson().GetLesson(ctx, lessonID)
	if err != nil {
		return lesson, err
	}
	if lesson.TutorID != tutor.ID {
		return lesson, apperrors.ErrNotAllowed
	}

	if rating != nil && (*rating < 1 || *rating > 5) {
		return lesson, apperrors.ErrRatingInvalid
	}

	fee := decimal.NewFromInt(lesson.CoinCost).Mul(s.feeRate).Floor().IntPart()
	payout := lesson.CoinCost - fee

	now := time.Now()
	err = s.storage.InTx(ctx, func(txStorage repository.Storage) error {
		lesson, err = txStorage.Lesson().Transition(ctx, lessonID,
			[]string{models.LessonApproved, models.LessonInProgress},
			repository.LessonChange{
				Status:        models.LessonCompleted,
				EscrowStatus:  models.EscrowReleased,
				CompletedAt:   &now,
				TutorFeedback: feedback,
				StudentRating: rating,
			},
		)
		if err != nil {
			return err
		}

		_, err = ledger.Apply(ctx, txStorage, models.Transaction{
			UserID:      lesson.TutorID,
			Amount:      payout,
			Kind:        models.TransactionKindLessonPayment,
			Description: fmt.Sprintf("payout for %s lesson", lesson.Subject),
			RelatedID:   &lesson.ID,
		})
		if err != nil {
			return err
		}

		if fee > 0 {
			_, err = ledger.Apply(ctx, txStorage, models.Transaction{
				UserID:      models.PlatformAccountID,
				Amount:      fee,
				Kind:        models.TransactionKindLessonPayment,
				Description: fmt.Sprintf("platform fee for %s lesson", lesson.Subject),
				RelatedID:   &lesson.ID,
			})
		}
		return err
	})
	if err != nil {
		return lesson, err
	}

	s.notifier.LessonPaymentReleased(ctx, lesson, payout)

	return lesson, nil
}

// RejectLesson is tutor initiated and only possible before approval
func (s *Service) RejectLesson(ctx context.Context, tutor models.User, lessonID uuid.UUID, reason string) (models.Lesson, error) {
	lesson, err := s.storage.Lesson().GetLesson(ctx, lessonID)
	if err != nil {
		return lesson, err
	}
	if lesson.TutorID != tutor.ID {
		return lesson, apperrors.ErrNotAllowed
	}

	lesson, err = s.refund(ctx, lessonID, models.LessonRejected, []string{models.LessonPending})
	if err != nil {
		return lesson, err
	}

	s.notifier.LessonRejected(ctx, lesson, reason)

	return lesson, nil
}

// CancelLesson is student initiated and possible until the lesson starts
func (s *Service) CancelLesson(ctx context.Context, student models.User, lessonID uuid.UUID, reason string) (models.Lesson, error) {
	lesson, err := s.storage.Lesson().GetLesson(ctx, lessonID)
	if err != nil {
		return lesson, err
	}
	if lesson.StudentID != student.ID {
		return lesson, apperrors.ErrNotAllowed
	}

	lesson, err = s.refund(ctx, lessonID, models.LessonCancelled,
		[]string{models.LessonPending, models.LessonApproved})
	if err != nil {
		return lesson, err
	}

	s.notifier.LessonCancelled(ctx, lesson, reason)

	return lesson, nil
}

// refund returns the full lesson cost to the student and voids the original
// hold if it is still pending (a confirmed hold stays in the audit trail)
func (s *Service) refund(ctx context.Context, lessonID uuid.UUID, status string, fromStatuses []string) (models.Lesson, error) {
	var lesson models.Lesson

	err := s.storage.InTx(ctx, func(txStorage repository.Storage) error {
		var err error
		lesson, err = txStorage.Lesson().Transition(ctx, lessonID, fromStatuses,
			repository.LessonChange{
				Status:       status,
				EscrowStatus: models.EscrowRefunded,
			},
		)
		if err != nil {
			return err
		}

		_, err = txStorage.Ledger().SetRelatedTransactionStatus(ctx, lessonID,
			models.TransactionStatusPending, models.TransactionStatusCancelled)
		if err != nil && !errors.Is(err, apperrors.ErrTransactionNotFound) {
			return err
		}

		_, err = ledger.Apply(ctx, txStorage, models.Transaction{
			UserID:      lesson.StudentID,
			Amount:      lesson.CoinCost,
			Kind:        models.TransactionKindLessonRefund,
			Description: fmt.Sprintf("refund for %s lesson", lesson.Subject),
			RelatedID:   &lesson.ID,
		})
		return err
	})

	return lesson, err
}

// EscrowStatus is a read-only projection of a lesson and every ledger entry
// recorded against it, used for audits and debugging
type EscrowStatus struct {
	Lesson       models.Lesson
	Transactions []models.Transaction
}

func (s *Service) GetEscrowStatus(ctx context.Context, actor models.User, lessonID uuid.UUID) (EscrowStatus, error) {
	var status EscrowStatus

	lesson, err := s.storage.Lesson().GetLesson(ctx, lessonID)
	if err != nil {
		return status, err
	}
	if lesson.TutorID != actor.ID && lesson.StudentID != actor.ID {
		return status, apperrors.ErrNotAllowed
	}

	transactions, err := s.storage.Ledger().ListRelatedTransactions(ctx, lessonID)
	if err != nil {
		return status, err
	}

	status.Lesson = lesson
	status.Transactions = transactions

	return status, nil
}

// ListLessons returns every lesson the user participates in, by schedule
func (s *Service) ListLessons(ctx context.Context, user models.User) ([]models.Lesson, error) {
	return s.storage.Lesson().ListForUser(ctx, user.ID)
}
