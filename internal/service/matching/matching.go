package matching

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/peertutor/coinledger/internal/apperrors"
	"github.com/peertutor/coinledger/internal/logger"
	"github.com/peertutor/coinledger/internal/models"
	"github.com/peertutor/coinledger/internal/repository"
	"github.com/peertutor/coinledger/internal/service/ledger"
)

const (
	// Flat hold per matching request
	DefaultCoinCost = 300

	// Pending requests expire after a week without a tutor response
	DefaultTTL = 7 * 24 * time.Hour

	minMessageLength = 20
)

type notifier interface {
	MatchRequestReceived(ctx context.Context, req models.MatchRequest)
	MatchRequestApproved(ctx context.Context, req models.MatchRequest)
	MatchRequestRejected(ctx context.Context, req models.MatchRequest, reason string)
	MatchRequestCancelled(ctx context.Context, req models.MatchRequest)
	MatchRequestExpired(ctx context.Context, req models.MatchRequest)
}

type Config struct {
	// CoinCost and TTL fall back to package defaults when zero
	CoinCost int64
	TTL      time.Duration
}

// Service owns the paid matching request lifecycle: a flat-cost hold at
// creation, captured on approval, refunded on any other terminal state.
type Service struct {
	cost int64
	ttl  time.Duration

	storage  repository.Storage
	notifier notifier
	logger   logger.Logger
}

func NewService(cfg Config, storage repository.Storage, notifier notifier, l logger.Logger) *Service {
	if cfg.CoinCost == 0 {
		cfg.CoinCost = DefaultCoinCost
	}
	if cfg.TTL == 0 {
		cfg.TTL = DefaultTTL
	}
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	return &Service{
		cost:     cfg.CoinCost,
		ttl:      cfg.TTL,
		storage:  storage,
		notifier: notifier,
		logger:   l,
	}
}

// SendMatchRequest places the flat-cost hold and creates a pending request.
// The hold and the request row commit together; any failure leaves the
// student's balance untouched
func (s *Service) SendMatchRequest(ctx context.Context, student models.User, tutorID uuid.UUID, message string, scheduleNote *string) (models.MatchRequest, error) {
	var req models.MatchRequest

	if student.Role != models.RoleStudent {
		return req, apperrors.ErrNotAllowed
	}

	if utf8.RuneCountInString(strings.TrimSpace(message)) < minMessageLength {
		return req, apperrors.ErrMessageTooShort
	}

	tutor, err := s.storage.User().GetUser(ctx, tutorID)
	if err != nil || tutor.Role != models.RoleTutor {
		return req, apperrors.ErrTutorNotFound
	}

	now := time.Now()
	req = models.MatchRequest{
		ID:           uuid.New(),
		StudentID:    student.ID,
		TutorID:      tutor.ID,
		Message:      message,
		ScheduleNote: scheduleNote,
		Status:       models.MatchRequestPending,
		CoinCost:     s.cost,
		CreatedAt:    now,
		UpdatedAt:    now,
		ExpiresAt:    now.Add(s.ttl),
	}

	err = s.storage.InTx(ctx, func(txStorage repository.Storage) error {
		_, err := ledger.Apply(ctx, txStorage, models.Transaction{
			UserID:      student.ID,
			Amount:      -s.cost,
			Kind:        models.TransactionKindMatching,
			Description: fmt.Sprintf("hold for matching request to %s", tutor.Name),
			RelatedID:   &req.ID,
		})
		if err != nil {
			return err
		}

		req, err = txStorage.MatchRequest().CreateRequest(ctx, req)
		return err
	})
	if err != nil {
		return req, err
	}

	s.notifier.MatchRequestReceived(ctx, req)

	return req, nil
}

// ApproveMatchRequest captures the hold and opens a chat room.
// Re-approving a resolved request returns apperrors.ErrRequestAlreadyProcessed
// without any side effects
func (s *Service) ApproveMatchRequest(ctx context.Context, tutor models.User, id uuid.UUID) (models.MatchRequest, error) {
	req, err := s.storage.MatchRequest().GetRequest(ctx, id)
	if err != nil {
		return req, err
	}
	if req.TutorID != tutor.ID {
		return req, apperrors.ErrNotAllowed
	}

	err = s.storage.InTx(ctx, func(txStorage repository.Storage) error {
		req, err = txStorage.MatchRequest().ResolvePending(ctx, id, models.MatchRequestApproved)
		if err != nil {
			return err
		}

		// The chat subsystem owns message content; only the room record is ours
		_, err = txStorage.ChatRoom().CreateRoom(ctx, req.TutorID, req.StudentID, req.ID)
		return err
	})
	if err != nil {
		return req, err
	}

	s.notifier.MatchRequestApproved(ctx, req)

	return req, nil
}

// RejectMatchRequest refunds the hold and resolves the request
func (s *Service) RejectMatchRequest(ctx context.Context, tutor models.User, id uuid.UUID, reason string) (models.MatchRequest, error) {
	req, err := s.storage.MatchRequest().GetRequest(ctx, id)
	if err != nil {
		return req, err
	}
	if req.TutorID != tutor.ID {
		return req, apperrors.ErrNotAllowed
	}

	req, err = s.resolveWithRefund(ctx, id, models.MatchRequestRejected)
	if err != nil {
		return req, err
	}

	s.notifier.MatchRequestRejected(ctx, req, reason)

	return req, nil
}

// CancelMatchRequest is student initiated and refunds the hold
func (s *Service) CancelMatchRequest(ctx context.Context, student models.User, id uuid.UUID) (models.MatchRequest, error) {
	req, err := s.storage.MatchRequest().GetRequest(ctx, id)
	if err != nil {
		return req, err
	}
	if req.StudentID != student.ID {
		return req, apperrors.ErrNotAllowed
	}

	req, err = s.resolveWithRefund(ctx, id, models.MatchRequestCancelled)
	if err != nil {
		return req, err
	}

	s.notifier.MatchRequestCancelled(ctx, req)

	return req, nil
}

// ExpireRequest resolves a pending request past its deadline and refunds the
// student. Used by both the lazy read paths and the background sweeper, so
// losing the race to the other path is normal and surfaces as
// apperrors.ErrRequestAlreadyProcessed
func (s *Service) ExpireRequest(ctx context.Context, req models.MatchRequest) error {
	resolved, err := s.resolveWithRefund(ctx, req.ID, models.MatchRequestExpired)
	if err != nil {
		return err
	}

	s.notifier.MatchRequestExpired(ctx, resolved)

	return nil
}

// ListExpired returns pending requests whose deadline has passed
func (s *Service) ListExpired(ctx context.Context, limit int) ([]models.MatchRequest, error) {
	return s.storage.MatchRequest().ListExpiredPending(ctx, time.Now(), repository.ListExpiredOpts{Limit: limit})
}

// ListStudentRequests returns the student's requests, newest first.
// Pending requests past their deadline are expired (and refunded) first, so
// callers never observe a stale pending request
func (s *Service) ListStudentRequests(ctx context.Context, student models.User) ([]models.MatchRequest, error) {
	s.expireForParty(ctx, repository.ListExpiredOpts{StudentID: &student.ID})
	return s.storage.MatchRequest().ListForStudent(ctx, student.ID)
}

// ListTutorRequests mirrors ListStudentRequests for the tutor side
func (s *Service) ListTutorRequests(ctx context.Context, tutor models.User) ([]models.MatchRequest, error) {
	s.expireForParty(ctx, repository.ListExpiredOpts{TutorID: &tutor.ID})
	return s.storage.MatchRequest().ListForTutor(ctx, tutor.ID)
}

func (s *Service) expireForParty(ctx context.Context, opts repository.ListExpiredOpts) {
	expired, err := s.storage.MatchRequest().ListExpiredPending(ctx, time.Now(), opts)
	if err != nil {
		s.logger.Error("Failed to scan expired match requests", "error", err)
		return
	}

	for _, req := range expired {
		err := s.ExpireRequest(ctx, req)
		if err != nil && !errors.Is(err, apperrors.ErrRequestAlreadyProcessed) {
			s.logger.Error("Failed to expire match request", "request_id", req.ID, "error", err)
		}
	}
}

// resolveWithRefund flips a pending request into a refund-terminal status and
// credits the exact original hold back, in one transaction
func (s *Service) resolveWithRefund(ctx context.Context, id uuid.UUID, status string) (models.MatchRequest, error) {
	var req models.MatchRequest

	err := s.storage.InTx(ctx, func(txStorage repository.Storage) error {
		var err error
		req, err = txStorage.MatchRequest().ResolvePending(ctx, id, status)
		if err != nil {
			return err
		}

		_, err = ledger.Apply(ctx, txStorage, models.Transaction{
			UserID:      req.StudentID,
			Amount:      req.CoinCost,
			Kind:        models.TransactionKindRefund,
			Description: fmt.Sprintf("matching request %s refund", status),
			RelatedID:   &req.ID,
		})
		return err
	})

	return req, err
}
