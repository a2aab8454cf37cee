package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/peertutor/coinledger/internal/logger"
	"github.com/peertutor/coinledger/internal/metrics"
	"github.com/peertutor/coinledger/internal/models"
	"github.com/peertutor/coinledger/internal/repository"
)

const defaultListLimit = 50

// Service records discrete domain events keyed by recipient user.
// The typed emitters below are best-effort: a failed write is logged and
// never fails the domain operation that triggered it.
type Service struct {
	storage repository.Storage
	logger  logger.Logger
}

func NewService(storage repository.Storage, l logger.Logger) *Service {
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	return &Service{
		storage: storage,
		logger:  l,
	}
}

func (s *Service) Create(ctx context.Context, userID uuid.UUID, ntype string, title string, message string, relatedID *uuid.UUID, relatedType *string) (models.Notification, error) {
	n := models.Notification{
		ID:          uuid.New(),
		UserID:      userID,
		Type:        ntype,
		Title:       title,
		Message:     message,
		RelatedID:   relatedID,
		RelatedType: relatedType,
		CreatedAt:   time.Now(),
	}

	n, err := s.storage.Notification().CreateNotification(ctx, n)
	if err != nil {
		return n, fmt.Errorf("can't create notification: %w", err)
	}

	metrics.NotificationsDispatched.Inc()

	return n, nil
}

func (s *Service) List(ctx context.Context, userID uuid.UUID, limit int) ([]models.Notification, error) {
	if limit < 1 {
		limit = defaultListLimit
	}

	return s.storage.Notification().ListForUser(ctx, userID, repository.ListNotificationsOpts{Limit: limit})
}

func (s *Service) MarkRead(ctx context.Context, userID uuid.UUID, id uuid.UUID) (models.Notification, error) {
	return s.storage.Notification().MarkRead(ctx, id, userID)
}

func (s *Service) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.storage.Notification().MarkAllRead(ctx, userID)
}

func (s *Service) UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.storage.Notification().UnreadCount(ctx, userID)
}

// userName fetches display name for notification copy, falling back when the
// profile read fails (copy is nice to have, delivery matters more)
func (s *Service) userName(ctx context.Context, id uuid.UUID, fallback string) string {
	user, err := s.storage.User().GetUser(ctx, id)
	if err != nil {
		s.logger.Warn("Failed to resolve user name for notification", "user_id", id, "error", err)
		return fallback
	}

	return user.Name
}

// notify is the best-effort write behind every emitter
func (s *Service) notify(ctx context.Context, userID uuid.UUID, ntype string, title string, message string, relatedID uuid.UUID, relatedType string) {
	related := relatedID
	rtype := relatedType

	_, err := s.Create(ctx, userID, ntype, title, message, &related, &rtype)
	if err != nil {
		s.logger.Warn("Failed to dispatch notification",
			"type", ntype,
			"user_id", userID,
			"error", err,
		)
	}
}

func (s *Service) MatchRequestReceived(ctx context.Context, req models.MatchRequest) {
	student := s.userName(ctx, req.StudentID, "A student")
	s.notify(ctx, req.TutorID,
		models.NotificationMatchRequestReceived,
		"New matching request",
		fmt.Sprintf("%s sent you a matching request.", student),
		req.ID, models.RelatedTypeMatchRequest,
	)
}

func (s *Service) MatchRequestApproved(ctx context.Context, req models.MatchRequest) {
	tutor := s.userName(ctx, req.TutorID, "The tutor")
	s.notify(ctx, req.StudentID,
		models.NotificationMatchRequestApproved,
		"Matching request approved",
		fmt.Sprintf("%s approved your matching request. A chat room is ready.", tutor),
		req.ID, models.RelatedTypeMatchRequest,
	)
}

func (s *Service) MatchRequestRejected(ctx context.Context, req models.MatchRequest, reason string) {
	tutor := s.userName(ctx, req.TutorID, "The tutor")

	message := fmt.Sprintf("%s declined your matching request. %d coins were refunded.", tutor, req.CoinCost)
	if reason != "" {
		message = fmt.Sprintf("%s Reason: %s", message, reason)
	}

	s.notify(ctx, req.StudentID,
		models.NotificationMatchRequestRejected,
		"Matching request declined",
		message,
		req.ID, models.RelatedTypeMatchRequest,
	)
	s.notify(ctx, req.TutorID,
		models.NotificationMatchRequestRejected,
		"Matching request declined",
		"You declined the matching request. The student was refunded.",
		req.ID, models.RelatedTypeMatchRequest,
	)
}

func (s *Service) MatchRequestCancelled(ctx context.Context, req models.MatchRequest) {
	student := s.userName(ctx, req.StudentID, "The student")

	s.notify(ctx, req.TutorID,
		models.NotificationMatchRequestCancelled,
		"Matching request cancelled",
		fmt.Sprintf("%s cancelled their matching request.", student),
		req.ID, models.RelatedTypeMatchRequest,
	)
	s.notify(ctx, req.StudentID,
		models.NotificationMatchRequestCancelled,
		"Matching request cancelled",
		fmt.Sprintf("Your matching request was cancelled. %d coins were refunded.", req.CoinCost),
		req.ID, models.RelatedTypeMatchRequest,
	)
}

func (s *Service) MatchRequestExpired(ctx context.Context, req models.MatchRequest) {
	s.notify(ctx, req.StudentID,
		models.NotificationMatchRequestExpired,
		"Matching request expired",
		fmt.Sprintf("Your matching request expired without a response. %d coins were refunded.", req.CoinCost),
		req.ID, models.RelatedTypeMatchRequest,
	)
}

func (s *Service) LessonApproved(ctx context.Context, lesson models.Lesson) {
	tutor := s.userName(ctx, lesson.TutorID, "The tutor")
	s.notify(ctx, lesson.StudentID,
		models.NotificationLessonApproved,
		"Lesson approved",
		fmt.Sprintf("%s approved your %s lesson. Your coins are held in escrow.", tutor, lesson.Subject),
		lesson.ID, models.RelatedTypeLesson,
	)
}

func (s *Service) LessonPaymentReleased(ctx context.Context, lesson models.Lesson, amount int64) {
	s.notify(ctx, lesson.TutorID,
		models.NotificationLessonPayment,
		"Lesson payment received",
		fmt.Sprintf("You received %d coins for the completed %s lesson.", amount, lesson.Subject),
		lesson.ID, models.RelatedTypeLesson,
	)
}

func (s *Service) LessonCancelled(ctx context.Context, lesson models.Lesson, reason string) {
	student := s.userName(ctx, lesson.StudentID, "The student")

	message := fmt.Sprintf("%s cancelled the %s lesson.", student, lesson.Subject)
	if reason != "" {
		message = fmt.Sprintf("%s Reason: %s", message, reason)
	}

	s.notify(ctx, lesson.TutorID,
		models.NotificationLessonCancelled,
		"Lesson cancelled",
		message,
		lesson.ID, models.RelatedTypeLesson,
	)
}

func (s *Service) LessonRejected(ctx context.Context, lesson models.Lesson, reason string) {
	tutor := s.userName(ctx, lesson.TutorID, "The tutor")

	message := fmt.Sprintf("%s declined the %s lesson. %d coins were refunded.", tutor, lesson.Subject, lesson.CoinCost)
	if reason != "" {
		message = fmt.Sprintf("%s Reason: %s", message, reason)
	}

	s.notify(ctx, lesson.StudentID,
		models.NotificationLessonRejected,
		"Lesson declined",
		message,
		lesson.ID, models.RelatedTypeLesson,
	)
}

func (s *Service) CoinsPurchased(ctx context.Context, tr models.Transaction) {
	s.notify(ctx, tr.UserID,
		models.NotificationCoinsPurchased,
		"Coins purchased",
		fmt.Sprintf("%d coins were added to your balance.", tr.Amount),
		tr.ID, models.RelatedTypeTransaction,
	)
}
