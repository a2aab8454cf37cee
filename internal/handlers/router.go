package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/peertutor/coinledger/internal/handlers/middleware"
	"github.com/peertutor/coinledger/internal/logger"
	"github.com/peertutor/coinledger/internal/models"
	"github.com/peertutor/coinledger/internal/repository"
	"github.com/peertutor/coinledger/internal/service/escrow"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

type RouterConfig struct {
	// Secret key the external identity provider signs access tokens with
	SecretKey string
}

func NewRouter(
	cfg RouterConfig,
	users userGetter,
	ledgerService ledgerService,
	matchingService matchingService,
	escrowService escrowService,
	notificationService notificationService,
	subscriber subscriber,
	logger logger.Logger,
) http.Handler {
	authMiddleware := middleware.AuthMiddleware(cfg.SecretKey, users)
	withAuth := func(h http.Handler) http.Handler {
		return authMiddleware(h)
	}

	api := http.NewServeMux()

	api.Handle("POST /coins/purchase", withAuth(handlePurchaseCoins(ledgerService, logger)))
	api.Handle("GET /coins/balance", withAuth(handleGetBalance(ledgerService, logger)))
	api.Handle("GET /coins/transactions", withAuth(handleListTransactions(ledgerService, logger)))

	api.Handle("POST /matching", withAuth(handleSendMatchRequest(matchingService, logger)))
	api.Handle("GET /matching/student", withAuth(handleListStudentRequests(matchingService, logger)))
	api.Handle("GET /matching/tutor", withAuth(handleListTutorRequests(matchingService, logger)))
	api.Handle("POST /matching/{id}/approve", withAuth(handleApproveMatchRequest(matchingService, logger)))
	api.Handle("POST /matching/{id}/reject", withAuth(handleRejectMatchRequest(matchingService, logger)))
	api.Handle("POST /matching/{id}/cancel", withAuth(handleCancelMatchRequest(matchingService, logger)))

	api.Handle("POST /lessons", withAuth(handleBookLesson(escrowService, logger)))
	api.Handle("GET /lessons", withAuth(handleListLessons(escrowService, logger)))
	api.Handle("POST /lessons/{id}/approve", withAuth(handleApproveLesson(escrowService, logger)))
	api.Handle("POST /lessons/{id}/start", withAuth(handleStartLesson(escrowService, logger)))
	api.Handle("POST /lessons/{id}/complete", withAuth(handleCompleteLesson(escrowService, logger)))
	api.Handle("POST /lessons/{id}/cancel", withAuth(handleCancelLesson(escrowService, logger)))
	api.Handle("POST /lessons/{id}/reject", withAuth(handleRejectLesson(escrowService, logger)))
	api.Handle("GET /lessons/{id}/escrow", withAuth(handleEscrowStatus(escrowService, logger)))

	api.Handle("GET /notifications", withAuth(handleListNotifications(notificationService, logger)))
	api.Handle("GET /notifications/unread-count", withAuth(handleUnreadCount(notificationService, logger)))
	api.Handle("POST /notifications/{id}/read", withAuth(handleMarkRead(notificationService, logger)))
	api.Handle("POST /notifications/read-all", withAuth(handleMarkAllRead(notificationService, logger)))

	api.Handle("GET /notifications/stream", withAuth(handleNotificationStream(subscriber, logger)))
	api.Handle("GET /lessons/{id}/stream", withAuth(handleLessonStream(subscriber, logger)))

	root := http.NewServeMux()
	root.Handle("/api/", http.StripPrefix("/api", api))
	root.Handle("GET /metrics", promhttp.Handler())

	handler := chain(root,
		middleware.LoggerMiddleware(logger),
	)

	return handler
}

type userGetter interface {
	GetUser(ctx context.Context, id uuid.UUID) (models.User, error)
}

type ledgerService interface {
	// Convert an external payment confirmation into a ledger credit
	Purchase(ctx context.Context, userID uuid.UUID, amount int64, paymentMethodID string) (models.Transaction, error)

	GetBalance(ctx context.Context, userID uuid.UUID) (int64, error)

	// Page is 1-indexed, entries come newest first
	ListTransactions(ctx context.Context, userID uuid.UUID, page int, limit int) (repository.TransactionPage, error)
}

type matchingService interface {
	SendMatchRequest(ctx context.Context, student models.User, tutorID uuid.UUID, message string, scheduleNote *string) (models.MatchRequest, error)
	ApproveMatchRequest(ctx context.Context, tutor models.User, id uuid.UUID) (models.MatchRequest, error)
	RejectMatchRequest(ctx context.Context, tutor models.User, id uuid.UUID, reason string) (models.MatchRequest, error)
	CancelMatchRequest(ctx context.Context, student models.User, id uuid.UUID) (models.MatchRequest, error)
	ListStudentRequests(ctx context.Context, student models.User) ([]models.MatchRequest, error)
	ListTutorRequests(ctx context.Context, tutor models.User) ([]models.MatchRequest, error)
}

type escrowService interface {
	BookLesson(ctx context.Context, student models.User, p escrow.BookLessonParams) (models.Lesson, error)
	ApproveLesson(ctx context.Context, tutor models.User, lessonID uuid.UUID) (models.Lesson, error)
	StartLesson(ctx context.Context, tutor models.User, lessonID uuid.UUID) (models.Lesson, error)
	CompleteLesson(ctx context.Context, tutor models.User, lessonID uuid.UUID, feedback *string, rating *int) (models.Lesson, error)
	CancelLesson(ctx context.Context, student models.User, lessonID uuid.UUID, reason string) (models.Lesson, error)
	RejectLesson(ctx context.Context, tutor models.User, lessonID uuid.UUID, reason string) (models.Lesson, error)
	GetEscrowStatus(ctx context.Context, actor models.User, lessonID uuid.UUID) (escrow.EscrowStatus, error)
	ListLessons(ctx context.Context, user models.User) ([]models.Lesson, error)
}

type notificationService interface {
	List(ctx context.Context, userID uuid.UUID, limit int) ([]models.Notification, error)
	MarkRead(ctx context.Context, userID uuid.UUID, id uuid.UUID) (models.Notification, error)
	MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error)
	UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error)
}

type subscriber interface {
	SubscribeUserNotifications(ctx context.Context, userID uuid.UUID, cb func(models.Notification)) (func(), error)
	SubscribeLessonUpdates(ctx context.Context, lessonID uuid.UUID, cb func(models.Lesson)) (func(), error)
}
