package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/peertutor/coinledger/internal/apperrors"
	"github.com/peertutor/coinledger/internal/logger"
	"github.com/peertutor/coinledger/internal/metrics"
	"github.com/peertutor/coinledger/internal/models"
	"github.com/peertutor/coinledger/internal/repository"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// TxOption tunes a ledger entry before it is recorded
type TxOption func(*models.Transaction)

// WithRelatedID links the entry to a matching request or lesson
func WithRelatedID(id uuid.UUID) TxOption {
	return func(t *models.Transaction) {
		related := id
		t.RelatedID = &related
	}
}

// WithStatus overrides the default 'completed' entry status.
// Escrow holds are recorded 'pending' until the hold is confirmed
func WithStatus(status string) TxOption {
	return func(t *models.Transaction) {
		t.Status = status
	}
}

// Apply records the transaction and moves the stored balance through the
// given storage. Run it inside Storage.InTx so the two writes commit or roll
// back together; amount sign decides credit vs debit.
func Apply(ctx context.Context, s repository.Storage, tr models.Transaction) (models.Transaction, error) {
	if tr.ID == uuid.Nil {
		tr.ID = uuid.New()
	}
	if tr.CreatedAt.IsZero() {
		tr.CreatedAt = time.Now()
	}
	if tr.Status == "" {
		tr.Status = models.TransactionStatusCompleted
	}

	// Balance first: a rejected debit must not leave a transaction row behind
	_, err := s.Ledger().ApplyToBalance(ctx, tr.UserID, tr.Amount)
	if err != nil {
		if errors.Is(err, apperrors.ErrBalanceInsufficient) {
			metrics.InsufficientFundsTotal.Inc()
		}
		return tr, err
	}

	tr, err = s.Ledger().CreateTransaction(ctx, tr)
	if err != nil {
		return tr, fmt.Errorf("can't record transaction: %w", err)
	}

	metrics.TransactionsTotal.WithLabelValues(tr.Kind).Inc()

	return tr, nil
}

type purchaseNotifier interface {
	CoinsPurchased(ctx context.Context, tr models.Transaction)
}

// Service is the only write path to user balances
type Service struct {
	storage  repository.Storage
	notifier purchaseNotifier
	logger   logger.Logger
}

func NewService(storage repository.Storage, notifier purchaseNotifier, l logger.Logger) *Service {
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	return &Service{
		storage:  storage,
		notifier: notifier,
		logger:   l,
	}
}

// Credit adds amount coins to the user
func (s *Service) Credit(ctx context.Context, userID uuid.UUID, amount int64, kind string, description string, opts ...TxOption) (models.Transaction, error) {
	return s.apply(ctx, userID, amount, kind, description, opts...)
}

// Debit removes amount coins from the user.
// Returns apperrors.ErrBalanceInsufficient if the balance would go negative
func (s *Service) Debit(ctx context.Context, userID uuid.UUID, amount int64, kind string, description string, opts ...TxOption) (models.Transaction, error) {
	return s.apply(ctx, userID, -amount, kind, description, opts...)
}

func (s *Service) apply(ctx context.Context, userID uuid.UUID, amount int64, kind string, description string, opts ...TxOption) (models.Transaction, error) {
	var tr models.Transaction

	if amount == 0 {
		return tr, apperrors.ErrAmountNotPositive
	}

	tr = models.Transaction{
		UserID:      userID,
		Amount:      amount,
		Kind:        kind,
		Description: description,
	}
	for _, opt := range opts {
		opt(&tr)
	}

	err := s.storage.InTx(ctx, func(txStorage repository.Storage) error {
		var err error
		tr, err = Apply(ctx, txStorage, tr)
		return err
	})

	return tr, err
}

func (s *Service) GetBalance(ctx context.Context, userID uuid.UUID) (int64, error) {
	balance, err := s.storage.Ledger().GetBalance(ctx, userID)
	if err != nil {
		return 0, err
	}

	return balance.Current, nil
}

// ListTransactions returns a page of the user's ledger entries, newest first.
// Page is 1-indexed; out of range params fall back to defaults
func (s *Service) ListTransactions(ctx context.Context, userID uuid.UUID, page int, limit int) (repository.TransactionPage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > maxPageLimit {
		limit = defaultPageLimit
	}

	return s.storage.Ledger().ListTransactions(ctx, userID, repository.ListTransactionsOpts{
		Page:  page,
		Limit: limit,
	})
}

// Purchase converts an external payment confirmation into a ledger credit.
// The payment method id is opaque, no gateway integration happens here
func (s *Service) Purchase(ctx context.Context, userID uuid.UUID, amount int64, paymentMethodID string) (models.Transaction, error) {
	var tr models.Transaction

	if amount <= 0 {
		return tr, apperrors.ErrAmountNotPositive
	}

	user, err := s.storage.User().GetUser(ctx, userID)
	if err != nil {
		return tr, err
	}

	description := fmt.Sprintf("coin purchase via payment method %s", paymentMethodID)
	tr, err = s.Credit(ctx, user.ID, amount, models.TransactionKindPurchase, description)
	if err != nil {
		return tr, err
	}

	if s.notifier != nil {
		s.notifier.CoinsPurchased(ctx, tr)
	}

	return tr, nil
}
