package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/peertutor/coinledger/internal/apperrors"
	"github.com/peertutor/coinledger/internal/models"
	"github.com/peertutor/coinledger/internal/repository"
)

type LedgerRepo struct {
	DB DBTX
}

// The conditional arithmetic runs inside the row lock the UPDATE takes, so
// two interleaved debits against one account serialize here instead of both
// passing a read-then-write check. The `current >= 0` table constraint backs
// this up if any write path slips through
const applyToBalance = `-- name: ApplyToBalance
UPDATE balances
SET current = current + $2
WHERE user_id = $1
RETURNING id, user_id, current
`

func (r *LedgerRepo) ApplyToBalance(ctx context.Context, userID uuid.UUID, delta int64) (models.Balance, error) {
	rows, _ := r.DB.Query(ctx, applyToBalance, userID, delta)
	balance, err := pgx.CollectOneRow(rows, rowToBalance)

	switch {
	case err == nil:
		return balance, nil
	case errors.Is(err, pgx.ErrNoRows):
		return balance, apperrors.ErrUserNotFound
	default:
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.CheckViolation {
			return balance, apperrors.ErrBalanceInsufficient
		}
		return balance, fmt.Errorf("db error: %w", err)
	}
}

const getBalance = `-- name: GetBalance
SELECT id, user_id, current FROM balances
WHERE user_id = $1
`

func (r *LedgerRepo) GetBalance(ctx context.Context, userID uuid.UUID) (models.Balance, error) {
	rows, _ := r.DB.Query(ctx, getBalance, userID)
	balance, err := pgx.CollectOneRow(rows, rowToBalance)

	switch {
	case err == nil:
		return balance, nil
	case errors.Is(err, pgx.ErrNoRows):
		return balance, apperrors.ErrUserNotFound
	default:
		return balance, fmt.Errorf("db error: %w", err)
	}
}

const createTransaction = `-- name: CreateTransaction
INSERT INTO transactions (id, created_at, user_id, amount, kind, description, related_id, status)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id, created_at, user_id, amount, kind, description, related_id, status
`

func (r *LedgerRepo) CreateTransaction(ctx context.Context, tr models.Transaction) (models.Transaction, error) {
	rows, _ := r.DB.Query(ctx, createTransaction,
		tr.ID, tr.CreatedAt, tr.UserID, tr.Amount, tr.Kind, tr.Description, tr.RelatedID, tr.Status,
	)
	tr, err := pgx.CollectOneRow(rows, rowToTransaction)
	if err != nil {
		return tr, fmt.Errorf("db error: %w", err)
	}

	return tr, nil
}

// Fetch one row beyond the page to learn whether more pages exist
const listTransactions = `-- name: ListTransactions
SELECT id, created_at, user_id, amount, kind, description, related_id, status
FROM transactions
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3
`

func (r *LedgerRepo) ListTransactions(ctx context.Context, userID uuid.UUID, opts repository.ListTransactionsOpts) (repository.TransactionPage, error) {
	page := repository.TransactionPage{}

	if opts.Page < 1 || opts.Limit < 1 {
		return page, fmt.Errorf("pagination params must be positive, got page=%d limit=%d", opts.Page, opts.Limit)
	}

	offset := (opts.Page - 1) * opts.Limit

	rows, _ := r.DB.Query(ctx, listTransactions, userID, opts.Limit+1, offset)
	transactions, err := pgx.CollectRows(rows, rowToTransaction)
	if err != nil {
		return page, fmt.Errorf("db error: %w", err)
	}

	if len(transactions) > opts.Limit {
		page.HasMore = true
		transactions = transactions[:opts.Limit]
	}
	page.Transactions = transactions

	return page, nil
}

const listRelatedTransactions = `-- name: ListRelatedTransactions
SELECT id, created_at, user_id, amount, kind, description, related_id, status
FROM transactions
WHERE related_id = $1
ORDER BY created_at
`

func (r *LedgerRepo) ListRelatedTransactions(ctx context.Context, relatedID uuid.UUID) ([]models.Transaction, error) {
	rows, _ := r.DB.Query(ctx, listRelatedTransactions, relatedID)
	transactions, err := pgx.CollectRows(rows, rowToTransaction)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return transactions, nil
}

const setRelatedTransactionStatus = `-- name: SetRelatedTransactionStatus
UPDATE transactions
SET status = $3
WHERE related_id = $1 AND status = $2
RETURNING id, created_at, user_id, amount, kind, description, related_id, status
`

func (r *LedgerRepo) SetRelatedTransactionStatus(ctx context.Context, relatedID uuid.UUID, fromStatus string, toStatus string) (models.Transaction, error) {
	rows, _ := r.DB.Query(ctx, setRelatedTransactionStatus, relatedID, fromStatus, toStatus)
	tr, err := pgx.CollectOneRow(rows, rowToTransaction)

	switch {
	case err == nil:
		return tr, nil
	case errors.Is(err, pgx.ErrNoRows):
		return tr, apperrors.ErrTransactionNotFound
	default:
		return tr, fmt.Errorf("db error: %w", err)
	}
}

func rowToBalance(row pgx.CollectableRow) (models.Balance, error) {
	var b models.Balance
	err := row.Scan(&b.ID, &b.UserID, &b.Current)
	return b, err
}

func rowToTransaction(row pgx.CollectableRow) (models.Transaction, error) {
	var t models.Transaction
	err := row.Scan(&t.ID, &t.CreatedAt, &t.UserID, &t.Amount, &t.Kind, &t.Description, &t.RelatedID, &t.Status)
	return t, err
}
