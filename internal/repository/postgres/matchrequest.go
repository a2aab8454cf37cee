package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/peertutor/coinledger/internal/apperrors"
	"github.com/peertutor/coinledger/internal/models"
	"github.com/peertutor/coinledger/internal/repository"
)

type MatchRequestRepo struct {
	DB DBTX
}

const createRequest = `-- name: CreateRequest
INSERT INTO match_requests (id, student_id, tutor_id, message, schedule_note, status, coin_cost, created_at, updated_at, expires_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING id, student_id, tutor_id, message, schedule_note, status, coin_cost, created_at, updated_at, expires_at
`

func (r *MatchRequestRepo) CreateRequest(ctx context.Context, req models.MatchRequest) (models.MatchRequest, error) {
	rows, _ := r.DB.Query(ctx, createRequest,
		req.ID, req.StudentID, req.TutorID, req.Message, req.ScheduleNote,
		req.Status, req.CoinCost, req.CreatedAt, req.UpdatedAt, req.ExpiresAt,
	)
	req, err := pgx.CollectOneRow(rows, rowToMatchRequest)

	if err != nil {
		// Partial unique index on the pending pair raises on duplicates
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return req, apperrors.ErrRequestAlreadyPending
		}

		return req, fmt.Errorf("db error: %w", err)
	}

	return req, nil
}

const getRequest = `-- name: GetRequest
SELECT id, student_id, tutor_id, message, schedule_note, status, coin_cost, created_at, updated_at, expires_at
FROM match_requests
WHERE id = $1
`

func (r *MatchRequestRepo) GetRequest(ctx context.Context, id uuid.UUID) (models.MatchRequest, error) {
	rows, _ := r.DB.Query(ctx, getRequest, id)
	req, err := pgx.CollectOneRow(rows, rowToMatchRequest)

	switch {
	case err == nil:
		return req, nil
	case errors.Is(err, pgx.ErrNoRows):
		return req, apperrors.ErrRequestNotFound
	default:
		return req, fmt.Errorf("db error: %w", err)
	}
}

const listForStudent = `-- name: ListForStudent
SELECT id, student_id, tutor_id, message, schedule_note, status, coin_cost, created_at, updated_at, expires_at
FROM match_requests
WHERE student_id = $1
ORDER BY created_at DESC
`

func (r *MatchRequestRepo) ListForStudent(ctx context.Context, studentID uuid.UUID) ([]models.MatchRequest, error) {
	rows, _ := r.DB.Query(ctx, listForStudent, studentID)
	requests, err := pgx.CollectRows(rows, rowToMatchRequest)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return requests, nil
}

const listForTutor = `-- name: ListForTutor
SELECT id, student_id, tutor_id, message, schedule_note, status, coin_cost, created_at, updated_at, expires_at
FROM match_requests
WHERE tutor_id = $1
ORDER BY created_at DESC
`

func (r *MatchRequestRepo) ListForTutor(ctx context.Context, tutorID uuid.UUID) ([]models.MatchRequest, error) {
	rows, _ := r.DB.Query(ctx, listForTutor, tutorID)
	requests, err := pgx.CollectRows(rows, rowToMatchRequest)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return requests, nil
}

const listExpiredPending = `-- name: ListExpiredPending
SELECT id, student_id, tutor_id, message, schedule_note, status, coin_cost, created_at, updated_at, expires_at
FROM match_requests
WHERE status = 'pending'
  AND expires_at < $1
  AND ($2::uuid IS NULL OR student_id = $2)
  AND ($3::uuid IS NULL OR tutor_id = $3)
ORDER BY expires_at
LIMIT $4
`

func (r *MatchRequestRepo) ListExpiredPending(ctx context.Context, before time.Time, opts repository.ListExpiredOpts) ([]models.MatchRequest, error) {
	var limit any
	if opts.Limit > 0 {
		limit = opts.Limit
	}

	rows, _ := r.DB.Query(ctx, listExpiredPending, before, opts.StudentID, opts.TutorID, limit)
	requests, err := pgx.CollectRows(rows, rowToMatchRequest)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return requests, nil
}

// Conditional on the pending status so terminal states are never overwritten;
// a resolved request stays resolved no matter how often callers retry
const resolvePending = `-- name: ResolvePending
UPDATE match_requests
SET status = $2, updated_at = $3
WHERE id = $1 AND status = 'pending'
RETURNING id, student_id, tutor_id, message, schedule_note, status, coin_cost, created_at, updated_at, expires_at
`

func (r *MatchRequestRepo) ResolvePending(ctx context.Context, id uuid.UUID, status string) (models.MatchRequest, error) {
	rows, _ := r.DB.Query(ctx, resolvePending, id, status, time.Now())
	req, err := pgx.CollectOneRow(rows, rowToMatchRequest)

	switch {
	case err == nil:
		return req, nil
	case errors.Is(err, pgx.ErrNoRows):
		// Distinguish missing request from one already resolved
		_, getErr := r.GetRequest(ctx, id)
		if getErr != nil {
			return req, getErr
		}
		return req, apperrors.ErrRequestAlreadyProcessed
	default:
		return req, fmt.Errorf("db error: %w", err)
	}
}

func rowToMatchRequest(row pgx.CollectableRow) (models.MatchRequest, error) {
	var m models.MatchRequest
	err := row.Scan(
		&m.ID, &m.StudentID, &m.TutorID, &m.Message, &m.ScheduleNote,
		&m.Status, &m.CoinCost, &m.CreatedAt, &m.UpdatedAt, &m.ExpiresAt,
	)
	return m, err
}
