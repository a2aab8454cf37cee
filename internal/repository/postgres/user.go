package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/peertutor/coinledger/internal/apperrors"
	"github.com/peertutor/coinledger/internal/models"
)

type UserRepo struct {
	DB DBTX
}

// Create user and the zero balance it owns in one statement batch.
// Balance is created when the user record is created and never deleted
const createUser = `-- name: CreateUser
WITH new_user AS (
	INSERT INTO users (name, role)
	VALUES ($1, $2)
	RETURNING id, created_at, name, role
), new_balance AS (
	INSERT INTO balances (user_id, current)
	SELECT id, 0 FROM new_user
)
SELECT id, created_at, name, role FROM new_user
`

func (r *UserRepo) CreateUser(ctx context.Context, name string, role string) (models.User, error) {
	rows, _ := r.DB.Query(ctx, createUser, name, role)
	user, err := pgx.CollectOneRow(rows, rowToUser)
	if err != nil {
		return user, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

const getUser = `-- name: GetUser
SELECT id, created_at, name, role FROM users
WHERE id = $1
`

func (r *UserRepo) GetUser(ctx context.Context, id uuid.UUID) (models.User, error) {
	rows, _ := r.DB.Query(ctx, getUser, id)
	user, err := pgx.CollectOneRow(rows, rowToUser)

	switch {
	case err == nil:
		return user, nil
	case errors.Is(err, pgx.ErrNoRows):
		return user, apperrors.ErrUserNotFound
	default:
		return user, fmt.Errorf("db error: %w", err)
	}
}

func rowToUser(row pgx.CollectableRow) (models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.CreatedAt, &u.Name, &u.Role)
	return u, err
}
