package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/peertutor/coinledger/internal/apperrors"
	"github.com/peertutor/coinledger/internal/models"
)

type ChatRoomRepo struct {
	DB DBTX
}

// Room creation is idempotent per request: approving twice must not create a
// second room, so conflicts return the existing one
const createRoom = `-- name: CreateRoom
WITH new_room AS (
	INSERT INTO chat_rooms (id, tutor_id, student_id, match_request_id, created_at)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (match_request_id) DO NOTHING
	RETURNING id, tutor_id, student_id, match_request_id, created_at
)
SELECT id, tutor_id, student_id, match_request_id, created_at FROM new_room
UNION
SELECT id, tutor_id, student_id, match_request_id, created_at FROM chat_rooms WHERE match_request_id = $4
`

func (r *ChatRoomRepo) CreateRoom(ctx context.Context, tutorID uuid.UUID, studentID uuid.UUID, matchRequestID uuid.UUID) (models.ChatRoom, error) {
	rows, _ := r.DB.Query(ctx, createRoom, uuid.New(), tutorID, studentID, matchRequestID, time.Now())
	room, err := pgx.CollectOneRow(rows, rowToChatRoom)
	if err != nil {
		return room, fmt.Errorf("db error: %w", err)
	}

	return room, nil
}

const getRoomByRequest = `-- name: GetRoomByRequest
SELECT id, tutor_id, student_id, match_request_id, created_at
FROM chat_rooms
WHERE match_request_id = $1
`

func (r *ChatRoomRepo) GetRoomByRequest(ctx context.Context, matchRequestID uuid.UUID) (models.ChatRoom, error) {
	rows, _ := r.DB.Query(ctx, getRoomByRequest, matchRequestID)
	room, err := pgx.CollectOneRow(rows, rowToChatRoom)

	switch {
	case err == nil:
		return room, nil
	case errors.Is(err, pgx.ErrNoRows):
		return room, apperrors.ErrRoomNotFound
	default:
		return room, fmt.Errorf("db error: %w", err)
	}
}

func rowToChatRoom(row pgx.CollectableRow) (models.ChatRoom, error) {
	var c models.ChatRoom
	err := row.Scan(&c.ID, &c.TutorID, &c.StudentID, &c.MatchRequestID, &c.CreatedAt)
	return c, err
}
