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
	"github.com/peertutor/coinledger/internal/repository"
)

type LessonRepo struct {
	DB DBTX
}

const lessonColumns = `id, tutor_id, student_id, subject, scheduled_at, duration_minutes, coin_cost,
status, escrow_status, lesson_notes, tutor_feedback, student_rating,
approved_at, completed_at, created_at, updated_at`

const createLesson = `-- name: CreateLesson
INSERT INTO lessons (id, tutor_id, student_id, subject, scheduled_at, duration_minutes, coin_cost,
                     status, escrow_status, lesson_notes, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
RETURNING ` + lessonColumns

func (r *LessonRepo) CreateLesson(ctx context.Context, lesson models.Lesson) (models.Lesson, error) {
	rows, _ := r.DB.Query(ctx, createLesson,
		lesson.ID, lesson.TutorID, lesson.StudentID, lesson.Subject,
		lesson.ScheduledAt, lesson.DurationMinutes, lesson.CoinCost,
		lesson.Status, lesson.EscrowStatus, lesson.LessonNotes,
		lesson.CreatedAt, lesson.UpdatedAt,
	)
	lesson, err := pgx.CollectOneRow(rows, rowToLesson)
	if err != nil {
		return lesson, fmt.Errorf("db error: %w", err)
	}

	return lesson, nil
}

const getLesson = `-- name: GetLesson
SELECT ` + lessonColumns + `
FROM lessons
WHERE id = $1
`

func (r *LessonRepo) GetLesson(ctx context.Context, id uuid.UUID) (models.Lesson, error) {
	rows, _ := r.DB.Query(ctx, getLesson, id)
	lesson, err := pgx.CollectOneRow(rows, rowToLesson)

	switch {
	case err == nil:
		return lesson, nil
	case errors.Is(err, pgx.ErrNoRows):
		return lesson, apperrors.ErrLessonNotFound
	default:
		return lesson, fmt.Errorf("db error: %w", err)
	}
}

const listForUser = `-- name: ListForUser
SELECT ` + lessonColumns + `
FROM lessons
WHERE tutor_id = $1 OR student_id = $1
ORDER BY scheduled_at
`

func (r *LessonRepo) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Lesson, error) {
	rows, _ := r.DB.Query(ctx, listForUser, userID)
	lessons, err := pgx.CollectRows(rows, rowToLesson)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return lessons, nil
}

// Guarded by the current status so illegal transitions never write.
// updated_at always moves, which is what lesson subscriptions poll on
const transitionLesson = `-- name: Transition
UPDATE lessons
SET status         = $2,
    escrow_status  = $3,
    approved_at    = COALESCE($4, approved_at),
    completed_at   = COALESCE($5, completed_at),
    tutor_feedback = COALESCE($6, tutor_feedback),
    student_rating = COALESCE($7, student_rating),
    updated_at     = $8
WHERE id = $1 AND status = ANY($9)
RETURNING ` + lessonColumns

func (r *LessonRepo) Transition(ctx context.Context, id uuid.UUID, fromStatuses []string, change repository.LessonChange) (models.Lesson, error) {
	rows, _ := r.DB.Query(ctx, transitionLesson,
		id, change.Status, change.EscrowStatus,
		change.ApprovedAt, change.CompletedAt,
		change.TutorFeedback, change.StudentRating,
		time.Now(), fromStatuses,
	)
	lesson, err := pgx.CollectOneRow(rows, rowToLesson)

	switch {
	case err == nil:
		return lesson, nil
	case errors.Is(err, pgx.ErrNoRows):
		// Distinguish missing lesson from one in a non-permitted status
		_, getErr := r.GetLesson(ctx, id)
		if getErr != nil {
			return lesson, getErr
		}
		return lesson, apperrors.ErrLessonStateConflict
	default:
		return lesson, fmt.Errorf("db error: %w", err)
	}
}

func rowToLesson(row pgx.CollectableRow) (models.Lesson, error) {
	var l models.Lesson
	err := row.Scan(
		&l.ID, &l.TutorID, &l.StudentID, &l.Subject, &l.ScheduledAt, &l.DurationMinutes, &l.CoinCost,
		&l.Status, &l.EscrowStatus, &l.LessonNotes, &l.TutorFeedback, &l.StudentRating,
		&l.ApprovedAt, &l.CompletedAt, &l.CreatedAt, &l.UpdatedAt,
	)
	return l, err
}
