package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/roadwatch/backend/internal/domain"
)

// feedbackColumns must match the Scan order in scanFeedback.
const feedbackColumns = `id, author, subject, content, status, reply, created_at, updated_at`

// FeedbackRepo persists citizen feedback entries.
type FeedbackRepo struct {
	pool *pgxpool.Pool
}

// NewFeedbackRepo creates a FeedbackRepo from the shared pool.
func NewFeedbackRepo(pool *pgxpool.Pool) *FeedbackRepo {
	return &FeedbackRepo{pool: pool}
}

func scanFeedback(row pgx.Row) (*domain.Feedback, error) {
	var f domain.Feedback
	err := row.Scan(
		&f.ID, &f.Author, &f.Subject, &f.Content,
		&f.Status, &f.Reply, &f.CreatedAt, &f.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrFeedbackNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan feedback: %w", err)
	}
	return &f, nil
}

// Create inserts a new feedback entry.
func (r *FeedbackRepo) Create(ctx context.Context, feedback *domain.Feedback) (*domain.Feedback, error) {
	return scanFeedback(r.pool.QueryRow(ctx, `
		INSERT INTO feedback (author, subject, content, status)
		VALUES ($1, $2, $3, $4)
		RETURNING `+feedbackColumns,
		feedback.Author, feedback.Subject, feedback.Content, domain.FeedbackStatusOpen,
	))
}

// GetByID fetches a single feedback entry.
func (r *FeedbackRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Feedback, error) {
	return scanFeedback(r.pool.QueryRow(ctx, `
		SELECT `+feedbackColumns+`
		FROM feedback
		WHERE id = $1
	`, id))
}

// UpdateStatus moves a feedback entry to a new status.
func (r *FeedbackRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status string) (*domain.Feedback, error) {
	return scanFeedback(r.pool.QueryRow(ctx, `
		UPDATE feedback
		SET status = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING `+feedbackColumns,
		id, status,
	))
}

// SetReply stores an administrator's reply.
func (r *FeedbackRepo) SetReply(ctx context.Context, id uuid.UUID, reply string) (*domain.Feedback, error) {
	return scanFeedback(r.pool.QueryRow(ctx, `
		UPDATE feedback
		SET reply = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING `+feedbackColumns,
		id, reply,
	))
}
