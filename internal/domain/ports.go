package domain

import (
	"context"

	"github.com/google/uuid"
)

// ReportRepository persists road-damage reports.
type ReportRepository interface {
	Create(ctx context.Context, report *Report) (*Report, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Report, error)
	ListByStatus(ctx context.Context, status string, limit int) ([]*Report, error)
	SetDetectionResult(ctx context.Context, id uuid.UUID, status, severity string, analysis []byte) (*Report, error)
	SaveAnalysis(ctx context.Context, id uuid.UUID, analysis []byte) (*Report, error)
	SetReview(ctx context.Context, id uuid.UUID, reviewedBy, severity, recommendedAction string) (*Report, error)
}

// FeedbackRepository persists citizen feedback entries.
type FeedbackRepository interface {
	Create(ctx context.Context, feedback *Feedback) (*Feedback, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Feedback, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) (*Feedback, error)
	SetReply(ctx context.Context, id uuid.UUID, reply string) (*Feedback, error)
}
