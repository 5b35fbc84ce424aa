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

// reportColumns must match the Scan order in scanReport.
const reportColumns = `id, submitted_by, submitter_email, image_path, latitude, longitude, address, status, severity, recommended_action, reviewed_by, analysis, created_at, updated_at`

// ReportRepo persists road-damage reports.
type ReportRepo struct {
	pool *pgxpool.Pool
}

// NewReportRepo creates a ReportRepo from the shared pool.
func NewReportRepo(pool *pgxpool.Pool) *ReportRepo {
	return &ReportRepo{pool: pool}
}

func scanReport(row pgx.Row) (*domain.Report, error) {
	var r domain.Report
	err := row.Scan(
		&r.ID, &r.SubmittedBy, &r.SubmitterEmail, &r.ImagePath,
		&r.Latitude, &r.Longitude, &r.Address,
		&r.Status, &r.Severity, &r.RecommendedAction, &r.ReviewedBy,
		&r.Analysis, &r.CreatedAt, &r.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrReportNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan report: %w", err)
	}
	return &r, nil
}

// Create inserts a new report and returns it with generated fields filled in.
func (r *ReportRepo) Create(ctx context.Context, report *domain.Report) (*domain.Report, error) {
	return scanReport(r.pool.QueryRow(ctx, `
		INSERT INTO reports (submitted_by, submitter_email, image_path, latitude, longitude, address, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+reportColumns,
		report.SubmittedBy, report.SubmitterEmail, report.ImagePath,
		report.Latitude, report.Longitude, report.Address, domain.ReportStatusPending,
	))
}

// GetByID fetches a single report.
func (r *ReportRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Report, error) {
	return scanReport(r.pool.QueryRow(ctx, `
		SELECT `+reportColumns+`
		FROM reports
		WHERE id = $1
	`, id))
}

// ListByStatus returns reports in a given status, newest first.
func (r *ReportRepo) ListByStatus(ctx context.Context, status string, limit int) ([]*domain.Report, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+reportColumns+`
		FROM reports
		WHERE status = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, status, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	defer rows.Close()

	var reports []*domain.Report
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}
	return reports, rows.Err()
}

// SetDetectionResult stores the analysis outcome of the vision run and moves
// the report to processed or failed.
func (r *ReportRepo) SetDetectionResult(ctx context.Context, id uuid.UUID, status, severity string, analysis []byte) (*domain.Report, error) {
	return scanReport(r.pool.QueryRow(ctx, `
		UPDATE reports
		SET status = $2, severity = $3, analysis = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING `+reportColumns,
		id, status, severity, analysis,
	))
}

// SaveAnalysis overwrites the stored analysis document.
func (r *ReportRepo) SaveAnalysis(ctx context.Context, id uuid.UUID, analysis []byte) (*domain.Report, error) {
	return scanReport(r.pool.QueryRow(ctx, `
		UPDATE reports
		SET analysis = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING `+reportColumns,
		id, analysis,
	))
}

// SetReview records an administrator's review decision.
func (r *ReportRepo) SetReview(ctx context.Context, id uuid.UUID, reviewedBy, severity, recommendedAction string) (*domain.Report, error) {
	return scanReport(r.pool.QueryRow(ctx, `
		UPDATE reports
		SET status = $2, reviewed_by = $3, severity = $4, recommended_action = $5, updated_at = NOW()
		WHERE id = $1
		RETURNING `+reportColumns,
		id, domain.ReportStatusReviewed, reviewedBy, severity, recommendedAction,
	))
}
