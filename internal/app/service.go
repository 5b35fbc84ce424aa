// Package app is the application layer. It is the only component that
// references multiple domain components and orchestrates all use cases.
package app

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roadwatch/backend/internal/dispatch"
	"github.com/roadwatch/backend/internal/domain"
	"github.com/roadwatch/backend/internal/errors"
	"github.com/roadwatch/backend/internal/vision"
)

const detectionTimeout = 5 * time.Minute

// Detector runs the damage detection model against an uploaded image.
type Detector interface {
	Detect(ctx context.Context, imagePath string, lat, lon float64) (*vision.Result, error)
}

// Mailer sends review outcome notices to submitters.
type Mailer interface {
	SendReviewNotice(ctx context.Context, report *domain.Report) error
}

// Service orchestrates report and feedback use cases and triggers the
// realtime notifications they produce.
type Service struct {
	reports    domain.ReportRepository
	feedback   domain.FeedbackRepository
	detector   Detector
	mailer     Mailer
	dispatcher *dispatch.Dispatcher
	logger     *slog.Logger

	detectionWg sync.WaitGroup
}

// NewService creates the application layer service. mailer may be nil when
// SMTP is not configured.
func NewService(reports domain.ReportRepository, feedback domain.FeedbackRepository, detector Detector, mailer Mailer, dispatcher *dispatch.Dispatcher, logger *slog.Logger) *Service {
	return &Service{
		reports:    reports,
		feedback:   feedback,
		detector:   detector,
		mailer:     mailer,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// SubmitReport stores a new report and kicks off detection in the background.
// The caller gets the pending report back immediately; detection results
// arrive via realtime notifications.
func (s *Service) SubmitReport(ctx context.Context, report *domain.Report) (*domain.Report, error) {
	if report.SubmittedBy == "" {
		return nil, errors.Validation("submittedBy is required")
	}
	if report.ImagePath == "" {
		return nil, errors.Validation("imagePath is required")
	}

	created, err := s.reports.Create(ctx, report)
	if err != nil {
		return nil, errors.Internal("failed to store report", err)
	}

	s.detectionWg.Add(1)
	go func() {
		defer s.detectionWg.Done()
		s.runDetection(created)
	}()

	return created, nil
}

// runDetection runs the model, persists the outcome, and notifies the
// interested parties. It deliberately uses a fresh context: the submitting
// request has already returned.
func (s *Service) runDetection(report *domain.Report) {
	ctx, cancel := context.WithTimeout(context.Background(), detectionTimeout)
	defer cancel()

	result, err := s.detector.Detect(ctx, report.ImagePath, report.Latitude, report.Longitude)
	if err != nil {
		s.logger.Error("detection failed",
			"report_id", report.ID,
			"error", err,
		)
		failed, uerr := s.reports.SetDetectionResult(ctx, report.ID, domain.ReportStatusFailed, "", nil)
		if uerr != nil {
			s.logger.Error("failed to mark report as failed", "report_id", report.ID, "error", uerr)
			failed = report
		}
		s.dispatcher.PredictionCompleted(failed, "failed", 0)
		return
	}

	analysis, err := json.Marshal(result)
	if err != nil {
		s.logger.Error("failed to encode analysis", "report_id", report.ID, "error", err)
		analysis = nil
	}

	updated, err := s.reports.SetDetectionResult(ctx, report.ID, domain.ReportStatusProcessed, result.Severity.Level, analysis)
	if err != nil {
		s.logger.Error("failed to store detection result", "report_id", report.ID, "error", err)
		updated = report
	}

	if result.Reportable() {
		s.dispatcher.NewEntryDetected(updated)
	}
	s.dispatcher.PredictionCompleted(updated, "processed", len(result.Detections))
}

// GetReport fetches a single report.
func (s *Service) GetReport(ctx context.Context, id uuid.UUID) (*domain.Report, error) {
	report, err := s.reports.GetByID(ctx, id)
	if err == domain.ErrReportNotFound {
		return nil, errors.NotFound("report not found")
	}
	if err != nil {
		return nil, errors.Internal("failed to load report", err)
	}
	return report, nil
}

// ListReports returns reports in the given status. The limit defaults to 50
// and is capped at 200.
func (s *Service) ListReports(ctx context.Context, status string, limit int) ([]*domain.Report, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	reports, err := s.reports.ListByStatus(ctx, status, limit)
	if err != nil {
		return nil, errors.Internal("failed to list reports", err)
	}
	return reports, nil
}

// SaveAnalysis overwrites a report's stored analysis document and notifies
// the submitter.
func (s *Service) SaveAnalysis(ctx context.Context, id uuid.UUID, analysis []byte) (*domain.Report, error) {
	if len(analysis) == 0 {
		return nil, errors.Validation("analysis body is required")
	}

	var result vision.Result
	if err := json.Unmarshal(analysis, &result); err != nil {
		return nil, errors.Validation("analysis body is not valid JSON")
	}

	updated, err := s.reports.SaveAnalysis(ctx, id, analysis)
	if err == domain.ErrReportNotFound {
		return nil, errors.NotFound("report not found")
	}
	if err != nil {
		return nil, errors.Internal("failed to save analysis", err)
	}

	s.dispatcher.AnalysisSaved(updated, "saved", len(result.Detections))
	return updated, nil
}

// ReviewReport records an administrator's review, notifies the submitter and
// all admins, and best-effort emails the submitter.
func (s *Service) ReviewReport(ctx context.Context, id uuid.UUID, reviewedBy, severity, recommendedAction string) (*domain.Report, error) {
	if reviewedBy == "" {
		return nil, errors.Validation("reviewedBy is required")
	}

	updated, err := s.reports.SetReview(ctx, id, reviewedBy, severity, recommendedAction)
	if err == domain.ErrReportNotFound {
		return nil, errors.NotFound("report not found")
	}
	if err != nil {
		return nil, errors.Internal("failed to store review", err)
	}

	s.dispatcher.ReviewCompleted(updated)

	if s.mailer != nil {
		if err := s.mailer.SendReviewNotice(ctx, updated); err != nil {
			s.logger.Warn("review notice email failed",
				"report_id", updated.ID,
				"error", err,
			)
		}
	}

	return updated, nil
}

// CreateFeedback stores a new feedback entry.
func (s *Service) CreateFeedback(ctx context.Context, fb *domain.Feedback) (*domain.Feedback, error) {
	if fb.Author == "" {
		return nil, errors.Validation("author is required")
	}
	if fb.Content == "" {
		return nil, errors.Validation("content is required")
	}

	created, err := s.feedback.Create(ctx, fb)
	if err != nil {
		return nil, errors.Internal("failed to store feedback", err)
	}
	return created, nil
}

// UpdateFeedbackStatus moves a feedback entry to a new status and notifies
// its author.
func (s *Service) UpdateFeedbackStatus(ctx context.Context, id uuid.UUID, status string) (*domain.Feedback, error) {
	if status != domain.FeedbackStatusOpen && status != domain.FeedbackStatusCompleted {
		return nil, errors.Validation("unknown feedback status").WithField("status", status)
	}

	updated, err := s.feedback.UpdateStatus(ctx, id, status)
	if err == domain.ErrFeedbackNotFound {
		return nil, errors.NotFound("feedback not found")
	}
	if err != nil {
		return nil, errors.Internal("failed to update feedback status", err)
	}

	s.dispatcher.FeedbackStatusChanged(updated)
	return updated, nil
}

// ReplyFeedback stores an administrator's reply and notifies the author.
func (s *Service) ReplyFeedback(ctx context.Context, id uuid.UUID, reply string) (*domain.Feedback, error) {
	if reply == "" {
		return nil, errors.Validation("reply is required")
	}

	updated, err := s.feedback.SetReply(ctx, id, reply)
	if err == domain.ErrFeedbackNotFound {
		return nil, errors.NotFound("feedback not found")
	}
	if err != nil {
		return nil, errors.Internal("failed to store reply", err)
	}

	s.dispatcher.FeedbackReplied(updated)
	return updated, nil
}

// Notify delivers an ad-hoc notification to a named identity. Delivery is
// fire-and-forget: an offline target is not an error.
func (s *Service) Notify(target, title, message string, details map[string]any) {
	s.dispatcher.Notify(target, title, message, details)
}

// Stop waits for in-flight detection runs to finish.
func (s *Service) Stop() {
	s.detectionWg.Wait()
}
