// Package dispatch turns domain occurrences into notification router calls
// with role-appropriate payloads. Every dispatch is independent and
// best-effort: a missing target or a malformed occurrence is logged and
// dropped, and never fails the operation that triggered it.
package dispatch

import (
	"log/slog"

	"github.com/roadwatch/backend/internal/domain"
	"github.com/roadwatch/backend/internal/identity"
	"github.com/roadwatch/backend/internal/notify"
)

type Dispatcher struct {
	router     *notify.Router
	classifier *identity.Classifier
}

func New(router *notify.Router, classifier *identity.Classifier) *Dispatcher {
	return &Dispatcher{router: router, classifier: classifier}
}

// NewEntryDetected announces a reportable upload to all admins.
func (d *Dispatcher) NewEntryDetected(report *domain.Report) notify.DeliveryResult {
	if report == nil || report.SubmittedBy == "" {
		slog.Warn("Dropping new-entry dispatch with missing submitter")
		return notify.DeliveryResult{Status: notify.StatusNotConnected}
	}
	return d.router.Send(notify.ToAdmins(), domain.NewRoadEntry{
		ReportID:    report.ID.String(),
		ImagePath:   report.ImagePath,
		Latitude:    report.Latitude,
		Longitude:   report.Longitude,
		Address:     report.Address,
		SubmittedBy: report.SubmittedBy,
	})
}

// PredictionCompleted tells the submitter their upload finished processing,
// whether it succeeded or failed.
func (d *Dispatcher) PredictionCompleted(report *domain.Report, outcome string, detections int) notify.DeliveryResult {
	if report == nil || report.SubmittedBy == "" {
		slog.Warn("Dropping prediction-complete dispatch with missing submitter")
		return notify.DeliveryResult{Status: notify.StatusNotConnected}
	}
	return d.router.Send(notify.ToUser(report.SubmittedBy), domain.PredictionComplete{
		ReportID:   report.ID.String(),
		Outcome:    outcome,
		Severity:   report.Severity,
		Detections: detections,
	})
}

// AnalysisSaved tells the submitter a saved analysis is available for their report.
func (d *Dispatcher) AnalysisSaved(report *domain.Report, outcome string, detections int) notify.DeliveryResult {
	if report == nil || report.SubmittedBy == "" {
		slog.Warn("Dropping analysis-complete dispatch with missing submitter")
		return notify.DeliveryResult{Status: notify.StatusNotConnected}
	}
	return d.router.Send(notify.ToUser(report.SubmittedBy), domain.AnalysisComplete{
		ReportID:   report.ID.String(),
		Outcome:    outcome,
		Severity:   report.Severity,
		Detections: detections,
	})
}

// ReviewCompleted notifies the original submitter and all admins, with a
// separate payload per audience. Partial delivery is acceptable and is not
// rolled back.
func (d *Dispatcher) ReviewCompleted(report *domain.Report) (submitter, admins notify.DeliveryResult) {
	if report == nil || report.SubmittedBy == "" {
		slog.Warn("Dropping review dispatch with missing submitter")
		miss := notify.DeliveryResult{Status: notify.StatusNotConnected}
		return miss, miss
	}

	submitter = d.router.Send(notify.ToUser(report.SubmittedBy), domain.ImageReviewed{
		ReportID:          report.ID.String(),
		Status:            report.Status,
		Severity:          report.Severity,
		RecommendedAction: report.RecommendedAction,
		ReviewedBy:        report.ReviewedBy,
		Audience:          "submitter",
	})
	admins = d.router.Send(notify.ToAdmins(), domain.ImageReviewed{
		ReportID:          report.ID.String(),
		Status:            report.Status,
		Severity:          report.Severity,
		RecommendedAction: report.RecommendedAction,
		ReviewedBy:        report.ReviewedBy,
		Audience:          "admin",
		Broadcast:         true,
	})
	return submitter, admins
}

// FeedbackStatusChanged notifies the feedback author, if connected.
func (d *Dispatcher) FeedbackStatusChanged(fb *domain.Feedback) notify.DeliveryResult {
	if fb == nil || fb.Author == "" {
		slog.Warn("Dropping feedback-status dispatch with missing author")
		return notify.DeliveryResult{Status: notify.StatusNotConnected}
	}
	return d.router.Send(notify.ToUser(fb.Author), domain.FeedbackStatus{
		FeedbackID: fb.ID.String(),
		Subject:    fb.Subject,
		Status:     fb.Status,
	})
}

// FeedbackReplied notifies the feedback author of a new reply, if connected.
func (d *Dispatcher) FeedbackReplied(fb *domain.Feedback) notify.DeliveryResult {
	if fb == nil || fb.Author == "" {
		slog.Warn("Dropping feedback-reply dispatch with missing author")
		return notify.DeliveryResult{Status: notify.StatusNotConnected}
	}
	return d.router.Send(notify.ToUser(fb.Author), domain.FeedbackReply{
		FeedbackID: fb.ID.String(),
		Subject:    fb.Subject,
		Reply:      fb.Reply,
	})
}

// Notify delivers an ad-hoc notification to a named identity. Admin targets
// receive it as an admin-notification, everyone else as a plain notification.
func (d *Dispatcher) Notify(target, title, message string, details map[string]any) notify.DeliveryResult {
	if target == "" {
		slog.Warn("Dropping ad-hoc notification with missing target identity")
		return notify.DeliveryResult{Status: notify.StatusNotConnected}
	}

	if c := d.classifier.Classify(target); c.Valid && c.Role == domain.RoleAdmin {
		reportID, _ := details["reportId"].(string)
		return d.router.Send(notify.ToUser(target), domain.AdminNotification{
			Title:    title,
			Message:  message,
			ReportID: reportID,
		})
	}

	return d.router.Send(notify.ToUser(target), domain.Notification{
		Title:   title,
		Message: message,
		Details: details,
	})
}
