package domain

import (
	"time"

	"github.com/google/uuid"
)

// Role is the audience a connection belongs to. It is derived from the shape
// of the client-supplied identity string and is advisory only: it controls
// which notifications a connection receives, not what the caller may do.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// Report statuses, in rough lifecycle order.
const (
	ReportStatusPending   = "pending"
	ReportStatusProcessed = "processed"
	ReportStatusFailed    = "failed"
	ReportStatusReviewed  = "reviewed"
)

// Feedback statuses.
const (
	FeedbackStatusOpen      = "open"
	FeedbackStatusCompleted = "completed"
)

// Report is a submitted road-damage report.
type Report struct {
	ID                uuid.UUID
	SubmittedBy       string
	SubmitterEmail    string
	ImagePath         string
	Latitude          float64
	Longitude         float64
	Address           string
	Status            string
	Severity          string
	RecommendedAction string
	ReviewedBy        string
	Analysis          []byte
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Feedback is a citizen-submitted feedback entry.
type Feedback struct {
	ID        uuid.UUID
	Author    string
	Subject   string
	Content   string
	Status    string
	Reply     string
	CreatedAt time.Time
	UpdatedAt time.Time
}
