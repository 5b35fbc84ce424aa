package httpserver

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/roadwatch/backend/internal/domain"
	"github.com/roadwatch/backend/internal/errors"
)

func parseIDParam(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, errors.Validation("invalid id").WithField("id", c.Param("id"))
	}
	return id, nil
}

// --- Reports ---

type submitReportRequest struct {
	SubmittedBy    string  `json:"submittedBy"`
	SubmitterEmail string  `json:"submitterEmail"`
	ImagePath      string  `json:"imagePath"`
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	Address        string  `json:"address"`
}

type reportResponse struct {
	ID                string  `json:"id"`
	SubmittedBy       string  `json:"submittedBy"`
	ImagePath         string  `json:"imagePath"`
	Latitude          float64 `json:"latitude"`
	Longitude         float64 `json:"longitude"`
	Address           string  `json:"address,omitempty"`
	Status            string  `json:"status"`
	Severity          string  `json:"severity,omitempty"`
	RecommendedAction string  `json:"recommendedAction,omitempty"`
	ReviewedBy        string  `json:"reviewedBy,omitempty"`
	Analysis          any     `json:"analysis,omitempty"`
	CreatedAt         string  `json:"createdAt"`
}

func toReportResponse(r *domain.Report) reportResponse {
	resp := reportResponse{
		ID:                r.ID.String(),
		SubmittedBy:       r.SubmittedBy,
		ImagePath:         r.ImagePath,
		Latitude:          r.Latitude,
		Longitude:         r.Longitude,
		Address:           r.Address,
		Status:            r.Status,
		Severity:          r.Severity,
		RecommendedAction: r.RecommendedAction,
		ReviewedBy:        r.ReviewedBy,
		CreatedAt:         r.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
	if len(r.Analysis) > 0 {
		resp.Analysis = json.RawMessage(r.Analysis)
	}
	return resp
}

func (s *Server) handleSubmitReport(c echo.Context) error {
	var req submitReportRequest
	if err := c.Bind(&req); err != nil {
		return errors.Validation("request body is not valid JSON")
	}

	report, err := s.app.SubmitReport(c.Request().Context(), &domain.Report{
		SubmittedBy:    req.SubmittedBy,
		SubmitterEmail: req.SubmitterEmail,
		ImagePath:      req.ImagePath,
		Latitude:       req.Latitude,
		Longitude:      req.Longitude,
		Address:        req.Address,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusAccepted, toReportResponse(report))
}

func (s *Server) handleGetReport(c echo.Context) error {
	id, err := parseIDParam(c)
	if err != nil {
		return err
	}

	report, err := s.app.GetReport(c.Request().Context(), id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, toReportResponse(report))
}

func (s *Server) handleListReports(c echo.Context) error {
	status := c.QueryParam("status")
	if status == "" {
		status = domain.ReportStatusPending
	}

	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		if _, err := fmt.Sscanf(raw, "%d", &limit); err != nil {
			return errors.Validation("invalid limit").WithField("limit", raw)
		}
	}

	reports, err := s.app.ListReports(c.Request().Context(), status, limit)
	if err != nil {
		return err
	}

	out := make([]reportResponse, 0, len(reports))
	for _, r := range reports {
		out = append(out, toReportResponse(r))
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleSaveAnalysis(c echo.Context) error {
	id, err := parseIDParam(c)
	if err != nil {
		return err
	}

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return errors.Validation("failed to read request body")
	}

	report, err := s.app.SaveAnalysis(c.Request().Context(), id, body)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, toReportResponse(report))
}

type reviewReportRequest struct {
	ReviewedBy        string `json:"reviewedBy"`
	Severity          string `json:"severity"`
	RecommendedAction string `json:"recommendedAction"`
}

func (s *Server) handleReviewReport(c echo.Context) error {
	id, err := parseIDParam(c)
	if err != nil {
		return err
	}

	var req reviewReportRequest
	if err := c.Bind(&req); err != nil {
		return errors.Validation("request body is not valid JSON")
	}

	report, err := s.app.ReviewReport(c.Request().Context(), id, req.ReviewedBy, req.Severity, req.RecommendedAction)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, toReportResponse(report))
}

// --- Feedback ---

type createFeedbackRequest struct {
	Author  string `json:"author"`
	Subject string `json:"subject"`
	Content string `json:"content"`
}

type feedbackResponse struct {
	ID      string `json:"id"`
	Author  string `json:"author"`
	Subject string `json:"subject,omitempty"`
	Content string `json:"content"`
	Status  string `json:"status"`
	Reply   string `json:"reply,omitempty"`
}

func toFeedbackResponse(f *domain.Feedback) feedbackResponse {
	return feedbackResponse{
		ID:      f.ID.String(),
		Author:  f.Author,
		Subject: f.Subject,
		Content: f.Content,
		Status:  f.Status,
		Reply:   f.Reply,
	}
}

func (s *Server) handleCreateFeedback(c echo.Context) error {
	var req createFeedbackRequest
	if err := c.Bind(&req); err != nil {
		return errors.Validation("request body is not valid JSON")
	}

	fb, err := s.app.CreateFeedback(c.Request().Context(), &domain.Feedback{
		Author:  req.Author,
		Subject: req.Subject,
		Content: req.Content,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, toFeedbackResponse(fb))
}

type updateFeedbackStatusRequest struct {
	Status string `json:"status"`
}

func (s *Server) handleUpdateFeedbackStatus(c echo.Context) error {
	id, err := parseIDParam(c)
	if err != nil {
		return err
	}

	var req updateFeedbackStatusRequest
	if err := c.Bind(&req); err != nil {
		return errors.Validation("request body is not valid JSON")
	}

	fb, err := s.app.UpdateFeedbackStatus(c.Request().Context(), id, req.Status)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, toFeedbackResponse(fb))
}

type replyFeedbackRequest struct {
	Reply string `json:"reply"`
}

func (s *Server) handleReplyFeedback(c echo.Context) error {
	id, err := parseIDParam(c)
	if err != nil {
		return err
	}

	var req replyFeedbackRequest
	if err := c.Bind(&req); err != nil {
		return errors.Validation("request body is not valid JSON")
	}

	fb, err := s.app.ReplyFeedback(c.Request().Context(), id, req.Reply)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, toFeedbackResponse(fb))
}

// --- Ad-hoc notifications ---

type notifyRequest struct {
	Target  string         `json:"target"`
	Title   string         `json:"title"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// handleNotify triggers an ad-hoc notification. It always answers 200 with an
// acknowledgement: delivery is fire-and-forget, an offline target is normal.
func (s *Server) handleNotify(c echo.Context) error {
	var req notifyRequest
	if err := c.Bind(&req); err != nil {
		return errors.Validation("request body is not valid JSON")
	}
	if req.Target == "" {
		return errors.Validation("target is required")
	}

	s.app.Notify(req.Target, req.Title, req.Message, req.Details)

	return c.JSON(http.StatusOK, map[string]string{"status": "accepted"})
}
