package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roadwatch/backend/internal/config"
	"github.com/roadwatch/backend/internal/domain"
	"github.com/roadwatch/backend/internal/errors"
)

// stubApp records calls and returns canned results.
type stubApp struct {
	report   *domain.Report
	feedback *domain.Feedback
	err      error

	notifiedTarget string
	notifiedTitle  string
}

func (s *stubApp) SubmitReport(_ context.Context, r *domain.Report) (*domain.Report, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := *r
	out.ID = uuid.New()
	out.Status = domain.ReportStatusPending
	out.CreatedAt = time.Now()
	return &out, nil
}

func (s *stubApp) GetReport(context.Context, uuid.UUID) (*domain.Report, error) {
	return s.report, s.err
}

func (s *stubApp) ListReports(context.Context, string, int) ([]*domain.Report, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.report == nil {
		return nil, nil
	}
	return []*domain.Report{s.report}, nil
}

func (s *stubApp) SaveAnalysis(context.Context, uuid.UUID, []byte) (*domain.Report, error) {
	return s.report, s.err
}

func (s *stubApp) ReviewReport(context.Context, uuid.UUID, string, string, string) (*domain.Report, error) {
	return s.report, s.err
}

func (s *stubApp) CreateFeedback(_ context.Context, fb *domain.Feedback) (*domain.Feedback, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := *fb
	out.ID = uuid.New()
	out.Status = domain.FeedbackStatusOpen
	return &out, nil
}

func (s *stubApp) UpdateFeedbackStatus(context.Context, uuid.UUID, string) (*domain.Feedback, error) {
	return s.feedback, s.err
}

func (s *stubApp) ReplyFeedback(context.Context, uuid.UUID, string) (*domain.Feedback, error) {
	return s.feedback, s.err
}

func (s *stubApp) Notify(target, title, _ string, _ map[string]any) {
	s.notifiedTarget = target
	s.notifiedTitle = title
}

func newTestServer(t *testing.T, app *stubApp) *Server {
	t.Helper()

	cfg := &config.Config{
		Port:        "0",
		NotifyRate:  1000,
		NotifyBurst: 1000,
	}
	ws := func(c echo.Context) error { return c.NoContent(http.StatusOK) }
	return NewServer(cfg, app, ws, nil)
}

func doRequest(srv *Server, method, path, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)
	return rec
}

func testReport() *domain.Report {
	return &domain.Report{
		ID:          uuid.New(),
		SubmittedBy: "user_alice",
		ImagePath:   "uploads/road.jpg",
		Status:      domain.ReportStatusProcessed,
		Severity:    "High",
		CreatedAt:   time.Now(),
	}
}

func TestHandleSubmitReport(t *testing.T) {
	srv := newTestServer(t, &stubApp{})

	rec := doRequest(srv, http.MethodPost, "/api/reports",
		`{"submittedBy":"user_alice","imagePath":"uploads/road.jpg","latitude":48.1,"longitude":11.5}`)

	assert.Equal(t, http.StatusAccepted, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "pending", resp["status"])
	assert.Equal(t, "user_alice", resp["submittedBy"])
	assert.NotEmpty(t, resp["id"])
}

func TestHandleSubmitReport_ValidationError(t *testing.T) {
	srv := newTestServer(t, &stubApp{err: errors.Validation("submittedBy is required")})

	rec := doRequest(srv, http.MethodPost, "/api/reports", `{"imagePath":"x.jpg"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleGetReport(t *testing.T) {
	report := testReport()
	srv := newTestServer(t, &stubApp{report: report})

	rec := doRequest(srv, http.MethodGet, "/api/reports/"+report.ID.String(), "")

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, report.ID.String(), resp["id"])
	assert.Equal(t, "High", resp["severity"])
}

func TestHandleGetReport_BadID(t *testing.T) {
	srv := newTestServer(t, &stubApp{})

	rec := doRequest(srv, http.MethodGet, "/api/reports/not-a-uuid", "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleGetReport_NotFound(t *testing.T) {
	srv := newTestServer(t, &stubApp{err: errors.NotFound("report not found")})

	rec := doRequest(srv, http.MethodGet, "/api/reports/"+uuid.NewString(), "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleReviewReport(t *testing.T) {
	report := testReport()
	report.Status = domain.ReportStatusReviewed
	report.ReviewedBy = "admin_1"
	srv := newTestServer(t, &stubApp{report: report})

	rec := doRequest(srv, http.MethodPost, "/api/reports/"+report.ID.String()+"/review",
		`{"reviewedBy":"admin_1","severity":"Medium","recommendedAction":"Schedule repair"}`)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "reviewed", resp["status"])
	assert.Equal(t, "admin_1", resp["reviewedBy"])
}

func TestHandleSaveAnalysis(t *testing.T) {
	report := testReport()
	srv := newTestServer(t, &stubApp{report: report})

	rec := doRequest(srv, http.MethodPost, "/api/reports/"+report.ID.String()+"/analysis",
		`{"detections":[],"severity":{"level":"Low"}}`)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleCreateFeedback(t *testing.T) {
	srv := newTestServer(t, &stubApp{})

	rec := doRequest(srv, http.MethodPost, "/api/feedback",
		`{"author":"user_dave","subject":"Pothole","content":"Still broken"}`)

	assert.Equal(t, http.StatusCreated, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "open", resp["status"])
}

func TestHandleNotify_AlwaysAcknowledges(t *testing.T) {
	app := &stubApp{}
	srv := newTestServer(t, app)

	rec := doRequest(srv, http.MethodPost, "/api/notify",
		`{"target":"user_ghost","title":"Hello","message":"You are offline"}`)

	// Offline target still gets a 200: delivery is fire-and-forget.
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user_ghost", app.notifiedTarget)
	assert.Equal(t, "Hello", app.notifiedTitle)
}

func TestHandleNotify_MissingTarget(t *testing.T) {
	srv := newTestServer(t, &stubApp{})

	rec := doRequest(srv, http.MethodPost, "/api/notify", `{"title":"Hello"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthLiveness(t *testing.T) {
	srv := newTestServer(t, &stubApp{})

	rec := doRequest(srv, http.MethodGet, "/health/live", "")

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
}

func TestHealthReadiness_FailingCheck(t *testing.T) {
	cfg := &config.Config{Port: "0", NotifyRate: 1000, NotifyBurst: 1000}
	ws := func(c echo.Context) error { return c.NoContent(http.StatusOK) }
	srv := NewServer(cfg, &stubApp{}, ws, []HealthCheck{
		{Name: "database", Check: func(context.Context) error { return errors.External("db down", nil) }},
	})

	rec := doRequest(srv, http.MethodGet, "/health/ready", "")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "database", resp["failed_check"])
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, &stubApp{})

	rec := doRequest(srv, http.MethodGet, "/metrics", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
