// Package vision runs the road damage detection model as a subprocess
// and parses its JSON output.
package vision

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/roadwatch/backend/internal/errors"
	"github.com/roadwatch/backend/internal/metrics"
)

// Detection is a single damage region found in the image.
type Detection struct {
	BBox    []float64 `json:"bbox"`
	Class   string    `json:"class"`
	Conf    float64   `json:"conf"`
	Area    float64   `json:"area"`
	RelArea float64   `json:"rel_area"`
}

// Severity is the aggregate damage assessment for an image.
type Severity struct {
	Level      string  `json:"level"`
	CountScore float64 `json:"count_score"`
	AreaScore  float64 `json:"area_score"`
	TypeScore  float64 `json:"type_score"`
}

// Result is the full output of one detection run.
type Result struct {
	Detections      []Detection     `json:"detections"`
	Severity        Severity        `json:"severity"`
	VitPredictions  json.RawMessage `json:"vit_predictions,omitempty"`
	ImageDimensions []int           `json:"image_dimensions,omitempty"`
	Latitude        float64         `json:"latitude,omitempty"`
	Longitude       float64         `json:"longitude,omitempty"`
	ProcessingTime  float64         `json:"processing_time,omitempty"`
	Error           string          `json:"error,omitempty"`
}

// Reportable reports whether the run found any damage worth surfacing
// to reviewers.
func (r *Result) Reportable() bool {
	return r != nil && len(r.Detections) > 0
}

// Runner executes the detection script with a circuit breaker so a
// broken model environment fails fast instead of piling up processes.
type Runner struct {
	python  string
	script  string
	timeout time.Duration
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
}

// NewRunner creates a runner for the given python interpreter and script path.
func NewRunner(python, script string, timeout time.Duration, logger *slog.Logger) *Runner {
	settings := gobreaker.Settings{
		Name:    "vision",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 5 && counts.TotalFailures*10 >= counts.Requests*6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("vision circuit breaker state changed",
				"from", from.String(),
				"to", to.String(),
			)
			metrics.DetectionBreakerState.Set(breakerStateValue(to))
		},
	}

	return &Runner{
		python:  python,
		script:  script,
		timeout: timeout,
		breaker: gobreaker.NewCircuitBreaker(settings),
		logger:  logger,
	}
}

func breakerStateValue(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// Detect runs the model against the image at path. Latitude and longitude
// are forwarded to the script so they end up embedded in the result.
func (r *Runner) Detect(ctx context.Context, imagePath string, lat, lon float64) (*Result, error) {
	start := time.Now()

	out, err := r.breaker.Execute(func() (any, error) {
		return r.run(ctx, imagePath, lat, lon)
	})

	duration := time.Since(start)
	metrics.DetectionRunDuration.Observe(duration.Seconds())

	if err != nil {
		metrics.DetectionRunsTotal.WithLabelValues("error").Inc()
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, errors.External("detection service unavailable", err)
		}
		return nil, err
	}

	metrics.DetectionRunsTotal.WithLabelValues("success").Inc()
	result := out.(*Result)

	r.logger.Info("detection run completed",
		"image", imagePath,
		"detections", len(result.Detections),
		"severity", result.Severity.Level,
		"duration", duration,
	)
	return result, nil
}

func (r *Runner) run(ctx context.Context, imagePath string, lat, lon float64) (*Result, error) {
	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	args := []string{r.script, imagePath}
	if lat != 0 || lon != 0 {
		args = append(args,
			strconv.FormatFloat(lat, 'f', -1, 64),
			strconv.FormatFloat(lon, 'f', -1, 64),
		)
	}

	cmd := exec.CommandContext(runCtx, r.python, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			return nil, errors.External("detection timed out", runCtx.Err()).
				WithField("image", imagePath)
		}
		// The script prints a JSON error document before exiting non-zero.
		// Prefer that over raw stderr when it is present.
		if result, perr := parseOutput(stdout.Bytes()); perr == nil && result.Error != "" {
			return nil, errors.External("detection reported an error", fmt.Errorf("%s", result.Error)).
				WithField("image", imagePath)
		}
		return nil, errors.External("detection script failed", err).
			WithField("image", imagePath).
			WithField("stderr", truncate(stderr.String(), 512))
	}

	result, err := parseOutput(stdout.Bytes())
	if err != nil {
		return nil, err
	}
	if result.Error != "" {
		return nil, errors.External("detection reported an error", fmt.Errorf("%s", result.Error)).
			WithField("image", imagePath)
	}
	return result, nil
}

// parseOutput extracts the result from the script's stdout. The script
// writes human-readable progress lines first and the JSON document as
// the final line, so we scan for the last line that parses.
func parseOutput(out []byte) (*Result, error) {
	var lines []string
	scanner := bufio.NewScanner(bytes.NewReader(out))
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Internal("failed to read detection output", err)
	}

	for i := len(lines) - 1; i >= 0; i-- {
		if !strings.HasPrefix(lines[i], "{") {
			continue
		}
		var result Result
		if err := json.Unmarshal([]byte(lines[i]), &result); err == nil {
			return &result, nil
		}
	}
	return nil, errors.External("detection output contained no result", nil)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// State exposes the breaker state for readiness checks.
func (r *Runner) State() gobreaker.State {
	return r.breaker.State()
}
