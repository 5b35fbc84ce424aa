package vision

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOutput_FinalJSONLine(t *testing.T) {
	out := []byte(`Loading model weights...
Running inference on image.jpg
Progress: 50%
{"detections":[{"bbox":[10,20,110,220],"class":"pothole","conf":0.91,"area":20000,"rel_area":0.04}],"severity":{"level":"High","count_score":0.3,"area_score":0.5,"type_score":0.8},"image_dimensions":[640,480],"latitude":48.1,"longitude":11.5,"processing_time":2.3}`)

	result, err := parseOutput(out)

	require.NoError(t, err)
	require.Len(t, result.Detections, 1)
	assert.Equal(t, "pothole", result.Detections[0].Class)
	assert.InDelta(t, 0.91, result.Detections[0].Conf, 0.001)
	assert.Equal(t, "High", result.Severity.Level)
	assert.Equal(t, []int{640, 480}, result.ImageDimensions)
	assert.True(t, result.Reportable())
}

func TestParseOutput_NoDetections(t *testing.T) {
	out := []byte(`Running inference
{"detections":[],"severity":{"level":"None","count_score":0,"area_score":0,"type_score":0}}`)

	result, err := parseOutput(out)

	require.NoError(t, err)
	assert.Empty(t, result.Detections)
	assert.False(t, result.Reportable())
}

func TestParseOutput_SkipsNonJSONTrailingLines(t *testing.T) {
	out := []byte(`{"detections":[],"severity":{"level":"Low","count_score":0.1,"area_score":0.1,"type_score":0.1}}
Cleaning up temp files`)

	result, err := parseOutput(out)

	require.NoError(t, err)
	assert.Equal(t, "Low", result.Severity.Level)
}

func TestParseOutput_NoResult(t *testing.T) {
	_, err := parseOutput([]byte("nothing useful here\n"))

	assert.Error(t, err)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "detect.sh")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o755))
	return path
}

func TestDetect_RunsScript(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script fixture")
	}

	script := writeScript(t, `#!/bin/sh
echo "Loading model..."
echo '{"detections":[{"bbox":[0,0,10,10],"class":"crack","conf":0.7,"area":100,"rel_area":0.01}],"severity":{"level":"Medium","count_score":0.2,"area_score":0.2,"type_score":0.4},"latitude":'$2',"longitude":'$3'}'
`)
	runner := NewRunner("/bin/sh", script, 10*time.Second, testLogger())

	result, err := runner.Detect(context.Background(), "image.jpg", 48.1, 11.5)

	require.NoError(t, err)
	require.Len(t, result.Detections, 1)
	assert.Equal(t, "crack", result.Detections[0].Class)
	assert.InDelta(t, 48.1, result.Latitude, 0.001)
}

func TestDetect_ScriptError(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script fixture")
	}

	script := writeScript(t, `#!/bin/sh
echo '{"error":"model weights not found"}'
`)
	runner := NewRunner("/bin/sh", script, 10*time.Second, testLogger())

	_, err := runner.Detect(context.Background(), "image.jpg", 0, 0)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "detection reported an error")
}

func TestDetect_NonZeroExitKeepsStructuredError(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script fixture")
	}

	script := writeScript(t, `#!/bin/sh
echo '{"error":"cuda out of memory"}'
exit 1
`)
	runner := NewRunner("/bin/sh", script, 10*time.Second, testLogger())

	_, err := runner.Detect(context.Background(), "image.jpg", 0, 0)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "detection reported an error")
	assert.Contains(t, err.Error(), "cuda out of memory")
}

func TestDetect_Timeout(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script fixture")
	}

	script := writeScript(t, `#!/bin/sh
sleep 5
`)
	runner := NewRunner("/bin/sh", script, 100*time.Millisecond, testLogger())

	_, err := runner.Detect(context.Background(), "image.jpg", 0, 0)

	assert.Error(t, err)
}

func TestDetect_BreakerOpensAfterSustainedFailures(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script fixture")
	}

	script := writeScript(t, `#!/bin/sh
exit 1
`)
	runner := NewRunner("/bin/sh", script, time.Second, testLogger())

	for i := 0; i < 10; i++ {
		_, err := runner.Detect(context.Background(), "image.jpg", 0, 0)
		require.Error(t, err)
	}

	assert.Equal(t, gobreaker.StateOpen, runner.State())
}
