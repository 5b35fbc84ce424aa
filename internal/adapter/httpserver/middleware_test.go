package httpserver

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roadwatch/backend/internal/platform/correlation"
)

func TestCorrelationMiddleware_StampsRequestContext(t *testing.T) {
	e := echo.New()
	e.Use(correlationMiddleware)

	var gotID string
	e.GET("/", func(c echo.Context) error {
		id, ok := correlation.ID(c.Request().Context())
		require.True(t, ok)
		gotID = id
		return c.NoContent(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, gotID, 8)
	assert.Regexp(t, "^[0-9a-f]{8}$", gotID)
}

func TestCorrelationMiddleware_FreshIDPerRequest(t *testing.T) {
	e := echo.New()
	e.Use(correlationMiddleware)

	var ids []string
	e.GET("/", func(c echo.Context) error {
		id, _ := correlation.ID(c.Request().Context())
		ids = append(ids, id)
		return c.NoContent(http.StatusOK)
	})

	for range 2 {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	}

	require.Len(t, ids, 2)
	assert.NotEqual(t, ids[0], ids[1])
}
