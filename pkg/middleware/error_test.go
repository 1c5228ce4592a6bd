package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	apperrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEcho() *echo.Echo {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	e := echo.New()
	e.HTTPErrorHandler = Error(logger)
	e.Use(Context())
	return e
}

func TestErrorHandler(t *testing.T) {
	e := newTestEcho()
	e.GET("/paid", func(c echo.Context) error {
		return &apperrors.AlreadyPaidError{CommissionID: "c-1"}
	})
	e.GET("/echo", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusTeapot, "short and stout")
	})
	e.GET("/wrapped", func(c echo.Context) error {
		return fmt.Errorf("load series: %w", httperror.NewHTTPError(http.StatusNotFound, "series tulum-1 not found"))
	})
	e.GET("/plain", func(c echo.Context) error {
		return assert.AnError
	})

	tests := []struct {
		path    string
		code    int
		message string
	}{
		{"/paid", http.StatusConflict, "commission c-1 has already been paid"},
		{"/echo", http.StatusTeapot, "short and stout"},
		{"/wrapped", http.StatusNotFound, "series tulum-1 not found"},
		{"/plain", http.StatusInternalServerError, "Internal Server Error"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			req.Header.Set(echo.HeaderXRequestID, "req-123")
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			assert.Equal(t, tt.code, rec.Code)
			var body ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.message, body.Message)
			assert.Equal(t, "req-123", body.RequestID)
			assert.NotContains(t, body.Message, "HTTP Error")
		})
	}
}

func TestContextMiddlewareSetsUser(t *testing.T) {
	e := newTestEcho()
	var actor string
	e.GET("/whoami", func(c echo.Context) error {
		actor = c.Request().Header.Get(HeaderUserID)
		return c.NoContent(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set(HeaderUserID, "ops-7")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "ops-7", actor)
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))
}
