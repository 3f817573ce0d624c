package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func invokeCronAuth(t *testing.T, secret, authorization string) (int, bool) {
	t.Helper()

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/cron/scan", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	called := false
	handler := CronAuth(testLogger(), secret)(func(c echo.Context) error {
		called = true
		return c.NoContent(http.StatusOK)
	})

	err := handler(c)
	if err == nil {
		return rec.Code, called
	}

	httpErr, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	return httpErr.Code, called
}

func TestCronAuth_AcceptsMatchingSecret(t *testing.T) {
	code, called := invokeCronAuth(t, "hunter2", "Bearer hunter2")

	assert.Equal(t, http.StatusOK, code)
	assert.True(t, called)
}

func TestCronAuth_RejectsWrongSecret(t *testing.T) {
	code, called := invokeCronAuth(t, "hunter2", "Bearer wrong")

	assert.Equal(t, http.StatusUnauthorized, code)
	assert.False(t, called)
}

func TestCronAuth_RejectsMissingBearer(t *testing.T) {
	code, called := invokeCronAuth(t, "hunter2", "")

	assert.Equal(t, http.StatusUnauthorized, code)
	assert.False(t, called)
}

func TestCronAuth_DisabledWithoutSecret(t *testing.T) {
	code, called := invokeCronAuth(t, "", "Bearer anything")

	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.False(t, called)
}

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}
