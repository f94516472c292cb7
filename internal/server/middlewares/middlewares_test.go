package middlewares

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/givlyn/backupd/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEngine(mw ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(mw...)
	r.POST("/api/backup", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"success": true})
	})
	return r
}

func post(r http.Handler, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/backup", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	req.RemoteAddr = "10.0.0.1:1234"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestTokenAuth(t *testing.T) {
	r := newEngine(TokenAuth("s3cret"))

	assert.Equal(t, http.StatusOK, post(r, "Bearer s3cret").Code)

	w := post(r, "Bearer wrong")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "E_UNAUTHORIZED")

	assert.Equal(t, http.StatusUnauthorized, post(r, "").Code)
}

func TestTokenAuth_Disabled(t *testing.T) {
	r := newEngine(TokenAuth(""))
	assert.Equal(t, http.StatusOK, post(r, "").Code)
}

func TestRateLimiter(t *testing.T) {
	mw, err := RateLimiter("2-M")
	require.NoError(t, err)
	r := newEngine(mw)

	assert.Equal(t, http.StatusOK, post(r, "").Code)
	assert.Equal(t, http.StatusOK, post(r, "").Code)

	w := post(r, "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "E_RATE_LIMITED")
}

func TestRateLimiter_InvalidRate(t *testing.T) {
	_, err := RateLimiter("lots")
	assert.Error(t, err)
}

func TestSecureHeaders(t *testing.T) {
	w := post(newEngine(Secure(false)), "")
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
}

func TestMetricsMiddleware(t *testing.T) {
	m := metrics.New()
	r := newEngine(Metrics(m))

	post(r, "")

	families, err := m.Registry().Gather()
	require.NoError(t, err)

	found := false
	for _, f := range families {
		if f.GetName() == "backupd_http_requests_total" {
			found = true
			require.Len(t, f.GetMetric(), 1)
			assert.Equal(t, 1.0, f.GetMetric()[0].GetCounter().GetValue())
		}
	}
	assert.True(t, found)
}
