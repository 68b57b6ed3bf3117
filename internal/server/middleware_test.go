package server

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subzone/internal/config"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(origins string) *gin.Engine {
	r := gin.New()
	r.Use(requestLogger(logr.Discard()), corsMiddleware(origins))
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	r.GET("/fail", func(c *gin.Context) {
		_ = c.Error(errors.New("boom"))
		c.Status(http.StatusInternalServerError)
	})
	return r
}

func TestCORS(t *testing.T) {
	tests := map[string]struct {
		origins string
		origin  string
		allowed bool
	}{
		"wildcard":      {"*", "https://app.example.com", true},
		"listed":        {"https://a.example.com, https://b.example.com", "https://b.example.com", true},
		"not listed":    {"https://a.example.com", "https://evil.example.net", false},
		"no origin hdr": {"*", "", false},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/ping", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			w := httptest.NewRecorder()
			newRouter(tt.origins).ServeHTTP(w, req)

			assert.Equal(t, http.StatusOK, w.Code)
			if tt.allowed {
				assert.Equal(t, tt.origin, w.Header().Get("Access-Control-Allow-Origin"))
			} else {
				assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
			}
		})
	}
}

func TestCORS_Preflight(t *testing.T) {
	req := httptest.NewRequest(http.MethodOptions, "/api/dns/records", nil)
	req.Header.Set("Origin", "https://app.example.com")
	w := httptest.NewRecorder()
	newRouter("*").ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "Authorization")
}

func TestRequestLogger_PassesThrough(t *testing.T) {
	w := httptest.NewRecorder()
	newRouter("*").ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/fail", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestNewLogger(t *testing.T) {
	log, sync, err := NewLogger(config.LogConfig{Development: true, Level: "debug"})
	require.NoError(t, err)
	defer sync()
	assert.True(t, log.V(1).Enabled())

	_, _, err = NewLogger(config.LogConfig{Level: "loud"})
	assert.Error(t, err)
}
