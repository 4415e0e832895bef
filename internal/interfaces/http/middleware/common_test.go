package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestCORS(t *testing.T) {
	newRouter := func(cfg CORSConfig) *gin.Engine {
		router := gin.New()
		router.Use(CORS(cfg))
		router.GET("/api/v1/invoices", func(c *gin.Context) {
			c.String(http.StatusOK, "ok")
		})
		return router
	}

	allowList := DefaultCORSConfig()
	allowList.AllowOrigins = []string{"https://shop.example.com"}
	allowList.AllowCredentials = true

	wildcard := DefaultCORSConfig()
	wildcard.AllowOrigins = []string{"*"}
	wildcard.AllowCredentials = true

	tests := []struct {
		name            string
		cfg             CORSConfig
		method          string
		origin          string
		wantStatus      int
		wantAllowOrigin string
		wantCredentials string
	}{
		{"default config sets no headers", DefaultCORSConfig(), http.MethodGet, "https://evil.example", http.StatusOK, "", ""},
		{"listed origin is echoed", allowList, http.MethodGet, "https://shop.example.com", http.StatusOK, "https://shop.example.com", "true"},
		{"unlisted origin is ignored", allowList, http.MethodGet, "https://evil.example", http.StatusOK, "", ""},
		{"wildcard never allows credentials", wildcard, http.MethodGet, "https://any.example", http.StatusOK, "*", ""},
		{"preflight ends with no content", allowList, http.MethodOptions, "https://shop.example.com", http.StatusNoContent, "https://shop.example.com", "true"},
		{"preflight from unknown origin", DefaultCORSConfig(), http.MethodOptions, "https://evil.example", http.StatusNoContent, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/v1/invoices", nil)
			req.Header.Set("Origin", tt.origin)
			w := httptest.NewRecorder()
			newRouter(tt.cfg).ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantAllowOrigin, w.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, tt.wantCredentials, w.Header().Get("Access-Control-Allow-Credentials"))
		})
	}

	t.Run("exposes download headers", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/invoices", nil)
		req.Header.Set("Origin", "https://shop.example.com")
		w := httptest.NewRecorder()
		newRouter(allowList).ServeHTTP(w, req)

		assert.Contains(t, w.Header().Get("Access-Control-Expose-Headers"), "Content-Disposition")
		assert.Equal(t, "43200", w.Header().Get("Access-Control-Max-Age"))
	})
}

func TestDefaultCORSConfig(t *testing.T) {
	cfg := DefaultCORSConfig()

	assert.Empty(t, cfg.AllowOrigins)
	assert.False(t, cfg.AllowCredentials)
	assert.Contains(t, cfg.AllowHeaders, RequestIDHeader)
	assert.Equal(t, 12*time.Hour, cfg.MaxAge)
}

func TestRequestID(t *testing.T) {
	router := gin.New()
	router.Use(RequestID())
	router.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, GetRequestID(c))
	})

	tests := []struct {
		name     string
		incoming string
		check    func(t *testing.T, id string)
	}{
		{"generated when absent", "", func(t *testing.T, id string) {
			assert.Len(t, id, 32)
		}},
		{"propagated when present", "upstream-123", func(t *testing.T, id string) {
			assert.Equal(t, "upstream-123", id)
		}},
		{"truncated when too long", strings.Repeat("r", 300), func(t *testing.T, id string) {
			assert.Len(t, id, MaxRequestIDLength)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.incoming != "" {
				req.Header.Set(RequestIDHeader, tt.incoming)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			id := w.Body.String()
			tt.check(t, id)
			assert.Equal(t, id, w.Header().Get(RequestIDHeader))
		})
	}
}

func TestSecure(t *testing.T) {
	router := gin.New()
	router.Use(Secure())
	router.GET("/", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "strict-origin-when-cross-origin", w.Header().Get("Referrer-Policy"))
	assert.Contains(t, w.Header().Get("Content-Security-Policy"), "default-src 'none'")
}
