package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newMetricsRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Metrics())
	r.Use(IdempotencyValidator(IdempotencyOptions{}, func(_ context.Context, key string) (bool, error) {
		return key == "stored", nil
	}))
	return r
}

func TestMetrics_RouteLabelsAndUnmatched(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Metrics())
	r.GET("/digests/:id", func(c *gin.Context) { c.String(http.StatusOK, "digest") })
	r.POST("/digests/run", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	baseGet := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/digests/:id", "200"))
	baseRun := testutil.ToFloat64(httpReqs.WithLabelValues("POST", "/digests/run", "204"))
	baseMiss := testutil.ToFloat64(httpReqs.WithLabelValues("GET", unmatchedRoute, "404"))

	for _, tc := range []struct {
		method, path string
		want         int
	}{
		{http.MethodGet, "/digests/d-1", http.StatusOK},
		{http.MethodGet, "/digests/d-2", http.StatusOK},
		{http.MethodPost, "/digests/run", http.StatusNoContent},
		{http.MethodGet, "/wp-login.php", http.StatusNotFound},
		{http.MethodGet, "/random/" + strings.Repeat("x", 40), http.StatusNotFound},
	} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(tc.method, tc.path, nil))
		if w.Code != tc.want {
			t.Fatalf("%s %s -> %d; want %d", tc.method, tc.path, w.Code, tc.want)
		}
	}

	if got := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/digests/:id", "200")); got != baseGet+2 {
		t.Fatalf("route counter = %v; want %v", got, baseGet+2)
	}
	if got := testutil.ToFloat64(httpReqs.WithLabelValues("POST", "/digests/run", "204")); got != baseRun+1 {
		t.Fatalf("run counter = %v; want %v", got, baseRun+1)
	}
	if got := testutil.ToFloat64(httpReqs.WithLabelValues("GET", unmatchedRoute, "404")); got != baseMiss+2 {
		t.Fatalf("unmatched counter = %v; want %v", got, baseMiss+2)
	}
	if inFlight := testutil.ToFloat64(httpInflight); inFlight != 0 {
		t.Fatalf("httpInflight = %v; want 0", inFlight)
	}
}

func TestMetrics_CountsReplays(t *testing.T) {
	r := newMetricsRouter()
	r.POST("/events", func(c *gin.Context) { c.Status(http.StatusOK) })

	base := testutil.ToFloat64(httpReplays.WithLabelValues("/events"))

	for _, key := range []string{"fresh", "stored", ""} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/events", strings.NewReader(`{"type":"location"}`))
		if key != "" {
			req.Header.Set(HeaderIdempotencyKey, key)
		}
		r.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("key %q -> %d", key, w.Code)
		}
	}

	if got := testutil.ToFloat64(httpReplays.WithLabelValues("/events")); got != base+1 {
		t.Fatalf("replays = %v; want %v", got, base+1)
	}
}
