package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

type captureCounter struct {
	records [][]Label
}

func (c *captureCounter) Inc(_ context.Context, labels ...Label) {
	copied := make([]Label, len(labels))
	copy(copied, labels)
	c.records = append(c.records, copied)
}

func (c *captureCounter) Add(_ context.Context, _ float64, labels ...Label) {
	c.Inc(context.Background(), labels...)
}

type captureHistogram struct {
	records [][]Label
}

func (h *captureHistogram) Record(_ context.Context, _ float64, labels ...Label) {
	copied := make([]Label, len(labels))
	copy(copied, labels)
	h.records = append(h.records, copied)
}

func labelValue(labels []Label, key string) (string, bool) {
	for _, label := range labels {
		if label.Key == key {
			return label.Value, true
		}
	}
	return "", false
}

func TestGinHTTPMiddlewareUnknownRouteForUnmatchedPath(t *testing.T) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	counter := &captureCounter{}
	histogram := &captureHistogram{}
	httpMetrics := &HTTPServerMetrics{
		service:      "svc",
		requestTotal: counter,
		duration:     histogram,
	}

	router := gin.New()
	router.Use(GinHTTPMiddleware(httpMetrics))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/no-such-route", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
	if len(counter.records) != 1 {
		t.Fatalf("counter records = %d, want 1", len(counter.records))
	}

	route, ok := labelValue(counter.records[0], LabelRoute)
	if !ok {
		t.Fatalf("missing %q label", LabelRoute)
	}
	if route != UnknownRoute {
		t.Fatalf("route label = %q, want %q", route, UnknownRoute)
	}
}

func TestGinHTTPMiddlewareUsesRouteTemplate(t *testing.T) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	counter := &captureCounter{}
	histogram := &captureHistogram{}
	httpMetrics := &HTTPServerMetrics{
		service:      "svc",
		requestTotal: counter,
		duration:     histogram,
	}

	router := gin.New()
	router.Use(GinHTTPMiddleware(httpMetrics))
	router.GET("/posts/:id", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/posts/42", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if len(counter.records) != 1 {
		t.Fatalf("counter records = %d, want 1", len(counter.records))
	}

	route, ok := labelValue(counter.records[0], LabelRoute)
	if !ok {
		t.Fatalf("missing %q label", LabelRoute)
	}
	if route != "/posts/:id" {
		t.Fatalf("route label = %q, want %q", route, "/posts/:id")
	}
	if outcome, _ := labelValue(counter.records[0], LabelOutcome); outcome != OutcomeSuccess {
		t.Fatalf("outcome label = %q, want %q", outcome, OutcomeSuccess)
	}
	if len(histogram.records) != 1 {
		t.Fatalf("histogram records = %d, want 1", len(histogram.records))
	}
}

func TestGinHTTPMiddlewareReplayedLabel(t *testing.T) {
	gin.SetMode(gin.TestMode)

	counter := &captureCounter{}
	httpMetrics := &HTTPServerMetrics{
		service:      "svc",
		requestTotal: counter,
		duration:     &captureHistogram{},
		replayHeader: "Idempotent-Replayed",
	}

	router := gin.New()
	router.Use(GinHTTPMiddleware(httpMetrics))
	router.POST("/posts", func(c *gin.Context) {
		if c.Query("replay") != "" {
			c.Header("Idempotent-Replayed", "true")
		}
		c.Status(http.StatusCreated)
	})

	for _, path := range []string{"/posts", "/posts?replay=1"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, path, nil))
	}

	if len(counter.records) != 2 {
		t.Fatalf("counter records = %d, want 2", len(counter.records))
	}
	if v, _ := labelValue(counter.records[0], LabelReplayed); v != "false" {
		t.Fatalf("first replayed label = %q, want %q", v, "false")
	}
	if v, _ := labelValue(counter.records[1], LabelReplayed); v != "true" {
		t.Fatalf("second replayed label = %q, want %q", v, "true")
	}
}

func TestGinHTTPMiddlewareNoReplayLabelByDefault(t *testing.T) {
	gin.SetMode(gin.TestMode)

	counter := &captureCounter{}
	httpMetrics := &HTTPServerMetrics{service: "svc", requestTotal: counter, duration: &captureHistogram{}}

	router := gin.New()
	router.Use(GinHTTPMiddleware(httpMetrics))
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ping", nil))

	if _, ok := labelValue(counter.records[0], LabelReplayed); ok {
		t.Fatalf("unexpected %q label", LabelReplayed)
	}
}
