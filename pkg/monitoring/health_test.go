package monitoring

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

func TestHealthCheckerAggregates(t *testing.T) {
	hc := NewHealthChecker("svc", "v1")
	hc.AddCheck("ok", func(context.Context) CheckResult { return CheckResult{Status: StatusHealthy} })
	if got := hc.CheckHealth(context.Background()).Status; got != StatusHealthy {
		t.Fatalf("expected healthy, got %s", got)
	}

	hc.AddCheck("cache", PingHealthCheck("redis", func(context.Context) error { return errors.New("down") }, true))
	if got := hc.CheckHealth(context.Background()).Status; got != StatusDegraded {
		t.Fatalf("expected degraded, got %s", got)
	}

	hc.AddCheck("db", PingHealthCheck("postgres", func(context.Context) error { return errors.New("down") }, false))
	status := hc.CheckHealth(context.Background())
	if status.Status != StatusUnhealthy {
		t.Fatalf("expected unhealthy, got %s", status.Status)
	}
	if len(status.Checks) != 3 {
		t.Fatalf("expected 3 checks, got %d", len(status.Checks))
	}
}

func TestHTTPServiceHealthCheck(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusMethodNotAllowed) }))
	defer s.Close()
	if res := HTTPServiceHealthCheck("commerce", s.URL, false)(context.Background()); res.Status != StatusHealthy {
		t.Fatalf("expected healthy, got %+v", res)
	}

	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusBadGateway) }))
	defer broken.Close()
	if res := HTTPServiceHealthCheck("commerce", broken.URL, true)(context.Background()); res.Status != StatusDegraded {
		t.Fatalf("expected degraded, got %+v", res)
	}
}

func TestConfigurationHealthCheck(t *testing.T) {
	res := ConfigurationHealthCheck(map[string]string{"LLM_MODEL": "", "PORT": "18030"})(context.Background())
	if res.Status != StatusUnhealthy || !strings.Contains(res.Message, "LLM_MODEL") {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestHealthHandlerStatusCode(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hc := NewHealthChecker("svc", "v1")
	hc.AddCheck("db", PingHealthCheck("postgres", func(context.Context) error { return errors.New("down") }, false))

	r := gin.New()
	r.GET("/health", hc.Handler())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

func TestMetricsCollectorRecordsRequests(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reg := prometheus.NewRegistry()
	mc := NewMetricsCollector("reva-test", "v1", "abc", reg)

	r := gin.New()
	r.Use(mc.MetricsMiddleware())
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/metrics", mc.Handler())

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ping", nil))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := w.Body.String()
	if !strings.Contains(body, `reva_test_http_requests_total{endpoint="/ping",method="GET",status="200"} 1`) {
		t.Fatalf("expected request counter in metrics output:\n%s", body)
	}
	if !strings.Contains(body, `reva_test_service_info{commit="abc",version="v1"} 1`) {
		t.Fatalf("expected service info in metrics output")
	}
}
