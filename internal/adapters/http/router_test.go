package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/EchoTest/internal/adapters/media"
	"github.com/dkeye/EchoTest/internal/adapters/signal"
	"github.com/dkeye/EchoTest/internal/app"
	"github.com/dkeye/EchoTest/internal/config"
	"github.com/dkeye/EchoTest/internal/domain"
	"github.com/dkeye/EchoTest/internal/metrics"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type fakeDiagnostics struct{}

func (fakeDiagnostics) Sessions() []app.SessionSnap {
	return []app.SessionSnap{{ClientID: "a", State: "recording"}}
}

func (fakeDiagnostics) Pipelines() []media.PipelineInfo {
	return []media.PipelineInfo{{ID: "p1", Mode: "record", Tags: map[string]string{"mode": "test"}, Since: time.Unix(0, 0)}}
}

func (fakeDiagnostics) Kuid() string { return "kms-test" }

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	reg := prometheus.NewRegistry()
	metrics.NewMetrics(reg).ActiveSessions.Set(1)
	cfg := &config.Config{Mode: "test", Secret: "test-secret"}
	return SetupRouter(context.Background(), cfg, Deps{
		Signal:      &signal.SignalWSController{},
		Diagnostics: fakeDiagnostics{},
		Metrics:     promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})
}

func get(t *testing.T, r http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestHealthz(t *testing.T) {
	w := get(t, newTestRouter(t), "/api/healthz")
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	var resp HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "ok" || resp.Kuid != "kms-test" || resp.Sessions != 1 || resp.Pipelines != 1 {
		t.Errorf("unexpected health %+v", resp)
	}
	if !strings.Contains(w.Header().Get("Set-Cookie"), "EchoTestSessions=") {
		t.Errorf("client token cookie not set: %q", w.Header().Get("Set-Cookie"))
	}
}

func TestDiagnosticsLists(t *testing.T) {
	r := newTestRouter(t)

	var sessions []app.SessionSnap
	if err := json.Unmarshal(get(t, r, "/api/sessions").Body.Bytes(), &sessions); err != nil {
		t.Fatalf("decode sessions: %v", err)
	}
	if len(sessions) != 1 || sessions[0].ClientID != "a" || sessions[0].State != "recording" {
		t.Errorf("unexpected sessions %+v", sessions)
	}

	var pipes []media.PipelineInfo
	if err := json.Unmarshal(get(t, r, "/api/pipelines").Body.Bytes(), &pipes); err != nil {
		t.Fatalf("decode pipelines: %v", err)
	}
	if len(pipes) != 1 || pipes[0].Tags["mode"] != "test" {
		t.Errorf("unexpected pipelines %+v", pipes)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	w := get(t, newTestRouter(t), "/metrics")
	body, _ := io.ReadAll(w.Body)
	if w.Code != http.StatusOK || !strings.Contains(string(body), "echotest_sessions_active 1") {
		t.Errorf("unexpected metrics response %d:\n%s", w.Code, body)
	}
}

func TestWebsocketRouteRejectsPlainRequest(t *testing.T) {
	w := get(t, newTestRouter(t), "/api/ws/signal")
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for non-upgrade request, got %d", w.Code)
	}
}

func TestClientTokenMiddlewareReplacesMalformedToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tests := []struct {
		name   string
		stored string
		keep   bool
	}{
		{"valid", "browser-1", true},
		{"empty", "", false},
		{"too long", strings.Repeat("x", domain.MaxClientIDLen+1), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.Use(sessions.Sessions(sessionName, cookie.NewStore([]byte("test-secret"))))
			r.Use(func(c *gin.Context) {
				sessions.Default(c).Set(tokenKey, tt.stored)
				c.Next()
			})
			r.Use(ClientTokenMiddleware())
			r.GET("/token", func(c *gin.Context) {
				c.String(http.StatusOK, c.GetString(clientTokenCK))
			})

			got := get(t, r, "/token").Body.String()
			if _, err := domain.ParseClientID(got); err != nil {
				t.Fatalf("token %q is invalid: %v", got, err)
			}
			if (got == tt.stored) != tt.keep {
				t.Errorf("token %q, stored %q, keep=%v", got, tt.stored, tt.keep)
			}
		})
	}
}
