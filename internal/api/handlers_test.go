package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"visitplan/internal/config"
	"visitplan/internal/model"
	"visitplan/internal/webhooks"
)

func newTestServer(t *testing.T, mutate ...func(*config.Config)) *Server {
	t.Helper()
	cfg := &config.Config{}
	cfg.SetDefaults()
	cfg.Cache.Driver = "memory"
	for _, m := range mutate {
		m(cfg)
	}
	s, err := NewServer(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func fp(x float64) *float64 { return &x }

// scenario is three home visits on a 10/10/14 triangle, each 10 minutes
// from the shared depot of two full-time vehicles.
func scenario(runID string) model.OptimizeRequest {
	stopTT := [][]float64{{0, 10, 14}, {10, 0, 10}, {14, 10, 0}}
	tt := make([][]float64, 7)
	for i := range tt {
		tt[i] = make([]float64, 7)
		for j := range tt[i] {
			switch {
			case i == j:
			case i < 3 && j < 3:
				tt[i][j] = stopTT[i][j]
			case i < 3 || j < 3:
				tt[i][j] = 10
			}
		}
	}
	return model.OptimizeRequest{
		RunID:  runID,
		Origin: "2024-03-04T08:00:00Z",
		Stops: []model.StopIn{
			{ID: "a", Lat: 52.5, Lon: 13.4, WindowStartMin: fp(60), WindowEndMin: fp(120), ServiceDurationMin: fp(15)},
			{ID: "b", Lat: 52.51, Lon: 13.41, WindowStartMin: fp(120), WindowEndMin: fp(180), ServiceDurationMin: fp(30)},
			{ID: "c", Lat: 52.52, Lon: 13.42, ServiceDurationMin: fp(10)},
		},
		Vehicles: []model.VehicleIn{
			{ID: "v1", Lat: 52.5, Lon: 13.3, WorkloadFraction: 1},
			{ID: "v2", Lat: 52.5, Lon: 13.3, WorkloadFraction: 1},
		},
		MaxIterations: 50,
		TravelMinutes: tt,
	}
}

func postOptimize(t *testing.T, h http.Handler, body any) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/optimize", bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	h.ServeHTTP(rr, req)
	return rr
}

func TestHealthReady(t *testing.T) {
	s := newTestServer(t)
	h := s.Routes()

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"build"`)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestOptimizeScenario(t *testing.T) {
	s := newTestServer(t)
	h := s.Routes()

	rr := postOptimize(t, h, scenario("run-1"))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var plan model.Plan
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &plan))
	assert.Equal(t, "run-1", plan.RunID)
	assert.Equal(t, "solved", plan.Status)
	require.Len(t, plan.Routes, 2)
	var ids []string
	for _, v := range plan.Routes[0].Visits {
		ids = append(ids, v.StopID)
	}
	assert.Equal(t, []string{"a", "b", "c"}, ids)
	assert.Empty(t, plan.Routes[1].Visits)
	assert.Empty(t, plan.Unassignable)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/runs/run-1/stats", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var st model.RunStats
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &st))
	assert.NotEmpty(t, st.StopReason)
}

func TestOptimizeInfeasibleReturnsPlan(t *testing.T) {
	h := newTestServer(t).Routes()
	req := scenario("run-2")
	req.Stops[1].WindowStartMin, req.Stops[1].WindowEndMin = fp(500), fp(520)
	req.RequireAll = true

	rr := postOptimize(t, h, req)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	var plan model.Plan
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &plan))
	assert.Equal(t, "infeasible", plan.Status)
	require.Len(t, plan.Unassignable, 1)
	assert.Equal(t, "b", plan.Unassignable[0].StopID)
	assert.Equal(t, "unreachable", plan.Unassignable[0].Reason)
}

func TestOptimizeRejectsInvalidRequests(t *testing.T) {
	h := newTestServer(t).Routes()

	cases := map[string]func(*model.OptimizeRequest){
		"no stops":         func(r *model.OptimizeRequest) { r.Stops = nil },
		"no vehicles":      func(r *model.OptimizeRequest) { r.Vehicles = nil },
		"negative budget":  func(r *model.OptimizeRequest) { r.TimeBudgetSec = -1 },
		"negative service": func(r *model.OptimizeRequest) { r.Stops[0].ServiceDurationMin = fp(-5) },
		"inverted window":  func(r *model.OptimizeRequest) { r.Stops[0].WindowStartMin = fp(200) },
		"bad workload":     func(r *model.OptimizeRequest) { r.Vehicles[0].WorkloadFraction = 1.5 },
		"duplicate id":     func(r *model.OptimizeRequest) { r.Stops[1].ID = "a" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := scenario("")
			mutate(&req)
			rr := postOptimize(t, h, req)
			assert.Equal(t, http.StatusBadRequest, rr.Code, rr.Body.String())
			assert.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
		})
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/optimize", strings.NewReader("{")))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/optimize", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestOptimizeRateLimited(t *testing.T) {
	h := newTestServer(t, func(c *config.Config) {
		c.RateLimit.OptimizePerSec = 0.001
		c.RateLimit.Burst = 1
	}).Routes()

	assert.Equal(t, http.StatusOK, postOptimize(t, h, scenario("")).Code)
	rr := postOptimize(t, h, scenario(""))
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "1", rr.Header().Get("Retry-After"))
}

func TestRunStatsNotFound(t *testing.T) {
	h := newTestServer(t).Routes()
	for _, path := range []string{"/v1/runs/missing/stats", "/v1/runs/", "/v1/runs/x/other"} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusNotFound, rr.Code, path)
	}
}

func TestOptimizerConfig(t *testing.T) {
	h := newTestServer(t).Routes()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/optimizer/config", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Defaults map[string]any `json:"defaults"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "gls", body.Defaults["strategy"])
	assert.Equal(t, 480.0, body.Defaults["nominalDayMin"])
	assert.Equal(t, "haversine", body.Defaults["distanceProvider"])
}

func TestProgressStream(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.Routes())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/runs/run-ws/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	b, err := json.Marshal(scenario("run-ws"))
	require.NoError(t, err)
	resp, err := http.Post(srv.URL+"/v1/optimize", "application/json", bytes.NewReader(b))
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var phases []string
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var evt model.ProgressEvent
		if err := conn.ReadJSON(&evt); err != nil {
			break
		}
		assert.Equal(t, "run-ws", evt.RunID)
		phases = append(phases, evt.Phase)
	}
	require.NotEmpty(t, phases)
	assert.Equal(t, "construct", phases[0])
	assert.Equal(t, "done", phases[len(phases)-1])
}

func TestRouteLabel(t *testing.T) {
	assert.Equal(t, "/v1/runs/{id}/stats", routeLabel("/v1/runs/abc/stats"))
	assert.Equal(t, "/v1/runs/{id}", routeLabel("/v1/runs/abc"))
	assert.Equal(t, "/v1/optimize", routeLabel("/v1/optimize"))
}

func TestOpenAPIDocument(t *testing.T) {
	h := newTestServer(t).Routes()

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/openapi.yaml", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "/v1/optimize:")

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/openapi.json", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &doc))
	assert.Equal(t, "3.0.3", doc["openapi"])
}

func TestOptimizeNotifiesWebhook(t *testing.T) {
	got := make(chan webhooks.Event, 1)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var evt webhooks.Event
		if err := json.NewDecoder(r.Body).Decode(&evt); err == nil {
			got <- evt
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer hook.Close()

	h := newTestServer(t, func(c *config.Config) { c.Webhooks.URL = hook.URL }).Routes()
	require.Equal(t, http.StatusOK, postOptimize(t, h, scenario("run-hook")).Code)

	select {
	case evt := <-got:
		assert.Equal(t, "run-hook", evt.RunID)
		assert.Equal(t, "solved", evt.Status)
		assert.Equal(t, 3, evt.Summary.ScheduledCount)
	case <-time.After(2 * time.Second):
		t.Fatal("webhook not delivered")
	}
}
