package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roadops/operator-console/internal/config"
	"github.com/roadops/operator-console/internal/console"
	"github.com/roadops/operator-console/internal/dispatcher"
	"github.com/roadops/operator-console/internal/geo"
	"github.com/roadops/operator-console/internal/logging"
	"github.com/roadops/operator-console/internal/path"
	"github.com/roadops/operator-console/internal/traffic"
	"github.com/roadops/operator-console/pkg/core"
)

func newTestServer(t *testing.T) (*Server, *console.Session) {
	t.Helper()
	sess, err := console.New(console.Options{
		Scenario:       console.ScenarioStuck,
		Telemetry:      config.TelemetryConfig{Interval: time.Hour},
		Traffic:        traffic.DefaultParams(),
		TrafficVisible: true,
	})
	require.NoError(t, err)
	t.Cleanup(sess.Close)

	d, err := dispatcher.New(logging.NewDispatcherLogger(zerolog.Nop()))
	require.NoError(t, err)
	sess.RegisterCommands(d)
	t.Cleanup(d.Close)

	return NewServer(Dependencies{Session: sess, Dispatcher: d, Version: "test"}), sess
}

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func do(t *testing.T, s *Server, method, target, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func TestHealth(t *testing.T) {
	s, sess := newTestServer(t)
	rec, env := do(t, s, http.MethodGet, "/api/health", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "success", env.Status)
	assert.Contains(t, string(env.Data), sess.Info().ID)
	assert.Contains(t, string(env.Data), `"version":"test"`)
}

func TestReadEndpoints(t *testing.T) {
	s, _ := newTestServer(t)

	rec, env := do(t, s, http.MethodGet, "/api/hero", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	var h core.HeroVehicleState
	require.NoError(t, json.Unmarshal(env.Data, &h))
	assert.Equal(t, core.AutonomyStuck, h.AutonomyState)

	rec, env = do(t, s, http.MethodGet, "/api/path", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	var p core.PathProposal
	require.NoError(t, json.Unmarshal(env.Data, &p))
	assert.Len(t, p.Points, 4)

	rec, env = do(t, s, http.MethodGet, "/api/view", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(env.Data), `"indicator":"#E74C3C"`)

	rec, env = do(t, s, http.MethodGet, "/api/traffic", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	var f core.TrafficFrame
	require.NoError(t, json.Unmarshal(env.Data, &f))
	assert.Len(t, f.Agents, 8)

	rec, _ = do(t, s, http.MethodGet, "/api/status", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, env = do(t, s, http.MethodGet, "/api/scenarios", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `["nominal","stuck"]`, string(env.Data))
}

func TestPathLifecycle(t *testing.T) {
	s, sess := newTestServer(t)

	rec, env := do(t, s, http.MethodPost, "/api/path/points", `{"x":1,"y":0.1,"z":40}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var pt core.PathPoint
	require.NoError(t, json.Unmarshal(env.Data, &pt))
	assert.NotEmpty(t, pt.ID)

	rec, _ = do(t, s, http.MethodPut, "/api/path/points/"+pt.ID, `{"x":2,"y":0.1,"z":42}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, core.Vec3{X: 2, Y: 0.1, Z: 42}, sess.Path().Current().Points[4].Position)

	rec, env = do(t, s, http.MethodPut, "/api/path/points/missing", `{"x":2,"z":42}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "error", env.Status)

	rec, _ = do(t, s, http.MethodDelete, "/api/path/points/"+pt.ID, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, sess.Path().Current().Points, 4)

	rec, _ = do(t, s, http.MethodPost, "/api/path/submit", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = do(t, s, http.MethodPost, "/api/path/submit", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, _ = do(t, s, http.MethodPost, "/api/path/points", `{"x":1,"z":1}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, _ = do(t, s, http.MethodPost, "/api/path/resolve", `{"outcome":"submitted"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, env = do(t, s, http.MethodPost, "/api/path/resolve", `{"outcome":"rejected"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(env.Data), `"status":"rejected"`)

	rec, env = do(t, s, http.MethodPost, "/api/path", "")
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, string(env.Data), `"status":"draft"`)
}

func TestSubmitTooFewPoints(t *testing.T) {
	s, _ := newTestServer(t)

	rec, _ := do(t, s, http.MethodPut, "/api/path", `{"points":[{"x":0,"y":0,"z":0}]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = do(t, s, http.MethodPost, "/api/path/submit", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec, _ = do(t, s, http.MethodGet, "/api/path/geojson", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestPathGeoJSON(t *testing.T) {
	s, sess := newTestServer(t)

	rec, _ := do(t, s, http.MethodGet, "/api/path/geojson", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/geo+json", rec.Header().Get(echo.HeaderContentType))

	var feature struct {
		Type     string `json:"type"`
		ID       string `json:"id"`
		Geometry struct {
			Type        string      `json:"type"`
			Coordinates [][]float64 `json:"coordinates"`
		} `json:"geometry"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &feature))
	assert.Equal(t, "Feature", feature.Type)
	assert.Equal(t, sess.Path().Current().ID, feature.ID)
	assert.Equal(t, "LineString", feature.Geometry.Type)
	assert.Len(t, feature.Geometry.Coordinates, 4)
}

func TestTrafficLayer(t *testing.T) {
	s, sess := newTestServer(t)

	rec, _ := do(t, s, http.MethodPut, "/api/layers/traffic", `{"visible":false}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, sess.Traffic().Visible())

	_, env := do(t, s, http.MethodGet, "/api/traffic", "")
	var f core.TrafficFrame
	require.NoError(t, json.Unmarshal(env.Data, &f))
	assert.Empty(t, f.Agents)

	rec, _ = do(t, s, http.MethodPut, "/api/layers/traffic", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestScenarioLoad(t *testing.T) {
	s, sess := newTestServer(t)

	rec, _ := do(t, s, http.MethodPost, "/api/scenario/nominal", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, core.AutonomyNominal, sess.Hero().AutonomyState)

	rec, _ = do(t, s, http.MethodPost, "/api/scenario/gridlock", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCommands(t *testing.T) {
	s, sess := newTestServer(t)

	rec, _ := do(t, s, http.MethodPost, "/api/commands", `{"command":":LAYER:TRAFFIC:","args":["false"]}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, sess.Traffic().Visible())

	rec, _ = do(t, s, http.MethodPost, "/api/commands", `{"command":":NOPE:"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = do(t, s, http.MethodPost, "/api/commands", `{"command":":PATH:ADD:","args":["a","b"]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, s, http.MethodPost, "/api/commands", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCommands_Disabled(t *testing.T) {
	s, _ := newTestServer(t)
	s.deps.Dispatcher = nil

	rec, _ := do(t, s, http.MethodPost, "/api/commands", `{"command":":STATUS:"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&path.TransitionError{Op: "submit", From: core.PathAccepted}, http.StatusConflict},
		{fmt.Errorf("x: %w", path.ErrTooFewPoints), http.StatusUnprocessableEntity},
		{geo.ErrTooFewPoints, http.StatusUnprocessableEntity},
		{path.ErrPointNotFound, http.StatusNotFound},
		{console.ErrUnknownScenario, http.StatusNotFound},
		{dispatcher.ErrUnknownCommand, http.StatusNotFound},
		{path.ErrInvalidOutcome, http.StatusBadRequest},
		{geo.ErrInvalidCoordinates, http.StatusBadRequest},
		{console.ErrMissingArgument, http.StatusBadRequest},
		{dispatcher.ErrClosed, http.StatusServiceUnavailable},
		{echo.NewHTTPError(http.StatusTeapot), http.StatusTeapot},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusFor(tt.err), tt.err.Error())
	}
}
