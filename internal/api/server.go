// Package api exposes the console session over HTTP.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/roadops/operator-console/internal/console"
	"github.com/roadops/operator-console/internal/dispatcher"
	"github.com/roadops/operator-console/internal/geo"
	"github.com/roadops/operator-console/pkg/core"
)

// Dependencies holds everything the API serves.
type Dependencies struct {
	Session    *console.Session
	Dispatcher *dispatcher.Dispatcher
	// Georeferencer places GeoJSON output on the globe. Nil keeps scene
	// metres.
	Georeferencer *geo.Georeferencer
	Logger        *slog.Logger
	Version       string
}

// Server is the HTTP API.
type Server struct {
	deps Dependencies
	echo *echo.Echo
}

// NewServer builds the API and registers its routes.
func NewServer(deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(deps.Logger.With("component", "error_handler"))

	s := &Server{deps: deps, echo: e}

	g := e.Group("/api")
	g.GET("/health", s.health)
	g.GET("/status", s.status)
	g.GET("/hero", s.hero)
	g.GET("/view", s.view)

	g.GET("/path", s.currentPath)
	g.POST("/path", s.newPath)
	g.PUT("/path", s.replacePath)
	g.POST("/path/points", s.addPoint)
	g.PUT("/path/points/:id", s.updatePoint)
	g.DELETE("/path/points/:id", s.removePoint)
	g.POST("/path/submit", s.submitPath)
	g.POST("/path/resolve", s.resolvePath)
	g.GET("/path/geojson", s.pathGeoJSON)

	g.GET("/traffic", s.traffic)
	g.PUT("/layers/traffic", s.setTrafficLayer)

	g.GET("/scenarios", s.scenarios)
	g.POST("/scenario/:name", s.loadScenario)

	g.POST("/commands", s.command)
	return s
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves on addr until Shutdown.
func (s *Server) Start(addr string) error {
	s.deps.Logger.Info("API listening", "addr", addr)
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) health(c echo.Context) error {
	data := map[string]any{
		"service":   "operator-console",
		"version":   s.deps.Version,
		"session":   s.deps.Session.Info().ID,
		"timestamp": time.Now().Unix(),
	}
	return c.JSON(http.StatusOK, SuccessResponse("Service is healthy", data))
}

func (s *Server) status(c echo.Context) error {
	return c.JSON(http.StatusOK, SuccessResponse("", s.deps.Session.Status()))
}

func (s *Server) hero(c echo.Context) error {
	return c.JSON(http.StatusOK, SuccessResponse("", s.deps.Session.Hero()))
}

func (s *Server) view(c echo.Context) error {
	return c.JSON(http.StatusOK, SuccessResponse("", s.deps.Session.View()))
}

func (s *Server) currentPath(c echo.Context) error {
	return c.JSON(http.StatusOK, SuccessResponse("", s.deps.Session.Path().Current()))
}

func (s *Server) newPath(c echo.Context) error {
	p := s.deps.Session.Path().NewProposal()
	return c.JSON(http.StatusCreated, SuccessResponse("Path proposal started", p))
}

type replaceRequest struct {
	Points []core.Vec3 `json:"points"`
}

func (s *Server) replacePath(c echo.Context) error {
	var req replaceRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	p := s.deps.Session.Path().Replace(req.Points)
	return c.JSON(http.StatusOK, SuccessResponse("Path proposal replaced", p))
}

func (s *Server) addPoint(c echo.Context) error {
	var pos core.Vec3
	if err := c.Bind(&pos); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	pt, err := s.deps.Session.Path().AddPoint(pos)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, SuccessResponse("Point added", pt))
}

func (s *Server) updatePoint(c echo.Context) error {
	var pos core.Vec3
	if err := c.Bind(&pos); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	if err := s.deps.Session.Path().UpdatePoint(c.Param("id"), pos); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, SuccessResponse("Point moved", s.deps.Session.Path().Current()))
}

func (s *Server) removePoint(c echo.Context) error {
	if err := s.deps.Session.Path().RemovePoint(c.Param("id")); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, SuccessResponse("Point removed", s.deps.Session.Path().Current()))
}

func (s *Server) submitPath(c echo.Context) error {
	if err := s.deps.Session.Path().Submit(); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, SuccessResponse("Path submitted", s.deps.Session.Path().Current()))
}

type resolveRequest struct {
	Outcome core.PathStatus `json:"outcome"`
}

func (s *Server) resolvePath(c echo.Context) error {
	var req resolveRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	if err := s.deps.Session.Path().Resolve(req.Outcome); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, SuccessResponse("Path resolved", s.deps.Session.Path().Current()))
}

func (s *Server) pathGeoJSON(c echo.Context) error {
	b, err := geo.PathFeature(s.deps.Session.Path().Current(), s.deps.Georeferencer)
	if err != nil {
		return err
	}
	return c.Blob(http.StatusOK, "application/geo+json", b)
}

func (s *Server) traffic(c echo.Context) error {
	return c.JSON(http.StatusOK, SuccessResponse("", s.deps.Session.Traffic().Frame()))
}

type layerRequest struct {
	Visible *bool `json:"visible"`
}

func (s *Server) setTrafficLayer(c echo.Context) error {
	var req layerRequest
	if err := c.Bind(&req); err != nil || req.Visible == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Body must be {\"visible\": bool}")
	}
	s.deps.Session.SetTrafficVisible(*req.Visible)
	return c.JSON(http.StatusOK, SuccessResponse("Traffic layer updated", map[string]bool{"visible": *req.Visible}))
}

func (s *Server) scenarios(c echo.Context) error {
	return c.JSON(http.StatusOK, SuccessResponse("", console.ScenarioNames()))
}

func (s *Server) loadScenario(c echo.Context) error {
	if err := s.deps.Session.LoadScenario(c.Param("name")); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, SuccessResponse("Scenario loaded", s.deps.Session.Info()))
}

type commandRequest struct {
	Command string   `json:"command"`
	Args    []string `json:"args"`
}

func (s *Server) command(c echo.Context) error {
	if s.deps.Dispatcher == nil {
		return echo.NewHTTPError(http.StatusNotFound, "Commands are not enabled")
	}
	var req commandRequest
	if err := c.Bind(&req); err != nil || req.Command == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	res, err := s.deps.Dispatcher.Dispatch(dispatcher.Event{
		Command: req.Command,
		Args:    req.Args,
		Source:  "api",
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, SuccessResponse("Command handled", res))
}
