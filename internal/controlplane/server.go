package controlplane

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/fentz26/baton/internal/coordinator"
	"github.com/fentz26/baton/internal/metrics"
	"github.com/fentz26/baton/internal/models"
	"github.com/fentz26/baton/internal/store"
)

// Pinger reports database health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config holds HTTP server configuration.
type Config struct {
	Addr    string
	Version string
}

// Server provides the HTTP API for Baton.
type Server struct {
	echo    *echo.Echo
	service *Service
	db      Pinger
	logger  *zap.Logger
	config  Config
}

// NewServer creates a new HTTP server.
func NewServer(service *Service, db Pinger, logger *zap.Logger, cfg Config) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Addr == "" {
		cfg.Addr = ":3001"
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return nil
		}
	})

	s := &Server{
		echo:    e,
		service: service,
		db:      db,
		logger:  logger.Named("http"),
		config:  cfg,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	s.echo.POST("/workflows", s.handleStartWorkflow)
	s.echo.GET("/workflows", s.handleListWorkflows)
	s.echo.GET("/workflows/:id", s.handleStatus)
	s.echo.GET("/workflows/:id/history", s.handleHistory)
	s.echo.POST("/workflows/:id/approve", s.handleApprove)
	s.echo.POST("/workflows/:id/reject", s.handleReject)

	s.echo.GET("/agents", s.handleAgents)
	s.echo.GET("/actions", s.handleListActions)
	s.echo.POST("/actions/:id/complete", s.handleCompleteAction)
	s.echo.GET("/violations/:agent", s.handleViolations)
}

// Echo exposes the router for tests and extra routes.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Start starts the HTTP server. It returns http.ErrServerClosed after Shutdown.
func (s *Server) Start() error {
	s.logger.Info("starting http server", zap.String("addr", s.config.Addr))
	return s.echo.Start(s.config.Addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	OK      bool   `json:"ok"`
	DB      string `json:"db"`
	Version string `json:"version"`
	Time    string `json:"time"`
}

func (s *Server) handleHealth(c echo.Context) error {
	resp := HealthResponse{
		OK:      true,
		DB:      "ok",
		Version: s.config.Version,
		Time:    time.Now().UTC().Format(time.RFC3339),
	}
	if s.db != nil {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := s.db.Ping(ctx); err != nil {
			resp.OK = false
			resp.DB = err.Error()
			return c.JSON(http.StatusServiceUnavailable, resp)
		}
	}
	return c.JSON(http.StatusOK, resp)
}

// --- Workflows ---

func (s *Server) handleStartWorkflow(c echo.Context) error {
	var req StartRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	res, err := s.service.StartWorkflow(c.Request().Context(), req)
	if err != nil {
		return s.httpError(err)
	}
	return c.JSON(resultStatus(res), res)
}

func (s *Server) handleListWorkflows(c echo.Context) error {
	active, _ := strconv.ParseBool(c.QueryParam("active"))
	workflows := s.service.ListWorkflows(active)
	if workflows == nil {
		workflows = []*models.Workflow{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"workflows": workflows})
}

func (s *Server) handleStatus(c echo.Context) error {
	res := s.service.Status(c.Param("id"))
	return c.JSON(resultStatus(res), res)
}

func (s *Server) handleHistory(c echo.Context) error {
	wf, err := s.service.History(c.Param("id"))
	if err != nil {
		return s.httpError(err)
	}
	return c.JSON(http.StatusOK, wf)
}

// ApproveRequest is the optional body of POST /workflows/:id/approve.
type ApproveRequest struct {
	Approved *bool `json:"approved,omitempty"`
}

func (s *Server) handleApprove(c echo.Context) error {
	var req ApproveRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	approved := req.Approved == nil || *req.Approved

	res := s.service.ContinueWorkflow(c.Request().Context(), c.Param("id"), approved)
	return c.JSON(resultStatus(res), res)
}

func (s *Server) handleReject(c echo.Context) error {
	res := s.service.ContinueWorkflow(c.Request().Context(), c.Param("id"), false)
	return c.JSON(resultStatus(res), res)
}

// --- Agents, actions, violations ---

func (s *Server) handleAgents(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{"agents": s.service.Agents()})
}

func (s *Server) handleListActions(c echo.Context) error {
	filter := store.ActionFilter{
		ProjectID: c.QueryParam("project_id"),
		Status:    models.UserActionStatus(c.QueryParam("status")),
		Type:      models.UserActionType(c.QueryParam("type")),
	}
	items, err := s.service.ListActions(c.Request().Context(), filter)
	if err != nil {
		return s.httpError(err)
	}
	if items == nil {
		items = []models.UserAction{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"items": items})
}

// CompleteActionRequest is the body of POST /actions/:id/complete.
type CompleteActionRequest struct {
	Notes           string `json:"notes,omitempty"`
	TriggerWorkflow *bool  `json:"trigger_workflow,omitempty"`
}

// CompleteActionResponse reports the completed item and, when the item
// was an approval, the outcome of continuing its workflow.
type CompleteActionResponse struct {
	Success  bool              `json:"success"`
	Item     *models.UserAction `json:"item"`
	Workflow *models.Result    `json:"workflow,omitempty"`
}

func (s *Server) handleCompleteAction(c echo.Context) error {
	var req CompleteActionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	trigger := req.TriggerWorkflow == nil || *req.TriggerWorkflow

	item, res, err := s.service.CompleteAction(c.Request().Context(), c.Param("id"), req.Notes, trigger)
	if err != nil {
		return s.httpError(err)
	}
	return c.JSON(http.StatusOK, CompleteActionResponse{Success: true, Item: item, Workflow: res})
}

func (s *Server) handleViolations(c echo.Context) error {
	agent := models.AgentName(c.Param("agent"))
	found, err := s.service.Violations(agent)
	if err != nil {
		return s.httpError(err)
	}
	if found == nil {
		found = []models.Violation{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"agent":      agent,
		"count":      len(found),
		"violations": found,
	})
}

func (s *Server) httpError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrPromptRequired), errors.Is(err, ErrUnknownAgent):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("request failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}

// resultStatus maps a coordinator outcome onto an HTTP status. Halted
// workflows are valid outcomes and report 200.
func resultStatus(res models.Result) int {
	switch {
	case res.Success:
		return http.StatusOK
	case res.Error == coordinator.MsgNotFound:
		return http.StatusNotFound
	case res.Error == coordinator.MsgNotWaiting, res.Error == coordinator.MsgNoPreviousStep:
		return http.StatusConflict
	case res.Status == models.WorkflowStatusFailed:
		return http.StatusBadGateway
	default:
		return http.StatusOK
	}
}
