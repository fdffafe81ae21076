package api

import (
	"bytes"
	"context"
	"mime"
	"net/http"
	"strconv"

	"ligandscreen/adapters/report"
	"ligandscreen/app"
	"ligandscreen/domain/core"
	"ligandscreen/domain/screening"
	"ligandscreen/internal"
	"ligandscreen/internal/errors"

	"github.com/gin-gonic/gin"
)

const defaultListLimit = 20

// ScreeningService is the application surface the HTTP API drives
type ScreeningService interface {
	Run(ctx context.Context, req app.ScreeningRequest) (*screening.ScreeningRun, error)
	Get(ctx context.Context, id core.RunID) (*screening.ScreeningRun, error)
	List(ctx context.Context, limit int) ([]*screening.ScreeningRun, error)
}

// Server exposes screening over HTTP with gin
type Server struct {
	router  *gin.Engine
	service ScreeningService
	hub     *SSEHub
	logger  *internal.Logger
}

// NewServer builds the router. hub may be nil, which disables /api/events.
func NewServer(service ScreeningService, hub *SSEHub, ginMode string) *Server {
	if ginMode != "" {
		gin.SetMode(ginMode)
	}
	s := &Server{
		router:  gin.New(),
		service: service,
		hub:     hub,
		logger:  internal.DefaultLogger.With("API"),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// Handler returns the HTTP handler for use with http.Server
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(func(c *gin.Context) {
		c.Next()
		s.logger.Debug("%s %s -> %d", c.Request.Method, c.Request.URL.Path, c.Writer.Status())
	})
}

func (s *Server) setupRoutes() {
	s.router.GET("/healthz", s.handleHealth)

	api := s.router.Group("/api")
	api.POST("/screen", s.handleScreen)
	api.GET("/runs", s.handleListRuns)
	api.GET("/runs/:id", s.handleGetRun)
	api.GET("/runs/:id/report.md", s.handleMarkdownReport)
	api.GET("/runs/:id/report.html", s.handleHTMLReport)
	api.GET("/runs/:id/report.xlsx", s.handleXLSXReport)
	api.GET("/runs/:id/histogram.html", s.handleHistogram)
	if s.hub != nil {
		api.GET("/events", s.hub.HandleSSE)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleScreen(c *gin.Context) {
	var req app.ScreeningRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error(), "code": errors.CodeInvalidInput})
		return
	}

	run, err := s.service.Run(c.Request.Context(), req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

func (s *Server) handleListRuns(c *gin.Context) {
	limit := defaultListLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer", "code": errors.CodeInvalidInput})
			return
		}
		limit = n
	}

	runs, err := s.service.List(c.Request.Context(), limit)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs, "count": len(runs)})
}

func (s *Server) handleGetRun(c *gin.Context) {
	if run, ok := s.loadRun(c); ok {
		c.JSON(http.StatusOK, run)
	}
}

func (s *Server) handleMarkdownReport(c *gin.Context) {
	if run, ok := s.loadRun(c); ok {
		c.Data(http.StatusOK, "text/markdown; charset=utf-8", []byte(report.Markdown(run)))
	}
}

func (s *Server) handleHTMLReport(c *gin.Context) {
	if run, ok := s.loadRun(c); ok {
		c.Data(http.StatusOK, "text/html; charset=utf-8", report.HTML(run))
	}
}

func (s *Server) handleXLSXReport(c *gin.Context) {
	run, ok := s.loadRun(c)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := report.WriteXLSX(&buf, run); err != nil {
		s.writeError(c, errors.Wrap(err, "failed to render workbook"))
		return
	}
	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": run.ID.String() + ".xlsx"}))
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
}

func (s *Server) handleHistogram(c *gin.Context) {
	run, ok := s.loadRun(c)
	if !ok {
		return
	}
	page, err := report.HistogramHTML(run)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error(), "code": errors.CodeNotFound})
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", page)
}

func (s *Server) loadRun(c *gin.Context) (*screening.ScreeningRun, bool) {
	id, err := core.ParseRunID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": errors.CodeInvalidInput})
		return nil, false
	}
	run, err := s.service.Get(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, err)
		return nil, false
	}
	return run, true
}

func (s *Server) writeError(c *gin.Context, err error) {
	code := errors.GetCode(err)
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("%s %s failed: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.JSON(status, gin.H{"error": err.Error(), "code": code})
}

func statusFor(err error) int {
	switch {
	case errors.HasCode(err, errors.CodeConfigInvalid), errors.HasCode(err, errors.CodeInvalidInput):
		return http.StatusBadRequest
	case errors.HasCode(err, errors.CodeNotFound):
		return http.StatusNotFound
	case errors.HasCode(err, errors.CodeConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
