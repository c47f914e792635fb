// Package server implements an HTTP control surface for a training
// run. Lifecycle commands drive an experiment.Runner, and read-only
// endpoints serve the metrics, environment state, and advice tracked
// during training.
package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samuelfneumann/pointmass/advisor"
	"github.com/samuelfneumann/pointmass/environment/pointmass"
	"github.com/samuelfneumann/pointmass/experiment"
	"github.com/samuelfneumann/pointmass/experiment/tracker"
	"go.uber.org/zap"
)

// Controller controls the lifecycle of a training run
type Controller interface {
	Start()
	Stop()
	Reset() error
	Status() experiment.Status
	SimState() pointmass.SimState
}

// Server serves the HTTP API of a training run
type Server struct {
	runner Controller
	window *tracker.Window
	advice *advisor.Dispatcher
	logger *zap.Logger
	engine *gin.Engine
}

// New returns a new Server. The window must be registered with the
// runner as a Tracker. If advice is nil, advice is not served.
func New(runner Controller, window *tracker.Window,
	advice *advisor.Dispatcher, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger))

	s := &Server{
		runner: runner,
		window: window,
		advice: advice,
		logger: logger,
		engine: r,
	}
	s.setupRoutes(r)
	return s
}

func (s *Server) setupRoutes(r *gin.Engine) {
	// Lifecycle
	r.POST("/start", s.handleStart)
	r.POST("/stop", s.handleStop)
	r.POST("/reset", s.handleReset)

	// Read-only views of the run
	r.GET("/status", s.handleStatus)
	r.GET("/metrics", s.handleMetrics)
	r.GET("/state", s.handleState)
	r.GET("/advice", s.handleAdvice)
}

// Handler returns the http.Handler serving the API
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves the API on addr until ctx is cancelled
func (s *Server) Run(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:    addr,
		Handler: s.engine,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(),
			5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("could not shut down server", zap.Error(err))
		}
	}()

	s.logger.Info("server listening", zap.String("addr", addr))
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleStart(c *gin.Context) {
	s.runner.Start()
	c.JSON(http.StatusOK, s.runner.Status())
}

func (s *Server) handleStop(c *gin.Context) {
	s.runner.Stop()
	c.JSON(http.StatusOK, s.runner.Status())
}

func (s *Server) handleReset(c *gin.Context) {
	if err := s.runner.Reset(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, s.runner.Status())
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.runner.Status())
}

func (s *Server) handleMetrics(c *gin.Context) {
	n := 0
	if param := c.Query("n"); param != "" {
		var err error
		if n, err = strconv.Atoi(param); err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "n must be a non-negative integer",
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"runID":   s.window.RunID(),
		"metrics": s.window.Metrics(n),
	})
}

func (s *Server) handleState(c *gin.Context) {
	state := s.runner.SimState()
	c.JSON(http.StatusOK, gin.H{
		"state":    state,
		"distance": state.Distance(),
	})
}

func (s *Server) handleAdvice(c *gin.Context) {
	if s.advice == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "advisor disabled"})
		return
	}
	report, ok := s.advice.Report()
	c.JSON(http.StatusOK, gin.H{"available": ok, "report": report})
}

// requestLogger logs each request at debug level
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
