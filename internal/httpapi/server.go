package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"horse.fit/newsdesk/internal/news"
	"horse.fit/newsdesk/internal/pipeline"
	"horse.fit/newsdesk/internal/store"
)

// Desk is the part of the pipeline service the API exposes.
type Desk interface {
	Start(ctx context.Context, onDone func(news.Run, error)) (news.Run, error)
	Answer(ctx context.Context, q pipeline.Question) (pipeline.Answer, error)
	Reset(ctx context.Context) error
	Gateway() *store.Gateway
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Options struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	// RunTimeout bounds a collection triggered over HTTP.
	RunTimeout     time.Duration
	AllowedOrigins []string
}

type Server struct {
	desk   Desk
	pinger Pinger
	logger zerolog.Logger
	opts   Options
	// base is cancelled on shutdown; background runs derive from it.
	base context.Context
}

func NewServer(desk Desk, pinger Pinger, logger zerolog.Logger, opts Options) *Server {
	host := strings.TrimSpace(opts.Host)
	if host == "" {
		host = "0.0.0.0"
	}
	port := opts.Port
	if port <= 0 {
		port = 8090
	}
	readTimeout := opts.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 10 * time.Second
	}
	writeTimeout := opts.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Minute
	}
	shutdownTimeout := opts.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	runTimeout := opts.RunTimeout
	if runTimeout <= 0 {
		runTimeout = 30 * time.Minute
	}

	return &Server{
		desk:   desk,
		pinger: pinger,
		logger: logger,
		base:   context.Background(),
		opts: Options{
			Host:            host,
			Port:            port,
			ReadTimeout:     readTimeout,
			WriteTimeout:    writeTimeout,
			ShutdownTimeout: shutdownTimeout,
			RunTimeout:      runTimeout,
			AllowedOrigins:  opts.AllowedOrigins,
		},
	}
}

// Handler builds the echo instance with middleware and routes.
func (s *Server) Handler() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.httpErrorHandler
	e.Validator = newRequestValidator()

	allowOrigins := s.opts.AllowedOrigins
	if len(allowOrigins) == 0 {
		allowOrigins = []string{"*"}
	}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: allowOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
		MaxAge:       3600,
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			event := s.logger.Info()
			message := "http request"
			if v.Error != nil {
				event = s.logger.Error().Err(v.Error)
				message = "http request failed"
			}
			event.
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("remote_ip", v.RemoteIP).
				Str("request_id", v.RequestID).
				Msg(message)
			return nil
		},
	}))

	api := e.Group("/api/v1")
	api.GET("/health", s.handleHealth)
	api.POST("/collect", s.handleCollect)
	api.GET("/stories", s.handleStories)
	api.GET("/stories/:id", s.handleStoryDetail)
	api.GET("/search", s.handleSearch)
	api.POST("/ask", s.handleAsk)
	api.GET("/runs", s.handleRuns)
	api.POST("/reset", s.handleReset)
	return e
}

func (s *Server) Start(ctx context.Context) error {
	if s == nil || s.desk == nil {
		return fmt.Errorf("server is not initialized")
	}
	s.base = ctx

	e := s.Handler()
	addr := fmt.Sprintf("%s:%d", s.opts.Host, s.opts.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      e,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		if shutdownErr := e.Shutdown(shutdownCtx); shutdownErr != nil {
			s.logger.Error().Err(shutdownErr).Msg("server shutdown failed")
		}
	}()

	s.logger.Info().Str("addr", addr).Msg("newsdesk api server started")

	if err := e.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("start server: %w", err)
	}
	s.logger.Info().Msg("newsdesk api server stopped")
	return nil
}

func (s *Server) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	message := "Internal server error"
	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		switch v := he.Message.(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				message = v
			}
		default:
			if text := strings.TrimSpace(http.StatusText(status)); text != "" {
				message = text
			}
		}
	} else if err != nil {
		message = err.Error()
	}

	if status >= 500 {
		_ = internalError(c, "Internal server error")
		return
	}
	_ = fail(c, status, message, nil)
}

// respondError maps domain errors onto jsend responses.
func (s *Server) respondError(c echo.Context, err error, message string) error {
	switch {
	case errors.Is(err, news.ErrNotFound):
		return failNotFound(c, err.Error())
	case errors.Is(err, news.ErrRunInProgress):
		return fail(c, http.StatusConflict, "A collection run is already in progress", nil)
	case errors.Is(err, news.ErrMalformedInput):
		return fail(c, http.StatusBadRequest, err.Error(), nil)
	case errors.Is(err, news.ErrProviderUnavailable):
		return serviceUnavailable(c, "Search provider unavailable")
	case news.IsCollaboratorFailure(err):
		s.logger.Warn().Err(err).Msg(message)
		return serviceUnavailable(c, message)
	default:
		s.logger.Error().Err(err).Msg(message)
		return internalError(c, message)
	}
}
