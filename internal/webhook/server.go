// Package webhook serves the HTTP endpoint GitHub delivers pull request
// events to. Verified, relevant events are handed to a Dispatcher that runs
// the review in the background.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	gh "github.com/google/go-github/v68/github"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/AbdelazizMoustafa10m/Kestrel/internal/config"
	"github.com/AbdelazizMoustafa10m/Kestrel/internal/github"
	"github.com/AbdelazizMoustafa10m/Kestrel/internal/pipeline"
)

// maxBody is GitHub's own cap on webhook payloads.
const maxBody = "25M"

// Dispatcher accepts events for background review. *pipeline.Dispatcher
// satisfies it.
type Dispatcher interface {
	Dispatch(ev *github.PullRequestEvent, token string) error
	Shutdown(ctx context.Context) error
}

// Server is the webhook HTTP server.
type Server struct {
	cfg        config.ServerConfig
	dispatcher Dispatcher
	logger     *log.Logger
	echo       *echo.Echo
}

// Option configures a Server.
type Option func(*Server)

// WithLogger attaches a logger for request and lifecycle logs.
func WithLogger(logger *log.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// New creates a Server. cfg supplies the listen address, secret, accepted
// actions, bot username, fallback token and shutdown timeout.
func New(cfg config.ServerConfig, d Dispatcher, opts ...Option) *Server {
	s := &Server{
		cfg:        cfg,
		dispatcher: d,
	}
	for _, opt := range opts {
		opt(s)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit(maxBody))
	if s.logger != nil {
		e.Use(s.requestLogger())
	}

	e.GET("/health", s.handleHealth)
	e.POST("/webhook", s.handleWebhook)

	s.echo = e
	return s
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Addr returns the address the server is listening on, or nil before Run
// has bound its listener.
func (s *Server) Addr() net.Addr {
	return s.echo.ListenerAddr()
}

// Run serves until ctx is cancelled, then stops accepting connections and
// waits for in-flight reviews, both bounded by the configured shutdown
// timeout.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.echo.Start(s.cfg.Listen)
	}()

	if s.logger != nil {
		s.logger.Info("listening", "addr", s.cfg.Listen)
	}

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("webhook: serve: %w", err)
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = config.DefaultShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if s.logger != nil {
		s.logger.Info("shutting down", "timeout", timeout)
	}
	httpErr := s.echo.Shutdown(shutdownCtx)
	drainErr := s.dispatcher.Shutdown(shutdownCtx)
	if err := errors.Join(httpErr, drainErr); err != nil {
		return fmt.Errorf("webhook: shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func ignored(c echo.Context, reason string) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ignored", "reason": reason})
}

func (s *Server) handleWebhook(c echo.Context) error {
	req := c.Request()

	// The signature covers the exact bytes, so the body is read once, raw.
	body, err := io.ReadAll(req.Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "reading body")
	}

	if err := s.verify(body, req.Header.Get(github.HeaderSignature)); err != nil {
		return echo.NewHTTPError(http.StatusForbidden, capitalize(err.Error()))
	}

	if gh.WebHookType(req) != github.EventPullRequest {
		return ignored(c, "not a pull_request event")
	}

	ev, err := github.ParsePullRequestEvent(body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid JSON payload")
	}

	if !slices.Contains(s.actions(), ev.Action()) {
		return ignored(c, fmt.Sprintf("action '%s' not handled", ev.Action()))
	}

	if ev.SenderLogin() == s.botUsername() {
		return ignored(c, "bot PR excluded")
	}

	token := req.Header.Get(github.HeaderToken)
	if token == "" {
		token = s.cfg.GitHubToken
	}
	if token == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Missing X-GitHub-Token header")
	}

	if ev.Number() <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "Missing pull_request.number")
	}

	ev.DeliveryID = gh.DeliveryID(req)
	if ev.DeliveryID == "" {
		ev.DeliveryID = uuid.NewString()
	}

	switch err := s.dispatcher.Dispatch(ev, token); {
	case errors.Is(err, pipeline.ErrDuplicate):
		return ignored(c, "review already in progress")
	case errors.Is(err, pipeline.ErrShuttingDown):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "Shutting down")
	case err != nil:
		return fmt.Errorf("webhook: dispatch: %w", err)
	}

	if s.logger != nil {
		s.logger.Info("review queued",
			"repo", ev.FullName(),
			"pr", ev.Number(),
			"action", ev.Action(),
			"delivery", ev.DeliveryID,
		)
	}
	return c.JSON(http.StatusAccepted, map[string]any{"status": "queued", "pr": ev.Number()})
}

// verify applies the secret policy: a configured secret is always checked;
// an empty secret passes only when unsigned deliveries are allowed.
func (s *Server) verify(body []byte, header string) error {
	if s.cfg.WebhookSecret == "" {
		if s.cfg.AllowUnsigned {
			return nil
		}
		return ErrSecretNotConfigured
	}
	return VerifySignature([]byte(s.cfg.WebhookSecret), body, header)
}

func (s *Server) actions() []string {
	if len(s.cfg.Actions) == 0 {
		return config.DefaultActions
	}
	return s.cfg.Actions
}

func (s *Server) botUsername() string {
	if s.cfg.BotUsername == "" {
		return config.DefaultBotUsername
	}
	return s.cfg.BotUsername
}

func (s *Server) requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			kv := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency.Round(time.Microsecond),
			}
			if v.Error != nil {
				kv = append(kv, "error", v.Error)
			}
			s.logger.Debug("request", kv...)
			return nil
		},
	})
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
