// Package api serves the HTTP surface: outbound sends, the operator console
// and its realtime stream.
package api

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	_ "embed"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"wagate/internal/delivery"
	"wagate/internal/domain"
	"wagate/internal/notice"
	"wagate/internal/session"
)

const defaultMaxBodySize = 20 << 20

//go:embed static/index.html
var consoleHTML []byte

// Deliverer performs outbound deliveries.
type Deliverer interface {
	SendText(ctx context.Context, recipient, message string) delivery.Result
	SendMedia(ctx context.Context, recipient string, src delivery.MediaSource, caption string) delivery.Result
	ClearChatHistory(ctx context.Context, recipient string) delivery.Result
}

// SessionView is the read-only session surface exposed by /status.
type SessionView interface {
	CurrentState() session.State
	Status() string
	Info() *domain.SessionInfo
}

// AuthConfig enables HTTP Basic Auth on the send endpoints and the console.
// PasswordHash is the hex SHA-256 of the password.
type AuthConfig struct {
	Enabled      bool
	Username     string
	PasswordHash string
}

// Config configures a Server.
type Config struct {
	Delivery Deliverer
	Session  SessionView
	Notices  *notice.Catalog
	Logger   *slog.Logger
	Auth     AuthConfig

	// Hub serves GET /ws.
	Hub http.Handler
	// Webhook is mounted at WebhookPath for inbound chat traffic, when set.
	Webhook     http.Handler
	WebhookPath string
	// Metrics is mounted at MetricsPath, when set.
	Metrics     http.Handler
	MetricsPath string

	// MaxBodySize bounds request bodies including uploads.
	MaxBodySize int64
}

// Server is the HTTP API.
type Server struct {
	delivery    Deliverer
	session     SessionView
	notices     *notice.Catalog
	logger      *slog.Logger
	auth        AuthConfig
	maxBodySize int64
	mux         *http.ServeMux
	server      *http.Server
}

// New creates a server and registers its routes.
func New(cfg Config) *Server {
	s := &Server{
		delivery:    cfg.Delivery,
		session:     cfg.Session,
		notices:     cfg.Notices,
		logger:      cfg.Logger,
		auth:        cfg.Auth,
		maxBodySize: cfg.MaxBodySize,
		mux:         http.NewServeMux(),
	}
	if s.notices == nil {
		s.notices = notice.Default()
	}
	if s.maxBodySize <= 0 {
		s.maxBodySize = defaultMaxBodySize
	}

	s.mux.HandleFunc("POST /send-message", s.requireAuth(s.handleSendMessage))
	s.mux.HandleFunc("POST /send-media", s.requireAuth(s.handleSendMedia))
	s.mux.HandleFunc("POST /clear-message", s.requireAuth(s.handleClearMessage))
	s.mux.HandleFunc("GET /status", s.handleStatus) // public endpoint
	s.mux.HandleFunc("GET /{$}", s.requireAuth(s.handleConsole))
	if cfg.Hub != nil {
		s.mux.Handle("GET /ws", s.requireAuth(cfg.Hub.ServeHTTP))
	}
	if cfg.Webhook != nil && cfg.WebhookPath != "" {
		s.mux.Handle(cfg.WebhookPath, cfg.Webhook)
	}
	if cfg.Metrics != nil && cfg.MetricsPath != "" {
		s.mux.Handle("GET "+cfg.MetricsPath, cfg.Metrics)
	}
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	s.logger.Info("HTTP API started", "addr", addr, "auth", s.auth.Enabled)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.server.Shutdown(shutdownCtx)
	}()

	if err := s.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// requireAuth wraps a handler with HTTP Basic Auth when auth is enabled.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !s.auth.Enabled {
			next(rw, r)
			return
		}
		user, pass, ok := r.BasicAuth()
		if !ok || !s.checkCredentials(user, pass) {
			rw.Header().Set("WWW-Authenticate", `Basic realm="wagate"`)
			http.Error(rw, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(rw, r)
	}
}

func (s *Server) checkCredentials(user, pass string) bool {
	if subtle.ConstantTimeCompare([]byte(user), []byte(s.auth.Username)) != 1 {
		return false
	}
	hash := sha256.Sum256([]byte(pass))
	got := hex.EncodeToString(hash[:])
	return subtle.ConstantTimeCompare([]byte(got), []byte(s.auth.PasswordHash)) == 1
}

func (s *Server) handleConsole(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Set("Content-Type", "text/html; charset=utf-8")
	rw.Write(consoleHTML)
}

type statusResponse struct {
	State  session.State       `json:"state"`
	Status string              `json:"status"`
	Info   *domain.SessionInfo `json:"info,omitempty"`
}

func (s *Server) handleStatus(rw http.ResponseWriter, r *http.Request) {
	writeJSON(rw, http.StatusOK, statusResponse{
		State:  s.session.CurrentState(),
		Status: s.session.Status(),
		Info:   s.session.Info(),
	})
}
