package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"boardsync/internal/auth"
	"boardsync/internal/docstore"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 32 << 20
	sendBuffer     = 64

	// Snapshot pushes are split into frames of about this size.
	snapshotFrameSize = 1 << 20
)

// Authenticator is what the relay needs from the identity provider.
type Authenticator interface {
	Authenticate(ctx context.Context, email, password string) (auth.Identity, error)
	IssueToken(id auth.Identity) (string, error)
	VerifyToken(token string) (auth.Identity, error)
}

type ServerOptions struct {
	Logger *zap.Logger
	// SignInRate limits sign-in attempts per client IP. Zero means one per
	// second with a burst of SignInBurst.
	SignInRate     rate.Limit
	SignInBurst    int
	AllowedOrigins []string
}

type Server struct {
	backend docstore.Backend
	authn   Authenticator
	log     *zap.Logger
	opts    ServerOptions

	upgrader websocket.Upgrader

	mu       sync.Mutex
	visitors map[string]*rate.Limiter
}

func NewServer(backend docstore.Backend, authn Authenticator, opts ServerOptions) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.SignInRate == 0 {
		opts.SignInRate = rate.Every(time.Second)
	}
	if opts.SignInBurst <= 0 {
		opts.SignInBurst = 5
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	return &Server{
		backend: backend,
		authn:   authn,
		log:     opts.Logger.Named("relay"),
		opts:    opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  32 * 1024,
			WriteBufferSize: 32 * 1024,
			// Origins are enforced by the token, not the browser origin.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		visitors: map[string]*rate.Limiter{},
	}
}

func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/v1/auth/signin", s.handleSignIn).Methods(http.MethodPost)
	r.HandleFunc("/v1/ws", s.handleWS).Methods(http.MethodGet)

	c := cors.New(cors.Options{
		AllowedOrigins: s.opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	})
	return c.Handler(r)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("relay listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) visitor(ip string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.visitors[ip]
	if !ok {
		l = rate.NewLimiter(s.opts.SignInRate, s.opts.SignInBurst)
		s.visitors[ip] = l
	}
	return l
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signInResponse struct {
	Token string `json:"token"`
	auth.Identity
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	if !s.visitor(clientIP(r)).Allow() {
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
		return
	}
	var req signInRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	id, err := s.authn.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": err.Error()})
			return
		}
		s.log.Error("sign-in failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	tok, err := s.authn.IssueToken(id)
	if err != nil {
		s.log.Error("issue token failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, signInResponse{Token: tok, Identity: id})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	id, err := s.authn.VerifyToken(requestToken(r))
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	c := newConn(s, ws, id)
	c.serve(r.Context())
}

// requestToken reads ?token= or an Authorization bearer header.
func requestToken(r *http.Request) string {
	if tok := strings.TrimSpace(r.URL.Query().Get("token")); tok != "" {
		return tok
	}
	parts := strings.Split(r.Header.Get("Authorization"), " ")
	if len(parts) == 2 && parts[0] == "Bearer" {
		return parts[1]
	}
	return ""
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
