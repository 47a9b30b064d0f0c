// Package debugserver implements an internal-only observability surface
// over the share index's ShareState and SharedFileCacheState, grounded on
// the teacher's internal/server/http/server.go (gorilla/mux routing,
// JSON response shape) and internal/server/websocket/server.go (client
// read/write pumps, ping/pong keepalive). This is strictly an
// observability surface for the core described by this repository — it is
// not the Soulseek wire protocol and does not accept control commands
// beyond what's described below.
package debugserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/shareindex/peer/internal/hub"
	"github.com/shareindex/peer/internal/ratelimit"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// statusSnapshot is the JSON body returned by GET /status and streamed over
// GET /ws on every hub publish.
type statusSnapshot struct {
	Share hub.ShareState           `json:"share"`
	Cache hub.SharedFileCacheState `json:"cache"`
}

// Server is the debug HTTP+WebSocket server.
type Server struct {
	addr       string
	httpServer *http.Server
	share      *hub.ManagedState[hub.ShareState]
	cache      *hub.ManagedState[hub.SharedFileCacheState]
	bucket     *ratelimit.TokenBucket
}

// Config configures a debug Server.
type Config struct {
	Host           string
	Port           int
	Share          *hub.ManagedState[hub.ShareState]
	Cache          *hub.ManagedState[hub.SharedFileCacheState]
	RateLimit      bool
	BucketCapacity int64
	RefillInterval time.Duration
}

// New builds a debug Server. Routes are registered but the HTTP listener
// doesn't start until Start is called.
func New(cfg Config) *Server {
	s := &Server{
		addr:  fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		share: cfg.Share,
		cache: cfg.Cache,
	}

	if cfg.RateLimit {
		capacity := cfg.BucketCapacity
		if capacity < 1 {
			capacity = 20
		}
		interval := cfg.RefillInterval
		if interval <= 0 {
			interval = time.Second
		}
		s.bucket = ratelimit.NewTokenBucket(ratelimit.WithCapacity(capacity), ratelimit.WithInterval(interval))
	}

	router := mux.NewRouter()
	router.HandleFunc("/status", s.withRateLimit(s.handleStatus)).Methods("GET")
	router.HandleFunc("/ws", s.withRateLimit(s.handleWebSocket)).Methods("GET")

	s.httpServer = &http.Server{
		Addr:    s.addr,
		Handler: router,
	}
	return s
}

// Start starts the HTTP listener in the background.
func (s *Server) Start() {
	log.Info().Str("addr", s.addr).Msg("debug server starting")
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("debug server error")
		}
	}()
}

// Stop gracefully shuts down the HTTP listener and disposes the rate limiter.
func (s *Server) Stop(ctx context.Context) error {
	log.Info().Msg("debug server stopping")
	if s.bucket != nil {
		s.bucket.Dispose()
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) snapshot() statusSnapshot {
	snap := statusSnapshot{}
	if s.share != nil {
		snap.Share = s.share.CurrentValue()
	}
	if s.cache != nil {
		snap.Cache = s.cache.CurrentValue()
	}
	return snap
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.snapshot()); err != nil {
		log.Error().Err(err).Msg("failed to encode status response")
	}
}

// withRateLimit rejects the request with 429 unless a token is available
// immediately. It deliberately does not wait for the next refill — an HTTP
// client backs off and retries rather than holding a connection open.
func (s *Server) withRateLimit(next http.HandlerFunc) http.HandlerFunc {
	if s.bucket == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), time.Millisecond)
		grant, err := s.bucket.Get(ctx, 1)
		cancel()
		if err != nil || grant < 1 {
			w.Header().Set("Retry-After", "1")
			http.Error(w, `{"error":"rate limit exceeded"}`, http.StatusTooManyRequests)
			return
		}
		next(w, r)
	}
}
