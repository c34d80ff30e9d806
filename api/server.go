package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/yllada/vpn-bridge/common"
	"github.com/yllada/vpn-bridge/connectivity"
	"github.com/yllada/vpn-bridge/tunnel"
)

// APIVersion prefixes every route.
const APIVersion = "v1"

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 64 << 10

// StateReader reads the persisted tunnel state.
type StateReader interface {
	Read(ctx context.Context) (tunnel.State, error)
}

// StatePublisher feeds a state into the engine's state stream.
type StatePublisher interface {
	PublishTunnelState(ctx context.Context, s tunnel.State) error
}

// ConnectivityView is the bridge as seen by the API.
type ConnectivityView interface {
	IsOnline() bool
	Networks() []connectivity.Network
}

// EngineView is the engine as seen by the API.
type EngineView interface {
	Online() (online, known bool)
	LiveHandles() int
}

// Deps are the components the handlers read from. Publisher and Engine may
// be nil.
type Deps struct {
	States       StateReader
	Publisher    StatePublisher
	Connectivity ConnectivityView
	Engine       EngineView
}

// ServerOptions configures the HTTP server.
type ServerOptions struct {
	Addr              string
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
}

// Server hosts the HTTP API for the daemon.
type Server struct {
	deps   Deps
	opts   ServerOptions
	router *mux.Router
	http   *http.Server

	mu       sync.Mutex
	listener net.Listener
	done     chan struct{}
}

// NewServer wires the routes. The server does not listen until Start.
func NewServer(deps Deps, opts ServerOptions) *Server {
	if deps.States == nil || deps.Connectivity == nil {
		panic("api.NewServer: States and Connectivity are required")
	}
	if opts.Addr == "" {
		opts.Addr = common.DefaultAPIAddress
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = 5 * time.Second
	}
	if opts.ReadHeaderTimeout == 0 {
		opts.ReadHeaderTimeout = 2 * time.Second
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	if opts.IdleTimeout == 0 {
		opts.IdleTimeout = 60 * time.Second
	}
	if opts.ShutdownTimeout == 0 {
		opts.ShutdownTimeout = common.ShutdownTimeout
	}

	s := &Server{
		deps:   deps,
		opts:   opts,
		router: mux.NewRouter(),
	}
	s.setupRoutes()

	s.http = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.router,
		ReadTimeout:       opts.ReadTimeout,
		ReadHeaderTimeout: opts.ReadHeaderTimeout,
		WriteTimeout:      opts.WriteTimeout,
		IdleTimeout:       opts.IdleTimeout,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(logRequests)

	v1 := s.router.PathPrefix("/" + APIVersion).Subrouter()
	v1.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	v1.HandleFunc("/tunnel-state", s.handleGetState).Methods(http.MethodGet)
	v1.HandleFunc("/tunnel-state", s.handlePutState).Methods(http.MethodPut)
	v1.HandleFunc("/connectivity", s.handleConnectivity).Methods(http.MethodGet)

	// Subrouters resolve their own misses before the root router sees them.
	for _, r := range []*mux.Router{s.router, v1} {
		r.NotFoundHandler = http.HandlerFunc(notFound)
		r.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)
	}
}

func notFound(w http.ResponseWriter, _ *http.Request) {
	writeError(w, http.StatusNotFound, "not found")
}

func methodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start binds the listen address and serves in a background goroutine.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return common.ErrAlreadyStarted
	}

	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return common.WrapError(err, "api listen")
	}
	s.listener = ln
	s.done = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)
		common.LogInfo("API listening on %s", ln.Addr())
		if err := s.http.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			common.LogError("API server error: %v", err)
		}
	}(s.done)
	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.opts.Addr
}

// Stop gracefully shuts down the server, waiting up to ShutdownTimeout.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.ShutdownTimeout)
	defer cancel()
	err := s.http.Shutdown(ctx)
	<-done
	return err
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Timestamp: timestamp()})
}

func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	state, err := s.deps.States.Read(r.Context())
	if err != nil {
		common.LogError("Failed to read tunnel state: %v", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stateResponse(state))
}

// handlePutState publishes the body on the engine's state stream. The
// synchronizer persists it; the response echoes what was accepted.
func (s *Server) handlePutState(w http.ResponseWriter, r *http.Request) {
	if s.deps.Publisher == nil {
		writeError(w, http.StatusNotImplemented, "engine does not accept states")
		return
	}

	var state tunnel.State
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&state); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	if err := s.deps.Publisher.PublishTunnelState(r.Context(), state); err != nil {
		switch {
		case errors.Is(err, common.ErrInvalidState):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, common.ErrEngineClosed):
			writeError(w, http.StatusServiceUnavailable, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusAccepted, stateResponse(state))
}

func (s *Server) handleConnectivity(w http.ResponseWriter, r *http.Request) {
	resp := ConnectivityResponse{
		Online:      s.deps.Connectivity.IsOnline(),
		Networks:    s.deps.Connectivity.Networks(),
		GeneratedAt: timestamp(),
	}
	if s.deps.Engine != nil {
		if online, known := s.deps.Engine.Online(); known {
			resp.EngineOnline = &online
		}
		resp.LiveHandles = s.deps.Engine.LiveHandles()
	}
	writeJSON(w, http.StatusOK, resp)
}

func stateResponse(state tunnel.State) TunnelStateResponse {
	return TunnelStateResponse{
		State:       state,
		Summary:     state.String(),
		GeneratedAt: timestamp(),
	}
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		common.WithFields(map[string]interface{}{
			"method":   r.Method,
			"path":     r.URL.Path,
			"duration": time.Since(start).String(),
		}).Debug("api request")
	})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, APIError{Error: msg, Timestamp: timestamp()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(true)
	_ = enc.Encode(v)
}
