package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/nerrad567/tem-emulator/internal/device"
	"github.com/nerrad567/tem-emulator/internal/dispatch"
	"github.com/nerrad567/tem-emulator/internal/infrastructure/config"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Device is a device exposed by the API. *dispatch.Registration satisfies it.
type Device interface {
	Label() string
	Submit(ctx context.Context, operation string, call device.Call) (dispatch.Response, error)
	Stats() dispatch.Stats
}

// Logger defines the logging interface used by the API server.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config  config.APIConfig
	Logger  Logger
	Devices []Device

	// State reports the lifecycle state for the health endpoint.
	State func() string

	Version string
}

// Server is the admin HTTP API server.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Run().
type Server struct {
	cfg     config.APIConfig
	logger  Logger
	devices map[string]Device
	labels  []string
	state   func() string
	version string

	startTime time.Time
	hub       *Hub
	handler   http.Handler

	mu       sync.Mutex
	listener net.Listener
}

// New creates a new API server with the given dependencies.
//
// Parameters:
//   - deps: Required dependencies (config, devices, lifecycle state)
//
// Returns:
//   - *Server: Configured server ready to run
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if len(deps.Devices) == 0 {
		return nil, fmt.Errorf("at least one device is required")
	}
	if deps.State == nil {
		return nil, fmt.Errorf("lifecycle state function is required")
	}
	if deps.Logger == nil {
		deps.Logger = noopLogger{}
	}

	s := &Server{
		cfg:       deps.Config,
		logger:    deps.Logger,
		devices:   make(map[string]Device, len(deps.Devices)),
		state:     deps.State,
		version:   deps.Version,
		startTime: time.Now(),
	}
	for _, d := range deps.Devices {
		if _, dup := s.devices[d.Label()]; dup {
			return nil, fmt.Errorf("duplicate device label %q", d.Label())
		}
		s.devices[d.Label()] = d
		s.labels = append(s.labels, d.Label())
	}
	sort.Strings(s.labels)

	s.hub = NewHub(deps.Config.WebSocket, s.logger, s.snapshot)
	s.handler = s.buildRouter()
	return s, nil
}

// Name identifies the server in lifecycle logs.
func (s *Server) Name() string {
	return "api"
}

// Handler returns the router, for serving without a listener in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Bind opens the listening socket. Calling it again is a no-op.
func (s *Server) Bind(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return nil
	}

	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprintf("%d", s.cfg.Port))
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("binding API server on %s: %w", addr, err)
	}
	s.listener = ln
	return nil
}

// Unbind closes a socket opened by Bind that Run never served.
func (s *Server) Unbind() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	err := s.listener.Close()
	s.listener = nil
	return err
}

// Addr returns the bound address, or nil before Bind.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Run serves HTTP until ctx is cancelled, then waits up to 10 seconds for
// in-flight requests before closing remaining connections.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Bind(ctx); err != nil {
		return err
	}

	server := &http.Server{
		Handler:           s.handler,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	hubDone := make(chan struct{})
	go func() {
		defer close(hubDone)
		s.hub.Run(hubCtx)
	}()

	serveErr := make(chan error, 1)
	go func() {
		s.logger.Info("API server listening", "address", s.Addr().String())
		serveErr <- server.Serve(s.listener)
	}()

	var err error
	select {
	case err = <-serveErr:
	case <-ctx.Done():
		stopHub()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
		defer cancel()
		s.logger.Info("API server shutting down")
		if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
			err = fmt.Errorf("shutting down API server: %w", shutdownErr)
		}
		if serveResult := <-serveErr; !errors.Is(serveResult, http.ErrServerClosed) && err == nil {
			err = serveResult
		}
	}

	stopHub()
	<-hubDone
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// snapshot returns the stats of every device in label order.
func (s *Server) snapshot() []dispatch.Stats {
	out := make([]dispatch.Stats, 0, len(s.labels))
	for _, label := range s.labels {
		out = append(out, s.devices[label].Stats())
	}
	return out
}
