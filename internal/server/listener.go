package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/tem-emulator/internal/device"
	"github.com/nerrad567/tem-emulator/internal/dispatch"
	"github.com/nerrad567/tem-emulator/internal/wire"
)

// Listener defaults.
const (
	DefaultPollInterval = time.Second
	DefaultFrameTimeout = 30 * time.Second
	DefaultWriteTimeout = 30 * time.Second

	// acceptBackoff slows the loop after a non-timeout accept failure.
	acceptBackoff = 50 * time.Millisecond
)

// Dispatcher accepts commands for one device. *dispatch.Registration satisfies it.
type Dispatcher interface {
	Label() string
	Submit(ctx context.Context, operation string, call device.Call) (dispatch.Response, error)
}

// Logger defines the logging interface used by listeners.
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

// Config holds listener settings.
type Config struct {
	Host string
	Port int

	// PollInterval bounds accept and idle-read waits.
	PollInterval time.Duration

	// FrameTimeout bounds reading the remainder of a frame once its first
	// byte has arrived.
	FrameTimeout time.Duration

	WriteTimeout time.Duration
	MaxFrameSize int
	Codec        wire.Codec

	// Serial runs each connection to completion before accepting the next.
	Serial bool
}

func (c *Config) applyDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.FrameTimeout <= 0 {
		c.FrameTimeout = DefaultFrameTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.MaxFrameSize <= 0 {
		c.MaxFrameSize = wire.DefaultMaxFrameSize
	}
	if c.Codec == nil {
		c.Codec = wire.JSON
	}
}

// Listener owns the bound socket for one device.
type Listener struct {
	cfg    Config
	target Dispatcher
	logger Logger

	mu sync.Mutex
	ln *net.TCPListener

	wg       sync.WaitGroup
	active   atomic.Int64
	accepted atomic.Uint64
}

// NewListener creates a listener for target.
func NewListener(target Dispatcher, cfg Config) *Listener {
	cfg.applyDefaults()
	return &Listener{
		cfg:    cfg,
		target: target,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the listener.
func (l *Listener) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	l.logger = logger
}

// Name identifies the listener in lifecycle logs.
func (l *Listener) Name() string {
	return "listener/" + l.target.Label()
}

// Bind opens the socket. Run calls it when needed; calling it first lets
// tests learn the address of an ephemeral port.
func (l *Listener) Bind(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ln != nil {
		return nil
	}

	addr := net.JoinHostPort(l.cfg.Host, strconv.Itoa(l.cfg.Port))
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("binding %s for %s: %w", addr, l.target.Label(), err)
	}
	tcp, ok := ln.(*net.TCPListener)
	if !ok {
		ln.Close() //nolint:errcheck // error path
		return fmt.Errorf("binding %s: unexpected listener type %T", addr, ln)
	}
	l.ln = tcp
	return nil
}

// Unbind closes a socket opened by Bind that Run never served. Startup
// calls it when a later step fails. Unbinding an unbound listener is a no-op.
func (l *Listener) Unbind() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ln == nil {
		return nil
	}
	err := l.ln.Close()
	l.ln = nil
	return err
}

// Addr returns the bound address, or nil before Bind.
func (l *Listener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ln == nil {
		return nil
	}
	return l.ln.Addr()
}

// ActiveConnections returns the number of connections being served.
func (l *Listener) ActiveConnections() int {
	return int(l.active.Load())
}

// Run accepts connections until ctx is cancelled, then closes the socket
// and waits for active connection handlers to finish.
func (l *Listener) Run(ctx context.Context) error {
	if err := l.Bind(ctx); err != nil {
		return err
	}

	l.mu.Lock()
	ln := l.ln
	l.mu.Unlock()

	label := l.target.Label()
	l.logger.Info("listening", "device", label, "addr", ln.Addr().String(), "serial", l.cfg.Serial)

	defer func() {
		ln.Close() //nolint:errcheck // shutting down
		l.wg.Wait()
		l.logger.Info("listener stopped", "device", label, "connections_accepted", l.accepted.Load())
	}()

	for ctx.Err() == nil {
		if err := ln.SetDeadline(time.Now().Add(l.cfg.PollInterval)); err != nil {
			return fmt.Errorf("setting accept deadline: %w", err)
		}

		conn, err := ln.Accept()
		if err != nil {
			if isTimeout(err) {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("listener for %s closed unexpectedly: %w", label, err)
			}
			l.logger.Warn("accept failed", "device", label, "error", err)
			sleepCtx(ctx, acceptBackoff)
			continue
		}

		l.accepted.Add(1)
		if l.cfg.Serial {
			l.serveConn(ctx, conn)
			continue
		}
		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			l.serveConn(ctx, conn)
		}()
	}
	return nil
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
