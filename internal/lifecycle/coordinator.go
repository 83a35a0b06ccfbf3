package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// State is a coordinator phase. States only move forward.
type State int32

// Coordinator states.
const (
	StateStarting State = iota
	StateRunning
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "STARTING"
	case StateRunning:
		return "RUNNING"
	case StateDraining:
		return "DRAINING"
	case StateStopped:
		return "STOPPED"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Component is a long-running part of the process. Run must return once ctx
// is cancelled.
type Component interface {
	Name() string
	Run(ctx context.Context) error
}

// Logger defines the logging interface used by the coordinator.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Coordinator owns the stop signal and join discipline.
type Coordinator struct {
	logger Logger
	state  atomic.Int32

	mu         sync.Mutex
	components []Component
	ready      []<-chan struct{}
	releasers  []func() error
	observers  []func(State)
}

// New creates a coordinator in the STARTING state.
func New() *Coordinator {
	return &Coordinator{logger: noopLogger{}}
}

// SetLogger sets the logger for the coordinator.
func (c *Coordinator) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	c.logger = logger
}

// Add registers a component. Components must be added before Run.
func (c *Coordinator) Add(components ...Component) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.components = append(c.components, components...)
}

// AwaitReady adds a channel that must close before the coordinator reports RUNNING.
func (c *Coordinator) AwaitReady(ch <-chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ready = append(c.ready, ch)
}

// OnRelease registers a hook run when draining starts and again once every
// component has returned. Hooks must be idempotent.
func (c *Coordinator) OnRelease(fn func() error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.releasers = append(c.releasers, fn)
}

// OnStateChange registers a callback for every state transition.
func (c *Coordinator) OnStateChange(fn func(State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, fn)
}

// State returns the current state.
func (c *Coordinator) State() State {
	return State(c.state.Load())
}

// Run starts every component and blocks until all of them have returned.
//
// Parameters:
//   - ctx: Cancelled by the signal handler to begin shutdown
//
// Returns:
//   - error: The first component failure, joined with release failures
func (c *Coordinator) Run(ctx context.Context) error {
	c.mu.Lock()
	components := append([]Component(nil), c.components...)
	ready := append([]<-chan struct{}(nil), c.ready...)
	c.mu.Unlock()

	c.logger.Info("starting components", "components", len(components))

	g, gctx := errgroup.WithContext(ctx)
	for _, comp := range components {
		g.Go(func() error {
			if err := comp.Run(gctx); err != nil {
				c.logger.Error("component failed", "component", comp.Name(), "error", err)
				return fmt.Errorf("%s: %w", comp.Name(), err)
			}
			c.logger.Debug("component stopped", "component", comp.Name())
			return nil
		})
	}

	watcherDone := make(chan struct{})
	go func() {
		defer close(watcherDone)
		for _, ch := range ready {
			select {
			case <-ch:
			case <-gctx.Done():
				return
			}
		}
		c.transition(StateRunning)
	}()

	<-gctx.Done()
	c.transition(StateDraining)
	releaseErr := c.release()

	runErr := g.Wait()
	<-watcherDone

	if err := c.release(); err != nil {
		releaseErr = err
	}
	c.transition(StateStopped)

	return errors.Join(runErr, releaseErr)
}

// transition advances to next unless the coordinator is already there or beyond.
func (c *Coordinator) transition(next State) {
	for {
		cur := State(c.state.Load())
		if cur >= next {
			return
		}
		if c.state.CompareAndSwap(int32(cur), int32(next)) {
			c.logger.Info("state changed", "from", cur.String(), "to", next.String())
			c.notify(next)
			return
		}
	}
}

func (c *Coordinator) notify(s State) {
	c.mu.Lock()
	observers := append(([]func(State))(nil), c.observers...)
	c.mu.Unlock()
	for _, fn := range observers {
		fn(s)
	}
}

func (c *Coordinator) release() error {
	c.mu.Lock()
	releasers := append([]func() error(nil), c.releasers...)
	c.mu.Unlock()

	var errs []error
	for _, fn := range releasers {
		if err := fn(); err != nil {
			c.logger.Error("release failed", "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
