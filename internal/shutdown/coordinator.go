package shutdown

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
)

// State is the coordinator's lifecycle stage.
type State int

const (
	StateRunning State = iota
	StateShutdownRequested
	StateTerminated
)

// String returns a lowercase name suitable for logs.
func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateShutdownRequested:
		return "shutdown_requested"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Logger defines the logging interface used by the Coordinator.
type Logger interface {
	Info(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}

// Coordinator drives the Running -> ShutdownRequested -> Terminated transitions.
//
// All public methods are thread-safe.
type Coordinator struct {
	state State
	mu    sync.RWMutex

	requested   chan struct{}
	requestOnce sync.Once

	done    chan struct{}
	runOnce sync.Once

	logger Logger
}

// New creates a coordinator in the Running state.
func New() *Coordinator {
	return &Coordinator{
		requested: make(chan struct{}),
		done:      make(chan struct{}),
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for the coordinator.
func (c *Coordinator) SetLogger(logger Logger) {
	c.mu.Lock()
	c.logger = logger
	c.mu.Unlock()
}

func (c *Coordinator) getLogger() Logger {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.logger
}

// Request asks for shutdown. Only the first call has an effect.
func (c *Coordinator) Request(reason string) {
	c.requestOnce.Do(func() {
		c.mu.Lock()
		if c.state == StateRunning {
			c.state = StateShutdownRequested
		}
		c.mu.Unlock()

		c.getLogger().Info("shutdown requested", "reason", reason)
		close(c.requested)
	})
}

// Requested is closed once shutdown has been requested.
func (c *Coordinator) Requested() <-chan struct{} {
	return c.requested
}

// Done is closed once the teardown has finished.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// State returns the current lifecycle stage.
func (c *Coordinator) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Watch turns the given signals into shutdown requests until ctx is done
// or shutdown has been requested. Call the returned function to stop
// watching early.
func (c *Coordinator) Watch(ctx context.Context, signals ...os.Signal) (stop func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, signals...)

	watchCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		select {
		case sig := <-ch:
			c.Request(sig.String())
		case <-c.requested:
		case <-watchCtx.Done():
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			wg.Wait()
			signal.Stop(ch)
		})
	}
}

// Run blocks until shutdown is requested or ctx is done, then calls
// teardown exactly once and moves to Terminated. A second Run returns
// immediately with nil.
func (c *Coordinator) Run(ctx context.Context, teardown func() error) error {
	var err error
	c.runOnce.Do(func() {
		select {
		case <-c.requested:
		case <-ctx.Done():
			c.Request("context done")
		}

		if teardown != nil {
			err = teardown()
		}

		c.mu.Lock()
		c.state = StateTerminated
		c.mu.Unlock()
		close(c.done)

		c.getLogger().Info("shutdown complete")
	})
	return err
}
