// Package process provides process lifecycle and signal handling
package process

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/marketpack/marketpack/pkg/logger"
)

// DefaultHeartbeatInterval is used when SetHeartbeat is given no interval
const DefaultHeartbeatInterval = time.Minute

// Manager handles process lifecycle and signals. On the first SIGINT or
// SIGTERM the registered shutdown handlers run; a second signal gets the
// default behavior and terminates the process.
type Manager struct {
	logger            logger.Logger
	shutdownHandlers  []func()
	heartbeatFunc     func()
	heartbeatInterval time.Duration
	stop              chan struct{}
	sigChan           chan os.Signal
	wg                sync.WaitGroup
	mu                sync.Mutex
	running           bool
	shutdown          bool
}

// NewManager creates a new process manager
func NewManager(log logger.Logger) *Manager {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Manager{
		logger:           log,
		shutdownHandlers: make([]func(), 0),
	}
}

// WithSignalCancel returns a context that is cancelled on SIGINT or SIGTERM.
// Call stop once the context is no longer needed.
func WithSignalCancel(ctx context.Context, log logger.Logger) (context.Context, *Manager, func()) {
	ctx, cancel := context.WithCancel(ctx)
	m := NewManager(log)
	m.RegisterShutdownHandler(cancel)
	m.Start(ctx)
	return ctx, m, func() {
		m.Stop()
		cancel()
	}
}

// RegisterShutdownHandler adds a shutdown handler. Handlers run in reverse
// registration order.
func (m *Manager) RegisterShutdownHandler(handler func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.shutdownHandlers = append(m.shutdownHandlers, handler)
}

// Start starts the process manager with the given context.
// The context controls the lifetime of the manager.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.stop = make(chan struct{})
	m.sigChan = make(chan os.Signal, 1)
	stop := m.stop
	sigChan := m.sigChan
	m.mu.Unlock()

	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		select {
		case <-stop:
		case <-ctx.Done():
			m.handleShutdown()
		case sig := <-sigChan:
			signal.Stop(sigChan)
			m.logger.Warn("Received signal, finishing the current stage before stopping",
				logger.WithField("signal", sig))
			m.handleShutdown()
		}
	}()

	if m.heartbeatFunc != nil {
		m.startHeartbeat(ctx, stop)
	}
}

// Stop stops the process manager without running shutdown handlers
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.stop == nil {
		m.mu.Unlock()
		return
	}
	close(m.stop)
	m.stop = nil
	m.running = false
	sigChan := m.sigChan
	m.mu.Unlock()

	signal.Stop(sigChan)
	m.wg.Wait()
}

// IsRunning checks if the process manager is running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// SetHeartbeat sets a function called every interval while the manager runs.
// It must be called before Start.
func (m *Manager) SetHeartbeat(fn func(), interval time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	m.heartbeatFunc = fn
	m.heartbeatInterval = interval
}

func (m *Manager) handleShutdown() {
	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		return
	}
	m.shutdown = true
	handlers := make([]func(), len(m.shutdownHandlers))
	copy(handlers, m.shutdownHandlers)
	m.running = false
	m.mu.Unlock()

	m.logger.Debug("Running shutdown handlers", logger.WithField("count", len(handlers)))
	for i := len(handlers) - 1; i >= 0; i-- {
		handlers[i]()
	}
}

func (m *Manager) startHeartbeat(ctx context.Context, stop <-chan struct{}) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		ticker := time.NewTicker(m.heartbeatInterval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.heartbeatFunc()
			}
		}
	}()
}
