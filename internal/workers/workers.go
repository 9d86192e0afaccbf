// Package workers coordinates the background workers belonging to one pipe
// instance or to one client session.
package workers

import (
	"sync"

	"github.com/tlspipe/udptlspipe/internal/model"
)

// Manager coordinates the lifecycle of a group of workers. Each pipe
// instance owns a Manager, and so does each client session: signaling
// shutdown on a Manager stops exactly the workers it started. The zero
// value is invalid; use [NewManager].
type Manager struct {
	// logger logs worker start and exit events.
	logger model.Logger

	// shouldShutdown is closed to signal all workers to shut down.
	shouldShutdown chan any

	// shutdownOnce ensures we close shouldShutdown once.
	shutdownOnce sync.Once

	// wg tracks the running workers.
	wg sync.WaitGroup
}

// NewManager creates a new manager.
func NewManager(logger model.Logger) *Manager {
	return &Manager{
		logger:         logger,
		shouldShutdown: make(chan any),
	}
}

// StartWorker starts a named worker in a background goroutine. The worker
// is tracked until its function returns.
func (m *Manager) StartWorker(name string, fx func()) {
	m.wg.Add(1)
	go func() {
		defer func() {
			m.wg.Done()
			m.logger.Debugf("%s: worker exited", name)
		}()
		m.logger.Debugf("%s: worker started", name)
		fx()
	}()
}

// StartShutdown initiates the shutdown of all workers.
func (m *Manager) StartShutdown() {
	m.shutdownOnce.Do(func() {
		close(m.shouldShutdown)
	})
}

// ShouldShutdown returns the channel closed when workers should shut down.
func (m *Manager) ShouldShutdown() <-chan any {
	return m.shouldShutdown
}

// WaitWorkersShutdown blocks until all workers have shut down.
func (m *Manager) WaitWorkersShutdown() {
	m.wg.Wait()
}
