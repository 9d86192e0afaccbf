// Package pipe contains the public pipe API: a handle-based lifecycle
// manager for running pipe instances, mirroring the operations exposed to
// the embedding application across the foreign-call boundary.
package pipe

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/apex/log"

	"github.com/tlspipe/udptlspipe/internal/fingerprint"
	"github.com/tlspipe/udptlspipe/internal/model"
	"github.com/tlspipe/udptlspipe/internal/relay"
	"github.com/tlspipe/udptlspipe/pkg/config"
)

// Version is the static build identifier returned by [Service.Version].
const Version = "1.3.1"

var (
	// ErrDisabled is returned when starting a disabled config.
	ErrDisabled = errors.New("pipe is disabled")

	// ErrBadDestination is returned when the destination is not a
	// resolvable host:port pair.
	ErrBadDestination = errors.New("bad destination")
)

// Service owns the process-wide pipe runtime: the handle table, the
// last-error diagnostics slot and the logger used by pipes started through
// it. The zero value is invalid; use [NewService]. Handles are positive,
// monotonically increasing, and never reused while live.
type Service struct {
	// mu guards the handle table.
	mu sync.Mutex

	// relays maps a live handle to its running instance.
	relays map[int]*relay.Relay

	// nextHandle is the next handle to allocate.
	nextHandle int

	// logger, when set via SetLogger, overrides the config logger for
	// pipes started afterwards.
	logger model.Logger

	// errMu guards lastError.
	errMu sync.Mutex

	// lastError is the most recent terminal error string.
	lastError string
}

// NewService creates the pipe runtime.
func NewService() *Service {
	return &Service{
		relays:     make(map[int]*relay.Relay),
		nextHandle: 1,
	}
}

// SetLogger replaces the logger used by all pipes started after this
// call. The logger is invoked from arbitrary background workers, so it
// must be safe for concurrent use and it must not block. A nil logger
// restores the config-provided one.
func (s *Service) SetLogger(logger model.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger = logger
}

// Start starts one pipe instance from the given config and returns its
// handle. On failure it records the last error and leaves no resources
// allocated. The foreign-call shim maps a non-nil error to a negative
// error code.
func (s *Service) Start(cfg *config.Config) (int, error) {
	logger := s.loggerFor(cfg)
	opts := cfg.PipeOptions()
	if opts == nil || !opts.Enabled {
		return 0, s.failStart(logger, ErrDisabled)
	}

	// fail early on destinations that will never dial
	remote, err := cfg.Remote()
	if err != nil {
		return 0, s.failStart(logger, fmt.Errorf("%w: %s", ErrBadDestination, err))
	}
	if _, err := net.ResolveTCPAddr("tcp", remote.Endpoint); err != nil {
		return 0, s.failStart(logger, fmt.Errorf("%w: %s", ErrBadDestination, err))
	}

	listenPort := opts.ListenPort
	if listenPort == 0 {
		// bind an ephemeral socket solely to discover a free port, then
		// release it and rebind inside the relay; two processes could in
		// principle collide, which surfaces as a bind error below
		listenPort, err = probeFreePort()
		if err != nil {
			return 0, s.failStart(logger, err)
		}
	}

	r, err := relay.New(logger, cfg, s.recordError)
	if err != nil {
		return 0, s.failStart(logger, err)
	}
	if err := r.Start(listenPort); err != nil {
		return 0, s.failStart(logger, err)
	}

	s.mu.Lock()
	handle := s.nextHandle
	s.nextHandle++
	s.relays[handle] = r
	s.mu.Unlock()

	logger.Infof("pipe: started handle %d, local port %d", handle, r.LocalPort())
	return handle, nil
}

// Stop stops the pipe instance behind the handle and blocks until every
// background worker owned by it has exited and its socket is closed.
// Unknown handles are a no-op, so Stop is idempotent.
func (s *Service) Stop(handle int) {
	s.mu.Lock()
	r, ok := s.relays[handle]
	delete(s.relays, handle)
	s.mu.Unlock()
	if !ok {
		return
	}
	r.Stop()
}

// LocalPort returns the local UDP port of the pipe behind the handle, or
// zero when the handle does not exist.
func (s *Service) LocalPort(handle int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.relays[handle]; ok {
		return r.LocalPort()
	}
	return 0
}

// Version returns the static build identifier.
func (s *Service) Version() string {
	return Version
}

// ResetFingerprint clears the cached randomized fingerprint shape so that
// the next dial picks a fresh disguise. Process-wide: it affects all
// future sessions across all handles.
func (s *Service) ResetFingerprint() {
	fingerprint.ResetRandomized()
}

// LastError returns the most recent terminal error string, or the empty
// string when there is none.
func (s *Service) LastError() string {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.lastError
}

// ClearLastError clears the diagnostics slot.
func (s *Service) ClearLastError() {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	s.lastError = ""
}

// loggerFor returns the SetLogger override, or the config logger.
func (s *Service) loggerFor(cfg *config.Config) model.Logger {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.logger != nil {
		return s.logger
	}
	if cfg.Logger() != nil {
		return cfg.Logger()
	}
	return log.Log
}

// failStart records a synchronous start failure.
func (s *Service) failStart(logger model.Logger, err error) error {
	logger.Errorf("pipe: start failed: %s", err.Error())
	s.recordError(err)
	return err
}

// recordError overwrites the diagnostics slot. Also used as the error
// sink for asynchronous session failures.
func (s *Service) recordError(err error) {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	s.lastError = err.Error()
}

// probeFreePort discovers a currently free local UDP port.
func probeFreePort() (int, error) {
	probe, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	port := probe.LocalAddr().(*net.UDPAddr).Port
	probe.Close()
	return port, nil
}
