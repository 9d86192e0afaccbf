package relay

import (
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/tlspipe/udptlspipe/internal/model"
)

// sessionRegistry maps peer addresses to sessions. It guarantees that at
// most one alive session per peer address is routable at any time; a
// session that has finished is transparently replaced on the next datagram
// from the same peer.
type sessionRegistry struct {
	// logger is the logger to use.
	logger model.Logger

	// mu guards the sessions map: many concurrent lookups, exclusive
	// insert and remove.
	mu sync.RWMutex

	// sessions maps a peer address (host:port) to its session.
	sessions map[string]*session
}

// newSessionRegistry creates an empty registry.
func newSessionRegistry(logger model.Logger) *sessionRegistry {
	return &sessionRegistry{
		logger:   logger,
		sessions: make(map[string]*session),
	}
}

// getOrCreate returns the alive session for peerAddr, or invokes factory
// to build a replacement when there is none.
func (r *sessionRegistry) getOrCreate(peerAddr string, factory func() *session) *session {
	r.mu.RLock()
	existing := r.sessions[peerAddr]
	r.mu.RUnlock()
	if existing != nil && existing.isAlive() {
		return existing
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// re-check: a concurrent datagram may have created it already
	if existing := r.sessions[peerAddr]; existing != nil && existing.isAlive() {
		return existing
	}
	created := factory()
	r.sessions[peerAddr] = created
	r.logger.Debugf("registry: new session for peer %s", peerAddr)
	return created
}

// count returns the number of registered sessions.
func (r *sessionRegistry) count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// closeAll closes every session, waits for their workers to exit, and
// clears the map. Used on instance shutdown.
func (r *sessionRegistry) closeAll() {
	r.mu.Lock()
	snapshot := make([]*session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		snapshot = append(snapshot, sess)
	}
	r.sessions = make(map[string]*session)
	r.mu.Unlock()

	group := &errgroup.Group{}
	for _, sess := range snapshot {
		sess := sess
		group.Go(func() error {
			sess.close()
			return nil
		})
	}
	_ = group.Wait()
}
