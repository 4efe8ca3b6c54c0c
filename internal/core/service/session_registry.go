package service

import (
	"sync"
	"time"

	"github.com/zaphost/gateway/internal/core/domain"
	"github.com/zaphost/gateway/internal/core/ports"
)

// LiveSession is the registry slot owned by one user. Fields are only read or
// written while holding that user's lock. Conn is nil until the transport
// opens and is never replaced afterwards; an error marker left after a failed
// attempt has no Conn.
type LiveSession struct {
	Status    domain.SessionStatus
	Challenge string
	Conn      ports.Connection

	attempt *attempt
}

// Registry maps user ids to at most one live session and provides the
// per-user critical section every read-modify-write must run under.
type Registry interface {
	// Lock blocks until the caller owns userID's critical section and returns
	// the function that releases it. Different users never contend.
	Lock(userID string) (unlock func())
	Get(userID string) (*LiveSession, bool)
	Set(userID string, s *LiveSession)
	Delete(userID string)
}

// SessionRegistry is the in-memory Registry. It is empty on process start.
type SessionRegistry struct {
	locks *keyedLocks

	mu       sync.RWMutex
	sessions map[string]*LiveSession
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		locks:    newKeyedLocks(),
		sessions: make(map[string]*LiveSession),
	}
}

func (r *SessionRegistry) Lock(userID string) func() {
	return r.locks.lock(userID)
}

func (r *SessionRegistry) Get(userID string) (*LiveSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[userID]
	return s, ok
}

func (r *SessionRegistry) Set(userID string, s *LiveSession) {
	r.mu.Lock()
	r.sessions[userID] = s
	r.mu.Unlock()
}

func (r *SessionRegistry) Delete(userID string) {
	r.mu.Lock()
	delete(r.sessions, userID)
	r.mu.Unlock()
}

// createOutcome is what a pending createSession call resolves to.
type createOutcome struct {
	status    domain.SessionStatus
	challenge string
	err       error
}

// attempt is a one-shot future for a connection attempt. settle wins at most
// once; later signals are ignored.
type attempt struct {
	done    chan struct{}
	once    sync.Once
	timer   *time.Timer
	outcome createOutcome
}

func newAttempt() *attempt {
	return &attempt{done: make(chan struct{})}
}

func (a *attempt) settle(o createOutcome) bool {
	won := false
	a.once.Do(func() {
		if a.timer != nil {
			a.timer.Stop()
		}
		a.outcome = o
		close(a.done)
		won = true
	})
	return won
}

func (a *attempt) settled() bool {
	select {
	case <-a.done:
		return true
	default:
		return false
	}
}
