package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zaphost/gateway/internal/core/domain"
	"github.com/zaphost/gateway/internal/core/ports"
)

// ---------------------------------------------------------------------------
// Users
// ---------------------------------------------------------------------------

type stubUserRepo struct {
	mu      sync.Mutex
	users   map[string]*domain.User
	findErr error
	paid    []string
}

func newStubUserRepo() *stubUserRepo {
	return &stubUserRepo{users: make(map[string]*domain.User)}
}

func cloneUser(u *domain.User) *domain.User {
	if u == nil {
		return nil
	}
	clone := *u
	if u.TrialEndsAt != nil {
		t := *u.TrialEndsAt
		clone.TrialEndsAt = &t
	}
	return &clone
}

func (r *stubUserRepo) put(u *domain.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[u.ID] = cloneUser(u)
}

func (r *stubUserRepo) Create(_ context.Context, user *domain.User) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == user.Email {
			return nil, domain.ErrUserExists
		}
	}
	c := cloneUser(user)
	c.ID = fmt.Sprintf("user-%d", len(r.users)+1)
	r.users[c.ID] = cloneUser(c)
	return c, nil
}

func (r *stubUserRepo) FindByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	u, ok := r.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return cloneUser(u), nil
}

func (r *stubUserRepo) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			return cloneUser(u), nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (r *stubUserRepo) UpdatePlan(_ context.Context, id string, plan domain.Plan, selected domain.SelectedPlan, trialEndsAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.Plan = plan
	u.SelectedPlan = selected
	u.TrialEndsAt = &trialEndsAt
	return nil
}

func (r *stubUserRepo) MarkPaid(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.Plan = domain.PlanPaid
	r.paid = append(r.paid, id)
	return nil
}

type stubTxnRepo struct {
	completed []string
	failed    []string
	err       error
}

func (r *stubTxnRepo) Complete(_ context.Context, id string, _ time.Time) error {
	if r.err != nil {
		return r.err
	}
	r.completed = append(r.completed, id)
	return nil
}

func (r *stubTxnRepo) Fail(_ context.Context, id string, _ time.Time) error {
	if r.err != nil {
		return r.err
	}
	r.failed = append(r.failed, id)
	return nil
}

// ---------------------------------------------------------------------------
// Credentials
// ---------------------------------------------------------------------------

type stubCredRepo struct {
	mu       sync.Mutex
	creds    []*domain.Credential
	touchErr error
	touched  []string

	// countDelay widens the window between counting and inserting.
	countDelay time.Duration
}

func newStubCredRepo() *stubCredRepo {
	return &stubCredRepo{}
}

func (r *stubCredRepo) Create(_ context.Context, cred *domain.Credential) (*domain.Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *cred
	c.ID = fmt.Sprintf("%s-%d", cred.Kind, len(r.creds)+1)
	r.creds = append(r.creds, &c)
	out := c
	return &out, nil
}

func (r *stubCredRepo) FindActiveByKey(_ context.Context, kind domain.CredentialKind, key string) (*domain.Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.creds {
		if c.Kind == kind && c.Key == key && c.IsActive {
			out := *c
			return &out, nil
		}
	}
	return nil, domain.ErrCredentialNotFound
}

func (r *stubCredRepo) CountActive(_ context.Context, kind domain.CredentialKind, userID string) (int64, error) {
	time.Sleep(r.countDelay)
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, c := range r.creds {
		if c.Kind == kind && c.UserID == userID && c.IsActive {
			n++
		}
	}
	return n, nil
}

func (r *stubCredRepo) ListActive(_ context.Context, kind domain.CredentialKind, userID string) ([]*domain.Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Credential
	for _, c := range r.creds {
		if c.Kind == kind && c.UserID == userID && c.IsActive {
			cp := *c
			cp.SecretHash = ""
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *stubCredRepo) Deactivate(_ context.Context, kind domain.CredentialKind, id, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.creds {
		if c.Kind == kind && c.ID == id && c.UserID == userID && c.IsActive {
			c.IsActive = false
			return nil
		}
	}
	return domain.ErrCredentialNotFound
}

func (r *stubCredRepo) TouchLastUsed(_ context.Context, _ domain.CredentialKind, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.touchErr != nil {
		return r.touchErr
	}
	r.touched = append(r.touched, id)
	for _, c := range r.creds {
		if c.ID == id {
			t := at
			c.LastUsed = &t
		}
	}
	return nil
}

type stubTokens struct {
	userIDs map[string]string
}

func (s stubTokens) ParseIdentityToken(token string) (string, error) {
	if id, ok := s.userIDs[token]; ok {
		return id, nil
	}
	return "", domain.ErrInvalidToken
}

// ---------------------------------------------------------------------------
// Sessions
// ---------------------------------------------------------------------------

type stubSnapshots struct {
	mu    sync.Mutex
	saved []domain.SessionSnapshot
	err   error
}

func (s *stubSnapshots) Save(_ context.Context, snap domain.SessionSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, snap)
	return s.err
}

func (s *stubSnapshots) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saved)
}

func (s *stubSnapshots) last() (domain.SessionSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.saved) == 0 {
		return domain.SessionSnapshot{}, false
	}
	return s.saved[len(s.saved)-1], true
}

type stubAudit struct {
	mu       sync.Mutex
	messages []domain.MessageLog
	calls    []domain.APILog
}

func (a *stubAudit) RecordMessage(e domain.MessageLog) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.messages = append(a.messages, e)
}

func (a *stubAudit) RecordAPICall(e domain.APILog) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, e)
}

// fakeConn is a scriptable connection. Tests push lifecycle events with emit.
type fakeConn struct {
	events chan ports.TransportEvent

	mu       sync.Mutex
	closed   bool
	closeErr error
	sent     []string
	sendErr  error
}

func newFakeConn() *fakeConn {
	return &fakeConn{events: make(chan ports.TransportEvent, 16)}
}

func (c *fakeConn) Events() <-chan ports.TransportEvent { return c.events }

func (c *fakeConn) emit(evt ports.TransportEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.events <- evt
}

func (c *fakeConn) Send(_ context.Context, to, body string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return "", c.sendErr
	}
	c.sent = append(c.sent, to+"|"+body)
	return fmt.Sprintf("msg-%d", len(c.sent)), nil
}

func (c *fakeConn) Close(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.events)
	}
	return c.closeErr
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) sentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

// fakeTransport hands out fakeConns. onOpen, when set, runs for every new
// connection before Open returns. openDelay and gate stall Open the way a slow
// dial does; neither honors the context.
type fakeTransport struct {
	mu        sync.Mutex
	conns     []*fakeConn
	openErr   error
	onOpen    func(*fakeConn)
	openDelay time.Duration
	gate      chan struct{}

	entered atomic.Int32
}

func (t *fakeTransport) Open(_ context.Context, _ string) (ports.Connection, error) {
	t.entered.Add(1)
	if t.openDelay > 0 {
		time.Sleep(t.openDelay)
	}
	if t.gate != nil {
		<-t.gate
	}

	t.mu.Lock()
	if t.openErr != nil {
		t.mu.Unlock()
		return nil, t.openErr
	}
	c := newFakeConn()
	t.conns = append(t.conns, c)
	hook := t.onOpen
	t.mu.Unlock()

	if hook != nil {
		hook(c)
	}
	return c, nil
}

func (t *fakeTransport) opened() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.conns)
}

func (t *fakeTransport) conn(i int) *fakeConn {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conns[i]
}

// stubIdem mirrors the Redis claim protocol in memory.
type stubIdem struct {
	mu       sync.Mutex
	stored   map[string]string
	claimErr error
	released int
}

func newStubIdem() *stubIdem {
	return &stubIdem{stored: make(map[string]string)}
}

const stubPending = "pending"

func (s *stubIdem) Claim(_ context.Context, userID, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.claimErr != nil {
		return "", false, s.claimErr
	}
	id, ok := s.stored[userID+":"+key]
	switch {
	case !ok:
		s.stored[userID+":"+key] = stubPending
		return "", true, nil
	case id == stubPending:
		return "", false, domain.ErrSendInProgress
	default:
		return id, false, nil
	}
}

func (s *stubIdem) Complete(_ context.Context, userID, key, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stored[userID+":"+key] = messageID
	return nil
}

func (s *stubIdem) Release(_ context.Context, userID, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.stored, userID+":"+key)
	s.released++
	return nil
}

var errBoom = errors.New("boom")
