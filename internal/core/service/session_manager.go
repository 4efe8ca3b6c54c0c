package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/zaphost/gateway/internal/api/metrics"
	"github.com/zaphost/gateway/internal/core/domain"
	"github.com/zaphost/gateway/internal/core/ports"
)

const (
	defaultChallengeTimeout = 60 * time.Second
	defaultSendTimeout      = 30 * time.Second
	defaultSnapshotTimeout  = 5 * time.Second
	defaultCloseTimeout     = 10 * time.Second
)

// SessionOptions bounds every wait on the session path. Zero values fall back
// to the defaults above.
type SessionOptions struct {
	ChallengeTimeout time.Duration
	SendTimeout      time.Duration
	SnapshotTimeout  time.Duration
}

// SessionManager owns the session state machine. Transport lifecycle events
// are read from each connection's event channel by one watcher goroutine and
// applied under the user's registry lock.
type SessionManager struct {
	registry  Registry
	transport ports.Transport
	snapshots ports.SessionSnapshotRepository
	audit     ports.AuditRecorder
	opts      SessionOptions
	now       func() time.Time
	log       zerolog.Logger
}

func NewSessionManager(
	registry Registry,
	transport ports.Transport,
	snapshots ports.SessionSnapshotRepository,
	audit ports.AuditRecorder,
	opts SessionOptions,
	log zerolog.Logger,
) *SessionManager {
	if opts.ChallengeTimeout <= 0 {
		opts.ChallengeTimeout = defaultChallengeTimeout
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = defaultSendTimeout
	}
	if opts.SnapshotTimeout <= 0 {
		opts.SnapshotTimeout = defaultSnapshotTimeout
	}
	return &SessionManager{
		registry:  registry,
		transport: transport,
		snapshots: snapshots,
		audit:     audit,
		opts:      opts,
		now:       func() time.Time { return time.Now().UTC() },
		log:       log,
	}
}

// CreateSession starts a connection attempt, or joins the one already in
// flight, and waits for its first outcome: a pairing code, a ready signal, a
// failure or the challenge deadline.
func (m *SessionManager) CreateSession(ctx context.Context, userID string) (*ports.CreateSessionResult, error) {
	start := time.Now()

	att, err := m.beginAttempt(ctx, userID)
	if err != nil {
		metrics.SessionCreateDuration.WithLabelValues("error").Observe(time.Since(start).Seconds())
		return nil, err
	}
	if att == nil {
		metrics.SessionCreateDuration.WithLabelValues("connected").Observe(time.Since(start).Seconds())
		return &ports.CreateSessionResult{Status: domain.SessionConnected}, nil
	}

	select {
	case <-att.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	out := att.outcome
	metrics.SessionCreateDuration.WithLabelValues(outcomeLabel(out)).Observe(time.Since(start).Seconds())
	if out.err != nil {
		return nil, out.err
	}
	return &ports.CreateSessionResult{Status: out.status, Challenge: out.challenge}, nil
}

// beginAttempt returns nil when the user is already connected. A new attempt
// takes its slot and starts its deadline under the lock; the transport is
// opened afterwards by open, outside the lock.
func (m *SessionManager) beginAttempt(ctx context.Context, userID string) (*attempt, error) {
	unlock := m.registry.Lock(userID)
	defer unlock()

	if cur, ok := m.registry.Get(userID); ok {
		switch {
		case cur.Status == domain.SessionConnected:
			return nil, nil
		case cur.Status == domain.SessionConnecting && cur.attempt != nil && !cur.attempt.settled():
			m.log.Debug().Str("user_id", userID).Msg("joining pending connection attempt")
			return cur.attempt, nil
		default:
			m.teardownLocked(userID, cur)
			m.registry.Delete(userID)
		}
	}

	sess := &LiveSession{
		Status:  domain.SessionDisconnected,
		attempt: newAttempt(),
	}
	if err := m.transition(sess, domain.SessionConnecting); err != nil {
		return nil, err
	}
	m.registry.Set(userID, sess)
	sess.attempt.timer = time.AfterFunc(m.opts.ChallengeTimeout, func() { m.expire(userID, sess) })

	go m.open(context.WithoutCancel(ctx), userID, sess)

	m.log.Info().Str("user_id", userID).Msg("connection attempt started")
	return sess.attempt, nil
}

// open dials the transport for sess and attaches the connection if sess is
// still the user's pending slot. A connection that arrives for a superseded
// or settled slot is closed.
func (m *SessionManager) open(ctx context.Context, userID string, sess *LiveSession) {
	openCtx, cancel := context.WithTimeout(ctx, m.opts.ChallengeTimeout)
	defer cancel()

	conn, err := m.transport.Open(openCtx, userID)

	unlock := m.registry.Lock(userID)
	defer unlock()

	cur, ok := m.registry.Get(userID)
	current := ok && cur == sess && !sess.attempt.settled()

	if err != nil {
		if !current {
			return
		}
		failure := fmt.Errorf("create session: %w: %w", domain.ErrTransport, err)
		if errors.Is(err, context.DeadlineExceeded) {
			failure = domain.ErrSessionTimeout
		}
		sess.attempt.settle(createOutcome{err: failure})
		m.markErrorLocked(userID, sess, err.Error())
		m.log.Error().Err(err).Str("user_id", userID).Msg("failed to open whatsapp connection")
		return
	}

	if !current {
		m.log.Debug().Str("user_id", userID).Msg("discarding connection for superseded attempt")
		closeCtx, cancelClose := context.WithTimeout(context.Background(), defaultCloseTimeout)
		defer cancelClose()
		if err := conn.Close(closeCtx); err != nil {
			m.log.Warn().Err(err).Str("user_id", userID).Msg("failed to close whatsapp connection")
		}
		return
	}

	sess.Conn = conn
	metrics.SessionsActive.Inc()
	go m.watch(userID, sess, conn)
}

// expire fails an attempt that produced no outcome before the deadline. The
// handle is released and a handle-less error marker replaces the slot.
func (m *SessionManager) expire(userID string, sess *LiveSession) {
	unlock := m.registry.Lock(userID)
	defer unlock()

	cur, ok := m.registry.Get(userID)
	if !ok || cur != sess {
		return
	}
	if !sess.attempt.settle(createOutcome{err: domain.ErrSessionTimeout}) {
		return
	}

	m.release(userID, sess)
	m.markErrorLocked(userID, sess, "challenge timeout")
	m.log.Warn().Str("user_id", userID).Dur("timeout", m.opts.ChallengeTimeout).Msg("pairing code not issued in time")
}

func (m *SessionManager) watch(userID string, sess *LiveSession, conn ports.Connection) {
	for evt := range conn.Events() {
		if !m.apply(userID, sess, evt) {
			return
		}
	}
	m.apply(userID, sess, ports.TransportEvent{Kind: ports.EventDisconnected, Reason: "connection closed"})
}

// apply runs one transport event through the state machine. It returns false
// once sess is no longer the user's current slot; the watcher then stops.
func (m *SessionManager) apply(userID string, sess *LiveSession, evt ports.TransportEvent) bool {
	unlock := m.registry.Lock(userID)
	defer unlock()

	cur, ok := m.registry.Get(userID)
	if !ok || cur != sess {
		return false
	}

	logger := m.log.With().Str("user_id", userID).Str("event", string(evt.Kind)).Logger()

	switch evt.Kind {
	case ports.EventChallenge:
		if sess.Status != domain.SessionConnecting {
			return true
		}
		sess.Challenge = evt.Challenge
		if sess.attempt.settle(createOutcome{status: domain.SessionConnecting, challenge: evt.Challenge}) {
			logger.Info().Msg("pairing code issued")
		} else {
			logger.Debug().Msg("pairing code refreshed")
		}
		return true

	case ports.EventReady:
		if sess.Status == domain.SessionConnected {
			logger.Debug().Msg("whatsapp reconnected")
			return true
		}
		if err := m.transition(sess, domain.SessionConnected); err != nil {
			logger.Warn().Err(err).Msg("ignoring ready signal")
			return true
		}
		sess.Challenge = ""
		sess.attempt.settle(createOutcome{status: domain.SessionConnected})
		now := m.now()
		m.persist(context.Background(), userID, domain.SessionConnected, "", &now)
		logger.Info().Msg("whatsapp connected")
		return true

	case ports.EventAuthFailure, ports.EventError:
		if sess.Status == domain.SessionConnected {
			return m.dropLocked(userID, sess, errorReason(evt), logger)
		}
		cause := domain.ErrTransport
		if evt.Kind == ports.EventAuthFailure {
			cause = domain.ErrTransportAuth
		}
		failure := cause
		if evt.Err != nil {
			failure = fmt.Errorf("%w: %w", cause, evt.Err)
		}
		sess.attempt.settle(createOutcome{err: failure})
		m.release(userID, sess)
		m.markErrorLocked(userID, sess, errorReason(evt))
		logger.Warn().Err(evt.Err).Msg("connection attempt failed")
		return false

	case ports.EventDisconnected:
		return m.dropLocked(userID, sess, evt.Reason, logger)
	}

	logger.Debug().Msg("ignoring unknown transport event")
	return true
}

// dropLocked handles an unsolicited disconnect: the handle is released and the
// slot removed.
func (m *SessionManager) dropLocked(userID string, sess *LiveSession, reason string, logger zerolog.Logger) bool {
	sess.attempt.settle(createOutcome{err: fmt.Errorf("%w: disconnected: %s", domain.ErrTransport, reason)})
	m.release(userID, sess)
	m.registry.Delete(userID)
	if err := m.transition(sess, domain.SessionDisconnected); err != nil {
		logger.Warn().Err(err).Msg("unexpected session transition")
	}
	m.persist(context.Background(), userID, domain.SessionDisconnected, reason, nil)
	logger.Info().Str("reason", reason).Msg("whatsapp disconnected")
	return false
}

// GetSessionStatus reads the registry. Unknown users are disconnected.
func (m *SessionManager) GetSessionStatus(_ context.Context, userID string) ports.SessionStatusResult {
	unlock := m.registry.Lock(userID)
	defer unlock()

	sess, ok := m.registry.Get(userID)
	if !ok {
		return ports.SessionStatusResult{Status: domain.SessionDisconnected}
	}
	res := ports.SessionStatusResult{Status: sess.Status}
	if sess.Status == domain.SessionConnecting {
		res.Challenge = sess.Challenge
	}
	return res
}

// SendMessage dispatches body to recipient through the user's connection. The
// transport is never called unless the session is connected.
func (m *SessionManager) SendMessage(ctx context.Context, userID, recipient, body string) (*ports.SendMessageResult, error) {
	to, err := domain.NormalizeRecipient(recipient)
	if err != nil {
		return nil, err
	}

	unlock := m.registry.Lock(userID)
	sess, ok := m.registry.Get(userID)
	if !ok || sess.Status != domain.SessionConnected || sess.Conn == nil {
		unlock()
		metrics.MessagesSentTotal.WithLabelValues("not_connected").Inc()
		return nil, domain.ErrNotConnected
	}
	conn := sess.Conn
	unlock()

	sendCtx, cancel := context.WithTimeout(ctx, m.opts.SendTimeout)
	defer cancel()

	msgID, err := conn.Send(sendCtx, to, body)
	if err != nil {
		metrics.MessagesSentTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("send message: %w: %w", domain.ErrTransport, err)
	}

	metrics.MessagesSentTotal.WithLabelValues("sent").Inc()
	m.audit.RecordMessage(domain.MessageLog{
		UserID:    userID,
		To:        to,
		Body:      body,
		MessageID: msgID,
		Status:    "sent",
		SentAt:    m.now(),
	})

	return &ports.SendMessageResult{MessageID: msgID, To: to}, nil
}

// DestroySession tears the user's session down. Teardown failures are logged;
// the slot is removed and the disconnected snapshot written regardless.
func (m *SessionManager) DestroySession(ctx context.Context, userID string) {
	unlock := m.registry.Lock(userID)
	defer unlock()

	if sess, ok := m.registry.Get(userID); ok {
		m.teardownLocked(userID, sess)
		m.registry.Delete(userID)
		if err := m.transition(sess, domain.SessionDisconnected); err != nil {
			m.log.Warn().Err(err).Str("user_id", userID).Msg("unexpected session transition")
		}
	}
	m.persist(ctx, userID, domain.SessionDisconnected, "", nil)
	m.log.Info().Str("user_id", userID).Msg("session destroyed")
}

// teardownLocked resolves any pending attempt and releases the handle.
func (m *SessionManager) teardownLocked(userID string, sess *LiveSession) {
	if sess.attempt != nil {
		sess.attempt.settle(createOutcome{err: domain.ErrSessionClosed})
	}
	m.release(userID, sess)
}

// release closes the slot's connection, if any. Errors are swallowed.
func (m *SessionManager) release(userID string, sess *LiveSession) {
	if sess.Conn == nil {
		return
	}
	metrics.SessionsActive.Dec()

	ctx, cancel := context.WithTimeout(context.Background(), defaultCloseTimeout)
	defer cancel()
	if err := sess.Conn.Close(ctx); err != nil {
		m.log.Warn().Err(err).Str("user_id", userID).Msg("failed to close whatsapp connection")
	}
}

func (m *SessionManager) persist(ctx context.Context, userID string, status domain.SessionStatus, reason string, connectedAt *time.Time) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.opts.SnapshotTimeout)
	defer cancel()

	snap := domain.SessionSnapshot{
		UserID:      userID,
		Status:      status,
		Reason:      reason,
		ConnectedAt: connectedAt,
		UpdatedAt:   m.now(),
	}
	if err := m.snapshots.Save(ctx, snap); err != nil {
		m.log.Warn().Err(err).Str("user_id", userID).Str("status", string(status)).Msg("failed to persist session snapshot")
	}
}

// transition moves sess to next if the state machine allows it.
func (m *SessionManager) transition(sess *LiveSession, next domain.SessionStatus) error {
	if err := sess.Status.Transition(next); err != nil {
		return err
	}
	sess.Status = next
	metrics.SessionTransitionsTotal.WithLabelValues(string(next)).Inc()
	return nil
}

// markErrorLocked moves sess to error and leaves a handle-less marker in its
// slot.
func (m *SessionManager) markErrorLocked(userID string, sess *LiveSession, reason string) {
	if err := m.transition(sess, domain.SessionError); err != nil {
		m.log.Warn().Err(err).Str("user_id", userID).Msg("unexpected session transition")
	}
	m.registry.Set(userID, &LiveSession{Status: domain.SessionError})
	m.persist(context.Background(), userID, domain.SessionError, reason, nil)
}

func errorReason(evt ports.TransportEvent) string {
	if evt.Err != nil {
		return evt.Err.Error()
	}
	if evt.Reason != "" {
		return evt.Reason
	}
	return string(evt.Kind)
}

func outcomeLabel(o createOutcome) string {
	switch {
	case o.err == nil && o.status == domain.SessionConnected:
		return "connected"
	case o.err == nil:
		return "challenge"
	case errors.Is(o.err, domain.ErrSessionTimeout):
		return "timeout"
	case errors.Is(o.err, domain.ErrTransportAuth):
		return "auth_failure"
	default:
		return "error"
	}
}
