package queue

import (
	"context"
	"hash/fnv"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/zaphost/gateway/internal/api/metrics"
	"github.com/zaphost/gateway/internal/core/domain"
	"github.com/zaphost/gateway/internal/core/ports"
)

const (
	defaultWorkers = 4
	channelBuffer  = 256
	writeTimeout   = 5 * time.Second
)

const (
	recordMessage = "message"
	recordAPICall = "api_call"
)

type record struct {
	kind    string
	message domain.MessageLog
	call    domain.APILog
}

// Dispatcher is the asynchronous ports.AuditRecorder. Records are routed to a
// fixed set of writers by hashing the user id, so one user's records are
// persisted in the order they were produced. Enqueueing never blocks: a full
// writer channel drops the record and counts it.
type Dispatcher struct {
	workers []chan record
	repo    ports.AuditRepository
	log     zerolog.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher creates a Dispatcher with numWorkers sharded writers.
// If numWorkers <= 0, defaultWorkers is used.
func NewDispatcher(numWorkers int, repo ports.AuditRepository, log zerolog.Logger) *Dispatcher {
	if numWorkers <= 0 {
		numWorkers = defaultWorkers
	}
	d := &Dispatcher{
		workers: make([]chan record, numWorkers),
		repo:    repo,
		log:     log,
	}
	for i := range d.workers {
		d.workers[i] = make(chan record, channelBuffer)
	}
	return d
}

// Start launches all writer goroutines.
func (d *Dispatcher) Start() {
	for i, ch := range d.workers {
		d.wg.Add(1)
		go d.runWorker(i, ch)
	}
}

// Close stops accepting records and waits until queued ones are written or
// ctx expires.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		for _, ch := range d.workers {
			close(ch)
		}
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) RecordMessage(entry domain.MessageLog) {
	d.enqueue(entry.UserID, record{kind: recordMessage, message: entry})
}

func (d *Dispatcher) RecordAPICall(entry domain.APILog) {
	d.enqueue(entry.UserID, record{kind: recordAPICall, call: entry})
}

func (d *Dispatcher) enqueue(userID string, r record) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		metrics.AuditDroppedTotal.WithLabelValues(r.kind).Inc()
		return
	}

	idx := d.shardIndex(userID)
	select {
	case d.workers[idx] <- r:
		metrics.AuditQueueDepth.WithLabelValues(strconv.Itoa(idx)).Inc()
	default:
		metrics.AuditDroppedTotal.WithLabelValues(r.kind).Inc()
		d.log.Warn().Str("user_id", userID).Str("type", r.kind).Int("worker_id", idx).Msg("audit queue full, record dropped")
	}
}

// shardIndex maps a user id deterministically to a writer index.
func (d *Dispatcher) shardIndex(userID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return int(h.Sum32() % uint32(len(d.workers)))
}

func (d *Dispatcher) runWorker(id int, ch <-chan record) {
	defer d.wg.Done()

	depth := metrics.AuditQueueDepth.WithLabelValues(strconv.Itoa(id))
	for r := range ch {
		depth.Dec()
		if err := d.write(r); err != nil {
			metrics.AuditErrorsTotal.WithLabelValues(r.kind).Inc()
			d.log.Error().Err(err).
				Str("type", r.kind).
				Int("worker_id", id).
				Msg("usage record write failed")
		}
	}
}

func (d *Dispatcher) write(r record) error {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if r.kind == recordMessage {
		return d.repo.InsertMessageLog(ctx, r.message)
	}
	return d.repo.InsertAPILog(ctx, r.call)
}
