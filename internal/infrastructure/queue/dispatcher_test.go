package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/zaphost/gateway/internal/core/domain"
)

type stubAuditRepo struct {
	mu       sync.Mutex
	messages []domain.MessageLog
	calls    []domain.APILog
	err      error
	block    chan struct{}
}

func (r *stubAuditRepo) InsertMessageLog(_ context.Context, e domain.MessageLog) error {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, e)
	return r.err
}

func (r *stubAuditRepo) InsertAPILog(_ context.Context, e domain.APILog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, e)
	return r.err
}

func TestDispatcher_PreservesPerUserOrder(t *testing.T) {
	repo := &stubAuditRepo{}
	d := NewDispatcher(4, repo, zerolog.Nop())
	d.Start()

	for i := 0; i < 50; i++ {
		d.RecordMessage(domain.MessageLog{UserID: "u1", MessageID: fmt.Sprintf("m%d", i)})
	}
	d.RecordAPICall(domain.APILog{UserID: "u2", Endpoint: "/v1/send-message"})

	if err := d.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}

	if len(repo.messages) != 50 {
		t.Fatalf("expected 50 message logs, got %d", len(repo.messages))
	}
	for i, m := range repo.messages {
		if want := fmt.Sprintf("m%d", i); m.MessageID != want {
			t.Fatalf("position %d: expected %s, got %s", i, want, m.MessageID)
		}
	}
	if len(repo.calls) != 1 {
		t.Fatalf("expected 1 api log, got %d", len(repo.calls))
	}
}

func TestDispatcher_WriteErrorsDoNotStopWorker(t *testing.T) {
	repo := &stubAuditRepo{err: errors.New("mongo down")}
	d := NewDispatcher(1, repo, zerolog.Nop())
	d.Start()

	d.RecordMessage(domain.MessageLog{UserID: "u1"})
	d.RecordMessage(domain.MessageLog{UserID: "u1"})

	if err := d.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if len(repo.messages) != 2 {
		t.Fatalf("expected both records attempted, got %d", len(repo.messages))
	}
}

func TestDispatcher_FullQueueDropsWithoutBlocking(t *testing.T) {
	repo := &stubAuditRepo{block: make(chan struct{})}
	d := NewDispatcher(1, repo, zerolog.Nop())
	d.Start()

	done := make(chan struct{})
	go func() {
		for i := 0; i < channelBuffer+10; i++ {
			d.RecordMessage(domain.MessageLog{UserID: "u1"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("enqueue blocked on a full queue")
	}

	close(repo.block)
	if err := d.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if n := len(repo.messages); n >= channelBuffer+10 {
		t.Fatalf("expected some records dropped, got %d written", n)
	}
}

func TestDispatcher_RecordAfterCloseIsDropped(t *testing.T) {
	repo := &stubAuditRepo{}
	d := NewDispatcher(2, repo, zerolog.Nop())
	d.Start()
	_ = d.Close(context.Background())

	d.RecordAPICall(domain.APILog{UserID: "u1"})
	if len(repo.calls) != 0 {
		t.Fatalf("expected record after close to be dropped")
	}
}
