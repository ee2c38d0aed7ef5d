package sink

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

type fakeExecer struct {
	mu    sync.Mutex
	execs []string
	block chan struct{}
	err   error
}

func (f *fakeExecer) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return pgconn.CommandTag{}, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return pgconn.CommandTag{}, f.err
	}
	// Record the exchange id (first arg) rather than the SQL text.
	f.execs = append(f.execs, args[0].(string))
	return pgconn.CommandTag{}, nil
}

func (f *fakeExecer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.execs)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestPostgresSink_RecordsAndDrainsOnClose(t *testing.T) {
	db := &fakeExecer{}
	s := NewPostgresSink(db, 8, quietLogger())

	for i := 0; i < 5; i++ {
		s.Record(Exchange{AgentID: "agent-1", Provider: "openai", Success: true})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if got := db.count(); got != 5 {
		t.Errorf("inserts = %d, want 5", got)
	}
}

func TestPostgresSink_AssignsIDAndTimestamp(t *testing.T) {
	db := &fakeExecer{}
	s := NewPostgresSink(db, 1, quietLogger())

	s.Record(Exchange{AgentID: "agent-1"})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	if len(db.execs) != 1 || db.execs[0] == "" {
		t.Errorf("expected a generated exchange id, got %v", db.execs)
	}
}

func TestPostgresSink_DropsWhenBufferFull(t *testing.T) {
	db := &fakeExecer{block: make(chan struct{})}
	s := NewPostgresSink(db, 2, quietLogger())

	// The worker blocks on the first insert; two more fill the buffer and
	// everything after that must drop without blocking this goroutine.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			s.Record(Exchange{AgentID: "agent-1"})
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Record blocked while the sink was saturated")
	}

	close(db.block)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if got := db.count(); got > 3 {
		t.Errorf("inserts = %d, want at most 3 (one in flight plus two buffered)", got)
	}
}

func TestNoopSink(t *testing.T) {
	var s ExchangeSink = NoopSink{}
	s.Record(Exchange{AgentID: "agent-1"})
	if err := s.Close(context.Background()); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
