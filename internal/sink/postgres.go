package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

const insertTimeout = 5 * time.Second

// execer is the slice of pgxpool.Pool the sink needs.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresSink writes exchange records to the exchange_log table from a
// single background worker. Records are buffered in a channel; when the
// buffer is full the record is dropped with a warning, because the
// decision pipeline must never wait on the audit trail.
type PostgresSink struct {
	db     execer
	buf    chan Exchange
	done   chan struct{}
	logger *slog.Logger
}

// NewPostgresSink starts the background writer. bufferSize below 1
// defaults to 256.
func NewPostgresSink(db execer, bufferSize int, logger *slog.Logger) *PostgresSink {
	if bufferSize < 1 {
		bufferSize = 256
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &PostgresSink{
		db:     db,
		buf:    make(chan Exchange, bufferSize),
		done:   make(chan struct{}),
		logger: logger,
	}
	go s.run()
	return s
}

// Record queues an exchange for insertion, dropping it if the buffer is
// full.
func (s *PostgresSink) Record(ex Exchange) {
	if ex.ID == "" {
		ex.ID = uuid.NewString()
	}
	if ex.CreatedAt.IsZero() {
		ex.CreatedAt = time.Now().UTC()
	}
	select {
	case s.buf <- ex:
	default:
		s.logger.Warn("exchange sink buffer full, dropping record",
			"agent_id", ex.AgentID, "provider", ex.Provider)
	}
}

// Close stops accepting records and drains what is already buffered,
// bounded by ctx.
func (s *PostgresSink) Close(ctx context.Context) error {
	close(s.buf)
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *PostgresSink) run() {
	defer close(s.done)
	for ex := range s.buf {
		if err := s.insert(ex); err != nil {
			s.logger.Warn("exchange sink insert failed",
				"exchange_id", ex.ID, "error", err)
		}
	}
}

func (s *PostgresSink) insert(ex Exchange) error {
	ctx, cancel := context.WithTimeout(context.Background(), insertTimeout)
	defer cancel()

	var argsJSON []byte
	if len(ex.ActionArgs) > 0 {
		var err error
		argsJSON, err = json.Marshal(ex.ActionArgs)
		if err != nil {
			return fmt.Errorf("marshal action args: %w", err)
		}
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO exchange_log (
			id, agent_id, session_id, provider, model,
			prompt, raw_response, thinking, speaking, action, action_args,
			prompt_tokens, completion_tokens, cost_usd, duration_ms,
			success, error_detail, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`,
		ex.ID, ex.AgentID, ex.SessionID, ex.Provider, ex.Model,
		ex.Prompt, ex.RawResponse, ex.Thinking, ex.Speaking, ex.Action, argsJSON,
		ex.PromptTokens, ex.CompletionTokens, ex.CostUSD, ex.Duration.Milliseconds(),
		ex.Success, ex.ErrorDetail, ex.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert exchange_log: %w", err)
	}
	return nil
}
