// Package outbox provides a durable queue of pending remote mutations.
// Optimistic local updates never wait on the network; the write that should
// follow them is enqueued here and retried on later connectivity windows.
package outbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Kind identifies the remote mutation an entry represents.
type Kind string

// Mutation kinds carried by the queue.
const (
	KindProfileUpsert Kind = "profile_upsert"
	KindProfileSync   Kind = "profile_sync"
	KindHistoryReset  Kind = "history_reset"
	KindFullReset     Kind = "full_reset"
)

const outboxSchema = `
CREATE TABLE IF NOT EXISTS outbox (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	kind       TEXT NOT NULL,
	payload    TEXT NOT NULL,
	attempts   INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_outbox_created ON outbox(created_at);`

// Entry is one pending mutation.
type Entry struct {
	ID        string
	UserID    string
	Kind      Kind
	Payload   []byte
	Attempts  int
	CreatedAt time.Time
}

// Handler executes one pending mutation against the backend. A nil return
// removes the entry from the queue.
type Handler func(ctx context.Context, entry Entry) error

// Config holds configuration for the outbox queue.
type Config struct {
	// DB is the sqlite handle shared with the on-device store (required).
	DB *sql.DB

	// Logger for queue operations.
	Logger zerolog.Logger

	// MaxAttempts is how many drain passes may fail an entry before it is
	// dropped. Default: 8.
	MaxAttempts int

	// InitialInterval is the initial per-entry retry interval inside one
	// drain pass. Default: 500ms.
	InitialInterval time.Duration

	// MaxInterval caps the per-entry retry interval. Default: 5s.
	MaxInterval time.Duration
}

// Queue is a durable outbox backed by sqlite.
type Queue struct {
	db              *sql.DB
	logger          zerolog.Logger
	maxAttempts     int
	initialInterval time.Duration
	maxInterval     time.Duration
}

// Open prepares the outbox table and returns the queue.
func Open(cfg Config) (*Queue, error) {
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 8
	}
	if cfg.InitialInterval == 0 {
		cfg.InitialInterval = 500 * time.Millisecond
	}
	if cfg.MaxInterval == 0 {
		cfg.MaxInterval = 5 * time.Second
	}

	if _, err := cfg.DB.Exec(outboxSchema); err != nil {
		return nil, fmt.Errorf("create outbox schema: %w", err)
	}

	return &Queue{
		db:              cfg.DB,
		logger:          cfg.Logger,
		maxAttempts:     cfg.MaxAttempts,
		initialInterval: cfg.InitialInterval,
		maxInterval:     cfg.MaxInterval,
	}, nil
}

// Enqueue durably records a pending mutation. Enqueue failures are the
// caller's to log; they must not fail the user-visible operation.
func (q *Queue) Enqueue(ctx context.Context, userID string, kind Kind, payload any) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	_, err = q.db.ExecContext(ctx,
		"INSERT INTO outbox (id, user_id, kind, payload, attempts, created_at) VALUES (?, ?, ?, ?, 0, ?)",
		uuid.NewString(), userID, string(kind), string(encoded),
		time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", kind, err)
	}

	q.logger.Debug().Str("kind", string(kind)).Msg("mutation enqueued")
	return nil
}

// Pending returns the number of queued entries.
func (q *Queue) Pending(ctx context.Context) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM outbox").Scan(&n)
	return n, err
}

// Drain attempts every queued entry oldest-first. Each entry is retried with
// exponential backoff within the pass; an entry that still fails has its
// attempt count bumped and stays queued, until MaxAttempts passes have failed
// it and it is dropped with a warning.
func (q *Queue) Drain(ctx context.Context, handle Handler) error {
	entries, err := q.pendingEntries(ctx)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	q.logger.Debug().Int("pending", len(entries)).Msg("draining outbox")

	for _, entry := range entries {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		bo := backoff.NewExponentialBackOff()
		bo.InitialInterval = q.initialInterval
		bo.MaxInterval = q.maxInterval
		bo.MaxElapsedTime = 0
		schedule := backoff.WithContext(backoff.WithMaxRetries(bo, 2), ctx)

		err := backoff.Retry(func() error {
			return handle(ctx, entry)
		}, schedule)

		if err == nil {
			if err := q.remove(ctx, entry.ID); err != nil {
				return err
			}
			continue
		}

		attempts := entry.Attempts + 1
		if attempts >= q.maxAttempts {
			q.logger.Warn().
				Str("kind", string(entry.Kind)).
				Int("attempts", attempts).
				Err(err).
				Msg("dropping outbox entry after max attempts")
			if err := q.remove(ctx, entry.ID); err != nil {
				return err
			}
			continue
		}

		if _, err := q.db.ExecContext(ctx,
			"UPDATE outbox SET attempts = ? WHERE id = ?", attempts, entry.ID); err != nil {
			return fmt.Errorf("update attempts: %w", err)
		}
		q.logger.Debug().
			Str("kind", string(entry.Kind)).
			Int("attempts", attempts).
			Msg("outbox entry still failing, will retry on next drain")
	}

	return nil
}

// DropUser removes every queued entry for the given user. Used by the full
// data reset so a wiped account does not resurrect writes.
func (q *Queue) DropUser(ctx context.Context, userID string) error {
	_, err := q.db.ExecContext(ctx, "DELETE FROM outbox WHERE user_id = ?", userID)
	if err != nil {
		return fmt.Errorf("drop user entries: %w", err)
	}
	return nil
}

func (q *Queue) pendingEntries(ctx context.Context) ([]Entry, error) {
	rows, err := q.db.QueryContext(ctx,
		"SELECT id, user_id, kind, payload, attempts, created_at FROM outbox ORDER BY created_at")
	if err != nil {
		return nil, fmt.Errorf("list outbox: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var kind, payload, created string
		if err := rows.Scan(&e.ID, &e.UserID, &kind, &payload, &e.Attempts, &created); err != nil {
			return nil, fmt.Errorf("scan outbox entry: %w", err)
		}
		e.Kind = Kind(kind)
		e.Payload = []byte(payload)
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (q *Queue) remove(ctx context.Context, id string) error {
	if _, err := q.db.ExecContext(ctx, "DELETE FROM outbox WHERE id = ?", id); err != nil {
		return fmt.Errorf("remove outbox entry: %w", err)
	}
	return nil
}
