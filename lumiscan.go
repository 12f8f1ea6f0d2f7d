// Package lumiscan assembles the client data core: on-device persistence,
// the backend client, the durable mutation outbox, and the in-memory state
// layer the UI reads from.
package lumiscan

import (
	"github.com/rs/zerolog"

	"github.com/lumiscan/lumiscan/internal/backend"
	"github.com/lumiscan/lumiscan/internal/config"
	"github.com/lumiscan/lumiscan/internal/outbox"
	"github.com/lumiscan/lumiscan/internal/session"
	"github.com/lumiscan/lumiscan/internal/state"
	"github.com/lumiscan/lumiscan/internal/storage"
	"github.com/lumiscan/lumiscan/internal/store"
)

// App is the fully wired data core. The embedding shell signs users in and
// out through Sessions and drives data through State; Storage and Backend
// are exposed for flows that bypass the snapshot layer (image upload,
// login-time profile sync, outbox drains).
type App struct {
	Sessions *session.StaticProvider
	Backend  *backend.Client
	Storage  *storage.Service
	State    *state.Context

	kv     *store.SQLiteKV
	outbox *outbox.Queue
}

// Open wires the core against the configured backend and sqlite file. The
// returned App owns the database handle; Close releases it.
func Open(cfg config.Config, logger zerolog.Logger) (*App, error) {
	kv, err := store.OpenSQLite(cfg.StorePath)
	if err != nil {
		return nil, err
	}

	queue, err := outbox.Open(outbox.Config{
		DB:     kv.DB(),
		Logger: logger,
	})
	if err != nil {
		kv.Close()
		return nil, err
	}

	sessions := session.NewStaticProvider()
	client := backend.NewClient(backend.ClientConfig{
		BaseURL:  cfg.BackendURL,
		Sessions: sessions,
		Logger:   logger,
	})
	svc := storage.NewService(storage.Config{
		KV:       kv,
		Backend:  client,
		Sessions: sessions,
		Outbox:   queue,
		Logger:   logger,
	})

	return &App{
		Sessions: sessions,
		Backend:  client,
		Storage:  svc,
		State:    state.New(state.Config{Storage: svc, Logger: logger}),
		kv:       kv,
		outbox:   queue,
	}, nil
}

// Close waits for in-flight background persistence and releases the
// database.
func (a *App) Close() error {
	a.State.Wait()
	return a.kv.Close()
}
