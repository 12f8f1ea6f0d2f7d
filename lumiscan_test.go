package lumiscan

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/lumiscan/lumiscan/internal/config"
	"github.com/lumiscan/lumiscan/internal/devserver"
	"github.com/lumiscan/lumiscan/internal/profile"
	"github.com/lumiscan/lumiscan/internal/session"
)

// TestOpenAgainstDevServer drives the wired core end to end: sign up on the
// dev backend, hydrate, capture a scan, and confirm the snapshot and the
// on-disk cache agree.
func TestOpenAgainstDevServer(t *testing.T) {
	srv := devserver.New(devserver.Config{
		Logger:     zerolog.Nop(),
		SigningKey: "test-key",
	})
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	app, err := Open(config.Config{
		BackendURL: ts.URL,
		StorePath:  filepath.Join(t.TempDir(), "store.db"),
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { app.Close() })

	token := provisionAccount(t, ts.URL, "ada@example.com")
	app.Sessions.SignIn(session.Session{UserID: "ada@example.com", AccessToken: token})

	ctx := context.Background()
	app.State.Start(ctx)
	if !app.State.Initialized() {
		t.Fatal("expected initialized state after Start")
	}

	rec, err := app.Backend.UploadScan(ctx, strings.NewReader("image-bytes"), "face.jpg")
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	app.State.AddScan(ctx, *rec)
	app.State.Wait()

	snap := app.State.Snapshot()
	if len(snap.Scans) != 1 || snap.Scans[0].ID != rec.ID {
		t.Fatalf("unexpected snapshot scans: %v", snap.Scans)
	}
	if snap.DailyCount != 1 || snap.Lifetime.TotalScans != 1 {
		t.Errorf("unexpected counters: daily=%d lifetime=%+v", snap.DailyCount, snap.Lifetime)
	}

	app.State.UpdateProfile(ctx, profile.UserProfile{Name: "Ada", Age: 30})
	app.State.Wait()
	if err := app.Storage.SyncOutbox(ctx); err != nil {
		t.Fatalf("outbox drain: %v", err)
	}

	remote, ok, err := app.Backend.Profile(ctx)
	if err != nil || !ok {
		t.Fatalf("remote profile: ok=%v err=%v", ok, err)
	}
	if remote.Name != "Ada" {
		t.Errorf("profile did not reach the backend: %+v", remote)
	}
}

func provisionAccount(t *testing.T, baseURL, email string) string {
	t.Helper()

	body, _ := json.Marshal(map[string]string{"email": email, "password": "hunter2"})
	resp, err := http.Post(baseURL+"/auth/signup", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("signup status %d", resp.StatusCode)
	}

	resp, err = http.Post(baseURL+"/auth/token", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	defer resp.Body.Close()
	var tok struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		t.Fatalf("decode token: %v", err)
	}
	return tok.AccessToken
}
