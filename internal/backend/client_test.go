package backend

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/lumiscan/lumiscan/internal/session"
)

func testClient(t *testing.T, handler http.HandlerFunc) (*Client, *session.StaticProvider) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	sessions := session.NewStaticProvider()
	sessions.SignIn(session.Session{UserID: "usr_1", AccessToken: "tok123"})

	client := NewClient(ClientConfig{
		BaseURL:    server.URL,
		Sessions:   sessions,
		HTTPClient: server.Client(),
		Logger:     zerolog.Nop(),
	})
	return client, sessions
}

func TestClient_AttachesBearerToken(t *testing.T) {
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok123" {
			t.Errorf("expected bearer header, got %q", got)
		}
		w.Write([]byte(`{"used":1,"limit":10}`))
	})

	if _, err := client.ScanStatus(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestClient_NoSessionProceedsUnauthenticated(t *testing.T) {
	client, sessions := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			t.Errorf("expected no Authorization header, got %q", r.Header.Get("Authorization"))
		}
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"detail":"not authenticated"}`))
	})
	sessions.SignOut()

	_, err := client.ScanStatus(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", apiErr.StatusCode)
	}
	if apiErr.Message != "not authenticated" {
		t.Errorf("expected detail message, got %q", apiErr.Message)
	}
}

func TestClient_ErrorFallbackMessage(t *testing.T) {
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("not json at all"))
	})

	_, err := client.ScanStatus(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Message != "502 Bad Gateway" {
		t.Errorf("expected status-line fallback, got %q", apiErr.Message)
	}
}

func TestClient_Profile_DualColumnNames(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantHeight float64
		wantWeight float64
	}{
		{
			name:       "canonical columns",
			body:       `{"name":"Ada","age":30,"gender":"female","height_cm":170.5,"weight_kg":60}`,
			wantHeight: 170.5,
			wantWeight: 60,
		},
		{
			name:       "legacy columns",
			body:       `{"name":"Ada","age":30,"gender":"female","height":168,"weight":58}`,
			wantHeight: 168,
			wantWeight: 58,
		},
		{
			name:       "canonical wins when both present",
			body:       `{"name":"Ada","age":30,"gender":"female","height_cm":170,"height":1,"weight_kg":60,"weight":2}`,
			wantHeight: 170,
			wantWeight: 60,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			})

			p, ok, err := client.Profile(context.Background())
			if err != nil || !ok {
				t.Fatalf("unexpected result: ok=%v err=%v", ok, err)
			}
			if p.HeightCm == nil || *p.HeightCm != tt.wantHeight {
				t.Errorf("expected height %v, got %v", tt.wantHeight, p.HeightCm)
			}
			if p.WeightKg == nil || *p.WeightKg != tt.wantWeight {
				t.Errorf("expected weight %v, got %v", tt.wantWeight, p.WeightKg)
			}
		})
	}
}

func TestClient_Profile_NotFound(t *testing.T) {
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"detail":"profile not found"}`))
	})

	_, ok, err := client.Profile(context.Background())
	if err != nil {
		t.Fatalf("404 should read as absence, got %v", err)
	}
	if ok {
		t.Error("expected absent profile")
	}
}

func TestClient_ScanHistory_MappingAndDedup(t *testing.T) {
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/scans/history" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("limit") != "5" {
			t.Errorf("expected limit=5, got %q", r.URL.Query().Get("limit"))
		}
		w.Write([]byte(`{"scans":[
			{"id":"s2","date":"2025-06-10T09:00:00Z","metrics":{"symmetry":80,"skin_clarity":70},"overall":75},
			{"id":"s1","date":"2025-06-09T09:00:00Z","metrics":{"jawline":65},"overall":65},
			{"id":"s2","date":"2025-06-10T09:00:00Z","metrics":{},"overall":0}
		]}`))
	})

	records, err := client.ScanHistory(context.Background(), 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected duplicates suppressed, got %d records", len(records))
	}

	first := records[0]
	if first.ID != "s2" || first.Stats.Symmetry != 80 || first.Stats.SkinClarity != 70 {
		t.Errorf("unexpected mapping: %+v", first)
	}
	// Missing metrics default to zero, as does lifestyle.
	if first.Stats.Jawline != 0 {
		t.Errorf("expected missing metric to default to 0, got %d", first.Stats.Jawline)
	}
	if first.Lifestyle.SleepHours != 0 || first.Lifestyle.Diet != "" {
		t.Errorf("expected zero lifestyle, got %+v", first.Lifestyle)
	}
}

func TestClient_WeeklyReport_Locked(t *testing.T) {
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"locked":true}`))
	})

	report, err := client.WeeklyReport(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report != nil {
		t.Error("expected nil report when locked")
	}
}

func TestClient_CurrentWeeklyPlan_SyntheticIDs(t *testing.T) {
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"locked":false,"generated_at":"2025-06-09T00:00:00Z",
			"focus_areas":["jawline"],
			"routine":[{"title":"A","description":"a","duration":"5 min"},
			           {"title":"B","description":"b","duration":"2 min"}]}`))
	})

	p, err := client.CurrentWeeklyPlan(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil {
		t.Fatal("expected plan")
	}
	if len(p.Exercises) != 2 {
		t.Fatalf("expected 2 exercises, got %d", len(p.Exercises))
	}
	if p.Exercises[0].ID != "weekly_0" || p.Exercises[1].ID != "weekly_1" {
		t.Errorf("expected synthetic ids, got %q %q", p.Exercises[0].ID, p.Exercises[1].ID)
	}
	if p.Report != nil {
		t.Error("plan fetch must not attach a report")
	}
}

func TestClient_SignUp_NoBearer(t *testing.T) {
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			t.Error("signup must not carry a bearer token")
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"status":"created"}`))
	})

	err := client.SignUp(context.Background(), SignupRequest{
		Email: "a@b.c", Password: "pw", Name: "Ada",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
