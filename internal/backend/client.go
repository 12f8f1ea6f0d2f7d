// Package backend provides the client for the LumiScan backend API. It
// translates between wire shapes and domain records and owns no state; every
// authenticated call resolves the current bearer credential from the session
// provider at call time.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/lumiscan/lumiscan/internal/metrics"
	"github.com/lumiscan/lumiscan/internal/plan"
	"github.com/lumiscan/lumiscan/internal/profile"
	"github.com/lumiscan/lumiscan/internal/resilience"
	"github.com/lumiscan/lumiscan/internal/session"
)

const (
	// ClientName identifies this client for circuit breaker naming.
	ClientName = "lumiscan-backend"

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 10 * time.Second

	// DefaultHistoryLimit bounds history fetches when the caller passes 0.
	DefaultHistoryLimit = 50
)

// HTTPDoer is an interface for executing HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// APIError is the single error type surfaced for failed backend calls. The
// message comes from the response body's detail field when the backend
// follows convention, else from the HTTP status line.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend: %s", e.Message)
}

// ClientConfig holds configuration for the backend client.
type ClientConfig struct {
	// BaseURL is the backend base URL (required).
	BaseURL string

	// Sessions supplies the current bearer credential (required). Calls
	// without a resolvable session proceed unauthenticated; the backend
	// rejects them with 401 rather than the client pre-empting it.
	Sessions session.Provider

	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a resilient client with defaults.
	HTTPClient HTTPDoer

	// Timeout is the request timeout (optional, defaults to 10s).
	Timeout time.Duration

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client is a LumiScan backend API client.
type Client struct {
	baseURL    string
	sessions   session.Provider
	httpClient HTTPDoer
	logger     zerolog.Logger
}

// NewClient creates a new backend client.
func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		clientCfg := resilience.DefaultClientConfig(ClientName)
		clientCfg.Timeout = timeout
		httpClient = resilience.NewClient(clientCfg)
	}

	return &Client{
		baseURL:    cfg.BaseURL,
		sessions:   cfg.Sessions,
		httpClient: httpClient,
		logger:     cfg.Logger,
	}
}

// SignUp creates an account and its profile in one call. This is the only
// endpoint that never carries a bearer credential.
func (c *Client) SignUp(ctx context.Context, req SignupRequest) error {
	return c.do(ctx, http.MethodPost, "/auth/signup", req, nil)
}

// SyncProfile pushes the managed-auth display name and avatar after sign-in.
func (c *Client) SyncProfile(ctx context.Context, name, avatarURL string) error {
	return c.do(ctx, http.MethodPost, "/auth/sync-profile", syncProfileRequest{
		Name:      name,
		AvatarURL: avatarURL,
	}, nil)
}

// ScanStatus returns today's scan usage versus the server-side limit.
func (c *Client) ScanStatus(ctx context.Context) (*ScanStatus, error) {
	var status ScanStatus
	if err := c.do(ctx, http.MethodGet, "/scans/status", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// UploadScan submits a facial image for scoring and returns the resulting
// scan record.
func (c *Client) UploadScan(ctx context.Context, image io.Reader, filename string) (*metrics.ScanRecord, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("image", filename)
	if err != nil {
		return nil, fmt.Errorf("creating multipart body: %w", err)
	}
	if _, err := io.Copy(part, image); err != nil {
		return nil, fmt.Errorf("writing image part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("closing multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/scans/image", &buf)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	c.authorize(req)

	respBody, err := c.execute(req)
	if err != nil {
		return nil, err
	}

	var score scanScoreResponse
	if err := json.Unmarshal(respBody, &score); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	stats := statsFromMetricMap(score.Metrics)
	stats.Overall = score.Overall
	rec := &metrics.ScanRecord{
		ID:    score.ID,
		Date:  score.Date,
		Stats: stats,
	}

	c.logger.Debug().
		Str("scan_id", rec.ID).
		Int("overall", rec.Stats.Overall).
		Msg("scan image scored")

	return rec, nil
}

// ScanHistory fetches the most recent scans, newest first.
func (c *Client) ScanHistory(ctx context.Context, limit int) ([]metrics.ScanRecord, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	var history scanHistoryResponse
	path := fmt.Sprintf("/scans/history?limit=%d", limit)
	if err := c.do(ctx, http.MethodGet, path, nil, &history); err != nil {
		return nil, err
	}

	records := make([]metrics.ScanRecord, 0, len(history.Scans))
	for i := range history.Scans {
		records = append(records, history.Scans[i].toRecord())
	}
	return metrics.Dedupe(records), nil
}

// ResetScans clears the server-side scan history for the current user.
func (c *Client) ResetScans(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/scans/reset", nil, nil)
}

// DailyAnalysis returns aggregated same-day metrics and the scan count.
func (c *Client) DailyAnalysis(ctx context.Context) (*DailyAnalysis, error) {
	var analysis DailyAnalysis
	if err := c.do(ctx, http.MethodGet, "/analysis/daily", nil, &analysis); err != nil {
		return nil, err
	}
	return &analysis, nil
}

// WeeklyReport returns the weekly aggregate report, or nil when the report
// is still locked server-side.
func (c *Client) WeeklyReport(ctx context.Context) (*plan.Report, error) {
	var resp weeklyAnalysisResponse
	if err := c.do(ctx, http.MethodGet, "/analysis/weekly", nil, &resp); err != nil {
		return nil, err
	}
	if resp.Locked {
		return nil, nil
	}
	return &plan.Report{
		AverageScore:     resp.AverageScore,
		ConsistencyScore: resp.ConsistencyScore,
		Stats:            statsFromMetricMap(resp.Metrics),
		StrongestFeature: resp.StrongestFeature,
		WeakestFeature:   resp.WeakestFeature,
	}, nil
}

// TodayRoutine returns the daily routine, or nil when locked.
func (c *Client) TodayRoutine(ctx context.Context) ([]plan.Exercise, error) {
	var resp todayPlanResponse
	if err := c.do(ctx, http.MethodGet, "/plans/today", nil, &resp); err != nil {
		return nil, err
	}
	if resp.Locked {
		return nil, nil
	}
	return toExercises(resp.Routine, "daily"), nil
}

// CurrentWeeklyPlan returns the current weekly plan without its report, or
// nil when locked or not yet generated.
func (c *Client) CurrentWeeklyPlan(ctx context.Context) (*plan.WeeklyPlan, error) {
	return c.weeklyPlan(ctx, http.MethodGet, "/plans/weekly/current")
}

// GenerateWeeklyPlan requests generation of a fresh weekly plan.
func (c *Client) GenerateWeeklyPlan(ctx context.Context) (*plan.WeeklyPlan, error) {
	return c.weeklyPlan(ctx, http.MethodPost, "/plans/weekly/generate")
}

func (c *Client) weeklyPlan(ctx context.Context, method, path string) (*plan.WeeklyPlan, error) {
	var resp weeklyPlanResponse
	if err := c.do(ctx, method, path, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Locked {
		return nil, nil
	}
	return &plan.WeeklyPlan{
		GeneratedAt: resp.GeneratedAt,
		Exercises:   toExercises(resp.Routine, "weekly"),
		FocusAreas:  resp.FocusAreas,
	}, nil
}

// Profile fetches the profile row for the current user. The second return
// value is false when the backend has no profile yet.
func (c *Client) Profile(ctx context.Context) (profile.UserProfile, bool, error) {
	var row profileRow
	err := c.do(ctx, http.MethodGet, "/profile/", nil, &row)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return profile.UserProfile{}, false, nil
		}
		return profile.UserProfile{}, false, err
	}
	p := row.toProfile()
	return p, p.Complete(), nil
}

// UpsertProfile writes the profile row for the current user.
func (c *Client) UpsertProfile(ctx context.Context, p profile.UserProfile) error {
	return c.do(ctx, http.MethodPost, "/profile/", profileUpsert{
		Name:      p.Name,
		Age:       p.Age,
		Gender:    string(p.Gender),
		HeightCm:  p.HeightCm,
		WeightKg:  p.WeightKg,
		AvatarURL: p.AvatarURL,
	}, nil)
}

// ResetProfile requests a full server-side data reset.
func (c *Client) ResetProfile(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/profile/reset", nil, nil)
}

// toExercises maps routine items into Exercise records with synthetic local
// ids, since the wire shape carries none.
func toExercises(items []routineItem, prefix string) []plan.Exercise {
	exercises := make([]plan.Exercise, 0, len(items))
	for i, item := range items {
		exercises = append(exercises, plan.Exercise{
			ID:          fmt.Sprintf("%s_%d", prefix, i),
			Title:       item.Title,
			Description: item.Description,
			Duration:    item.Duration,
		})
	}
	return exercises
}

// do executes a JSON request against the backend and decodes the response
// into out when non-nil.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if path != "/auth/signup" {
		c.authorize(req)
	}

	respBody, err := c.execute(req)
	if err != nil {
		return err
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}

// execute runs the request and returns the body of a 2xx response, mapping
// everything else onto *APIError.
func (c *Client) execute(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &APIError{Message: "failed to reach backend: " + err.Error()}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, decodeError(resp.StatusCode, respBody)
	}
	return respBody, nil
}

// authorize attaches the current bearer credential when a session resolves.
// Without one the call proceeds unauthenticated.
func (c *Client) authorize(req *http.Request) {
	if sess, ok := c.sessions.Current(); ok && sess.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+sess.AccessToken)
	}
}

// decodeError builds an APIError from an error response body, preferring the
// conventional detail field and falling back to the status line.
func decodeError(statusCode int, body []byte) *APIError {
	var wire struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &wire); err == nil && wire.Detail != "" {
		return &APIError{StatusCode: statusCode, Message: wire.Detail}
	}
	return &APIError{
		StatusCode: statusCode,
		Message:    fmt.Sprintf("%d %s", statusCode, http.StatusText(statusCode)),
	}
}
