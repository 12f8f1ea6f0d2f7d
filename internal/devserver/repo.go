package devserver

import (
	"sort"
	"sync"
	"time"
)

// account is a dev-mode user record.
type account struct {
	ID       string
	Email    string
	Password string
}

// profileRecord mirrors the backend profile row, canonical column names
// only.
type profileRecord struct {
	Name      string   `json:"name"`
	Age       int      `json:"age"`
	Gender    string   `json:"gender"`
	HeightCm  *float64 `json:"height_cm,omitempty"`
	WeightKg  *float64 `json:"weight_kg,omitempty"`
	AvatarURL string   `json:"avatar_url,omitempty"`
}

// scanRecord is a stored server-side scan.
type scanRecord struct {
	ID      string             `json:"id"`
	Date    time.Time          `json:"date"`
	Metrics map[string]float64 `json:"metrics"`
	Overall int                `json:"overall"`
}

// weeklyPlanRecord is a generated weekly routine.
type weeklyPlanRecord struct {
	GeneratedAt time.Time
	FocusAreas  []string
	Routine     []routineItem
}

type routineItem struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Duration    string `json:"duration"`
}

// Repository is the in-memory backing store for the dev server. It exists
// for local development and integration tests only.
type Repository struct {
	mu          sync.RWMutex
	byEmail     map[string]*account
	byID        map[string]*account
	profiles    map[string]*profileRecord
	scans       map[string][]scanRecord
	weeklyPlans map[string]*weeklyPlanRecord
}

// NewRepository creates an empty repository.
func NewRepository() *Repository {
	return &Repository{
		byEmail:     make(map[string]*account),
		byID:        make(map[string]*account),
		profiles:    make(map[string]*profileRecord),
		scans:       make(map[string][]scanRecord),
		weeklyPlans: make(map[string]*weeklyPlanRecord),
	}
}

// CreateAccount registers an account, failing when the email is taken.
func (r *Repository) CreateAccount(a *account) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byEmail[a.Email]; exists {
		return false
	}
	r.byEmail[a.Email] = a
	r.byID[a.ID] = a
	return true
}

// Authenticate resolves an account by email and password.
func (r *Repository) Authenticate(email, password string) (*account, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byEmail[email]
	if !ok || a.Password != password {
		return nil, false
	}
	return a, true
}

// Profile returns the stored profile for a user.
func (r *Repository) Profile(userID string) (*profileRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.profiles[userID]
	return p, ok
}

// SetProfile upserts the profile for a user.
func (r *Repository) SetProfile(userID string, p *profileRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[userID] = p
}

// DeleteProfile removes the profile for a user.
func (r *Repository) DeleteProfile(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.profiles, userID)
}

// AddScan stores a scan for a user.
func (r *Repository) AddScan(userID string, s scanRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scans[userID] = append(r.scans[userID], s)
}

// Scans returns up to limit scans for a user, newest first.
func (r *Repository) Scans(userID string, limit int) []scanRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	scans := append([]scanRecord(nil), r.scans[userID]...)
	sort.Slice(scans, func(i, j int) bool { return scans[i].Date.After(scans[j].Date) })
	if limit > 0 && len(scans) > limit {
		scans = scans[:limit]
	}
	return scans
}

// ResetScans deletes all scans for a user.
func (r *Repository) ResetScans(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.scans, userID)
	delete(r.weeklyPlans, userID)
}

// ScanCountToday returns the number of scans a user captured on the given
// calendar day.
func (r *Repository) ScanCountToday(userID string, day time.Time) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	dayStr := day.Format("2006-01-02")
	for _, s := range r.scans[userID] {
		if s.Date.Format("2006-01-02") == dayStr {
			count++
		}
	}
	return count
}

// UsageStats returns the total scan count and distinct active days.
func (r *Repository) UsageStats(userID string) (total, daysActive int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	days := make(map[string]struct{})
	for _, s := range r.scans[userID] {
		days[s.Date.Format("2006-01-02")] = struct{}{}
	}
	return len(r.scans[userID]), len(days)
}

// WeeklyPlan returns the generated plan for a user, if any.
func (r *Repository) WeeklyPlan(userID string) (*weeklyPlanRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.weeklyPlans[userID]
	return p, ok
}

// SetWeeklyPlan stores a generated plan for a user.
func (r *Repository) SetWeeklyPlan(userID string, p *weeklyPlanRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.weeklyPlans[userID] = p
}
