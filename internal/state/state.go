// Package state holds the authoritative in-process snapshot of the app's
// domain data and the mutation actions the UI dispatches against it.
// Mutations are optimistic: the snapshot changes synchronously, persistence
// runs in the background, and failures are logged rather than rolled back.
// Single-user device-local data makes last-writer-wins acceptable here.
package state

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lumiscan/lumiscan/internal/metrics"
	"github.com/lumiscan/lumiscan/internal/plan"
	"github.com/lumiscan/lumiscan/internal/profile"
	"github.com/lumiscan/lumiscan/internal/storage"
)

// Snapshot is a copy of the in-memory state handed to the UI layer.
type Snapshot struct {
	Profile       profile.UserProfile
	HasProfile    bool
	Scans         []metrics.ScanRecord
	DailyCount    int
	Lifetime      metrics.LifetimeStats
	WeeklyPlan    *plan.WeeklyPlan
	DailyRoutine  []plan.Exercise
	CompletedTips []string
	Initialized   bool
}

// Config holds configuration for the data context.
type Config struct {
	// Storage is the synchronization core (required).
	Storage *storage.Service

	// Logger for background persistence outcomes.
	Logger zerolog.Logger

	// Now is the clock, injectable for day-boundary tests.
	Now func() time.Time
}

// Context is the in-memory cache and derived-state layer.
type Context struct {
	storage *storage.Service
	logger  zerolog.Logger
	now     func() time.Time

	mu            sync.RWMutex
	prof          profile.UserProfile
	hasProfile    bool
	scans         []metrics.ScanRecord
	dailyCount    int
	lifetime      metrics.LifetimeStats
	weeklyPlan    *plan.WeeklyPlan
	dailyRoutine  []plan.Exercise
	completedTips map[string]struct{}
	initialized   bool

	// background tracks in-flight persistence so tests can wait for it.
	background sync.WaitGroup
}

// New creates a data context over the given storage service.
func New(cfg Config) *Context {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Context{
		storage:       cfg.Storage,
		logger:        cfg.Logger,
		now:           now,
		completedTips: make(map[string]struct{}),
	}
}

// Start hydrates all domain slices for the current session. The previous
// user's state is discarded first, so sign-out followed by sign-in as a
// different user never shows stale data. The initialized flag is set after
// all loaders settle, success or failure; a failed slice stays at its zero
// value rather than blocking the rest.
func (c *Context) Start(ctx context.Context) {
	c.mu.Lock()
	c.prof = profile.UserProfile{}
	c.hasProfile = false
	c.scans = nil
	c.dailyCount = 0
	c.lifetime = metrics.LifetimeStats{}
	c.weeklyPlan = nil
	c.dailyRoutine = nil
	c.completedTips = make(map[string]struct{})
	c.initialized = false
	c.mu.Unlock()

	c.loadAll(ctx)

	c.mu.Lock()
	c.initialized = true
	c.mu.Unlock()
}

// Refresh re-runs all loaders without touching the initialized flag. Used
// for silent background refresh (pull-to-refresh).
func (c *Context) Refresh(ctx context.Context) {
	c.loadAll(ctx)
}

func (c *Context) loadAll(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(4)
	go func() { defer wg.Done(); c.loadProfile(ctx) }()
	go func() { defer wg.Done(); c.loadScans(ctx) }()
	go func() { defer wg.Done(); c.loadPlans(ctx) }()
	go func() { defer wg.Done(); c.loadTips(ctx) }()
	wg.Wait()

	c.reconcileDailyCount()
	c.maybeUnlockRoutine(ctx)
}

func (c *Context) loadProfile(ctx context.Context) {
	p, ok := c.storage.Profile(ctx)
	c.mu.Lock()
	c.prof = p
	c.hasProfile = ok
	c.mu.Unlock()
}

func (c *Context) loadScans(ctx context.Context) {
	scans := c.storage.Scans(ctx)
	count := c.storage.DailyUsageCount(ctx)
	lifetime := c.storage.LifetimeStats(ctx)

	c.mu.Lock()
	c.scans = metrics.Dedupe(scans)
	c.dailyCount = count
	c.lifetime = lifetime
	c.mu.Unlock()
}

func (c *Context) loadPlans(ctx context.Context) {
	weekly := c.storage.WeeklyPlan(ctx)
	routine := c.storage.MorningRoutine(ctx)

	c.mu.Lock()
	c.weeklyPlan = weekly
	c.dailyRoutine = routine
	c.mu.Unlock()
}

func (c *Context) loadTips(ctx context.Context) {
	tips := c.storage.CompletedTips(ctx)
	c.mu.Lock()
	c.completedTips = make(map[string]struct{}, len(tips))
	for _, id := range tips {
		c.completedTips[id] = struct{}{}
	}
	c.mu.Unlock()
}

// reconcileDailyCount raises the in-memory counter to match the observed
// same-day scan list. Monotonic: the visible count never regresses below
// what the list shows, and nothing lowers it here.
func (c *Context) reconcileDailyCount() {
	c.mu.Lock()
	defer c.mu.Unlock()
	observed := len(metrics.FilterDay(c.scans, c.now()))
	if observed > c.dailyCount {
		c.dailyCount = observed
	}
}

// maybeUnlockRoutine re-fetches the daily routine when the effective count
// has crossed the unlock threshold while the cached routine is still empty.
// An unlock must surface without an explicit user-triggered refresh.
func (c *Context) maybeUnlockRoutine(ctx context.Context) {
	c.mu.RLock()
	empty := len(c.dailyRoutine) == 0
	count := plan.EffectiveDailyCount(c.dailyCount, len(metrics.FilterDay(c.scans, c.now())))
	c.mu.RUnlock()

	if !empty || !plan.DailyUnlocked(count) {
		return
	}

	routine := c.storage.MorningRoutine(ctx)
	if len(routine) == 0 {
		return
	}
	c.mu.Lock()
	c.dailyRoutine = routine
	c.mu.Unlock()
}

// Snapshot returns a copy of the current state.
func (c *Context) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	tips := make([]string, 0, len(c.completedTips))
	for id := range c.completedTips {
		tips = append(tips, id)
	}

	return Snapshot{
		Profile:       c.prof,
		HasProfile:    c.hasProfile,
		Scans:         append([]metrics.ScanRecord(nil), c.scans...),
		DailyCount:    c.dailyCount,
		Lifetime:      c.lifetime,
		WeeklyPlan:    c.weeklyPlan,
		DailyRoutine:  append([]plan.Exercise(nil), c.dailyRoutine...),
		CompletedTips: tips,
		Initialized:   c.initialized,
	}
}

// LatestStats returns the stats of the newest scan, or the all-zero
// placeholder when no scan exists. Never absent.
func (c *Context) LatestStats() metrics.FacialStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.scans) == 0 {
		return metrics.ZeroStats()
	}
	return c.scans[0].Stats
}

// TodayScans returns the scans captured today, deduplicated by id.
func (c *Context) TodayScans() []metrics.ScanRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return metrics.FilterDay(c.scans, c.now())
}

// EffectiveDailyCount is the gating value: the larger of the persisted
// counter and the observed today-list length.
func (c *Context) EffectiveDailyCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return plan.EffectiveDailyCount(c.dailyCount, len(metrics.FilterDay(c.scans, c.now())))
}

// DailyPlanUnlocked reports whether the daily routine gate is open.
func (c *Context) DailyPlanUnlocked() bool {
	return plan.DailyUnlocked(c.EffectiveDailyCount())
}

// WeeklyPlanUnlocked reports whether the weekly plan gate is open.
func (c *Context) WeeklyPlanUnlocked() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return plan.WeeklyUnlocked(c.lifetime.DaysActive, c.lifetime.TotalScans)
}

// Initialized reports whether the first hydration has settled.
func (c *Context) Initialized() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.initialized
}

// AddScan prepends the record to the in-memory list (idempotent by id),
// then persists in the background: the cached list, the daily counter, and
// lifetime stats. The snapshot's counter and lifetime values are refreshed
// from the persisted results so the UI shows the authoritative numbers, not
// a local guess.
func (c *Context) AddScan(ctx context.Context, rec metrics.ScanRecord) {
	c.mu.Lock()
	c.scans = metrics.Prepend(c.scans, rec)
	c.mu.Unlock()

	c.background.Add(1)
	go func() {
		defer c.background.Done()

		if err := c.storage.AddScan(ctx, rec); err != nil {
			c.logger.Warn().Err(err).Msg("failed to persist scan record")
		}

		count, err := c.storage.IncrementDailyUsage(ctx)
		if err != nil {
			c.logger.Warn().Err(err).Msg("failed to increment daily usage")
		} else {
			c.mu.Lock()
			if count > c.dailyCount {
				c.dailyCount = count
			}
			c.mu.Unlock()
		}

		lifetime, err := c.storage.RecordScanForLifetime(ctx, rec.Date)
		if err != nil {
			c.logger.Warn().Err(err).Msg("failed to update lifetime stats")
		} else {
			c.mu.Lock()
			c.lifetime = lifetime
			c.mu.Unlock()
		}

		c.maybeUnlockRoutine(ctx)
	}()
}

// UpdateProfile replaces the in-memory profile immediately and persists in
// the background.
func (c *Context) UpdateProfile(ctx context.Context, p profile.UserProfile) {
	c.mu.Lock()
	c.prof = p
	c.hasProfile = p.Complete()
	c.mu.Unlock()

	c.background.Add(1)
	go func() {
		defer c.background.Done()
		if err := c.storage.SaveProfile(ctx, p); err != nil {
			c.logger.Warn().Err(err).Msg("failed to persist profile")
		}
	}()
}

// ToggleTip flips membership of tipID in the completed set immediately. The
// background save reads the set current at save time, so however late it
// lands it writes the last applied in-memory state.
func (c *Context) ToggleTip(ctx context.Context, tipID string) {
	c.mu.Lock()
	if _, ok := c.completedTips[tipID]; ok {
		delete(c.completedTips, tipID)
	} else {
		c.completedTips[tipID] = struct{}{}
	}
	c.mu.Unlock()

	c.background.Add(1)
	go func() {
		defer c.background.Done()

		c.mu.RLock()
		ids := make([]string, 0, len(c.completedTips))
		for id := range c.completedTips {
			ids = append(ids, id)
		}
		c.mu.RUnlock()

		if err := c.storage.SaveCompletedTips(ctx, ids); err != nil {
			c.logger.Warn().Err(err).Msg("failed to persist completed tips")
		}
	}()
}

// Wait blocks until all in-flight background persistence settles. Intended
// for tests and orderly shutdown.
func (c *Context) Wait() {
	c.background.Wait()
}
