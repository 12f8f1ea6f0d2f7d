// Package storage implements the synchronization core: a consistent domain
// view of profile, scans, plans, and tips sourced from the local store with
// remote authority, tolerating backend failures without blocking local use.
//
// Every read path here is fail-soft. A missing local key falls through to
// the backend; a backend failure degrades to cached or absent data. Nothing
// escapes toward the rendering layer as a crash.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lumiscan/lumiscan/internal/metrics"
	"github.com/lumiscan/lumiscan/internal/outbox"
	"github.com/lumiscan/lumiscan/internal/plan"
	"github.com/lumiscan/lumiscan/internal/profile"
	"github.com/lumiscan/lumiscan/internal/session"
	"github.com/lumiscan/lumiscan/internal/store"
)

// ErrSessionRequired is returned by writes attempted with nobody signed in.
// Reads never return it; they report absence instead.
var ErrSessionRequired = errors.New("no active session")

// SyncProfileTimeout bounds the best-effort profile push after sign-in. It
// is the only remote call in the core with an explicit deadline of its own.
const SyncProfileTimeout = 5 * time.Second

// Backend is the remote surface the service consumes. *backend.Client
// satisfies it.
type Backend interface {
	Profile(ctx context.Context) (profile.UserProfile, bool, error)
	UpsertProfile(ctx context.Context, p profile.UserProfile) error
	SyncProfile(ctx context.Context, name, avatarURL string) error
	ScanHistory(ctx context.Context, limit int) ([]metrics.ScanRecord, error)
	ResetScans(ctx context.Context) error
	ResetProfile(ctx context.Context) error
	WeeklyReport(ctx context.Context) (*plan.Report, error)
	CurrentWeeklyPlan(ctx context.Context) (*plan.WeeklyPlan, error)
	TodayRoutine(ctx context.Context) ([]plan.Exercise, error)
}

// Config holds configuration for the storage service.
type Config struct {
	// KV is the on-device store (required).
	KV store.KV

	// Backend is the remote client (required).
	Backend Backend

	// Sessions resolves the current user (required).
	Sessions session.Provider

	// Outbox queues deferred remote mutations (optional). Without it,
	// remote sync failures are logged and dropped.
	Outbox *outbox.Queue

	// Logger for service operations.
	Logger zerolog.Logger

	// Now is the clock, injectable for day-boundary tests. Defaults to
	// time.Now.
	Now func() time.Time
}

// Service mediates between local persistence and the backend client.
type Service struct {
	kv       store.KV
	backend  Backend
	sessions session.Provider
	outbox   *outbox.Queue
	logger   zerolog.Logger
	now      func() time.Time
}

// NewService creates a new storage service.
func NewService(cfg Config) *Service {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		kv:       cfg.KV,
		backend:  cfg.Backend,
		sessions: cfg.Sessions,
		outbox:   cfg.Outbox,
		logger:   cfg.Logger,
		now:      now,
	}
}

// currentUser resolves the signed-in user id, or "" when nobody is.
func (s *Service) currentUser() string {
	sess, ok := s.sessions.Current()
	if !ok {
		return ""
	}
	return sess.UserID
}

// Profile returns the user's profile, local cache first, backend fallback
// with write-back. Absence means "profile incomplete", never an error.
func (s *Service) Profile(ctx context.Context) (profile.UserProfile, bool) {
	uid := s.currentUser()
	if uid == "" {
		return profile.UserProfile{}, false
	}

	var cached profile.UserProfile
	if s.readJSON(ctx, userKey(uid, slotProfile), &cached) && cached.Complete() {
		return cached, true
	}

	remote, ok, err := s.backend.Profile(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("profile fetch failed, treating as incomplete")
		return profile.UserProfile{}, false
	}
	if !ok {
		return profile.UserProfile{}, false
	}

	s.writeJSON(ctx, userKey(uid, slotProfile), remote)
	return remote, true
}

// SaveProfile writes the profile locally (synchronous, authoritative for
// responsiveness) and queues a best-effort remote upsert. Only the local
// write can fail the call.
func (s *Service) SaveProfile(ctx context.Context, p profile.UserProfile) error {
	uid := s.currentUser()
	if uid == "" {
		return ErrSessionRequired
	}

	encoded, err := json.Marshal(p)
	if err != nil {
		return err
	}
	if err := s.kv.Set(ctx, userKey(uid, slotProfile), string(encoded)); err != nil {
		return err
	}

	s.enqueue(ctx, uid, outbox.KindProfileUpsert, p)
	return nil
}

// SyncProfileOnLogin pushes the managed-auth display name and avatar to the
// backend after sign-in, bounded by SyncProfileTimeout. Failure queues the
// push for a later drain.
func (s *Service) SyncProfileOnLogin(ctx context.Context, name, avatarURL string) {
	uid := s.currentUser()
	if uid == "" {
		return
	}

	syncCtx, cancel := context.WithTimeout(ctx, SyncProfileTimeout)
	defer cancel()

	if err := s.backend.SyncProfile(syncCtx, name, avatarURL); err != nil {
		s.logger.Warn().Err(err).Msg("profile sync failed, queueing for retry")
		s.enqueue(ctx, uid, outbox.KindProfileSync, map[string]string{
			"name":       name,
			"avatar_url": avatarURL,
		})
	}
}

// Scans returns the scan history, newest first. The backend is the source
// of truth; the local copy is a read-through cache served when the backend
// is unreachable. Never fails: degraded result is an empty list.
func (s *Service) Scans(ctx context.Context) []metrics.ScanRecord {
	uid := s.currentUser()
	if uid == "" {
		return nil
	}

	records, err := s.backend.ScanHistory(ctx, 0)
	if err != nil {
		s.logger.Warn().Err(err).Msg("scan history fetch failed, serving cached list")
		var cached []metrics.ScanRecord
		if s.readJSON(ctx, userKey(uid, slotScans), &cached) {
			return metrics.Dedupe(cached)
		}
		return nil
	}

	records = metrics.Dedupe(records)
	s.writeJSON(ctx, userKey(uid, slotScans), records)
	return records
}

// AddScan inserts a freshly scored record at the front of the cached list.
// Idempotent by id: re-adding an existing record changes nothing. The record
// already exists server-side by the time this is called, so there is no
// remote write here.
func (s *Service) AddScan(ctx context.Context, rec metrics.ScanRecord) error {
	uid := s.currentUser()
	if uid == "" {
		return ErrSessionRequired
	}

	var cached []metrics.ScanRecord
	s.readJSON(ctx, userKey(uid, slotScans), &cached)
	updated := metrics.Prepend(cached, rec)
	if len(updated) == len(cached) {
		return nil
	}

	encoded, err := json.Marshal(updated)
	if err != nil {
		return err
	}
	return s.kv.Set(ctx, userKey(uid, slotScans), string(encoded))
}

// ClearHistoryOnly removes tip and challenge completion state and the local
// scan cache, then queues a remote history reset. The profile, usage
// counters, and lifetime stats survive.
func (s *Service) ClearHistoryOnly(ctx context.Context) error {
	uid := s.currentUser()
	if uid == "" {
		return ErrSessionRequired
	}

	if err := s.kv.Delete(ctx,
		userKey(uid, slotTips),
		userKey(uid, slotChallenges),
		userKey(uid, slotScans),
	); err != nil {
		return err
	}

	s.enqueue(ctx, uid, outbox.KindHistoryReset, nil)
	return nil
}

// ClearAll removes every per-user local key and queues a full remote reset.
// Pending outbox writes for the user are dropped first so a wiped account
// does not resurrect them.
func (s *Service) ClearAll(ctx context.Context) error {
	uid := s.currentUser()
	if uid == "" {
		return ErrSessionRequired
	}

	keys, err := s.kv.Keys(ctx, userPrefix(uid))
	if err != nil {
		return err
	}
	if len(keys) > 0 {
		if err := s.kv.Delete(ctx, keys...); err != nil {
			return err
		}
	}

	if s.outbox != nil {
		if err := s.outbox.DropUser(ctx, uid); err != nil {
			s.logger.Warn().Err(err).Msg("failed to drop pending outbox entries")
		}
	}

	s.enqueue(ctx, uid, outbox.KindFullReset, nil)
	return nil
}

// DailyUsageCount returns today's scan count. A stored date that is not
// today means the counter has lapsed; the reset is lazy, no write happens.
func (s *Service) DailyUsageCount(ctx context.Context) int {
	uid := s.currentUser()
	if uid == "" {
		return 0
	}
	return s.readDailyUsage(ctx, uid).Count
}

// IncrementDailyUsage applies the lazy-reset rule, adds one, and persists
// the counter stamped with today and the scan timestamp. Returns the new
// count.
func (s *Service) IncrementDailyUsage(ctx context.Context) (int, error) {
	uid := s.currentUser()
	if uid == "" {
		return 0, ErrSessionRequired
	}

	usage := s.readDailyUsage(ctx, uid)
	now := s.now()
	usage = metrics.DailyUsage{
		Date:         metrics.DayString(now),
		Count:        usage.Count + 1,
		LastScanUnix: now.UnixMilli(),
	}

	encoded, err := json.Marshal(usage)
	if err != nil {
		return 0, err
	}
	if err := s.kv.Set(ctx, userKey(uid, slotDailyUsage), string(encoded)); err != nil {
		return 0, err
	}
	return usage.Count, nil
}

func (s *Service) readDailyUsage(ctx context.Context, uid string) metrics.DailyUsage {
	var usage metrics.DailyUsage
	if !s.readJSON(ctx, userKey(uid, slotDailyUsage), &usage) {
		return metrics.DailyUsage{}
	}
	if usage.Date != metrics.DayString(s.now()) {
		return metrics.DailyUsage{}
	}
	return usage
}

// LifetimeStats returns the install-lifetime aggregates.
func (s *Service) LifetimeStats(ctx context.Context) metrics.LifetimeStats {
	uid := s.currentUser()
	if uid == "" {
		return metrics.LifetimeStats{}
	}
	var stats metrics.LifetimeStats
	s.readJSON(ctx, userKey(uid, slotLifetime), &stats)
	return stats
}

// RecordScanForLifetime bumps totalScans and, at most once per calendar
// day, daysActive. Call exactly once per scan; calling it again for the
// same scan double-counts totalScans.
func (s *Service) RecordScanForLifetime(ctx context.Context, scanDate time.Time) (metrics.LifetimeStats, error) {
	uid := s.currentUser()
	if uid == "" {
		return metrics.LifetimeStats{}, ErrSessionRequired
	}

	var stats metrics.LifetimeStats
	s.readJSON(ctx, userKey(uid, slotLifetime), &stats)

	day := metrics.DayString(scanDate)
	stats.TotalScans++
	if stats.LastScanDate != day {
		stats.DaysActive++
	}
	stats.LastScanDate = day

	encoded, err := json.Marshal(stats)
	if err != nil {
		return stats, err
	}
	if err := s.kv.Set(ctx, userKey(uid, slotLifetime), string(encoded)); err != nil {
		return stats, err
	}
	return stats, nil
}

// WeeklyPlan fetches the plan and its report concurrently. A locked or
// unreachable plan yields nil, which callers read as "locked or not yet
// generated". The report attaches only when it is itself unlocked.
func (s *Service) WeeklyPlan(ctx context.Context) *plan.WeeklyPlan {
	if s.currentUser() == "" {
		return nil
	}

	var (
		wg      sync.WaitGroup
		current *plan.WeeklyPlan
		report  *plan.Report
		planErr error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		current, planErr = s.backend.CurrentWeeklyPlan(ctx)
	}()
	go func() {
		defer wg.Done()
		var err error
		report, err = s.backend.WeeklyReport(ctx)
		if err != nil {
			s.logger.Warn().Err(err).Msg("weekly report fetch failed")
			report = nil
		}
	}()
	wg.Wait()

	if planErr != nil {
		s.logger.Warn().Err(planErr).Msg("weekly plan fetch failed")
		return nil
	}
	if current == nil {
		return nil
	}

	current.Report = report
	return current
}

// MorningRoutine returns the daily routine, or an empty slice when locked,
// absent, or unreachable. A routine fetch failure must never block the
// dashboard.
func (s *Service) MorningRoutine(ctx context.Context) []plan.Exercise {
	if s.currentUser() == "" {
		return nil
	}

	exercises, err := s.backend.TodayRoutine(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("daily routine fetch failed")
		return nil
	}
	return exercises
}

// completedSet is the day-stamped persisted shape for tips and challenges.
type completedSet struct {
	Date string   `json:"date"`
	IDs  []string `json:"ids"`
}

// CompletedTips returns today's completed tip ids. A stored day other than
// today reads as empty.
func (s *Service) CompletedTips(ctx context.Context) []string {
	return s.readCompleted(ctx, slotTips)
}

// SaveCompletedTips persists today's completed tip ids.
func (s *Service) SaveCompletedTips(ctx context.Context, ids []string) error {
	return s.saveCompleted(ctx, slotTips, ids)
}

// CompletedChallenges returns today's completed challenge ids.
func (s *Service) CompletedChallenges(ctx context.Context) []string {
	return s.readCompleted(ctx, slotChallenges)
}

// SaveCompletedChallenges persists today's completed challenge ids.
func (s *Service) SaveCompletedChallenges(ctx context.Context, ids []string) error {
	return s.saveCompleted(ctx, slotChallenges, ids)
}

func (s *Service) readCompleted(ctx context.Context, slot string) []string {
	uid := s.currentUser()
	if uid == "" {
		return nil
	}
	var set completedSet
	if !s.readJSON(ctx, userKey(uid, slot), &set) {
		return nil
	}
	if set.Date != metrics.DayString(s.now()) {
		return nil
	}
	return set.IDs
}

func (s *Service) saveCompleted(ctx context.Context, slot string, ids []string) error {
	uid := s.currentUser()
	if uid == "" {
		return ErrSessionRequired
	}
	encoded, err := json.Marshal(completedSet{
		Date: metrics.DayString(s.now()),
		IDs:  ids,
	})
	if err != nil {
		return err
	}
	return s.kv.Set(ctx, userKey(uid, slot), string(encoded))
}

// SyncOutbox drains pending remote mutations against the backend.
func (s *Service) SyncOutbox(ctx context.Context) error {
	if s.outbox == nil {
		return nil
	}
	return s.outbox.Drain(ctx, s.dispatch)
}

// dispatch executes one queued mutation.
func (s *Service) dispatch(ctx context.Context, entry outbox.Entry) error {
	switch entry.Kind {
	case outbox.KindProfileUpsert:
		var p profile.UserProfile
		if err := json.Unmarshal(entry.Payload, &p); err != nil {
			return err
		}
		return s.backend.UpsertProfile(ctx, p)

	case outbox.KindProfileSync:
		var payload map[string]string
		if err := json.Unmarshal(entry.Payload, &payload); err != nil {
			return err
		}
		return s.backend.SyncProfile(ctx, payload["name"], payload["avatar_url"])

	case outbox.KindHistoryReset:
		return s.backend.ResetScans(ctx)

	case outbox.KindFullReset:
		if err := s.backend.ResetScans(ctx); err != nil {
			return err
		}
		return s.backend.ResetProfile(ctx)

	default:
		s.logger.Warn().Str("kind", string(entry.Kind)).Msg("unknown outbox kind, dropping")
		return nil
	}
}

// enqueue records a deferred remote mutation, or falls back to an immediate
// best-effort call when no outbox is configured. Never fails the caller.
func (s *Service) enqueue(ctx context.Context, uid string, kind outbox.Kind, payload any) {
	if s.outbox == nil {
		s.dispatchDirect(ctx, uid, kind, payload)
		return
	}
	if err := s.outbox.Enqueue(ctx, uid, kind, payload); err != nil {
		s.logger.Error().Err(err).Str("kind", string(kind)).Msg("failed to enqueue mutation")
	}
}

// dispatchDirect performs the mutation inline, logging and swallowing
// failure, for configurations without a durable queue.
func (s *Service) dispatchDirect(ctx context.Context, uid string, kind outbox.Kind, payload any) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to marshal mutation payload")
		return
	}
	if err := s.dispatch(ctx, outbox.Entry{UserID: uid, Kind: kind, Payload: encoded}); err != nil {
		s.logger.Warn().Err(err).Str("kind", string(kind)).Msg("remote sync failed")
	}
}

// readJSON decodes the value at key into out, reporting presence. Store
// errors read as absence; they are logged, not surfaced.
func (s *Service) readJSON(ctx context.Context, key string, out any) bool {
	value, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		s.logger.Error().Err(err).Str("key", key).Msg("local read failed")
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal([]byte(value), out); err != nil {
		s.logger.Error().Err(err).Str("key", key).Msg("corrupt local value, ignoring")
		return false
	}
	return true
}

// writeJSON encodes v under key, logging and swallowing failure. Used only
// for cache write-backs where losing the write costs a refetch, not data.
func (s *Service) writeJSON(ctx context.Context, key string, v any) {
	encoded, err := json.Marshal(v)
	if err != nil {
		s.logger.Error().Err(err).Str("key", key).Msg("failed to encode cache value")
		return
	}
	if err := s.kv.Set(ctx, key, string(encoded)); err != nil {
		s.logger.Error().Err(err).Str("key", key).Msg("cache write-back failed")
	}
}
