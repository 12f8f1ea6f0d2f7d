// Package plan provides routine and weekly-plan domain types together with
// the unlock gates that control their availability.
package plan

import (
	"time"

	"github.com/lumiscan/lumiscan/internal/metrics"
)

// Unlock thresholds derived from usage counters.
const (
	// DailyUnlockScans is the number of same-day scans required before the
	// daily routine becomes available.
	DailyUnlockScans = 3

	// WeeklyUnlockDays is the number of distinct active days required for
	// the weekly plan.
	WeeklyUnlockDays = 5

	// WeeklyUnlockScans is the total scan count required for the weekly plan.
	WeeklyUnlockScans = 15
)

// Exercise is a single routine item. Completed is device-local state layered
// on top of the server-provided routine; the server carries no completion.
type Exercise struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Duration    string `json:"duration"`
	Completed   bool   `json:"completed"`
}

// Report is the aggregate attached to an unlocked weekly plan.
type Report struct {
	AverageScore     float64             `json:"averageScore"`
	ConsistencyScore float64             `json:"consistencyScore"` // 0..1
	Stats            metrics.FacialStats `json:"stats"`
	StrongestFeature string              `json:"strongestFeature"`
	WeakestFeature   string              `json:"weakestFeature"`
}

// WeeklyPlan exists only after unlock criteria are met and generation was
// requested; absence means locked or not yet generated.
type WeeklyPlan struct {
	GeneratedAt time.Time  `json:"generatedAt"`
	Exercises   []Exercise `json:"exercises"`
	FocusAreas  []string   `json:"focusAreas"`
	Report      *Report    `json:"report,omitempty"`
}

// DailyUnlocked reports whether the daily routine gate is open for the
// given effective same-day scan count.
func DailyUnlocked(todayCount int) bool {
	return todayCount >= DailyUnlockScans
}

// WeeklyUnlocked reports whether the weekly plan gate is open.
func WeeklyUnlocked(daysActive, totalScans int) bool {
	return daysActive >= WeeklyUnlockDays && totalScans >= WeeklyUnlockScans
}

// EffectiveDailyCount is the single gating rule for daily usage: the larger
// of the persisted counter and the observed same-day scan list length. The
// visible count never regresses below what the scan list shows.
func EffectiveDailyCount(persisted, observed int) int {
	if observed > persisted {
		return observed
	}
	return persisted
}
