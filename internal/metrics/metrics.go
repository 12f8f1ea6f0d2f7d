// Package metrics provides the facial-metrics domain types shared across
// the sync core: per-scan score sets, scan records, and lifetime counters.
package metrics

import "time"

// FacialStats holds the bounded per-metric scores for a single scan.
// All scores are percentages in [0, 100]; Overall is derived by the backend.
type FacialStats struct {
	Symmetry    int `json:"symmetry"`
	Jawline     int `json:"jawline"`
	Proportions int `json:"proportions"`
	SkinClarity int `json:"skinClarity"`
	Masculinity int `json:"masculinity"`
	Cheekbones  int `json:"cheekbones"`
	Overall     int `json:"overall"`
}

// ZeroStats returns the all-zero placeholder used when no scan exists yet.
// Consumers render this instead of special-casing absence.
func ZeroStats() FacialStats {
	return FacialStats{}
}

// Lifestyle captures the self-reported habit inputs attached to a scan.
// The remote history endpoint does not carry these; they default to zero
// values when a record is sourced remotely.
type Lifestyle struct {
	SleepHours  float64 `json:"sleepHours"`
	WaterLiters float64 `json:"waterLiters"`
	Diet        string  `json:"diet"`
	Exercise    string  `json:"exercise"`
}

// ScanRecord is a single completed facial scan. Identity is ID
// (server-assigned); records are immutable once produced.
type ScanRecord struct {
	ID        string      `json:"id"`
	Date      time.Time   `json:"date"`
	ImageRef  string      `json:"imageRef,omitempty"`
	Stats     FacialStats `json:"stats"`
	Lifestyle Lifestyle   `json:"lifestyle"`
}

// DailyUsage is the day-scoped scan counter. The stored date not matching
// the current device-local day means the counter has implicitly reset.
type DailyUsage struct {
	Date         string `json:"date"` // device-local calendar day, YYYY-MM-DD
	Count        int    `json:"count"`
	LastScanUnix int64  `json:"lastScanTimestamp"` // epoch millis
}

// LifetimeStats aggregates usage across the install lifetime.
type LifetimeStats struct {
	TotalScans   int    `json:"totalScans"`
	DaysActive   int    `json:"daysActive"`
	LastScanDate string `json:"lastScanDate"` // device-local calendar day, YYYY-MM-DD
}

// DayString formats t as the device-local calendar day used for counter
// keys and day-boundary comparisons.
func DayString(t time.Time) string {
	return t.Local().Format("2006-01-02")
}

// SameDay reports whether two timestamps fall on the same device-local
// calendar day.
func SameDay(a, b time.Time) bool {
	return DayString(a) == DayString(b)
}

// Dedupe removes duplicate records by ID, keeping the first occurrence and
// preserving order. Merging any two record sources goes through this.
func Dedupe(records []ScanRecord) []ScanRecord {
	if len(records) < 2 {
		return records
	}
	seen := make(map[string]struct{}, len(records))
	out := records[:0]
	for _, rec := range records {
		if _, ok := seen[rec.ID]; ok {
			continue
		}
		seen[rec.ID] = struct{}{}
		out = append(out, rec)
	}
	return out
}

// Prepend inserts rec at the front of records unless a record with the same
// ID is already present, in which case records is returned unchanged.
func Prepend(records []ScanRecord, rec ScanRecord) []ScanRecord {
	for _, existing := range records {
		if existing.ID == rec.ID {
			return records
		}
	}
	out := make([]ScanRecord, 0, len(records)+1)
	out = append(out, rec)
	out = append(out, records...)
	return out
}

// FilterDay returns the records whose date falls on the given device-local
// calendar day, deduplicated by ID.
func FilterDay(records []ScanRecord, day time.Time) []ScanRecord {
	var out []ScanRecord
	for _, rec := range records {
		if SameDay(rec.Date, day) {
			out = append(out, rec)
		}
	}
	return Dedupe(out)
}
