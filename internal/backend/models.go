package backend

import (
	"time"

	"github.com/lumiscan/lumiscan/internal/metrics"
	"github.com/lumiscan/lumiscan/internal/profile"
)

// SignupRequest creates an account together with its initial profile.
type SignupRequest struct {
	Email    string   `json:"email"`
	Password string   `json:"password"`
	Name     string   `json:"name"`
	Age      int      `json:"age"`
	Gender   string   `json:"gender"`
	HeightCm *float64 `json:"height_cm,omitempty"`
	WeightKg *float64 `json:"weight_kg,omitempty"`
}

// ScanStatus is the server's view of today's scan usage.
type ScanStatus struct {
	Used       int       `json:"used"`
	Limit      int       `json:"limit"`
	ServerTime time.Time `json:"server_time"`
}

// DailyAnalysis aggregates same-day metrics.
type DailyAnalysis struct {
	Count   int                `json:"count"`
	Metrics map[string]float64 `json:"metrics"`
}

// profileRow is the backend profile shape. Height and weight historically
// appear under two column names; normalization collapses them here so dual
// naming never leaks past this adapter.
type profileRow struct {
	Name      string   `json:"name"`
	Age       int      `json:"age"`
	Gender    string   `json:"gender"`
	HeightCm  *float64 `json:"height_cm"`
	Height    *float64 `json:"height"`
	WeightKg  *float64 `json:"weight_kg"`
	Weight    *float64 `json:"weight"`
	AvatarURL string   `json:"avatar_url"`
}

func (r *profileRow) toProfile() profile.UserProfile {
	p := profile.UserProfile{
		Name:      r.Name,
		Age:       r.Age,
		Gender:    profile.Gender(r.Gender),
		AvatarURL: r.AvatarURL,
	}
	if p.Gender == "" {
		p.Gender = profile.GenderUnspecified
	}
	// Canonical column wins when both are present.
	p.HeightCm = r.HeightCm
	if p.HeightCm == nil {
		p.HeightCm = r.Height
	}
	p.WeightKg = r.WeightKg
	if p.WeightKg == nil {
		p.WeightKg = r.Weight
	}
	return p
}

// profileUpsert is the request body for POST /profile/. Only canonical
// column names are written.
type profileUpsert struct {
	Name      string   `json:"name"`
	Age       int      `json:"age"`
	Gender    string   `json:"gender"`
	HeightCm  *float64 `json:"height_cm,omitempty"`
	WeightKg  *float64 `json:"weight_kg,omitempty"`
	AvatarURL string   `json:"avatar_url,omitempty"`
}

type syncProfileRequest struct {
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// scanRow is one history entry. The history endpoint carries no lifestyle
// fields; those default to zero values on mapping.
type scanRow struct {
	ID      string             `json:"id"`
	Date    time.Time          `json:"date"`
	Metrics map[string]float64 `json:"metrics"`
	Overall int                `json:"overall"`
}

type scanHistoryResponse struct {
	Scans []scanRow `json:"scans"`
}

func (r *scanRow) toRecord() metrics.ScanRecord {
	stats := statsFromMetricMap(r.Metrics)
	stats.Overall = r.Overall
	return metrics.ScanRecord{
		ID:    r.ID,
		Date:  r.Date,
		Stats: stats,
	}
}

// scanScoreResponse is the result of an image upload.
type scanScoreResponse struct {
	ID      string             `json:"id"`
	Date    time.Time          `json:"date"`
	Metrics map[string]float64 `json:"metrics"`
	Overall int                `json:"overall"`
}

// routineItem is one exercise in a daily or weekly routine. The server
// carries no completion state.
type routineItem struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Duration    string `json:"duration"`
}

type todayPlanResponse struct {
	Locked  bool          `json:"locked"`
	Routine []routineItem `json:"routine"`
}

type weeklyPlanResponse struct {
	Locked      bool          `json:"locked"`
	GeneratedAt time.Time     `json:"generated_at"`
	FocusAreas  []string      `json:"focus_areas"`
	Routine     []routineItem `json:"routine"`
}

type weeklyAnalysisResponse struct {
	Locked           bool               `json:"locked"`
	AverageScore     float64            `json:"average_score"`
	ConsistencyScore float64            `json:"consistency_score"`
	Metrics          map[string]float64 `json:"metrics"`
	StrongestFeature string             `json:"strongest_feature"`
	WeakestFeature   string             `json:"weakest_feature"`
}

// statsFromMetricMap maps the backend's snake_case metric names onto
// FacialStats fields, defaulting any missing metric to 0.
func statsFromMetricMap(m map[string]float64) metrics.FacialStats {
	get := func(name string) int {
		return int(m[name])
	}
	return metrics.FacialStats{
		Symmetry:    get("symmetry"),
		Jawline:     get("jawline"),
		Proportions: get("proportions"),
		SkinClarity: get("skin_clarity"),
		Masculinity: get("masculinity"),
		Cheekbones:  get("cheekbones"),
		Overall:     get("overall"),
	}
}
