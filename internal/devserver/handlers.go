package devserver

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// metricNames are the scored facial metrics, in wire naming.
var metricNames = []string{
	"symmetry", "jawline", "proportions", "skin_clarity", "masculinity", "cheekbones",
}

// Unlock thresholds mirrored from the production backend.
const (
	dailyPlanScans   = 3
	weeklyPlanDays   = 5
	weeklyPlanScans  = 15
	defaultScanLimit = 10
)

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string   `json:"email"`
		Password string   `json:"password"`
		Name     string   `json:"name"`
		Age      int      `json:"age"`
		Gender   string   `json:"gender"`
		HeightCm *float64 `json:"height_cm"`
		WeightKg *float64 `json:"weight_kg"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeDetail(w, http.StatusBadRequest, "email and password are required")
		return
	}

	acct := &account{ID: "usr_" + uuid.NewString(), Email: req.Email, Password: req.Password}
	if !s.repo.CreateAccount(acct) {
		writeDetail(w, http.StatusConflict, "account already exists")
		return
	}
	s.repo.SetProfile(acct.ID, &profileRecord{
		Name:     req.Name,
		Age:      req.Age,
		Gender:   req.Gender,
		HeightCm: req.HeightCm,
		WeightKg: req.WeightKg,
	})

	s.logger.Info().Str("user_id", acct.ID).Msg("account created")
	writeJSON(w, http.StatusCreated, map[string]string{"status": "created"})
}

// handleToken exchanges credentials for an access token. Dev convenience:
// the production app receives tokens from the managed-auth provider instead.
func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid request body")
		return
	}

	acct, ok := s.repo.Authenticate(req.Email, req.Password)
	if !ok {
		writeDetail(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := issueToken(s.signingKey, acct.ID)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "failed to issue token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"access_token": token})
}

func (s *Server) handleSyncProfile(w http.ResponseWriter, r *http.Request) {
	uid := currentUserID(r.Context())
	var req struct {
		Name      string `json:"name"`
		AvatarURL string `json:"avatar_url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid request body")
		return
	}

	p, ok := s.repo.Profile(uid)
	if !ok {
		p = &profileRecord{}
	}
	if req.Name != "" {
		p.Name = req.Name
	}
	if req.AvatarURL != "" {
		p.AvatarURL = req.AvatarURL
	}
	s.repo.SetProfile(uid, p)
	writeJSON(w, http.StatusOK, map[string]string{"status": "synced"})
}

func (s *Server) handleScanStatus(w http.ResponseWriter, r *http.Request) {
	uid := currentUserID(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"used":        s.repo.ScanCountToday(uid, time.Now()),
		"limit":       s.scanLimit,
		"server_time": time.Now().UTC(),
	})
}

func (s *Server) handleScanImage(w http.ResponseWriter, r *http.Request) {
	uid := currentUserID(r.Context())

	if used := s.repo.ScanCountToday(uid, time.Now()); used >= s.scanLimit {
		writeDetail(w, http.StatusTooManyRequests, "daily scan limit reached")
		return
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "image file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil || len(data) == 0 {
		writeDetail(w, http.StatusBadRequest, "empty image")
		return
	}

	scan := scanRecord{
		ID:      uuid.NewString(),
		Date:    time.Now().UTC(),
		Metrics: scoreImage(data),
	}
	scan.Overall = overall(scan.Metrics)
	s.repo.AddScan(uid, scan)

	s.logger.Debug().Str("user_id", uid).Str("scan_id", scan.ID).Msg("scan scored")
	writeJSON(w, http.StatusOK, scan)
}

func (s *Server) handleScanHistory(w http.ResponseWriter, r *http.Request) {
	uid := currentUserID(r.Context())
	limit := 0
	fmt.Sscanf(r.URL.Query().Get("limit"), "%d", &limit)
	writeJSON(w, http.StatusOK, map[string]any{"scans": s.repo.Scans(uid, limit)})
}

func (s *Server) handleScanReset(w http.ResponseWriter, r *http.Request) {
	s.repo.ResetScans(currentUserID(r.Context()))
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (s *Server) handleDailyAnalysis(w http.ResponseWriter, r *http.Request) {
	uid := currentUserID(r.Context())
	today := time.Now().Format("2006-01-02")

	var todays []scanRecord
	for _, scan := range s.repo.Scans(uid, 0) {
		if scan.Date.Format("2006-01-02") == today {
			todays = append(todays, scan)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"count":   len(todays),
		"metrics": averageMetrics(todays),
	})
}

func (s *Server) handleWeeklyAnalysis(w http.ResponseWriter, r *http.Request) {
	uid := currentUserID(r.Context())
	total, days := s.repo.UsageStats(uid)
	if days < weeklyPlanDays || total < weeklyPlanScans {
		writeJSON(w, http.StatusOK, map[string]any{"locked": true})
		return
	}

	scans := s.repo.Scans(uid, 0)
	avg := averageMetrics(scans)
	strongest, weakest := extremes(avg)

	var sum float64
	for _, scan := range scans {
		sum += float64(scan.Overall)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"locked":            false,
		"average_score":     sum / float64(len(scans)),
		"consistency_score": float64(days) / 7.0,
		"metrics":           avg,
		"strongest_feature": strongest,
		"weakest_feature":   weakest,
	})
}

func (s *Server) handleTodayPlan(w http.ResponseWriter, r *http.Request) {
	uid := currentUserID(r.Context())
	if s.repo.ScanCountToday(uid, time.Now()) < dailyPlanScans {
		writeJSON(w, http.StatusOK, map[string]any{"locked": true})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"locked":  false,
		"routine": morningRoutine(),
	})
}

func (s *Server) handleWeeklyPlanCurrent(w http.ResponseWriter, r *http.Request) {
	uid := currentUserID(r.Context())
	total, days := s.repo.UsageStats(uid)
	if days < weeklyPlanDays || total < weeklyPlanScans {
		writeJSON(w, http.StatusOK, map[string]any{"locked": true})
		return
	}
	p, ok := s.repo.WeeklyPlan(uid)
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"locked": true})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"locked":       false,
		"generated_at": p.GeneratedAt,
		"focus_areas":  p.FocusAreas,
		"routine":      p.Routine,
	})
}

func (s *Server) handleWeeklyPlanGenerate(w http.ResponseWriter, r *http.Request) {
	uid := currentUserID(r.Context())
	total, days := s.repo.UsageStats(uid)
	if days < weeklyPlanDays || total < weeklyPlanScans {
		writeDetail(w, http.StatusForbidden, "weekly plan is locked")
		return
	}

	avg := averageMetrics(s.repo.Scans(uid, 0))
	_, weakest := extremes(avg)
	p := &weeklyPlanRecord{
		GeneratedAt: time.Now().UTC(),
		FocusAreas:  []string{weakest},
		Routine:     weeklyRoutine(weakest),
	}
	s.repo.SetWeeklyPlan(uid, p)

	writeJSON(w, http.StatusOK, map[string]any{
		"locked":       false,
		"generated_at": p.GeneratedAt,
		"focus_areas":  p.FocusAreas,
		"routine":      p.Routine,
	})
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	p, ok := s.repo.Profile(currentUserID(r.Context()))
	if !ok {
		writeDetail(w, http.StatusNotFound, "profile not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleUpsertProfile(w http.ResponseWriter, r *http.Request) {
	var p profileRecord
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.repo.SetProfile(currentUserID(r.Context()), &p)
	writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

func (s *Server) handleProfileReset(w http.ResponseWriter, r *http.Request) {
	uid := currentUserID(r.Context())
	s.repo.DeleteProfile(uid)
	s.repo.ResetScans(uid)
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// scoreImage derives stable pseudo-scores in [55, 95] from the image bytes,
// so the same upload always scores the same in dev.
func scoreImage(data []byte) map[string]float64 {
	scores := make(map[string]float64, len(metricNames))
	for i, name := range metricNames {
		h := fnv.New32a()
		h.Write([]byte{byte(i)})
		h.Write(data)
		scores[name] = float64(55 + h.Sum32()%41)
	}
	return scores
}

func overall(m map[string]float64) int {
	if len(m) == 0 {
		return 0
	}
	var sum float64
	for _, v := range m {
		sum += v
	}
	return int(sum / float64(len(m)))
}

func averageMetrics(scans []scanRecord) map[string]float64 {
	avg := make(map[string]float64, len(metricNames))
	if len(scans) == 0 {
		return avg
	}
	for _, name := range metricNames {
		var sum float64
		for _, scan := range scans {
			sum += scan.Metrics[name]
		}
		avg[name] = sum / float64(len(scans))
	}
	return avg
}

func extremes(avg map[string]float64) (strongest, weakest string) {
	for _, name := range metricNames {
		if strongest == "" || avg[name] > avg[strongest] {
			strongest = name
		}
		if weakest == "" || avg[name] < avg[weakest] {
			weakest = name
		}
	}
	return strongest, weakest
}

func morningRoutine() []routineItem {
	return []routineItem{
		{Title: "Jawline hold", Description: "Chin tucks, slow release", Duration: "3 min"},
		{Title: "Cheek lifts", Description: "Hold each lift for five seconds", Duration: "2 min"},
		{Title: "Cold rinse", Description: "Finish with cold water to tighten skin", Duration: "1 min"},
	}
}

func weeklyRoutine(focus string) []routineItem {
	base := []routineItem{
		{Title: "Facial massage", Description: "Upward strokes along the jaw", Duration: "5 min"},
		{Title: "Hydration check", Description: "Two liters spread across the day", Duration: "all day"},
		{Title: "Sleep posture", Description: "Back sleeping, elevated pillow", Duration: "nightly"},
	}
	return append([]routineItem{{
		Title:       "Focus: " + focus,
		Description: "Targeted exercise for your weakest metric",
		Duration:    "10 min",
	}}, base...)
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeDetail writes the conventional {"detail": ...} error body.
func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
