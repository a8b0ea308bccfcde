package handlers

import (
	"log"
	"net/http"
	"strings"

	"classdeck-backend/internal/middleware"
	"classdeck-backend/internal/models"
	"classdeck-backend/internal/services"
)

type ScheduleHandler struct {
	caches screenCacheProvider
}

func NewScheduleHandler(caches screenCacheProvider) *ScheduleHandler {
	return &ScheduleHandler{caches: caches}
}

type scheduleRequest struct {
	Students      []models.Student `json:"students" validate:"dive"`
	Days          []string         `json:"days"`
	Timeslots     []string         `json:"timeslots"`
	Apps          []string         `json:"apps"`
	AvailableApps []string         `json:"available_apps"`
	Category      string           `json:"category"`
	SessionLength int              `json:"session_length" validate:"omitempty,session_length"`
}

// build replays a console selection onto a fresh builder. Unknown days or
// timeslots are rejected rather than silently dropped. Selected apps must all
// resolve and always join the catalog, so the stored session holds exactly the
// apps the teacher picked.
func (h *ScheduleHandler) build(w http.ResponseWriter, r *http.Request, req scheduleRequest, cache *services.ScreenCache) (*services.ScheduleBuilder, bool) {
	selected, unresolved := cache.Apps.Resolve(r.Context(), req.Apps)
	if len(unresolved) > 0 {
		writeJSON(w, http.StatusBadGateway, errorRespWithFields("UPSTREAM_ERROR",
			"Could not load app metadata for: "+strings.Join(unresolved, ", "),
			map[string]string{"apps": strings.Join(unresolved, ",")}, r))
		return nil, false
	}
	catalog := cache.Apps.GetMany(r.Context(), req.AvailableApps)
	inCatalog := make(map[string]struct{}, len(catalog))
	for _, app := range catalog {
		inCatalog[app.BundleID] = struct{}{}
	}
	for _, app := range selected {
		if _, ok := inCatalog[app.BundleID]; !ok {
			catalog = append(catalog, app)
		}
	}

	b := services.NewScheduleBuilder()
	b.Configure(req.Students, catalog)

	for _, s := range req.Students {
		b.ToggleStudent(s.ID)
	}
	for _, label := range req.Days {
		day, err := models.ParseDay(label)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", err.Error(), r))
			return nil, false
		}
		b.ToggleDay(day)
	}
	for _, label := range req.Timeslots {
		slot, err := models.ParseTimeOfDay(label)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", err.Error(), r))
			return nil, false
		}
		if !slot.Schedulable() {
			writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", models.ErrUnsupervisedSlot.Error(), r))
			return nil, false
		}
		b.ToggleTimeslot(slot)
	}
	for _, id := range req.Apps {
		b.ToggleApp(id)
	}

	category, ok := models.ParseAppCategory(req.Category)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Unknown app category", r))
		return nil, false
	}
	b.SelectedCategory = category

	if req.SessionLength != 0 {
		if err := b.SetSessionLength(req.SessionLength); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", err.Error(), r))
			return nil, false
		}
	}
	return b, true
}

func (h *ScheduleHandler) cache(r *http.Request) *services.ScreenCache {
	return h.caches.For(middleware.GetTeacherID(r.Context()), services.ScreenBulkSetup)
}

func (h *ScheduleHandler) Preview(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	b, ok := h.build(w, r, req, h.cache(r))
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"can_apply":      b.CanApply(),
		"summary":        b.SummaryText(),
		"filtered_apps":  b.FilteredApps(),
		"selected_apps":  b.SelectedApps(),
		"session_length": b.SessionLengthMinutes,
	})
}

// Apply loads the selected students' documents first so an existing schedule
// is extended instead of replaced by a fresh default.
func (h *ScheduleHandler) Apply(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	cache := h.cache(r)
	b, ok := h.build(w, r, req, cache)
	if !ok {
		return
	}
	if !b.CanApply() {
		handleServiceError(w, r, services.ErrNothingSelected)
		return
	}

	ids := make([]string, 0, len(req.Students))
	for _, s := range b.SelectedStudents() {
		ids = append(ids, s.ID)
	}
	started, err := cache.Profiles.LoadProfiles(r.Context(), ids)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if !started {
		writeJSON(w, http.StatusConflict, errorResp("PROFILES_LOADING", "Profiles are still loading, try again shortly", r))
		return
	}

	report, err := b.ApplyConfiguration(r.Context(), cache.Profiles)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	log.Printf("bulk apply by teacher %s: %d/%d writes succeeded", middleware.GetTeacherID(r.Context()), report.Succeeded, report.Attempted)

	status := http.StatusOK
	if report.Failed > 0 {
		status = http.StatusMultiStatus
	}
	writeJSON(w, status, map[string]interface{}{
		"report":     report,
		"did_save":   b.DidSaveSuccessfully(),
		"save_error": b.SaveError(),
		"summary":    b.SummaryText(),
	})
}
