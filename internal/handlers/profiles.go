package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"classdeck-backend/internal/middleware"
	"classdeck-backend/internal/models"
	"classdeck-backend/internal/services"
)

type screenCacheProvider interface {
	For(teacherID string, screen services.Screen) *services.ScreenCache
}

type schoolClock interface {
	CurrentDay() models.DayOfWeek
	CurrentTimeslot() models.TimeOfDay
}

type ProfileHandler struct {
	caches screenCacheProvider
	clock  schoolClock
}

func NewProfileHandler(caches screenCacheProvider, clock schoolClock) *ProfileHandler {
	return &ProfileHandler{caches: caches, clock: clock}
}

func (h *ProfileHandler) cache(w http.ResponseWriter, r *http.Request) (*services.ScreenCache, bool) {
	screen, ok := screenFrom(w, r)
	if !ok {
		return nil, false
	}
	return h.caches.For(middleware.GetTeacherID(r.Context()), screen), true
}

// Load refreshes the screen's profile cache for ?ids= and returns what it holds.
func (h *ProfileHandler) Load(w http.ResponseWriter, r *http.Request) {
	cache, ok := h.cache(w, r)
	if !ok {
		return
	}
	ids := splitList(r.URL.Query().Get("ids"))

	started, err := cache.Profiles.LoadProfiles(r.Context(), ids)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if !started {
		writeJSON(w, http.StatusAccepted, map[string]interface{}{"loading": true})
		return
	}

	profiles := make([]models.StudentAppProfile, 0, len(ids))
	for _, id := range ids {
		if p, ok := cache.Profiles.Profile(id); ok {
			profiles = append(profiles, p)
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"profiles": profiles,
		"missing":  cache.Profiles.MissingProfiles(),
		"loading":  false,
	})
}

type createProfileRequest struct {
	StudentID  string `json:"id" validate:"required"`
	LocationID int    `json:"locationId" validate:"gte=0"`
}

func (h *ProfileHandler) Create(w http.ResponseWriter, r *http.Request) {
	cache, ok := h.cache(w, r)
	if !ok {
		return
	}
	var req createProfileRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	if req.LocationID == 0 {
		req.LocationID = middleware.GetLocationID(r.Context())
	}

	profile, err := cache.Profiles.CreateDefaultProfile(r.Context(), req.StudentID, req.LocationID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, profile)
}

func parseSlotParams(w http.ResponseWriter, r *http.Request) (models.DayOfWeek, models.TimeOfDay, bool) {
	day, err := models.ParseDay(chi.URLParam(r, "day"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", err.Error(), r))
		return 0, 0, false
	}
	slot, err := models.ParseTimeOfDay(chi.URLParam(r, "slot"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", err.Error(), r))
		return 0, 0, false
	}
	if !slot.Schedulable() {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", models.ErrUnsupervisedSlot.Error(), r))
		return 0, 0, false
	}
	return day, slot, true
}

// GetSession reads one cached session. It never hits the document store.
func (h *ProfileHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	cache, ok := h.cache(w, r)
	if !ok {
		return
	}
	day, slot, ok := parseSlotParams(w, r)
	if !ok {
		return
	}
	h.writeSession(w, r, cache, chi.URLParam(r, "studentID"), day, slot)
}

func (h *ProfileHandler) CurrentSession(w http.ResponseWriter, r *http.Request) {
	cache, ok := h.cache(w, r)
	if !ok {
		return
	}
	h.writeSession(w, r, cache, chi.URLParam(r, "studentID"), h.clock.CurrentDay(), h.clock.CurrentTimeslot())
}

func (h *ProfileHandler) writeSession(w http.ResponseWriter, r *http.Request, cache *services.ScreenCache, studentID string, day models.DayOfWeek, slot models.TimeOfDay) {
	if !cache.Profiles.HasProfile(studentID) {
		handleServiceError(w, r, services.ErrProfileNotFound)
		return
	}
	session, found := cache.Profiles.GetSession(studentID, day, slot)
	if !found {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "No session for this student and timeslot", r))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"student_id": studentID,
		"day":        day,
		"timeslot":   slot,
		"session":    session,
		"apps":       cache.Apps.GetMany(r.Context(), session.Apps),
	})
}

type updateSessionRequest struct {
	Apps          []string `json:"apps" validate:"dive,required"`
	SessionLength int      `json:"sessionLength" validate:"session_length"`
	LocationID    int      `json:"locationId" validate:"gte=0"`
}

func (h *ProfileHandler) UpdateSession(w http.ResponseWriter, r *http.Request) {
	cache, ok := h.cache(w, r)
	if !ok {
		return
	}
	day, slot, ok := parseSlotParams(w, r)
	if !ok {
		return
	}
	var req updateSessionRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	if req.LocationID == 0 {
		req.LocationID = middleware.GetLocationID(r.Context())
	}

	studentID := chi.URLParam(r, "studentID")
	if err := cache.Profiles.UpdateAndSaveSession(r.Context(), studentID, req.LocationID, day, slot, req.Apps, req.SessionLength); err != nil {
		handleServiceError(w, r, err)
		return
	}

	session, _ := cache.Profiles.GetSession(studentID, day, slot)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"student_id": studentID,
		"day":        day,
		"timeslot":   slot,
		"session":    session,
	})
}
