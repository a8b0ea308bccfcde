package handlers

import (
	"net/http"

	"classdeck-backend/internal/models"
	"classdeck-backend/internal/services"
)

type windowClock interface {
	CurrentDay() models.DayOfWeek
	CurrentTimeslot() models.TimeOfDay
	SupervisionWindow() models.TimeOfDay
}

type TimeslotHandler struct {
	clock windowClock
}

func NewTimeslotHandler(clock windowClock) *TimeslotHandler {
	return &TimeslotHandler{clock: clock}
}

func (h *TimeslotHandler) Current(w http.ResponseWriter, r *http.Request) {
	window := h.clock.SupervisionWindow()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"day":              h.clock.CurrentDay(),
		"window":           window,
		"window_label":     window.Label(),
		"current_timeslot": h.clock.CurrentTimeslot(),
		"lock_target":      services.LockTarget(window),
	})
}
