package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"classdeck-backend/internal/middleware"
	"classdeck-backend/internal/models"
	"classdeck-backend/internal/services"
)

type deviceJobRepo interface {
	Create(ctx context.Context, j *models.Job) error
	UpdateError(ctx context.Context, id uuid.UUID, errMsg string) error
}

type jobQueue interface {
	Enqueue(ctx context.Context, job models.QueuedJob) error
}

type DeviceHandler struct {
	jobs  deviceJobRepo
	queue jobQueue
	clock windowClock
}

func NewDeviceHandler(jobs deviceJobRepo, queue jobQueue, clock windowClock) *DeviceHandler {
	return &DeviceHandler{jobs: jobs, queue: queue, clock: clock}
}

type deviceBatchRequest struct {
	Devices      []models.Device `json:"devices" validate:"required,min=1,dive"`
	ClassUUID    string          `json:"class_uuid"`
	ClassGroupID int             `json:"class_group_id" validate:"gte=0"`
	LocationID   int             `json:"location_id" validate:"gte=0"`
	Timeslot     string          `json:"timeslot"`
	LockToLogin  *bool           `json:"lock_to_login"`
	AuthToken    string          `json:"auth_token"`
}

// mdmTokenHeader carries the teacher's MDM token; it wins over a body token.
const mdmTokenHeader = "X-MDM-Token"

// Submit validates a lock, unlock or restart batch and queues it. The batch
// runs asynchronously; progress arrives over the websocket.
func (h *DeviceHandler) Submit(w http.ResponseWriter, r *http.Request) {
	action := models.DeviceAction(chi.URLParam(r, "action"))
	switch action {
	case models.DeviceActionLock, models.DeviceActionUnlock, models.DeviceActionRestart:
	default:
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Unknown device action", r))
		return
	}

	var req deviceBatchRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	cfg := models.DeviceBatchConfig{
		Devices:      req.Devices,
		ClassUUID:    req.ClassUUID,
		ClassGroupID: req.ClassGroupID,
		LocationID:   req.LocationID,
	}
	if cfg.LocationID == 0 {
		cfg.LocationID = middleware.GetLocationID(r.Context())
	}

	if action != models.DeviceActionRestart {
		token := strings.TrimSpace(r.Header.Get(mdmTokenHeader))
		if token == "" {
			token = req.AuthToken
		}
		if token == "" {
			writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", services.ErrMissingAuthToken.Error(),
				map[string]string{"auth_token": "required"}, r))
			return
		}
		cfg.AuthToken = token

		window := h.clock.SupervisionWindow()
		if req.Timeslot != "" {
			slot, err := models.ParseTimeOfDay(req.Timeslot)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", err.Error(), r))
				return
			}
			window = slot
		}
		cfg.Timeslot = services.LockTarget(window)

		cfg.LockToLogin = action == models.DeviceActionLock
		if action == models.DeviceActionLock && req.LockToLogin != nil {
			cfg.LockToLogin = *req.LockToLogin
		}
	}

	persisted := cfg
	persisted.AuthToken = ""
	configBytes, _ := json.Marshal(persisted)

	teacherID := middleware.GetTeacherID(r.Context())
	job := &models.Job{
		TeacherID:  teacherID,
		Type:       action,
		ConfigJSON: configBytes,
	}
	if err := h.jobs.Create(r.Context(), job); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to create job", r))
		return
	}

	if h.queue == nil {
		_ = h.jobs.UpdateError(r.Context(), job.ID, "device queue is unavailable")
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Device queue is unavailable", r))
		return
	}
	if err := h.queue.Enqueue(r.Context(), models.QueuedJob{Job: *job, Config: cfg}); err != nil {
		log.Printf("failed to enqueue %s job %s: %v", action, job.ID, err)
		_ = h.jobs.UpdateError(r.Context(), job.ID, "failed to enqueue")
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to enqueue device batch", r))
		return
	}

	resp := map[string]interface{}{
		"job_id":  job.ID,
		"action":  action,
		"devices": len(cfg.Devices),
	}
	if cfg.Timeslot.Valid() {
		resp["timeslot"] = cfg.Timeslot
	}
	writeJSON(w, http.StatusAccepted, resp)
}
