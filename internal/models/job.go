package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

// Job is a queued device batch. ConfigJSON carries a DeviceBatchConfig.
type Job struct {
	ID           uuid.UUID       `json:"id"`
	TeacherID    string          `json:"teacher_id"`
	Type         DeviceAction    `json:"type"`
	ConfigJSON   json.RawMessage `json:"config"`
	Status       string          `json:"status"`
	ResultJSON   json.RawMessage `json:"result,omitempty"`
	ErrorMessage *string         `json:"error_message"`
	CreatedAt    time.Time       `json:"created_at"`
	CompletedAt  *time.Time      `json:"completed_at"`
}

// DeviceBatchConfig is everything a worker needs to run one batch.
// AuthToken travels only on the queue and is never persisted with the job row.
type DeviceBatchConfig struct {
	Devices      []Device  `json:"devices"`
	ClassUUID    string    `json:"class_uuid,omitempty"`
	ClassGroupID int       `json:"class_group_id,omitempty"`
	LocationID   int       `json:"location_id,omitempty"`
	Timeslot     TimeOfDay `json:"timeslot,omitempty"`
	LockToLogin  bool      `json:"lock_to_login"`
	AuthToken    string    `json:"auth_token,omitempty"`
}

// QueuedJob is the payload pushed on the device-actions queue.
type QueuedJob struct {
	Job    Job               `json:"job"`
	Config DeviceBatchConfig `json:"batch"`
}

// BatchReport is the stored and published result of a finished batch.
type BatchReport struct {
	JobID   uuid.UUID          `json:"job_id"`
	Action  DeviceAction       `json:"action"`
	Result  DeviceActionResult `json:"result"`
	Outcome BatchOutcome       `json:"outcome"`
	Message string             `json:"message"`
}

// WebSocket message types
const (
	WSBatchProgress       = "batch_progress"
	WSBatchCompleted      = "batch_completed"
	WSBatchFailed         = "batch_failed"
	WSDeviceStatusRefresh = "device_status_refresh"
)

type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type ProgressEvent struct {
	JobID uuid.UUID `json:"job_id"`
	BatchProgress
	Label string `json:"label"`
}

type ErrorEvent struct {
	JobID        uuid.UUID `json:"job_id"`
	ErrorCode    string    `json:"error_code"`
	ErrorMessage string    `json:"error_message"`
}

type StatusRefreshEvent struct {
	JobID uuid.UUID `json:"job_id"`
	UDIDs []string  `json:"udids"`
}

// API Error response
type APIError struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id"`
}

type ErrorResponse struct {
	Error APIError `json:"error"`
}
