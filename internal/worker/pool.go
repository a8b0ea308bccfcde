package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"classdeck-backend/internal/models"
	"classdeck-backend/internal/services"
)

const DeviceActionsQueue = "queue:device-actions"

// JobStore persists job state transitions.
type JobStore interface {
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
	SaveResult(ctx context.Context, id uuid.UUID, report models.BatchReport) error
	UpdateError(ctx context.Context, id uuid.UUID, errMsg string) error
}

// Publisher delivers console updates for one teacher.
type Publisher interface {
	Publish(ctx context.Context, teacherID string, msg models.WSMessage) error
}

type Pool struct {
	redis            *redis.Client
	mdm              services.MDMActions
	jobs             JobStore
	publisher        Publisher
	loginAppBundleID string
	settleDelay      time.Duration
	workerCount      int
	stopChan         chan struct{}
}

func NewPool(
	redisClient *redis.Client,
	mdm services.MDMActions,
	jobs JobStore,
	publisher Publisher,
	loginAppBundleID string,
	settleDelay time.Duration,
	workerCount int,
) *Pool {
	if workerCount <= 0 {
		workerCount = 1
	}
	return &Pool{
		redis:            redisClient,
		mdm:              mdm,
		jobs:             jobs,
		publisher:        publisher,
		loginAppBundleID: loginAppBundleID,
		settleDelay:      settleDelay,
		workerCount:      workerCount,
		stopChan:         make(chan struct{}),
	}
}

func (p *Pool) Start() {
	for i := 0; i < p.workerCount; i++ {
		go p.worker(i)
	}
	log.Printf("Started %d device workers", p.workerCount)
}

func (p *Pool) Stop() {
	close(p.stopChan)
}

func (p *Pool) worker(id int) {
	for {
		select {
		case <-p.stopChan:
			log.Printf("Worker %d shutting down", id)
			return
		default:
		}

		ctx := context.Background()

		result, err := p.redis.BLPop(ctx, 5*time.Second, DeviceActionsQueue).Result()
		if err != nil || len(result) < 2 {
			continue
		}

		var queued models.QueuedJob
		if err := json.Unmarshal([]byte(result[1]), &queued); err != nil {
			log.Printf("Worker %d: failed to parse job: %v", id, err)
			continue
		}

		lockKey := fmt.Sprintf("job_lock:%s", queued.Job.ID.String())
		locked, err := p.redis.SetNX(ctx, lockKey, "1", 10*time.Minute).Result()
		if err != nil || !locked {
			continue
		}

		log.Printf("Worker %d: processing job %s (%s, %d devices)", id, queued.Job.ID, queued.Job.Type, len(queued.Config.Devices))
		p.executeJob(ctx, queued)

		p.redis.Del(ctx, lockKey)
	}
}

// executeJob runs one batch to completion. Device batches are never retried:
// a second pass would repeat commands the MDM may already have accepted.
func (p *Pool) executeJob(ctx context.Context, queued models.QueuedJob) {
	job := queued.Job
	cfg := queued.Config

	if err := p.jobs.UpdateStatus(ctx, job.ID, models.JobStatusProcessing); err != nil {
		log.Printf("Job %s: failed to mark processing: %v", job.ID, err)
	}

	result, err := p.runBatch(ctx, job, cfg)
	if err != nil {
		p.handleFailure(ctx, job, err)
		return
	}

	report := models.BatchReport{
		JobID:   job.ID,
		Action:  job.Type,
		Result:  result,
		Outcome: result.Outcome(),
		Message: result.Message(job.Type),
	}
	if err := p.jobs.SaveResult(ctx, job.ID, report); err != nil {
		log.Printf("Job %s: failed to save result: %v", job.ID, err)
	}
	p.publish(ctx, job.TeacherID, models.WSMessage{Type: models.WSBatchCompleted, Payload: report})
	log.Printf("Job %s completed: %s", job.ID, report.Message)

	if result.Attempted() == 0 {
		return
	}
	if err := services.WaitForStatusSettle(ctx, p.settleDelay); err != nil {
		return
	}
	p.publish(ctx, job.TeacherID, models.WSMessage{
		Type:    models.WSDeviceStatusRefresh,
		Payload: models.StatusRefreshEvent{JobID: job.ID, UDIDs: deviceUDIDs(cfg.Devices)},
	})
}

func (p *Pool) runBatch(ctx context.Context, job models.Job, cfg models.DeviceBatchConfig) (models.DeviceActionResult, error) {
	orchestrator := services.NewDeviceSessionOrchestrator(p.mdm, p.loginAppBundleID)
	progress := func(bp models.BatchProgress) {
		p.publish(ctx, job.TeacherID, models.WSMessage{
			Type:    models.WSBatchProgress,
			Payload: models.ProgressEvent{JobID: job.ID, BatchProgress: bp, Label: bp.Label()},
		})
	}

	switch job.Type {
	case models.DeviceActionLock, models.DeviceActionUnlock:
		orchestrator.SetAuthToken(cfg.AuthToken)
		return orchestrator.EndDeviceSessions(ctx, cfg.Devices, services.EndSessionsRequest{
			ClassUUID:    cfg.ClassUUID,
			ClassGroupID: cfg.ClassGroupID,
			LocationID:   cfg.LocationID,
			Timeslot:     services.LockTarget(cfg.Timeslot),
			LockToLogin:  job.Type == models.DeviceActionLock && cfg.LockToLogin,
		}, progress)
	case models.DeviceActionRestart:
		return orchestrator.RestartDevices(ctx, cfg.Devices, progress)
	default:
		return models.DeviceActionResult{}, fmt.Errorf("unknown job type: %s", job.Type)
	}
}

func (p *Pool) handleFailure(ctx context.Context, job models.Job, err error) {
	errMsg := err.Error()
	log.Printf("Job %s failed: %s", job.ID, errMsg)

	if updateErr := p.jobs.UpdateError(ctx, job.ID, errMsg); updateErr != nil {
		log.Printf("Job %s: failed to record error: %v", job.ID, updateErr)
	}

	p.publish(ctx, job.TeacherID, models.WSMessage{
		Type: models.WSBatchFailed,
		Payload: models.ErrorEvent{
			JobID:        job.ID,
			ErrorCode:    "JOB_FAILED",
			ErrorMessage: errMsg,
		},
	})
}

func (p *Pool) publish(ctx context.Context, teacherID string, msg models.WSMessage) {
	if p.publisher == nil {
		return
	}
	if err := p.publisher.Publish(ctx, teacherID, msg); err != nil {
		log.Printf("failed to publish %s to teacher %s: %v", msg.Type, teacherID, err)
	}
}

func deviceUDIDs(devices []models.Device) []string {
	out := make([]string, 0, len(devices))
	for _, d := range devices {
		out = append(out, d.UDID)
	}
	return out
}
