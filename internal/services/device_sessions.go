package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"classdeck-backend/internal/models"
)

var (
	ErrMissingAuthToken = errors.New("mdm auth token must be set before each batch")
	ErrBatchInProgress  = errors.New("a device batch is already running")
)

// DefaultStatusSettleDelay is how long callers wait after a batch before
// re-querying lock status. The MDM only acknowledges receipt of a command, so
// this is a heuristic: the devices may still not have applied it.
const DefaultStatusSettleDelay = 3 * time.Second

// DefaultLoginAppBundleID is the "Student Login" app devices are locked into.
const DefaultLoginAppBundleID = "com.jamfschool.studentlogin"

// MDMActions is the remote action API.
type MDMActions interface {
	ClearRestrictions(ctx context.Context, studentID, authToken string) error
	LockIntoApp(ctx context.Context, studentID, bundleID, authToken string) error
	RestartDevice(ctx context.Context, udid string) error
}

// ProgressFunc receives one event per processed device, in order.
type ProgressFunc func(models.BatchProgress)

// EndSessionsRequest scopes an end-session batch to a class.
type EndSessionsRequest struct {
	ClassUUID    string
	ClassGroupID int
	LocationID   int
	Timeslot     models.TimeOfDay
	LockToLogin  bool
}

// DeviceSessionOrchestrator runs device batches one device at a time. There is
// no cancellation between devices: a started batch runs to completion, and a
// cancelled context only turns the remaining calls into failures.
type DeviceSessionOrchestrator struct {
	mdm              MDMActions
	loginAppBundleID string

	mu        sync.Mutex
	authToken string
	running   bool
}

func NewDeviceSessionOrchestrator(mdm MDMActions, loginAppBundleID string) *DeviceSessionOrchestrator {
	if loginAppBundleID == "" {
		loginAppBundleID = DefaultLoginAppBundleID
	}
	return &DeviceSessionOrchestrator{mdm: mdm, loginAppBundleID: loginAppBundleID}
}

// SetAuthToken arms the next end-session batch. The token is consumed by that
// batch, so a later batch needs a fresh call.
func (o *DeviceSessionOrchestrator) SetAuthToken(token string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.authToken = token
}

func (o *DeviceSessionOrchestrator) begin(needToken bool) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running {
		return "", ErrBatchInProgress
	}
	token := o.authToken
	if needToken {
		if token == "" {
			return "", ErrMissingAuthToken
		}
		o.authToken = ""
	}
	o.running = true
	return token, nil
}

func (o *DeviceSessionOrchestrator) end() {
	o.mu.Lock()
	o.running = false
	o.mu.Unlock()
}

// EndDeviceSessions clears restrictions on every owned device and, when
// LockToLogin is set, locks it into the login app. Devices without an owner
// are skipped and only counted. A device succeeds only if every phase does.
func (o *DeviceSessionOrchestrator) EndDeviceSessions(ctx context.Context, devices []models.Device, req EndSessionsRequest, progress ProgressFunc) (models.DeviceActionResult, error) {
	result := models.DeviceActionResult{FailedDeviceNames: []string{}}

	if !req.Timeslot.Schedulable() {
		if req.Timeslot == models.TimeOfDayUnsupervised {
			return result, models.ErrUnsupervisedSlot
		}
		return result, fmt.Errorf("%w: %d", models.ErrUnknownTimeslot, int(req.Timeslot))
	}

	token, err := o.begin(true)
	if err != nil {
		return result, err
	}
	defer o.end()

	owned := make([]models.Device, 0, len(devices))
	for _, d := range devices {
		if d.Owner == nil || d.Owner.ID == "" {
			result.NoOwnerCount++
			continue
		}
		owned = append(owned, d)
	}

	log.Printf("device batch: ending sessions on %d devices (class %s, group %d, location %d, slot %s, lock=%t, skipped %d without owner)",
		len(owned), req.ClassUUID, req.ClassGroupID, req.LocationID, req.Timeslot, req.LockToLogin, result.NoOwnerCount)

	for i, device := range owned {
		emit(progress, i+1, len(owned), device)

		if err := o.endSession(ctx, device, token, req.LockToLogin); err != nil {
			log.Printf("device batch: %s (%s): %v", device.DisplayName(), device.UDID, err)
			result.FailCount++
			result.FailedDeviceNames = append(result.FailedDeviceNames, device.DisplayName())
			continue
		}
		result.SuccessCount++
	}
	return result, nil
}

func (o *DeviceSessionOrchestrator) endSession(ctx context.Context, device models.Device, token string, lockToLogin bool) error {
	if err := o.mdm.ClearRestrictions(ctx, device.Owner.ID, token); err != nil {
		return fmt.Errorf("clear restrictions: %w", err)
	}
	if !lockToLogin {
		return nil
	}
	if err := o.mdm.LockIntoApp(ctx, device.Owner.ID, o.loginAppBundleID, token); err != nil {
		return fmt.Errorf("lock into login app: %w", err)
	}
	return nil
}

// RestartDevices restarts every device. Ownership is not required.
func (o *DeviceSessionOrchestrator) RestartDevices(ctx context.Context, devices []models.Device, progress ProgressFunc) (models.DeviceActionResult, error) {
	result := models.DeviceActionResult{FailedDeviceNames: []string{}}

	if _, err := o.begin(false); err != nil {
		return result, err
	}
	defer o.end()

	for i, device := range devices {
		emit(progress, i+1, len(devices), device)

		if err := o.mdm.RestartDevice(ctx, device.UDID); err != nil {
			log.Printf("device batch: restart %s (%s): %v", device.DisplayName(), device.UDID, err)
			result.FailCount++
			result.FailedDeviceNames = append(result.FailedDeviceNames, device.DisplayName())
			continue
		}
		result.SuccessCount++
	}
	return result, nil
}

func emit(progress ProgressFunc, index, total int, device models.Device) {
	if progress == nil {
		return
	}
	progress(models.BatchProgress{Index: index, Total: total, DeviceName: device.DisplayName()})
}

// WaitForStatusSettle sleeps for delay unless ctx ends first.
func WaitForStatusSettle(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
