package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"classdeck-backend/internal/models"
)

type mockMDM struct {
	mock.Mock
}

func (m *mockMDM) ClearRestrictions(ctx context.Context, studentID, authToken string) error {
	return m.Called(studentID, authToken).Error(0)
}

func (m *mockMDM) LockIntoApp(ctx context.Context, studentID, bundleID, authToken string) error {
	return m.Called(studentID, bundleID, authToken).Error(0)
}

func (m *mockMDM) RestartDevice(ctx context.Context, udid string) error {
	return m.Called(udid).Error(0)
}

func device(udid, name, owner string) models.Device {
	d := models.Device{UDID: udid, Name: name}
	if owner != "" {
		d.Owner = &models.Owner{ID: owner}
	}
	return d
}

var amRequest = EndSessionsRequest{ClassUUID: "c1", ClassGroupID: 2, LocationID: 3, Timeslot: models.TimeOfDayAM, LockToLogin: true}

func TestEndDeviceSessions_AggregatesPartialFailure(t *testing.T) {
	mdm := &mockMDM{}
	mdm.On("ClearRestrictions", "s1", "tok").Return(nil)
	mdm.On("LockIntoApp", "s1", "login.app", "tok").Return(nil)
	mdm.On("ClearRestrictions", "s2", "tok").Return(errors.New("timeout"))
	mdm.On("ClearRestrictions", "s3", "tok").Return(nil)
	mdm.On("LockIntoApp", "s3", "login.app", "tok").Return(errors.New("rejected"))

	o := NewDeviceSessionOrchestrator(mdm, "login.app")
	o.SetAuthToken("tok")

	devices := []models.Device{
		device("u1", "iPad 1", "s1"),
		device("u2", "iPad 2", "s2"),
		device("u3", "iPad 3", "s3"),
		device("u4", "Cart iPad", ""),
	}

	var events []models.BatchProgress
	result, err := o.EndDeviceSessions(context.Background(), devices, amRequest, func(p models.BatchProgress) {
		events = append(events, p)
	})
	require.NoError(t, err)

	assert.Equal(t, 1, result.SuccessCount)
	assert.Equal(t, 2, result.FailCount)
	assert.Equal(t, 1, result.NoOwnerCount)
	assert.Equal(t, []string{"iPad 2", "iPad 3"}, result.FailedDeviceNames)
	assert.Equal(t, models.OutcomePartial, result.Outcome())

	// the no-owner device is never sent to the MDM
	mdm.AssertNotCalled(t, "ClearRestrictions", "", mock.Anything)
	// a failed clear skips the lock phase
	mdm.AssertNotCalled(t, "LockIntoApp", "s2", mock.Anything, mock.Anything)

	require.Len(t, events, 3)
	for i, e := range events {
		assert.Equal(t, i+1, e.Index)
		assert.Equal(t, 3, e.Total)
	}
	assert.Equal(t, "Processing 2 of 3…", events[1].Label())
}

func TestEndDeviceSessions_CountsAddUp(t *testing.T) {
	mdm := &mockMDM{}
	mdm.On("ClearRestrictions", mock.Anything, mock.Anything).Return(nil)

	o := NewDeviceSessionOrchestrator(mdm, "")
	o.SetAuthToken("tok")

	devices := []models.Device{device("u1", "a", "s1"), device("u2", "b", ""), device("u3", "c", "s3")}
	req := amRequest
	req.LockToLogin = false

	result, err := o.EndDeviceSessions(context.Background(), devices, req, nil)
	require.NoError(t, err)
	assert.Equal(t, len(devices), result.SuccessCount+result.FailCount+result.NoOwnerCount)
	assert.Len(t, result.FailedDeviceNames, result.FailCount)
	mdm.AssertNotCalled(t, "LockIntoApp", mock.Anything, mock.Anything, mock.Anything)
}

func TestEndDeviceSessions_NoOwnedDevicesIsNothingToDo(t *testing.T) {
	mdm := &mockMDM{}
	o := NewDeviceSessionOrchestrator(mdm, "")
	o.SetAuthToken("tok")

	result, err := o.EndDeviceSessions(context.Background(), []models.Device{device("u1", "a", "")}, amRequest, nil)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeNothingToDo, result.Outcome())
	assert.Equal(t, "No devices were locked because none had an assigned student.", result.Message(models.DeviceActionLock))
	mdm.AssertNotCalled(t, "ClearRestrictions", mock.Anything, mock.Anything)
}

func TestEndDeviceSessions_TokenIsConsumed(t *testing.T) {
	mdm := &mockMDM{}
	mdm.On("ClearRestrictions", "s1", "tok").Return(nil)

	o := NewDeviceSessionOrchestrator(mdm, "")
	req := amRequest
	req.LockToLogin = false

	_, err := o.EndDeviceSessions(context.Background(), []models.Device{device("u1", "a", "s1")}, req, nil)
	assert.ErrorIs(t, err, ErrMissingAuthToken)

	o.SetAuthToken("tok")
	_, err = o.EndDeviceSessions(context.Background(), []models.Device{device("u1", "a", "s1")}, req, nil)
	require.NoError(t, err)

	_, err = o.EndDeviceSessions(context.Background(), []models.Device{device("u1", "a", "s1")}, req, nil)
	assert.ErrorIs(t, err, ErrMissingAuthToken)
}

func TestEndDeviceSessions_RejectsUnsupervisedSlot(t *testing.T) {
	mdm := &mockMDM{}
	o := NewDeviceSessionOrchestrator(mdm, "")
	o.SetAuthToken("tok")

	req := amRequest
	req.Timeslot = models.TimeOfDayUnsupervised
	_, err := o.EndDeviceSessions(context.Background(), []models.Device{device("u1", "a", "s1")}, req, nil)
	assert.ErrorIs(t, err, models.ErrUnsupervisedSlot)
	mdm.AssertNotCalled(t, "ClearRestrictions", mock.Anything, mock.Anything)
}

type blockingMDM struct {
	mockMDM
	entered chan struct{}
	release chan struct{}
}

func (b *blockingMDM) RestartDevice(ctx context.Context, udid string) error {
	b.entered <- struct{}{}
	<-b.release
	return nil
}

func TestBatchesDoNotOverlap(t *testing.T) {
	mdm := &blockingMDM{entered: make(chan struct{}), release: make(chan struct{})}
	o := NewDeviceSessionOrchestrator(mdm, "")

	done := make(chan struct{})
	go func() {
		defer close(done)
		o.RestartDevices(context.Background(), []models.Device{device("u1", "a", "")}, nil)
	}()
	<-mdm.entered

	_, err := o.RestartDevices(context.Background(), []models.Device{device("u2", "b", "")}, nil)
	assert.ErrorIs(t, err, ErrBatchInProgress)

	close(mdm.release)
	<-done
}

func TestRestartDevices_NeedsNoOwner(t *testing.T) {
	mdm := &mockMDM{}
	mdm.On("RestartDevice", "u1").Return(nil)
	mdm.On("RestartDevice", "u2").Return(errors.New("offline"))

	o := NewDeviceSessionOrchestrator(mdm, "")
	result, err := o.RestartDevices(context.Background(), []models.Device{device("u1", "a", ""), device("u2", "", "s2")}, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, result.SuccessCount)
	assert.Equal(t, 1, result.FailCount)
	assert.Equal(t, 0, result.NoOwnerCount)
	assert.Equal(t, []string{"u2"}, result.FailedDeviceNames)
	assert.Equal(t, "1 device restarted, 1 failed: u2.", result.Message(models.DeviceActionRestart))
}

// An accepted command is not an applied one. Callers wait a fixed delay
// before re-reading lock status; nothing guarantees the device has caught up.
func TestStatusSettleDelayIsAHeuristic(t *testing.T) {
	assert.Equal(t, 3*time.Second, DefaultStatusSettleDelay)

	start := time.Now()
	require.NoError(t, WaitForStatusSettle(context.Background(), 20*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, WaitForStatusSettle(ctx, time.Hour), context.Canceled)
}
