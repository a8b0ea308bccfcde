package models

import (
	"fmt"
	"strings"
)

// Owner is the student a device is currently assigned to.
type Owner struct {
	ID       string `json:"id" validate:"required"`
	Name     string `json:"name"`
	Username string `json:"username,omitempty"`
}

// Device is a managed iPad. A nil Owner makes it ineligible for lock/unlock.
type Device struct {
	UDID     string   `json:"udid" validate:"required"`
	Name     string   `json:"name"`
	Owner    *Owner   `json:"owner,omitempty" validate:"omitempty"`
	AssetTag string   `json:"asset_tag,omitempty"`
	Apps     []string `json:"apps,omitempty"`
}

func (d Device) DisplayName() string {
	if d.Name != "" {
		return d.Name
	}
	if d.AssetTag != "" {
		return d.AssetTag
	}
	return d.UDID
}

type DeviceAction string

const (
	DeviceActionLock    DeviceAction = "lock"
	DeviceActionUnlock  DeviceAction = "unlock"
	DeviceActionRestart DeviceAction = "restart"
)

// BatchOutcome is how the console should present a finished batch.
type BatchOutcome string

const (
	OutcomeSuccess     BatchOutcome = "success"
	OutcomePartial     BatchOutcome = "partial"
	OutcomeFailed      BatchOutcome = "failed"
	OutcomeNothingToDo BatchOutcome = "nothing_to_do"
)

// DeviceActionResult is the aggregate of one device batch.
type DeviceActionResult struct {
	SuccessCount      int      `json:"success_count"`
	FailCount         int      `json:"fail_count"`
	NoOwnerCount      int      `json:"no_owner_count"`
	FailedDeviceNames []string `json:"failed_device_names"`
}

func (r DeviceActionResult) Attempted() int {
	return r.SuccessCount + r.FailCount
}

func (r DeviceActionResult) IsFullSuccess() bool {
	return r.FailCount == 0 && r.SuccessCount > 0
}

func (r DeviceActionResult) IsPartialSuccess() bool {
	return r.SuccessCount > 0 && r.FailCount > 0
}

// Outcome classifies the batch. A batch where nothing was attempted is its own
// case, never reported as success or failure.
func (r DeviceActionResult) Outcome() BatchOutcome {
	switch {
	case r.Attempted() == 0:
		return OutcomeNothingToDo
	case r.IsFullSuccess():
		return OutcomeSuccess
	case r.IsPartialSuccess():
		return OutcomePartial
	default:
		return OutcomeFailed
	}
}

// Message is the alert text for the console.
func (r DeviceActionResult) Message(action DeviceAction) string {
	verb := actionVerb(action)
	var msg string
	switch r.Outcome() {
	case OutcomeNothingToDo:
		if action == DeviceActionRestart {
			msg = "No devices were restarted."
		} else {
			msg = fmt.Sprintf("No devices were %s because none had an assigned student.", verb)
		}
	case OutcomeSuccess:
		msg = fmt.Sprintf("%s %s.", plural(r.SuccessCount, "device", "devices"), verb)
	case OutcomePartial:
		msg = fmt.Sprintf("%s %s, %d failed: %s.", plural(r.SuccessCount, "device", "devices"), verb,
			r.FailCount, strings.Join(r.FailedDeviceNames, ", "))
	default:
		msg = fmt.Sprintf("Could not %s %s: %s.", actionInfinitive(action),
			plural(r.FailCount, "device", "devices"), strings.Join(r.FailedDeviceNames, ", "))
	}
	if r.NoOwnerCount > 0 && r.Attempted() > 0 {
		msg += fmt.Sprintf(" %s skipped without an owner.", plural(r.NoOwnerCount, "device", "devices"))
	}
	return msg
}

func actionVerb(action DeviceAction) string {
	switch action {
	case DeviceActionLock:
		return "locked"
	case DeviceActionUnlock:
		return "unlocked"
	case DeviceActionRestart:
		return "restarted"
	default:
		return "updated"
	}
}

func actionInfinitive(action DeviceAction) string {
	switch action {
	case DeviceActionLock, DeviceActionUnlock, DeviceActionRestart:
		return string(action)
	default:
		return "update"
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, one)
	}
	return fmt.Sprintf("%d %s", n, many)
}

// BatchProgress is emitted once per processed device, Index counting from 1.
type BatchProgress struct {
	Index      int    `json:"index"`
	Total      int    `json:"total"`
	DeviceName string `json:"device_name"`
}

func (p BatchProgress) Label() string {
	return fmt.Sprintf("Processing %d of %d…", p.Index, p.Total)
}
