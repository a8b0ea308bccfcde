package services

import (
	"time"

	"classdeck-backend/internal/models"
)

const (
	amStartHour   = 9
	pmStartHour   = 12
	homeStartHour = 17
	// from this hour until amStartHour devices are outside any supervised window
	unsupervisedStartHour = 21
)

// SupervisionWindowAt is the four-way window shown on cards:
// [9,12) AM, [12,17) PM, [17,21) Home, otherwise Unsupervised.
func SupervisionWindowAt(t time.Time) models.TimeOfDay {
	h := t.Hour()
	switch {
	case h >= amStartHour && h < pmStartHour:
		return models.TimeOfDayAM
	case h >= pmStartHour && h < homeStartHour:
		return models.TimeOfDayPM
	case h >= homeStartHour && h < unsupervisedStartHour:
		return models.TimeOfDayHome
	default:
		return models.TimeOfDayUnsupervised
	}
}

// CurrentTimeslotAt never yields Unsupervised: outside school hours the Home
// session applies.
func CurrentTimeslotAt(t time.Time) models.TimeOfDay {
	h := t.Hour()
	switch {
	case h >= amStartHour && h < pmStartHour:
		return models.TimeOfDayAM
	case h >= pmStartHour && h < homeStartHour:
		return models.TimeOfDayPM
	default:
		return models.TimeOfDayHome
	}
}

// LockTarget maps a window to a slot that can drive a lock or a write.
// Unsupervised becomes AM, the next window to start.
func LockTarget(slot models.TimeOfDay) models.TimeOfDay {
	if slot.Schedulable() {
		return slot
	}
	return models.TimeOfDayAM
}

func DayAt(t time.Time) models.DayOfWeek {
	return models.DayOfWeek(int(t.Weekday()) + 1)
}

// Clock evaluates the wall-clock functions in the school's time zone.
type Clock struct {
	loc *time.Location
	now func() time.Time
}

func NewClock(loc *time.Location) *Clock {
	if loc == nil {
		loc = time.UTC
	}
	return &Clock{loc: loc, now: time.Now}
}

func (c *Clock) Now() time.Time {
	return c.now().In(c.loc)
}

func (c *Clock) CurrentTimeslot() models.TimeOfDay {
	return CurrentTimeslotAt(c.Now())
}

func (c *Clock) SupervisionWindow() models.TimeOfDay {
	return SupervisionWindowAt(c.Now())
}

func (c *Clock) CurrentDay() models.DayOfWeek {
	return DayAt(c.Now())
}

// CurrentDayString is the storage key of today.
func (c *Clock) CurrentDayString() string {
	return c.CurrentDay().Key()
}
