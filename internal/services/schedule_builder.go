package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"

	"classdeck-backend/internal/models"
)

var ErrNothingSelected = errors.New("select at least one student, day, timeslot and app")

// SessionWriter is the write path ApplyConfiguration drives. *ProfileStore
// implements it.
type SessionWriter interface {
	UpdateAndSaveSession(ctx context.Context, studentID string, locationID int, day models.DayOfWeek, slot models.TimeOfDay, apps []string, sessionLengthMinutes int) error
}

// ApplyReport describes one ApplyConfiguration run.
type ApplyReport struct {
	Attempted int      `json:"attempted"`
	Succeeded int      `json:"succeeded"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors,omitempty"`
}

// ScheduleBuilder holds a teacher's in-progress bulk selection. It is not safe
// for concurrent use; one screen owns one builder.
type ScheduleBuilder struct {
	students []models.Student
	apps     []models.AppInfo

	selectedStudents map[string]struct{}
	selectedDays     map[models.DayOfWeek]struct{}
	selectedSlots    map[models.TimeOfDay]struct{}
	selectedApps     []string

	SelectedCategory     models.AppCategory
	SessionLengthMinutes int

	didSaveSuccessfully bool
	saveError           string
}

func NewScheduleBuilder() *ScheduleBuilder {
	b := &ScheduleBuilder{}
	b.Configure(nil, nil)
	return b
}

// Configure resets the builder to a roster and app catalog and clears any
// previous selection.
func (b *ScheduleBuilder) Configure(students []models.Student, availableApps []models.AppInfo) {
	b.students = append([]models.Student(nil), students...)
	b.apps = append([]models.AppInfo(nil), availableApps...)
	b.selectedStudents = make(map[string]struct{})
	b.selectedDays = make(map[models.DayOfWeek]struct{})
	b.selectedSlots = make(map[models.TimeOfDay]struct{})
	b.selectedApps = nil
	b.SelectedCategory = models.CategoryAll
	b.SessionLengthMinutes = models.DefaultSessionLength
	b.didSaveSuccessfully = false
	b.saveError = ""
}

func (b *ScheduleBuilder) hasStudent(id string) bool {
	for _, s := range b.students {
		if s.ID == id {
			return true
		}
	}
	return false
}

func (b *ScheduleBuilder) hasApp(bundleID string) bool {
	for _, a := range b.apps {
		if a.BundleID == bundleID {
			return true
		}
	}
	return false
}

// ToggleStudent flips membership of a roster student. Ids outside the roster
// are ignored.
func (b *ScheduleBuilder) ToggleStudent(id string) {
	if !b.hasStudent(id) {
		return
	}
	toggle(b.selectedStudents, id)
}

func (b *ScheduleBuilder) ToggleDay(day models.DayOfWeek) {
	if !day.Valid() {
		return
	}
	toggle(b.selectedDays, day)
}

// ToggleTimeslot ignores Unsupervised; it can never be a write target.
func (b *ScheduleBuilder) ToggleTimeslot(slot models.TimeOfDay) {
	if !slot.Schedulable() {
		return
	}
	toggle(b.selectedSlots, slot)
}

// ToggleApp flips a catalog app, keeping the selection in pick order.
func (b *ScheduleBuilder) ToggleApp(bundleID string) {
	if !b.hasApp(bundleID) {
		return
	}
	for i, id := range b.selectedApps {
		if id == bundleID {
			b.selectedApps = append(b.selectedApps[:i:i], b.selectedApps[i+1:]...)
			return
		}
	}
	b.selectedApps = append(b.selectedApps, bundleID)
}

func toggle[K comparable](set map[K]struct{}, k K) {
	if _, ok := set[k]; ok {
		delete(set, k)
		return
	}
	set[k] = struct{}{}
}

func (b *ScheduleBuilder) SelectAllStudents() {
	for _, s := range b.students {
		b.selectedStudents[s.ID] = struct{}{}
	}
}

func (b *ScheduleBuilder) DeselectAllStudents() {
	b.selectedStudents = make(map[string]struct{})
}

func (b *ScheduleBuilder) SelectAllDays() {
	for _, d := range models.AllDays {
		b.selectedDays[d] = struct{}{}
	}
}

func (b *ScheduleBuilder) DeselectAllDays() {
	b.selectedDays = make(map[models.DayOfWeek]struct{})
}

func (b *ScheduleBuilder) SelectAllTimeslots() {
	for _, t := range models.SchedulableTimeslots {
		b.selectedSlots[t] = struct{}{}
	}
}

func (b *ScheduleBuilder) DeselectAllTimeslots() {
	b.selectedSlots = make(map[models.TimeOfDay]struct{})
}

// SelectAllApps adds every catalog app not yet chosen, in catalog order.
func (b *ScheduleBuilder) SelectAllApps() {
	for _, a := range b.apps {
		if !b.appSelected(a.BundleID) {
			b.selectedApps = append(b.selectedApps, a.BundleID)
		}
	}
}

func (b *ScheduleBuilder) DeselectAllApps() {
	b.selectedApps = nil
}

func (b *ScheduleBuilder) appSelected(bundleID string) bool {
	for _, id := range b.selectedApps {
		if id == bundleID {
			return true
		}
	}
	return false
}

func (b *ScheduleBuilder) AllStudentsSelected() bool {
	return len(b.selectedStudents) == len(b.students)
}

func (b *ScheduleBuilder) AllDaysSelected() bool {
	return len(b.selectedDays) == len(models.AllDays)
}

func (b *ScheduleBuilder) AllTimeslotsSelected() bool {
	return len(b.selectedSlots) == len(models.SchedulableTimeslots)
}

func (b *ScheduleBuilder) AllAppsSelected() bool {
	return len(b.selectedApps) == len(b.apps)
}

// SelectedStudents returns selected students in roster order.
func (b *ScheduleBuilder) SelectedStudents() []models.Student {
	out := make([]models.Student, 0, len(b.selectedStudents))
	for _, s := range b.students {
		if _, ok := b.selectedStudents[s.ID]; ok {
			out = append(out, s)
		}
	}
	return out
}

func (b *ScheduleBuilder) SelectedDays() []models.DayOfWeek {
	out := make([]models.DayOfWeek, 0, len(b.selectedDays))
	for d := range b.selectedDays {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (b *ScheduleBuilder) SelectedTimeslots() []models.TimeOfDay {
	out := make([]models.TimeOfDay, 0, len(b.selectedSlots))
	for t := range b.selectedSlots {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (b *ScheduleBuilder) SelectedApps() []string {
	return append([]string(nil), b.selectedApps...)
}

// FilteredApps is the catalog narrowed to SelectedCategory. CategoryAll passes
// everything through.
func (b *ScheduleBuilder) FilteredApps() []models.AppInfo {
	if b.SelectedCategory == "" || b.SelectedCategory == models.CategoryAll {
		return append([]models.AppInfo(nil), b.apps...)
	}
	out := make([]models.AppInfo, 0, len(b.apps))
	for _, a := range b.apps {
		if a.Category == b.SelectedCategory {
			out = append(out, a)
		}
	}
	return out
}

func (b *ScheduleBuilder) CanApply() bool {
	return len(b.selectedStudents) > 0 &&
		len(b.selectedDays) > 0 &&
		len(b.selectedSlots) > 0 &&
		len(b.selectedApps) > 0
}

// SummaryText recaps the selection, e.g. "3 students, 2 days, 1 timeslot, 20 min".
func (b *ScheduleBuilder) SummaryText() string {
	return fmt.Sprintf("%s, %s, %s, %d min",
		countLabel(len(b.selectedStudents), "student", "students"),
		countLabel(len(b.selectedDays), "day", "days"),
		countLabel(len(b.selectedSlots), "timeslot", "timeslots"),
		b.SessionLengthMinutes,
	)
}

func countLabel(n int, one, many string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, one)
	}
	return fmt.Sprintf("%d %s", n, many)
}

// ApplyConfiguration writes one session per (student, day, timeslot). Every
// write is attempted even after failures, and writes that succeeded stay
// applied. The returned error is only set when nothing could be attempted.
func (b *ScheduleBuilder) ApplyConfiguration(ctx context.Context, store SessionWriter) (ApplyReport, error) {
	var report ApplyReport

	if !b.CanApply() {
		b.didSaveSuccessfully = false
		b.saveError = ErrNothingSelected.Error()
		return report, ErrNothingSelected
	}
	if !models.ValidSessionLength(b.SessionLengthMinutes) {
		err := fmt.Errorf("%w: got %d", models.ErrInvalidSessionLength, b.SessionLengthMinutes)
		b.didSaveSuccessfully = false
		b.saveError = err.Error()
		return report, err
	}

	apps := b.SelectedApps()
	days := b.SelectedDays()
	slots := b.SelectedTimeslots()

	var errs []error
	for _, student := range b.SelectedStudents() {
		for _, day := range days {
			for _, slot := range slots {
				report.Attempted++
				err := store.UpdateAndSaveSession(ctx, student.ID, student.LocationID, day, slot, apps, b.SessionLengthMinutes)
				if err != nil {
					log.Printf("bulk apply: student %s %s/%s: %v", student.ID, day.Key(), slot, err)
					errs = append(errs, err)
					report.Errors = append(report.Errors, err.Error())
					continue
				}
				report.Succeeded++
			}
		}
	}
	report.Failed = len(errs)

	b.didSaveSuccessfully = len(errs) == 0
	b.saveError = ""
	if len(errs) > 0 {
		b.saveError = errs[0].Error()
	}
	return report, nil
}

func (b *ScheduleBuilder) DidSaveSuccessfully() bool {
	return b.didSaveSuccessfully
}

// SaveError is the first error of the last apply, empty when none.
func (b *ScheduleBuilder) SaveError() string {
	return b.saveError
}

// ResetAfterSave clears the save outcome only; the selection is kept for the
// next configuration.
func (b *ScheduleBuilder) ResetAfterSave() {
	b.didSaveSuccessfully = false
	b.saveError = ""
}

// SetSessionLength rejects values outside 5, 10, ..., 60.
func (b *ScheduleBuilder) SetSessionLength(minutes int) error {
	if !models.ValidSessionLength(minutes) {
		return fmt.Errorf("%w: got %d", models.ErrInvalidSessionLength, minutes)
	}
	b.SessionLengthMinutes = minutes
	return nil
}
