package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classdeck-backend/internal/models"
)

type write struct {
	student string
	day     models.DayOfWeek
	slot    models.TimeOfDay
	apps    []string
	length  int
}

type recordingWriter struct {
	writes []write
	fail   map[string]error
}

func (r *recordingWriter) UpdateAndSaveSession(ctx context.Context, studentID string, locationID int, day models.DayOfWeek, slot models.TimeOfDay, apps []string, length int) error {
	r.writes = append(r.writes, write{studentID, day, slot, apps, length})
	if err := r.fail[studentID]; err != nil {
		return err
	}
	return nil
}

var (
	roster  = []models.Student{{ID: "s1", Name: "Ada"}, {ID: "s2", Name: "Grace"}, {ID: "s3", Name: "Linus"}}
	catalog = []models.AppInfo{
		models.NewAppInfo("com.epic", "Epic Books", "", "", ""),
		models.NewAppInfo("com.prodigy", "Prodigy Math", "", "", ""),
		models.NewAppInfo("com.minecraft", "Minecraft", "", "", ""),
	}
)

func configured() *ScheduleBuilder {
	b := NewScheduleBuilder()
	b.Configure(roster, catalog)
	return b
}

func TestApplyConfiguration_WritesCartesianProduct(t *testing.T) {
	b := configured()
	b.ToggleStudent("s1")
	b.ToggleStudent("s2")
	b.ToggleDay(models.Monday)
	b.ToggleDay(models.Tuesday)
	b.ToggleTimeslot(models.TimeOfDayAM)
	b.ToggleApp("com.prodigy")
	b.ToggleApp("com.epic")

	w := &recordingWriter{}
	report, err := b.ApplyConfiguration(context.Background(), w)
	require.NoError(t, err)

	assert.Len(t, w.writes, 4)
	assert.Equal(t, ApplyReport{Attempted: 4, Succeeded: 4}, report)
	for _, wr := range w.writes {
		assert.Equal(t, []string{"com.prodigy", "com.epic"}, wr.apps, "pick order is preserved")
		assert.Equal(t, models.DefaultSessionLength, wr.length)
		assert.Equal(t, models.TimeOfDayAM, wr.slot)
	}
	assert.True(t, b.DidSaveSuccessfully())
	assert.Empty(t, b.SaveError())
}

func TestApplyConfiguration_BestEffort(t *testing.T) {
	b := configured()
	b.SelectAllStudents()
	b.ToggleDay(models.Friday)
	b.ToggleTimeslot(models.TimeOfDayHome)
	b.ToggleApp("com.epic")

	w := &recordingWriter{fail: map[string]error{"s2": errors.New("backend 500")}}
	report, err := b.ApplyConfiguration(context.Background(), w)
	require.NoError(t, err)

	assert.Len(t, w.writes, 3, "writes after a failure are still attempted")
	assert.Equal(t, 2, report.Succeeded)
	assert.Equal(t, 1, report.Failed)
	assert.False(t, b.DidSaveSuccessfully())
	assert.Contains(t, b.SaveError(), "backend 500")
}

func TestApplyConfiguration_NothingSelected(t *testing.T) {
	b := configured()
	b.ToggleStudent("s1")
	b.ToggleDay(models.Monday)
	// no timeslot, no app

	w := &recordingWriter{}
	_, err := b.ApplyConfiguration(context.Background(), w)
	assert.ErrorIs(t, err, ErrNothingSelected)
	assert.Empty(t, w.writes)
	assert.False(t, b.CanApply())
}

func TestApplyConfiguration_InvalidLengthWritesNothing(t *testing.T) {
	b := configured()
	b.SelectAllStudents()
	b.SelectAllDays()
	b.SelectAllTimeslots()
	b.SelectAllApps()
	b.SessionLengthMinutes = 7

	w := &recordingWriter{}
	_, err := b.ApplyConfiguration(context.Background(), w)
	assert.ErrorIs(t, err, models.ErrInvalidSessionLength)
	assert.Empty(t, w.writes)
}

func TestToggles(t *testing.T) {
	b := configured()

	b.ToggleStudent("stranger")
	assert.Empty(t, b.SelectedStudents())

	b.ToggleTimeslot(models.TimeOfDayUnsupervised)
	assert.Empty(t, b.SelectedTimeslots())

	b.ToggleApp("com.unknown")
	assert.Empty(t, b.SelectedApps())

	b.ToggleDay(models.Wednesday)
	b.ToggleDay(models.Wednesday)
	assert.Empty(t, b.SelectedDays())

	b.SelectAllDays()
	assert.True(t, b.AllDaysSelected())
	b.DeselectAllDays()
	assert.Empty(t, b.SelectedDays())

	b.SelectAllTimeslots()
	assert.True(t, b.AllTimeslotsSelected())
	assert.Equal(t, models.SchedulableTimeslots, b.SelectedTimeslots())

	b.ToggleApp("com.minecraft")
	b.SelectAllApps()
	assert.Equal(t, []string{"com.minecraft", "com.epic", "com.prodigy"}, b.SelectedApps())
	assert.True(t, b.AllAppsSelected())
	b.ToggleApp("com.epic")
	assert.Equal(t, []string{"com.minecraft", "com.prodigy"}, b.SelectedApps())
}

func TestFilteredApps(t *testing.T) {
	b := configured()
	assert.Len(t, b.FilteredApps(), 3)

	b.SelectedCategory = models.CategoryMath
	apps := b.FilteredApps()
	require.Len(t, apps, 1)
	assert.Equal(t, "com.prodigy", apps[0].BundleID)
}

func TestSummaryText(t *testing.T) {
	b := configured()
	b.SelectAllStudents()
	b.ToggleDay(models.Monday)
	b.ToggleDay(models.Thursday)
	b.ToggleTimeslot(models.TimeOfDayPM)
	require.NoError(t, b.SetSessionLength(20))

	assert.Equal(t, "3 students, 2 days, 1 timeslot, 20 min", b.SummaryText())

	assert.ErrorIs(t, b.SetSessionLength(0), models.ErrInvalidSessionLength)
	assert.Equal(t, 20, b.SessionLengthMinutes)
}

func TestResetAfterSaveKeepsSelection(t *testing.T) {
	b := configured()
	b.ToggleStudent("s3")
	b.ToggleDay(models.Sunday)
	b.ToggleTimeslot(models.TimeOfDayAM)
	b.ToggleApp("com.epic")

	_, err := b.ApplyConfiguration(context.Background(), &recordingWriter{})
	require.NoError(t, err)
	require.True(t, b.DidSaveSuccessfully())

	b.ResetAfterSave()
	assert.False(t, b.DidSaveSuccessfully())
	assert.Empty(t, b.SaveError())
	assert.True(t, b.CanApply())
	assert.Equal(t, "s3", b.SelectedStudents()[0].ID)
}

func TestConfigureResetsSelection(t *testing.T) {
	b := configured()
	b.SelectAllStudents()
	b.SelectedCategory = models.CategoryGames
	b.SessionLengthMinutes = 45

	b.Configure(roster[:1], catalog)
	assert.Empty(t, b.SelectedStudents())
	assert.Equal(t, models.CategoryAll, b.SelectedCategory)
	assert.Equal(t, models.DefaultSessionLength, b.SessionLengthMinutes)
}
