package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classdeck-backend/internal/models"
)

func TestUpdateAndSaveSession_RoundTrips(t *testing.T) {
	docs := newMemoryDocs()
	store := NewProfileStore(docs, nil)
	ctx := context.Background()

	require.NoError(t, store.UpdateAndSaveSession(ctx, "s1", 4, models.Tuesday, models.TimeOfDayPM, []string{"com.a"}, 30))

	s, ok := store.GetSession("s1", models.Tuesday, models.TimeOfDayPM)
	require.True(t, ok)
	assert.Equal(t, []string{"com.a"}, s.Apps)
	assert.Equal(t, 30, s.SessionLengthMinutes)
	assert.True(t, s.SingleAppLock())

	// the written document is complete and reloads to the same session
	saved := docs.docs["s1"]
	assert.Len(t, saved.Sessions, 7)
	assert.Equal(t, 4, saved.LocationID)

	fresh := NewProfileStore(docs, nil)
	_, err := fresh.LoadProfiles(ctx, []string{"s1"})
	require.NoError(t, err)
	reloaded, ok := fresh.GetSession("s1", models.Tuesday, models.TimeOfDayPM)
	require.True(t, ok)
	assert.Equal(t, s, reloaded)
}

func TestUpdateAndSaveSession_OtherSessionsUntouched(t *testing.T) {
	existing := models.NewDefaultProfile("s1", 1)
	existing, _ = existing.WithSession(models.Monday, models.TimeOfDayAM, models.NewSession([]string{"com.keep"}, 10))
	docs := newMemoryDocs(existing)
	store := NewProfileStore(docs, nil)
	ctx := context.Background()

	_, err := store.LoadProfiles(ctx, []string{"s1"})
	require.NoError(t, err)
	require.NoError(t, store.UpdateAndSaveSession(ctx, "s1", 1, models.Monday, models.TimeOfDayPM, []string{"com.new", "com.other"}, 40))

	keep, ok := store.GetSession("s1", models.Monday, models.TimeOfDayAM)
	require.True(t, ok)
	assert.Equal(t, []string{"com.keep"}, keep.Apps)

	pm, _ := store.GetSession("s1", models.Monday, models.TimeOfDayPM)
	assert.False(t, pm.SingleAppLock())
}

func TestUpdateAndSaveSession_ValidatesBeforeWriting(t *testing.T) {
	docs := newMemoryDocs()
	store := NewProfileStore(docs, nil)
	ctx := context.Background()

	tests := []struct {
		name    string
		student string
		day     models.DayOfWeek
		slot    models.TimeOfDay
		length  int
		wantErr error
	}{
		{"missing student", "", models.Monday, models.TimeOfDayAM, 20, ErrMissingStudent},
		{"length too long", "s1", models.Monday, models.TimeOfDayAM, 65, models.ErrInvalidSessionLength},
		{"length off step", "s1", models.Monday, models.TimeOfDayAM, 12, models.ErrInvalidSessionLength},
		{"unsupervised", "s1", models.Monday, models.TimeOfDayUnsupervised, 20, models.ErrUnsupervisedSlot},
		{"bad day", "s1", models.DayOfWeek(9), models.TimeOfDayAM, 20, models.ErrUnknownDay},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := store.UpdateAndSaveSession(ctx, tt.student, 1, tt.day, tt.slot, []string{"com.a"}, tt.length)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
	assert.Equal(t, 0, docs.saveCalls)
}

func TestUpdateAndSaveSession_FailedWriteLeavesCache(t *testing.T) {
	docs := newMemoryDocs()
	docs.failSave["s1"] = errors.New("disk full")
	store := NewProfileStore(docs, nil)

	err := store.UpdateAndSaveSession(context.Background(), "s1", 1, models.Friday, models.TimeOfDayHome, []string{"com.a"}, 20)
	require.Error(t, err)
	assert.False(t, store.HasProfile("s1"))
}

func TestLoadProfiles_TracksMissingAndKeepsCacheOnError(t *testing.T) {
	docs := newMemoryDocs(models.NewDefaultProfile("s1", 1))
	store := NewProfileStore(docs, nil)
	ctx := context.Background()

	started, err := store.LoadProfiles(ctx, []string{"s1", "s2", "s3"})
	require.NoError(t, err)
	assert.True(t, started)
	assert.Equal(t, []string{"s2", "s3"}, store.MissingProfiles())
	assert.True(t, store.HasProfile("s1"))

	docs.listErr = errors.New("unreachable")
	_, err = store.LoadProfiles(ctx, []string{"s1"})
	require.Error(t, err)
	assert.Error(t, store.LoadError())
	assert.True(t, store.HasProfile("s1"), "cache survives a failed load")
}

func TestLoadProfiles_ConcurrentCallIsANoOp(t *testing.T) {
	docs := newMemoryDocs()
	docs.block = make(chan struct{})
	store := NewProfileStore(docs, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		store.LoadProfiles(context.Background(), []string{"s1"})
	}()

	require.Eventually(t, store.IsLoading, time.Second, 5*time.Millisecond)

	started, err := store.LoadProfiles(context.Background(), []string{"s1"})
	assert.NoError(t, err)
	assert.False(t, started)

	close(docs.block)
	<-done
	assert.Equal(t, 1, docs.listCalls)
	assert.False(t, store.IsLoading())
}

func TestLoadProfiles_KeepsWritesThatFinishDuringTheFetch(t *testing.T) {
	docs := newMemoryDocs(models.NewDefaultProfile("s1", 1))
	store := NewProfileStore(docs, nil)
	ctx := context.Background()
	_, err := store.LoadProfiles(ctx, []string{"s1"})
	require.NoError(t, err)

	docs.listed = make(chan struct{})
	docs.release = make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		store.LoadProfiles(ctx, []string{"s1"})
	}()

	// the load holds a snapshot without the Monday AM write
	<-docs.listed
	require.NoError(t, store.UpdateAndSaveSession(ctx, "s1", 1, models.Monday, models.TimeOfDayAM, []string{"com.a"}, 20))
	close(docs.release)
	<-done

	am, ok := store.GetSession("s1", models.Monday, models.TimeOfDayAM)
	require.True(t, ok)
	assert.Equal(t, []string{"com.a"}, am.Apps, "cache keeps the write made during the load")

	require.NoError(t, store.UpdateAndSaveSession(ctx, "s1", 1, models.Monday, models.TimeOfDayPM, []string{"com.b"}, 20))
	remote, ok := docs.stored("s1").Session(models.Monday, models.TimeOfDayAM)
	require.True(t, ok)
	assert.Equal(t, []string{"com.a"}, remote.Apps, "next write builds on the kept session")
	assert.Empty(t, store.MissingProfiles())
}

func TestUpdateAndSaveSession_ColdCacheFetchesExistingDocument(t *testing.T) {
	existing := models.NewDefaultProfile("s1", 3)
	existing, _ = existing.WithSession(models.Monday, models.TimeOfDayAM, models.NewSession([]string{"com.keep"}, 15))
	docs := newMemoryDocs(existing)
	store := NewProfileStore(docs, nil)
	ctx := context.Background()

	require.NoError(t, store.UpdateAndSaveSession(ctx, "s1", 9, models.Tuesday, models.TimeOfDayPM, []string{"com.new"}, 20))

	saved := docs.stored("s1")
	keep, ok := saved.Session(models.Monday, models.TimeOfDayAM)
	require.True(t, ok)
	assert.Equal(t, []string{"com.keep"}, keep.Apps)
	assert.Equal(t, 3, saved.LocationID, "existing location is kept")
	tue, _ := saved.Session(models.Tuesday, models.TimeOfDayPM)
	assert.Equal(t, []string{"com.new"}, tue.Apps)
	assert.Equal(t, 1, docs.getCalls)

	// warm now; no second fetch
	require.NoError(t, store.UpdateAndSaveSession(ctx, "s1", 9, models.Friday, models.TimeOfDayAM, []string{"com.x"}, 20))
	assert.Equal(t, 1, docs.getCalls)
}

func TestUpdateAndSaveSession_LookupFailureWritesNothing(t *testing.T) {
	docs := newMemoryDocs(models.NewDefaultProfile("s1", 1))
	docs.getErr = errors.New("connection reset")
	store := NewProfileStore(docs, nil)

	err := store.UpdateAndSaveSession(context.Background(), "s1", 1, models.Monday, models.TimeOfDayAM, []string{"com.a"}, 20)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrProfileNotFound)
	assert.Equal(t, 0, docs.saveCalls)
	assert.False(t, store.HasProfile("s1"))
}

func TestCreateDefaultProfile_KeepsExistingDocument(t *testing.T) {
	existing := models.NewDefaultProfile("s1", 2)
	existing, _ = existing.WithSession(models.Sunday, models.TimeOfDayHome, models.NewSession([]string{"com.keep"}, 30))
	docs := newMemoryDocs(existing)
	store := NewProfileStore(docs, nil)

	p, err := store.CreateDefaultProfile(context.Background(), "s1", 2)
	assert.ErrorIs(t, err, ErrProfileExists)
	assert.Equal(t, existing, p)
	assert.Equal(t, 0, docs.saveCalls)
	assert.True(t, store.HasProfile("s1"))
}

func TestHasProfileIsMembershipOnly(t *testing.T) {
	docs := newMemoryDocs(models.NewDefaultProfile("empty", 1))
	store := NewProfileStore(docs, nil)
	_, err := store.LoadProfiles(context.Background(), nil)
	require.NoError(t, err)

	assert.True(t, store.HasProfile("empty"))
	s, ok := store.GetSession("empty", models.Saturday, models.TimeOfDayAM)
	assert.True(t, ok)
	assert.Empty(t, s.Apps)
	assert.Equal(t, models.DefaultSessionLength, s.SessionLengthMinutes)

	_, ok = store.GetSession("nobody", models.Saturday, models.TimeOfDayAM)
	assert.False(t, ok)
}

func TestGetSession_AbsentDayKey(t *testing.T) {
	partial := models.StudentAppProfile{
		StudentID: "s1",
		Sessions:  map[string]models.DailySessions{"Mon": models.EmptyDailySessions()},
	}
	store := NewProfileStore(newMemoryDocs(partial), nil)
	_, err := store.LoadProfiles(context.Background(), nil)
	require.NoError(t, err)

	_, ok := store.GetSession("s1", models.Thursday, models.TimeOfDayAM)
	assert.False(t, ok)
	_, ok = store.GetSession("s1", models.Monday, models.TimeOfDayUnsupervised)
	assert.False(t, ok)
}

func TestCreateDefaultProfile(t *testing.T) {
	docs := newMemoryDocs()
	store := NewProfileStore(docs, nil)
	_, err := store.LoadProfiles(context.Background(), []string{"s1"})
	require.NoError(t, err)
	require.Equal(t, []string{"s1"}, store.MissingProfiles())

	p, err := store.CreateDefaultProfile(context.Background(), "s1", 8)
	require.NoError(t, err)
	assert.Len(t, p.Sessions, 7)
	assert.Empty(t, store.MissingProfiles())
	assert.Contains(t, docs.docs, "s1")

	_, err = store.CreateDefaultProfile(context.Background(), "", 8)
	assert.ErrorIs(t, err, ErrMissingStudent)
}

func TestGetAppInfo_RequiresCache(t *testing.T) {
	store := NewProfileStore(newMemoryDocs(), nil)
	_, err := store.GetAppInfo(context.Background(), "com.a")
	assert.ErrorIs(t, err, ErrNoAppMetadata)

	apps := NewAppMetadataCache(newCountingApps(models.NewAppInfo("com.a", "Epic Books", "", "", "")))
	store = NewProfileStore(newMemoryDocs(), apps)
	info, err := store.GetAppInfo(context.Background(), "com.a")
	require.NoError(t, err)
	assert.Equal(t, models.CategoryReading, info.Category)
}
