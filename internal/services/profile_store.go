package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"

	"classdeck-backend/internal/models"
)

var (
	ErrProfileNotFound = models.ErrProfileNotFound
	ErrProfileExists   = errors.New("student profile already exists")
	ErrMissingStudent  = errors.New("student id is required")
	ErrNoAppMetadata   = errors.New("app metadata is not configured for this store")
)

// ProfileDocumentStore is the per-student document backend. Batch reads have
// no per-id filter and writes always replace whole documents. GetProfile
// returns an error wrapping ErrProfileNotFound when the student has none.
type ProfileDocumentStore interface {
	ListProfiles(ctx context.Context) ([]models.StudentAppProfile, error)
	GetProfile(ctx context.Context, studentID string) (models.StudentAppProfile, error)
	SaveProfile(ctx context.Context, profile models.StudentAppProfile) error
}

// ProfileStore caches weekly schedules for one screen and is the only path
// through which schedules are written.
type ProfileStore struct {
	docs ProfileDocumentStore
	apps *AppMetadataCache

	mu       sync.RWMutex
	profiles map[string]models.StudentAppProfile
	missing  map[string]struct{}
	loading  bool
	loadErr  error
	// ids stored while a load was fetching; the load must not overwrite them
	writtenDuringLoad map[string]struct{}

	// serializes read-modify-write cycles
	writeMu sync.Mutex
}

func NewProfileStore(docs ProfileDocumentStore, apps *AppMetadataCache) *ProfileStore {
	return &ProfileStore{
		docs:     docs,
		apps:     apps,
		profiles: make(map[string]models.StudentAppProfile),
		missing:  make(map[string]struct{}),
	}
}

// LoadProfiles fetches every profile document and records which of studentIDs
// have none. A call made while another load is in flight returns immediately
// with started == false; it does not wait for or share that load's result.
func (s *ProfileStore) LoadProfiles(ctx context.Context, studentIDs []string) (started bool, err error) {
	s.mu.Lock()
	if s.loading {
		s.mu.Unlock()
		return false, nil
	}
	s.loading = true
	s.writtenDuringLoad = make(map[string]struct{})
	s.mu.Unlock()

	docs, fetchErr := s.docs.ListProfiles(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false
	written := s.writtenDuringLoad
	s.writtenDuringLoad = nil

	if fetchErr != nil {
		s.loadErr = fmt.Errorf("failed to load student profiles: %w", fetchErr)
		log.Printf("profiles: %v", s.loadErr)
		return true, s.loadErr
	}
	s.loadErr = nil

	profiles := make(map[string]models.StudentAppProfile, len(docs))
	for _, doc := range docs {
		if doc.Sessions == nil {
			doc.Sessions = map[string]models.DailySessions{}
		}
		profiles[doc.StudentID] = doc
	}
	// the fetched snapshot may predate these writes
	for id := range written {
		if p, ok := s.profiles[id]; ok {
			profiles[id] = p
		}
	}
	s.profiles = profiles

	missing := make(map[string]struct{})
	for _, id := range studentIDs {
		if _, ok := profiles[id]; !ok {
			missing[id] = struct{}{}
		}
	}
	s.missing = missing
	return true, nil
}

func (s *ProfileStore) IsLoading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// LoadError is the error of the most recent load, nil after a successful one.
func (s *ProfileStore) LoadError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadErr
}

// HasProfile reports cache membership, regardless of whether any session has apps.
func (s *ProfileStore) HasProfile(studentID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.profiles[studentID]
	return ok
}

func (s *ProfileStore) Profile(studentID string) (models.StudentAppProfile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[studentID]
	return p, ok
}

// MissingProfiles lists the requested students the last load found no document for.
func (s *ProfileStore) MissingProfiles() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.missing))
	for id := range s.missing {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// GetSession is a pure cache lookup. ok is false when the student has no
// profile, the day key is absent, or the slot has no storage key.
func (s *ProfileStore) GetSession(studentID string, day models.DayOfWeek, slot models.TimeOfDay) (models.Session, bool) {
	s.mu.RLock()
	p, ok := s.profiles[studentID]
	s.mu.RUnlock()
	if !ok {
		return models.Session{}, false
	}
	return p.Session(day, slot)
}

// resolve returns the student's document from the cache, falling back to the
// document store on a miss. found is false only when the store has none.
// Callers hold writeMu.
func (s *ProfileStore) resolve(ctx context.Context, studentID string) (models.StudentAppProfile, bool, error) {
	if p, ok := s.Profile(studentID); ok {
		return p, true, nil
	}
	p, err := s.docs.GetProfile(ctx, studentID)
	if errors.Is(err, ErrProfileNotFound) {
		return models.StudentAppProfile{}, false, nil
	}
	if err != nil {
		return models.StudentAppProfile{}, false, fmt.Errorf("failed to fetch profile for student %s: %w", studentID, err)
	}
	if p.Sessions == nil {
		p.Sessions = map[string]models.DailySessions{}
	}
	s.store(p)
	return p, true, nil
}

// UpdateAndSaveSession replaces one day/timeslot session and persists the whole
// document. An uncached student's document is fetched first; only a student
// with no document at all gets a new default one under locationID. The cache
// is updated from the written document, not by re-fetching.
func (s *ProfileStore) UpdateAndSaveSession(ctx context.Context, studentID string, locationID int, day models.DayOfWeek, slot models.TimeOfDay, apps []string, sessionLengthMinutes int) error {
	if studentID == "" {
		return ErrMissingStudent
	}
	session := models.NewSession(apps, sessionLengthMinutes)
	if err := session.Validate(); err != nil {
		return err
	}
	if !day.Valid() {
		return fmt.Errorf("%w: %d", models.ErrUnknownDay, int(day))
	}
	if _, err := slot.StorageKey(); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	base, found, err := s.resolve(ctx, studentID)
	if err != nil {
		return err
	}
	if !found {
		base = models.NewDefaultProfile(studentID, locationID)
	}

	updated, err := base.WithSession(day, slot, session)
	if err != nil {
		return err
	}

	if err := s.docs.SaveProfile(ctx, updated); err != nil {
		return fmt.Errorf("failed to save profile for student %s: %w", studentID, err)
	}

	s.store(updated)
	return nil
}

// CreateDefaultProfile writes an all-empty weekly schedule for a new student.
// A student who already has a document keeps it; the existing document is
// returned with ErrProfileExists.
func (s *ProfileStore) CreateDefaultProfile(ctx context.Context, studentID string, locationID int) (models.StudentAppProfile, error) {
	if studentID == "" {
		return models.StudentAppProfile{}, ErrMissingStudent
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	existing, found, err := s.resolve(ctx, studentID)
	if err != nil {
		return models.StudentAppProfile{}, err
	}
	if found {
		return existing, ErrProfileExists
	}

	profile := models.NewDefaultProfile(studentID, locationID)
	if err := s.docs.SaveProfile(ctx, profile); err != nil {
		return models.StudentAppProfile{}, fmt.Errorf("failed to create profile for student %s: %w", studentID, err)
	}
	s.store(profile)
	return profile, nil
}

func (s *ProfileStore) store(p models.StudentAppProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.StudentID] = p
	delete(s.missing, p.StudentID)
	if s.loading {
		s.writtenDuringLoad[p.StudentID] = struct{}{}
	}
}

func (s *ProfileStore) GetAppInfo(ctx context.Context, bundleID string) (models.AppInfo, error) {
	if s.apps == nil {
		return models.AppInfo{}, ErrNoAppMetadata
	}
	return s.apps.Get(ctx, bundleID)
}

func (s *ProfileStore) GetApps(ctx context.Context, bundleIDs []string) ([]models.AppInfo, error) {
	if s.apps == nil {
		return nil, ErrNoAppMetadata
	}
	return s.apps.GetMany(ctx, bundleIDs), nil
}
