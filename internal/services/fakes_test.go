package services

import (
	"context"
	"errors"
	"sync"

	"classdeck-backend/internal/models"
)

// memoryDocs is an in-memory ProfileDocumentStore that can block or fail.
// block stalls ListProfiles before it reads; listed/release stall it after
// the snapshot is taken.
type memoryDocs struct {
	mu        sync.Mutex
	docs      map[string]models.StudentAppProfile
	listCalls int
	getCalls  int
	saveCalls int
	listErr   error
	getErr    error
	failSave  map[string]error
	block     chan struct{}
	listed    chan struct{}
	release   chan struct{}
}

func newMemoryDocs(profiles ...models.StudentAppProfile) *memoryDocs {
	m := &memoryDocs{docs: map[string]models.StudentAppProfile{}, failSave: map[string]error{}}
	for _, p := range profiles {
		m.docs[p.StudentID] = p
	}
	return m
}

func (m *memoryDocs) ListProfiles(ctx context.Context) ([]models.StudentAppProfile, error) {
	m.mu.Lock()
	m.listCalls++
	block := m.block
	m.mu.Unlock()

	if block != nil {
		<-block
	}

	m.mu.Lock()
	if m.listErr != nil {
		m.mu.Unlock()
		return nil, m.listErr
	}
	out := make([]models.StudentAppProfile, 0, len(m.docs))
	for _, p := range m.docs {
		out = append(out, p)
	}
	listed, release := m.listed, m.release
	m.mu.Unlock()

	if listed != nil {
		close(listed)
		<-release
	}
	return out, nil
}

func (m *memoryDocs) GetProfile(ctx context.Context, studentID string) (models.StudentAppProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getCalls++
	if m.getErr != nil {
		return models.StudentAppProfile{}, m.getErr
	}
	p, ok := m.docs[studentID]
	if !ok {
		return models.StudentAppProfile{}, ErrProfileNotFound
	}
	return p, nil
}

func (m *memoryDocs) stored(studentID string) models.StudentAppProfile {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.docs[studentID]
}

func (m *memoryDocs) SaveProfile(ctx context.Context, p models.StudentAppProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveCalls++
	if err := m.failSave[p.StudentID]; err != nil {
		return err
	}
	m.docs[p.StudentID] = p
	return nil
}

type countingApps struct {
	mu    sync.Mutex
	calls map[string]int
	apps  map[string]models.AppInfo
	gate  chan struct{}
}

func newCountingApps(apps ...models.AppInfo) *countingApps {
	c := &countingApps{calls: map[string]int{}, apps: map[string]models.AppInfo{}}
	for _, a := range apps {
		c.apps[a.BundleID] = a
	}
	return c
}

var errUnknownApp = errors.New("unknown app")

func (c *countingApps) GetApp(ctx context.Context, bundleID string) (models.AppInfo, error) {
	c.mu.Lock()
	c.calls[bundleID]++
	gate := c.gate
	info, ok := c.apps[bundleID]
	c.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if !ok {
		return models.AppInfo{}, errUnknownApp
	}
	return info, nil
}

func (c *countingApps) callsFor(bundleID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[bundleID]
}
