package services

import (
	"log"
	"sync"
	"time"
)

// Screen names a console screen that owns its own caches.
type Screen string

const (
	ScreenDashboard Screen = "dashboard"
	ScreenBulkSetup Screen = "bulk-setup"
)

func ParseScreen(s string) (Screen, bool) {
	switch Screen(s) {
	case "", ScreenDashboard:
		return ScreenDashboard, true
	case ScreenBulkSetup:
		return ScreenBulkSetup, true
	default:
		return "", false
	}
}

// ScreenCache is the pair of caches one screen reads through.
type ScreenCache struct {
	Profiles *ProfileStore
	Apps     *AppMetadataCache
}

type screenKey struct {
	teacherID string
	screen    Screen
}

type screenEntry struct {
	cache    *ScreenCache
	lastUsed time.Time
}

// ScreenCaches hands every (teacher, screen) pair independent cache instances
// so optimistic state written on one screen never shows up on another.
type ScreenCaches struct {
	mu       sync.Mutex
	entries  map[screenKey]*screenEntry
	docs     ProfileDocumentStore
	source   AppMetadataSource
	ttl      time.Duration
	stopChan chan struct{}
	now      func() time.Time
}

func NewScreenCaches(docs ProfileDocumentStore, source AppMetadataSource, ttl time.Duration) *ScreenCaches {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &ScreenCaches{
		entries:  make(map[screenKey]*screenEntry),
		docs:     docs,
		source:   source,
		ttl:      ttl,
		stopChan: make(chan struct{}),
		now:      time.Now,
	}
}

func (r *ScreenCaches) For(teacherID string, screen Screen) *ScreenCache {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := screenKey{teacherID: teacherID, screen: screen}
	entry, ok := r.entries[key]
	if !ok {
		apps := NewAppMetadataCache(r.source)
		entry = &screenEntry{
			cache: &ScreenCache{
				Profiles: NewProfileStore(r.docs, apps),
				Apps:     apps,
			},
		}
		r.entries[key] = entry
	}
	entry.lastUsed = r.now()
	return entry.cache
}

// Sweep drops caches idle for longer than the ttl and returns how many went.
func (r *ScreenCaches) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-r.ttl)
	removed := 0
	for key, entry := range r.entries {
		if entry.lastUsed.Before(cutoff) {
			delete(r.entries, key)
			removed++
		}
	}
	return removed
}

func (r *ScreenCaches) Start() {
	go func() {
		ticker := time.NewTicker(r.ttl)
		defer ticker.Stop()
		for {
			select {
			case <-r.stopChan:
				return
			case <-ticker.C:
				if n := r.Sweep(); n > 0 {
					log.Printf("screen caches: evicted %d idle caches", n)
				}
			}
		}
	}()
}

func (r *ScreenCaches) Stop() {
	select {
	case <-r.stopChan:
		return
	default:
		close(r.stopChan)
	}
}
