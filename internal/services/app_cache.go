package services

import (
	"context"
	"fmt"
	"log"
	"sync"

	"golang.org/x/sync/singleflight"

	"classdeck-backend/internal/models"
)

// AppMetadataSource is the remote app metadata API.
type AppMetadataSource interface {
	GetApp(ctx context.Context, bundleID string) (models.AppInfo, error)
}

// AppMetadataCache memoizes app metadata per bundle id. Entries never expire:
// metadata is immutable once fetched.
type AppMetadataCache struct {
	source AppMetadataSource
	mu     sync.RWMutex
	apps   map[string]models.AppInfo
	group  singleflight.Group
}

func NewAppMetadataCache(source AppMetadataSource) *AppMetadataCache {
	return &AppMetadataCache{
		source: source,
		apps:   make(map[string]models.AppInfo),
	}
}

// Cached returns the entry without any network I/O.
func (c *AppMetadataCache) Cached(bundleID string) (models.AppInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	info, ok := c.apps[bundleID]
	return info, ok
}

// Get resolves one bundle id, fetching it on a miss. Concurrent misses for the
// same id share one fetch, which keeps running if the caller that started it
// is cancelled.
func (c *AppMetadataCache) Get(ctx context.Context, bundleID string) (models.AppInfo, error) {
	if info, ok := c.Cached(bundleID); ok {
		return info, nil
	}

	fetchCtx := context.WithoutCancel(ctx)
	v, err, _ := c.group.Do(bundleID, func() (interface{}, error) {
		if info, ok := c.Cached(bundleID); ok {
			return info, nil
		}
		info, err := c.source.GetApp(fetchCtx, bundleID)
		if err != nil {
			return models.AppInfo{}, fmt.Errorf("failed to fetch app %s: %w", bundleID, err)
		}
		if info.Category == "" {
			info.Category = models.ClassifyApp(info.Name, info.BundleID, info.Vendor)
		}
		c.mu.Lock()
		c.apps[bundleID] = info
		c.mu.Unlock()
		return info, nil
	})
	if err != nil {
		return models.AppInfo{}, err
	}
	return v.(models.AppInfo), nil
}

// Resolve looks up ids in order and reports the ones that could not be
// resolved separately.
func (c *AppMetadataCache) Resolve(ctx context.Context, bundleIDs []string) (apps []models.AppInfo, unresolved []string) {
	apps = make([]models.AppInfo, 0, len(bundleIDs))
	for _, id := range bundleIDs {
		info, err := c.Get(ctx, id)
		if err != nil {
			log.Printf("apps: %v", err)
			unresolved = append(unresolved, id)
			continue
		}
		apps = append(apps, info)
	}
	return apps, unresolved
}

// GetMany is Resolve for display paths: ids that fail are left out.
func (c *AppMetadataCache) GetMany(ctx context.Context, bundleIDs []string) []models.AppInfo {
	apps, _ := c.Resolve(ctx, bundleIDs)
	return apps
}

// Ingest stores already-fetched catalog entries, classifying any that lack a
// category.
func (c *AppMetadataCache) Ingest(apps []models.AppInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, info := range apps {
		if info.Category == "" {
			info.Category = models.ClassifyApp(info.Name, info.BundleID, info.Vendor)
		}
		c.apps[info.BundleID] = info
	}
}

func (c *AppMetadataCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.apps)
}
