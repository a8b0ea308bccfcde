package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"classdeck-backend/internal/middleware"
	"classdeck-backend/internal/models"
)

type appCatalog interface {
	ListApps(ctx context.Context, locationID int) ([]models.AppInfo, error)
}

type AppHandler struct {
	caches  screenCacheProvider
	catalog appCatalog
}

func NewAppHandler(caches screenCacheProvider, catalog appCatalog) *AppHandler {
	return &AppHandler{caches: caches, catalog: catalog}
}

// Catalog lists the apps installed for a location, seeding the screen's app
// cache so later lookups skip the MDM. ?category= narrows the result.
func (h *AppHandler) Catalog(w http.ResponseWriter, r *http.Request) {
	screen, ok := screenFrom(w, r)
	if !ok {
		return
	}
	category, ok := models.ParseAppCategory(r.URL.Query().Get("category"))
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Unknown app category", r))
		return
	}
	locationID := middleware.GetLocationID(r.Context())
	if raw := r.URL.Query().Get("location"); raw != "" {
		id, err := strconv.Atoi(raw)
		if err != nil || id < 0 {
			writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid location", r))
			return
		}
		locationID = id
	}

	apps, err := h.catalog.ListApps(r.Context(), locationID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	cache := h.caches.For(middleware.GetTeacherID(r.Context()), screen)
	cache.Apps.Ingest(apps)

	out := make([]models.AppInfo, 0, len(apps))
	for _, app := range apps {
		if info, ok := cache.Apps.Cached(app.BundleID); ok {
			app = info
		}
		if category == models.CategoryAll || app.Category == category {
			out = append(out, app)
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"location_id": locationID,
		"apps":        out,
	})
}

func (h *AppHandler) Get(w http.ResponseWriter, r *http.Request) {
	screen, ok := screenFrom(w, r)
	if !ok {
		return
	}
	cache := h.caches.For(middleware.GetTeacherID(r.Context()), screen)

	app, err := cache.Apps.Get(r.Context(), chi.URLParam(r, "bundleID"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, app)
}

type lookupAppsRequest struct {
	BundleIDs []string `json:"bundle_ids" validate:"required,min=1,dive,required"`
}

// Lookup resolves many bundle ids; ids that fail are listed under "unresolved".
func (h *AppHandler) Lookup(w http.ResponseWriter, r *http.Request) {
	screen, ok := screenFrom(w, r)
	if !ok {
		return
	}
	var req lookupAppsRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	cache := h.caches.For(middleware.GetTeacherID(r.Context()), screen)

	apps, unresolved := cache.Apps.Resolve(r.Context(), req.BundleIDs)
	if unresolved == nil {
		unresolved = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"apps":       apps,
		"unresolved": unresolved,
	})
}
