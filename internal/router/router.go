package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"classdeck-backend/internal/handlers"
	"classdeck-backend/internal/middleware"
	"classdeck-backend/internal/websocket"
)

type Handlers struct {
	Profiles  *handlers.ProfileHandler
	Schedules *handlers.ScheduleHandler
	Apps      *handlers.AppHandler
	Devices   *handlers.DeviceHandler
	Jobs      *handlers.JobHandler
	Timeslot  *handlers.TimeslotHandler
}

func New(
	jwtAuth *middleware.JWTAuth,
	h Handlers,
	batchLimiter *middleware.RateLimiter,
	wsHub *websocket.Hub,
	frontendURL string,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(frontendURL))
	r.Use(chimiddleware.Timeout(60 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {
		// websocket authenticates through ?token=
		r.Get("/ws", wsHub.HandleWebSocket)

		r.Group(func(r chi.Router) {
			r.Use(jwtAuth.Middleware)

			r.Get("/timeslot/current", h.Timeslot.Current)

			// ──── Profile Routes ────
			r.Route("/profiles", func(r chi.Router) {
				r.Get("/", h.Profiles.Load)
				r.Post("/", h.Profiles.Create)
				r.Get("/{studentID}/current-session", h.Profiles.CurrentSession)
				r.Get("/{studentID}/sessions/{day}/{slot}", h.Profiles.GetSession)
				r.Put("/{studentID}/sessions/{day}/{slot}", h.Profiles.UpdateSession)
			})

			// ──── Bulk Schedule Routes ────
			r.Route("/schedules", func(r chi.Router) {
				r.Post("/preview", h.Schedules.Preview)
				r.Post("/apply", h.Schedules.Apply)
			})

			// ──── App Metadata Routes ────
			r.Route("/apps", func(r chi.Router) {
				r.Get("/", h.Apps.Catalog)
				r.Post("/lookup", h.Apps.Lookup)
				r.Get("/{bundleID}", h.Apps.Get)
			})

			// ──── Device Batch Routes ────
			r.Route("/devices", func(r chi.Router) {
				r.Use(batchLimiter.Middleware)
				r.Post("/{action}", h.Devices.Submit)
			})

			r.Get("/jobs/{id}", h.Jobs.Get)
		})
	})

	return r
}
