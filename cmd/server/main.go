package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"classdeck-backend/internal/config"
	"classdeck-backend/internal/database"
	"classdeck-backend/internal/handlers"
	"classdeck-backend/internal/mdm"
	"classdeck-backend/internal/middleware"
	"classdeck-backend/internal/repository"
	"classdeck-backend/internal/router"
	"classdeck-backend/internal/services"
	"classdeck-backend/internal/websocket"
	"classdeck-backend/internal/worker"
)

func main() {
	log.Println("🚀 Starting ClassDeck Backend...")

	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()
	log.Println("✓ Environment variables loaded")

	// ──── Step 2: Initialize PostgreSQL Connection Pool ────
	pool, err := database.NewPostgresPool(context.Background(), cfg.Database, cfg.DBMaxConns)
	if err != nil {
		log.Fatalf("✗ PostgreSQL connection failed: %v", err)
	}
	defer pool.Close()
	log.Println("✓ PostgreSQL connected")

	// ──── Step 3: Initialize Redis Clients ────
	redisClients, err := database.NewRedisClients(context.Background(), cfg.RedisURL)
	if err != nil {
		log.Fatalf("✗ Redis connection failed: %v", err)
	}
	defer redisClients.Close()
	log.Println("✓ Redis connected")

	// ──── Step 4: Run Database Migrations ────
	if err := database.RunMigrations(context.Background(), pool, cfg.MigrationsDir); err != nil {
		log.Fatalf("✗ Database migration failed: %v", err)
	}
	log.Println("✓ Database migrations applied")

	// ──── Initialize Repositories ────
	profileRepo := repository.NewProfileRepo(pool)
	jobRepo := repository.NewJobRepo(pool)

	// ──── Step 5: Initialize MDM Client ────
	mdmClient := mdm.NewClient(mdm.Config{
		BaseURL:           cfg.MDMBaseURL,
		NetworkID:         cfg.MDMNetworkID,
		APIKey:            cfg.MDMAPIKey,
		RequestsPerSecond: cfg.MDMRequestsPerSecond,
		Timeout:           cfg.MDMTimeout,
	})
	log.Printf("✓ MDM client initialized (%d req/s)", cfg.MDMRequestsPerSecond)

	// ──── Initialize Services ────
	jwtAuth := middleware.NewJWTAuth(cfg.JWTSecret)
	clock := services.NewClock(cfg.SchoolTimezone)
	screenCaches := services.NewScreenCaches(profileRepo, mdmClient, cfg.ScreenCacheTTL)
	screenCaches.Start()
	publisher := services.NewUpdatePublisher(redisClients.Queue)
	queue := worker.NewQueue(redisClients.Queue)

	// ──── Initialize Handlers ────
	h := router.Handlers{
		Profiles:  handlers.NewProfileHandler(screenCaches, clock),
		Schedules: handlers.NewScheduleHandler(screenCaches),
		Apps:      handlers.NewAppHandler(screenCaches, mdmClient),
		Devices:   handlers.NewDeviceHandler(jobRepo, queue, clock),
		Jobs:      handlers.NewJobHandler(jobRepo),
		Timeslot:  handlers.NewTimeslotHandler(clock),
	}

	// ──── Step 6: Start Device Worker Pool ────
	workerPool := worker.NewPool(
		redisClients.Queue,
		mdmClient,
		jobRepo,
		publisher,
		cfg.LoginAppBundleID,
		cfg.StatusSettleDelay,
		cfg.DeviceWorkers,
	)
	workerPool.Start()
	log.Printf("✓ Worker pool started (%d goroutines)", cfg.DeviceWorkers)

	// ──── Step 7: Start WebSocket Hub ────
	wsHub := websocket.NewHub(redisClients.PubSub, jwtAuth)
	log.Println("✓ WebSocket hub started")

	// ──── Step 8: Start HTTP Server ────
	batchLimiter := middleware.NewRateLimiter(cfg.BatchRateLimit, time.Minute)
	r := router.New(jwtAuth, h, batchLimiter, wsHub, cfg.FrontendURL)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down...")
		workerPool.Stop()
		screenCaches.Stop()
		batchLimiter.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	log.Printf("✓ ClassDeck Backend ready on http://localhost:%s", cfg.Port)
	log.Printf("  API: http://localhost:%s/api/v1", cfg.Port)
	log.Printf("  WS:  ws://localhost:%s/api/v1/ws", cfg.Port)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
}
