package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/malwarebo/reserva/api"
	"github.com/malwarebo/reserva/cache"
	"github.com/malwarebo/reserva/collab"
	"github.com/malwarebo/reserva/config"
	"github.com/malwarebo/reserva/db"
	"github.com/malwarebo/reserva/middleware"
	"github.com/malwarebo/reserva/resilience"
	"github.com/malwarebo/reserva/scheduler"
	"github.com/malwarebo/reserva/security"
	"github.com/malwarebo/reserva/services"
	"github.com/malwarebo/reserva/stores"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorPurple = "\033[35m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

func printBanner() {
	fmt.Printf("%s%s", colorCyan, colorBold)
	fmt.Println("╔══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                                                              ║")
	fmt.Println("║  📅 Reserva Facility Booking System                          ║")
	fmt.Println("║                                                              ║")
	fmt.Println("║  Safe mutations: idempotent, versioned, undoable             ║")
	fmt.Println("║                                                              ║")
	fmt.Println("╚══════════════════════════════════════════════════════════════╝")
	fmt.Printf("%s", colorReset)
}

func printStep(step, message string) {
	fmt.Printf("%s[%s]%s %s%s%s\n", colorBlue, step, colorReset, colorBold, message, colorReset)
}

func printSuccess(message string) {
	fmt.Printf("%s✓%s %s\n", colorGreen, colorReset, message)
}

func printWarning(message string) {
	fmt.Printf("%s⚠%s %s\n", colorYellow, colorReset, message)
}

func printError(message string) {
	fmt.Printf("%s✗%s %s\n", colorRed, colorReset, message)
}

func printInfo(message string) {
	fmt.Printf("%sℹ%s %s\n", colorCyan, colorReset, message)
}

func main() {
	printBanner()
	fmt.Println()

	printStep("1/9", "Loading configuration...")
	cfg, err := config.LoadConfig()
	if err != nil {
		printError(fmt.Sprintf("Failed to load configuration: %v", err))
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		printError(fmt.Sprintf("Configuration validation failed: %v", err))
		os.Exit(1)
	}
	printSuccess("Configuration loaded and validated")

	printStep("2/9", "Connecting to database...")
	database, err := db.Open(cfg.GetDatabaseURL(), db.PoolConfig{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.MaxLifetime,
		ConnMaxIdleTime: cfg.Database.MaxIdleTime,
	})
	if err != nil {
		printError(fmt.Sprintf("Failed to connect to database: %v", err))
		os.Exit(1)
	}
	defer db.Close(database)
	printSuccess(fmt.Sprintf("Connected to PostgreSQL at %s:%d", cfg.Database.Host, cfg.Database.Port))

	printStep("3/9", "Running migrations...")
	if err := db.CreateMigrator(database).Up(); err != nil {
		printError(fmt.Sprintf("Failed to run migrations: %v", err))
		os.Exit(1)
	}
	printSuccess("Schema is up to date")

	printStep("4/9", "Connecting to Redis...")
	redisCache, err := cache.CreateRedisCache(cache.RedisConfig{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		TTL:      cfg.Redis.TTL,
	})
	if err != nil {
		printWarning(fmt.Sprintf("Failed to connect to Redis: %v (continuing without cache)", err))
		redisCache = nil
	} else {
		defer redisCache.Close()
		printSuccess(fmt.Sprintf("Connected to Redis at %s:%d", cfg.Redis.Host, cfg.Redis.Port))
	}

	printStep("5/9", "Initializing resilience layer...")
	breakers := resilience.CreateBreakerRegistry(resilience.BreakerRegistryConfig{
		Threshold:    cfg.Resilience.BreakerThreshold,
		ResetTimeout: cfg.Resilience.BreakerResetTimeout,
	})
	envelope := resilience.CreateEnvelope()
	undoScheduler := scheduler.CreateUndoScheduler(scheduler.RealClock())
	printSuccess("Circuit breakers and undo scheduler ready")

	printStep("6/9", "Initializing stores...")
	bookingStore := stores.CreateBookingStore(database)
	resourceStore := stores.CreateResourceStore(database)
	idempotencyStore := stores.CreateIdempotencyStore(database, cfg.Booking.IdempotencyTTL)
	sessionStore := stores.CreateSessionStore(database)
	printSuccess("Stores initialized")

	printStep("7/9", "Initializing security components...")
	jwtManager := security.CreateJWTManager(cfg.Security.JWTSecret, cfg.Security.JWTIssuer, cfg.Security.JWTAudience)
	rotationManager := security.CreateRotationManager(sessionStore, jwtManager, cfg.Security.SessionTTL)
	rateLimiter := security.CreateRateLimiter(security.RateLimitConfig{
		RequestsPerSecond: cfg.Security.RateLimitRPS,
		Burst:             cfg.Security.RateLimitBurst,
	})
	defer rateLimiter.Close()
	printSuccess("Session rotation and rate limiting ready")

	printStep("8/9", "Initializing services...")
	depositClient := collab.CreateDepositClient(cfg.Stripe.Secret)
	calendarClient := collab.CreateCalendarClient(cfg.Collaborators.CalendarURL, os.Getenv("CALENDAR_API_KEY"))
	chatNotifier := collab.CreateChatNotifier(cfg.Collaborators.ChatURL)
	trackerClient := collab.CreateTrackerClient(cfg.Collaborators.TrackerURL, os.Getenv("TRACKER_API_TOKEN"), "reserva")

	bookingService := services.NewBookingService(
		bookingStore,
		idempotencyStore,
		cache.CreateBookingCache(redisCache),
		depositClient,
		calendarClient,
		chatNotifier,
		trackerClient,
		envelope,
		breakers,
		undoScheduler,
		services.BookingServiceConfig{
			UndoWindow:          cfg.Booking.UndoWindow,
			CollaboratorTimeout: cfg.Resilience.CollaboratorTimeout,
			RetryAttempts:       cfg.Resilience.RetryAttempts,
			BackoffBase:         cfg.Resilience.BackoffBase,
			BackoffCap:          cfg.Resilience.BackoffCap,
		},
	)
	resourceService := services.NewResourceService(resourceStore)
	printSuccess("Services initialized")

	printStep("9/9", "Setting up HTTP server...")
	bookingHandler := api.CreateBookingHandler(bookingService)
	resourceHandler := api.CreateResourceHandler(resourceService)
	sessionHandler := api.CreateSessionHandler(rotationManager)
	healthHandler := api.CreateHealthHandler(breakers)

	router := mux.NewRouter()

	authMiddleware := middleware.CreateAuthMiddleware(jwtManager, rateLimiter)

	router.Use(middleware.RecoveryMiddleware)
	router.Use(middleware.LoggingMiddleware)
	router.Use(middleware.CORSMiddleware)

	apiRouter := router.PathPrefix("/api/v1").Subrouter()
	apiRouter.Use(authMiddleware.RateLimitMiddleware)
	apiRouter.Use(authMiddleware.JWTMiddleware)

	apiRouter.HandleFunc("/health", healthHandler.HandleHealth).Methods("GET")

	apiRouter.HandleFunc("/sessions", sessionHandler.HandleCreate).Methods("POST")
	apiRouter.HandleFunc("/sessions/refresh", sessionHandler.HandleRefresh).Methods("POST")
	apiRouter.HandleFunc("/sessions/logout-all", sessionHandler.HandleLogoutAll).Methods("POST")

	apiRouter.HandleFunc("/bookings", bookingHandler.HandleCreate).Methods("POST")
	apiRouter.HandleFunc("/bookings", bookingHandler.HandleList).Methods("GET")
	apiRouter.HandleFunc("/bookings/{id}", bookingHandler.HandleGet).Methods("GET")
	apiRouter.HandleFunc("/bookings/{id}", bookingHandler.HandleUpdate).Methods("PATCH")
	apiRouter.HandleFunc("/bookings/{id}", bookingHandler.HandleArchive).Methods("DELETE")
	apiRouter.HandleFunc("/bookings/{id}/restore", bookingHandler.HandleRestore).Methods("POST")

	apiRouter.HandleFunc("/resources", resourceHandler.HandleCreate).Methods("POST")
	apiRouter.HandleFunc("/resources/{id}", resourceHandler.HandleGet).Methods("GET")
	apiRouter.HandleFunc("/resources/{id}", resourceHandler.HandleUpdate).Methods("PATCH")

	server := &http.Server{
		Addr:           ":" + cfg.Server.Port,
		Handler:        router,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}
	printSuccess("HTTP server configured")

	fmt.Println()
	fmt.Printf("%s%s🎉 Reserva is ready!%s\n", colorGreen, colorBold, colorReset)
	fmt.Println()
	fmt.Printf("%s%sAPI Endpoints:%s\n", colorPurple, colorBold, colorReset)
	fmt.Printf("  %s•%s Health:   %shttp://localhost:%s/api/v1/health%s\n", colorCyan, colorReset, colorYellow, cfg.Server.Port, colorReset)
	fmt.Printf("  %s•%s Sessions: %shttp://localhost:%s/api/v1/sessions%s\n", colorCyan, colorReset, colorYellow, cfg.Server.Port, colorReset)
	fmt.Printf("  %s•%s Bookings: %shttp://localhost:%s/api/v1/bookings%s\n", colorCyan, colorReset, colorYellow, cfg.Server.Port, colorReset)
	fmt.Println()
	fmt.Printf("%s%sEnvironment:%s %s%s%s\n", colorPurple, colorBold, colorReset, colorYellow, cfg.Environment, colorReset)
	fmt.Printf("%s%sUndo window:%s %s%s%s\n", colorPurple, colorBold, colorReset, colorYellow, cfg.Booking.UndoWindow, colorReset)
	fmt.Println()
	fmt.Printf("%s%sPress Ctrl+C to stop the server%s\n", colorYellow, colorBold, colorReset)
	fmt.Println()

	go func() {
		printInfo(fmt.Sprintf("Starting HTTP server on port %s...", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			printError(fmt.Sprintf("Server failed to start: %v", err))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	fmt.Println()
	printWarning("Shutting down Reserva server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		printError(fmt.Sprintf("Server forced to shutdown: %v", err))
		os.Exit(1)
	}

	undoScheduler.Close()

	printSuccess("Reserva server stopped gracefully")
}
