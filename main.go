package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	clerk "github.com/clerk/clerk-sdk-go/v2"
	gorillaHandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"studyPathAPI/handlers"
	"studyPathAPI/internal/notification"
	"studyPathAPI/middleware"
	"studyPathAPI/services"

	_ "net/http/pprof"
)

var (
	dbPool              *pgxpool.Pool
	userService         *services.UserService
	challengeService    *services.ChallengeService
	todayService        *services.TodayService
	goalService         *services.GoalService
	notificationService *services.NotificationService
	adminService        *services.AdminService
	dispatcher          *services.NotificationDispatcher
	fcmService          *notification.FCMService
)

func init() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	clerkSecretKey := os.Getenv("CLERK_SECRET_KEY")
	if clerkSecretKey == "" {
		log.Fatal("CLERK_SECRET_KEY environment variable is not set")
	}
	clerk.SetKey(clerkSecretKey)
	log.Println("Clerk initialized successfully")

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL environment variable is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		log.Fatal("Failed to parse database URL:", err)
	}

	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	dbPool, err = pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		log.Fatal("Failed to create connection pool:", err)
	}

	if err := dbPool.Ping(ctx); err != nil {
		log.Fatal("Failed to ping database:", err)
	}
	log.Println("Successfully connected to Postgres")

	userService = services.NewUserService(dbPool)
	challengeService = services.NewChallengeService(dbPool)
	todayService = services.NewTodayService(dbPool, challengeService)
	goalService = services.NewGoalService(dbPool)
	notificationService = services.NewNotificationService(dbPool)
	adminService = services.NewAdminService(dbPool)

	dispatcher = services.NewNotificationDispatcher(notificationService)
	notificationService.SetDispatcher(dispatcher)

	fcmService, err = notification.NewFCMService("./serviceAccountKey.json")
	if err != nil {
		log.Printf("Warning: Could not initialize FCM: %v", err)
	} else {
		dispatcher.SetPushProvider(fcmService)
		log.Println("FCM Push Provider initialized successfully")
	}

	middleware.InitPrometheus()
}

func main() {
	defer func() {
		dispatcher.Stop()
		log.Println("Closing database connection pool...")
		dbPool.Close()
	}()

	studentHandler := handlers.NewStudentHandler(todayService, challengeService, userService)
	studentHandler.SetNotifier(notificationService)
	challengeHandler := handlers.NewChallengeHandler(challengeService, userService)
	challengeHandler.SetNotifier(notificationService)
	goalHandler := handlers.NewGoalHandler(goalService, userService)
	notificationHandler := handlers.NewNotificationHandler(notificationService, userService)
	adminHandler := handlers.NewAdminHandler(adminService)
	webhookHandler := handlers.NewWebhookHandler(userService)

	r := mux.NewRouter()

	rateLimiter := middleware.NewRateLimiter(5, 30)
	r.Use(rateLimiter.Middleware)
	r.Use(middleware.MonitorMiddleware)

	r.Handle("/metrics", middleware.BasicAuthMiddleware(promhttp.Handler()))
	r.PathPrefix("/debug/pprof/").Handler(middleware.PprofSecurityMiddleware(http.DefaultServeMux))

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := dbPool.Ping(ctx); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status": "unhealthy", "error": "database connection failed"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "healthy", "service": "studypath-api"}`))
	}).Methods("GET")

	r.HandleFunc("/webhooks/clerk", webhookHandler.HandleClerkWebhook).Methods("POST")

	api := r.PathPrefix("/api/v1").Subrouter()

	// -------------------------------------------------------------------------
	// PROTECTED ROUTES (REQUIRE AUTH HEADER)
	// -------------------------------------------------------------------------
	protected := api.PathPrefix("").Subrouter()
	protected.Use(middleware.ClerkAuthMiddleware)

	protected.HandleFunc("/student/today", studentHandler.GetToday).Methods("GET")
	protected.HandleFunc("/student/today/add-slot", studentHandler.AddSecondSlot).Methods("POST")
	protected.HandleFunc("/student/today/swap", studentHandler.SwapChallenge).Methods("POST")
	protected.HandleFunc("/student/today/snooze", studentHandler.SnoozeChallenge).Methods("POST")
	protected.HandleFunc("/student/challenges/{id}/complete", studentHandler.CompleteChallenge).Methods("POST")

	protected.HandleFunc("/challenges/active", challengeHandler.GetActiveChallenge).Methods("GET")
	protected.HandleFunc("/challenges/{id}/chain", challengeHandler.PreviewChain).Methods("GET")
	protected.HandleFunc("/objectives/{id}/complete", challengeHandler.CompleteObjective).Methods("POST")

	protected.HandleFunc("/goals/active", goalHandler.GetActiveGoal).Methods("GET")
	protected.HandleFunc("/goals/{id}/snooze", goalHandler.SnoozeGoal).Methods("POST")
	protected.HandleFunc("/goals/steps/{id}/complete", goalHandler.CompleteStep).Methods("POST")

	protected.HandleFunc("/notifications", notificationHandler.GetNotifications).Methods("GET")
	protected.HandleFunc("/notifications/generate", notificationHandler.GenerateNotifications).Methods("POST")
	protected.HandleFunc("/notifications/{id}/read", notificationHandler.MarkAsRead).Methods("PUT")
	protected.HandleFunc("/notifications/{id}/dismiss", notificationHandler.Dismiss).Methods("PUT")
	protected.HandleFunc("/notifications/devices", notificationHandler.RegisterDevice).Methods("POST")

	// -------------------------------------------------------------------------
	// ADMIN ROUTES (AUTH + ADMIN ROLE)
	// -------------------------------------------------------------------------
	adminRouter := protected.PathPrefix("/admin").Subrouter()
	adminRouter.Use(middleware.RequireAdmin(userService))

	adminRouter.HandleFunc("/challenges", adminHandler.ListChallenges).Methods("GET")
	adminRouter.HandleFunc("/challenges", adminHandler.CreateChallenge).Methods("POST")
	adminRouter.HandleFunc("/challenges/{id}", adminHandler.GetChallenge).Methods("GET")
	adminRouter.HandleFunc("/challenges/{id}", adminHandler.UpdateChallenge).Methods("PUT")
	adminRouter.HandleFunc("/challenges/{id}", adminHandler.DeleteChallenge).Methods("DELETE")

	adminRouter.HandleFunc("/objectives", adminHandler.CreateObjective).Methods("POST")
	adminRouter.HandleFunc("/objectives/{id}", adminHandler.UpdateObjective).Methods("PUT")
	adminRouter.HandleFunc("/objectives/{id}", adminHandler.DeleteObjective).Methods("DELETE")

	adminRouter.HandleFunc("/challenge-links", adminHandler.CreateChallengeLink).Methods("POST")
	adminRouter.HandleFunc("/challenge-links/{id}", adminHandler.DeleteChallengeLink).Methods("DELETE")

	adminRouter.HandleFunc("/goals", adminHandler.ListGoals).Methods("GET")
	adminRouter.HandleFunc("/goals", adminHandler.CreateGoal).Methods("POST")
	adminRouter.HandleFunc("/goals/{id}", adminHandler.UpdateGoal).Methods("PUT")
	adminRouter.HandleFunc("/goals/{id}", adminHandler.DeleteGoal).Methods("DELETE")

	adminRouter.HandleFunc("/goal-steps", adminHandler.CreateGoalStep).Methods("POST")
	adminRouter.HandleFunc("/goal-steps/{id}", adminHandler.UpdateGoalStep).Methods("PUT")
	adminRouter.HandleFunc("/goal-steps/{id}", adminHandler.DeleteGoalStep).Methods("DELETE")

	adminRouter.HandleFunc("/goal-links", adminHandler.CreateGoalLink).Methods("POST")
	adminRouter.HandleFunc("/goal-links/{id}", adminHandler.DeleteGoalLink).Methods("DELETE")

	corsHandler := gorillaHandlers.CORS(
		gorillaHandlers.AllowedOrigins([]string{"*"}),
		gorillaHandlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		gorillaHandlers.AllowedHeaders([]string{"Content-Type", "Authorization", "X-Pprof-Secret"}),
		gorillaHandlers.ExposedHeaders([]string{"Content-Length"}),
		gorillaHandlers.AllowCredentials(),
	)

	port := os.Getenv("PORT")
	if port == "" {
		port = "3333"
	}
	port = ":" + port

	server := http.Server{
		Addr:         port,
		Handler:      corsHandler(r),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Printf("Starting server on port %s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Error starting server:", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)

	sig := <-sigChan
	log.Println("Got signal:", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Server shutdown complete")
}
