package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/uyenet/membership-backend/monitoring"
	"github.com/uyenet/membership-backend/shared/utils"
	v1 "github.com/uyenet/membership-backend/v1"
	v1handlers "github.com/uyenet/membership-backend/v1/handlers"
	v1middleware "github.com/uyenet/membership-backend/v1/middleware"
	v1services "github.com/uyenet/membership-backend/v1/services"
)

func main() {
	// Load .env file if it exists (optional - fails silently if not found)
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{AddSource: true}))
	slog.SetDefault(logger)

	slog.Info("Starting Membership Backend initialization")

	// Initialize GORM database connection
	dbConfig := v1.NewDatabaseConfig()
	gormDB, err := v1.ConnectGormDB(dbConfig)
	if err != nil {
		slog.Error("Failed to connect to GORM database", "error", err)
		os.Exit(1)
	}

	// Initialize the roster client. ROSTER_MODE=mock runs the engine without
	// an external roster; every run degrades to database-only maintenance.
	var roster v1services.RosterClient
	if utils.GetEnvOrDefault("ROSTER_MODE", "live") == "mock" {
		slog.Warn("Roster client running in mock mode; sync runs will be database-only")
		roster = v1services.NewOfflineRosterClient()
	} else {
		rosterBaseURL := os.Getenv("ROSTER_SERVICE_URL")
		if rosterBaseURL == "" {
			slog.Error("ROSTER_SERVICE_URL environment variable is required (or set ROSTER_MODE=mock)")
			os.Exit(1)
		}
		roster = v1services.NewSheetRosterClient(v1services.RosterConfig{
			BaseURL:      rosterBaseURL,
			SheetName:    utils.GetEnvOrDefault("ROSTER_SHEET_NAME", "uyeler"),
			TokenURL:     os.Getenv("ROSTER_TOKEN_URL"),
			ClientID:     os.Getenv("ROSTER_CLIENT_ID"),
			ClientSecret: os.Getenv("ROSTER_CLIENT_SECRET"),
			Scopes:       strings.Fields(os.Getenv("ROSTER_SCOPES")),
			Timeout:      10 * time.Second,
		})
	}

	// Initialize metrics
	metrics, err := monitoring.NewSyncMetrics()
	if err != nil {
		slog.Error("Failed to initialize metrics", "error", err)
		os.Exit(1)
	}

	// Initialize V1 handlers
	v1Handler := v1handlers.NewV1Handler(gormDB, roster, metrics)

	// Create a mux for API routes
	apiMux := http.NewServeMux()
	v1Handler.SetupV1Routes(apiMux) // All /api/v1/... routes go here

	// Setup middleware chain
	corsMiddleware := v1middleware.NewCORSMiddleware()

	// Setup JWT Authentication middleware
	idpBaseURL := os.Getenv("IDP_BASE_URL")
	if idpBaseURL == "" {
		slog.Error("IDP_BASE_URL environment variable is required")
		os.Exit(1)
	}

	// Support separate client IDs for the member site and the staff portal
	memberSiteClientID := os.Getenv("IDP_MEMBER_SITE_CLIENT_ID")
	staffPortalClientID := os.Getenv("IDP_STAFF_PORTAL_CLIENT_ID")

	if memberSiteClientID == "" && staffPortalClientID == "" {
		slog.Error("At least one of IDP_MEMBER_SITE_CLIENT_ID or IDP_STAFF_PORTAL_CLIENT_ID must be set")
		os.Exit(1)
	}

	var validClientIDs []string
	if memberSiteClientID != "" {
		validClientIDs = append(validClientIDs, memberSiteClientID)
	}
	if staffPortalClientID != "" {
		validClientIDs = append(validClientIDs, staffPortalClientID)
	}

	jwtConfig := v1middleware.JWTAuthConfig{
		JWKSURL:        utils.GetEnvOrDefault("IDP_JWKS_URL", idpBaseURL+"/oauth2/jwks"),
		ExpectedIssuer: utils.GetEnvOrDefault("IDP_TOKEN_URL", idpBaseURL+"/oauth2/token"),
		ValidClientIDs: validClientIDs,
		OrgName:        utils.GetEnvOrDefault("IDP_ORG_NAME", ""),
		Timeout:        10 * time.Second,
	}

	if err := jwtConfig.Validate(); err != nil {
		slog.Error("Invalid JWT configuration", "error", err)
		os.Exit(1)
	}

	jwtAuthMiddleware := v1middleware.NewJWTAuthMiddleware(jwtConfig)

	// Apply middleware chain (CORS -> JWT Auth) to the API mux ONLY
	protectedAPIHandler := corsMiddleware(
		jwtAuthMiddleware.AuthenticateJWT(apiMux),
	)

	// Create the MAIN (top-level) mux for all incoming traffic
	topLevelMux := http.NewServeMux()

	// Public routes bypass the middleware chain
	topLevelMux.Handle("/health", utils.PanicRecoveryMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		type DBHealth struct {
			Status   string `json:"status"`
			Error    string `json:"error,omitempty"`
			Database string `json:"database,omitempty"`
		}
		type HealthStatus struct {
			Status   string   `json:"status"`
			Service  string   `json:"service"`
			Database DBHealth `json:"database"`
		}

		status := HealthStatus{
			Status:   "healthy",
			Service:  "membership-backend",
			Database: DBHealth{Status: "unknown"},
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		sqlDB, err := gormDB.DB()
		if err != nil {
			status.Database = DBHealth{Status: "unhealthy", Error: fmt.Sprintf("failed to get sql.DB: %v", err)}
			status.Status = "unhealthy"
		} else if err := sqlDB.PingContext(ctx); err != nil {
			status.Database = DBHealth{Status: "unhealthy", Error: err.Error()}
			status.Status = "unhealthy"
		} else {
			status.Database = DBHealth{Status: "healthy", Database: dbConfig.Database}
		}

		statusCode := http.StatusOK
		if status.Status != "healthy" {
			statusCode = http.StatusServiceUnavailable
		}

		utils.RespondWithJSON(w, statusCode, status)
	})))

	topLevelMux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{}))

	// All traffic to /api/v1/ passes through the middleware chain
	topLevelMux.Handle("/api/v1/", protectedAPIHandler)

	// Internal routes for trusted services (no authentication)
	topLevelMux.Handle("/internal/api/v1/", http.StripPrefix("/internal", apiMux))

	// Start server
	port := os.Getenv("PORT")
	if port == "" {
		port = "3000"
	}

	addr := ":" + port
	server := &http.Server{
		Addr:         addr,
		Handler:      topLevelMux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		slog.Info("Membership Backend starting", "port", port, "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Failed to start Membership Backend", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down Membership Backend...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	// Gracefully close database connection
	if sqlDB, err := gormDB.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			slog.Error("Failed to close database connection", "error", err)
		}
	}

	slog.Info("Membership Backend exited")
}
