package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/jackc/pgx/v5/stdlib"

	"account-api/internal/auth"
	"account-api/internal/db"
	"account-api/internal/maintenance"
	"account-api/internal/notify"
	"account-api/internal/observability"
	"account-api/internal/profile"
)

type Options struct {
	LoadDotEnv    bool
	RunMigrations bool
}

type Runtime struct {
	Handler http.Handler
	Close   func() error
}

func Build(options Options) (*Runtime, error) {
	if options.LoadDotEnv {
		_ = godotenv.Load()
	}

	logger := observability.NewLogger()

	databaseURL, err := mustEnv("DATABASE_URL")
	if err != nil {
		return nil, err
	}
	rawKey, err := mustEnv("ACCESS_TOKEN_KEY")
	if err != nil {
		return nil, err
	}
	signingKey, err := auth.ParseAccessTokenKey(rawKey)
	if err != nil {
		return nil, fmt.Errorf("parse access token key: %w", err)
	}

	if err := observability.InitSentry(os.Getenv("SENTRY_DSN"), envOrDefault("APP_ENV", "development"), os.Getenv("APP_RELEASE")); err != nil {
		logger.Error("init_sentry_failed", map[string]any{"error": err.Error()})
	}

	database, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	database.SetMaxOpenConns(envIntOrDefault("DB_MAX_OPEN_CONNS", 10))
	database.SetMaxIdleConns(envIntOrDefault("DB_MAX_IDLE_CONNS", 5))
	database.SetConnMaxLifetime(envMinutesOrDefault("DB_CONN_MAX_LIFETIME_MINUTES", 30))
	database.SetConnMaxIdleTime(envMinutesOrDefault("DB_CONN_MAX_IDLE_TIME_MINUTES", 10))

	if err := database.Ping(); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if options.RunMigrations {
		if err := db.RunMigrations(database); err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	var (
		emailSender auth.EmailSender
		smsSender   auth.SMSSender
	)
	if apiKey := strings.TrimSpace(os.Getenv("BREVO_API_KEY")); apiKey != "" {
		brevo, err := notify.NewBrevo(apiKey, envOrDefault("EMAIL_SENDER", "noreply@example.com"), os.Getenv("SMS_SENDER"))
		if err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("init brevo: %w", err)
		}
		emailSender = brevo
		smsSender = brevo
	} else {
		logSender := notify.NewLogSender(logger)
		emailSender = logSender
		smsSender = logSender
	}

	refreshTTL := envDaysOrDefault("REFRESH_TOKEN_TTL_DAYS", 14)

	repo := auth.NewRepository(database)
	hasher := auth.NewPasswordHasher()
	codec := auth.NewTokenCodec(
		signingKey,
		envOrDefault("JWT_ISSUER", "account-api"),
		envOrDefault("JWT_AUDIENCE", "account-web"),
		envMinutesOrDefault("ACCESS_TOKEN_TTL_MINUTES", 15),
	)
	tokens := auth.NewRefreshTokenStore(repo, hasher, refreshTTL)
	mfa := auth.NewMfaChallenge(repo, smsSender, logger, envMinutesOrDefault("MFA_CODE_TTL_MINUTES", 5))
	service := auth.NewService(repo, tokens, mfa, codec, hasher, emailSender, logger)
	authHandler := auth.NewHandler(service, refreshTTL, EnvBoolOrDefault("COOKIE_SECURE", true))

	cleanupHandler := maintenance.NewCleanupHandler(
		repo,
		logger,
		os.Getenv("CRON_SECRET"),
		envIntOrDefault("AUTH_CLEANUP_BATCH_SIZE", 500),
	)

	profileRepo := profile.NewRepository(database)
	profileHandler := profile.NewHandler(profileRepo)

	loginLimiter := auth.NewLoginRateLimiter(
		envIntOrDefault("LOGIN_RATE_LIMIT_MAX", 10),
		envSecondsOrDefault("LOGIN_RATE_LIMIT_WINDOW_SECONDS", 60),
	)

	authenticated := func(next http.Handler) http.Handler {
		return auth.Authenticate(codec, repo, logger, next)
	}
	requireUser := func(next http.HandlerFunc) http.Handler {
		return authenticated(auth.RequireRoles()(next))
	}
	requireAdmin := func(next http.HandlerFunc) http.Handler {
		return authenticated(auth.RequireRoles(auth.RoleAdmin)(next))
	}

	mux := http.NewServeMux()
	mux.Handle("POST /api/users/login", loginLimiter.Middleware(http.HandlerFunc(authHandler.Login)))
	mux.HandleFunc("POST /api/users/refresh-token", authHandler.Refresh)
	mux.HandleFunc("POST /api/users/verify-mfa", authHandler.VerifyMfa)
	mux.HandleFunc("POST /api/users/register", authHandler.Register)
	mux.HandleFunc("POST /api/users/confirm_email", authHandler.ConfirmEmail)
	mux.HandleFunc("POST /api/users/forgot-password", authHandler.ForgotPassword)
	mux.HandleFunc("POST /api/users/reset-password", authHandler.ResetPassword)
	mux.Handle("POST /api/users/logout", requireUser(authHandler.Logout))
	mux.Handle("POST /api/users/enable-mfa", requireUser(authHandler.EnableMfa))
	mux.Handle("POST /api/users/disable-mfa", requireUser(authHandler.DisableMfa))
	mux.Handle("GET /api/users/info", requireUser(authHandler.Info))
	mux.Handle("GET /api/users/all", requireAdmin(authHandler.All))
	mux.Handle("GET /api/profile/me", requireUser(profileHandler.Me))
	mux.Handle("PUT /api/profile/me", requireUser(profileHandler.UpdateMe))
	mux.HandleFunc("GET /internal/maintenance/cleanup", cleanupHandler.Handle)
	mux.HandleFunc("POST /internal/maintenance/cleanup", cleanupHandler.Handle)
	mux.HandleFunc("GET /health", healthHandler(database))

	handler := observability.RecoverMiddleware(logger, observability.RequestLoggingMiddleware(logger, mux))

	return &Runtime{
		Handler: handler,
		Close: func() error {
			observability.FlushSentry()
			return database.Close()
		},
	}, nil
}

func healthHandler(database *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]any{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)}
		if err := database.PingContext(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body = map[string]any{"status": "degraded", "time": time.Now().UTC().Format(time.RFC3339)}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}

func mustEnv(name string) (string, error) {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return "", fmt.Errorf("missing required env: %s", name)
	}
	return value, nil
}

func envOrDefault(name, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}

func envIntOrDefault(name string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func envMinutesOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Minute
}

func envDaysOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * 24 * time.Hour
}

func envSecondsOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Second
}

func EnvBoolOrDefault(name string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if value == "" {
		return fallback
	}

	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
