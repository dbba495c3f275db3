package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/medtrack/medtrack/internal/config"
	"github.com/medtrack/medtrack/internal/domain/activity"
	"github.com/medtrack/medtrack/internal/domain/calllog"
	"github.com/medtrack/medtrack/internal/domain/cases"
	"github.com/medtrack/medtrack/internal/domain/dashboard"
	"github.com/medtrack/medtrack/internal/domain/patient"
	"github.com/medtrack/medtrack/internal/domain/settings"
	"github.com/medtrack/medtrack/internal/platform/auth"
	"github.com/medtrack/medtrack/internal/platform/db"
	"github.com/medtrack/medtrack/internal/platform/middleware"
)

const version = "0.1.0"

// app holds the wired services shared by the HTTP server and the CLI commands.
type app struct {
	cfg    *config.Config
	pool   *pgxpool.Pool
	logger zerolog.Logger
	clock  func() time.Time

	patients *patient.Service
	activity *activity.Service
	cases    *cases.Service
	calls    *calllog.Service
	settings *settings.Service
	board    *dashboard.Builder
}

func newApp(cfg *config.Config, pool *pgxpool.Pool, logger zerolog.Logger) (*app, error) {
	policy, err := cfg.Policy()
	if err != nil {
		return nil, err
	}

	tx := db.NewPGTransactor(pool)
	a := &app{cfg: cfg, pool: pool, logger: logger, clock: cfg.Clock()}

	a.patients = patient.NewService(patient.NewRepoPG(pool), logger)
	a.activity = activity.NewService(activity.NewRepoPG(pool), logger)
	a.cases = cases.NewService(cases.NewCaseRepoPG(pool), cases.NewTaskRepoPG(pool), tx,
		a.activity, a.patients, policy, logger)
	a.calls = calllog.NewService(calllog.NewRepoPG(pool), a.cases, a.activity, tx, logger)
	a.settings = settings.NewService(settings.NewRepoPG(pool), logger)
	a.board = dashboard.NewBuilder(a.cases, a.patients, a.calls, logger)

	logger.Info().
		Int("red_threshold_days", policy.RedThresholdDays).
		Int("lookahead_days", policy.LookaheadDays).
		Int("surveillance_interval_days", policy.SurveillanceIntervalDays).
		Int("anc_milestones", len(policy.ANCMilestones)).
		Msg("scheduling policy loaded")
	return a, nil
}

func (a *app) authMiddleware() (echo.MiddlewareFunc, error) {
	if a.cfg.ResolvedAuthMode() == "development" {
		a.logger.Warn().Msg("development auth enabled: requests are trusted without a token")
		return auth.DevAuthMiddleware(), nil
	}
	key, err := resolveSigningKey(a.cfg.AuthSignKey)
	if err != nil {
		return nil, err
	}
	return auth.JWTMiddleware(auth.JWTConfig{
		Issuer:     a.cfg.AuthIssuer,
		Audience:   a.cfg.AuthAudience,
		JWKSURL:    a.cfg.AuthJWKSURL,
		SigningKey: key,
	}), nil
}

func (a *app) router() (*echo.Echo, error) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(a.logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(a.logger))
	if a.cfg.RequestTimeout > 0 {
		e.Use(middleware.RequestTimeout(a.cfg.RequestTimeout))
	}
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: a.cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", auth.DevUserHeader, auth.DevRolesHeader},
	}))

	authMW, err := a.authMiddleware()
	if err != nil {
		return nil, err
	}
	e.Use(authMW)
	e.Use(auth.ActorMiddleware(a.settings))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/db", db.HealthHandler(a.pool))

	apiV1 := e.Group("/api/v1")
	patient.NewHandler(a.patients).RegisterRoutes(apiV1)
	cases.NewHandler(a.cases, a.clock).RegisterRoutes(apiV1)
	calllog.NewHandler(a.calls, a.clock).RegisterRoutes(apiV1)
	settings.NewHandler(a.settings).RegisterRoutes(apiV1)
	dashboard.NewHandler(a.board, a.clock).RegisterRoutes(apiV1)
	return e, nil
}

// resolveSigningKey decodes AUTH_SIGNING_KEY, which is hex encoded. An empty
// value means tokens are verified against the JWKS endpoint instead.
func resolveSigningKey(value string) ([]byte, error) {
	if value == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("invalid AUTH_SIGNING_KEY hex value: %w", err)
	}
	if len(key) < 32 {
		return nil, fmt.Errorf("AUTH_SIGNING_KEY must be at least 32 bytes, got %d", len(key))
	}
	return key, nil
}

func openPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	return db.NewPool(ctx, db.PoolConfig{
		URL:             cfg.DatabaseURL,
		MaxConns:        cfg.DBMaxConns,
		MinConns:        cfg.DBMinConns,
		ApplicationName: "medtrack",
	})
}
