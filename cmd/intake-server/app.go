package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/swasthyaflow/intake/internal/config"
	"github.com/swasthyaflow/intake/internal/domain/queue"
	"github.com/swasthyaflow/intake/internal/domain/routing"
	"github.com/swasthyaflow/intake/internal/domain/triage"
	"github.com/swasthyaflow/intake/internal/platform/cache"
	"github.com/swasthyaflow/intake/internal/platform/db"
	"github.com/swasthyaflow/intake/internal/platform/health"
	"github.com/swasthyaflow/intake/internal/platform/middleware"
	"github.com/swasthyaflow/intake/internal/platform/ml"
	"github.com/swasthyaflow/intake/internal/platform/telemetry"
	"github.com/swasthyaflow/intake/internal/platform/websocket"
)

const (
	requestTimeout = 10 * time.Second
	healthTimeout  = 2 * time.Second
	maxBodySize    = "1M"
)

// app holds the wired services of one server process.
type app struct {
	cfg    *config.Config
	log    zerolog.Logger
	pool   *pgxpool.Pool
	redis  *redis.Client
	checks []health.Check

	runtime *ml.Runtime
	rules   *triage.RuleEngine
	routing *routing.Service
	queue   *queue.Manager
	triage  *triage.Service
	board   *websocket.Hub

	metrics *telemetry.Registry
	http    *telemetry.HTTPMetrics
}

// newApp wires every component from cfg. Postgres and Redis are used only
// when their URLs are configured; otherwise the facility file and the
// in-process load store serve. A malformed rule table or facility file is
// returned as an error.
func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	a := &app{cfg: cfg, log: logger}

	rules, err := triage.LoadRules(cfg.RulesPath)
	if err != nil {
		return nil, err
	}
	a.rules = triage.NewRuleEngine(rules)
	logger.Info().Int("rules", len(rules)).Str("path", cfg.RulesPath).Msg("rule table loaded")

	dir, err := a.directory(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	loads, err := a.loadStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	thresholds := routing.Thresholds{High: cfg.HighLoadThreshold, Critical: cfg.CriticalLoadThreshold}
	router := routing.NewRouter(loads, routing.RankOptions{
		MaxDistanceKm: cfg.MaxDistanceKm,
		MaxResults:    cfg.MaxRoutingResults,
	})
	a.routing = routing.NewService(dir, loads, router, thresholds, logger)

	loc, err := cfg.Location()
	if err != nil {
		a.Close()
		return nil, err
	}
	a.queue = queue.NewManager(queue.Config{MinutesPerPatient: cfg.MinutesPerPatient, Location: loc}, logger)
	a.board = websocket.NewHub(logger)
	a.metrics = telemetry.NewRegistry()
	a.http = telemetry.NewHTTPMetrics(a.metrics)
	queueEvents := a.metrics.Counter("intake_queue_events_total",
		"Queue token events by type and department.", "type", "department")
	a.queue.SetNotifier(notifiers{
		boardNotifier{hub: a.board},
		counterNotifier{counter: queueEvents},
	})

	a.runtime = ml.NewRuntime(ml.RuntimeConfig{
		ModelPath:          cfg.ModelPath,
		FallbackConfidence: cfg.FallbackConfidence,
		Explainer: ml.ExplainerConfig{
			TopK:            cfg.ExplainTopK,
			Significance:    cfg.ExplainSignificance,
			DetailThreshold: cfg.ExplainDetailThreshold,
		},
	}, logger)

	a.triage = triage.NewService(a.rules, a.runtime, triage.NewCombiner(cfg.RuleOverrideConfidence),
		a.routing, a.queue, logger)
	decisions := a.metrics.Counter("intake_triage_decisions_total",
		"Triage decisions by risk tier and decision source.", "risk", "source", "rule_fired")
	a.triage.OnDecision(func(d triage.Decision) {
		fired := "false"
		if d.RuleTriggered != nil {
			fired = "true"
		}
		decisions.Inc(string(d.Risk), d.Source, fired)
	})
	a.metrics.GaugeFunc("intake_classifier_model_loaded",
		"1 when the trained model serves predictions, 0 on the heuristic.", func() float64 {
			if a.runtime.Mode() == ml.ModeModel {
				return 1
			}
			return 0
		})
	a.metrics.GaugeFunc("intake_board_clients", "Connected display board clients.", func() float64 {
		return float64(a.board.ClientCount())
	})

	a.checks = append(a.checks, health.Check{
		Name: "classifier",
		Probe: func(context.Context) (interface{}, error) {
			return map[string]string{"mode": a.runtime.Mode()}, nil
		},
	})
	return a, nil
}

func (a *app) directory(ctx context.Context) (routing.Directory, error) {
	if a.cfg.DatabaseURL == "" {
		facilities, err := routing.LoadFacilities(a.cfg.FacilitiesPath)
		if err != nil {
			return nil, err
		}
		a.log.Info().Int("facilities", len(facilities)).Msg("facility directory loaded from file")
		return routing.NewFileDirectory(facilities), nil
	}

	pool, err := db.NewPool(ctx, a.cfg.DatabaseURL, a.cfg.DBMaxConns, a.cfg.DBMinConns, a.log)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	a.pool = pool
	a.checks = append(a.checks, db.HealthCheck(pool))
	return routing.NewDirectoryPG(pool), nil
}

func (a *app) loadStore(ctx context.Context) (routing.LoadStore, error) {
	sim := routing.Simulator{
		Seed:       a.cfg.LoadSimulationSeed,
		Thresholds: routing.Thresholds{High: a.cfg.HighLoadThreshold, Critical: a.cfg.CriticalLoadThreshold},
	}
	if a.cfg.RedisURL == "" {
		return routing.NewMemoryLoadStore(sim), nil
	}

	client, err := cache.NewClient(ctx, a.cfg.RedisURL, a.log)
	if err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	a.redis = client
	a.checks = append(a.checks, cache.HealthCheck(client))
	return routing.NewRedisLoadStore(client, sim, a.cfg.LoadCacheTTL), nil
}

// Close releases external connections.
func (a *app) Close() {
	if a.redis != nil {
		a.redis.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
}

// echo builds the HTTP server with every route registered.
func (a *app) echo() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(a.log))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(a.log))
	e.Use(a.http.Middleware())
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit(maxBodySize))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: a.cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut},
		AllowHeaders: []string{"Content-Type", middleware.RequestIDHeader},
	}))

	e.GET("/health", health.Handler(healthTimeout, a.checks...))
	e.GET("/ready", a.ready)
	e.GET("/metrics", a.metrics.Handler())
	websocket.NewHandler(a.board).RegisterRoutes(e.Group(""))

	apiV1 := e.Group("/api/v1", middleware.RequestTimeout(requestTimeout))
	triage.NewHandler(a.triage).RegisterRoutes(apiV1)
	routing.NewHandler(a.routing).RegisterRoutes(apiV1)
	queue.NewHandler(a.queue).RegisterRoutes(apiV1)
	return e
}

type readiness struct {
	Status         string `json:"status"`
	ClassifierMode string `json:"classifier_mode"`
	ModelVersion   string `json:"model_version,omitempty"`
	Rules          int    `json:"rules"`
}

// ready reports which classifier path serves predictions. The heuristic is
// a valid serving mode, so the endpoint never fails.
func (a *app) ready(c echo.Context) error {
	return c.JSON(http.StatusOK, readiness{
		Status:         "ok",
		ClassifierMode: a.runtime.Mode(),
		ModelVersion:   a.runtime.ModelVersion(),
		Rules:          len(a.rules.Rules()),
	})
}

// boardNotifier forwards queue events to display boards subscribed to the
// queue's topic.
type boardNotifier struct {
	hub *websocket.Hub
}

func (b boardNotifier) Notify(ctx context.Context, ev queue.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	topic := queue.Topic(ev.FacilityID, ev.Department)
	b.hub.Publish(ctx, websocket.Event{
		Type:      ev.Type,
		Topic:     topic,
		Timestamp: time.Now().UTC(),
		Data:      data,
	})
}

// notifiers fans one queue event out to several notifiers.
type notifiers []queue.Notifier

func (n notifiers) Notify(ctx context.Context, ev queue.Event) {
	for _, nt := range n {
		nt.Notify(ctx, ev)
	}
}

type counterNotifier struct {
	counter *telemetry.Counter
}

func (c counterNotifier) Notify(_ context.Context, ev queue.Event) {
	c.counter.Inc(ev.Type, ev.Department)
}
