package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	goredis "github.com/redis/go-redis/v9"

	"drone-dispatch/config"
	"drone-dispatch/internal/admin"
	"drone-dispatch/internal/auth"
	"drone-dispatch/internal/dispatch"
	"drone-dispatch/internal/events"
	eventsnats "drone-dispatch/internal/events/nats"
	"drone-dispatch/internal/fleet"
	"drone-dispatch/internal/jwt"
	"drone-dispatch/internal/orderstore"
	"drone-dispatch/internal/redis"
	pgmigrate "drone-dispatch/internal/repo/postgres"
	"drone-dispatch/internal/tracking"
)

type AppContext struct {
	DB     *sqlx.DB
	Config *config.Config
	Redis  *goredis.Client
	Router *gin.Engine

	// Infrastructure
	JWTService       *jwt.Service
	DroneCache       *redis.DroneLocationCache
	IdempotencyStore *redis.IdempotencyStore
	RateLimiter      *redis.RateLimiter
	Publisher        events.Publisher
	OrderClient      *orderstore.Client
	Registry         *dispatch.Registry
	Engine           *dispatch.Engine

	FleetService    fleet.Service
	AdminService    admin.Service
	TrackingService tracking.Service

	AuthHandler     *auth.Handler
	AdminHandler    *admin.Handler
	DispatchHandler *dispatch.Handler
	TrackingHandler *tracking.Handler
}

func wireApp(cfg *config.Config) (*AppContext, error) {
	// ── Postgres ──
	db, err := pgmigrate.Connect(cfg.Postgres.DSN(), pgmigrate.DefaultPoolConfig())
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}

	if err := pgmigrate.RunMigrationsUp(db); err != nil {
		return nil, fmt.Errorf("migrations: %w", err)
	}

	// ── Redis ──
	var rdb *goredis.Client
	if cfg.Redis.URL != "" {
		opts, err := goredis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("redis parse url: %w", err)
		}
		rdb = goredis.NewClient(opts)
	} else {
		rdb = goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}

	// ── Events ──
	var publisher events.Publisher = events.NoopPublisher{}
	if cfg.NATS.URL != "" {
		natsPub, err := eventsnats.New(cfg.NATS.URL, cfg.NATS.Subject)
		if err != nil {
			return nil, fmt.Errorf("nats: %w", err)
		}
		publisher = natsPub
	}

	// ── Infrastructure ──
	jwtService := jwt.NewService(cfg.JWT.Secret, cfg.JWT.ExpiryHours)
	droneCache := redis.NewDroneLocationCache(rdb, cfg.Drone.LocationCacheTTLSec)
	idempotencyStore := redis.NewIdempotencyStore(rdb, cfg.Drone.IdempotencyTTLSec)
	rateLimiter := redis.NewRateLimiter(rdb, cfg.RateLimiter.MaxRequests, cfg.RateLimiter.WindowSeconds)

	orderClient := orderstore.NewClient(cfg.OrderStore.BaseURL, cfg.OrderStore.Timeout,
		cfg.OrderStore.BreakerThreshold, cfg.OrderStore.BreakerCooldown)
	restaurantBase := cfg.OrderStore.RestaurantBaseURL
	if restaurantBase == "" {
		restaurantBase = cfg.OrderStore.BaseURL
	}
	restaurantClient := orderstore.NewRestaurantClient(restaurantBase, cfg.OrderStore.Timeout)

	// ── Services ──
	fleetService := fleet.NewService(fleet.NewRepository(), db)

	registry := dispatch.NewRegistry()
	engine := dispatch.NewEngine(fleetService, orderClient, droneCache, publisher, registry, dispatch.Config{
		TickInterval:        cfg.Sim.TickInterval,
		StepDegrees:         cfg.Sim.StepDegrees,
		ArrivalToleranceDeg: cfg.Sim.ArrivalToleranceDeg,
		BatteryDrainPerTick: cfg.Sim.BatteryDrainPerTick,
		OrderBatchLimit:     cfg.Sweep.OrderBatchLimit,
	})

	adminService := admin.NewService(fleetService, engine, publisher)
	trackingService := tracking.NewService(orderClient, fleetService, restaurantClient, droneCache, cfg.Drone.SpeedKMH)
	authService := auth.NewAuthService(jwtService)

	return &AppContext{
		Config: cfg,
		DB:     db,
		Redis:  rdb,
		Router: gin.Default(),

		JWTService:       jwtService,
		DroneCache:       droneCache,
		IdempotencyStore: idempotencyStore,
		RateLimiter:      rateLimiter,
		Publisher:        publisher,
		OrderClient:      orderClient,
		Registry:         registry,
		Engine:           engine,

		FleetService:    fleetService,
		AdminService:    adminService,
		TrackingService: trackingService,

		AuthHandler:     auth.NewHandler(authService),
		AdminHandler:    admin.NewHandler(adminService),
		DispatchHandler: dispatch.NewHandler(engine),
		TrackingHandler: tracking.NewHandler(trackingService),
	}, nil
}

func (a *AppContext) Close() {
	_ = a.Publisher.Close()
	a.DB.Close()
	a.Redis.Close()
}

func (a *AppContext) healthCheck(c *gin.Context) {
	ctx := c.Request.Context()
	checks := map[string]string{}
	healthy := true

	if err := a.DB.PingContext(ctx); err != nil {
		checks["postgres"] = err.Error()
		healthy = false
	} else {
		checks["postgres"] = "ok"
	}

	if err := a.Redis.Ping(ctx).Err(); err != nil {
		checks["redis"] = err.Error()
		healthy = false
	} else {
		checks["redis"] = "ok"
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{
		"status":  checks,
		"db_pool": pgmigrate.GetPoolMetrics(a.DB),
	})
}
