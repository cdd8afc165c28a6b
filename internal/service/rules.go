package service

import (
	"context"
	"database/sql"
	"fmt"

	"eldercare-rules/internal/cache"
	"eldercare-rules/internal/config"
	"eldercare-rules/internal/escalation"
	"eldercare-rules/internal/evaluator"
	"eldercare-rules/internal/repository"
	"eldercare-rules/internal/roomconfig"
	"eldercare-rules/internal/scheduler"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// RulesService wires the store, bus, cache and engine into the daemon.
type RulesService struct {
	config      *config.Config
	db          *sql.DB
	redisClient *redis.Client
	mqttClient  *escalation.Client
	logger      *zap.Logger

	alertsRepo  *repository.AlertsRepository
	roomConfigs *roomconfig.FileStore
	alertCache  *cache.AlertCache
	engine      *evaluator.Engine
	scheduler   *scheduler.Scheduler
}

// NewRulesService connects to every configured backend. The store is waited
// for until ctx is cancelled; the MQTT broker may come up later.
func NewRulesService(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*RulesService, error) {
	// 1. Store
	db, dialect, err := repository.Open(ctx, &cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	// 2. Redis (optional)
	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient, err = cache.NewRedisClient(ctx, &cfg.Redis)
		if err != nil {
			db.Close()
			return nil, err
		}
	}

	// 3. MQTT
	mqttClient, err := escalation.NewClient(&cfg.MQTT, logger)
	if err != nil {
		db.Close()
		if redisClient != nil {
			redisClient.Close()
		}
		return nil, err
	}

	s, err := newRulesService(cfg, db, dialect, redisClient, mqttClient, logger)
	if err != nil {
		mqttClient.Disconnect()
		db.Close()
		if redisClient != nil {
			redisClient.Close()
		}
		return nil, err
	}
	s.mqttClient = mqttClient
	return s, nil
}

// newRulesService builds the components on top of established connections.
// redisClient may be nil.
func newRulesService(
	cfg *config.Config,
	db *sql.DB,
	dialect repository.Dialect,
	redisClient *redis.Client,
	transport escalation.Transport,
	logger *zap.Logger,
) (*RulesService, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("invalid timezone: %w", err)
	}

	// Repository layer
	alertsRepo := repository.NewAlertsRepository(db, dialect, logger)
	telemetryRepo := repository.NewTelemetryRepository(db, dialect, logger)
	settingsRepo := repository.NewSettingsRepository(db, dialect, logger)
	roomsRepo := repository.NewRoomsRepository(db, logger)

	roomConfigs := roomconfig.NewFileStore(cfg.Rules.RoomConfigPath, logger)
	publisher := escalation.NewPublisher(transport, cfg.MQTT.TopicPrefix, cfg.MQTT.QoS, logger)

	deps := evaluator.Dependencies{
		Telemetry:   telemetryRepo,
		Alerts:      alertsRepo,
		Rooms:       roomsRepo,
		Settings:    settingsRepo,
		RoomConfigs: roomConfigs,
		Publisher:   publisher,
	}

	// Redis extras
	var alertCache *cache.AlertCache
	if redisClient != nil {
		alertCache = cache.NewAlertCache(&cfg.Cache, redisClient, logger)
		deps.Listeners = append(deps.Listeners, cache.NewAlertStream(redisClient, cfg.Cache.AlertStream, logger))
		if cfg.Cache.PrealertStateBackend == config.StateBackendRedis {
			deps.Limiter = cache.NewPrealertStateStore(&cfg.Cache, cfg.Rules.PrealertAntiSpam, redisClient, logger)
		}
	}

	engine := evaluator.NewEngine(deps, evaluator.Options{
		HeartbeatTimeout:    cfg.Rules.HeartbeatTimeout,
		DefaultDwellMinutes: cfg.Rules.DefaultDwellMinutes,
		TickTimeout:         cfg.Rules.StoreTimeout,
		Location:            loc,
	}, cfg.Rules.PrealertAntiSpam, logger)

	return &RulesService{
		config:      cfg,
		db:          db,
		redisClient: redisClient,
		logger:      logger,
		alertsRepo:  alertsRepo,
		roomConfigs: roomConfigs,
		alertCache:  alertCache,
		engine:      engine,
		scheduler:   scheduler.NewScheduler(cfg.Rules.TickInterval, logger),
	}, nil
}

// Start runs the evaluation loop until ctx is cancelled.
func (s *RulesService) Start(ctx context.Context) error {
	s.logger.Info("Starting rules service",
		zap.String("db_driver", s.config.Database.Driver),
		zap.String("room_config", s.roomConfigs.Path()),
		zap.Bool("redis", s.redisClient != nil),
	)

	return s.scheduler.Start(ctx, scheduler.RunnerFunc(s.Tick))
}

// Tick runs one engine pass and refreshes the open alert cache.
func (s *RulesService) Tick(ctx context.Context) error {
	err := s.engine.Tick(ctx)

	if s.alertCache != nil {
		if cerr := s.refreshAlertCache(ctx); cerr != nil {
			s.logger.Warn("Failed to refresh alert cache", zap.Error(cerr))
		}
	}

	return err
}

func (s *RulesService) refreshAlertCache(ctx context.Context) error {
	alerts, err := s.alertsRepo.ListOpen(ctx)
	if err != nil {
		return err
	}
	return s.alertCache.UpdateAlertCache(ctx, alerts)
}

// Stop releases every connection.
func (s *RulesService) Stop() error {
	s.logger.Info("Stopping rules service")

	if s.mqttClient != nil {
		s.mqttClient.Disconnect()
	}

	if err := s.db.Close(); err != nil {
		s.logger.Error("Failed to close database",
			zap.Error(err),
		)
	}

	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			s.logger.Error("Failed to close redis",
				zap.Error(err),
			)
		}
	}

	return nil
}
