package app

import (
	"context"
	"database/sql"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	libredis "evrewards/backend/libs/redis"
	"evrewards/backend/services/rewards-service/internal/address"
	"evrewards/backend/services/rewards-service/internal/auth"
	"evrewards/backend/services/rewards-service/internal/config"
	"evrewards/backend/services/rewards-service/internal/db"
	"evrewards/backend/services/rewards-service/internal/events"
	"evrewards/backend/services/rewards-service/internal/host"
	httpserver "evrewards/backend/services/rewards-service/internal/http"
	"evrewards/backend/services/rewards-service/internal/http/handlers"
	"evrewards/backend/services/rewards-service/internal/http/middleware"
	"evrewards/backend/services/rewards-service/internal/metrics"
	redisstore "evrewards/backend/services/rewards-service/internal/redis"
	"evrewards/backend/services/rewards-service/internal/repository"
	"evrewards/backend/services/rewards-service/internal/service"
	"evrewards/backend/services/rewards-service/internal/ws"
)

const migrateTimeout = time.Minute

// App wires rewards-service dependencies.
type App struct {
	server      *httpserver.Server
	db          *sql.DB
	redisClient *redis.Client
	logger      *zap.Logger
}

// New constructs the application graph.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	deriver, err := cfg.Deriver()
	if err != nil {
		return nil, err
	}

	redisClient, err := libredis.NewRedisClient(libredis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return nil, err
	}

	a := &App{redisClient: redisClient, logger: logger}

	hub := ws.NewHub(cfg.WebSocket.PingInterval, cfg.WebSocket.WriteTimeout, logger)
	emitter := events.Fanout(
		events.NewLogEmitter(logger),
		redisstore.NewEventPublisher(redisClient, cfg.Redis.EventsChannel, logger),
		hub,
	)

	programHost, err := a.newHost(cfg, deriver.Program(), emitter)
	if err != nil {
		a.Close()
		return nil, err
	}

	m := metrics.New()
	platform := service.NewPlatformService(programHost, deriver, logger, m)

	tokens, err := auth.NewTokenService(cfg.JWT.Secret, cfg.JWT.Expiry)
	if err != nil {
		a.Close()
		return nil, err
	}
	challenges := redisstore.NewChallengeStore(redisClient, cfg.Redis.ChallengeTTL)
	authService := auth.NewService(challenges, tokens, logger)

	var pinger handlers.Pinger
	if a.db != nil {
		pinger = a.db
	}

	routes := httpserver.Routes{
		Health:         handlers.NewHealthHandler(pinger),
		Metrics:        m.Handler(),
		AuthChallenge:  handlers.NewChallengeHandler(authService, logger),
		AuthToken:      handlers.NewTokenHandler(authService, logger),
		Initialize:     handlers.NewInitializePlatformHandler(platform, logger),
		Platform:       handlers.NewPlatformHandler(platform, logger),
		RegisterDriver: handlers.NewRegisterDriverHandler(platform, logger),
		Drivers:        handlers.NewListDriversHandler(platform, logger),
		Driver:         handlers.NewGetDriverHandler(platform, logger),
		Holdings:       handlers.NewHoldingsHandler(platform, logger),
		ApproveAccess:  handlers.NewApproveAccessHandler(platform, logger),
		RecordSession:  handlers.NewRecordSessionHandler(platform, logger),
		Sessions:       handlers.NewListSessionsHandler(platform, logger),
		BuyPoints:      handlers.NewBuyPointsHandler(platform, logger),
		Sustainability: handlers.NewSustainabilityHandler(platform, logger),
		Events:         hub.HandleWS,
	}

	limiter := middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	router := httpserver.NewRouter(routes, httpserver.Options{
		Auth:       middleware.AuthMiddleware(tokens),
		Limit:      limiter.Middleware,
		Instrument: m.Instrument,
	})
	handler := middleware.Chain(router, middleware.Recovery(logger), middleware.Logging(logger))

	a.server = httpserver.NewServer(cfg.HTTPAddress(), handler, logger)
	return a, nil
}

func (a *App) newHost(cfg *config.Config, program address.Address, emitter events.Emitter) (host.Host, error) {
	if cfg.Storage.Driver == config.StorageMemory {
		a.logger.Warn("using in-memory storage; state is lost on restart")
		seeds, err := cfg.FundSeeds()
		if err != nil {
			return nil, err
		}
		memoryHost := host.NewMemoryHost(program, emitter)
		for owner, balance := range seeds {
			memoryHost.Fund(owner, balance)
			a.logger.Info("seeded native balance", zap.String("owner", owner.String()), zap.Uint64("balance", balance))
		}
		return memoryHost, nil
	}

	sqlDB, err := db.NewPostgres(cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	a.db = sqlDB

	if cfg.Database.AutoMigrate {
		ctx, cancel := context.WithTimeout(context.Background(), migrateTimeout)
		defer cancel()
		applied, err := db.Migrate(ctx, sqlDB)
		if err != nil {
			return nil, err
		}
		if len(applied) > 0 {
			a.logger.Info("applied migrations", zap.Strings("versions", applied))
		}
	}

	return repository.NewPostgresHost(sqlDB, program, emitter), nil
}

// Run starts HTTP server.
func (a *App) Run(ctx context.Context) error {
	return a.server.Run(ctx)
}

// Close releases resources.
func (a *App) Close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("failed to close db", zap.Error(err))
		}
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warn("failed to close redis", zap.Error(err))
		}
	}
}
