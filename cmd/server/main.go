package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"dexgrad/internal/api"
	"dexgrad/internal/api/handlers"
	"dexgrad/internal/chain"
	"dexgrad/internal/config"
	"dexgrad/internal/deploy"
	"dexgrad/internal/models"
	"dexgrad/internal/registry"
	"dexgrad/internal/repository"
	"dexgrad/internal/service"
	"dexgrad/pkg/ratelimit"
	"dexgrad/pkg/retry"
	"dexgrad/pkg/utils"
)

func main() {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := utils.InitGlobalLogger(utils.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Основная БД сервиса
	db, err := repository.OpenPostgres(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("failed to connect to database",
			utils.String("dsn", cfg.Database.DSNWithoutPassword()), utils.Err(err))
	}
	defer db.Close()
	logger.Info("connected to database", utils.String("dsn", cfg.Database.DSNWithoutPassword()))

	// Хранилища брокеров торговой инфраструктуры
	primaryDB, err := repository.OpenMySQL(ctx, cfg.BrokerStores.Primary)
	if err != nil {
		logger.Fatal("failed to connect to primary broker store",
			utils.String("dsn", cfg.BrokerStores.Primary.DSNWithoutPassword()), utils.Err(err))
	}
	defer primaryDB.Close()

	partnerDB, err := repository.OpenMySQL(ctx, cfg.BrokerStores.Partner)
	if err != nil {
		logger.Fatal("failed to connect to partner broker store",
			utils.String("dsn", cfg.BrokerStores.Partner.DSNWithoutPassword()), utils.Err(err))
	}
	defer partnerDB.Close()

	// Инициализация репозиториев
	accountRepo := repository.NewAccountRepository(db)
	ledgerRepo := repository.NewLedgerRepository(db)
	indexRepo := repository.NewBrokerIndexRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	primaryStore := repository.NewTradingBrokerRepository(primaryDB, models.StorePrimary)
	partnerStore := repository.NewTradingBrokerRepository(partnerDB, models.StorePartner)

	// Внешние коллабораторы
	rpcHTTP := chain.NewHTTPClient(chain.DefaultHTTPClientConfig())
	defer chain.CloseIdle(rpcHTTP)
	chainClient := chain.NewClient(cfg.Chains, rpcHTTP)
	for c, chainCfg := range cfg.Chains {
		if !chainCfg.Configured() || !chainClient.HasEndpoint(c) {
			logger.Warn("chain is not fully configured, payments on it will be rejected",
				utils.Chain(c.String()),
				utils.Bool("rpc_endpoint", chainClient.HasEndpoint(c)),
			)
		}
	}

	registryClient := registry.NewClient(cfg.Registry, &http.Client{Timeout: cfg.Registry.Timeout})
	if !registryClient.Enabled() {
		logger.Warn("public broker registry check disabled, REGISTRY_URL is empty")
	}

	cooldown, redisClient := initCooldown(ctx, cfg, logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	publisher := deploy.NewPublisher(cfg.Kafka)
	defer publisher.Close()
	trigger := deploy.NewTrigger(cooldown, publisher, cfg.Kafka.DeployTopic)

	// Инициализация сервисов
	defaultFees := models.FeeConfig{
		MakerFeeBps: cfg.Graduation.DefaultMakerFeeBps,
		TakerFeeBps: cfg.Graduation.DefaultTakerFeeBps,
	}

	verifier := service.NewVerifier(chainClient, cfg.Chains, cfg.Graduation.TokenDecimals, cfg.Graduation.RPCTimeout)
	registrar := service.NewRegistrar(primaryStore, partnerStore, service.RegistrarConfig{
		Timeout: cfg.Graduation.ProvisioningTimeout,
		Rollback: retry.Config{
			MaxAttempts:  cfg.Graduation.RollbackAttempts,
			InitialDelay: cfg.Graduation.RollbackInitialDelay,
			MaxDelay:     cfg.Graduation.RollbackMaxDelay,
			Multiplier:   2.0,
			JitterFactor: 0.2,
			RetryIf:      retry.RetryIfNotContext,
		},
	})

	graduationService := service.NewGraduationService(
		accountRepo,
		ledgerRepo,
		indexRepo,
		registrar,
		verifier,
		registryClient,
		publisher,
		trigger,
		service.GraduationConfig{
			RequiredAmount:    cfg.Graduation.RequiredAmount,
			ReservedSubstring: cfg.Graduation.ReservedSubstring,
			DefaultFees:       defaultFees,
			EventTopic:        cfg.Kafka.GraduationTopic,
			Timeout:           cfg.Graduation.ProvisioningTimeout,
		},
	)

	feeService := service.NewFeeService(accountRepo, primaryStore, trigger)
	deployService := service.NewDeployService(accountRepo, trigger)
	authService := service.NewAuthService(accountRepo, sessionRepo, service.AuthConfig{
		SessionTTL:   cfg.Security.SessionTTL,
		LoginMessage: cfg.Security.LoginMessage,
		Defaults: repository.AccountDefaults{
			BrokerID:    cfg.Graduation.DemoBrokerID,
			MakerFeeBps: defaultFees.MakerFeeBps,
			TakerFeeBps: defaultFees.TakerFeeBps,
		},
	})

	// Фоновая очистка истекших сессий
	go authService.RunSessionJanitor(ctx, 10*time.Minute)

	// Настройка зависимостей для API
	deps := &api.Dependencies{
		GraduationService: graduationService,
		FeeService:        feeService,
		AuthService:       authService,
		DeployService:     deployService,
		HealthChecks:      healthChecks(db, primaryDB, partnerDB, redisClient),
		AllowedOrigins:    cfg.Server.AllowedOrigins,
		AdminUser:         cfg.Security.AdminUser,
		AdminPasswordHash: cfg.Security.AdminPasswordHash,
	}

	// Настройка HTTP роутера
	router := api.SetupRoutes(deps)

	// HTTP сервер
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Запуск сервера в отдельной горутине
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", utils.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Graceful shutdown
	select {
	case <-ctx.Done():
		logger.Info("shutting down server")
	case err := <-serverErr:
		logger.Error("server failed", utils.Err(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Дожидаемся провижининга, уже начатого запросами
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", utils.Err(err))
	}

	logger.Info("server exited")
}

// initCooldown выбирает общий cooldown в Redis или локальный в памяти
func initCooldown(ctx context.Context, cfg *config.Config, logger *utils.Logger) (ratelimit.Cooldown, *redis.Client) {
	if cfg.Redis.Addr == "" {
		logger.Warn("REDIS_ADDR is empty, deploy cooldown is per instance")
		return ratelimit.NewMemoryCooldown(cfg.Deploy.Cooldown), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Fatal("failed to connect to redis", utils.String("addr", cfg.Redis.Addr), utils.Err(err))
	}

	logger.Info("connected to redis", utils.String("addr", cfg.Redis.Addr))
	return ratelimit.NewRedisCooldown(client, "dexgrad:deploy:", cfg.Deploy.Cooldown), client
}

// healthChecks собирает проверки зависимостей для /health
func healthChecks(db, primaryDB, partnerDB *sql.DB, redisClient *redis.Client) map[string]handlers.HealthCheck {
	checks := map[string]handlers.HealthCheck{
		"postgres":          db.PingContext,
		models.StorePrimary: primaryDB.PingContext,
		models.StorePartner: partnerDB.PingContext,
	}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}
	}
	return checks
}
