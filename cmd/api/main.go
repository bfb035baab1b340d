package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/requisition-service/internal/api/http"
	"github.com/spec-kit/requisition-service/internal/api/http/handlers"
	"github.com/spec-kit/requisition-service/internal/auth"
	"github.com/spec-kit/requisition-service/internal/config"
	"github.com/spec-kit/requisition-service/internal/events"
	"github.com/spec-kit/requisition-service/internal/observability"
	"github.com/spec-kit/requisition-service/internal/persistence"
	"github.com/spec-kit/requisition-service/internal/repository"
	"github.com/spec-kit/requisition-service/internal/service"
	"github.com/spec-kit/requisition-service/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	pool := pg.PoolHandle()
	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pool, cfg.Postgres.MigrationsDir, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	txManager := persistence.NewTxManager(pool, logger)
	requisitionRepo := repository.NewRequisitionRepository(pool)
	ruleRepo := repository.NewApprovalRuleRepository(pool)
	stepRepo := repository.NewApprovalStepRepository(pool, txManager)
	auditRepo := repository.NewAuditTrailRepository(pool)

	directory := service.NewDirectoryService(
		repository.NewDepartmentRepository(pool),
		repository.NewUserRepository(pool),
	)
	ledger := service.NewAuditTrailLedger(auditRepo)
	workflow := service.NewApprovalWorkflowEngine(service.ApprovalWorkflowDependencies{
		RuleRepo:  ruleRepo,
		StepRepo:  stepRepo,
		Directory: directory,
		Logger:    logger,
	})
	varianceThreshold := decimal.NewFromFloat(cfg.Finance.VarianceThreshold)
	finance := service.NewFinancialTrackingService(service.FinancialDependencies{
		RequisitionRepo:   requisitionRepo,
		Ledger:            ledger,
		Logger:            logger,
		VarianceThreshold: &varianceThreshold,
	})

	if cfg.Approval.RulesFile != "" {
		rules, err := config.LoadApprovalRules(cfg.Approval.RulesFile)
		if err != nil {
			logger.Fatal("failed to load approval rules", zap.Error(err))
		}
		seeded, err := workflow.SeedRules(ctx, rules)
		if err != nil {
			logger.Fatal("failed to seed approval rules", zap.Error(err))
		}
		logger.Info("approval rules loaded", zap.Int("seeded", seeded), zap.Int("defined", len(rules)))
	}

	dispatcher := events.NewInMemoryDispatcher()
	notifier := service.NewNotificationService(redis, ledger, logger, cfg.Notification)
	notificationWorker := worker.NewNotificationWorker(notifier, logger, cfg.Notification.QueueSize)
	notificationWorker.Subscribe(dispatcher)
	notificationWorker.Start(ctx)

	lifecycle := service.NewRequisitionLifecycleService(service.RequisitionDependencies{
		RequisitionRepo: requisitionRepo,
		Directory:       directory,
		Workflow:        workflow,
		Finance:         finance,
		Ledger:          ledger,
		Transactor:      txManager,
		Dispatcher:      dispatcher,
		Logger:          logger,
		DefaultCurrency: cfg.Finance.DefaultCurrency,
	})

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes,
		auth.WithIssuer(cfg.Auth.Issuer),
		auth.WithLeeway(time.Duration(cfg.Auth.LeewaySeconds)*time.Second))
	authMiddleware := auth.NewAuthMiddleware(tokens, directory)
	metrics := observability.NewMetrics()

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health: handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, map[string]handlers.Pinger{
			"postgres": pg,
			"redis":    redis,
		}, metrics),
		Requisitions:   handlers.NewRequisitionsHandler(lifecycle, finance, workflow),
		Steps:          handlers.NewStepsHandler(lifecycle),
		AuthMiddleware: authMiddleware.Handle,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if err := notificationWorker.Stop(shutdownCtx); err != nil {
		logger.Warn("notification worker did not drain", zap.Error(err))
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
