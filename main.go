// Package main provides the main entry point for the click-to-order attribution service
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	applogger "github.com/amirphl/orochi-attribution/app/logger"
	"github.com/amirphl/orochi-attribution/app/handlers"
	"github.com/amirphl/orochi-attribution/app/router"
	"github.com/amirphl/orochi-attribution/app/scheduler"
	"github.com/amirphl/orochi-attribution/app/services"
	businessflow "github.com/amirphl/orochi-attribution/business_flow"
	"github.com/amirphl/orochi-attribution/config"
	"github.com/amirphl/orochi-attribution/repository"
	"github.com/gofiber/fiber/v3"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Application represents the main application structure
type Application struct {
	router    router.Router
	config    *config.ProductionConfig
	server    *fiber.App
	stopFuncs []func()
}

func main() {
	cfg, err := config.LoadProductionConfig()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	if err := applogger.Init(cfg.Logging); err != nil {
		logrus.Fatalf("Failed to initialize logger: %v", err)
	}
	log := applogger.Named("main")
	log.WithField("version", cfg.Deployment.Version).Info("Starting attribution service...")

	app, err := initializeApplication(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	app.router.SetupRoutes()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		if err := app.router.Start(address); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-sigChan
	log.Info("Shutting down gracefully...")

	// Stop background workers
	for _, fn := range app.stopFuncs {
		fn()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := app.server.ShutdownWithContext(shutdownCtx); err != nil {
		log.WithError(err).Error("Error during shutdown")
	}

	log.Info("Server stopped")
}

// initializeDatabase initializes the database connection with connection pooling
func initializeDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	applogger.Named("main").WithFields(logrus.Fields{
		"max_open_conns": cfg.MaxOpenConns,
		"max_idle_conns": cfg.MaxIdleConns,
	}).Info("Database connection established")

	if cfg.AutoMigrate {
		if err := repository.RunMigrations(db, cfg.MigrationsPath); err != nil {
			return nil, err
		}
	}
	return db, nil
}

// initializeCache initializes the Redis client used for cross-replica leases
func initializeCache(cfg config.CacheConfig) (*redis.Client, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	rc := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	applogger.Named("main").WithField("db", opt.DB).Info("Redis connection established")
	return rc, nil
}

// startCacheHealthMonitor pings Redis periodically so lease outages show up in the logs
func startCacheHealthMonitor(parent context.Context, client *redis.Client, interval time.Duration) func() {
	monitorCtx, cancel := context.WithCancel(parent)
	if interval <= 0 {
		interval = 30 * time.Second
	}
	log := applogger.Named("cache")
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-monitorCtx.Done():
				return
			case <-ticker.C:
				ctx, c := context.WithTimeout(context.Background(), 3*time.Second)
				if err := client.Ping(ctx).Err(); err != nil {
					log.WithError(err).Warn("Redis healthcheck failed")
				}
				c()
			}
		}
	}()
	return cancel
}

// initializeApplication wires repositories, flows, handlers and background jobs
func initializeApplication(cfg *config.ProductionConfig) (*Application, error) {
	db, err := initializeDatabase(cfg.Database)
	if err != nil {
		return nil, err
	}

	var stopFuncs []func()

	var leases businessflow.LeaseManager = businessflow.NewLocalLeaseManager()
	rc, err := initializeCache(cfg.Cache)
	if err != nil {
		return nil, err
	}
	if rc != nil {
		leases = businessflow.NewRedisLeaseManager(rc, cfg.Cache.RedisPrefix)
		stopFuncs = append(stopFuncs, startCacheHealthMonitor(context.Background(), rc, 30*time.Second))
		stopFuncs = append(stopFuncs, func() { _ = rc.Close() })
	}

	var publisher businessflow.ConversionEventPublisher = services.NoopEventPublisher{}
	if cfg.Events.Enabled {
		kp := services.NewKafkaEventPublisher(cfg.Events.Brokers, cfg.Events.Topic)
		publisher = kp
		stopFuncs = append(stopFuncs, func() { _ = kp.Close() })
	}

	newUID, err := businessflow.NewUIDGenerator(cfg.Tracking.UIDLength)
	if err != nil {
		return nil, err
	}

	// Repositories
	clickLogRepo := repository.NewClickLogRepository(db)
	runRepo := repository.NewCorrelationRunRepository(db)
	tx := repository.NewTxRunner(db)

	// External collaborators
	marketplace := services.NewMarketplaceClient(cfg.Marketplace.BaseURL, cfg.Marketplace.AccessToken, cfg.Marketplace.Timeout)

	// Business flows
	linkIssueFlow := businessflow.NewLinkIssueFlow(clickLogRepo, cfg.Tracking, newUID, applogger.Named("link_issue"))
	clickRecordFlow := businessflow.NewClickRecordFlow(clickLogRepo, tx, applogger.Named("click_record"))
	manualSaleFlow := businessflow.NewManualSaleFlow(clickLogRepo, publisher, newUID, applogger.Named("manual_sale"))
	correlationFlow := businessflow.NewCorrelationFlow(clickLogRepo, runRepo, tx, marketplace, leases, publisher, cfg.Correlation, newUID, applogger.Named("correlation"))
	statsFlow := businessflow.NewConversionStatsFlow(clickLogRepo)

	// Handlers
	handlerLog := applogger.Named("handlers")
	r := router.NewFiberRouter(cfg, router.Handlers{
		ClickLog:     handlers.NewClickLogHandler(linkIssueFlow, statsFlow, handlerLog),
		Redirect:     handlers.NewRedirectHandler(clickRecordFlow, cfg.Tracking.FallbackURL, handlerLog),
		Conversation: handlers.NewConversationHandler(manualSaleFlow, handlerLog),
		Analytics:    handlers.NewAnalyticsHandler(correlationFlow, statsFlow, handlerLog),
	})

	if cfg.Scheduler.Enabled && len(cfg.Scheduler.SellerIDs) > 0 {
		s := scheduler.NewCorrelationScheduler(correlationFlow, cfg.Scheduler.SellerIDs, cfg.Scheduler.Interval, applogger.Named("scheduler"))
		stopFuncs = append(stopFuncs, s.Start(context.Background()))
	}

	return &Application{
		router:    r,
		config:    cfg,
		server:    r.GetApp(),
		stopFuncs: stopFuncs,
	}, nil
}
