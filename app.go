package main

import (
	"context"
	"fmt"

	"proof-reward-system/config"
	"proof-reward-system/handlers"
	"proof-reward-system/models"
	"proof-reward-system/services"
	"proof-reward-system/utils"
	"proof-reward-system/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type server struct {
	app       *fiber.App
	claims    *services.ClaimCoordinator
	scheduler *workers.Scheduler
	closers   []func()
}

// close releases resources in reverse order of acquisition
func (s *server) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func buildServer(ctx context.Context, cfg *config.Config, log *zap.Logger) (_ *server, err error) {
	srv := &server{}
	defer func() {
		if err != nil {
			srv.close()
		}
	}()

	db, err := utils.OpenDatabase(cfg.Database.Driver, cfg.Database.URL)
	if err != nil {
		return nil, err
	}
	srv.closers = append(srv.closers, func() { closeDatabase(db, log) })

	if err := models.Migrate(db); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := services.NewMetrics(reg)

	events, err := buildEventPublisher(cfg, log)
	if err != nil {
		return nil, err
	}
	srv.closers = append(srv.closers, func() {
		if err := events.Close(); err != nil {
			log.Warn("close event publisher", zap.Error(err))
		}
	})

	leases, closeLeases, err := buildLeaseManager(ctx, cfg)
	if err != nil {
		return nil, err
	}
	srv.closers = append(srv.closers, closeLeases)

	rewards, closeRewards, err := buildRewardDistributor(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	srv.closers = append(srv.closers, closeRewards)

	store := services.NewSubmissionRepository(db, nil)
	submissions := services.NewSubmissionService(store, events, metrics, nil, log)
	srv.claims = services.NewClaimCoordinator(store, rewards, leases, events, metrics, nil,
		services.ClaimCoordinatorConfig{DistributionTimeout: cfg.Reward.Timeout}, log)

	srv.app = handlers.NewApp(handlers.AppConfig{AllowedOrigins: cfg.Server.AllowedOrigins}, metrics, log)
	handlers.SetupSubmissionRoutes(srv.app, submissions, srv.claims, handlers.SubmissionRoutesConfig{
		ModeratorKey: cfg.Moderation.Key,
		ClaimTimeout: cfg.Server.ClaimTimeout,
	}, log)
	handlers.SetupHealthRoutes(srv.app, db, reg)

	if cfg.Moderation.Key == "" {
		log.Warn("moderator key not set; moderation routes will refuse every request")
	}

	jobs := []workers.Job{{
		Name:     "status-gauge",
		Interval: cfg.Jobs.StatusInterval,
		Run:      workers.NewStatusWorker(store, metrics, log).Refresh,
	}}
	if cfg.Export.Enabled() {
		exporter, err := buildExportWorker(ctx, cfg, db, log)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, workers.Job{
			Name:     "export-snapshot",
			Interval: cfg.Export.Interval,
			Run: func(ctx context.Context) error {
				_, err := exporter.Export(ctx)
				return err
			},
		})
	}

	srv.scheduler, err = workers.NewScheduler(log, jobs...)
	if err != nil {
		return nil, err
	}
	return srv, nil
}

func buildEventPublisher(cfg *config.Config, log *zap.Logger) (services.EventPublisher, error) {
	if !cfg.Kafka.Enabled() {
		log.Info("kafka brokers not set; lifecycle events disabled")
		return services.NopEventPublisher{}, nil
	}
	return services.NewKafkaEventPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, log)
}

func buildLeaseManager(ctx context.Context, cfg *config.Config) (services.LeaseManager, func(), error) {
	if cfg.Lease.Backend != "redis" {
		return services.NewMemoryLeaseManager(), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Lease.Redis.Addr,
		Password: cfg.Lease.Redis.Password,
		DB:       cfg.Lease.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("connect to redis: %w", err)
	}
	return services.NewRedisLeaseManager(client, "proof-reward:claim:", cfg.LeaseTTL()), func() { _ = client.Close() }, nil
}

func buildRewardDistributor(ctx context.Context, cfg *config.Config, log *zap.Logger) (services.RewardDistributor, func(), error) {
	if cfg.Reward.Mode != "evm" {
		return services.NewHTTPRewardDistributor(cfg.Reward.HTTP.URL, cfg.Reward.HTTP.Token, cfg.Reward.Timeout, log), func() {}, nil
	}

	dist, client, err := services.DialEVMRewardDistributor(ctx, services.EVMRewardConfig{
		RPCURL:         cfg.Reward.EVM.RPCURL,
		ChainID:        cfg.Reward.EVM.ChainID,
		Contract:       cfg.Reward.EVM.Contract,
		PrivateKey:     cfg.Reward.EVM.PrivateKey,
		GasLimit:       cfg.Reward.EVM.GasLimit,
		WaitForReceipt: cfg.Reward.EVM.WaitReceipt,
	}, log)
	if err != nil {
		return nil, nil, err
	}
	log.Info("reward distributor ready", zap.String("sender", dist.Sender().Hex()))
	return dist, client.Close, nil
}

func buildExportWorker(ctx context.Context, cfg *config.Config, db *gorm.DB, log *zap.Logger) (*workers.ExportWorker, error) {
	bucket, err := utils.NewS3Store(ctx, utils.StorageConfig{
		Bucket:          cfg.Export.Bucket,
		Endpoint:        cfg.Export.Endpoint,
		Region:          cfg.Export.Region,
		AccessKeyID:     cfg.Export.AccessKeyID,
		SecretAccessKey: cfg.Export.SecretAccessKey,
	})
	if err != nil {
		return nil, err
	}
	return workers.NewExportWorker(services.NewSubmissionRepository(db, nil), bucket, cfg.Export.Prefix, nil, log), nil
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	sqlDB, err := db.DB()
	if err != nil {
		return
	}
	if err := sqlDB.Close(); err != nil {
		log.Warn("close database", zap.Error(err))
	}
}
