package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/poll-betting-platform/internal/betting-service/producer"
	"github.com/radieske/poll-betting-platform/internal/ledger/postgres"
	recovery "github.com/radieske/poll-betting-platform/internal/payout-recovery"
	"github.com/radieske/poll-betting-platform/internal/resolution"
	sharedcache "github.com/radieske/poll-betting-platform/internal/shared/cache"
	"github.com/radieske/poll-betting-platform/internal/shared/config"
	"github.com/radieske/poll-betting-platform/internal/shared/db"
	"github.com/radieske/poll-betting-platform/internal/shared/logger"
	"github.com/radieske/poll-betting-platform/internal/shared/metrics"
	"github.com/radieske/poll-betting-platform/internal/stats"
	"github.com/radieske/poll-betting-platform/internal/wallet"
)

const pendingBatch = 500

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = config.ServicePayoutRecovery
	}
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if cfg.StoreDriver != config.DriverPostgres {
		log.Fatal("payout-recovery requires STORE_DRIVER=postgres", zap.String("store", cfg.StoreDriver))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pg, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal("postgres connect", zap.Error(err))
	}
	defer pg.Close()
	store := postgres.New(pg)

	pm := metrics.NewPlatform(prometheus.DefaultRegisterer)
	resOpts := []resolution.Option{resolution.WithMetrics(pm), resolution.WithLeaseTTL(cfg.ResolutionLockTTL)}

	// O lock Redis evita disputar a resolução com o betting-service
	var statsCache *stats.Cache
	if cfg.RedisEnabled {
		rdb, err := sharedcache.ConnectRedis(ctx, cfg.RedisAddr)
		if err != nil {
			log.Fatal("redis connect", zap.Error(err))
		}
		defer rdb.Close()
		statsCache = stats.NewCache(rdb, cfg.StatsCacheTTL)
		resOpts = append(resOpts, resolution.WithLocker(resolution.NewRedisLocker(rdb)))
	}
	if cfg.KafkaEnabled {
		publ := producer.NewKafkaPublisher(cfg.KafkaBrokers, producer.Topics{
			BetPlaced:    cfg.TopicBetPlaced,
			PollResolved: cfg.TopicPollResolved,
			WagerSettled: cfg.TopicWagerSettled,
		})
		defer publ.Close()
		resOpts = append(resOpts, resolution.WithPublisher(publ))
	}

	w := wallet.NewService(log, store)
	engine := resolution.NewEngine(log, store, w, stats.NewAggregator(log, store, statsCache), resOpts...)

	resumed := prometheus.NewCounter(prometheus.CounterOpts{Name: "recovery_resolutions_resumed_total", Help: "resoluções retomadas"})
	resumeErrors := prometheus.NewCounter(prometheus.CounterOpts{Name: "recovery_resume_errors_total", Help: "falhas ao retomar resolução"})
	settled := prometheus.NewCounter(prometheus.CounterOpts{Name: "recovery_pending_settled_total", Help: "apostas pendentes concluídas"})
	prometheus.MustRegister(resumed, resumeErrors, settled)

	scanner := &recovery.Scanner{
		Log:        log,
		Store:      store,
		Resolver:   engine,
		Interval:   cfg.RecoveryInterval,
		Batch:      pendingBatch,
		StaleAfter: cfg.ResolutionLockTTL,
		OnPass: func(r recovery.Report) {
			resumed.Add(float64(r.Resumed))
			resumeErrors.Add(float64(r.ResumeErrors))
			settled.Add(float64(r.Settled))
		},
	}

	metricsSrv := metrics.StartMetricsServer(log, cfg.MetricsPort, func(ctx context.Context) error {
		if err := store.Ping(ctx); err != nil {
			return fmt.Errorf("pg: %w", err)
		}
		return nil
	})
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}()

	log.Info("payout-recovery started", zap.Duration("interval", cfg.RecoveryInterval))
	if err := scanner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("scanner stopped with error", zap.Error(err))
		return
	}
	log.Info("payout-recovery stopped")
}
