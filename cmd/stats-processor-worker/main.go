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

	"github.com/radieske/poll-betting-platform/internal/ledger/postgres"
	sharedcache "github.com/radieske/poll-betting-platform/internal/shared/cache"
	"github.com/radieske/poll-betting-platform/internal/shared/config"
	"github.com/radieske/poll-betting-platform/internal/shared/db"
	skafka "github.com/radieske/poll-betting-platform/internal/shared/kafka"
	"github.com/radieske/poll-betting-platform/internal/shared/logger"
	"github.com/radieske/poll-betting-platform/internal/shared/metrics"
	"github.com/radieske/poll-betting-platform/internal/stats"
	"github.com/radieske/poll-betting-platform/internal/stats-processor/consumer"
	"github.com/radieske/poll-betting-platform/internal/stats-processor/pubsub"
)

const groupID = "stats-processor"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = config.ServiceStatsProcessor
	}
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if cfg.StoreDriver != config.DriverPostgres {
		log.Fatal("stats-processor requires STORE_DRIVER=postgres", zap.String("store", cfg.StoreDriver))
	}
	if !cfg.KafkaEnabled {
		log.Fatal("stats-processor requires KAFKA_ENABLED=true")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Inicializa dependências: Postgres e Redis
	pg, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal("postgres connect", zap.Error(err))
	}
	defer pg.Close()
	store := postgres.New(pg)

	proc := &consumer.Processor{
		Log:    log,
		Topics: consumer.Topics{BetPlaced: cfg.TopicBetPlaced, PollResolved: cfg.TopicPollResolved},
	}

	var statsCache *stats.Cache
	if cfg.RedisEnabled {
		redisClient, err := sharedcache.ConnectRedis(ctx, cfg.RedisAddr)
		if err != nil {
			log.Fatal("redis connect", zap.Error(err))
		}
		defer redisClient.Close()
		statsCache = stats.NewCache(redisClient, cfg.StatsCacheTTL)
		// Broadcaster para publicar atualizações no Redis Pub/Sub (usado pelo betting-service/ws)
		proc.Broadcast = pubsub.NewRedisBroadcaster(redisClient, cfg.RedisPubSubChannel)
	}
	proc.Stats = stats.NewAggregator(log, store, statsCache)

	// Consumer group único assinando bet_placed e poll_resolved
	reader := skafka.NewGroupReader(cfg.KafkaBrokers, groupID, cfg.TopicBetPlaced, cfg.TopicPollResolved)
	defer reader.Close()
	proc.Reader = reader

	dlq := skafka.NewWriter(cfg.KafkaBrokers, cfg.TopicStatsDLQ)
	defer dlq.Close()
	proc.DLQ = dlq

	// Métricas Prometheus para monitoramento do processamento
	consumed := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "stats_proc_messages_consumed_total", Help: "mensagens consumidas por tópico"}, []string{"topic"})
	refreshed := prometheus.NewCounter(prometheus.CounterOpts{Name: "stats_proc_refreshes_total", Help: "estatísticas recalculadas"})
	errorsBy := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "stats_proc_errors_total", Help: "erros por estágio"}, []string{"stage"})
	prometheus.MustRegister(consumed, refreshed, errorsBy)
	proc.OnConsumed = func(topic string) { consumed.WithLabelValues(topic).Inc() }
	proc.OnRefreshed = func() { refreshed.Inc() }
	proc.OnError = func(stage string) { errorsBy.WithLabelValues(stage).Inc() }

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

	log.Info("stats-processor started",
		zap.Strings("consume", []string{cfg.TopicBetPlaced, cfg.TopicPollResolved}),
		zap.String("dlq", cfg.TopicStatsDLQ),
	)
	if err := proc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("processor stopped with error", zap.Error(err))
		return
	}
	log.Info("stats-processor stopped")
}
