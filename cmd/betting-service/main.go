package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/radieske/poll-betting-platform/internal/betting"
	httpapi "github.com/radieske/poll-betting-platform/internal/betting-service/http"
	"github.com/radieske/poll-betting-platform/internal/betting-service/producer"
	"github.com/radieske/poll-betting-platform/internal/betting-service/ws"
	"github.com/radieske/poll-betting-platform/internal/gambling"
	"github.com/radieske/poll-betting-platform/internal/ledger"
	"github.com/radieske/poll-betting-platform/internal/ledger/memory"
	"github.com/radieske/poll-betting-platform/internal/ledger/postgres"
	"github.com/radieske/poll-betting-platform/internal/poll"
	"github.com/radieske/poll-betting-platform/internal/resolution"
	sharedcache "github.com/radieske/poll-betting-platform/internal/shared/cache"
	"github.com/radieske/poll-betting-platform/internal/shared/config"
	"github.com/radieske/poll-betting-platform/internal/shared/db"
	"github.com/radieske/poll-betting-platform/internal/shared/logger"
	"github.com/radieske/poll-betting-platform/internal/shared/metrics"
	"github.com/radieske/poll-betting-platform/internal/stats"
	"github.com/radieske/poll-betting-platform/internal/wallet"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = config.ServiceBetting
	}
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	// Sinalização para shutdown gracioso (SIGINT/SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Fatal("store", zap.Error(err))
	}
	defer closeStore()

	// Redis é opcional: sem ele não há cache de stats, lock distribuído nem WebSocket
	var rdb *redis.Client
	if cfg.RedisEnabled {
		rdb, err = sharedcache.ConnectRedis(ctx, cfg.RedisAddr)
		if err != nil {
			log.Fatal("redis connect", zap.Error(err))
		}
		defer rdb.Close()
	}

	pm := metrics.NewPlatform(prometheus.DefaultRegisterer)
	betOpts := []betting.Option{betting.WithMetrics(pm)}
	resOpts := []resolution.Option{resolution.WithMetrics(pm), resolution.WithLeaseTTL(cfg.ResolutionLockTTL)}
	gameOpts := []gambling.Option{gambling.WithMetrics(pm)}

	var statsCache *stats.Cache
	var hub *ws.Hub
	if rdb != nil {
		statsCache = stats.NewCache(rdb, cfg.StatsCacheTTL)
		resOpts = append(resOpts, resolution.WithLocker(resolution.NewRedisLocker(rdb)))
		hub = ws.NewHub(log, func(*http.Request) bool { return true })
	}

	// Kafka writers (bet_placed, poll_resolved, wager_settled)
	if cfg.KafkaEnabled {
		publ := producer.NewKafkaPublisher(cfg.KafkaBrokers, producer.Topics{
			BetPlaced:    cfg.TopicBetPlaced,
			PollResolved: cfg.TopicPollResolved,
			WagerSettled: cfg.TopicWagerSettled,
		})
		defer publ.Close()
		betOpts = append(betOpts, betting.WithPublisher(publ))
		resOpts = append(resOpts, resolution.WithPublisher(publ))
		gameOpts = append(gameOpts, gambling.WithPublisher(publ))
	}

	// deps
	w := wallet.NewService(log, store)
	agg := stats.NewAggregator(log, store, statsCache)
	api := httpapi.NewServer(log, httpapi.Deps{
		Polls:    poll.NewService(log, store),
		Bets:     betting.NewEngine(log, store, w, agg, betOpts...),
		Stats:    agg,
		Resolver: resolution.NewEngine(log, store, w, agg, resOpts...),
		Games:    gambling.NewService(log, store, w, gameOpts...),
		Wallet:   w,
		Hub:      hub,
	}, cfg.AdminAPIKey)

	apiSrv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// metrics/health
	metricsSrv := metrics.StartMetricsServer(log, cfg.MetricsPort, func(ctx context.Context) error {
		if err := store.Ping(ctx); err != nil {
			return fmt.Errorf("store: %w", err)
		}
		if rdb != nil {
			if err := rdb.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("redis: %w", err)
			}
		}
		return nil
	})

	g, gctx := errgroup.WithContext(ctx)
	if hub != nil {
		ws.StartRedisSubscriber(gctx, rdb, cfg.RedisPubSubChannel, hub)
	}
	g.Go(func() error {
		log.Info("betting-service listening", zap.String("addr", apiSrv.Addr), zap.String("store", cfg.StoreDriver))
		if err := apiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
		return apiSrv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("betting-service stopped with error", zap.Error(err))
		return
	}
	log.Info("betting-service stopped")
}

// openStore abre o ledger conforme STORE_DRIVER e aplica os usuários de SEED_USERS
func openStore(ctx context.Context, cfg config.Config, log *zap.Logger) (ledger.Store, func(), error) {
	if cfg.StoreDriver == config.DriverMemory {
		st := memory.New()
		for _, u := range cfg.SeedUsers {
			st.PutUser(u.ID, u.Username, u.Balance)
		}
		log.Warn("using in-memory store; state is lost on restart", zap.Int("seed_users", len(cfg.SeedUsers)))
		return st, func() {}, nil
	}

	pg, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, nil, err
	}
	if err := postgres.Migrate(ctx, pg); err != nil {
		_ = pg.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	st := postgres.New(pg)
	for _, u := range cfg.SeedUsers {
		if err := st.UpsertUser(ctx, u.ID, u.Username, u.Balance); err != nil {
			_ = pg.Close()
			return nil, nil, fmt.Errorf("seed user %s: %w", u.ID, err)
		}
	}
	return st, func() { _ = pg.Close() }, nil
}
