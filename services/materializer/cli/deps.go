package cli

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/crewboard/materializer/internal/kafka"
	"github.com/crewboard/materializer/internal/notify"
	"github.com/crewboard/materializer/internal/postgres"
	redisstore "github.com/crewboard/materializer/internal/redis"
	"github.com/crewboard/materializer/services/materializer"
	"github.com/crewboard/materializer/services/materializer/config"
)

// deps bundles everything a materializing command needs, plus the
// teardown for the connections behind it.
type deps struct {
	engine   *materializer.Engine
	lock     redisstore.RunLock
	location *time.Location
	close    func()
}

// buildDeps wires Postgres, Redis and Kafka into a ready Engine. The
// returned close func must be called once the command is done.
func buildDeps(ctx context.Context, cfg config.Config, logger *slog.Logger) (*deps, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", cfg.Timezone, err)
	}

	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	pool, err := postgres.NewPool(initCtx, cfg.PostgresDSN)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}

	redisClient := redisstore.NewClient(cfg.RedisAddr)
	producer := kafka.NewProducer(strings.Split(cfg.KafkaBrokers, ","))

	limiter := redisstore.NewRateLimiter(redisClient, cfg.NotifyRateLimit, cfg.NotifyRateWindow)
	notifier := notify.NewKafkaNotifier(producer, limiter, logger)

	instanceID := "materializer-" + uuid.New().String()[:8]
	lock := redisstore.NewRunLock(redisClient, instanceID, cfg.RunLockTTL)

	engine := materializer.NewEngine(
		postgres.NewDefinitionRepository(pool, logger),
		postgres.NewPersonnelDirectory(pool),
		postgres.NewExceptionRepository(pool),
		postgres.NewInstanceRepository(pool),
		notifier,
		materializer.WithLogger(logger),
		materializer.WithDefinitionConcurrency(cfg.DefinitionConcurrency),
		materializer.WithAssigneeConcurrency(cfg.AssigneeConcurrency),
		materializer.WithUnitTimeout(cfg.UnitTimeout),
		materializer.WithRunRecorder(postgres.NewRunRepository(pool)),
	)

	return &deps{
		engine:   engine,
		lock:     lock,
		location: loc,
		close: func() {
			_ = producer.Close()
			_ = redisClient.Close()
			pool.Close()
		},
	}, nil
}
