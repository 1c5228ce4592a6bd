package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/health"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/lock"
	"github.com/Ramsey-B/fern/pkg/ratetable"
	"github.com/Ramsey-B/fern/pkg/redis"
	"github.com/Ramsey-B/fern/pkg/repositories"
	"github.com/Ramsey-B/fern/pkg/repositories/memory"
	"github.com/Ramsey-B/fern/pkg/repositories/postgres"
	"github.com/Ramsey-B/fern/pkg/settlement"
	"github.com/Ramsey-B/fern/pkg/startup"
	"github.com/Ramsey-B/fern/pkg/sweep"
)

const (
	depDatabase = "database"
	depRedis    = "redis"
	depProducer = "kafka-producer"
	depEngine   = "engine"
	depConsumer = "kafka-consumer"
	depSweeper  = "sweeper"
)

// app holds the process-wide dependencies. Fields are filled in by the
// startup graph in dependency order.
type app struct {
	cfg    *config.Config
	logger ectologger.Logger
	health *health.Checker

	db       database.DB
	store    repositories.Store
	redis    *redis.Client
	locker   lock.Locker
	producer *kafka.Producer
	engine   *settlement.Engine
	consumer *kafka.Consumer
	sweeper  *sweep.Sweeper
}

type appOptions struct {
	consumer bool
	sweeper  bool
}

func newApp(cfg *config.Config, logger ectologger.Logger) *app {
	return &app{cfg: cfg, logger: logger, health: health.NewChecker(Version)}
}

func (a *app) usePostgres() bool {
	return !strings.EqualFold(a.cfg.StoreDriver, "memory")
}

func (a *app) useRedis() bool {
	return !strings.EqualFold(a.cfg.LockDriver, "local")
}

func (a *app) databaseConfig() database.Config {
	return database.Config{
		Host:            a.cfg.DatabaseHost,
		Port:            a.cfg.DatabasePort,
		User:            a.cfg.DatabaseUserName,
		Password:        a.cfg.DatabasePassword,
		Name:            a.cfg.DatabaseName,
		SSLMode:         a.cfg.DatabaseSSLMode,
		MaxOpenConns:    a.cfg.DatabaseMaxOpenConns,
		MaxIdleConns:    a.cfg.DatabaseMaxIdleConns,
		ConnMaxLifetime: a.cfg.DatabaseConnMaxLifetime,
	}
}

func (a *app) migrationService() *database.MigrationService {
	return database.NewMigrationService(a.logger, &database.MigrationConfig{
		MigrationFolderPath: a.cfg.DatabaseMigrationFolderPath,
		Version:             a.cfg.DatabaseMigrationVersion,
		Force:               a.cfg.DatabaseMigrationForce,
		AutoRollback:        a.cfg.DatabaseMigrationAutoRollback,
	})
}

// startup builds the dependency graph for the requested components.
func (a *app) startup(opts appOptions) *startup.Startup {
	s := startup.NewStartup(a.logger, a.cfg.StartupMaxAttempts)

	s.AddDependency(&startup.Func{
		Name:      depDatabase,
		StartFunc: a.startDatabase,
		StopFunc: func(ctx context.Context) error {
			if a.db == nil {
				return nil
			}
			return a.db.Close()
		},
	})

	engineRequires := []string{depDatabase}
	if a.useRedis() {
		engineRequires = append(engineRequires, depRedis)
		s.AddDependency(&startup.Func{
			Name:      depRedis,
			StartFunc: a.startRedis,
			StopFunc: func(ctx context.Context) error {
				return a.redis.Close()
			},
		})
	}

	if a.cfg.KafkaProducerEnabled {
		engineRequires = append(engineRequires, depProducer)
		s.AddDependency(&startup.Func{
			Name:      depProducer,
			StartFunc: a.startProducer,
			StopFunc: func(ctx context.Context) error {
				return a.producer.Close()
			},
		})
	}

	s.AddDependency(&startup.Func{
		Name:      depEngine,
		Requires:  engineRequires,
		StartFunc: a.startEngine,
	})

	if opts.consumer && a.cfg.KafkaConsumerEnabled {
		s.AddDependency(&startup.Func{
			Name:      depConsumer,
			Requires:  []string{depEngine},
			StartFunc: a.startConsumer,
			StopFunc: func(ctx context.Context) error {
				return a.consumer.Stop()
			},
		})
	}

	if opts.sweeper && a.cfg.SweepEnabled {
		s.AddDependency(&startup.Func{
			Name:     depSweeper,
			Requires: []string{depEngine},
			StartFunc: func(ctx context.Context) error {
				a.sweeper = sweep.NewSweeper(a.engine, a.locker, sweep.Config{
					Interval:  a.cfg.SweepInterval,
					BatchSize: a.cfg.SweepBatchSize,
				}, a.logger)
				return a.sweeper.Start(ctx)
			},
			StopFunc: func(ctx context.Context) error {
				return a.sweeper.Stop(ctx)
			},
		})
	}

	return s
}

func (a *app) startDatabase(ctx context.Context) error {
	if !a.usePostgres() {
		a.logger.WithContext(ctx).Warn("using in-memory store, data will not survive a restart")
		a.store = memory.New()
		a.health.Register(depDatabase, a.store)
		return nil
	}

	db, err := database.Open(ctx, a.databaseConfig(), a.logger)
	if err != nil {
		return err
	}
	if a.cfg.DatabaseMigrateOnStart {
		if err := a.migrationService().MigratePostgres(db.SQLDB(), a.cfg.DatabaseName); err != nil {
			_ = db.Close()
			return fmt.Errorf("failed to migrate database: %w", err)
		}
	}

	a.db = db
	a.store = postgres.New(db, a.logger)
	a.health.Register(depDatabase, a.store)
	return nil
}

func (a *app) startRedis(ctx context.Context) error {
	client := redis.NewClient(redis.Config{
		Host:     a.cfg.RedisHost,
		Port:     a.cfg.RedisPort,
		Password: a.cfg.RedisPassword,
		DB:       a.cfg.RedisDB,
	}, a.logger)
	if err := client.Connect(ctx); err != nil {
		_ = client.Close()
		return err
	}

	a.redis = client
	a.health.Register(depRedis, client)
	return nil
}

func (a *app) startProducer(ctx context.Context) error {
	cfg := kafka.DefaultProducerConfig()
	cfg.Brokers = a.cfg.KafkaBrokers
	cfg.Topic = a.cfg.KafkaOutputTopic
	cfg.DeadLetterTopic = a.cfg.KafkaErrorTopic
	cfg.RequiredAcks = a.cfg.KafkaRequiredAcks

	producer, err := kafka.NewProducer(cfg, a.logger)
	if err != nil {
		return err
	}
	a.producer = producer
	return nil
}

func (a *app) startEngine(ctx context.Context) error {
	rates, err := a.rateTables()
	if err != nil {
		return err
	}

	a.locker = lock.NewLocal()
	if a.redis != nil {
		a.locker = redis.NewLocker(a.redis, redis.LockerConfig{
			TTL:         a.cfg.LockTTL,
			WaitTimeout: a.cfg.LockWaitTimeout,
		})
	}

	var publisher events.Publisher = events.NopPublisher{}
	if a.producer != nil {
		publisher = a.producer
	}

	a.engine = settlement.NewEngine(a.store, a.locker, rates, publisher, a.logger, settlement.Options{
		DefaultUnitTarget: a.cfg.DefaultUnitTarget,
	})
	return nil
}

func (a *app) startConsumer(ctx context.Context) error {
	cfg := kafka.DefaultConsumerConfig()
	cfg.Brokers = a.cfg.KafkaBrokers
	cfg.Topic = a.cfg.KafkaInputTopic
	cfg.GroupID = a.cfg.KafkaConsumerGroup

	var dlq kafka.DeadLetterPublisher
	if a.producer != nil {
		dlq = a.producer
	}

	consumer, err := kafka.NewConsumer(cfg, dlq, a.logger)
	if err != nil {
		return err
	}
	handler := kafka.NewSettlementHandler(a.engine, a.logger)
	if err := consumer.Start(context.WithoutCancel(ctx), handler.Handle); err != nil {
		return err
	}

	a.consumer = consumer
	a.health.RegisterOptional(depConsumer, health.PingFunc(func(ctx context.Context) error {
		_, err := consumer.Lag()
		return err
	}))
	return nil
}

func (a *app) rateTables() (*ratetable.Registry, error) {
	if a.cfg.RateTablePath == "" {
		return ratetable.Default()
	}
	rates, err := ratetable.LoadFile(a.cfg.RateTablePath)
	if err != nil {
		return nil, fmt.Errorf("failed to load rate tables from %s: %w", a.cfg.RateTablePath, err)
	}
	return rates, nil
}
