package infrastructure

import (
	"context"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"tally/internal/balance"
	"tally/internal/config"
	"tally/internal/lock"
	"tally/internal/repository"
	"tally/internal/service"
	transportGRPC "tally/internal/transport/grpc"
	transportHTTP "tally/internal/transport/http"
	transportKafka "tally/internal/transport/kafka"
	transportNATS "tally/internal/transport/nats"
	"tally/internal/worker"
)

// Bootstrap initialises all dependencies from config and wires up the application.
// Returns the App, a cleanup function, or an error.
func Bootstrap(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, func(), error) {
	var cleanupFns []func()

	rdb, err := connectRedis(cfg.RedisAddr())
	if err != nil {
		return nil, nil, err
	}
	cleanupFns = append(cleanupFns, func() { _ = rdb.Close() })

	// ── Store ─────────────────────────────────────────────────────────────────
	var store repository.Store
	switch cfg.StoreProvider {
	case "postgres":
		db, err := connectPostgres(cfg.DSN(), int32(cfg.DBMaxConns))
		if err != nil {
			return nil, nil, withCleanup(cleanupFns, err)
		}
		cleanupFns = append(cleanupFns, db.Close)
		store = repository.NewLedgerRepo(db)
	case "memory":
		logger.Warn("using the in-memory store, data is lost on exit")
		store = repository.NewMemoryStore()
	}

	// ── Bus ───────────────────────────────────────────────────────────────────
	var nc *nats.Conn
	natsConn := func() (*nats.Conn, error) {
		if nc != nil {
			return nc, nil
		}
		conn, err := connectNats(cfg.NatsAddr(), logger)
		if err != nil {
			return nil, err
		}
		nc = conn
		cleanupFns = append(cleanupFns, conn.Close)
		return nc, nil
	}

	var bus repository.MessageBus
	switch cfg.BusProvider {
	case "nats":
		conn, err := natsConn()
		if err != nil {
			return nil, nil, withCleanup(cleanupFns, err)
		}
		bus = transportNATS.NewBus(conn)

	case "grpc":
		grpcBus, cleanup, err := transportGRPC.NewGrpcBusFromAddr(cfg.GRPCAddr(), cfg.BusBufferSize, logger)
		if err != nil {
			return nil, nil, withCleanup(cleanupFns, err)
		}
		bus = grpcBus
		cleanupFns = append(cleanupFns, cleanup)

	case "kafka":
		if err := ensureKafkaTopic(ctx, cfg.KafkaBrokerList(), cfg.KafkaTopic, logger); err != nil {
			return nil, nil, withCleanup(cleanupFns, err)
		}
		kafkaBus := transportKafka.NewBus(cfg.KafkaBrokerList(), cfg.KafkaTopic, logger)
		bus = kafkaBus
		cleanupFns = append(cleanupFns, func() { _ = kafkaBus.Close() })
	}

	// ── Service ───────────────────────────────────────────────────────────────
	coord := service.NewCoordinator(store, bus, repository.NewTransactionCache(rdb, cfg.CacheTTL), service.CoordinatorConfig{
		Policy:             balance.Policy{CancelWindowYears: cfg.CancelWindowYears},
		MaxAccountsPerUser: cfg.MaxAccountsPerUser,
	}, logger)

	locker := lock.NewRedisLocker(rdb, cfg.LockRetryDelay, logger)
	guard := lock.NewGuard(locker, lock.Options{Wait: cfg.LockWaitTimeout, Lease: cfg.LockLeaseTimeout}, logger.With(zap.String("component", "lock")))

	var svc service.LedgerService = service.NewLedger(coord, guard)

	// ── Servers and workers ───────────────────────────────────────────────────
	var servers []Server

	// The gRPC server receives events itself when it is the projection worker.
	servers = append(servers, transportGRPC.NewServer(cfg.GRPCListenAddr(), svc, cfg.WorkerProvider == "grpc", logger))

	if addr, apiErr := cfg.ApiAddr(); apiErr == nil {
		servers = append(servers, transportHTTP.NewServer(addr, svc, cfg.CORSOriginList(), logger))
	}

	switch cfg.WorkerProvider {
	case "nats":
		conn, err := natsConn()
		if err != nil {
			return nil, nil, withCleanup(cleanupFns, err)
		}
		servers = append(servers, worker.NewProjectionWorker(svc, conn, logger))
	case "kafka":
		servers = append(servers, worker.NewKafkaProjectionWorker(svc, cfg.KafkaBrokerList(), cfg.KafkaGroupID, cfg.KafkaTopic, logger))
	}

	// NATS can also handle commands
	if nc != nil {
		servers = append(servers, transportNATS.NewHandler(svc, nc, logger))
	}

	logger.Info("application wired",
		zap.String("store", cfg.StoreProvider),
		zap.String("bus", cfg.BusProvider),
		zap.String("worker", cfg.WorkerProvider),
		zap.Int("servers", len(servers)),
	)

	return NewApp(servers, logger), runCleanup(cleanupFns), nil
}

// withCleanup releases what was already opened before returning err.
func withCleanup(fns []func(), err error) error {
	runCleanup(fns)()
	return err
}

// runCleanup returns a single function that calls all cleanup functions in reverse order.
func runCleanup(fns []func()) func() {
	return func() {
		for i := len(fns) - 1; i >= 0; i-- {
			fns[i]()
		}
	}
}
