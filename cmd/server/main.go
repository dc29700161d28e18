package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"matchbook/api/grpcserver"
	"matchbook/config"
	"matchbook/domain/orderbook"
	"matchbook/infra/kafka"
	"matchbook/infra/logging"
	"matchbook/infra/metrics"
	"matchbook/infra/sequence"
	entrywal "matchbook/infra/wal/entry"
	exitwal "matchbook/infra/wal/exit"
	"matchbook/jobs/broadcaster"
	"matchbook/service"
	"matchbook/snapshot"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	os.Exit(exitCode(log, run(cfg, log)))
}

// exitCode logs err, flushes the logger and returns the process status.
func exitCode(log *zap.Logger, err error) int {
	code := 0
	if err != nil {
		log.Error("server exited", zap.Error(err))
		code = 1
	}
	_ = log.Sync()
	return code
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tick, err := decimal.NewFromString(cfg.Engine.TickSize)
	if err != nil {
		return fmt.Errorf("tick size: %w", err)
	}

	// ---------------- Metrics ----------------

	m := metrics.New(cfg.Metrics.Namespace)
	var metricsSrv *http.Server
	if cfg.Metrics.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		metricsSrv = &http.Server{Addr: cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics endpoint failed", zap.Error(err))
			}
		}()
	}

	// ---------------- Entry WAL ----------------

	entryWAL, err := entrywal.Open(entrywal.Config{
		Dir:             cfg.WAL.Dir,
		SegmentSize:     cfg.WAL.SegmentSize,
		SegmentDuration: cfg.WAL.SegmentDuration,
		SyncEveryWrite:  cfg.WAL.SyncEveryWrite,
		Logger:          log,
	})
	if err != nil {
		return fmt.Errorf("entry WAL init failed: %w", err)
	}
	defer entryWAL.Close()

	// ---------------- Exit WAL ----------------

	exitWAL, err := exitwal.Open(cfg.Outbox.Dir, log)
	if err != nil {
		return fmt.Errorf("exit WAL init failed: %w", err)
	}
	defer exitWAL.Close()

	// ---------------- Domain + Service ----------------

	book := orderbook.New(cfg.Engine.LevelCapacity, cfg.Engine.OrderCapacity,
		orderbook.WithSlotCapacity(cfg.Engine.SlotCapacity),
		orderbook.WithListener(service.NewBookListener(log)),
	)
	svc := service.NewOrderService(book, sequence.New(0), entryWAL, exitWAL,
		service.WithLogger(log),
		service.WithMetrics(m),
	)

	// ---------------- Recovery ----------------

	if _, err := svc.Recover(cfg.Snapshot.Dir, cfg.WAL.Dir); err != nil {
		return fmt.Errorf("recovery failed: %w", err)
	}

	// ---------------- Background Jobs ----------------

	snapWriter, err := snapshot.NewWriter(cfg.Snapshot.Dir, 3)
	if err != nil {
		return err
	}
	defer snapWriter.Close()
	var snapDone <-chan struct{}
	if cfg.Snapshot.Interval > 0 {
		snapDone = svc.StartSnapshotJob(ctx, snapWriter, cfg.Snapshot.Interval)
	}

	pub, err := newPublisher(cfg.Kafka)
	if err != nil {
		return err
	}
	var bcastDone <-chan struct{}
	if pub != nil {
		bc := broadcaster.New(exitWAL, pub, broadcaster.Config{
			Interval:   cfg.Kafka.Interval,
			MaxRetries: cfg.Kafka.MaxRetries,
		}, log, m)
		defer bc.Close()
		bcastDone = bc.Start(ctx)
	}

	// ---------------- gRPC ----------------

	lis, err := net.Listen("tcp", cfg.GRPC.Addr)
	if err != nil {
		return fmt.Errorf("listen failed: %w", err)
	}
	grpcSrv := grpcserver.NewGRPCServer(grpcserver.NewServer(svc, tick, log))

	serveErr := make(chan error, 1)
	go func() { serveErr <- grpcSrv.Serve(lis) }()
	log.Info("matchbook engine running",
		zap.String("grpc", cfg.GRPC.Addr),
		zap.String("metrics", cfg.Metrics.Addr),
		zap.String("kafka", cfg.Kafka.Driver),
	)

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-serveErr:
		stop()
		if err != nil {
			log.Error("gRPC server exited", zap.Error(err))
		}
	}

	grpcSrv.GracefulStop()
	if snapDone != nil {
		<-snapDone
	}
	if bcastDone != nil {
		<-bcastDone
	}
	if _, err := svc.TakeSnapshot(snapWriter); err != nil {
		log.Error("final snapshot failed", zap.Error(err))
	}
	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	return nil
}

func newPublisher(cfg config.KafkaConfig) (broadcaster.Publisher, error) {
	switch cfg.Driver {
	case config.DriverSarama:
		return broadcaster.NewSaramaPublisher(cfg.Brokers, cfg.Topic)
	case config.DriverKafkaGo:
		return kafka.NewProducer(kafka.Config{Brokers: cfg.Brokers, Topic: cfg.Topic}), nil
	}
	return nil, nil
}
