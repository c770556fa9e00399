package main

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/KevoDB/filestats/pkg/common/log"
	"github.com/KevoDB/filestats/pkg/config"
	"github.com/KevoDB/filestats/pkg/filestats"
	grpcservice "github.com/KevoDB/filestats/pkg/grpc/service"
	"github.com/KevoDB/filestats/pkg/grpc/transport"
	"github.com/KevoDB/filestats/pkg/snapshot"
	"github.com/KevoDB/filestats/pkg/stats"
	"github.com/KevoDB/filestats/pkg/telemetry"
)

// Server owns the registry and everything serving it: telemetry, the
// snapshot archive and, in server mode, the gRPC endpoint.
type Server struct {
	cfg    *config.Config
	logger log.Logger

	tel      telemetry.Telemetry
	stats    stats.Collector
	registry *filestats.Registry
	store    *snapshot.Store
	exporter *snapshot.Exporter
	grpc     *transport.GRPCServer

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer builds the registry and its collaborators from cfg.
func NewServer(cfg *config.Config, logger log.Logger) (*Server, error) {
	tel, err := telemetry.New(cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	s := &Server{
		cfg:    cfg,
		logger: logger,
		tel:    tel,
		stats:  stats.NewAtomicCollector(),
	}

	metrics := filestats.NewFileStatsMetrics(tel)
	s.registry = filestats.NewRegistry(
		filestats.WithLogger(logger.WithField("component", "registry")),
		filestats.WithStatsCollector(s.stats),
		filestats.WithRegistryMetrics(metrics),
		filestats.WithSharedAllocator(filestats.NewBufferPool(cfg.ExportBufferLimit)),
		filestats.WithCollectorOptions(
			filestats.WithRangeShift(cfg.MinRangeShift),
			filestats.WithMaxRangeCount(cfg.MaxRangeCount),
		),
	)

	if cfg.SnapshotDir != "" {
		codec, err := snapshot.ParseCodec(cfg.SnapshotCodec)
		if err != nil {
			s.shutdownTelemetry(context.Background())
			return nil, err
		}
		s.store, err = snapshot.OpenStore(snapshot.StoreOptions{
			Dir:    cfg.SnapshotDir,
			Codec:  codec,
			Retain: cfg.SnapshotRetain,
			Logger: logger.WithField("component", "snapshot"),
		})
		if err != nil {
			s.shutdownTelemetry(context.Background())
			return nil, fmt.Errorf("failed to open snapshot store: %w", err)
		}
		s.exporter = snapshot.NewExporter(s.registry, s.store, snapshot.ExporterOptions{
			Interval:  cfg.SnapshotInterval,
			Logger:    logger.WithField("component", "exporter"),
			Telemetry: tel,
			Stats:     s.stats,
		})
	}

	return s, nil
}

// Registry returns the statistics registry.
func (s *Server) Registry() *filestats.Registry {
	return s.registry
}

// Start launches the periodic snapshot loop when configured and, if
// serveGRPC is set, the gRPC endpoint.
func (s *Server) Start(serveGRPC bool, tls transport.ServerOptions) error {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	if s.exporter != nil && s.cfg.SnapshotInterval > 0 {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.exporter.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error("snapshot exporter stopped: %v", err)
			}
		}()
	}

	if !serveGRPC {
		return nil
	}

	opts := tls
	opts.Logger = s.logger.WithField("component", "grpc")
	opts.Telemetry = s.tel

	svc := grpcservice.NewStatisticsService(s.registry, s.logger.WithField("component", "service"))
	srv, err := transport.NewGRPCServer(s.cfg.ListenAddr, svc, opts)
	if err != nil {
		return fmt.Errorf("failed to create gRPC server: %w", err)
	}
	if err := srv.Start(); err != nil {
		return err
	}
	s.grpc = srv
	return nil
}

// Shutdown stops serving, takes a final snapshot and releases resources.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error

	if s.grpc != nil {
		errs = append(errs, s.grpc.Stop(ctx))
	}

	// The exporter loop writes a final snapshot when cancelled.
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()

	if s.store != nil {
		errs = append(errs, s.store.Close())
	}
	errs = append(errs, s.registry.Close())
	errs = append(errs, s.shutdownTelemetry(ctx))

	return errors.Join(errs...)
}

func (s *Server) shutdownTelemetry(ctx context.Context) error {
	if err := s.tel.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown telemetry: %w", err)
	}
	return nil
}
