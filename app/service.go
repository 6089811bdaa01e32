// Package app wires the configured store, scheduling services, event fan-out
// and listeners into one runnable service.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kilianp07/slotshare/api/rooms"
	"github.com/kilianp07/slotshare/config"
	"github.com/kilianp07/slotshare/core/allocation"
	"github.com/kilianp07/slotshare/core/audit"
	"github.com/kilianp07/slotshare/core/commit"
	"github.com/kilianp07/slotshare/core/coordinator"
	"github.com/kilianp07/slotshare/core/exchange"
	coremetrics "github.com/kilianp07/slotshare/core/metrics"
	coremon "github.com/kilianp07/slotshare/core/monitoring"
	"github.com/kilianp07/slotshare/core/store"
	"github.com/kilianp07/slotshare/core/travel"
	infraaudit "github.com/kilianp07/slotshare/infra/audit"
	"github.com/kilianp07/slotshare/infra/logger"
	"github.com/kilianp07/slotshare/infra/metrics"
	"github.com/kilianp07/slotshare/infra/monitoring"
	"github.com/kilianp07/slotshare/infra/mqtt"
	"github.com/kilianp07/slotshare/infra/store/memory"
	"github.com/kilianp07/slotshare/infra/store/sqlite"
	"github.com/kilianp07/slotshare/internal/eventbus"
	"github.com/kilianp07/slotshare/jobs/autoconfirm"
)

// Service owns every long-running component of the server.
type Service struct {
	Store       store.Store
	Coordinator *coordinator.Service
	Exchanges   *exchange.Resolver
	Committer   *commit.Committer
	Bus         *eventbus.RoomBus

	cfg     *config.Config
	sink    coremetrics.Sink
	audit   audit.Querier
	poller  *autoconfirm.Poller
	bridge  *mqtt.Bridge
	mqtt    *mqtt.PahoClient
	handler http.Handler
	closers []func() error
	log     logger.Logger
}

// New builds a Service from the configuration. Nothing is started until Run.
func New(cfg *config.Config) (*Service, error) {
	if err := logger.SetLevel(cfg.Logging.Level); err != nil {
		return nil, err
	}
	mon, err := monitoring.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		return nil, err
	}
	coremon.Init(mon)
	s := &Service{cfg: cfg, log: logger.New("service"), Bus: eventbus.NewRoomBus(64)}

	if err := s.openStore(); err != nil {
		_ = s.Close()
		return nil, err
	}
	auditLog, err := s.openAudit()
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	sink, err := coremetrics.NewSink(cfg.Metrics.Sinks)
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("metrics sink: %w", err)
	}
	s.sink = sink

	sim := travel.New(cfg.Travel)
	retry := cfg.Commit.Policy()
	s.Coordinator = coordinator.New(cfg.AutoConfirm.Coordinator(), s.Store,
		allocation.New(cfg.Allocation, sim, logger.New("allocation")), sim,
		coordinator.WithPublisher(s.Bus),
		coordinator.WithAudit(auditLog),
		coordinator.WithMetrics(sink),
		coordinator.WithLogger(logger.New("coordinator")),
		coordinator.WithRetry(retry),
	)
	s.Exchanges = exchange.New(cfg.Exchange, s.Store, sim,
		exchange.WithPublisher(s.Bus),
		exchange.WithAudit(auditLog),
		exchange.WithMetrics(sink),
		exchange.WithLogger(logger.New("exchange")),
		exchange.WithRetry(retry),
	)
	s.Committer = commit.New(cfg.Commit, s.Store, sim,
		commit.WithPublisher(s.Bus),
		commit.WithAudit(auditLog),
		commit.WithMetrics(sink),
		commit.WithLogger(logger.New("commit")),
	)
	if cfg.AutoConfirm.Poller.Enabled {
		s.poller = autoconfirm.NewPoller(cfg.AutoConfirm.Poller, s.Store, s.Committer, logger.New("autoconfirm"))
	}
	if cfg.MQTT.Enabled {
		client, err := mqtt.NewPahoClient(cfg.MQTT)
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("mqtt client: %w", err)
		}
		s.mqtt = client
		s.bridge = mqtt.NewBridge(client, cfg.MQTT.TopicPrefix, logger.New("mqtt"))
	}

	h := rooms.NewHandler(s.Coordinator, s.Exchanges, s.Committer, s.Store, s.audit, logger.New("api"))
	s.handler = rooms.NewRouter(h, cfg.HTTP.AllowedOrigins)
	return s, nil
}

func (s *Service) openStore() error {
	switch s.cfg.Store.Backend {
	case "sqlite":
		st, err := sqlite.Open(s.cfg.Store.DSN)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		s.Store = st
		s.closers = append(s.closers, st.Close)
	default:
		s.Store = memory.New()
	}
	return nil
}

func (s *Service) openAudit() (audit.Log, error) {
	switch s.cfg.Audit.Backend {
	case "none":
		return nil, nil
	case "sqlite":
		l, err := infraaudit.NewSQLiteLog(s.cfg.Audit.DSN)
		if err != nil {
			return nil, fmt.Errorf("open audit log: %w", err)
		}
		s.closers = append(s.closers, l.Close)
		s.audit = l
		return l, nil
	default:
		l := &audit.MemoryLog{}
		s.audit = l
		return l, nil
	}
}

// Handler returns the HTTP API.
func (s *Service) Handler() http.Handler { return s.handler }

func (s *Service) promEnabled() bool {
	for _, m := range s.cfg.Metrics.Sinks {
		if m.Type == "prometheus" {
			return true
		}
	}
	return false
}

// Run starts the listeners and background jobs and blocks until ctx is
// canceled or one of them fails.
func (s *Service) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	metrics.StartEventCollector(ctx, s.Bus, s.sink)
	if s.promEnabled() {
		g.Go(func() error {
			if err := metrics.StartPromServer(ctx, s.cfg.HTTP.MetricsAddr, s.log); err != nil {
				return fmt.Errorf("prom server: %w", err)
			}
			return nil
		})
	}
	if s.poller != nil {
		g.Go(func() error { return s.poller.Start(ctx) })
	}
	if s.bridge != nil {
		g.Go(func() error { return s.bridge.Run(ctx, s.Bus) })
	}

	srv := &http.Server{Addr: s.cfg.HTTP.Addr, Handler: s.handler, ReadHeaderTimeout: 5 * time.Second}
	g.Go(func() error {
		s.log.Infof("listening on %s", s.cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// Close releases the bus, the MQTT connection and any open databases, then
// flushes pending error reports.
func (s *Service) Close() error {
	defer coremon.Flush(2 * time.Second)
	s.Bus.Close()
	if s.mqtt != nil {
		s.mqtt.Disconnect()
	}
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
