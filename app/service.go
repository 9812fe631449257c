// Package app wires configuration into a running scheduling service.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	apisched "github.com/jordanlister/thinktank-installation-scheduler-sub005/api/scheduling"
	"github.com/jordanlister/thinktank-installation-scheduler-sub005/config"
	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/history"
	coremetrics "github.com/jordanlister/thinktank-installation-scheduler-sub005/core/metrics"
	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/model"
	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/monitoring"
	coremqtt "github.com/jordanlister/thinktank-installation-scheduler-sub005/core/mqtt"
	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/notify"
	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/scheduling"
	"github.com/jordanlister/thinktank-installation-scheduler-sub005/infra/logger"
	"github.com/jordanlister/thinktank-installation-scheduler-sub005/infra/metrics"
	infmon "github.com/jordanlister/thinktank-installation-scheduler-sub005/infra/monitoring"
	"github.com/jordanlister/thinktank-installation-scheduler-sub005/infra/mqtt"
	"github.com/jordanlister/thinktank-installation-scheduler-sub005/internal/eventbus"
)

// Service owns the scheduler and every adapter around it.
type Service struct {
	Scheduler *scheduling.Scheduler

	cfg      *config.Config
	bus      *eventbus.Bus
	sink     coremetrics.MetricsSink
	monitor  monitoring.Monitor
	client   *mqtt.PahoClient
	pub      coremqtt.Publisher
	notifier *notify.Notifier
	log      logger.Logger
}

// Option customizes New.
type Option func(*Service)

// WithPublisher replaces the MQTT client, for dry runs and tests.
func WithPublisher(p coremqtt.Publisher) Option { return func(s *Service) { s.pub = p } }

// New creates a Service from the configuration.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Service, error) {
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil && lvl != zerolog.NoLevel {
		zerolog.SetGlobalLevel(lvl)
	}
	s := &Service{cfg: cfg, log: logger.New("service")}
	for _, o := range opts {
		o(s)
	}

	mon, err := infmon.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		return nil, fmt.Errorf("sentry: %w", err)
	}
	s.monitor = mon

	sink, err := coremetrics.NewMetricsSink(cfg.Metrics.Sinks)
	if err != nil {
		return nil, fmt.Errorf("metrics sink: %w", err)
	}
	s.sink = sink

	store, err := history.Open(ctx, cfg.History)
	if err != nil {
		s.closeSink()
		return nil, fmt.Errorf("history store: %w", err)
	}

	s.bus = eventbus.New(eventbus.WithBuffer(64))
	s.Scheduler = scheduling.New(
		scheduling.WithLogger(logger.New("scheduling")),
		scheduling.WithMetrics(sink),
		scheduling.WithEventBus(s.bus),
		scheduling.WithHistoryStore(store),
		scheduling.WithMonitor(mon),
		scheduling.WithSpeed(cfg.Scheduling.SpeedMPH),
	)

	if s.pub == nil && cfg.MQTTEnabled() {
		client, err := mqtt.NewPahoClient(cfg.MQTT, mqtt.WithMonitor(mon), mqtt.WithLogger(logger.New("mqtt_client")))
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("mqtt client: %w", err)
		}
		s.client = client
		s.pub = client
	}
	if s.pub != nil {
		s.notifier = notify.New(s.pub,
			notify.WithEventBus(s.bus),
			notify.WithLogger(logger.New("notify")),
			notify.WithAckTimeout(cfg.Notify.AckTimeout()),
			notify.WithRetries(cfg.Notify.Retries),
		)
	}
	return s, nil
}

// Handler returns the HTTP API bound to the scheduler.
func (s *Service) Handler() http.Handler {
	opts := []apisched.Option{
		apisched.WithLogger(logger.New("api")),
		apisched.WithToken(s.cfg.API.Token),
		apisched.WithRateLimit(s.cfg.API.RateLimit, s.cfg.API.Burst),
		apisched.WithRequestDefaults(s.cfg.Scheduling.Apply),
	}
	if s.notifier != nil && s.cfg.Notify.OnOptimize {
		opts = append(opts, apisched.WithAfterOptimize(func(_ context.Context, req model.SchedulingRequest, res model.SchedulingResult) {
			// Acks may take longer than the HTTP request.
			go s.notify(context.Background(), req, res)
		}))
	}
	return apisched.NewHandler(s.Scheduler, opts...)
}

// Notify sends the schedules of res to the team members. It is a no-op
// without a publisher.
func (s *Service) Notify(ctx context.Context, req model.SchedulingRequest, res model.SchedulingResult) (notify.Report, error) {
	if s.notifier == nil {
		return notify.Report{}, errors.New("notifications are disabled: no mqtt broker configured")
	}
	return s.notifier.Notify(ctx, res, req.Jobs...)
}

func (s *Service) notify(ctx context.Context, req model.SchedulingRequest, res model.SchedulingResult) {
	defer s.monitor.Recover()
	rep, err := s.Notify(ctx, req, res)
	if err != nil {
		s.log.Errorf("notify: %v", err)
		return
	}
	if missing := rep.Unacknowledged(); len(missing) > 0 {
		s.log.Warnf("%d of %d schedules not acknowledged", len(missing), len(rep.Deliveries))
	}
}

// Run starts the background workers and the HTTP server and blocks until
// ctx is canceled.
func (s *Service) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	metrics.StartEventCollector(ctx, s.bus, s.sink)
	if addr := s.cfg.Metrics.PrometheusAddr; addr != "" {
		go func() {
			if err := metrics.StartPromServer(ctx, addr); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}
	if s.pub != nil && s.cfg.Notify.ForwardHistory {
		stream, unsubscribe := s.Scheduler.SubscribeHistory()
		defer unsubscribe()
		go func() {
			if err := notify.ForwardHistory(ctx, stream, s.pub, logger.New("history-forwarder")); err != nil {
				s.log.Errorf("history forwarder: %v", err)
			}
		}()
	}

	srv := &http.Server{
		Addr:              s.cfg.API.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       s.cfg.API.ReadTimeout(),
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("api listening on %s", s.cfg.API.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	return srv.Shutdown(shutdownCtx)
}

func (s *Service) closeSink() {
	if c, ok := s.sink.(interface{ Close() }); ok {
		c.Close()
	}
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	var err error
	if s.Scheduler != nil {
		err = s.Scheduler.Close()
	}
	if s.bus != nil {
		s.bus.Close()
	}
	if s.client != nil {
		s.client.Disconnect()
	}
	s.closeSink()
	if s.monitor != nil {
		s.monitor.Flush(2 * time.Second)
	}
	return err
}
