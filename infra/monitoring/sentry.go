package monitoring

import (
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/jordanlister/thinktank-installation-scheduler-sub005/config"
	coremon "github.com/jordanlister/thinktank-installation-scheduler-sub005/core/monitoring"
)

// NewSentryMonitor creates a Sentry backed Monitor. An empty DSN yields a
// NopMonitor. The monitor owns its hub; the global Sentry hub is untouched.
func NewSentryMonitor(cfg config.SentryConfig) (coremon.Monitor, error) {
	if cfg.DSN == "" {
		return coremon.NopMonitor{}, nil
	}
	return newSentryMonitor(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		Release:          cfg.Release,
		SampleRate:       cfg.SampleRate,
		TracesSampleRate: cfg.TracesSampleRate,
		ServerName:       "installsched",
	}, cfg.Tags)
}

func newSentryMonitor(opts sentry.ClientOptions, tags map[string]string) (*sentryMonitor, error) {
	client, err := sentry.NewClient(opts)
	if err != nil {
		return nil, err
	}
	scope := sentry.NewScope()
	scope.SetTags(tags)
	return &sentryMonitor{hub: sentry.NewHub(client, scope)}, nil
}

type sentryMonitor struct {
	hub *sentry.Hub
}

func (s *sentryMonitor) CaptureException(err error, tags map[string]string) {
	if err == nil {
		return
	}
	if len(tags) == 0 {
		s.hub.CaptureException(err)
		return
	}
	s.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		s.hub.CaptureException(err)
	})
}

func (s *sentryMonitor) Recover() {
	if r := recover(); r != nil {
		s.hub.Recover(r)
		s.hub.Flush(2 * time.Second)
		panic(r)
	}
}

func (s *sentryMonitor) Flush(timeout time.Duration) { s.hub.Flush(timeout) }
