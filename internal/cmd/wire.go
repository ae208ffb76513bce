package cmd

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/vrcwmt/worldperm/internal/config"
	"github.com/vrcwmt/worldperm/internal/facade"
	"github.com/vrcwmt/worldperm/internal/metrics"
	"github.com/vrcwmt/worldperm/internal/notifier"
	"github.com/vrcwmt/worldperm/internal/publish"
	"github.com/vrcwmt/worldperm/internal/sideimage"
	"github.com/vrcwmt/worldperm/internal/store"
)

// app is everything a command needs to read or change the roster.
type app struct {
	facade  *facade.Facade
	gateway *store.Gateway
	images  *sideimage.Store
	git     *publish.Git

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	closers []func() error
	logger  *zap.SugaredLogger
}

// newPublisher returns the git publisher, or nil when publishing is disabled.
func newPublisher(c *config.Config, logger *zap.SugaredLogger) *publish.Git {
	if !c.Publish.Enabled {
		return nil
	}
	return &publish.Git{
		Dir:    c.Publish.Repo,
		Remote: c.Publish.Remote,
		Branch: c.Publish.Branch,
		Push:   c.Publish.Push,
		Logger: logger.Named("publish"),
	}
}

func newGateway(c *config.Config, pub publish.Publisher, logger *zap.SugaredLogger) *store.Gateway {
	opts := []store.Option{
		store.WithHeader(c.Roster.Header),
		store.WithPublisher(pub),
		store.WithLogger(logger.Named("store")),
		store.WithLockTimeout(c.Roster.LockTimeout),
	}
	if c.Roster.Version != "" {
		opts = append(opts, store.WithStamp(c.Roster.Version))
	}
	return store.NewGateway(c.RosterPath(), opts...)
}

// openApp loads the roster and wires the publisher, notifiers and metrics.
// reg may be nil. The returned app must be closed.
func openApp(ctx context.Context, c *config.Config, logger *zap.SugaredLogger, reg prometheus.Registerer) (*app, error) {
	a := &app{logger: logger}

	var pub publish.Publisher = publish.Nop{}
	if a.git = newPublisher(c, logger); a.git != nil {
		pub = a.git
	}

	a.gateway = newGateway(c, pub, logger)
	a.images = &sideimage.Store{
		Path:      c.ImagePath(),
		Width:     c.Image.Width,
		Height:    c.Image.Height,
		Publisher: pub,
		Logger:    logger.Named("image"),
	}

	notifyCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a.cancel = cancel
	n, err := a.notifiers(notifyCtx, c)
	if err != nil {
		a.Close()
		return nil, err
	}

	f, err := facade.Open(ctx, a.gateway,
		facade.WithNotifier(n),
		facade.WithMetrics(metrics.New(reg)),
		facade.WithLogger(logger.Named("facade")),
		facade.WithImages(a.images),
	)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.facade = f
	return a, nil
}

func (a *app) notifiers(ctx context.Context, c *config.Config) (notifier.Notifier, error) {
	var ns []notifier.Notifier

	if slack := notifier.NewSlack(&c.Slack); slack.Enabled() {
		ns = append(ns, slack)
	}
	if c.Kafka.Enabled {
		ns = append(ns, notifier.NewKafka(ctx, &a.wg, a.logger.Named("kafka"), c.Kafka))
	}
	if c.RabbitMQ.Enabled {
		rmq, err := notifier.NewRabbitMQ(c.RabbitMQ)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, rmq.Close)
		ns = append(ns, rmq)
	}

	if len(ns) == 0 {
		return notifier.Nop{}, nil
	}
	return notifier.Multi(ns...), nil
}

// Close flushes notifiers and releases connections.
func (a *app) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()
	for _, c := range a.closers {
		if err := c(); err != nil {
			a.logger.Warnw("closing notifier", "error", err)
		}
	}
}
