// Package daemon runs the instance management service until its context is
// cancelled: boot, readiness notification, then an orderly stop.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/micro-sensor/sitewhere/config"
	"github.com/micro-sensor/sitewhere/internal/instance"
	"github.com/micro-sensor/sitewhere/internal/lifecycle"
	"github.com/micro-sensor/sitewhere/internal/metrics"
	"github.com/micro-sensor/sitewhere/internal/monitor"

	systemd "github.com/coreos/go-systemd/v22/daemon"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"
)

const tracerName = "github.com/micro-sensor/sitewhere/internal/daemon"

// Option configures Run.
type Option func(*options)

type options struct {
	monitors  []lifecycle.Monitor
	buildOpts []instance.BuildOption
	ready     func(*instance.Microservice)
}

// WithMonitor adds m to the monitors every phase reports to.
func WithMonitor(m lifecycle.Monitor) Option {
	return func(o *options) { o.monitors = append(o.monitors, m) }
}

// WithBuildOptions passes opts to instance.Build.
func WithBuildOptions(opts ...instance.BuildOption) Option {
	return func(o *options) { o.buildOpts = append(o.buildOpts, opts...) }
}

// WithReady calls fn once the start phase has completed.
func WithReady(fn func(*instance.Microservice)) Option {
	return func(o *options) { o.ready = fn }
}

// Run boots the instance described by cfg and blocks until ctx is
// cancelled. A failed initialize or start phase is returned after the
// components that did come up are stopped. Stop failures are logged and do
// not fail Run.
func Run(ctx context.Context, cfg config.Config, opts ...Option) error {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	log := slog.With("component", "daemon", "instance", cfg.Instance.ID)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	ms, err := instance.Build(cfg, append([]instance.BuildOption{instance.WithGatherer(reg)}, o.buildOpts...)...)
	if err != nil {
		return err
	}

	mon := monitor.Join(append([]lifecycle.Monitor{
		monitor.NewLog(slog.Default()),
		monitor.NewTrace(ctx, otel.Tracer(tracerName)),
		monitor.NewMetrics(metrics.NewLifecycle(reg)),
	}, o.monitors...)...)

	if err := boot(ctx, ms, mon); err != nil {
		log.Error("boot failed, releasing started components", "err", err)
		stop(ctx, ms, mon, cfg.Lifecycle.StopTimeout, log)
		return err
	}

	notify(log, systemd.SdNotifyReady)
	log.Info("instance started", "name", ms.Name())
	if o.ready != nil {
		o.ready(ms)
	}

	var g errgroup.Group
	g.Go(func() error { return watchdog(ctx, log) })
	<-ctx.Done()
	if err := g.Wait(); err != nil {
		log.Warn("watchdog stopped", "err", err)
	}

	notify(log, systemd.SdNotifyStopping)
	stop(ctx, ms, mon, cfg.Lifecycle.StopTimeout, log)
	return nil
}

func boot(ctx context.Context, ms *instance.Microservice, m lifecycle.Monitor) error {
	if err := ms.Initialize(ctx, m); err != nil {
		return err
	}
	return ms.Start(ctx, m)
}

// stop runs the stop phase on a context detached from ctx, which is usually
// already cancelled, bounded by timeout.
func stop(ctx context.Context, ms *instance.Microservice, m lifecycle.Monitor, timeout time.Duration, log *slog.Logger) {
	stopCtx := context.WithoutCancel(ctx)
	if timeout > 0 {
		var cancel context.CancelFunc
		stopCtx, cancel = context.WithTimeout(stopCtx, timeout)
		defer cancel()
	}

	err := ms.Stop(stopCtx, m)
	var agg *lifecycle.AggregateError
	if errors.As(err, &agg) {
		for _, f := range agg.Failures {
			log.Warn("component failed to stop", "step", f.Component, "err", f.Err)
		}
		return
	}
	if err != nil {
		log.Warn("stop failed", "err", err)
	}
}

func notify(log *slog.Logger, state string) {
	if _, err := systemd.SdNotify(false, state); err != nil {
		log.Warn("notify systemd", "state", state, "err", err)
	}
}

// watchdog pings the systemd watchdog at half its interval until ctx is
// done. It returns immediately when no watchdog is configured, and with an
// error when the watchdog environment is malformed.
func watchdog(ctx context.Context, log *slog.Logger) error {
	interval, err := systemd.SdWatchdogEnabled(false)
	if err != nil {
		return fmt.Errorf("systemd watchdog: %w", err)
	}
	if interval == 0 {
		return nil
	}
	ticker := time.NewTicker(interval / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			notify(log, systemd.SdNotifyWatchdog)
		}
	}
}
