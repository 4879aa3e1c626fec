package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/micro-sensor/sitewhere/internal/lifecycle"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// readHeaderTimeout is 5s: scrapes are small and local.
const readHeaderTimeout = 5 * time.Second

// Exporter serves a Prometheus gatherer on /metrics. The listener is bound
// during initialize and served from start.
type Exporter struct {
	*lifecycle.Base

	addr     string
	gatherer prometheus.Gatherer

	mu       sync.Mutex
	ln       net.Listener
	srv      *http.Server
	serveErr chan error
}

// NewExporter creates the exporter component.
func NewExporter(addr string, gatherer prometheus.Gatherer) *Exporter {
	e := &Exporter{addr: addr, gatherer: gatherer}
	e.Base = lifecycle.NewBase("metrics-exporter", lifecycle.Hooks{
		Initialize: e.initialize,
		Start:      e.start,
		Stop:       e.stop,
	})
	return e
}

// Addr returns the bound address, or the configured one before initialize.
func (e *Exporter) Addr() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ln != nil {
		return e.ln.Addr().String()
	}
	return e.addr
}

func (e *Exporter) initialize(ctx context.Context, m lifecycle.Monitor) error {
	if _, _, err := net.SplitHostPort(e.addr); err != nil {
		return lifecycle.ConfigurationErrorf("metrics address %q: %w", e.addr, err)
	}
	if e.gatherer == nil {
		return lifecycle.ConfigurationErrorf("metrics gatherer is required")
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", e.addr)
	if err != nil {
		return lifecycle.Wrap(lifecycle.ClassConnectivity, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(e.gatherer, promhttp.HandlerOpts{}))

	e.mu.Lock()
	e.ln = ln
	e.srv = &http.Server{Handler: mux, ReadHeaderTimeout: readHeaderTimeout}
	e.mu.Unlock()
	m.Notify("metrics listener bound on " + ln.Addr().String())
	return nil
}

func (e *Exporter) start(context.Context, lifecycle.Monitor) error {
	e.mu.Lock()
	srv, ln := e.srv, e.ln
	e.serveErr = make(chan error, 1)
	serveErr := e.serveErr
	e.mu.Unlock()

	go func() {
		err := srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		if err != nil {
			slog.Error("metrics exporter stopped serving", "component", "metrics-exporter", "err", err)
		}
		serveErr <- err
	}()
	slog.Info("metrics exporter serving", "component", "metrics-exporter", "addr", ln.Addr().String())
	return nil
}

func (e *Exporter) stop(ctx context.Context, _ lifecycle.Monitor) error {
	e.mu.Lock()
	srv, ln, serveErr := e.srv, e.ln, e.serveErr
	e.srv, e.ln, e.serveErr = nil, nil, nil
	e.mu.Unlock()

	if srv == nil {
		return nil
	}
	if serveErr == nil {
		// Never served; the listener is still ours to close.
		return ln.Close()
	}
	if err := srv.Shutdown(ctx); err != nil {
		return err
	}
	return <-serveErr
}
