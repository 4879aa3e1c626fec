package daemon

import (
	"context"
	"log/slog"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/micro-sensor/sitewhere/config"
	"github.com/micro-sensor/sitewhere/internal/instance"
	"github.com/micro-sensor/sitewhere/internal/lifecycle"
	"github.com/micro-sensor/sitewhere/internal/management"
	"github.com/micro-sensor/sitewhere/internal/rpc/channel"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// startPeers serves the health service for every peer API on one TCP port.
func startPeers(t *testing.T, serving bool) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	srv := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}
	for _, svc := range channel.Services {
		hs.SetServingStatus(svc, st)
	}
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(srv.Stop)
	return ln.Addr().String()
}

func testConfig(t *testing.T, peer string) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.DataRoot = t.TempDir()
	cfg.Lifecycle.StepTimeout = 5 * time.Second
	cfg.Lifecycle.StopTimeout = 5 * time.Second
	cfg.Servers.UserManagement.Address = "127.0.0.1:0"
	cfg.Servers.TenantManagement.Address = "127.0.0.1:0"
	for _, p := range []*config.Peer{
		&cfg.Peers.DeviceManagement, &cfg.Peers.DeviceEventManagement, &cfg.Peers.AssetManagement,
		&cfg.Peers.BatchManagement, &cfg.Peers.ScheduleManagement, &cfg.Peers.LabelGeneration,
		&cfg.Peers.DeviceState,
	} {
		p.Target = peer
	}
	return cfg
}

func TestRun_BootsServesAndStops(t *testing.T) {
	cfg := testConfig(t, startPeers(t, true))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ready := make(chan *instance.Microservice, 1)
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, cfg, WithReady(func(ms *instance.Microservice) { ready <- ms }))
	}()

	var ms *instance.Microservice
	select {
	case ms = <-ready:
	case err := <-done:
		t.Fatalf("Run() returned before ready: %v", err)
	case <-time.After(20 * time.Second):
		t.Fatal("instance did not become ready")
	}
	if ms.Phase() != instance.PhaseStarted {
		t.Fatalf("phase = %s, want started", ms.Phase())
	}
	if _, err := ms.BatchManagement(); err != nil {
		t.Fatalf("BatchManagement() error = %v", err)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
	if ms.Phase() != instance.PhaseStopped {
		t.Fatalf("phase after stop = %s, want stopped", ms.Phase())
	}

	// The bootstrapper seeded the store on first boot.
	store := management.New(filepath.Join(cfg.DataRoot, "management.db"))
	if err := store.Initialize(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	defer store.Stop(context.Background(), nil)
	if _, err := store.GetTenant(context.Background(), "default"); err != nil {
		t.Fatalf("default tenant not seeded: %v", err)
	}
}

func TestRun_UnreadyPeerFailsBoot(t *testing.T) {
	cfg := testConfig(t, startPeers(t, false))
	cfg.Peers.DeviceManagement.ReadyTimeout = 200 * time.Millisecond

	err := Run(context.Background(), cfg)
	if class, ok := lifecycle.ClassOf(err); !ok || class != lifecycle.ClassConnectivity {
		t.Fatalf("Run() error = %v, want connectivity", err)
	}
}

func TestRun_InvalidServerAddressFailsBoot(t *testing.T) {
	cfg := testConfig(t, startPeers(t, true))
	cfg.Servers.UserManagement.Address = "not-an-address"

	err := Run(context.Background(), cfg)
	if class, ok := lifecycle.ClassOf(err); !ok || class != lifecycle.ClassConfiguration {
		t.Fatalf("Run() error = %v, want configuration", err)
	}
}

func TestWatchdog_ReturnsWithoutConfiguration(t *testing.T) {
	t.Setenv("WATCHDOG_USEC", "")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := watchdog(ctx, slog.Default()); err != nil {
		t.Fatalf("watchdog() error = %v", err)
	}
}

func TestWatchdog_MalformedIntervalIsReported(t *testing.T) {
	t.Setenv("WATCHDOG_USEC", "not-a-number")
	if err := watchdog(context.Background(), slog.Default()); err == nil {
		t.Fatal("watchdog() error = nil, want malformed interval")
	}
}
