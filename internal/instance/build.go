package instance

import (
	"github.com/micro-sensor/sitewhere/config"
	"github.com/micro-sensor/sitewhere/internal/bootstrap"
	"github.com/micro-sensor/sitewhere/internal/capability"
	"github.com/micro-sensor/sitewhere/internal/configengine"
	"github.com/micro-sensor/sitewhere/internal/management"
	"github.com/micro-sensor/sitewhere/internal/metrics"
	"github.com/micro-sensor/sitewhere/internal/rpc/channel"
	"github.com/micro-sensor/sitewhere/internal/rpc/server"
	"github.com/micro-sensor/sitewhere/internal/scripting"

	"github.com/prometheus/client_golang/prometheus"
)

// BuildOption adjusts how Build wires components.
type BuildOption func(*buildOptions)

type buildOptions struct {
	gatherer    prometheus.Gatherer
	channelOpts []channel.Option
	serverOpts  []server.Option
}

// WithGatherer enables the metrics exporter over g when the configuration
// turns metrics on.
func WithGatherer(g prometheus.Gatherer) BuildOption {
	return func(o *buildOptions) { o.gatherer = g }
}

// WithChannelOptions applies opts to every outbound channel.
func WithChannelOptions(opts ...channel.Option) BuildOption {
	return func(o *buildOptions) { o.channelOpts = append(o.channelOpts, opts...) }
}

// WithServerOptions applies opts to both inbound servers.
func WithServerOptions(opts ...server.Option) BuildOption {
	return func(o *buildOptions) { o.serverOpts = append(o.serverOpts, opts...) }
}

// Build constructs every component from cfg and returns the orchestrator.
func Build(cfg config.Config, opts ...BuildOption) (*Microservice, error) {
	var o buildOptions
	for _, opt := range opts {
		opt(&o)
	}

	scripts := scripting.New(cfg.Scripts.Source, cfg.ScriptsDir(), scripting.WithInterval(cfg.Scripts.SyncInterval))
	engine := configengine.New(scripts)
	store := management.New(cfg.StorePath())

	tenants := server.New("tenant-management-server", cfg.Servers.TenantManagement.Address,
		[]server.Registration{server.TenantManagement(store)},
		append([]server.Option{server.WithReflection(cfg.Servers.TenantManagement.Reflection)}, o.serverOpts...)...)
	users := server.New("user-management-server", cfg.Servers.UserManagement.Address,
		[]server.Registration{server.UserManagement(store)},
		append([]server.Option{server.WithReflection(cfg.Servers.UserManagement.Reflection)}, o.serverOpts...)...)

	c := Components{
		Scripts:      scripts,
		Config:       engine,
		Store:        store,
		Bootstrap:    bootstrap.New(store, engine),
		TenantServer: tenants,
		UserServer:   users,
	}
	if cfg.Metrics.Enabled && o.gatherer != nil {
		c.Metrics = metrics.NewExporter(cfg.Metrics.Address, o.gatherer)
	}

	peers := map[capability.Name]config.Peer{
		capability.DeviceManagementName:      cfg.Peers.DeviceManagement,
		capability.DeviceEventManagementName: cfg.Peers.DeviceEventManagement,
		capability.AssetManagementName:       cfg.Peers.AssetManagement,
		capability.BatchManagementName:       cfg.Peers.BatchManagement,
		capability.ScheduleManagementName:    cfg.Peers.ScheduleManagement,
		capability.LabelGenerationName:       cfg.Peers.LabelGeneration,
		capability.DeviceStateName:           cfg.Peers.DeviceState,
	}
	for _, name := range capability.Names {
		peer := peers[name]
		chOpts := append([]channel.Option{channel.WithReadyTimeout(peer.ReadyTimeout)}, o.channelOpts...)
		ch := channel.ForCapability(name, peer.Target, chOpts...)
		c.Channels = append(c.Channels, Binding{Name: name, Channel: ch, Client: channel.Client(ch)})
	}

	return New(cfg.Instance.Name, c, Timeouts{Step: cfg.Lifecycle.StepTimeout, Stop: cfg.Lifecycle.StepTimeout})
}
