// Package channel implements the outbound gRPC channels to peer services.
//
// A Channel is a lifecycle component: initialize builds the client
// connection, start waits until the peer reports its service as serving,
// and stop closes the connection. Typed clients for each capability sit on
// top of a Channel.
package channel

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/micro-sensor/sitewhere/internal/capability"
	"github.com/micro-sensor/sitewhere/internal/lifecycle"
	"github.com/micro-sensor/sitewhere/internal/rpc/jsoncodec"

	"github.com/cenkalti/backoff/v4"
	"github.com/containerd/errdefs"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	grpcbackoff "google.golang.org/grpc/backoff"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const (
	// maxReconnectDelay is 15s: peers restart independently of the instance.
	maxReconnectDelay = 15 * time.Second
	minConnectTimeout = 10 * time.Second
)

// Option configures a Channel.
type Option func(*Channel)

// WithReadyTimeout bounds how long start waits for the peer. Zero leaves
// only the caller's context in force.
func WithReadyTimeout(d time.Duration) Option {
	return func(c *Channel) { c.readyTimeout = d }
}

// WithDialOptions appends grpc.DialOptions, after the defaults.
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(c *Channel) { c.dialOpts = append(c.dialOpts, opts...) }
}

// WithProbeBackoff overrides the readiness probe retry policy.
func WithProbeBackoff(newBackoff func() backoff.BackOff) Option {
	return func(c *Channel) { c.newBackoff = newBackoff }
}

// Channel is one outbound connection to a peer service.
type Channel struct {
	*lifecycle.Base

	capability   capability.Name
	service      string
	target       string
	readyTimeout time.Duration
	dialOpts     []grpc.DialOption
	newBackoff   func() backoff.BackOff

	mu   sync.RWMutex
	conn *grpc.ClientConn
}

// New creates the channel carrying name to the gRPC service at target.
func New(name capability.Name, service, target string, opts ...Option) *Channel {
	c := &Channel{
		capability: name,
		service:    service,
		target:     strings.TrimSpace(target),
		newBackoff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff(
				backoff.WithInitialInterval(100*time.Millisecond),
				backoff.WithMaxInterval(2*time.Second),
				backoff.WithMaxElapsedTime(0),
			)
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.Base = lifecycle.NewBase(string(name)+"-channel", lifecycle.Hooks{
		Initialize: c.initialize,
		Start:      c.start,
		Stop:       c.stop,
	})
	return c
}

func (c *Channel) Capability() capability.Name {
	return c.capability
}

func (c *Channel) Service() string {
	return c.service
}

func (c *Channel) Target() string {
	return c.target
}

func (c *Channel) initialize(_ context.Context, m lifecycle.Monitor) error {
	if c.target == "" {
		return lifecycle.ConfigurationErrorf("%s: target is required", c.Name())
	}

	reconnect := grpcbackoff.DefaultConfig
	reconnect.MaxDelay = maxReconnectDelay
	opts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithConnectParams(grpc.ConnectParams{
			Backoff:           reconnect,
			MinConnectTimeout: minConnectTimeout,
		}),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	}, c.dialOpts...)

	conn, err := grpc.NewClient(c.target, opts...)
	if err != nil {
		return lifecycle.ConfigurationErrorf("%s: create client for %q: %w", c.Name(), c.target, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	m.Notify(fmt.Sprintf("%s channel created for %s", c.capability, c.target))
	return nil
}

func (c *Channel) start(ctx context.Context, m lifecycle.Monitor) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if c.readyTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.readyTimeout)
		defer cancel()
	}

	log := slog.With("component", c.Name(), "target", c.target)
	conn.Connect()
	client := healthpb.NewHealthClient(conn)
	attempt := 0
	probe := func() error {
		attempt++
		resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: c.service})
		if err != nil {
			return err
		}
		if s := resp.GetStatus(); s != healthpb.HealthCheckResponse_SERVING {
			return fmt.Errorf("peer reports %s", s)
		}
		return nil
	}
	notify := func(err error, next time.Duration) {
		log.Debug("peer not ready", "attempt", attempt, "backoff", next, "err", err)
	}

	if err := backoff.RetryNotify(probe, backoff.WithContext(c.newBackoff(), ctx), notify); err != nil {
		return lifecycle.ConnectivityErrorf("%s: peer %s not ready after %d attempt(s): %w", c.Name(), c.target, attempt, err)
	}
	m.Notify(fmt.Sprintf("%s peer %s serving", c.capability, c.target))
	return nil
}

func (c *Channel) stop(context.Context, lifecycle.Monitor) error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	if err := conn.Close(); err != nil {
		return fmt.Errorf("%s: close: %w", c.Name(), err)
	}
	return nil
}

// Invoke performs one unary call of method on the channel's service. Peer
// failures come back as *capability.SystemError.
func (c *Channel) Invoke(ctx context.Context, method string, in, out any) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil || c.State() != lifecycle.StateStarted {
		return fmt.Errorf("%s is %s: %w", c.Name(), c.State(), errdefs.ErrUnavailable)
	}

	fullMethod := "/" + c.service + "/" + method
	if err := conn.Invoke(ctx, fullMethod, in, out, grpc.CallContentSubtype(jsoncodec.Name)); err != nil {
		return capability.FromError(err)
	}
	return nil
}
