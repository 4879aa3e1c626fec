package lifecycle

import (
	"context"
	"errors"
	"testing"

	"github.com/containerd/errdefs"
)

func TestBase_FullLifecycle(t *testing.T) {
	var order []string
	hook := func(name string) Hook {
		return func(context.Context, Monitor) error {
			order = append(order, name)
			return nil
		}
	}
	b := NewBase("svc", Hooks{Initialize: hook("init"), Start: hook("start"), Stop: hook("stop")})
	ctx := context.Background()

	if b.State() != StateCreated {
		t.Fatalf("initial state = %s, want created", b.State())
	}
	if err := b.Initialize(ctx, nil); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if b.State() != StateInitialized {
		t.Fatalf("state = %s, want initialized", b.State())
	}
	if err := b.Start(ctx, nil); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if b.State() != StateStarted {
		t.Fatalf("state = %s, want started", b.State())
	}
	if err := b.Stop(ctx, nil); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if b.State() != StateStopped {
		t.Fatalf("state = %s, want stopped", b.State())
	}

	// A stopped component can be initialized again.
	if err := b.Initialize(ctx, nil); err != nil {
		t.Fatalf("re-Initialize() error = %v", err)
	}
	if len(order) != 4 {
		t.Fatalf("hook order = %v", order)
	}
}

func TestBase_DoubleInitializeIsRejected(t *testing.T) {
	b := NewBase("svc", Hooks{})
	ctx := context.Background()
	if err := b.Initialize(ctx, nil); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	err := b.Initialize(ctx, nil)
	if class, ok := ClassOf(err); !ok || class != ClassInvalidState {
		t.Fatalf("second Initialize() error = %v, want invalid state", err)
	}
	if !errdefs.IsFailedPrecondition(err) {
		t.Fatalf("errdefs.IsFailedPrecondition(%v) = false", err)
	}
	if b.State() != StateInitialized {
		t.Fatalf("state = %s, want initialized", b.State())
	}
}

func TestBase_StartRequiresInitialized(t *testing.T) {
	started := false
	b := NewBase("svc", Hooks{Start: func(context.Context, Monitor) error {
		started = true
		return nil
	}})

	err := b.Start(context.Background(), nil)
	if class, ok := ClassOf(err); !ok || class != ClassInvalidState {
		t.Fatalf("Start() error = %v, want invalid state", err)
	}
	if started {
		t.Fatal("start hook ran on a never-initialized component")
	}
}

func TestBase_StopIsNoopWhenStoppedOrNeverInitialized(t *testing.T) {
	calls := 0
	b := NewBase("svc", Hooks{Stop: func(context.Context, Monitor) error {
		calls++
		return nil
	}})
	ctx := context.Background()

	if err := b.Stop(ctx, nil); err != nil {
		t.Fatalf("Stop() on created error = %v", err)
	}
	if err := b.Initialize(ctx, nil); err != nil {
		t.Fatal(err)
	}
	if err := b.Stop(ctx, nil); err != nil {
		t.Fatalf("Stop() on initialized error = %v", err)
	}
	if err := b.Stop(ctx, nil); err != nil {
		t.Fatalf("Stop() on stopped error = %v", err)
	}
	if calls != 1 {
		t.Fatalf("stop hook calls = %d, want 1", calls)
	}
}

func TestBase_FailedComponentCanBeStopped(t *testing.T) {
	released := false
	b := NewBase("svc", Hooks{
		Initialize: func(context.Context, Monitor) error {
			return ConfigurationErrorf("missing address")
		},
		Stop: func(context.Context, Monitor) error {
			released = true
			return nil
		},
	})
	ctx := context.Background()

	err := b.Initialize(ctx, nil)
	if !errdefs.IsInvalidArgument(err) {
		t.Fatalf("Initialize() error = %v, want configuration error", err)
	}
	if b.State() != StateFailed {
		t.Fatalf("state = %s, want failed", b.State())
	}
	if err := b.Start(ctx, nil); err == nil {
		t.Fatal("Start() on failed component succeeded")
	}
	if err := b.Stop(ctx, nil); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if !released {
		t.Fatal("stop hook did not run for failed component")
	}
	if b.State() != StateStopped {
		t.Fatalf("state = %s, want stopped", b.State())
	}
}

func TestWrap_KeepsExistingClass(t *testing.T) {
	inner := ConnectivityErrorf("dial failed")
	if got := Wrap(ClassConfiguration, inner); got != inner {
		t.Fatalf("Wrap() = %v, want original error", got)
	}
	if Wrap(ClassConfiguration, nil) != nil {
		t.Fatal("Wrap(nil) != nil")
	}
	plain := errors.New("plain")
	wrapped := Wrap(ClassConnectivity, plain)
	if !errors.Is(wrapped, plain) || !errdefs.IsUnavailable(wrapped) {
		t.Fatalf("Wrap() = %v, want unavailable wrapping plain", wrapped)
	}
}
