package instance

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/micro-sensor/sitewhere/config"
	"github.com/micro-sensor/sitewhere/internal/capability"
	"github.com/micro-sensor/sitewhere/internal/lifecycle"

	"github.com/containerd/errdefs"
)

type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, s)
}

func (l *callLog) take() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := l.calls
	l.calls = nil
	return out
}

type failures map[string]error

func fake(log *callLog, name string, fail failures) *lifecycle.Base {
	hook := func(kind string) lifecycle.Hook {
		return func(context.Context, lifecycle.Monitor) error {
			log.add(kind + " " + name)
			return fail[kind+" "+name]
		}
	}
	return lifecycle.NewBase(name, lifecycle.Hooks{
		Initialize: hook("initialize"),
		Start:      hook("start"),
		Stop:       hook("stop"),
	})
}

type fakeClients struct {
	resolved  []string
	batches   []capability.BatchCommandInvocationRequest
	scheduled []capability.ScheduledJobRequest
}

func (f *fakeClients) GetDeviceByToken(_ context.Context, token string) (capability.Device, error) {
	return capability.Device{Token: token}, nil
}

func (f *fakeClients) ResolveDeviceTokens(context.Context, capability.DeviceCriteria) ([]string, error) {
	return f.resolved, nil
}

func (f *fakeClients) CreateBatchCommandInvocation(_ context.Context, req capability.BatchCommandInvocationRequest) (capability.BatchOperation, error) {
	f.batches = append(f.batches, req)
	return capability.BatchOperation{Token: "batch-1", OperationType: "InvokeCommand"}, nil
}

func (f *fakeClients) GetBatchOperationByToken(_ context.Context, token string) (capability.BatchOperation, error) {
	return capability.BatchOperation{Token: token}, nil
}

func (f *fakeClients) GetScheduleByToken(_ context.Context, token string) (capability.Schedule, error) {
	return capability.Schedule{Token: token}, nil
}

func (f *fakeClients) CreateScheduledJob(_ context.Context, req capability.ScheduledJobRequest) (capability.ScheduledJob, error) {
	f.scheduled = append(f.scheduled, req)
	return capability.ScheduledJob{Token: "job-1", ScheduleToken: req.ScheduleToken, JobType: req.JobType}, nil
}

var channelNames = []string{
	"device-management", "device-event-management", "asset-management",
	"batch-management", "schedule-management", "label-generation", "device-state",
}

func newTestMicroservice(t *testing.T, log *callLog, fail failures, withMetrics bool) (*Microservice, *fakeClients) {
	t.Helper()
	clients := &fakeClients{resolved: []string{"d-1", "d-2"}}
	c := Components{
		Scripts:      fake(log, "scripts", fail),
		Config:       fake(log, "config", fail),
		Store:        fake(log, "store", fail),
		Bootstrap:    fake(log, "bootstrap", fail),
		TenantServer: fake(log, "tenant-server", fail),
		UserServer:   fake(log, "user-server", fail),
	}
	if withMetrics {
		c.Metrics = fake(log, "metrics", fail)
	}
	for i, name := range capability.Names {
		c.Channels = append(c.Channels, Binding{
			Name:    name,
			Channel: fake(log, channelNames[i], fail),
			Client:  clients,
		})
	}
	ms, err := New("Instance Management", c, Timeouts{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return ms, clients
}

func prefixed(kind string, names ...string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = kind + " " + n
	}
	return out
}

var bringUp = append([]string{
	"metrics", "scripts", "config", "store", "bootstrap", "tenant-server", "user-server",
}, channelNames...)

func reversed(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[len(in)-1-i] = s
	}
	return out
}

func TestMicroservice_PhaseOrdering(t *testing.T) {
	log := &callLog{}
	ms, _ := newTestMicroservice(t, log, nil, true)
	ctx := context.Background()

	if err := ms.Initialize(ctx, nil); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if got, want := log.take(), prefixed("initialize", bringUp...); !reflect.DeepEqual(got, want) {
		t.Fatalf("initialize order = %v\nwant %v", got, want)
	}

	if err := ms.Start(ctx, nil); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if got, want := log.take(), prefixed("start", bringUp...); !reflect.DeepEqual(got, want) {
		t.Fatalf("start order = %v\nwant %v", got, want)
	}
	if ms.Phase() != PhaseStarted {
		t.Fatalf("phase = %s, want started", ms.Phase())
	}

	if err := ms.Stop(ctx, nil); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if got, want := log.take(), prefixed("stop", reversed(bringUp)...); !reflect.DeepEqual(got, want) {
		t.Fatalf("stop order = %v\nwant %v", got, want)
	}
	if ms.Phase() != PhaseStopped {
		t.Fatalf("phase = %s, want stopped", ms.Phase())
	}
}

func TestMicroservice_RequiredStartFailureAborts(t *testing.T) {
	log := &callLog{}
	boom := errors.New("peer unreachable")
	ms, _ := newTestMicroservice(t, log, failures{"start batch-management": boom}, false)
	ctx := context.Background()

	if err := ms.Initialize(ctx, nil); err != nil {
		t.Fatal(err)
	}
	log.take()

	err := ms.Start(ctx, nil)
	if !errors.Is(err, boom) {
		t.Fatalf("Start() error = %v, want boom", err)
	}
	var stepErr *lifecycle.StepError
	if !errors.As(err, &stepErr) || stepErr.Component != "batch-management" {
		t.Fatalf("Start() error = %v, want step error naming batch-management", err)
	}
	calls := log.take()
	if last := calls[len(calls)-1]; last != "start batch-management" {
		t.Fatalf("last start = %q, want start batch-management", last)
	}
	for _, c := range calls {
		if c == "start schedule-management" {
			t.Fatal("step after the failure was invoked")
		}
	}
	if ms.Phase() != PhaseFailed {
		t.Fatalf("phase = %s, want failed", ms.Phase())
	}

	// Stop after a failed start still releases everything.
	if err := ms.Stop(ctx, nil); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if got := len(log.take()); got != len(bringUp)-1 {
		t.Fatalf("stop invocations = %d, want %d", got, len(bringUp)-1)
	}
}

func TestMicroservice_OptionalMetricsFailureContinues(t *testing.T) {
	log := &callLog{}
	ms, _ := newTestMicroservice(t, log, failures{"initialize metrics": errors.New("port in use")}, true)
	if err := ms.Initialize(context.Background(), nil); err != nil {
		t.Fatalf("Initialize() error = %v, want degraded success", err)
	}
	if got := len(log.take()); got != len(bringUp) {
		t.Fatalf("initialize invocations = %d, want %d", got, len(bringUp))
	}
	initPhase, _, _ := ms.Plan()
	if f := initPhase.Failures(); len(f) != 1 || f[0].Component != "metrics" {
		t.Fatalf("recorded failures = %v", f)
	}
}

func TestMicroservice_StopAggregatesFailures(t *testing.T) {
	log := &callLog{}
	ms, _ := newTestMicroservice(t, log, failures{
		"stop store":        errors.New("close db"),
		"stop device-state": errors.New("close conn"),
	}, false)
	ctx := context.Background()
	if err := ms.Initialize(ctx, nil); err != nil {
		t.Fatal(err)
	}
	if err := ms.Start(ctx, nil); err != nil {
		t.Fatal(err)
	}
	log.take()

	err := ms.Stop(ctx, nil)
	var agg *lifecycle.AggregateError
	if !errors.As(err, &agg) || len(agg.Failures) != 2 {
		t.Fatalf("Stop() error = %v, want aggregate of 2", err)
	}
	if got := len(log.take()); got != len(bringUp)-1 {
		t.Fatalf("stop invocations = %d, want all %d", got, len(bringUp)-1)
	}
	if ms.Phase() != PhaseStopped {
		t.Fatalf("phase = %s, want stopped", ms.Phase())
	}
}

func TestMicroservice_PhaseOrderEnforced(t *testing.T) {
	log := &callLog{}
	ms, _ := newTestMicroservice(t, log, nil, false)
	ctx := context.Background()

	if err := ms.Start(ctx, nil); !errdefs.IsFailedPrecondition(err) {
		t.Fatalf("Start() before Initialize error = %v, want invalid state", err)
	}
	if err := ms.Stop(ctx, nil); err != nil {
		t.Fatalf("Stop() before Initialize error = %v, want no-op", err)
	}
	if err := ms.Initialize(ctx, nil); err != nil {
		t.Fatal(err)
	}
	if err := ms.Initialize(ctx, nil); !errdefs.IsFailedPrecondition(err) {
		t.Fatalf("second Initialize() error = %v, want invalid state", err)
	}
	if len(log.take()) != len(bringUp)-1 {
		t.Fatal("rejected phases invoked components")
	}
}

func TestMicroservice_AccessorsRequireStartedChannels(t *testing.T) {
	log := &callLog{}
	ms, _ := newTestMicroservice(t, log, nil, false)
	ctx := context.Background()

	if _, err := ms.AssetManagement(); !errdefs.IsUnavailable(err) {
		t.Fatalf("AssetManagement() before start error = %v, want unavailable", err)
	}
	if err := ms.Initialize(ctx, nil); err != nil {
		t.Fatal(err)
	}
	if err := ms.Start(ctx, nil); err != nil {
		t.Fatal(err)
	}

	if _, err := ms.DeviceManagement(); err != nil {
		t.Fatalf("DeviceManagement() error = %v", err)
	}
	if _, err := ms.BatchManagement(); err != nil {
		t.Fatalf("BatchManagement() error = %v", err)
	}
	if _, err := ms.ScheduleManagement(); err != nil {
		t.Fatalf("ScheduleManagement() error = %v", err)
	}
	// The shared fake does not implement every capability.
	if _, err := ms.LabelGeneration(); !errdefs.IsInvalidArgument(err) {
		t.Fatalf("LabelGeneration() error = %v, want type mismatch", err)
	}
}

func TestMicroservice_InvokeByDeviceCriteria(t *testing.T) {
	log := &callLog{}
	ms, clients := newTestMicroservice(t, log, nil, false)
	ctx := context.Background()
	if err := ms.Initialize(ctx, nil); err != nil {
		t.Fatal(err)
	}
	if err := ms.Start(ctx, nil); err != nil {
		t.Fatal(err)
	}

	res, err := ms.InvokeByDeviceCriteria(ctx, CriteriaInvocation{
		CommandToken: "reboot",
		Criteria:     capability.DeviceCriteria{DeviceType: "sensor"},
	})
	if err != nil {
		t.Fatalf("InvokeByDeviceCriteria() error = %v", err)
	}
	if res.Batch == nil || res.Job != nil {
		t.Fatalf("immediate result = %+v, want batch only", res)
	}
	if got := clients.batches[0].DeviceTokens; !reflect.DeepEqual(got, []string{"d-1", "d-2"}) {
		t.Fatalf("batch devices = %v", got)
	}

	res, err = ms.InvokeByDeviceCriteria(ctx, CriteriaInvocation{
		CommandToken:  "reboot",
		Parameters:    map[string]string{"delay": "5"},
		Criteria:      capability.DeviceCriteria{Area: "north"},
		ScheduleToken: "nightly",
	})
	if err != nil {
		t.Fatalf("scheduled InvokeByDeviceCriteria() error = %v", err)
	}
	if res.Job == nil || res.Job.ScheduleToken != "nightly" {
		t.Fatalf("scheduled result = %+v", res)
	}
	cfg := clients.scheduled[0].Configuration
	if cfg[JobKeyCommandToken] != "reboot" || cfg[JobKeyArea] != "north" || cfg[JobKeyParameterPrefix+"delay"] != "5" {
		t.Fatalf("job configuration = %v", cfg)
	}
	if _, ok := cfg[JobKeyDeviceType]; ok {
		t.Fatal("empty criteria leaked into job configuration")
	}

	clients.resolved = nil
	if _, err := ms.InvokeByDeviceCriteria(ctx, CriteriaInvocation{CommandToken: "reboot"}); !errdefs.IsNotFound(err) {
		t.Fatalf("no matching devices error = %v, want not found", err)
	}
	if _, err := ms.InvokeByDeviceCriteria(ctx, CriteriaInvocation{}); !errdefs.IsInvalidArgument(err) {
		t.Fatalf("missing command error = %v, want invalid argument", err)
	}
}

func TestNew_RejectsMissingComponents(t *testing.T) {
	log := &callLog{}
	c := Components{
		Scripts: fake(log, "scripts", nil),
	}
	_, err := New("x", c, Timeouts{})
	if class, ok := lifecycle.ClassOf(err); !ok || class != lifecycle.ClassConfiguration {
		t.Fatalf("New() error = %v, want configuration", err)
	}
}

func TestBuild_DeclaresFullPlan(t *testing.T) {
	cfg := config.Default()
	cfg.DataRoot = t.TempDir()
	for _, p := range []*config.Peer{
		&cfg.Peers.DeviceManagement, &cfg.Peers.DeviceEventManagement, &cfg.Peers.AssetManagement,
		&cfg.Peers.BatchManagement, &cfg.Peers.ScheduleManagement, &cfg.Peers.LabelGeneration,
		&cfg.Peers.DeviceState,
	} {
		p.Target = "dns:///peer:9000"
	}

	ms, err := Build(cfg)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	initPhase, start, stop := ms.Plan()
	if n := len(initPhase.Steps()); n != 13 {
		t.Fatalf("initialize steps = %d, want 13", n)
	}
	if n := len(start.Steps()); n != 13 {
		t.Fatalf("start steps = %d, want 13", n)
	}
	steps := stop.Steps()
	if first, last := steps[0].Component.Name(), steps[len(steps)-1].Component.Name(); first != "device-state-channel" || last != "script-synchronizer" {
		t.Fatalf("stop runs %s..%s, want device-state-channel..script-synchronizer", first, last)
	}
	for _, s := range initPhase.Steps() {
		if !s.Required {
			t.Fatalf("step %s not required", s.Name())
		}
	}
}

func TestMicroservice_TimedOutStartIsReleasedByStop(t *testing.T) {
	log := &callLog{}
	clients := &fakeClients{}
	c := Components{
		Scripts:      fake(log, "scripts", nil),
		Config:       fake(log, "config", nil),
		Store:        fake(log, "store", nil),
		Bootstrap:    fake(log, "bootstrap", nil),
		TenantServer: fake(log, "tenant-server", nil),
		UserServer:   fake(log, "user-server", nil),
	}
	var batch *lifecycle.Base
	for i, name := range capability.Names {
		ch := fake(log, channelNames[i], nil)
		if name == capability.BatchManagementName {
			batch = lifecycle.NewBase(channelNames[i], lifecycle.Hooks{
				Start: func(ctx context.Context, _ lifecycle.Monitor) error {
					<-ctx.Done()
					return ctx.Err()
				},
				Stop: func(context.Context, lifecycle.Monitor) error {
					log.add("stop " + channelNames[i])
					return nil
				},
			})
			ch = batch
		}
		c.Channels = append(c.Channels, Binding{Name: name, Channel: ch, Client: clients})
	}
	ms, err := New("Instance Management", c, Timeouts{Step: 20 * time.Millisecond, Stop: time.Second})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx := context.Background()
	if err := ms.Initialize(ctx, nil); err != nil {
		t.Fatal(err)
	}
	err = ms.Start(ctx, nil)
	if class, ok := lifecycle.ClassOf(err); !ok || class != lifecycle.ClassConnectivity {
		t.Fatalf("Start() error = %v, want connectivity", err)
	}
	if ms.Phase() != PhaseFailed {
		t.Fatalf("phase = %s, want failed", ms.Phase())
	}
	log.take()

	if err := ms.Stop(ctx, nil); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	stopped := log.take()
	found := false
	for _, call := range stopped {
		if call == "stop batch-management" {
			found = true
		}
	}
	if !found {
		t.Fatalf("stop calls = %v, want batch-management released", stopped)
	}
	if batch.State() != lifecycle.StateStopped {
		t.Fatalf("batch channel state = %s, want stopped", batch.State())
	}
	if ms.Phase() != PhaseStopped {
		t.Fatalf("phase = %s, want stopped", ms.Phase())
	}
	if _, err := ms.BatchManagement(); !errdefs.IsUnavailable(err) {
		t.Fatalf("BatchManagement() error = %v, want unavailable", err)
	}
}
