package instance

import (
	"context"
	"fmt"

	"github.com/micro-sensor/sitewhere/internal/capability"

	"github.com/containerd/errdefs"
)

// The accessors below fail with an unavailable error until the channel
// carrying the capability has started.

func (s *Microservice) DeviceManagement() (capability.DeviceManagement, error) {
	return capability.Lookup[capability.DeviceManagement](s.registry, capability.DeviceManagementName)
}

func (s *Microservice) DeviceEventManagement() (capability.DeviceEventManagement, error) {
	return capability.Lookup[capability.DeviceEventManagement](s.registry, capability.DeviceEventManagementName)
}

func (s *Microservice) AssetManagement() (capability.AssetManagement, error) {
	return capability.Lookup[capability.AssetManagement](s.registry, capability.AssetManagementName)
}

func (s *Microservice) BatchManagement() (capability.BatchManagement, error) {
	return capability.Lookup[capability.BatchManagement](s.registry, capability.BatchManagementName)
}

func (s *Microservice) ScheduleManagement() (capability.ScheduleManagement, error) {
	return capability.Lookup[capability.ScheduleManagement](s.registry, capability.ScheduleManagementName)
}

func (s *Microservice) LabelGeneration() (capability.LabelGeneration, error) {
	return capability.Lookup[capability.LabelGeneration](s.registry, capability.LabelGenerationName)
}

func (s *Microservice) DeviceState() (capability.DeviceState, error) {
	return capability.Lookup[capability.DeviceState](s.registry, capability.DeviceStateName)
}

// Job types and configuration keys of scheduled batch invocations.
const (
	JobTypeBatchCommandInvocation = "BatchCommandInvocation"

	JobKeyCommandToken    = "command_token"
	JobKeyDeviceType      = "device_type"
	JobKeyArea            = "area"
	JobKeyCustomer        = "customer"
	JobKeyAsset           = "asset"
	JobKeyParameterPrefix = "param."
)

// CriteriaInvocation invokes a command on every device matching Criteria,
// either immediately or on the schedule named by ScheduleToken.
type CriteriaInvocation struct {
	CommandToken  string
	Parameters    map[string]string
	Criteria      capability.DeviceCriteria
	ScheduleToken string
}

// InvocationResult holds what InvokeByDeviceCriteria created: a batch
// operation when run immediately, a scheduled job otherwise.
type InvocationResult struct {
	Batch *capability.BatchOperation
	Job   *capability.ScheduledJob
}

// InvokeByDeviceCriteria schedules a batch command invocation when a
// schedule token is given. Otherwise it resolves the matching device tokens
// and creates the batch invocation at once.
func (s *Microservice) InvokeByDeviceCriteria(ctx context.Context, req CriteriaInvocation) (InvocationResult, error) {
	if req.CommandToken == "" {
		return InvocationResult{}, fmt.Errorf("command token is required: %w", errdefs.ErrInvalidArgument)
	}

	if req.ScheduleToken != "" {
		schedules, err := s.ScheduleManagement()
		if err != nil {
			return InvocationResult{}, err
		}
		job, err := schedules.CreateScheduledJob(ctx, capability.ScheduledJobRequest{
			ScheduleToken: req.ScheduleToken,
			JobType:       JobTypeBatchCommandInvocation,
			Configuration: jobConfiguration(req),
		})
		if err != nil {
			return InvocationResult{}, fmt.Errorf("schedule batch invocation: %w", err)
		}
		return InvocationResult{Job: &job}, nil
	}

	devices, err := s.DeviceManagement()
	if err != nil {
		return InvocationResult{}, err
	}
	batches, err := s.BatchManagement()
	if err != nil {
		return InvocationResult{}, err
	}
	tokens, err := devices.ResolveDeviceTokens(ctx, req.Criteria)
	if err != nil {
		return InvocationResult{}, fmt.Errorf("resolve device tokens: %w", err)
	}
	if len(tokens) == 0 {
		return InvocationResult{}, fmt.Errorf("no devices match criteria: %w", errdefs.ErrNotFound)
	}
	op, err := batches.CreateBatchCommandInvocation(ctx, capability.BatchCommandInvocationRequest{
		CommandToken: req.CommandToken,
		Parameters:   req.Parameters,
		DeviceTokens: tokens,
	})
	if err != nil {
		return InvocationResult{}, fmt.Errorf("create batch invocation: %w", err)
	}
	return InvocationResult{Batch: &op}, nil
}

func jobConfiguration(req CriteriaInvocation) map[string]string {
	cfg := map[string]string{JobKeyCommandToken: req.CommandToken}
	for k, v := range map[string]string{
		JobKeyDeviceType: req.Criteria.DeviceType,
		JobKeyArea:       req.Criteria.Area,
		JobKeyCustomer:   req.Criteria.Customer,
		JobKeyAsset:      req.Criteria.Asset,
	} {
		if v != "" {
			cfg[k] = v
		}
	}
	for k, v := range req.Parameters {
		cfg[JobKeyParameterPrefix+k] = v
	}
	return cfg
}
