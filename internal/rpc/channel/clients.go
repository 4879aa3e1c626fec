package channel

import (
	"context"

	"github.com/micro-sensor/sitewhere/internal/capability"
)

// gRPC service names of the peer APIs.
const (
	DeviceManagementService      = "sitewhere.device.DeviceManagement"
	DeviceEventManagementService = "sitewhere.event.DeviceEventManagement"
	AssetManagementService       = "sitewhere.asset.AssetManagement"
	BatchManagementService       = "sitewhere.batch.BatchManagement"
	ScheduleManagementService    = "sitewhere.schedule.ScheduleManagement"
	LabelGenerationService       = "sitewhere.label.LabelGeneration"
	DeviceStateService           = "sitewhere.devicestate.DeviceState"
)

// Services maps each capability to the service its channel calls.
var Services = map[capability.Name]string{
	capability.DeviceManagementName:      DeviceManagementService,
	capability.DeviceEventManagementName: DeviceEventManagementService,
	capability.AssetManagementName:       AssetManagementService,
	capability.BatchManagementName:       BatchManagementService,
	capability.ScheduleManagementName:    ScheduleManagementService,
	capability.LabelGenerationName:       LabelGenerationService,
	capability.DeviceStateName:           DeviceStateService,
}

// ForCapability creates the channel for name using its registered service.
func ForCapability(name capability.Name, target string, opts ...Option) *Channel {
	return New(name, Services[name], target, opts...)
}

// Client returns the typed client for the channel's capability.
func Client(c *Channel) any {
	switch c.capability {
	case capability.DeviceManagementName:
		return DeviceManagement{c}
	case capability.DeviceEventManagementName:
		return DeviceEventManagement{c}
	case capability.AssetManagementName:
		return AssetManagement{c}
	case capability.BatchManagementName:
		return BatchManagement{c}
	case capability.ScheduleManagementName:
		return ScheduleManagement{c}
	case capability.LabelGenerationName:
		return LabelGeneration{c}
	case capability.DeviceStateName:
		return DeviceState{c}
	default:
		return nil
	}
}

type tokenRequest struct {
	Token string `json:"token"`
}

type DeviceManagement struct{ ch *Channel }

var _ capability.DeviceManagement = DeviceManagement{}

func (d DeviceManagement) GetDeviceByToken(ctx context.Context, token string) (capability.Device, error) {
	var out capability.Device
	err := d.ch.Invoke(ctx, "GetDeviceByToken", &tokenRequest{Token: token}, &out)
	return out, err
}

type resolveTokensResponse struct {
	Tokens []string `json:"tokens"`
}

func (d DeviceManagement) ResolveDeviceTokens(ctx context.Context, criteria capability.DeviceCriteria) ([]string, error) {
	var out resolveTokensResponse
	if err := d.ch.Invoke(ctx, "ResolveDeviceTokens", &criteria, &out); err != nil {
		return nil, err
	}
	return out.Tokens, nil
}

type DeviceEventManagement struct{ ch *Channel }

var _ capability.DeviceEventManagement = DeviceEventManagement{}

type invocationRequest struct {
	ID string `json:"id"`
}

type listInvocationsRequest struct {
	DeviceToken string `json:"device_token"`
}

type listInvocationsResponse struct {
	Invocations []capability.CommandInvocation `json:"invocations"`
}

func (d DeviceEventManagement) GetCommandInvocation(ctx context.Context, id string) (capability.CommandInvocation, error) {
	var out capability.CommandInvocation
	err := d.ch.Invoke(ctx, "GetCommandInvocation", &invocationRequest{ID: id}, &out)
	return out, err
}

func (d DeviceEventManagement) ListCommandInvocations(ctx context.Context, deviceToken string) ([]capability.CommandInvocation, error) {
	var out listInvocationsResponse
	if err := d.ch.Invoke(ctx, "ListCommandInvocations", &listInvocationsRequest{DeviceToken: deviceToken}, &out); err != nil {
		return nil, err
	}
	return out.Invocations, nil
}

type AssetManagement struct{ ch *Channel }

var _ capability.AssetManagement = AssetManagement{}

func (a AssetManagement) GetAssetByToken(ctx context.Context, token string) (capability.Asset, error) {
	var out capability.Asset
	err := a.ch.Invoke(ctx, "GetAssetByToken", &tokenRequest{Token: token}, &out)
	return out, err
}

type BatchManagement struct{ ch *Channel }

var _ capability.BatchManagement = BatchManagement{}

func (b BatchManagement) CreateBatchCommandInvocation(ctx context.Context, req capability.BatchCommandInvocationRequest) (capability.BatchOperation, error) {
	var out capability.BatchOperation
	err := b.ch.Invoke(ctx, "CreateBatchCommandInvocation", &req, &out)
	return out, err
}

func (b BatchManagement) GetBatchOperationByToken(ctx context.Context, token string) (capability.BatchOperation, error) {
	var out capability.BatchOperation
	err := b.ch.Invoke(ctx, "GetBatchOperationByToken", &tokenRequest{Token: token}, &out)
	return out, err
}

type ScheduleManagement struct{ ch *Channel }

var _ capability.ScheduleManagement = ScheduleManagement{}

func (s ScheduleManagement) GetScheduleByToken(ctx context.Context, token string) (capability.Schedule, error) {
	var out capability.Schedule
	err := s.ch.Invoke(ctx, "GetScheduleByToken", &tokenRequest{Token: token}, &out)
	return out, err
}

func (s ScheduleManagement) CreateScheduledJob(ctx context.Context, req capability.ScheduledJobRequest) (capability.ScheduledJob, error) {
	var out capability.ScheduledJob
	err := s.ch.Invoke(ctx, "CreateScheduledJob", &req, &out)
	return out, err
}

type LabelGeneration struct{ ch *Channel }

var _ capability.LabelGeneration = LabelGeneration{}

type labelRequest struct {
	GeneratorID string `json:"generator_id"`
	DeviceToken string `json:"device_token"`
}

func (l LabelGeneration) GetDeviceLabel(ctx context.Context, generatorID, deviceToken string) (capability.Label, error) {
	var out capability.Label
	err := l.ch.Invoke(ctx, "GetDeviceLabel", &labelRequest{GeneratorID: generatorID, DeviceToken: deviceToken}, &out)
	return out, err
}

type DeviceState struct{ ch *Channel }

var _ capability.DeviceState = DeviceState{}

type assignmentRequest struct {
	AssignmentToken string `json:"assignment_token"`
}

func (d DeviceState) GetDeviceStateByAssignment(ctx context.Context, assignmentToken string) (capability.DeviceStateSnapshot, error) {
	var out capability.DeviceStateSnapshot
	err := d.ch.Invoke(ctx, "GetDeviceStateByAssignment", &assignmentRequest{AssignmentToken: assignmentToken}, &out)
	return out, err
}
