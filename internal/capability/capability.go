// Package capability defines the narrow interfaces through which the
// instance calls its peer services, and the registry that hands them out.
package capability

import (
	"context"
	"time"
)

// Name identifies a remote capability.
type Name string

const (
	DeviceManagementName      Name = "device-management"
	DeviceEventManagementName Name = "device-event-management"
	AssetManagementName       Name = "asset-management"
	BatchManagementName       Name = "batch-management"
	ScheduleManagementName    Name = "schedule-management"
	LabelGenerationName       Name = "label-generation"
	DeviceStateName           Name = "device-state"
)

// Names lists every capability in channel start order.
var Names = []Name{
	DeviceManagementName,
	DeviceEventManagementName,
	AssetManagementName,
	BatchManagementName,
	ScheduleManagementName,
	LabelGenerationName,
	DeviceStateName,
}

type DeviceManagement interface {
	GetDeviceByToken(ctx context.Context, token string) (Device, error)
	// ResolveDeviceTokens returns the tokens of every device matching the
	// criteria.
	ResolveDeviceTokens(ctx context.Context, criteria DeviceCriteria) ([]string, error)
}

type DeviceEventManagement interface {
	GetCommandInvocation(ctx context.Context, id string) (CommandInvocation, error)
	ListCommandInvocations(ctx context.Context, deviceToken string) ([]CommandInvocation, error)
}

type AssetManagement interface {
	GetAssetByToken(ctx context.Context, token string) (Asset, error)
}

type BatchManagement interface {
	CreateBatchCommandInvocation(ctx context.Context, req BatchCommandInvocationRequest) (BatchOperation, error)
	GetBatchOperationByToken(ctx context.Context, token string) (BatchOperation, error)
}

type ScheduleManagement interface {
	GetScheduleByToken(ctx context.Context, token string) (Schedule, error)
	CreateScheduledJob(ctx context.Context, req ScheduledJobRequest) (ScheduledJob, error)
}

type LabelGeneration interface {
	GetDeviceLabel(ctx context.Context, generatorID, deviceToken string) (Label, error)
}

type DeviceState interface {
	GetDeviceStateByAssignment(ctx context.Context, assignmentToken string) (DeviceStateSnapshot, error)
}

type Device struct {
	Token           string            `json:"token"`
	DeviceType      string            `json:"device_type"`
	Comments        string            `json:"comments,omitempty"`
	Status          string            `json:"status,omitempty"`
	AssignmentToken string            `json:"assignment_token,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// DeviceCriteria selects devices for a batch operation.
type DeviceCriteria struct {
	DeviceType      string   `json:"device_type,omitempty"`
	Area            string   `json:"area,omitempty"`
	Customer        string   `json:"customer,omitempty"`
	Asset           string   `json:"asset,omitempty"`
	ExcludeAssigned bool     `json:"exclude_assigned,omitempty"`
	Tokens          []string `json:"tokens,omitempty"`
}

type CommandInvocation struct {
	ID           string            `json:"id"`
	DeviceToken  string            `json:"device_token"`
	CommandToken string            `json:"command_token"`
	Parameters   map[string]string `json:"parameters,omitempty"`
	InitiatedAt  time.Time         `json:"initiated_at"`
}

type Asset struct {
	Token     string `json:"token"`
	Name      string `json:"name"`
	AssetType string `json:"asset_type"`
	ImageURL  string `json:"image_url,omitempty"`
}

// BatchCommandInvocationRequest invokes one command on a set of devices.
type BatchCommandInvocationRequest struct {
	Token        string            `json:"token,omitempty"`
	CommandToken string            `json:"command_token"`
	Parameters   map[string]string `json:"parameters,omitempty"`
	DeviceTokens []string          `json:"device_tokens"`
}

type BatchOperation struct {
	Token            string            `json:"token"`
	OperationType    string            `json:"operation_type"`
	Parameters       map[string]string `json:"parameters,omitempty"`
	ProcessingStatus string            `json:"processing_status"`
	CreatedAt        time.Time         `json:"created_at"`
}

type Schedule struct {
	Token       string    `json:"token"`
	Name        string    `json:"name"`
	TriggerType string    `json:"trigger_type"`
	StartDate   time.Time `json:"start_date,omitempty"`
	EndDate     time.Time `json:"end_date,omitempty"`
}

// ScheduledJobRequest creates a job that runs on a schedule.
type ScheduledJobRequest struct {
	Token         string            `json:"token,omitempty"`
	ScheduleToken string            `json:"schedule_token"`
	JobType       string            `json:"job_type"`
	Configuration map[string]string `json:"configuration,omitempty"`
}

type ScheduledJob struct {
	Token         string            `json:"token"`
	ScheduleToken string            `json:"schedule_token"`
	JobType       string            `json:"job_type"`
	Configuration map[string]string `json:"configuration,omitempty"`
	JobState      string            `json:"job_state"`
}

type Label struct {
	GeneratorID string `json:"generator_id"`
	DeviceToken string `json:"device_token"`
	ContentType string `json:"content_type"`
	Content     []byte `json:"content"`
}

type DeviceStateSnapshot struct {
	AssignmentToken string             `json:"assignment_token"`
	DeviceToken     string             `json:"device_token"`
	LastInteraction time.Time          `json:"last_interaction"`
	Presence        string             `json:"presence,omitempty"`
	Measurements    map[string]float64 `json:"measurements,omitempty"`
}
