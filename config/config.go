// Package config loads the instance configuration file.
//
// The file is YAML, read from the path given on the command line (defaults
// to /etc/sitewhere/instance.yaml). Missing fields take the values from
// Default; the merged result is validated before use.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPath        = "/etc/sitewhere/instance.yaml"
	defaultLinuxRoot   = "/var/lib/sitewhere"
	defaultDarwinRoot  = "Library/Application Support/sitewhere"
	defaultStepTimeout = 30 * time.Second
	defaultStopTimeout = 60 * time.Second
	defaultSyncPeriod  = 10 * time.Second
)

// Config is the complete instance configuration.
type Config struct {
	Instance  Instance  `yaml:"instance"`
	DataRoot  string    `yaml:"data_root" validate:"required"`
	Log       Log       `yaml:"log"`
	Lifecycle Lifecycle `yaml:"lifecycle"`
	Scripts   Scripts   `yaml:"scripts"`
	Metrics   Metrics   `yaml:"metrics"`
	Servers   Servers   `yaml:"servers"`
	Peers     Peers     `yaml:"peers"`
}

// Instance identifies this service instance.
type Instance struct {
	ID   string `yaml:"id" validate:"required"`
	Name string `yaml:"name"`
}

type Log struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `yaml:"format" validate:"omitempty,oneof=text json"`
}

// Lifecycle bounds each lifecycle step. StepTimeout applies to initialize
// and start steps, StopTimeout to the whole stop phase.
type Lifecycle struct {
	StepTimeout time.Duration `yaml:"step_timeout" validate:"gte=0"`
	StopTimeout time.Duration `yaml:"stop_timeout" validate:"gte=0"`
}

// Scripts configures the script synchronizer. Source is the directory
// scripts are pulled from; they are mirrored under DataRoot/scripts.
type Scripts struct {
	Source       string        `yaml:"source"`
	SyncInterval time.Duration `yaml:"sync_interval" validate:"gte=0"`
}

type Metrics struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address" validate:"required_if=Enabled true,omitempty,hostname_port"`
}

// Servers holds the inbound gRPC listeners.
type Servers struct {
	UserManagement   Server `yaml:"user_management"`
	TenantManagement Server `yaml:"tenant_management"`
}

type Server struct {
	Address    string `yaml:"address" validate:"required,hostname_port"`
	Reflection bool   `yaml:"reflection"`
}

// Peers holds the outbound gRPC channels to peer services.
type Peers struct {
	DeviceManagement      Peer `yaml:"device_management"`
	DeviceEventManagement Peer `yaml:"device_event_management"`
	AssetManagement       Peer `yaml:"asset_management"`
	BatchManagement       Peer `yaml:"batch_management"`
	ScheduleManagement    Peer `yaml:"schedule_management"`
	LabelGeneration       Peer `yaml:"label_generation"`
	DeviceState           Peer `yaml:"device_state"`
}

// Peer is one outbound channel target.
type Peer struct {
	Target string `yaml:"target" validate:"required"`
	// ReadyTimeout bounds how long start waits for the peer to report
	// serving. Zero leaves only the lifecycle step timeout in force.
	ReadyTimeout time.Duration `yaml:"ready_timeout" validate:"gte=0"`
}

// Default returns the configuration used for fields the file leaves empty.
func Default() Config {
	return Config{
		Instance: Instance{ID: "sitewhere", Name: "Instance Management"},
		DataRoot: DefaultDataRoot(),
		Log:      Log{Level: "info", Format: "text"},
		Lifecycle: Lifecycle{
			StepTimeout: defaultStepTimeout,
			StopTimeout: defaultStopTimeout,
		},
		Scripts: Scripts{SyncInterval: defaultSyncPeriod},
		Metrics: Metrics{Address: "127.0.0.1:9090"},
		Servers: Servers{
			UserManagement:   Server{Address: "0.0.0.0:9000"},
			TenantManagement: Server{Address: "0.0.0.0:9001"},
		},
	}
}

// DefaultDataRoot is the platform-specific state directory.
func DefaultDataRoot() string {
	if runtime.GOOS == "darwin" {
		home, err := os.UserHomeDir()
		if err != nil {
			return defaultLinuxRoot
		}
		return filepath.Join(home, defaultDarwinRoot)
	}
	return defaultLinuxRoot
}

// Load reads, defaults and validates the configuration at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("config file %q not found", path)
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over Default and validates the result. Unknown keys are
// rejected.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	cfg.DataRoot = strings.TrimSpace(cfg.DataRoot)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and reports every violation.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate config: %w", err)
	}
	msgs := make([]error, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Errorf("%s: failed %q constraint", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("invalid config: %w", errors.Join(msgs...))
}

// ScriptsDir is where synchronized scripts live.
func (c Config) ScriptsDir() string {
	return filepath.Join(c.DataRoot, "scripts")
}

// StorePath is the management database file.
func (c Config) StorePath() string {
	return filepath.Join(c.DataRoot, "management.db")
}
