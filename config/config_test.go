package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const validYAML = `
instance:
  id: acme
data_root: /tmp/sitewhere
lifecycle:
  step_timeout: 5s
servers:
  user_management:
    address: 127.0.0.1:9100
  tenant_management:
    address: 127.0.0.1:9101
peers:
  device_management: {target: "device:9000"}
  device_event_management: {target: "event:9000"}
  asset_management: {target: "asset:9000"}
  batch_management: {target: "batch:9000", ready_timeout: 2s}
  schedule_management: {target: "schedule:9000"}
  label_generation: {target: "label:9000"}
  device_state: {target: "state:9000"}
`

func TestParse_AppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(validYAML))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.Instance.ID != "acme" {
		t.Errorf("Instance.ID = %q, want acme", cfg.Instance.ID)
	}
	if cfg.Instance.Name != "Instance Management" {
		t.Errorf("Instance.Name = %q, want default", cfg.Instance.Name)
	}
	if cfg.Lifecycle.StepTimeout != 5*time.Second {
		t.Errorf("StepTimeout = %s, want 5s", cfg.Lifecycle.StepTimeout)
	}
	if cfg.Lifecycle.StopTimeout != defaultStopTimeout {
		t.Errorf("StopTimeout = %s, want default", cfg.Lifecycle.StopTimeout)
	}
	if cfg.Peers.BatchManagement.ReadyTimeout != 2*time.Second {
		t.Errorf("batch ReadyTimeout = %s, want 2s", cfg.Peers.BatchManagement.ReadyTimeout)
	}
	if got, want := cfg.StorePath(), filepath.Join("/tmp/sitewhere", "management.db"); got != want {
		t.Errorf("StorePath() = %q, want %q", got, want)
	}
}

func TestParse_MissingPeerTarget(t *testing.T) {
	data := strings.Replace(validYAML, `label_generation: {target: "label:9000"}`, `label_generation: {}`, 1)
	_, err := Parse([]byte(data))
	if err == nil {
		t.Fatal("Parse() error = nil, want validation failure")
	}
	if !strings.Contains(err.Error(), "LabelGeneration.Target") {
		t.Fatalf("error %q does not name the missing field", err)
	}
}

func TestParse_RejectsUnknownKeys(t *testing.T) {
	_, err := Parse([]byte(validYAML + "\nbogus: true\n"))
	if err == nil {
		t.Fatal("Parse() error = nil, want unknown field error")
	}
}

func TestParse_MetricsAddressRequiredWhenEnabled(t *testing.T) {
	data := validYAML + "\nmetrics:\n  enabled: true\n  address: \"\"\n"
	if _, err := Parse([]byte(data)); err == nil {
		t.Fatal("Parse() error = nil, want metrics address failure")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("Load() error = %v, want not found", err)
	}
}

func TestLoad_ReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "instance.yaml")
	if err := os.WriteFile(path, []byte(validYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Servers.UserManagement.Address != "127.0.0.1:9100" {
		t.Fatalf("user server address = %q", cfg.Servers.UserManagement.Address)
	}
}
