package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	body := `instance:
  id: test-instance
  name: Instance Management
data_root: ` + filepath.Join(dir, "data") + `
servers:
  user_management:
    address: 127.0.0.1:0
  tenant_management:
    address: 127.0.0.1:0
peers:
  device_management: {target: "127.0.0.1:1"}
  device_event_management: {target: "127.0.0.1:1"}
  asset_management: {target: "127.0.0.1:1"}
  batch_management: {target: "127.0.0.1:1"}
  schedule_management: {target: "127.0.0.1:1"}
  label_generation: {target: "127.0.0.1:1"}
  device_state: {target: "127.0.0.1:1"}
`
	path := filepath.Join(dir, "instance.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestValidateConfig(t *testing.T) {
	out, err := execute(t, "validate-config", "--config", writeConfig(t))
	if err != nil {
		t.Fatalf("validate-config error = %v\n%s", err, out)
	}
	if !strings.Contains(out, "test-instance") {
		t.Fatalf("output missing instance id:\n%s", out)
	}
	if !strings.Contains(out, "metrics exporter disabled") {
		t.Fatalf("output missing metrics notice:\n%s", out)
	}
}

func TestValidateConfig_MissingFile(t *testing.T) {
	_, err := execute(t, "validate-config", "--config", filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatal("validate-config succeeded for a missing file")
	}
}

func TestPlan_ListsStepsInOrder(t *testing.T) {
	out, err := execute(t, "plan", "--config", writeConfig(t))
	if err != nil {
		t.Fatalf("plan error = %v\n%s", err, out)
	}

	for _, want := range []string{"Initialize Instance Management", "Start Instance Management", "Stop Instance Management"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
	store := strings.Index(out, "start management-store")
	bootstrap := strings.Index(out, "start instance-bootstrapper")
	if store < 0 || bootstrap < 0 || store > bootstrap {
		t.Fatalf("store must start before bootstrap:\n%s", out)
	}
}
