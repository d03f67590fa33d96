package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aweller/gamewarden/internal/domain"
)

const sampleConfig = `
instance_id: i-0abc
compute:
  base_url: https://compute.example.com
  api_key: compute-key
remote_command:
  base_url: https://cmd.example.com
  api_key: cmd-key
server:
  port: 9000
  secret: hunter2
idle:
  check_interval_minutes: 10
  shutdown_after_minutes: 60
workloads:
  minecraft:
    start:
      - systemctl start minecraft
    stop:
      - systemctl stop minecraft
    player_count:
      - count-players minecraft
    port: 25565
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFileMergesDefaults(t *testing.T) {
	cfg, err := LoadFile(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.InstanceID != "i-0abc" {
		t.Fatalf("instance id = %q", cfg.InstanceID)
	}
	if cfg.Server.Port != 9000 {
		t.Fatalf("port = %d", cfg.Server.Port)
	}
	// Untouched sections keep stock values.
	if cfg.Waiter.Interval() != 5*time.Second || cfg.Waiter.Timeout() != 10*time.Minute {
		t.Fatalf("waiter = %v / %v", cfg.Waiter.Interval(), cfg.Waiter.Timeout())
	}
	if cfg.Retry.SendAttempts != 20 || cfg.Retry.RunAttempts != 40 {
		t.Fatalf("retry = %+v", cfg.Retry)
	}
	if cfg.Idle.CheckInterval() != 10*time.Minute {
		t.Fatalf("check interval = %v", cfg.Idle.CheckInterval())
	}
	if cfg.Idle.ShutdownThreshold() != 6 {
		t.Fatalf("shutdown threshold = %d", cfg.Idle.ShutdownThreshold())
	}

	w, ok := cfg.Workload("minecraft")
	if !ok {
		t.Fatal("minecraft workload missing")
	}
	if w.Name != "minecraft" {
		t.Fatalf("workload name = %q", w.Name)
	}
	if w.Port != 25565 {
		t.Fatalf("workload port = %d", w.Port)
	}
}

func TestLoadFileRejectsMissingInstanceID(t *testing.T) {
	body := strings.Replace(sampleConfig, "instance_id: i-0abc", "", 1)
	_, err := LoadFile(writeConfig(t, body))
	if err == nil || !strings.Contains(err.Error(), "instance_id") {
		t.Fatalf("expected instance_id error, got %v", err)
	}
}

func TestLoadFileRejectsWorkloadWithoutStopCommands(t *testing.T) {
	body := strings.Replace(sampleConfig, "    stop:\n      - systemctl stop minecraft\n", "", 1)
	_, err := LoadFile(writeConfig(t, body))
	if err == nil || !strings.Contains(err.Error(), "stop commands") {
		t.Fatalf("expected stop commands error, got %v", err)
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("WARDEN_INSTANCE_ID", "i-override")
	t.Setenv("WARDEN_COMPUTE_URL", "https://other.example.com")
	t.Setenv("WARDEN_API_SECRET", "swordfish")
	t.Setenv("WARDEN_DEBUG", "true")

	cfg, err := LoadFile(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.InstanceID != "i-override" {
		t.Fatalf("instance id = %q", cfg.InstanceID)
	}
	if cfg.Compute.BaseURL != "https://other.example.com" {
		t.Fatalf("compute url = %q", cfg.Compute.BaseURL)
	}
	if cfg.Server.Secret != "swordfish" {
		t.Fatalf("secret = %q", cfg.Server.Secret)
	}
	if !cfg.Debug {
		t.Fatal("debug not enabled")
	}
	// The file keeps its own remote_command settings.
	if cfg.RemoteCommand.BaseURL != "https://cmd.example.com" {
		t.Fatalf("remote command url = %q", cfg.RemoteCommand.BaseURL)
	}
}

func TestPutWorkloadPersists(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	valheim := domain.Workload{
		Name:          "valheim",
		StartCommands: []string{"systemctl start valheim"},
		StopCommands:  []string{"systemctl stop valheim"},
		Port:          2456,
	}
	if err := cfg.PutWorkload(valheim); err != nil {
		t.Fatalf("put workload: %v", err)
	}

	reloaded, err := LoadFile(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	w, ok := reloaded.Workload("valheim")
	if !ok {
		t.Fatal("valheim missing after reload")
	}
	if w.Port != 2456 || len(w.StartCommands) != 1 {
		t.Fatalf("reloaded workload = %+v", w)
	}
	if _, ok := reloaded.Workload("minecraft"); !ok {
		t.Fatal("existing workload lost on rewrite")
	}
}

func TestWorkloadLookupDuringConcurrentUpsert(t *testing.T) {
	cfg, err := LoadFile(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	valheim := domain.Workload{
		Name:          "valheim",
		StartCommands: []string{"systemctl start valheim"},
		StopCommands:  []string{"systemctl stop valheim"},
		Port:          2456,
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			if err := cfg.PutWorkload(valheim); err != nil {
				t.Errorf("put workload: %v", err)
				return
			}
		}
	}()
	for i := 0; i < 200; i++ {
		cfg.Workload("minecraft")
	}
	<-done

	if _, ok := cfg.Workload("valheim"); !ok {
		t.Fatal("valheim missing after concurrent upserts")
	}
}

func TestPutWorkloadRejectsInvalidDefinition(t *testing.T) {
	cfg, err := LoadFile(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	bad := domain.Workload{Name: "broken", StartCommands: []string{"run"}, Port: 7777}
	if err := cfg.PutWorkload(bad); err == nil {
		t.Fatal("expected validation error")
	}
	if _, ok := cfg.Workload("broken"); ok {
		t.Fatal("invalid workload was stored")
	}
}
