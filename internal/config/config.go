package config

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aweller/gamewarden/internal/domain"
)

// Build-time variables injected via -ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const defaultConfigPath = "/etc/gamewarden/config.yaml"

// Config holds all agent configuration, loaded once from a YAML file with
// environment overrides. The workload table is the only part that is ever
// mutated after load, and only through PutWorkload, which rewrites the file.
type Config struct {
	// InstanceID identifies the single instance this agent manages.
	InstanceID string `yaml:"instance_id"`

	// Compute is the instance-control API endpoint.
	Compute APIConfig `yaml:"compute"`

	// RemoteCommand is the remote-command-execution API endpoint.
	RemoteCommand APIConfig `yaml:"remote_command"`

	Server ServerConfig `yaml:"server"`
	Waiter WaiterConfig `yaml:"waiter"`
	Retry  RetryConfig  `yaml:"retry"`
	Idle   IdleConfig   `yaml:"idle"`

	// Workloads maps workload name to its commands and port.
	Workloads map[string]domain.Workload `yaml:"workloads"`

	// Debug enables verbose logging.
	Debug bool `yaml:"debug"`

	// LogDir is the directory for log files.
	LogDir string `yaml:"log_dir"`

	path string
	mu   sync.Mutex
}

type APIConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

type ServerConfig struct {
	Port   int    `yaml:"port"`
	Secret string `yaml:"secret"`
}

// WaiterConfig tunes the poll loop that waits for instance state changes.
type WaiterConfig struct {
	IntervalSeconds int `yaml:"interval_seconds"`
	TimeoutSeconds  int `yaml:"timeout_seconds"`
}

func (w WaiterConfig) Interval() time.Duration { return time.Duration(w.IntervalSeconds) * time.Second }
func (w WaiterConfig) Timeout() time.Duration  { return time.Duration(w.TimeoutSeconds) * time.Second }

// RetryConfig tunes the three retry tiers of the command runner.
type RetryConfig struct {
	SendAttempts     int `yaml:"send_attempts"`
	SendDelaySeconds int `yaml:"send_delay_seconds"`
	PollAttempts     int `yaml:"poll_attempts"`
	PollDelaySeconds int `yaml:"poll_delay_seconds"`
	RunAttempts      int `yaml:"run_attempts"`
	RunDelaySeconds  int `yaml:"run_delay_seconds"`
}

type IdleConfig struct {
	// CheckIntervalMinutes is how often the idle monitor samples the player
	// count while a workload is active.
	CheckIntervalMinutes int `yaml:"check_interval_minutes"`

	// ShutdownAfterMinutes is how long the workload may stay empty before the
	// instance is stopped autonomously.
	ShutdownAfterMinutes int `yaml:"shutdown_after_minutes"`
}

func (i IdleConfig) CheckInterval() time.Duration {
	return time.Duration(i.CheckIntervalMinutes) * time.Minute
}

// ShutdownThreshold is the number of consecutive empty checks that trigger
// the autonomous shutdown.
func (i IdleConfig) ShutdownThreshold() int {
	if i.CheckIntervalMinutes <= 0 {
		return 1
	}
	n := i.ShutdownAfterMinutes / i.CheckIntervalMinutes
	if n < 1 {
		n = 1
	}
	return n
}

// Default returns a Config populated with the stock tuning values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Port: 8420},
		Waiter: WaiterConfig{IntervalSeconds: 5, TimeoutSeconds: 600},
		Retry: RetryConfig{
			SendAttempts:     20,
			SendDelaySeconds: 5,
			PollAttempts:     40,
			PollDelaySeconds: 1,
			RunAttempts:      40,
			RunDelaySeconds:  15,
		},
		Idle:      IdleConfig{CheckIntervalMinutes: 5, ShutdownAfterMinutes: 30},
		Workloads: map[string]domain.Workload{},
		LogDir:    "/var/log/gamewarden",
	}
}

// Load reads the config file (WARDEN_CONFIG or the default path), applies
// environment overrides and validates the result.
func Load() (*Config, error) {
	path := strings.TrimSpace(os.Getenv("WARDEN_CONFIG"))
	if path == "" {
		path = defaultConfigPath
	}
	return LoadFile(path)
}

// LoadFile reads and validates the config at an explicit path.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	cfg.path = path

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	applyEnv(cfg)

	for name, w := range cfg.Workloads {
		w.Name = name
		cfg.Workloads[name] = w
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("WARDEN_INSTANCE_ID")); v != "" {
		cfg.InstanceID = v
	}
	if v := strings.TrimSpace(os.Getenv("WARDEN_COMPUTE_URL")); v != "" {
		cfg.Compute.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("WARDEN_COMPUTE_KEY")); v != "" {
		cfg.Compute.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("WARDEN_REMOTECMD_URL")); v != "" {
		cfg.RemoteCommand.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("WARDEN_REMOTECMD_KEY")); v != "" {
		cfg.RemoteCommand.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("WARDEN_API_SECRET")); v != "" {
		cfg.Server.Secret = v
	}
	if os.Getenv("WARDEN_DEBUG") == "true" {
		cfg.Debug = true
	}
}

func (c *Config) validate() error {
	if c.InstanceID == "" {
		return fmt.Errorf("instance_id is required")
	}
	if c.Compute.BaseURL == "" {
		return fmt.Errorf("compute.base_url is required")
	}
	if c.RemoteCommand.BaseURL == "" {
		return fmt.Errorf("remote_command.base_url is required")
	}
	for name, w := range c.Workloads {
		if err := validateWorkload(name, w); err != nil {
			return err
		}
	}
	return nil
}

func validateWorkload(name string, w domain.Workload) error {
	if name == "" {
		return fmt.Errorf("workload with empty name")
	}
	if len(w.StartCommands) == 0 {
		return fmt.Errorf("workload %s: start commands are required", name)
	}
	if len(w.StopCommands) == 0 {
		return fmt.Errorf("workload %s: stop commands are required", name)
	}
	if w.Port <= 0 || w.Port > 65535 {
		return fmt.Errorf("workload %s: invalid port %d", name, w.Port)
	}
	return nil
}

// Workload looks up one workload table entry by name. The lookup takes the
// same lock as PutWorkload; the table may be rewritten at any time.
func (c *Config) Workload(name string) (domain.Workload, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	w, ok := c.Workloads[name]
	return w, ok
}

// PutWorkload inserts or replaces a workload definition and rewrites the
// config file, so the change survives a restart.
func (c *Config) PutWorkload(w domain.Workload) error {
	if err := validateWorkload(w.Name, w); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.Workloads[w.Name] = w
	return c.save()
}

func (c *Config) save() error {
	if c.path == "" {
		return nil
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return os.Rename(tmp, c.path)
}
