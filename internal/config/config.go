package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is agtmuxd's top-level configuration. Grounded on the teacher's
// internal/config/config.go structure (YAML sections, Load/LoadOrDefault/
// defaultConfig/Diff, XDG dir helpers), retargeted from session-monitor/
// gamification tunables to this spec's resolver/hysteresis/health/
// supervisor/poller defaults.
type Config struct {
	Wire       WireConfig       `yaml:"wire"`
	Sources    SourcesConfig    `yaml:"sources"`
	Resolver   ResolverConfig   `yaml:"resolver"`
	Hysteresis HysteresisConfig `yaml:"hysteresis"`
	Health     HealthConfig     `yaml:"health"`
	Supervisor SupervisorConfig `yaml:"supervisor"`
	Poller     PollerConfig     `yaml:"poller"`
	Binding    BindingConfig    `yaml:"binding"`
}

// WireConfig controls the client-facing JSON-RPC transports (spec §6).
type WireConfig struct {
	Host              string        `yaml:"host"`
	Port              int           `yaml:"port"`
	UnixSocketPath    string        `yaml:"unix_socket_path"`
	AllowedOrigins    []string      `yaml:"allowed_origins"`
	MaxConnections    int           `yaml:"max_connections"`
	BroadcastThrottle time.Duration `yaml:"broadcast_throttle"`
}

// SourcesConfig enables/disables each evidence source (spec §4.7, §4.11,
// §4.12).
type SourcesConfig struct {
	ClaudeHooks    bool `yaml:"claude_hooks"`
	CodexAppserver bool `yaml:"codex_appserver"`
	Poller         bool `yaml:"poller"`
}

// ResolverConfig carries the tier resolver's freshness thresholds (spec §4.5).
type ResolverConfig struct {
	FreshThreshold time.Duration `yaml:"fresh_threshold"`
	DownThreshold  time.Duration `yaml:"down_threshold"`
}

// HysteresisConfig carries the activity-state stabilization FSM's dwell
// times (spec §4.3).
type HysteresisConfig struct {
	PollIntervalSecs    time.Duration `yaml:"poll_interval"`
	IdleMinSecs         time.Duration `yaml:"idle_min"`
	RunningPromoteSecs  time.Duration `yaml:"running_promote"`
	RunningDemoteSecs   time.Duration `yaml:"running_demote"`
}

// HealthConfig carries the per-source health FSM's thresholds (spec §4.4).
type HealthConfig struct {
	FailureThreshold  int           `yaml:"failure_threshold"`
	RecoveryThreshold int           `yaml:"recovery_threshold"`
	ProbeInterval     time.Duration `yaml:"probe_interval"`
	ProbeTimeout      time.Duration `yaml:"probe_timeout"`
	Grace             time.Duration `yaml:"grace"`
}

// SupervisorConfig carries the restart/backoff policy (spec §4.10).
type SupervisorConfig struct {
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	Multiplier     float64       `yaml:"multiplier"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
	JitterPct      float64       `yaml:"jitter_pct"`
	FailureBudget  int           `yaml:"failure_budget"`
	BudgetWindow   time.Duration `yaml:"budget_window"`
	HoldDownFor    time.Duration `yaml:"holddown"`
}

// PollerConfig carries the heuristic tmux poller's tuning knobs (spec §4.11).
type PollerConfig struct {
	Interval     time.Duration `yaml:"interval"`
	CaptureLines int           `yaml:"capture_lines"`
}

// BindingConfig carries the pane-binding FSM's tombstone grace window
// (spec §4.1).
type BindingConfig struct {
	TombstoneGrace time.Duration `yaml:"tombstone_grace"`
}

func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if cfg.Wire.UnixSocketPath == "" {
		cfg.Wire.UnixSocketPath = filepath.Join(defaultStateDir(), "agtmux", "agtmuxd.sock")
	}

	return cfg, nil
}

// LoadOrDefault loads config from path, or returns default config if path doesn't exist.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return defaultConfig(), nil
	}
	return Load(path)
}

func defaultConfig() *Config {
	return &Config{
		Wire: WireConfig{
			Host:              "127.0.0.1",
			Port:              7777,
			UnixSocketPath:    filepath.Join(defaultStateDir(), "agtmux", "agtmuxd.sock"),
			MaxConnections:    1000,
			BroadcastThrottle: 100 * time.Millisecond,
		},
		Sources: SourcesConfig{
			ClaudeHooks:    true,
			CodexAppserver: true,
			Poller:         true,
		},
		Resolver: ResolverConfig{
			FreshThreshold: 3 * time.Second,
			DownThreshold:  15 * time.Second,
		},
		Hysteresis: HysteresisConfig{
			PollIntervalSecs:   2 * time.Second,
			IdleMinSecs:        4 * time.Second,
			RunningPromoteSecs: 8 * time.Second,
			RunningDemoteSecs:  45 * time.Second,
		},
		Health: HealthConfig{
			FailureThreshold:  2,
			RecoveryThreshold: 2,
			ProbeInterval:     5 * time.Second,
			ProbeTimeout:      250 * time.Millisecond,
			Grace:             250 * time.Millisecond,
		},
		Supervisor: SupervisorConfig{
			InitialBackoff: 1000 * time.Millisecond,
			Multiplier:     2.0,
			MaxBackoff:     30000 * time.Millisecond,
			JitterPct:      0.20,
			FailureBudget:  5,
			BudgetWindow:   600000 * time.Millisecond,
			HoldDownFor:    300000 * time.Millisecond,
		},
		Poller: PollerConfig{
			Interval:     2 * time.Second,
			CaptureLines: 50,
		},
		Binding: BindingConfig{
			TombstoneGrace: 120 * time.Second,
		},
	}
}

func defaultStateDir() string {
	if value := os.Getenv("XDG_STATE_HOME"); value != "" {
		return value
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(homeDir, ".local", "state")
}

func defaultConfigDir() string {
	if value := os.Getenv("XDG_CONFIG_HOME"); value != "" {
		return value
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(homeDir, ".config")
}

// DefaultConfigPath returns the default XDG-compliant config file path.
func DefaultConfigPath() string {
	return filepath.Join(defaultConfigDir(), "agtmux", "config.yaml")
}

// Diff compares two configs and returns human-readable descriptions of
// what changed. Only sections safe to reload at runtime are compared
// (sources, resolver/hysteresis/health/supervisor/poller/binding tunables).
func Diff(old, new *Config) []string {
	var changes []string

	if old.Sources != new.Sources {
		changes = append(changes, fmt.Sprintf("sources: %+v -> %+v", old.Sources, new.Sources))
	}
	if old.Resolver != new.Resolver {
		changes = append(changes, fmt.Sprintf("resolver: %+v -> %+v", old.Resolver, new.Resolver))
	}
	if old.Hysteresis != new.Hysteresis {
		changes = append(changes, fmt.Sprintf("hysteresis: %+v -> %+v", old.Hysteresis, new.Hysteresis))
	}
	if old.Health != new.Health {
		changes = append(changes, fmt.Sprintf("health: %+v -> %+v", old.Health, new.Health))
	}
	if old.Supervisor != new.Supervisor {
		changes = append(changes, fmt.Sprintf("supervisor: %+v -> %+v", old.Supervisor, new.Supervisor))
	}
	if old.Poller != new.Poller {
		changes = append(changes, fmt.Sprintf("poller: %+v -> %+v", old.Poller, new.Poller))
	}
	if old.Binding != new.Binding {
		changes = append(changes, fmt.Sprintf("binding: %+v -> %+v", old.Binding, new.Binding))
	}

	return changes
}
