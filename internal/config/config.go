// Package config loads the runtime's YAML configuration file: one struct
// per subsystem, assembled into the top-level Config, with documented
// defaults filling any field the file leaves unset.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level runtime configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Broker     BrokerConfig     `yaml:"broker"`
	Dispatcher DispatcherConfig `yaml:"dispatcher"`
	Gateway    GatewayConfig    `yaml:"gateway"`
	Bus        BusConfig        `yaml:"bus"`
	Loop       LoopConfig       `yaml:"loop"`
	Queue      QueueConfig      `yaml:"queue"`
	Subagent   SubagentConfig   `yaml:"subagent"`
	Approval   ApprovalConfig   `yaml:"approval"`
	Network    NetworkConfig    `yaml:"network"`
	Workspace  WorkspaceConfig  `yaml:"workspace"`
	KVStore    KVStoreConfig    `yaml:"kvstore"`
	Channels   ChannelsConfig   `yaml:"channels"`
	Skills     SkillsConfig     `yaml:"skills"`
	Browser    BrowserConfig    `yaml:"browser"`
	Session    SessionConfig    `yaml:"session"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig configures the process-level HTTP listener the gateway and
// metrics/health endpoints bind to.
type ServerConfig struct {
	// ListenAddr defaults to loopback only; exposure beyond loopback is a
	// deployment concern.
	ListenAddr string `yaml:"listen_addr"`
}

// BrokerConfig configures how the runtime reaches the secrets broker child
// process (internal/broker.Client.Dial).
type BrokerConfig struct {
	SocketPath string `yaml:"socket_path"`
	// ScrubEnv lists the sensitive environment variable names removed from
	// the runtime's own environment after the broker handshake, before any
	// handler runs. The broker process keeps its own copy.
	ScrubEnv []string `yaml:"scrub_env"`
}

// DispatcherConfig configures internal/dispatcher.New.
type DispatcherConfig struct {
	DefaultDeadline time.Duration `yaml:"default_deadline"`
}

// GatewayConfig configures the internal/gateway WebSocket listener.
type GatewayConfig struct {
	Enabled bool `yaml:"enabled"`
	// AuthSecret, when set (typically via ${GATEWAY_AUTH_SECRET} expansion),
	// requires clients to present a signed bearer token on connect.
	AuthSecret string `yaml:"auth_secret"`
}

// BusConfig configures internal/bus.New.
type BusConfig struct {
	SubscriberQueueSize int `yaml:"subscriber_queue_size"`
}

// LoopConfig configures internal/loop.New.
type LoopConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Interval     time.Duration `yaml:"interval"`
	CronExpr     string        `yaml:"cron_expr"`
	SnapshotSize int           `yaml:"snapshot_size"`
	Model        string        `yaml:"model"`
}

// QueueConfig configures internal/queue.New.
type QueueConfig struct {
	Enabled      bool          `yaml:"enabled"`
	PollInterval time.Duration `yaml:"poll_interval"`
	Batch        int           `yaml:"batch"`
	TaskDeadline time.Duration `yaml:"task_deadline"`
	ResultTTL    time.Duration `yaml:"result_ttl"`
}

// SubagentConfig configures internal/subagent.New.
type SubagentConfig struct {
	ConcurrencyCap  int           `yaml:"concurrency_cap"`
	StartupDeadline time.Duration `yaml:"startup_deadline"`
	StopGrace       time.Duration `yaml:"stop_grace"`
	EnvAllowlist    []string      `yaml:"env_allowlist"`
}

// ApprovalConfig configures internal/approval.Policy.
type ApprovalConfig struct {
	Whitelist     []string `yaml:"whitelist"`
	PerTxCapWei   uint64   `yaml:"per_tx_cap_wei"`
	DailyCapWei   uint64   `yaml:"daily_cap_wei"`
	DefaultTTL    time.Duration `yaml:"default_ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	// NotifyChannel names the internal/channels adapter (telegram, discord,
	// slack, mock) the Notifier relays owner confirmations through.
	NotifyChannel string `yaml:"notify_channel"`
}

// NetworkConfig configures internal/ssrf.
type NetworkConfig struct {
	Denylist          []string      `yaml:"denylist"`
	RateLimitPerHost  float64       `yaml:"rate_limit_per_host"`
	MaxResponseBytes  int64         `yaml:"max_response_bytes"`
	FetchTimeout      time.Duration `yaml:"fetch_timeout"`
}

// WorkspaceConfig configures internal/workspace.New.
type WorkspaceConfig struct {
	Root        string `yaml:"root"`
	MaxFileSize int64  `yaml:"max_file_size"`
}

// KVStoreConfig selects and configures the internal/kvstore backend.
type KVStoreConfig struct {
	// Backend is one of "memory", "sqlite", "redis".
	Backend  string `yaml:"backend"`
	SQLite   struct {
		Path string `yaml:"path"`
	} `yaml:"sqlite"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
}

// ChannelsConfig configures the outbound social/chat collaborators behind
// internal/channels.Registry. Credentials are read from the broker-scrubbed
// environment at process start (see cmd/agentruntimed), never from YAML.
type ChannelsConfig struct {
	Telegram struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"telegram"`
	Discord struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"discord"`
	Slack struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"slack"`
}

// SkillsConfig configures internal/skills: the watched manifest directory,
// the on-chain and remote lookup endpoints, and the install audit caps.
type SkillsConfig struct {
	// WatchDir, when set, hot-reloads skill manifests from this directory
	// through the registry's install path.
	WatchDir          string `yaml:"watch_dir"`
	MinCommunityStake uint64 `yaml:"min_community_stake"`
	// OnChainEndpoint is the indexer URL the on-chain search stage reads
	// registry records from. Empty disables the stage.
	OnChainEndpoint string `yaml:"on_chain_endpoint"`
	// RemoteEndpoint is the skills search URL the remote stage queries.
	// Empty disables the stage.
	RemoteEndpoint string `yaml:"remote_endpoint"`
	// MaxInstallBytes caps auto-installed skill content.
	MaxInstallBytes int `yaml:"max_install_bytes"`
}

// BrowserConfig configures the internal/browser driver behind the gateway's
// browser method.
type BrowserConfig struct {
	Enabled bool `yaml:"enabled"`
	// DebugURL attaches to a running Chrome (--remote-debugging-port);
	// empty launches a managed headless instance.
	DebugURL string `yaml:"debug_url"`
	Headless bool   `yaml:"headless"`
}

// SessionConfig configures internal/chatsession defaults.
type SessionConfig struct {
	IdentityPrompt   string `yaml:"identity_prompt"`
	HistoryExchanges int    `yaml:"history_exchanges"`
	OwnerOnly        bool   `yaml:"owner_only"`
	OwnerIdentity    string `yaml:"owner_identity"`
	Model            string `yaml:"model"`
}

// LoggingConfig configures the process-wide slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "text"
}

// Default returns a Config with every subsystem's documented defaults, for
// use when no config file is present or a field is left zero after load.
func Default() Config {
	return Config{
		Server: ServerConfig{ListenAddr: "127.0.0.1:8787"},
		Broker: BrokerConfig{
			SocketPath: "/tmp/agentrt-broker.sock",
			ScrubEnv: []string{
				"ANTHROPIC_API_KEY",
				"OPENAI_API_KEY",
				"AWS_ACCESS_KEY_ID",
				"AWS_SECRET_ACCESS_KEY",
				"AWS_SESSION_TOKEN",
				"TELEGRAM_BOT_TOKEN",
				"DISCORD_BOT_TOKEN",
				"SLACK_BOT_TOKEN",
				"SLACK_APP_TOKEN",
				"AGENT_PRIVATE_KEY",
				"GATEWAY_AUTH_SECRET",
			},
		},
		Dispatcher: DispatcherConfig{DefaultDeadline: 30 * time.Second},
		Gateway:    GatewayConfig{Enabled: true},
		Bus:        BusConfig{SubscriberQueueSize: 256},
		Loop: LoopConfig{
			Enabled:      true,
			Interval:     60 * time.Second,
			SnapshotSize: 50,
		},
		Queue: QueueConfig{
			Enabled:      true,
			PollInterval: 5 * time.Second,
			Batch:        3,
			TaskDeadline: 30 * time.Second,
			ResultTTL:    time.Hour,
		},
		Subagent: SubagentConfig{
			ConcurrencyCap:  4,
			StartupDeadline: 10 * time.Second,
			StopGrace:       5 * time.Second,
		},
		Approval: ApprovalConfig{
			DefaultTTL:    10 * time.Minute,
			SweepInterval: 60 * time.Second,
			NotifyChannel: "mock",
		},
		Network: NetworkConfig{
			RateLimitPerHost: 1,
			MaxResponseBytes: 1 << 20,
			FetchTimeout:     10 * time.Second,
		},
		Workspace: WorkspaceConfig{
			Root:        "./workspace",
			MaxFileSize: 50 << 10,
		},
		KVStore: KVStoreConfig{Backend: "memory"},
		Skills:  SkillsConfig{MinCommunityStake: 100, MaxInstallBytes: 64 << 10},
		Browser: BrowserConfig{Headless: true},
		Session: SessionConfig{HistoryExchanges: 15},
		Logging: LoggingConfig{Level: "info", Format: "json"},
	}
}

// Load reads and parses the YAML file at path over top of Default(). A
// missing path is not an error: the all-default config is returned, so a
// config file is optional and env vars and flags fill the gaps.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
