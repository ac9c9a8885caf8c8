package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/viper"
)

type (
	Config struct {
		Global
		Database
		Remote
		Sync
		Connectivity
		Tasks
		Token
		API
		Telemetry
		Activity
	}

	Global struct {
		ShutdownTimeoutInSeconds int
	}
	Database struct {
		Path string
	}
	Remote struct {
		BaseURL string
		Timeout time.Duration
	}
	Sync struct {
		Enabled    bool          // Periodic drain backstop
		Interval   time.Duration // Default 5m
		MaxRetries int           // Attempts before a queue entry is evicted
	}
	Connectivity struct {
		ProbePath     string
		ProbeInterval time.Duration
		ProbeTimeout  time.Duration
	}
	Tasks struct {
		Workers            int
		ReplayMaxAttempts  int
		ReplayInitialDelay time.Duration
		ReplayMaxDelay     time.Duration
		TaskTimeout        time.Duration
		ReplayOfflineDelay time.Duration
		ReleaseAfter       time.Duration
		CleanupInterval    time.Duration
		RetentionDuration  time.Duration
	}
	Token struct {
		EncryptionKey string // base64 AES-256 key
		Passphrase    string // derives the key with argon2id
		KeyFile       string // default ~/.caresync-token-key
	}
	API struct {
		Enabled bool
		Host    string
		Port    int32
		Debug   bool
	}
	Telemetry struct {
		Enabled bool
		Stdout  bool
	}
	Activity struct {
		RetentionDays   int    // Days to keep activity events (default: 30)
		CleanupSchedule string // Cron format or descriptor (default: @daily)
	}
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("shutdown_timeout_in_seconds", 5)
	v.SetDefault("database_path", DefaultDatabasePath)

	v.SetDefault("remote_base_url", "http://localhost:8080/api")
	v.SetDefault("remote_timeout", "15s")

	v.SetDefault("sync_enabled", true)
	v.SetDefault("sync_interval", "5m")
	v.SetDefault("sync_max_retries", 3)

	v.SetDefault("connectivity_probe_path", "/health")
	v.SetDefault("connectivity_probe_interval", "30s")
	v.SetDefault("connectivity_probe_timeout", "5s")

	// Task queue defaults
	v.SetDefault("task_workers", 1)
	v.SetDefault("replay_max_attempts", 3)
	v.SetDefault("replay_initial_delay", "1s")
	v.SetDefault("replay_max_delay", "30s")
	v.SetDefault("task_timeout", "30m")
	v.SetDefault("replay_offline_delay", "30s")
	v.SetDefault("task_release_after", "45m")
	v.SetDefault("task_cleanup_interval", "1h")
	v.SetDefault("task_retention_duration", "24h")

	v.SetDefault("token_encryption_key", "")
	v.SetDefault("token_passphrase", "")
	v.SetDefault("token_key_file", "")

	v.SetDefault("api_enabled", true)
	v.SetDefault("api_host", "127.0.0.1")
	v.SetDefault("api_port", 8189)
	v.SetDefault("api_debug", false)

	v.SetDefault("otel_enabled", false)
	v.SetDefault("otel_stdout", false)

	v.SetDefault("activity_retention_days", 30)
	v.SetDefault("activity_cleanup_schedule", "@daily")
}

// Load reads defaults, the optional config file named by CARESYNC_CONFIG and
// the environment, in increasing order of precedence.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	setDefaults(v)

	if path := os.Getenv(ConfigFileEnv); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	return fromViper(v), nil
}

// NewConfig is Load that falls back to defaults and environment when the
// config file cannot be read.
func NewConfig() *Config {
	cfg, err := Load()
	if err == nil {
		return cfg
	}
	log.Printf("Config: %v, using environment only", err)

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	setDefaults(v)
	return fromViper(v)
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		Global: Global{
			ShutdownTimeoutInSeconds: v.GetInt("SHUTDOWN_TIMEOUT_IN_SECONDS"),
		},
		Database: Database{
			Path: v.GetString("DATABASE_PATH"),
		},
		Remote: Remote{
			BaseURL: v.GetString("REMOTE_BASE_URL"),
			Timeout: v.GetDuration("REMOTE_TIMEOUT"),
		},
		Sync: Sync{
			Enabled:    v.GetBool("SYNC_ENABLED"),
			Interval:   v.GetDuration("SYNC_INTERVAL"),
			MaxRetries: v.GetInt("SYNC_MAX_RETRIES"),
		},
		Connectivity: Connectivity{
			ProbePath:     v.GetString("CONNECTIVITY_PROBE_PATH"),
			ProbeInterval: v.GetDuration("CONNECTIVITY_PROBE_INTERVAL"),
			ProbeTimeout:  v.GetDuration("CONNECTIVITY_PROBE_TIMEOUT"),
		},
		Tasks: Tasks{
			Workers:            v.GetInt("TASK_WORKERS"),
			ReplayMaxAttempts:  v.GetInt("REPLAY_MAX_ATTEMPTS"),
			ReplayInitialDelay: v.GetDuration("REPLAY_INITIAL_DELAY"),
			ReplayMaxDelay:     v.GetDuration("REPLAY_MAX_DELAY"),
			TaskTimeout:        v.GetDuration("TASK_TIMEOUT"),
			ReplayOfflineDelay: v.GetDuration("REPLAY_OFFLINE_DELAY"),
			ReleaseAfter:       v.GetDuration("TASK_RELEASE_AFTER"),
			CleanupInterval:    v.GetDuration("TASK_CLEANUP_INTERVAL"),
			RetentionDuration:  v.GetDuration("TASK_RETENTION_DURATION"),
		},
		Token: Token{
			EncryptionKey: v.GetString("TOKEN_ENCRYPTION_KEY"),
			Passphrase:    v.GetString("TOKEN_PASSPHRASE"),
			KeyFile:       v.GetString("TOKEN_KEY_FILE"),
		},
		API: API{
			Enabled: v.GetBool("API_ENABLED"),
			Host:    v.GetString("API_HOST"),
			Port:    v.GetInt32("API_PORT"),
			Debug:   v.GetBool("API_DEBUG"),
		},
		Telemetry: Telemetry{
			Enabled: v.GetBool("OTEL_ENABLED"),
			Stdout:  v.GetBool("OTEL_STDOUT"),
		},
		Activity: Activity{
			RetentionDays:   v.GetInt("ACTIVITY_RETENTION_DAYS"),
			CleanupSchedule: v.GetString("ACTIVITY_CLEANUP_SCHEDULE"),
		},
	}
}

// ShutdownTimeout returns the graceful shutdown budget.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutInSeconds) * time.Second
}

// APIAddr is the listen address of the local API.
func (c *Config) APIAddr() string {
	return fmt.Sprintf("%s:%d", c.API.Host, c.API.Port)
}
