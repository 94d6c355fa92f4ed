package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds shared runtime configuration for the server and watcher.
// Values come from LAZY_BIRD_* environment variables; paths left empty
// default to locations under the user's home directory.
type Config struct {
	Env  string `envconfig:"ENV" default:"dev"`
	Host string `envconfig:"HOST" default:"127.0.0.1"`
	Port int    `envconfig:"PORT" default:"5000"`

	ArtifactsDir    string        `envconfig:"ARTIFACTS_DIR"`
	GodotBin        string        `envconfig:"GODOT_BIN" default:"godot"`
	MaxQueueSize    int           `envconfig:"MAX_QUEUE_SIZE" default:"50"`
	DefaultTimeout  time.Duration `envconfig:"DEFAULT_TIMEOUT" default:"300s"`
	DequeueWait     time.Duration `envconfig:"DEQUEUE_WAIT" default:"1s"`
	CallbackTimeout time.Duration `envconfig:"CALLBACK_TIMEOUT" default:"5s"`
	RetentionAge    time.Duration `envconfig:"RETENTION_AGE" default:"168h"`
	SweepInterval   time.Duration `envconfig:"SWEEP_INTERVAL" default:"1h"`

	ConfigPath string `envconfig:"CONFIG_PATH"`
	QueueDir   string `envconfig:"QUEUE_DIR"`
	DataDir    string `envconfig:"DATA_DIR"`
	SecretsDir string `envconfig:"SECRETS_DIR"`

	GitToken string `envconfig:"GIT_TOKEN"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("lazy_bird", &cfg); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("resolve home directory: %w", err)
	}
	if c.ArtifactsDir == "" {
		c.ArtifactsDir = filepath.Join(home, ".local", "share", "lazy-bird", "tests")
	}
	if c.ConfigPath == "" {
		c.ConfigPath = filepath.Join(home, ".config", "lazy-bird", "config.yml")
	}
	if c.QueueDir == "" {
		c.QueueDir = filepath.Join(home, ".local", "share", "lazy-bird", "queue")
	}
	if c.DataDir == "" {
		c.DataDir = filepath.Join(home, ".config", "lazy-bird", "data")
	}
	if c.SecretsDir == "" {
		c.SecretsDir = filepath.Join(home, ".config", "lazy-bird", "secrets")
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// TokenPath is the file holding the git API token.
func (c *Config) TokenPath() string {
	return filepath.Join(c.SecretsDir, "api_token")
}

// ProcessedPath is the watcher's record of already queued issues.
func (c *Config) ProcessedPath() string {
	return filepath.Join(c.DataDir, "processed_issues.json")
}
