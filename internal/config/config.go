package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"erpsync/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App          AppConfig          `yaml:"app"`
	Logging      LoggingConfig      `yaml:"logging"`
	Storage      StorageConfig      `yaml:"storage"`
	Redis        RedisConfig        `yaml:"redis"`
	Backend      BackendConfig      `yaml:"backend"`
	Connectivity ConnectivityConfig `yaml:"connectivity"`
	Sync         SyncConfig         `yaml:"sync"`
	API          APIConfig          `yaml:"api"`
	Monitoring   MonitoringConfig   `yaml:"monitoring"`
	Notify       NotifyConfig       `yaml:"notify"`
	Sheets       SheetsConfig       `yaml:"sheets"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

const (
	StorageSQLite = "sqlite"
	StorageRedis  = "redis"
	StorageMemory = "memory"
)

// StorageConfig selects where the pending action list is persisted.
type StorageConfig struct {
	Backend       string        `yaml:"backend"`
	SQLitePath    string        `yaml:"sqlite_path"`
	PendingKey    string        `yaml:"pending_key"`
	DeadLetterKey string        `yaml:"dead_letter_key"`
	Failover      bool          `yaml:"failover"`
	RecoveryAfter time.Duration `yaml:"recovery_after"`
	Backup        BackupConfig  `yaml:"backup"`
}

// BackupConfig applies to the sqlite backend only.
type BackupConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Interval      time.Duration `yaml:"interval"`
	RetentionDays int           `yaml:"retention_days"`
	StoragePath   string        `yaml:"storage_path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// BackendConfig describes the ERP REST API that pending actions are replayed against.
type BackendConfig struct {
	BaseURL      string        `yaml:"base_url"`
	TokenURL     string        `yaml:"token_url"`
	ClientID     string        `yaml:"client_id"`
	ClientSecret string        `yaml:"client_secret"`
	AccessToken  string        `yaml:"access_token"`
	RefreshToken string        `yaml:"refresh_token"`
	Timeout      time.Duration `yaml:"timeout"`
}

const (
	ConnectivityHTTP   = "http"
	ConnectivityStatic = "static"
)

type ConnectivityConfig struct {
	Mode         string        `yaml:"mode"`
	ProbeURL     string        `yaml:"probe_url"`
	Timeout      time.Duration `yaml:"timeout"`
	PollSchedule string        `yaml:"poll_schedule"`
	StaticOnline bool          `yaml:"static_online"`
}

// SyncConfig controls replay policy. Zero values keep actions queued until
// they succeed or are removed by hand.
type SyncConfig struct {
	MaxRetries int           `yaml:"max_retries"`
	Backoff    BackoffConfig `yaml:"backoff"`
}

type BackoffConfig struct {
	Enabled      bool          `yaml:"enabled"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	Factor       float64       `yaml:"factor"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	HTTP      APIHTTPConfig      `yaml:"http"`
	GRPC      APIGRPCConfig      `yaml:"grpc"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type APIGRPCConfig struct {
	Enabled    bool `yaml:"enabled"`
	Port       int  `yaml:"port"`
	Reflection bool `yaml:"reflection"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	HeaderExtra  string         `yaml:"header_extra"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Extra       string   `yaml:"extra"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig sends operator alerts to the listed chats.
type TelegramConfig struct {
	Enabled  bool    `yaml:"enabled"`
	BotToken string  `yaml:"bot_token"`
	ChatIDs  []int64 `yaml:"chat_ids"`
}

// SheetsConfig mirrors the queue into a Google spreadsheet.
type SheetsConfig struct {
	Enabled         bool   `yaml:"enabled"`
	CredentialsFile string `yaml:"credentials_file"`
	SpreadsheetID   string `yaml:"spreadsheet_id"`
}

// Load reads the YAML file at configPath, expanding ${VAR} references from the
// environment and an optional .env file in the working directory.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Backend.BaseURL) == "" {
		return errors.New("backend base_url is required")
	}

	switch c.Storage.Backend {
	case StorageSQLite:
		if c.Storage.SQLitePath == "" {
			return errors.New("storage sqlite_path is required for the sqlite backend")
		}
	case StorageRedis:
		if c.Redis.Address == "" {
			return errors.New("redis address is required for the redis backend")
		}
	case StorageMemory:
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if c.Storage.PendingKey == c.Storage.DeadLetterKey {
		return errors.New("storage pending_key and dead_letter_key must differ")
	}

	switch c.Connectivity.Mode {
	case ConnectivityHTTP, ConnectivityStatic:
	default:
		return fmt.Errorf("unknown connectivity mode %q", c.Connectivity.Mode)
	}

	if c.Sync.MaxRetries < 0 {
		return errors.New("sync max_retries must not be negative")
	}

	if c.Backend.TokenURL != "" && c.Backend.RefreshToken == "" {
		return errors.New("backend refresh_token is required when token_url is set")
	}

	if c.Notify.Telegram.Enabled {
		if c.Notify.Telegram.BotToken == "" {
			return errors.New("notify telegram bot_token is required")
		}
		if len(c.Notify.Telegram.ChatIDs) == 0 {
			return errors.New("notify telegram chat_ids must list at least one chat")
		}
	}

	if c.Sheets.Enabled && (c.Sheets.CredentialsFile == "" || c.Sheets.SpreadsheetID == "") {
		return errors.New("sheets credentials_file and spreadsheet_id are required")
	}

	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "erpsync"
	}

	if c.Storage.Backend == "" {
		c.Storage.Backend = StorageSQLite
	}
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	if c.Storage.Backend == StorageSQLite && c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = "data/offline.db"
	}
	if c.Storage.PendingKey == "" {
		c.Storage.PendingKey = models.DefaultPendingKey
	}
	if c.Storage.DeadLetterKey == "" {
		c.Storage.DeadLetterKey = models.DefaultDeadLetterKey
	}
	if c.Storage.Backup.Enabled && c.Storage.Backup.StoragePath == "" {
		c.Storage.Backup.StoragePath = "data/backups"
	}
	if c.Storage.RecoveryAfter == 0 {
		c.Storage.RecoveryAfter = time.Minute
	}

	if c.Backend.Timeout == 0 {
		c.Backend.Timeout = 15 * time.Second
	}

	if c.Connectivity.Mode == "" {
		c.Connectivity.Mode = ConnectivityHTTP
	}
	c.Connectivity.Mode = strings.ToLower(strings.TrimSpace(c.Connectivity.Mode))
	if c.Connectivity.ProbeURL == "" {
		c.Connectivity.ProbeURL = c.Backend.BaseURL
	}
	if c.Connectivity.Timeout == 0 {
		c.Connectivity.Timeout = 3 * time.Second
	}

	if c.Sync.Backoff.Enabled {
		if c.Sync.Backoff.InitialDelay == 0 {
			c.Sync.Backoff.InitialDelay = 5 * time.Second
		}
		if c.Sync.Backoff.MaxDelay == 0 {
			c.Sync.Backoff.MaxDelay = 10 * time.Minute
		}
		if c.Sync.Backoff.Factor == 0 {
			c.Sync.Backoff.Factor = 2
		}
	}

	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8420
	}
	if c.API.GRPC.Port == 0 {
		c.API.GRPC.Port = 8421
	}
	if !c.API.HTTP.Enabled && c.API.Enabled {
		c.API.HTTP.Enabled = true
	}
	// auth is switched on as soon as keys are configured
	if len(c.API.Auth.APIKeys) > 0 {
		c.API.Auth.Enabled = true
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.Auth.HeaderExtra == "" {
		c.API.Auth.HeaderExtra = "x-api-extra"
	}

	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
}
