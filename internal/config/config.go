package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

func init() {
	// Load .env file if it exists (silent fail if not)
	_ = godotenv.Load()
}

// Config holds all application configuration loaded from environment variables.
type Config struct {
	App         AppConfig
	Log         LogConfig
	Pronto      ProntoConfig
	Poll        PollConfig
	Publish     PublishConfig
	Game        GameConfig
	Cache       CacheConfig
	InventoryDB InventoryDBConfig
	Status      StatusConfig
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Name        string `envconfig:"APP_NAME" default:"pronto-ballbot"`
	Environment string `envconfig:"APP_ENV" default:"development"`
	Version     string `envconfig:"APP_VERSION" default:"1.0.0"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info"`
	Format string `envconfig:"LOG_FORMAT" default:"console"` // console or json
}

// ProntoConfig holds the messaging service endpoint and credentials.
type ProntoConfig struct {
	BaseURL     string        `envconfig:"PRONTO_BASE_URL" default:"https://stanfordohs.pronto.io"`
	Token       string        `envconfig:"PRONTO_TOKEN" default:""`
	BubbleID    string        `envconfig:"PRONTO_BUBBLE_ID" default:""`
	HTTPTimeout time.Duration `envconfig:"PRONTO_HTTP_TIMEOUT" default:"30s"`
}

// PollConfig holds the message polling settings.
type PollConfig struct {
	Interval    time.Duration `envconfig:"POLL_INTERVAL" default:"1s"`
	CursorStore string        `envconfig:"CURSOR_STORE" default:"memory"` // memory or redis
	CursorKey   string        `envconfig:"CURSOR_KEY" default:"ballbot:cursor"`
}

// PublishConfig holds the media pipeline retry budgets.
type PublishConfig struct {
	ReadyAttempts      int           `envconfig:"PUBLISH_READY_ATTEMPTS" default:"6"`
	ReadyDelay         time.Duration `envconfig:"PUBLISH_READY_DELAY" default:"500ms"`
	RetryReadyAttempts int           `envconfig:"PUBLISH_RETRY_READY_ATTEMPTS" default:"3"`
	RetryReadyDelay    time.Duration `envconfig:"PUBLISH_RETRY_READY_DELAY" default:"700ms"`
	PostAttempts       int           `envconfig:"PUBLISH_POST_ATTEMPTS" default:"3"`
	// AssetCacheTTL keeps normalized uploads of unchanged files for reuse. 0 disables it.
	AssetCacheTTL time.Duration `envconfig:"PUBLISH_ASSET_CACHE_TTL" default:"0s"`
}

// GameConfig holds the collectible game settings.
type GameConfig struct {
	CatalogPath  string        `envconfig:"CATALOG_PATH" default:"./data/catalog.yaml"`
	CatalogWatch bool          `envconfig:"CATALOG_WATCH" default:"false"`
	MembersPath  string        `envconfig:"MEMBERS_PATH" default:"./data/user_data.json"`
	SpawnTimeout time.Duration `envconfig:"SPAWN_TIMEOUT" default:"0s"` // 0 waits forever
}

// CacheConfig holds cache settings.
type CacheConfig struct {
	RedisHost     string `envconfig:"REDIS_HOST" default:"localhost"`
	RedisPort     int    `envconfig:"REDIS_PORT" default:"6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
	KeyPrefix     string `envconfig:"REDIS_KEY_PREFIX" default:"pronto-ballbot"`
}

// InventoryDBConfig holds inventory database settings.
type InventoryDBConfig struct {
	Type string `envconfig:"INVENTORY_DB_TYPE" default:"file"` // file, sqlite, postgres, mysql or mongodb
	Path string `envconfig:"INVENTORY_DB_PATH" default:"./data/inventory.json"`
	// PostgreSQL / MySQL settings
	Host     string `envconfig:"INVENTORY_DB_HOST" default:"localhost"`
	Port     int    `envconfig:"INVENTORY_DB_PORT" default:"5432"`
	Name     string `envconfig:"INVENTORY_DB_NAME" default:"ballbot"`
	User     string `envconfig:"INVENTORY_DB_USER" default:"postgres"`
	Password string `envconfig:"INVENTORY_DB_PASS" default:""`
	SSLMode  string `envconfig:"INVENTORY_DB_SSLMODE" default:"disable"`
	// MongoDB settings
	MongoURI        string `envconfig:"MONGODB_URI" default:""`
	MongoDatabase   string `envconfig:"MONGODB_DATABASE" default:"ballbot"`
	MongoCollection string `envconfig:"MONGODB_COLLECTION" default:"inventories"`
}

// StatusConfig holds the optional status HTTP server settings.
type StatusConfig struct {
	Enabled         bool          `envconfig:"STATUS_ENABLED" default:"false"`
	Host            string        `envconfig:"STATUS_HOST" default:"0.0.0.0"`
	Port            int           `envconfig:"STATUS_PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"STATUS_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"STATUS_WRITE_TIMEOUT" default:"15s"`
	ShutdownTimeout time.Duration `envconfig:"STATUS_SHUTDOWN_TIMEOUT" default:"10s"`
	APIKeys         []string      `envconfig:"STATUS_API_KEYS" default:""`
}

// PostgresDSN returns the PostgreSQL connection string.
func (i *InventoryDBConfig) PostgresDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		i.User, i.Password, i.Host, i.Port, i.Name, i.SSLMode)
}

// MySQLDSN returns the MySQL data source name.
func (i *InventoryDBConfig) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
		i.User, i.Password, i.Host, i.Port, i.Name)
}

// Address returns the status server address in host:port format.
func (s *StatusConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// RedisAddress returns the Redis address in host:port format.
func (c *CacheConfig) RedisAddress() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// IsDevelopment returns true if running in development mode.
func (a *AppConfig) IsDevelopment() bool {
	return a.Environment == "development"
}

// Validate reports configuration that makes the bot unable to start.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Pronto.Token) == "" {
		errs = append(errs, errors.New("PRONTO_TOKEN is required"))
	}
	if strings.TrimSpace(c.Pronto.BubbleID) == "" {
		errs = append(errs, errors.New("PRONTO_BUBBLE_ID is required"))
	}
	if strings.TrimSpace(c.Pronto.BaseURL) == "" {
		errs = append(errs, errors.New("PRONTO_BASE_URL is required"))
	}
	if c.Poll.Interval <= 0 {
		errs = append(errs, errors.New("POLL_INTERVAL must be positive"))
	}
	if c.Publish.PostAttempts < 1 {
		errs = append(errs, errors.New("PUBLISH_POST_ATTEMPTS must be at least 1"))
	}
	switch c.Poll.CursorStore {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("unknown CURSOR_STORE: %s", c.Poll.CursorStore))
	}
	return errors.Join(errs...)
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return &cfg, nil
}
