package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config stores the application configuration.
type Config struct {
	Discovery DiscoveryConfig `yaml:"discovery"`
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Catalog   CatalogConfig   `yaml:"catalog"`
}

// DiscoveryConfig controls beacons and the peer table.
type DiscoveryConfig struct {
	Port              int           `yaml:"port"`               // fixed UDP port beacons are sent to
	BroadcastInterval time.Duration `yaml:"broadcast_interval"` // beacon period
	SweepInterval     time.Duration `yaml:"sweep_interval"`     // stale-peer sweep period
	PeerTimeout       time.Duration `yaml:"peer_timeout"`
	MDNS              bool          `yaml:"mdns"` // also advertise/browse _kristine._tcp
}

// ServerConfig controls the session server.
type ServerConfig struct {
	Port         int  `yaml:"port"` // 0 picks an ephemeral port
	Discoverable bool `yaml:"discoverable"`
}

// LogConfig mirrors logger.Config.
type LogConfig struct {
	Level      string `yaml:"level"`
	OutputPath string `yaml:"output_path"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
}

// CatalogConfig selects where the local song catalog comes from.
type CatalogConfig struct {
	Dir   string `yaml:"dir"`   // music directory scanned and watched
	Watch bool   `yaml:"watch"` // follow changes in Dir

	// MySQL persistence, used when DBHost is set.
	DBHost     string `yaml:"db_host"`
	DBPort     string `yaml:"db_port"`
	DBUser     string `yaml:"db_user"`
	DBPassword string `yaml:"db_password"`
	DBName     string `yaml:"db_name"`

	// Redis cache in front of the catalog, used when RedisHost is set.
	RedisHost     string        `yaml:"redis_host"`
	RedisPort     string        `yaml:"redis_port"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	CacheTTL      time.Duration `yaml:"cache_ttl"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Discovery: DiscoveryConfig{
			Port:              45678,
			BroadcastInterval: 5 * time.Second,
			SweepInterval:     5 * time.Second,
			PeerTimeout:       15 * time.Second,
		},
		Server: ServerConfig{
			Discoverable: true,
		},
		Log: LogConfig{
			Level:      "info",
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     7,
		},
		Catalog: CatalogConfig{
			Watch:     true,
			DBPort:    "3306",
			DBUser:    "root",
			DBName:    "kristine",
			RedisPort: "6379",
			CacheTTL:  5 * time.Minute,
		},
	}
}

// Load reads .env (if present), then the optional YAML file at path, then
// environment overrides. An empty path skips the YAML step.
func Load(path string) (*Config, error) {
	// godotenv.Load does not override variables already in the environment.
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides lets environment variables win over file values.
func (c *Config) ApplyEnvOverrides() {
	c.Discovery.Port = getEnvInt("DISCOVERY_PORT", c.Discovery.Port)
	c.Discovery.BroadcastInterval = getEnvDuration("DISCOVERY_BROADCAST_INTERVAL", c.Discovery.BroadcastInterval)
	c.Discovery.SweepInterval = getEnvDuration("DISCOVERY_SWEEP_INTERVAL", c.Discovery.SweepInterval)
	c.Discovery.PeerTimeout = getEnvDuration("DISCOVERY_PEER_TIMEOUT", c.Discovery.PeerTimeout)
	c.Discovery.MDNS = getEnvBool("DISCOVERY_MDNS", c.Discovery.MDNS)

	c.Server.Port = getEnvInt("SERVER_PORT", c.Server.Port)
	c.Server.Discoverable = getEnvBool("SERVER_DISCOVERABLE", c.Server.Discoverable)

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.OutputPath = getEnv("LOG_OUTPUT_PATH", c.Log.OutputPath)

	c.Catalog.Dir = getEnv("CATALOG_DIR", c.Catalog.Dir)
	c.Catalog.Watch = getEnvBool("CATALOG_WATCH", c.Catalog.Watch)
	c.Catalog.DBHost = getEnv("DB_HOST", c.Catalog.DBHost)
	c.Catalog.DBPort = getEnv("DB_PORT", c.Catalog.DBPort)
	c.Catalog.DBUser = getEnv("DB_USER", c.Catalog.DBUser)
	c.Catalog.DBPassword = getEnv("DB_PASSWORD", c.Catalog.DBPassword)
	c.Catalog.DBName = getEnv("DB_NAME", c.Catalog.DBName)
	c.Catalog.RedisHost = getEnv("REDIS_HOST", c.Catalog.RedisHost)
	c.Catalog.RedisPort = getEnv("REDIS_PORT", c.Catalog.RedisPort)
	c.Catalog.RedisPassword = getEnv("REDIS_PASSWORD", c.Catalog.RedisPassword)
	c.Catalog.RedisDB = getEnvInt("REDIS_DB", c.Catalog.RedisDB)
	c.Catalog.CacheTTL = getEnvDuration("CATALOG_CACHE_TTL", c.Catalog.CacheTTL)
}

// Validate rejects values the networking layer cannot work with.
func (c *Config) Validate() error {
	if c.Discovery.Port <= 0 || c.Discovery.Port > 65535 {
		return fmt.Errorf("invalid discovery port: %d", c.Discovery.Port)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Discovery.BroadcastInterval <= 0 || c.Discovery.SweepInterval <= 0 || c.Discovery.PeerTimeout <= 0 {
		return fmt.Errorf("discovery intervals must be positive")
	}
	return nil
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
