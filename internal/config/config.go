package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server         ServerConfig         `yaml:"server"`
	Database       DatabaseConfig       `yaml:"database"`
	NATS           NATSConfig           `yaml:"nats"`
	MinIO          MinIOConfig          `yaml:"minio"`
	Reconciliation ReconciliationConfig `yaml:"reconciliation"`
	Logging        LoggingConfig        `yaml:"logging"`
}

type ServerConfig struct {
	Port          int           `yaml:"port"`
	JWTSecret     string        `yaml:"jwt_secret"`
	JWTExpiration time.Duration `yaml:"jwt_expiration"`
	AdminPassword string        `yaml:"admin_password"`
	InitDB        bool          `yaml:"init_db"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	MaxConns int    `yaml:"max_conns"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

type NATSConfig struct {
	URL string `yaml:"url"`
}

type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// ReconciliationConfig selects how new detections map onto State records.
// Policy is "always_open" or "identifier_match".
type ReconciliationConfig struct {
	Policy              string `yaml:"policy"`
	DefaultTimeInMarina int    `yaml:"default_time_in_marina"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads config from YAML file and applies environment variable overrides.
// The JWT secret is mandatory: tokens must survive restarts, so the process
// refuses to start with an empty secret rather than generating one.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(cfg)
	setDefaults(cfg)

	if cfg.Server.JWTSecret == "" {
		return nil, fmt.Errorf("server.jwt_secret (or MARINA_JWT_SECRET) is required")
	}

	return cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.JWTExpiration == 0 {
		cfg.Server.JWTExpiration = 8 * time.Hour
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 20
	}
	if cfg.Reconciliation.Policy == "" {
		cfg.Reconciliation.Policy = "always_open"
	}
	if cfg.Reconciliation.DefaultTimeInMarina == 0 {
		cfg.Reconciliation.DefaultTimeInMarina = 15
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MARINA_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("MARINA_JWT_SECRET"); v != "" {
		cfg.Server.JWTSecret = v
	}
	if v := os.Getenv("MARINA_ADMIN_PASSWORD"); v != "" {
		cfg.Server.AdminPassword = v
	}
	if v := os.Getenv("MARINA_INIT_DB"); v != "" {
		cfg.Server.InitDB = v == "true" || v == "1"
	}
	if v := os.Getenv("MARINA_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("MARINA_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("MARINA_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("MARINA_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("MARINA_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("MARINA_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("MARINA_MINIO_ENDPOINT"); v != "" {
		cfg.MinIO.Endpoint = v
	}
	if v := os.Getenv("MARINA_MINIO_ACCESS_KEY"); v != "" {
		cfg.MinIO.AccessKey = v
	}
	if v := os.Getenv("MARINA_MINIO_SECRET_KEY"); v != "" {
		cfg.MinIO.SecretKey = v
	}
	if v := os.Getenv("MARINA_MINIO_BUCKET"); v != "" {
		cfg.MinIO.Bucket = v
	}
	if v := os.Getenv("MARINA_RECONCILIATION_POLICY"); v != "" {
		cfg.Reconciliation.Policy = v
	}
}
