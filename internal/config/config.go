package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/dotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Storage drivers selectable with STORAGE_DRIVER.
const (
	DriverFile     = "file"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
)

type Config struct {
	Server  ServerConfig
	CORS    CORSConfig
	Storage StorageConfig
	DB      DBConfig
	Redis   RedisConfig
	Ledger  LedgerConfig
	QR      QRConfig
	Log     LogConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type CORSConfig struct {
	AllowedOrigins []string
}

type StorageConfig struct {
	Driver   string
	FilePath string
}

type DBConfig struct {
	Host           string
	Port           int
	User           string
	Password       string
	Name           string
	SSLMode        string
	MaxConns       int32
	MigrationsPath string
}

func (c DBConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	Key      string
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type LedgerConfig struct {
	KeyTTL        time.Duration
	ResetInterval time.Duration
	Timezone      string
}

// Location resolves Timezone; "Local" and "" mean the host zone.
func (c LedgerConfig) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

type QRConfig struct {
	Size  int
	Level string
}

type LogConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	return LoadFile(".env")
}

// LoadFile reads an optional dotenv file, then environment variables, which
// take precedence.
func LoadFile(path string) (*Config, error) {
	k := koanf.New(".")

	// Load .env file if it exists (ignore error if missing)
	_ = k.Load(file.Provider(path), dotenv.Parser())

	// Load environment variables (override .env)
	err := k.Load(env.Provider("", ".", func(s string) string {
		return strings.ToLower(strings.ReplaceAll(s, "_", "."))
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: k.String("server.host"),
			Port: k.Int("server.port"),
		},
		CORS: CORSConfig{
			AllowedOrigins: splitList(k.String("cors.allowed.origins")),
		},
		Storage: StorageConfig{
			Driver:   strings.ToLower(k.String("storage.driver")),
			FilePath: k.String("storage.file.path"),
		},
		DB: DBConfig{
			Host:           k.String("db.host"),
			Port:           k.Int("db.port"),
			User:           k.String("db.user"),
			Password:       k.String("db.password"),
			Name:           k.String("db.name"),
			SSLMode:        k.String("db.sslmode"),
			MaxConns:       int32(k.Int("db.max.conns")),
			MigrationsPath: k.String("db.migrations.path"),
		},
		Redis: RedisConfig{
			Host:     k.String("redis.host"),
			Port:     k.Int("redis.port"),
			Password: k.String("redis.password"),
			DB:       k.Int("redis.db"),
			Key:      k.String("redis.key"),
		},
		Ledger: LedgerConfig{
			Timezone: k.String("ledger.timezone"),
		},
		QR: QRConfig{
			Size:  k.Int("qr.size"),
			Level: strings.ToLower(k.String("qr.level")),
		},
		Log: LogConfig{
			Level:  k.String("log.level"),
			Format: k.String("log.format"),
		},
	}

	// Apply defaults
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 5173
	}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		cfg.CORS.AllowedOrigins = []string{"*"}
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = DriverFile
	}
	if cfg.Storage.FilePath == "" {
		cfg.Storage.FilePath = "./user_data.json"
	}
	if cfg.DB.Host == "" {
		cfg.DB.Host = "localhost"
	}
	if cfg.DB.Port == 0 {
		cfg.DB.Port = 5432
	}
	if cfg.DB.User == "" {
		cfg.DB.User = "aidqr"
	}
	if cfg.DB.Name == "" {
		cfg.DB.Name = "aidqr"
	}
	if cfg.DB.SSLMode == "" {
		cfg.DB.SSLMode = "disable"
	}
	if cfg.DB.MaxConns == 0 {
		cfg.DB.MaxConns = 10
	}
	if cfg.DB.MigrationsPath == "" {
		cfg.DB.MigrationsPath = "migrations"
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Redis.Key == "" {
		cfg.Redis.Key = "aidqr:ledger"
	}
	if cfg.Ledger.Timezone == "" {
		cfg.Ledger.Timezone = "Local"
	}
	if cfg.QR.Size == 0 {
		cfg.QR.Size = 256
	}
	if cfg.QR.Level == "" {
		cfg.QR.Level = "medium"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "debug"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}

	// Parse durations
	cfg.Ledger.KeyTTL, err = parseDuration(k.String("ledger.key.ttl"), "12h")
	if err != nil {
		return nil, fmt.Errorf("parsing ledger key ttl: %w", err)
	}

	cfg.Ledger.ResetInterval, err = parseDuration(k.String("ledger.reset.interval"), "1h")
	if err != nil {
		return nil, fmt.Errorf("parsing ledger reset interval: %w", err)
	}

	return cfg, nil
}

func parseDuration(s, def string) (time.Duration, error) {
	if s == "" {
		s = def
	}
	return time.ParseDuration(s)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
