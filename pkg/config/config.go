package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "DEVICE_GATE"

type Config struct {
	DB           DBConfig         `mapstructure:"db"`
	ServerConfig ServerConfig     `mapstructure:"server"`
	Log          LogConfig        `mapstructure:"log"`
	Telegram     TelegramConfig   `mapstructure:"telegram"`
	Membership   MembershipConfig `mapstructure:"membership"`
	Redis        RedisConfig      `mapstructure:"redis"`
	CORS         CORSConfig       `mapstructure:"cors"`
}

type DBConfig struct {
	Driver     string      `mapstructure:"driver"`
	Host       string      `mapstructure:"host"`
	Port       string      `mapstructure:"port"`
	Username   string      `mapstructure:"username"`
	Name       string      `mapstructure:"name"`
	Password   string      `mapstructure:"password"`
	SSL        string      `mapstructure:"sslmode"`
	Migrations string      `mapstructure:"migrations"`
	MaxOpen    int         `mapstructure:"max_open_conns"`
	MaxIdle    int         `mapstructure:"max_idle_conns"`
	Retry      RetryConfig `mapstructure:"retry"`
}

type RetryConfig struct {
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
	MaxElapsed  time.Duration `mapstructure:"max_elapsed"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	PingTimeout time.Duration `mapstructure:"ping_timeout"`
	Jitter      float64       `mapstructure:"jitter"`
	Monitor     time.Duration `mapstructure:"monitor_interval"`
}

type ServerConfig struct {
	Port           string        `mapstructure:"port"`
	Host           string        `mapstructure:"host"`
	GinMode        string        `mapstructure:"ginmode"`
	TrustedProxies []string      `mapstructure:"trusted_proxies"`
	MaxConnections int           `mapstructure:"max_connections"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	Pprof          bool          `mapstructure:"pprof"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

type TelegramConfig struct {
	Token       string         `mapstructure:"token"`
	APIEndpoint string         `mapstructure:"api_endpoint"`
	PollUpdates bool           `mapstructure:"poll_updates"`
	RPS         float64        `mapstructure:"rps"`
	Debug       bool           `mapstructure:"debug"`
	InitData    InitDataConfig `mapstructure:"init_data"`
}

type InitDataConfig struct {
	Required bool          `mapstructure:"required"`
	ExpIn    time.Duration `mapstructure:"exp_in"`
}

type MembershipConfig struct {
	LookupTimeout time.Duration `mapstructure:"lookup_timeout"`
	Concurrency   int           `mapstructure:"concurrency"`
	CacheTTL      time.Duration `mapstructure:"cache_ttl"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type CORSConfig struct {
	AllowAll        bool   `mapstructure:"allow_all"`
	RefreshSchedule string `mapstructure:"refresh_schedule"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("db.driver", "postgres")
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", "5432")
	v.SetDefault("db.username", "")
	v.SetDefault("db.password", "")
	v.SetDefault("db.name", "device_gate")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.migrations", "./migrations/postgres")
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.retry.base_delay", time.Second)
	v.SetDefault("db.retry.max_delay", 30*time.Second)
	v.SetDefault("db.retry.max_elapsed", 2*time.Minute)
	v.SetDefault("db.retry.ping_timeout", 5*time.Second)
	v.SetDefault("db.retry.jitter", 0.2)
	v.SetDefault("db.retry.monitor_interval", 15*time.Second)

	v.SetDefault("server.port", "3000")
	v.SetDefault("server.ginmode", "release")
	v.SetDefault("server.max_connections", 1024)
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.max_size_mb", 50)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 14)

	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.api_endpoint", "")
	v.SetDefault("telegram.rps", 25)
	v.SetDefault("telegram.init_data.exp_in", 24*time.Hour)

	v.SetDefault("membership.lookup_timeout", 5*time.Second)
	v.SetDefault("membership.concurrency", 8)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")

	v.SetDefault("cors.refresh_schedule", "@every 1m")
}

// Init reads the yaml file at path, then .env and DEVICE_GATE_* variables
// on top of it. A missing file is not an error when the environment
// supplies everything.
func (c *Config) Init(path string) error {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("can't read config: %w", err)
		}
	}
	if err := v.Unmarshal(c); err != nil {
		return fmt.Errorf("unable to decode config into struct: %w", err)
	}
	return c.validate()
}

func (c *Config) validate() error {
	switch c.DB.Driver {
	case "postgres", "mysql":
	default:
		return fmt.Errorf("unsupported db driver %q", c.DB.Driver)
	}
	if c.Membership.Concurrency <= 0 {
		c.Membership.Concurrency = 1
	}
	return nil
}
