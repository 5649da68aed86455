package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type AppConfig struct {
	Port string `yaml:"port"`
	Env  string `yaml:"env"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	DBName          string        `yaml:"dbname"`
	SSLMode         string        `yaml:"sslmode"`
	MaxConns        int32         `yaml:"max_conns"`
	MinConns        int32         `yaml:"min_conns"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
}

// DSN returns a postgres:// URL. Credentials are escaped, so an empty or
// unusual password cannot shift the other settings.
func (c PostgresConfig) DSN() string {
	user := url.User(c.User)
	if c.Password != "" {
		user = url.UserPassword(c.User, c.Password)
	}

	dsn := url.URL{
		Scheme: "postgres",
		User:   user,
		Host:   net.JoinHostPort(c.Host, c.Port),
		Path:   "/" + c.DBName,
	}
	if c.SSLMode != "" {
		dsn.RawQuery = url.Values{"sslmode": []string{c.SSLMode}}.Encode()
	}
	return dsn.String()
}

type RedisConfig struct {
	URL     string        `yaml:"url"`
	LockTTL time.Duration `yaml:"lock_ttl"`
}

type PaymentConfig struct {
	APIURL             string        `yaml:"api_url"`
	SecretKey          string        `yaml:"secret_key"`
	WebhookSecret      string        `yaml:"webhook_secret"`
	SignatureTolerance time.Duration `yaml:"signature_tolerance"`
	Timeout            time.Duration `yaml:"timeout"`
}

type PendingConfig struct {
	TTL           time.Duration `yaml:"ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

type OrderConfig struct {
	AtomicStock             bool `yaml:"atomic_stock"`
	RestockOnPaymentFailure bool `yaml:"restock_on_payment_failure"`
}

type Config struct {
	App      AppConfig      `yaml:"app"`
	Log      LogConfig      `yaml:"log"`
	Postgres PostgresConfig `yaml:"postgres"`
	Redis    RedisConfig    `yaml:"redis"`
	Payment  PaymentConfig  `yaml:"payment"`
	Pending  PendingConfig  `yaml:"pending"`
	Order    OrderConfig    `yaml:"order"`
}

func (c *Config) IsProduction() bool {
	return c.App.Env == EnvProduction
}

func Default() *Config {
	return &Config{
		App: AppConfig{Port: "8080", Env: EnvDevelopment},
		Log: LogConfig{Level: "info"},
		Postgres: PostgresConfig{
			Port:            "5432",
			SSLMode:         "disable",
			MaxConns:        10,
			MinConns:        2,
			MaxConnLifetime: 30 * time.Minute,
		},
		Redis: RedisConfig{LockTTL: 2 * time.Minute},
		Payment: PaymentConfig{
			APIURL:             "https://api.paymongo.com/v1",
			SignatureTolerance: 5 * time.Minute,
			Timeout:            10 * time.Second,
		},
		Pending: PendingConfig{
			TTL:           time.Hour,
			SweepInterval: 10 * time.Minute,
		},
	}
}

// NewConfig loads .env, then the optional YAML file named by CONFIG_FILE,
// then environment variables, later sources winning.
func NewConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: failed to load .env: %w", err)
	}
	return Load(os.Getenv("CONFIG_FILE"))
}

func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("config: failed to open config file: %w", err)
		}
		defer file.Close()

		if err := yaml.NewDecoder(file).Decode(cfg); err != nil {
			return nil, fmt.Errorf("config: invalid config file %s: %w", path, err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.App.Port, "APP_PORT")
	setString(&cfg.App.Env, "APP_ENV")
	setString(&cfg.Log.Level, "LOG_LEVEL")

	setString(&cfg.Postgres.Host, "DB_HOST")
	setString(&cfg.Postgres.Port, "DB_PORT")
	setString(&cfg.Postgres.User, "DB_USER")
	setString(&cfg.Postgres.Password, "DB_PASSWORD")
	setString(&cfg.Postgres.DBName, "DB_NAME")
	setString(&cfg.Postgres.SSLMode, "DB_SSLMODE")

	setString(&cfg.Redis.URL, "REDIS_URL")

	setString(&cfg.Payment.APIURL, "PAYMENT_API_URL")
	setString(&cfg.Payment.SecretKey, "PAYMENT_SECRET_KEY")
	setString(&cfg.Payment.WebhookSecret, "PAYMENT_WEBHOOK_SECRET")

	var errs []error
	errs = append(errs,
		setInt32(&cfg.Postgres.MaxConns, "DB_MAX_CONNS"),
		setInt32(&cfg.Postgres.MinConns, "DB_MIN_CONNS"),
		setDuration(&cfg.Postgres.MaxConnLifetime, "DB_MAX_CONN_LIFETIME"),
		setDuration(&cfg.Redis.LockTTL, "REDIS_LOCK_TTL"),
		setDuration(&cfg.Payment.SignatureTolerance, "PAYMENT_SIGNATURE_TOLERANCE"),
		setDuration(&cfg.Payment.Timeout, "PAYMENT_TIMEOUT"),
		setDuration(&cfg.Pending.TTL, "PENDING_ORDER_TTL"),
		setDuration(&cfg.Pending.SweepInterval, "PENDING_SWEEP_INTERVAL"),
		setBool(&cfg.Order.AtomicStock, "ORDER_ATOMIC_STOCK"),
		setBool(&cfg.Order.RestockOnPaymentFailure, "RESTOCK_ON_PAYMENT_FAILURE"),
	)
	return errors.Join(errs...)
}

func (c *Config) validate() error {
	var missing []string
	if c.Postgres.Host == "" {
		missing = append(missing, "DB_HOST")
	}
	if c.Postgres.User == "" {
		missing = append(missing, "DB_USER")
	}
	if c.Postgres.DBName == "" {
		missing = append(missing, "DB_NAME")
	}
	if len(missing) > 0 {
		return fmt.Errorf("config: required settings missing: %s", strings.Join(missing, ", "))
	}

	if c.Pending.TTL <= 0 {
		return fmt.Errorf("config: PENDING_ORDER_TTL must be positive, got %s", c.Pending.TTL)
	}
	if c.Pending.SweepInterval <= 0 {
		return fmt.Errorf("config: PENDING_SWEEP_INTERVAL must be positive, got %s", c.Pending.SweepInterval)
	}
	if c.IsProduction() && c.Payment.WebhookSecret == "" {
		return errors.New("config: PAYMENT_WEBHOOK_SECRET is required in production")
	}
	if c.Postgres.MinConns > c.Postgres.MaxConns {
		return fmt.Errorf("config: DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.Postgres.MinConns, c.Postgres.MaxConns)
	}

	return nil
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setInt32(dst *int32, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 32)
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*dst = int32(n)
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*dst = d
	return nil
}

func setBool(dst *bool, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*dst = b
	return nil
}
