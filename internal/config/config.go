package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

const (
	DriverMySQL  = "mysql"
	DriverMemory = "memory"
)

type Config struct {
	HTTPAddr        string        `mapstructure:"HTTP_ADDR"`
	GRPCAddr        string        `mapstructure:"GRPC_ADDR"`
	LogLevel        string        `mapstructure:"LOG_LEVEL"`
	ShutdownTimeout time.Duration `mapstructure:"SHUTDOWN_TIMEOUT"`

	StoreDriver          string        `mapstructure:"STORE_DRIVER"`
	MySQLDSN             string        `mapstructure:"MYSQL_DSN"`
	MySQLMaxOpenConns    int           `mapstructure:"MYSQL_MAX_OPEN_CONNS"`
	MySQLMaxIdleConns    int           `mapstructure:"MYSQL_MAX_IDLE_CONNS"`
	MySQLConnMaxLifetime time.Duration `mapstructure:"MYSQL_CONN_MAX_LIFETIME"`
	MigrateOnStart       bool          `mapstructure:"MIGRATE_ON_START"`

	RedisAddr      string        `mapstructure:"REDIS_ADDR"`
	RedisPoolSize  int           `mapstructure:"REDIS_POOL_SIZE"`
	IdempotencyTTL time.Duration `mapstructure:"IDEMPOTENCY_TTL"`

	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	KafkaTopic   string `mapstructure:"KAFKA_TOPIC"`

	ShippingBaseURL        string        `mapstructure:"SHIPPING_BASE_URL"`
	ShippingToken          string        `mapstructure:"SHIPPING_TOKEN"`
	ShippingShopID         string        `mapstructure:"SHIPPING_SHOP_ID"`
	ShippingFromDistrictID int           `mapstructure:"SHIPPING_FROM_DISTRICT_ID"`
	ShippingFromWardCode   string        `mapstructure:"SHIPPING_FROM_WARD_CODE"`
	ShippingServiceTypeID  int           `mapstructure:"SHIPPING_SERVICE_TYPE_ID"`
	ShippingTimeout        time.Duration `mapstructure:"SHIPPING_TIMEOUT"`

	AdminForceRestock bool `mapstructure:"ADMIN_FORCE_RESTOCK"`
}

var defaults = map[string]any{
	"HTTP_ADDR":        ":8080",
	"GRPC_ADDR":        ":9090",
	"LOG_LEVEL":        "info",
	"SHUTDOWN_TIMEOUT": 10 * time.Second,

	"STORE_DRIVER":            DriverMySQL,
	"MYSQL_DSN":               "root:root@tcp(localhost:3306)/storefront?parseTime=true",
	"MYSQL_MAX_OPEN_CONNS":    50,
	"MYSQL_MAX_IDLE_CONNS":    25,
	"MYSQL_CONN_MAX_LIFETIME": 5 * time.Minute,
	"MIGRATE_ON_START":        true,

	"REDIS_ADDR":      "",
	"REDIS_POOL_SIZE": 100,
	"IDEMPOTENCY_TTL": 24 * time.Hour,

	"KAFKA_BROKERS": "",
	"KAFKA_TOPIC":   "storefront.orders",

	"SHIPPING_BASE_URL":         "https://dev-online-gateway.ghn.vn",
	"SHIPPING_TOKEN":            "",
	"SHIPPING_SHOP_ID":          "",
	"SHIPPING_FROM_DISTRICT_ID": 1454,
	"SHIPPING_FROM_WARD_CODE":   "21211",
	"SHIPPING_SERVICE_TYPE_ID":  2,
	"SHIPPING_TIMEOUT":          5 * time.Second,

	"ADMIN_FORCE_RESTOCK": false,
}

// Loader reads configuration from defaults, an optional file and the
// environment, in increasing priority.
type Loader struct {
	v    *viper.Viper
	path string

	mu  sync.RWMutex
	cfg *Config
}

// Load builds the configuration. An empty path skips the file.
func Load(path string) (*Loader, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if strings.HasSuffix(path, ".env") {
			v.SetConfigType("env")
		}
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	l := &Loader{v: v, path: path}
	cfg, err := l.decode()
	if err != nil {
		return nil, err
	}
	l.cfg = cfg
	return l, nil
}

func (l *Loader) Config() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cfg
}

// Watch calls fn with the new configuration each time the file changes. A
// reload that fails to decode or validate is reported through onErr and the
// previous configuration stays in effect.
func (l *Loader) Watch(fn func(*Config), onErr func(error)) {
	if l.path == "" {
		return
	}
	l.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := l.decode()
		if err != nil {
			if onErr != nil {
				onErr(err)
			}
			return
		}
		l.mu.Lock()
		l.cfg = cfg
		l.mu.Unlock()
		fn(cfg)
	})
	l.v.WatchConfig()
}

func (l *Loader) decode() (*Config, error) {
	cfg := &Config{}
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.HTTPAddr == "" {
		errs = append(errs, errors.New("HTTP_ADDR is required"))
	}
	if c.GRPCAddr == "" {
		errs = append(errs, errors.New("GRPC_ADDR is required"))
	}
	switch c.StoreDriver {
	case DriverMySQL:
		if c.MySQLDSN == "" {
			errs = append(errs, errors.New("MYSQL_DSN is required for the mysql driver"))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER %q is not one of mysql, memory", c.StoreDriver))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("SHUTDOWN_TIMEOUT must be positive"))
	}
	if c.ShippingTimeout <= 0 {
		errs = append(errs, errors.New("SHIPPING_TIMEOUT must be positive"))
	}
	if c.IdempotencyTTL <= 0 {
		errs = append(errs, errors.New("IDEMPOTENCY_TTL must be positive"))
	}
	return errors.Join(errs...)
}
