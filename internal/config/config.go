// Package config loads storefront configuration from an optional YAML file,
// .env files and environment variables, in that order of precedence (lowest
// first).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fjod/storefront/internal/pricing"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server     ServerConfig      `yaml:"server"`
	Auth       AuthConfig        `yaml:"auth"`
	Pricing    PricingConfig     `yaml:"pricing"`
	Promotions map[string]string `yaml:"promotions"` // code -> percent off
	Cart       CartConfig        `yaml:"cart"`
	Redis      RedisConfig       `yaml:"redis"`
	Catalog    CatalogConfig     `yaml:"catalog"`
	Orders     OrdersConfig      `yaml:"orders"`
	Kafka      KafkaConfig       `yaml:"kafka"`
	Client     ClientConfig      `yaml:"client"`
	Logging    LoggingConfig     `yaml:"logging"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
}

type AuthConfig struct {
	JWTSecret     string        `yaml:"jwt_secret"`
	TokenTTL      time.Duration `yaml:"token_ttl"`
	AdminEmail    string        `yaml:"admin_email"`
	AdminPassword string        `yaml:"admin_password"`
}

// PricingConfig keeps money as strings so YAML never routes it through float64.
type PricingConfig struct {
	FreeShippingThreshold string `yaml:"free_shipping_threshold"`
	FlatShippingFee       string `yaml:"flat_shipping_fee"`
	InclusiveThreshold    bool   `yaml:"inclusive_threshold"`
}

type CartConfig struct {
	Store    string `yaml:"store"` // memory | mongo
	MongoURI string `yaml:"mongo_uri"`
	MongoDB  string `yaml:"mongo_db"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"` // empty disables the cart cache
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type CatalogConfig struct {
	DBPath string `yaml:"db_path"`
}

type OrdersConfig struct {
	Store    string         `yaml:"store"` // memory | postgres
	Postgres PostgresConfig `yaml:"postgres"`
}

type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
}

type KafkaConfig struct {
	Brokers      []string      `yaml:"brokers"` // empty disables the outbox publisher
	Topic        string        `yaml:"topic"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

type ClientConfig struct {
	BaseURL     string        `yaml:"base_url"`
	Timeout     time.Duration `yaml:"timeout"`
	SessionFile string        `yaml:"session_file"`
}

type LoggingConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":3000",
			RequestTimeout:  30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			MaxBodyBytes:    1 << 20, // 1MB
		},
		Auth: AuthConfig{
			TokenTTL:   24 * time.Hour,
			AdminEmail: "admin@storefront.local",
		},
		Pricing: PricingConfig{
			FreeShippingThreshold: "50",
			FlatShippingFee:       "9.99",
		},
		Promotions: map[string]string{"SAVE10": "10"},
		Cart: CartConfig{
			Store:    "memory",
			MongoURI: "mongodb://localhost:27017",
			MongoDB:  "storefront",
		},
		Catalog: CatalogConfig{DBPath: "file:catalog.db"},
		Orders: OrdersConfig{
			Store: "memory",
			Postgres: PostgresConfig{
				Host:   "localhost",
				Port:   5432,
				User:   "postgres",
				DBName: "storefront",
			},
		},
		Kafka: KafkaConfig{
			Topic:        "storefront-orders",
			PollInterval: time.Second,
		},
		Client: ClientConfig{
			BaseURL:     "http://localhost:3000",
			Timeout:     15 * time.Second,
			SessionFile: defaultSessionFile(),
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load builds the configuration. path may be empty; a missing .env file is
// not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	applyEnv(cfg)

	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Server.Addr = getEnv("STOREFRONT_ADDR", cfg.Server.Addr)
	cfg.Server.RequestTimeout = getEnvDuration("STOREFRONT_REQUEST_TIMEOUT", cfg.Server.RequestTimeout)

	cfg.Auth.JWTSecret = getEnv("JWT_SECRET", cfg.Auth.JWTSecret)
	cfg.Auth.AdminEmail = getEnv("ADMIN_EMAIL", cfg.Auth.AdminEmail)
	cfg.Auth.AdminPassword = getEnv("ADMIN_PASSWORD", cfg.Auth.AdminPassword)

	cfg.Pricing.FreeShippingThreshold = getEnv("FREE_SHIPPING_THRESHOLD", cfg.Pricing.FreeShippingThreshold)
	cfg.Pricing.FlatShippingFee = getEnv("FLAT_SHIPPING_FEE", cfg.Pricing.FlatShippingFee)
	cfg.Pricing.InclusiveThreshold = getEnvBool("FREE_SHIPPING_INCLUSIVE", cfg.Pricing.InclusiveThreshold)

	cfg.Cart.Store = getEnv("CART_STORE", cfg.Cart.Store)
	cfg.Cart.MongoURI = getEnv("MONGO_URI", cfg.Cart.MongoURI)
	cfg.Cart.MongoDB = getEnv("MONGO_DB_NAME", cfg.Cart.MongoDB)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)

	cfg.Catalog.DBPath = getEnv("CATALOG_DB_PATH", cfg.Catalog.DBPath)

	cfg.Orders.Store = getEnv("ORDERS_STORE", cfg.Orders.Store)
	cfg.Orders.Postgres.Host = getEnv("DB_HOST", cfg.Orders.Postgres.Host)
	cfg.Orders.Postgres.Port = getEnvInt("DB_PORT", cfg.Orders.Postgres.Port)
	cfg.Orders.Postgres.User = getEnv("DB_USER", cfg.Orders.Postgres.User)
	cfg.Orders.Postgres.Password = getEnv("DB_PASSWORD", cfg.Orders.Postgres.Password)
	cfg.Orders.Postgres.DBName = getEnv("DB_NAME", cfg.Orders.Postgres.DBName)

	if brokers := getEnv("KAFKA_BROKERS", ""); brokers != "" {
		cfg.Kafka.Brokers = strings.Split(brokers, ",")
	}
	cfg.Kafka.Topic = getEnv("KAFKA_TOPIC", cfg.Kafka.Topic)

	cfg.Client.BaseURL = getEnv("STOREFRONT_URL", cfg.Client.BaseURL)
	cfg.Client.SessionFile = getEnv("STOREFRONT_SESSION", cfg.Client.SessionFile)

	cfg.Logging.Level = getEnv("LOG_LEVEL", cfg.Logging.Level)
}

// Validate checks the values that cannot be defaulted safely.
func (c *Config) Validate() error {
	if _, err := c.PricingRules(); err != nil {
		return err
	}
	if _, err := c.PromotionTable(); err != nil {
		return err
	}
	switch c.Cart.Store {
	case "memory", "mongo":
	default:
		return fmt.Errorf("unknown cart store %q", c.Cart.Store)
	}
	switch c.Orders.Store {
	case "memory", "postgres":
	default:
		return fmt.Errorf("unknown orders store %q", c.Orders.Store)
	}
	return nil
}

// ValidateServer adds the checks only the backend needs.
func (c *Config) ValidateServer() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("JWT_SECRET is required to run the server")
	}
	return nil
}

func (c *Config) PricingRules() (pricing.Rules, error) {
	threshold, err := decimal.NewFromString(c.Pricing.FreeShippingThreshold)
	if err != nil {
		return pricing.Rules{}, fmt.Errorf("invalid free_shipping_threshold %q: %w", c.Pricing.FreeShippingThreshold, err)
	}
	fee, err := decimal.NewFromString(c.Pricing.FlatShippingFee)
	if err != nil {
		return pricing.Rules{}, fmt.Errorf("invalid flat_shipping_fee %q: %w", c.Pricing.FlatShippingFee, err)
	}
	if threshold.IsNegative() || fee.IsNegative() {
		return pricing.Rules{}, errors.New("shipping threshold and fee must not be negative")
	}
	return pricing.Rules{
		FreeShippingThreshold: threshold,
		FlatShippingFee:       fee,
		InclusiveThreshold:    c.Pricing.InclusiveThreshold,
	}, nil
}

func (c *Config) PromotionTable() (*pricing.Promotions, error) {
	codes := make(map[string]decimal.Decimal, len(c.Promotions))
	for code, raw := range c.Promotions {
		pct, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid percent for promo %s: %w", code, err)
		}
		if pct.IsNegative() || pct.GreaterThan(decimal.NewFromInt(100)) {
			return nil, fmt.Errorf("promo %s percent out of range: %s", code, raw)
		}
		codes[code] = pct
	}
	return pricing.NewPromotions(codes), nil
}

func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		p.Host, p.Port, p.User, p.Password, p.DBName)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func defaultSessionFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".storefront-session.yaml"
	}
	return dir + string(os.PathSeparator) + "storefront" + string(os.PathSeparator) + "session.yaml"
}
