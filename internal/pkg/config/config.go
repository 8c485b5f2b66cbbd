package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config holds everything the worker needs at startup. Values come from an
// optional YAML file (CONFIG_FILE), each overridable by environment.
type Config struct {
	RedisAddr string `yaml:"redis_addr"`

	// InventoryQueue is the bare queue identifier. The list key consumed
	// from is "queue:<name>"; the status channel is the bare name.
	InventoryQueue string `yaml:"inventory_queue"`
	DeliveryQueue  string `yaml:"delivery_queue"`
	PaymentQueue   string `yaml:"payment_queue"`

	MySQL MySQLConfig `yaml:"mysql"`

	KafkaBrokers []string `yaml:"kafka_brokers"`
	EventsTopic  string   `yaml:"events_topic"`

	JaegerEndpoint string `yaml:"jaeger_endpoint"`
	OrderStatusURL string `yaml:"order_status_url"`

	HTTPPort int `yaml:"http_port"`

	// ZkServers, when set, serializes inventory seeding across workers.
	ZkServers []string `yaml:"zk_servers"`

	// FaultRule is an optional CEL expression over order_id, user_id and
	// num_tokens; tasks matching it fail before deduction.
	FaultRule string `yaml:"fault_rule"`

	DequeueTimeout time.Duration `yaml:"dequeue_timeout"`
	CallTimeout    time.Duration `yaml:"call_timeout"`

	InitialTokens int64 `yaml:"initial_tokens"`
}

type MySQLConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// DSN renders the MySQL connection string. ParseTime is required for gorm
// time columns.
func (m MySQLConfig) DSN() string {
	cfg := mysql.NewConfig()
	cfg.Net = "tcp"
	cfg.Addr = m.Host + ":" + m.Port
	cfg.User = m.User
	cfg.Passwd = m.Password
	cfg.DBName = m.Database
	cfg.ParseTime = true
	return cfg.FormatDSN()
}

// QueueKey is the Redis list consumed from.
func (c *Config) QueueKey() string { return "queue:" + c.InventoryQueue }

// StatusChannel is the pub/sub channel status echoes go to.
func (c *Config) StatusChannel() string { return c.InventoryQueue }

// Load builds the config from file and environment and validates it.
// A missing inventory queue name is a fatal configuration error.
func Load() (*Config, error) {
	cfg := &Config{
		RedisAddr:      "localhost:6379",
		DeliveryQueue:  "delivery_service",
		PaymentQueue:   "payment_service",
		KafkaBrokers:   []string{"localhost:9092"},
		EventsTopic:    "saga-events-v1",
		JaegerEndpoint: "http://localhost:14268/api/traces",
		OrderStatusURL: "http://localhost:8000/order_status",
		HTTPPort:       8086,
		DequeueTimeout: 30 * time.Second,
		CallTimeout:    5 * time.Second,
		InitialTokens:  100,
		MySQL: MySQLConfig{
			Host:     "localhost",
			Port:     "3306",
			User:     "root",
			Database: "inventory",
		},
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "read config file")
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, errors.Wrap(err, "parse config file")
		}
	}

	cfg.applyEnv()

	if cfg.InventoryQueue == "" {
		return nil, errors.New("INVENTORY_QUEUE_NAME is required")
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.RedisAddr = getEnv("REDIS_QUEUE", c.RedisAddr)
	c.InventoryQueue = getEnv("INVENTORY_QUEUE_NAME", c.InventoryQueue)
	c.DeliveryQueue = getEnv("DELIVERY_QUEUE_NAME", c.DeliveryQueue)
	c.PaymentQueue = getEnv("PAYMENT_QUEUE_NAME", c.PaymentQueue)

	c.MySQL.Host = getEnv("MYSQL_HOST", c.MySQL.Host)
	c.MySQL.Port = getEnv("MYSQL_PORT", c.MySQL.Port)
	c.MySQL.User = getEnv("MYSQL_USER", c.MySQL.User)
	c.MySQL.Password = getEnv("MYSQL_PASSWORD", c.MySQL.Password)
	c.MySQL.Database = getEnv("MYSQL_DATABASE", c.MySQL.Database)

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.KafkaBrokers = strings.Split(v, ",")
	}
	c.EventsTopic = getEnv("SAGA_EVENTS_TOPIC", c.EventsTopic)

	c.JaegerEndpoint = getEnv("JAEGER_ENDPOINT", c.JaegerEndpoint)
	c.OrderStatusURL = getEnv("ORDER_STATUS_URL", c.OrderStatusURL)

	if v := os.Getenv("HTTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.HTTPPort = port
		}
	}

	if v := os.Getenv("ZK_SERVERS"); v != "" {
		c.ZkServers = strings.Split(v, ",")
	}
	c.FaultRule = getEnv("FAULT_RULE", c.FaultRule)

	if v := os.Getenv("DEQUEUE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.DequeueTimeout = d
		}
	}
	if v := os.Getenv("CALL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.CallTimeout = d
		}
	}
	if v := os.Getenv("INITIAL_TOKENS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.InitialTokens = n
		}
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
