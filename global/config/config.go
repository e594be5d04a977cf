package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	BackendMemory   = "memory"
	BackendMongo    = "mongo"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendRedis    = "redis"
	BackendGridFS   = "gridfs"

	EventsNone  = "none"
	EventsNats  = "nats"
	EventsKafka = "kafka"
	EventsAMQP  = "amqp"
)

type AppConfig struct {
	NodeID   int64          `yaml:"node_id"`
	HTTP     HTTPConfig     `yaml:"http"`
	Auth     AuthConfig     `yaml:"auth"`
	WS       WSConfig       `yaml:"ws"`
	Storage  StorageConfig  `yaml:"storage"`
	Mongo    MongoConfig    `yaml:"mongo"`
	Postgres PostgresConfig `yaml:"postgres"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Redis    RedisConfig    `yaml:"redis"`
	Events   EventsConfig   `yaml:"events"`
	Log      LogConfig      `yaml:"log"`
}

type HTTPConfig struct {
	Addr        string   `yaml:"addr"`
	CorsOrigins []string `yaml:"cors_origins"` // empty: reflect any origin
	MaxBodySize int64    `yaml:"max_body_size"`
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	Alg       string        `yaml:"alg"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

type WSConfig struct {
	PingInterval  time.Duration `yaml:"ping_interval"`
	PongWait      time.Duration `yaml:"pong_wait"`
	WriteWait     time.Duration `yaml:"write_wait"`
	SendQueueSize int           `yaml:"send_queue_size"`
	ReadLimit     int64         `yaml:"read_limit"`
}

type StorageConfig struct {
	Messages string `yaml:"messages"`
	Users    string `yaml:"users"`
	Sessions string `yaml:"sessions"`
	Assets   string `yaml:"assets"`
}

type MongoConfig struct {
	Uri         string `yaml:"uri"`
	Database    string `yaml:"database"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	MaxPoolSize int    `yaml:"max_pool_size"`
	MaxRetry    int    `yaml:"max_retry"`
}

type PostgresConfig struct {
	DSN      string `yaml:"dsn"`
	MaxConns int32  `yaml:"max_conns"`
}

type SQLiteConfig struct {
	Dir string `yaml:"dir"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type EventsConfig struct {
	Backend   string      `yaml:"backend"`
	QueueSize int         `yaml:"queue_size"`
	Nats      NatsConfig  `yaml:"nats"`
	Kafka     KafkaConfig `yaml:"kafka"`
	AMQP      AMQPConfig  `yaml:"amqp"`
}

type NatsConfig struct {
	Servers       []string `yaml:"servers"`
	SubjectPrefix string   `yaml:"subject_prefix"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type AMQPConfig struct {
	URL      string `yaml:"url"`
	Exchange string `yaml:"exchange"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns a config that runs without any external service.
func Default() *AppConfig {
	c := &AppConfig{}
	c.norm()
	return c
}

func (c *AppConfig) norm() {
	if c.NodeID <= 0 {
		c.NodeID = 1
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":5000"
	}
	if c.HTTP.MaxBodySize <= 0 {
		c.HTTP.MaxBodySize = 8 << 20
	}
	if c.Auth.Alg == "" {
		c.Auth.Alg = "HS256"
	}
	if c.Auth.TokenTTL <= 0 {
		c.Auth.TokenTTL = 7 * 24 * time.Hour
	}
	if c.WS.PingInterval <= 0 {
		c.WS.PingInterval = 25 * time.Second
	}
	if c.WS.PongWait <= 0 {
		c.WS.PongWait = 60 * time.Second
	}
	if c.WS.PongWait <= c.WS.PingInterval {
		c.WS.PongWait = c.WS.PingInterval * 2
	}
	if c.WS.WriteWait <= 0 {
		c.WS.WriteWait = 10 * time.Second
	}
	if c.WS.SendQueueSize <= 0 {
		c.WS.SendQueueSize = 256
	}
	if c.WS.ReadLimit <= 0 {
		c.WS.ReadLimit = 1 << 20
	}
	if c.Storage.Messages == "" {
		c.Storage.Messages = BackendMemory
	}
	if c.Storage.Users == "" {
		c.Storage.Users = BackendMemory
	}
	if c.Storage.Sessions == "" {
		c.Storage.Sessions = BackendMemory
	}
	if c.Storage.Assets == "" {
		c.Storage.Assets = BackendMemory
	}
	if c.Mongo.Database == "" {
		c.Mongo.Database = "chat-app"
	}
	if c.SQLite.Dir == "" {
		c.SQLite.Dir = "./data"
	}
	if c.Events.Backend == "" {
		c.Events.Backend = EventsNone
	}
	if c.Events.QueueSize <= 0 {
		c.Events.QueueSize = 1024
	}
	if c.Events.Nats.SubjectPrefix == "" {
		c.Events.Nats.SubjectPrefix = "dmchat"
	}
	if c.Events.Kafka.Topic == "" {
		c.Events.Kafka.Topic = "dmchat.events"
	}
	if c.Events.AMQP.Exchange == "" {
		c.Events.AMQP.Exchange = "dmchat.events"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate reports settings that cannot work together.
func (c *AppConfig) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required (or DMCHAT_JWT_SECRET)")
	}
	switch c.Storage.Messages {
	case BackendMemory, BackendMongo, BackendPostgres, BackendSQLite:
	default:
		return fmt.Errorf("storage.messages: unknown backend %q", c.Storage.Messages)
	}
	switch c.Storage.Users {
	case BackendMemory, BackendMongo:
	default:
		return fmt.Errorf("storage.users: unknown backend %q", c.Storage.Users)
	}
	switch c.Storage.Sessions {
	case BackendMemory, BackendRedis:
	default:
		return fmt.Errorf("storage.sessions: unknown backend %q", c.Storage.Sessions)
	}
	switch c.Storage.Assets {
	case BackendMemory, BackendGridFS:
	default:
		return fmt.Errorf("storage.assets: unknown backend %q", c.Storage.Assets)
	}
	if c.Storage.Messages == BackendPostgres && c.Postgres.DSN == "" {
		return fmt.Errorf("postgres.dsn is required for the postgres message store")
	}
	if c.UsesMongo() && c.Mongo.Uri == "" {
		return fmt.Errorf("mongo.uri is required for the mongo backends")
	}
	if c.Storage.Sessions == BackendRedis && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required for the redis session store")
	}
	switch c.Events.Backend {
	case EventsNone:
	case EventsNats:
		if len(c.Events.Nats.Servers) == 0 {
			return fmt.Errorf("events.nats.servers is required")
		}
	case EventsKafka:
		if len(c.Events.Kafka.Brokers) == 0 {
			return fmt.Errorf("events.kafka.brokers is required")
		}
	case EventsAMQP:
		if c.Events.AMQP.URL == "" {
			return fmt.Errorf("events.amqp.url is required")
		}
	default:
		return fmt.Errorf("events.backend: unknown backend %q", c.Events.Backend)
	}
	return nil
}

func (c *AppConfig) UsesMongo() bool {
	return c.Storage.Messages == BackendMongo || c.Storage.Users == BackendMongo || c.Storage.Assets == BackendGridFS
}

// Load reads path (optional) then applies DMCHAT_* environment overrides and defaults.
func Load(path string) (*AppConfig, error) {
	c := &AppConfig{}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, c); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	c.applyEnv()
	c.norm()
	return c, nil
}

func (c *AppConfig) applyEnv() {
	setStr(&c.HTTP.Addr, "DMCHAT_HTTP_ADDR")
	setStr(&c.Auth.JWTSecret, "DMCHAT_JWT_SECRET")
	setStr(&c.Storage.Messages, "DMCHAT_STORAGE_MESSAGES")
	setStr(&c.Storage.Users, "DMCHAT_STORAGE_USERS")
	setStr(&c.Storage.Sessions, "DMCHAT_STORAGE_SESSIONS")
	setStr(&c.Storage.Assets, "DMCHAT_STORAGE_ASSETS")
	setStr(&c.Mongo.Uri, "DMCHAT_MONGO_URI")
	setStr(&c.Mongo.Database, "DMCHAT_MONGO_DATABASE")
	setStr(&c.Postgres.DSN, "DMCHAT_POSTGRES_DSN")
	setStr(&c.SQLite.Dir, "DMCHAT_SQLITE_DIR")
	setStr(&c.Redis.Addr, "DMCHAT_REDIS_ADDR")
	setStr(&c.Redis.Password, "DMCHAT_REDIS_PASSWORD")
	setStr(&c.Events.Backend, "DMCHAT_EVENTS_BACKEND")
	setStr(&c.Events.AMQP.URL, "DMCHAT_AMQP_URL")
	setStr(&c.Log.Level, "DMCHAT_LOG_LEVEL")
	if v := os.Getenv("DMCHAT_NATS_SERVERS"); v != "" {
		c.Events.Nats.Servers = splitList(v)
	}
	if v := os.Getenv("DMCHAT_KAFKA_BROKERS"); v != "" {
		c.Events.Kafka.Brokers = splitList(v)
	}
	if v := os.Getenv("DMCHAT_NODE_ID"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.NodeID = n
		}
	}
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Redacted is safe to print.
func (c AppConfig) Redacted() AppConfig {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "******"
	}
	c.Auth.JWTSecret = mask(c.Auth.JWTSecret)
	c.Mongo.Password = mask(c.Mongo.Password)
	c.Redis.Password = mask(c.Redis.Password)
	if c.Postgres.DSN != "" {
		c.Postgres.DSN = mask(c.Postgres.DSN)
	}
	return c
}

func (c AppConfig) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}
