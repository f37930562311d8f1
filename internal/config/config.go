package config

import (
	"time"

	"github.com/somsomparty/chat-core/internal/cache"
	"github.com/somsomparty/chat-core/internal/messagestore"
	"github.com/somsomparty/chat-core/internal/presence"
	pkgconfig "github.com/somsomparty/chat-core/pkg/config"
	"github.com/somsomparty/chat-core/pkg/database"
	pkglog "github.com/somsomparty/chat-core/pkg/log"
	"github.com/somsomparty/chat-core/pkg/pubsub"
)

type Config struct {
	Server       ServerConfig        `mapstructure:"server"`
	Log          pkglog.Config       `mapstructure:"log"`
	Database     database.Config     `mapstructure:"database"`
	Membership   MembershipConfig    `mapstructure:"membership"`
	MessageStore messagestore.Config `mapstructure:"message_store"`
	Redis        RedisConfig         `mapstructure:"redis"`
	Presence     presence.Config     `mapstructure:"presence"`
	Store        StoreConfig         `mapstructure:"store"`
	Pagination   PaginationConfig    `mapstructure:"pagination"`
	Message      MessageConfig       `mapstructure:"message"`
	Cache        cache.Config        `mapstructure:"cache"`
	PubSub       pubsub.Config       `mapstructure:"pubsub"`
	Auth         AuthConfig          `mapstructure:"auth"`
	WebSocket    WebSocketConfig     `mapstructure:"websocket"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type MembershipConfig struct {
	// UserDirectory is "database" (look users up in the shared users
	// table) or "trust" (accept any authenticated id).
	UserDirectory string `mapstructure:"user_directory"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type StoreConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

type PaginationConfig struct {
	DefaultLimit int `mapstructure:"default_limit"`
	MaxLimit     int `mapstructure:"max_limit"`
}

type MessageConfig struct {
	MaxBodyLength int `mapstructure:"max_body_length"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

type WebSocketConfig struct {
	PingInterval time.Duration `mapstructure:"ping_interval"`
}

// Load reads config.yaml from configDir, then applies defaults and
// environment overrides.
func Load(configDir string) (*Config, error) {
	v, err := pkgconfig.Load(configDir, "config")
	if err != nil {
		return nil, err
	}

	// Set defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8095)
	v.SetDefault("server.shutdown_timeout", "5s")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.service_name", "chat-core")
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "somsomparty")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.file_path", "./data/chat.db")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 100)
	v.SetDefault("database.conn_max_lifetime", 60)
	v.SetDefault("membership.user_directory", "database")
	v.SetDefault("message_store.driver", "cassandra")
	v.SetDefault("message_store.cassandra.hosts", []string{"localhost:9042"})
	v.SetDefault("message_store.cassandra.keyspace", "chat")
	v.SetDefault("message_store.cassandra.consistency", "LOCAL_QUORUM")
	v.SetDefault("message_store.cassandra.replication_factor", 1)
	v.SetDefault("message_store.cassandra.connect_timeout", "10s")
	v.SetDefault("message_store.cassandra.timeout", "5s")
	v.SetDefault("message_store.pebble.data_dir", "./data/messages")
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 20)
	v.SetDefault("presence.driver", "redis")
	v.SetDefault("presence.key_prefix", "chat")
	v.SetDefault("presence.active_ttl", "90s")
	v.SetDefault("presence.fanout_concurrency", 16)
	v.SetDefault("presence.fanout_timeout", "5s")
	v.SetDefault("store.timeout", "3s")
	v.SetDefault("pagination.default_limit", 20)
	v.SetDefault("pagination.max_limit", 50)
	v.SetDefault("message.max_body_length", 4000)
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.prefix", "chat:history")
	v.SetDefault("cache.ttl", "5m")
	v.SetDefault("pubsub.driver", "redis")
	v.SetDefault("pubsub.kafka.group_id", "chat-core")
	v.SetDefault("pubsub.kafka.partitions", 4)
	v.SetDefault("auth.issuer", "somsomparty")
	v.SetDefault("websocket.ping_interval", "30s")

	// Env overrides (for Docker)
	_ = v.BindEnv("server.port", "PORT")
	_ = v.BindEnv("log.level", "LOG_LEVEL")
	_ = v.BindEnv("database.driver", "DB_DRIVER")
	_ = v.BindEnv("database.host", "DB_HOST")
	_ = v.BindEnv("database.port", "DB_PORT")
	_ = v.BindEnv("database.user", "DB_USER")
	_ = v.BindEnv("database.password", "DB_PASSWORD")
	_ = v.BindEnv("database.dbname", "DB_NAME")
	_ = v.BindEnv("database.sslmode", "DB_SSLMODE")
	_ = v.BindEnv("database.file_path", "DB_FILE_PATH")
	_ = v.BindEnv("message_store.driver", "MESSAGE_STORE_DRIVER")
	_ = v.BindEnv("message_store.cassandra.keyspace", "CASSANDRA_KEYSPACE")
	_ = v.BindEnv("message_store.pebble.data_dir", "PEBBLE_DATA_DIR")
	_ = v.BindEnv("redis.address", "REDIS_ADDRESS")
	_ = v.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("presence.driver", "PRESENCE_DRIVER")
	_ = v.BindEnv("pubsub.driver", "PUBSUB_DRIVER")
	_ = v.BindEnv("pubsub.kafka.brokers", "KAFKA_BROKERS")
	_ = v.BindEnv("auth.jwt_secret", "JWT_SECRET")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// CASSANDRA_HOSTS: comma-separated, e.g. "cassandra:9042" or "host1:9042,host2:9042"
	if hosts := pkgconfig.EnvList("CASSANDRA_HOSTS"); len(hosts) > 0 {
		cfg.MessageStore.Cassandra.Hosts = hosts
	}

	// The pub/sub bus shares the Redis instance unless configured otherwise.
	if cfg.PubSub.Redis.Address == "" {
		cfg.PubSub.Redis.Address = cfg.Redis.Address
		cfg.PubSub.Redis.Password = cfg.Redis.Password
		cfg.PubSub.Redis.DB = cfg.Redis.DB
	}

	return &cfg, nil
}
