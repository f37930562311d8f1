package messagestore

import (
	"fmt"
	"time"
)

// Config selects and configures the message store driver.
type Config struct {
	Driver    string          `mapstructure:"driver"` // "cassandra", "pebble"
	Cassandra CassandraConfig `mapstructure:"cassandra"`
	Pebble    PebbleConfig    `mapstructure:"pebble"`
}

// CassandraConfig holds Cassandra connection settings.
type CassandraConfig struct {
	Hosts             []string      `mapstructure:"hosts"`
	Keyspace          string        `mapstructure:"keyspace"`
	Consistency       string        `mapstructure:"consistency"`
	ReplicationFactor int           `mapstructure:"replication_factor"`
	ConnectTimeout    time.Duration `mapstructure:"connect_timeout"`
	Timeout           time.Duration `mapstructure:"timeout"`
}

// PebbleConfig holds settings for the embedded store.
type PebbleConfig struct {
	DataDir string `mapstructure:"data_dir"`
	// NoSync skips the WAL fsync on append. Only for tests and throwaway nodes.
	NoSync bool `mapstructure:"no_sync"`
}

// New opens the store selected by cfg.Driver.
func New(cfg Config) (Store, error) {
	switch cfg.Driver {
	case "cassandra":
		return NewCassandraStore(cfg.Cassandra)
	case "pebble", "":
		return NewPebbleStore(cfg.Pebble)
	default:
		return nil, fmt.Errorf("unsupported message store driver: %s", cfg.Driver)
	}
}
