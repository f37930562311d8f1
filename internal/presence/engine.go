package presence

import (
	"fmt"

	"github.com/redis/go-redis/v9"
)

// New returns the engine selected by cfg.Driver. client may be nil for the
// memory driver.
func New(cfg Config, client *redis.Client) (Engine, error) {
	switch cfg.Driver {
	case "memory":
		return NewMemoryEngine(cfg), nil
	case "redis", "":
		if client == nil {
			return nil, fmt.Errorf("presence: redis driver requires a client")
		}
		return NewRedisEngine(client, cfg), nil
	default:
		return nil, fmt.Errorf("unsupported presence driver: %s", cfg.Driver)
	}
}
