package main

import (
	"context"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/somsomparty/chat-core/internal/cache"
	"github.com/somsomparty/chat-core/internal/config"
	"github.com/somsomparty/chat-core/internal/membership"
	"github.com/somsomparty/chat-core/internal/messagestore"
	"github.com/somsomparty/chat-core/internal/presence"
	"github.com/somsomparty/chat-core/internal/service"
	"github.com/somsomparty/chat-core/pkg/database"
	pkglog "github.com/somsomparty/chat-core/pkg/log"
)

func main() {
	var configDir string

	rootCmd := &cobra.Command{
		Use:           "chat-core",
		Short:         "Room chat core: message log, membership and unread counters",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configDir, "config", "./config", "directory containing config.yaml")

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Start the HTTP/WebSocket server and event subscribers",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := loadConfig(configDir)
				if err != nil {
					return err
				}
				return serve(cfg)
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Create the membership tables and the message keyspace",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := loadConfig(configDir)
				if err != nil {
					return err
				}
				return migrate(cmd.Context(), cfg)
			},
		},
		&cobra.Command{
			Use:   "reconcile",
			Short: "Rebuild presence participant sets from the membership registry",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := loadConfig(configDir)
				if err != nil {
					return err
				}
				return reconcile(cmd.Context(), cfg)
			},
		},
		registerRoomCmd(&configDir),
		tickCmd(&configDir),
	)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		l := pkglog.L()
		l.Error().Err(err).Msg("chat-core exited")
		os.Exit(1)
	}
}

func loadConfig(dir string) (*config.Config, error) {
	cfg, err := config.Load(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize structured logger
	pkglog.Init(pkglog.Config{
		Level:       cfg.Log.Level,
		Pretty:      cfg.Log.Pretty || cfg.Log.Level == "debug",
		ServiceName: cfg.Log.ServiceName,
	})
	return cfg, nil
}

func migrate(ctx context.Context, cfg *config.Config) error {
	logger := pkglog.L()

	db, err := database.New(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close(db)

	if err := membership.Migrate(db); err != nil {
		return err
	}
	logger.Info().Str("driver", cfg.Database.Driver).Msg("database migration completed")

	if cfg.MessageStore.Driver == "cassandra" {
		if err := messagestore.MigrateCassandra(ctx, cfg.MessageStore.Cassandra); err != nil {
			return err
		}
		logger.Info().Str("keyspace", cfg.MessageStore.Cassandra.Keyspace).Msg("cassandra migration completed")
	}
	return nil
}

func reconcile(ctx context.Context, cfg *config.Config) error {
	logger := pkglog.L()

	c, err := build(cfg)
	if err != nil {
		return err
	}
	defer c.close()

	rooms, err := c.svc.ReconcilePresence(ctx)
	if err != nil {
		return err
	}
	logger.Info().Int("rooms", rooms).Msg("presence reconciled")
	return nil
}

// components holds everything a command needs, in shutdown order.
type components struct {
	db       *gorm.DB
	rdb      *redis.Client
	messages messagestore.Store
	engine   presence.Engine
	svc      service.ChatService
}

func newRedisClient(cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

func build(cfg *config.Config) (*components, error) {
	logger := pkglog.L()
	c := &components{}

	db, err := database.New(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	c.db = db

	if err := membership.Migrate(db); err != nil {
		c.close()
		return nil, err
	}

	var users membership.UserDirectory = membership.TrustingUserDirectory{}
	if cfg.Membership.UserDirectory == "database" {
		users = membership.NewGormUserDirectory(db)
	}

	messages, err := messagestore.New(cfg.MessageStore)
	if err != nil {
		c.close()
		return nil, err
	}
	c.messages = messages
	logger.Info().Str("driver", cfg.MessageStore.Driver).Msg("message store opened")

	if cfg.Presence.Driver != "memory" || cfg.Cache.Enabled {
		rdb, err := newRedisClient(cfg.Redis)
		if err != nil {
			c.close()
			return nil, err
		}
		c.rdb = rdb
		logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	}

	engine, err := presence.New(cfg.Presence, c.rdb)
	if err != nil {
		c.close()
		return nil, err
	}
	c.engine = engine

	var pageCache cache.PageCache
	if cfg.Cache.Enabled {
		pageCache = cache.NewRedisPageCache(c.rdb, cfg.Cache.Prefix)
	}

	c.svc = service.NewChatService(
		membership.NewGormRegistry(db),
		users,
		messages,
		engine,
		pageCache,
		service.Options{
			StoreTimeout:  cfg.Store.Timeout,
			FanoutTimeout: cfg.Presence.FanoutTimeout,
			CacheTTL:      cfg.Cache.TTL,
			DefaultLimit:  cfg.Pagination.DefaultLimit,
			MaxLimit:      cfg.Pagination.MaxLimit,
			MaxBodyLength: cfg.Message.MaxBodyLength,
		},
	)
	return c, nil
}

func (c *components) close() {
	logger := pkglog.L()
	if c.engine != nil {
		if err := c.engine.Close(); err != nil {
			logger.Warn().Err(err).Msg("failed to close presence engine")
		}
	}
	if c.messages != nil {
		if err := c.messages.Close(); err != nil {
			logger.Warn().Err(err).Msg("failed to close message store")
		}
	}
	if c.rdb != nil {
		c.rdb.Close()
	}
	if c.db != nil {
		database.Close(c.db)
	}
}
