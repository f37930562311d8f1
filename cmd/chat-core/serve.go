package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/somsomparty/chat-core/internal/config"
	"github.com/somsomparty/chat-core/internal/handler"
	"github.com/somsomparty/chat-core/internal/lifecycle"
	"github.com/somsomparty/chat-core/internal/tick"
	"github.com/somsomparty/chat-core/pkg/jwt"
	pkglog "github.com/somsomparty/chat-core/pkg/log"
	"github.com/somsomparty/chat-core/pkg/middleware"
	"github.com/somsomparty/chat-core/pkg/pubsub"
)

func serve(cfg *config.Config) error {
	logger := pkglog.L()

	c, err := build(cfg)
	if err != nil {
		return err
	}
	defer c.close()

	// Auth: bearer tokens when a secret is configured, gateway header otherwise
	var verifier *jwt.Verifier
	if cfg.Auth.JWTSecret != "" {
		verifier, err = jwt.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
		if err != nil {
			return fmt.Errorf("failed to create jwt verifier: %w", err)
		}
	} else {
		logger.Warn().Str("header", middleware.UserIDHeader).Msg("no jwt secret configured, trusting gateway header")
	}
	authMiddleware := middleware.NewAuthMiddleware(verifier)

	presenceHandler := handler.NewPresenceHandler(c.svc, cfg.WebSocket.PingInterval)
	httpHandler := handler.NewHandler(c.svc, authMiddleware, presenceHandler)

	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(pkglog.GinMiddleware(logger))
	httpHandler.RegisterRoutes(r)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Event subscribers
	var wg sync.WaitGroup
	ps, err := pubsub.NewPubSub(cfg.PubSub)
	switch {
	case errors.Is(err, pubsub.ErrDisabled):
		logger.Info().Msg("pubsub disabled, rooms must be registered out of band")
	case err != nil:
		return fmt.Errorf("failed to create pubsub: %w", err)
	default:
		defer ps.Close()

		router := lifecycle.NewRouter()
		router.Handle(pubsub.EventRoomCreated, lifecycle.RoomCreated(c.svc))
		wg.Add(1)
		go func() {
			defer wg.Done()
			router.Run(ctx, ps)
		}()

		ticks := tick.NewSubscriber(ps, c.svc)
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticks.Run(ctx)
		}()
		logger.Info().Str("driver", cfg.PubSub.Driver).Msg("event subscribers started")
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", addr).
			Str("message_store", cfg.MessageStore.Driver).
			Str("presence", cfg.Presence.Driver).
			Bool("cache", cfg.Cache.Enabled).
			Msg("chat-core starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logger.Info().Str("signal", sig.String()).Msg("shutting down chat-core")
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("server forced to shutdown")
	}

	cancel()
	wg.Wait()

	logger.Info().Msg("chat-core stopped")
	return nil
}
