package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/loopmarket/backend/internal/config"
	"github.com/loopmarket/backend/internal/db"
	"github.com/loopmarket/backend/internal/janitor"
	"github.com/loopmarket/backend/internal/model"
	"github.com/loopmarket/backend/internal/repository"
	"github.com/loopmarket/backend/internal/server"
	"github.com/loopmarket/backend/internal/storage"
)

var (
	gitSHA    = "dev"
	buildTime = "unknown"
)

func main() {
	_ = godotenv.Load()

	log := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	conn, err := db.Connect(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("connect database")
	}
	if err := conn.AutoMigrate(
		&model.Listing{},
		&model.Conversation{},
		&model.Message{},
		&model.Profile{},
		&model.Notification{},
		&model.Report{},
		&model.ErasureRequest{},
	); err != nil {
		log.Fatal().Err(err).Msg("auto migrate")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("connect redis")
	}

	var images *storage.ImageStore
	if cfg.StorageBucket != "" {
		images, err = storage.NewImageStore(ctx, cfg.StorageBucket)
		if err != nil {
			log.Fatal().Err(err).Msg("init image storage")
		}
	}

	srv, err := server.New(ctx, conn, rdb, cfg, images, log, gitSHA, buildTime)
	if err != nil {
		log.Fatal().Err(err).Msg("init server")
	}

	go srv.Hub().Run(ctx)
	go srv.Hub().SubscribeRedis(ctx)

	sweeper := janitor.New(
		repository.NewConversationRepository(conn),
		repository.NewNotificationRepository(conn),
		repository.NewListingRepository(conn),
		repository.NewProfileRepository(conn),
		repository.NewErasureRepository(conn),
		log,
	)
	if err := sweeper.Start(cfg.ErasureSchedule); err != nil {
		log.Fatal().Err(err).Str("schedule", cfg.ErasureSchedule).Msg("start janitor")
	}
	defer sweeper.Stop()

	addr := ":" + cfg.Port
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("starting server")
		errCh <- srv.Start(addr)
	}()

	select {
	case err := <-errCh:
		log.Fatal().Err(err).Msg("server stopped")
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("shutdown")
		}
	}
}
