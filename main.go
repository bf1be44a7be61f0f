package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/padel-memory/internal/config"
	"github.com/robalobadob/padel-memory/internal/db"
	"github.com/robalobadob/padel-memory/internal/httpserver"
	"github.com/robalobadob/padel-memory/internal/images"
	"github.com/robalobadob/padel-memory/internal/store"
)

const (
	pruneEvery = 10 * time.Minute
	idleGame   = 2 * time.Hour

	shutdownGrace = 10 * time.Second
)

func main() {
	_ = godotenv.Load()
	cfg, err := config.Load(config.GetEnv("GAME_CONFIG", "game.yaml"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.Server.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	if err := images.Init(); err != nil {
		log.Fatal().Err(err).Msg("failed to load image list")
	}

	conn, err := db.OpenAndMigrate(cfg.Server.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("db", cfg.Server.DBPath).Msg("failed to open database")
	}
	defer conn.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mem := store.NewMemoryStore()
	go func() {
		t := time.NewTicker(pruneEvery)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if n := mem.Prune(idleGame); n > 0 {
					log.Info().Int("games", n).Msg("pruned idle games")
				}
			}
		}
	}()

	srv := httpserver.New(mem, conn, cfg.Game)
	hs := srv.HTTPServer(":" + cfg.Server.Port)
	log.Info().Str("port", cfg.Server.Port).Int("imageSets", cfg.Game.ImageSets).Msg("starting memory server")
	go func() {
		if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server exited")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	// Stop taking requests, then close live games before the deferred
	// conn.Close so completion writes land first.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := hs.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown")
	}
	srv.Close()
}
