package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sutd_dfs_project/chunkserver"
	"github.com/sutd_dfs_project/helper"
	"github.com/sutd_dfs_project/store"
)

func main() {
	closer, err := helper.InitLogging("chunkserver")
	if err != nil {
		log.Fatal().Err(err).Msg("[ChunkServer] Error configuring logging")
	}
	defer closer.Close()

	cfg, err := helper.LoadChunkServerConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("[ChunkServer] Invalid configuration")
	}
	flag.StringVar(&cfg.Address, "addr", cfg.Address, "Listen address")
	flag.StringVar(&cfg.AdvertiseAddr, "advertise", cfg.AdvertiseAddr, "host:port registered in chunk placement")
	flag.StringVar(&cfg.UploadFolder, "dir", cfg.UploadFolder, "Folder chunks are stored in")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb := store.NewRedisClient(cfg.Redis)
	defer rdb.Close()
	st := store.NewRedisStore(rdb)
	if err := st.Ping(ctx); err != nil {
		log.Fatal().Err(err).Str("redis", cfg.Redis.Addr()).Msg("[ChunkServer] Error connecting to Redis")
	}

	cs, err := chunkserver.NewChunkServer(cfg.AdvertiseAddr, cfg.UploadFolder, st)
	if err != nil {
		log.Fatal().Err(err).Msg("[ChunkServer] Error creating chunk server")
	}

	srv := &http.Server{
		Addr:              cfg.Address,
		Handler:           cs,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	helper.Banner("Chunk server %s (%s) storing into %s", cs.Location, cs.ID, cfg.UploadFolder)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("[ChunkServer] Stopped with error")
	}
	log.Info().Msg("[ChunkServer] Stopped")
}
