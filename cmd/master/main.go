package main

import (
	"context"
	"flag"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/sutd_dfs_project/chunkserver"
	"github.com/sutd_dfs_project/helper"
	"github.com/sutd_dfs_project/master"
	"github.com/sutd_dfs_project/store"
)

func main() {
	closer, err := helper.InitLogging("master")
	if err != nil {
		log.Fatal().Err(err).Msg("[Master] Error configuring logging")
	}
	defer closer.Close()

	cfg, err := helper.LoadMasterConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("[Master] Invalid configuration")
	}

	// flags override the environment
	flag.StringVar(&cfg.Address, "addr", cfg.Address, "Master listen address")
	flag.IntVar(&cfg.ReplicationFactor, "replication", cfg.ReplicationFactor, "Number of chunk replicas")
	flag.IntVar(&cfg.BatchSize, "batch", cfg.BatchSize, "Consecutive chunks placed on the same servers")
	flag.BoolVar(&cfg.SpreadAcrossFiles, "spread", cfg.SpreadAcrossFiles, "Rotate placement start across files")
	flag.DurationVar(&cfg.HeartbeatInterval, "heartbeat", cfg.HeartbeatInterval, "Heartbeat interval")
	flag.DurationVar(&cfg.ReplicationInterval, "repair", cfg.ReplicationInterval, "Replication repair interval")
	flag.Parse()
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("[Master] Invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb := store.NewRedisClient(cfg.Redis)
	defer rdb.Close()
	st := store.NewRedisStore(rdb)
	if err := st.Ping(ctx); err != nil {
		log.Fatal().Err(err).Str("redis", cfg.Redis.Addr()).Msg("[Master] Error connecting to Redis")
	}

	lis, err := net.Listen("tcp", cfg.Address)
	if err != nil {
		log.Fatal().Err(err).Msg("[Master] Error starting listener")
	}

	helper.Banner("Master started on %s, replication factor %d", cfg.Address, cfg.ReplicationFactor)
	mn := master.NewMasterNode(cfg, st, chunkserver.NewNodeClient(cfg.Retry))
	if err := mn.Run(ctx, lis); err != nil {
		log.Fatal().Err(err).Msg("[Master] Stopped with error")
	}
	log.Info().Msg("[Master] Stopped")
}
