package master

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/sutd_dfs_project/helper"
	"github.com/sutd_dfs_project/store"
	"golang.org/x/sync/errgroup"
)

// MasterNode wires the file controller, the heartbeat tracker and the
// replication manager around one metadata store. The components never share
// memory; they meet only in the store.
type MasterNode struct {
	cfg   helper.MasterConfig
	store store.Store

	Files       *FileController
	Tracker     *HeartBeatTracker
	Replication *ReplicationManager
	Metrics     *Metrics
	Registry    *prometheus.Registry
	Server      *Server
}

func NewMasterNode(cfg helper.MasterConfig, st store.Store, nodes ChunkServerClient) *MasterNode {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)
	files := NewFileController(st, cfg, metrics)

	return &MasterNode{
		cfg:         cfg,
		store:       st,
		Files:       files,
		Tracker:     NewHeartBeatTracker(st, nodes, cfg.HeartbeatInterval, metrics),
		Replication: NewReplicationManager(st, nodes, cfg.ReplicationFactor, cfg.ReplicationInterval, metrics),
		Metrics:     metrics,
		Registry:    registry,
		Server:      NewServer(files, st, registry),
	}
}

// RegisterChunkServers seeds the registry with the configured chunk servers.
func (mn *MasterNode) RegisterChunkServers(ctx context.Context) error {
	if err := mn.store.RegisterServers(ctx, mn.cfg.ChunkServers...); err != nil {
		return fmt.Errorf("registering chunk servers: %w", err)
	}
	for _, node := range mn.cfg.ChunkServers {
		helper.Banner("Registering chunk server: %s", node)
	}
	return nil
}

// Run serves HTTP on lis and runs both background loops until ctx is cancelled
// or one of them fails.
func (mn *MasterNode) Run(ctx context.Context, lis net.Listener) error {
	if err := mn.RegisterChunkServers(ctx); err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           mn.Server,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return mn.Tracker.Run(gctx)
	})
	g.Go(func() error {
		return mn.Replication.Run(gctx)
	})
	g.Go(func() error {
		log.Info().Str("addr", lis.Addr().String()).Msg("[Master] HTTP server is listening")
		if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
