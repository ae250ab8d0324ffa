package master

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sutd_dfs_project/models"
	"github.com/sutd_dfs_project/store"
)

// ChunkServerClient is how the master reaches chunk servers. Errors are
// transient from the master's point of view.
type ChunkServerClient interface {
	Health(ctx context.Context, node string) error
	Exists(ctx context.Context, node, filename string, chunkID int) (bool, error)
	Retrieve(ctx context.Context, node, filename string, chunkID int) ([]byte, error)
	Store(ctx context.Context, node, filename string, chunkID int, data []byte) error
}

// HeartBeatTracker probes every registered chunk server and keeps membership
// in the store up to date. It is the only writer of membership.
type HeartBeatTracker struct {
	store    store.Store
	nodes    ChunkServerClient
	interval time.Duration
	metrics  *Metrics
}

func NewHeartBeatTracker(st store.Store, nodes ChunkServerClient, interval time.Duration, metrics *Metrics) *HeartBeatTracker {
	return &HeartBeatTracker{
		store:    st,
		nodes:    nodes,
		interval: interval,
		metrics:  metrics,
	}
}

// Run checks all chunk servers right away and then once per interval until ctx is done.
func (t *HeartBeatTracker) Run(ctx context.Context) error {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		t.CheckAll(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (t *HeartBeatTracker) CheckAll(ctx context.Context) {
	servers, err := t.store.Servers(ctx)
	if err != nil {
		log.Error().Err(err).Msg("[Master Heartbeat] Error loading chunk server registry")
		return
	}
	for _, node := range servers {
		if ctx.Err() != nil {
			return
		}
		t.heartBeat(ctx, node)
	}

	live, err := t.store.LiveNodes(ctx)
	if err != nil {
		log.Error().Err(err).Msg("[Master Heartbeat] Error reading rotation queue")
		return
	}
	t.metrics.LiveServers.Set(float64(len(live)))
}

func (t *HeartBeatTracker) heartBeat(ctx context.Context, node string) {
	if probeErr := t.nodes.Health(ctx, node); probeErr != nil {
		changed, err := t.store.MarkDead(ctx, node)
		if err != nil {
			log.Error().Err(err).Str("node", node).Msg("[Master Heartbeat] Error removing chunk server from membership")
			return
		}
		if changed {
			t.metrics.MembershipChanges.WithLabelValues(models.StatusDead).Inc()
			log.Warn().Err(probeErr).Str("node", node).Msg("[Master Heartbeat] Chunk server is dead")
		}
		return
	}

	changed, err := t.store.MarkLive(ctx, node)
	if err != nil {
		log.Error().Err(err).Str("node", node).Msg("[Master Heartbeat] Error adding chunk server to membership")
		return
	}
	if changed {
		t.metrics.MembershipChanges.WithLabelValues(models.StatusAlive).Inc()
		log.Info().Str("node", node).Msg("[Master Heartbeat] Chunk server is alive")
	}
}
