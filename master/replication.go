package master

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sutd_dfs_project/helper"
	"github.com/sutd_dfs_project/store"
	"golang.org/x/sync/errgroup"
)

// replicas of one chunk probed in parallel
const probeConcurrency = 4

// RepairReport summarises one full repair scan.
type RepairReport struct {
	Files         int
	Chunks        int
	Pruned        int
	Replicated    int
	Unrecoverable int
	// files or chunks skipped because the store could not be read
	Skipped int
}

// ReplicationManager periodically verifies that every chunk is really held by
// the servers registered for it and pushes copies until the replication factor
// is met again. Only replicas on live servers count toward the factor. It only
// adds replicas, and only removes placement entries whose server failed a direct
// existence probe.
type ReplicationManager struct {
	store             store.Store
	nodes             ChunkServerClient
	replicationFactor int
	interval          time.Duration
	metrics           *Metrics
}

func NewReplicationManager(st store.Store, nodes ChunkServerClient, replicationFactor int, interval time.Duration, metrics *Metrics) *ReplicationManager {
	return &ReplicationManager{
		store:             st,
		nodes:             nodes,
		replicationFactor: replicationFactor,
		interval:          interval,
		metrics:           metrics,
	}
}

func (rm *ReplicationManager) Run(ctx context.Context) error {
	ticker := time.NewTicker(rm.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			rm.RepairAll(ctx)
		}
	}
}

// repairCycle is the state of one scan. The cursor points just past the last
// push target so consecutive repairs start at different servers.
type repairCycle struct {
	logger zerolog.Logger
	live   []string
	cursor int
	report RepairReport
}

// RepairAll scans every file once. Failures are logged and only skip the
// file, chunk or server they concern.
func (rm *ReplicationManager) RepairAll(ctx context.Context) RepairReport {
	started := time.Now()
	cycle := &repairCycle{
		logger: log.With().Str("cycle", helper.NewID()).Logger(),
	}

	files, err := rm.store.ListFiles(ctx)
	if err != nil {
		cycle.logger.Error().Err(err).Msg("[Master Replication] Error listing files")
		return cycle.report
	}
	if cycle.live, err = rm.store.LiveNodes(ctx); err != nil {
		cycle.logger.Error().Err(err).Msg("[Master Replication] Error reading rotation queue")
		return cycle.report
	}

	for _, filename := range files {
		if ctx.Err() != nil {
			break
		}
		rm.repairFile(ctx, cycle, filename)
	}

	rm.metrics.UnrecoverableChunks.Set(float64(cycle.report.Unrecoverable))
	rm.metrics.RepairCycleDuration.Observe(time.Since(started).Seconds())
	cycle.logger.Debug().
		Int("files", cycle.report.Files).
		Int("chunks", cycle.report.Chunks).
		Int("pruned", cycle.report.Pruned).
		Int("replicated", cycle.report.Replicated).
		Int("unrecoverable", cycle.report.Unrecoverable).
		Dur("took", time.Since(started)).
		Msg("[Master Replication] Repair cycle complete")
	return cycle.report
}

func (rm *ReplicationManager) repairFile(ctx context.Context, cycle *repairCycle, filename string) {
	rec, err := rm.store.GetFile(ctx, filename)
	if err != nil {
		cycle.report.Skipped++
		cycle.logger.Warn().Err(err).Str("file", filename).Msg("[Master Replication] Skipping file")
		return
	}
	cycle.report.Files++
	for id := 0; id < rec.ChunkCount; id++ {
		rm.repairChunk(ctx, cycle, filename, id)
	}
}

func (rm *ReplicationManager) repairChunk(ctx context.Context, cycle *repairCycle, filename string, chunkID int) {
	logger := cycle.logger.With().Str("file", filename).Int("chunk", chunkID).Logger()

	replicas, err := rm.store.Replicas(ctx, filename, chunkID)
	if err != nil {
		cycle.report.Skipped++
		logger.Warn().Err(err).Msg("[Master Replication] Error reading chunk placement")
		return
	}
	cycle.report.Chunks++
	if len(replicas) == 0 {
		// nothing registered yet, the upload may still be in flight
		return
	}

	held, invalid := rm.probeReplicas(ctx, filename, chunkID, replicas)
	// a replica counts only while its server is live; one outside the rotation
	// that still answers is neither counted nor pruned
	valid := liveOnly(held, cycle.live)
	if standby := len(held) - len(valid); standby > 0 {
		logger.Debug().Int("standby", standby).Msg("[Master Replication] Replicas held by servers outside the rotation")
	}
	if len(valid) == 0 {
		// no source to copy from; keep the entries so a recovering server can still serve the chunk
		cycle.report.Unrecoverable++
		logger.Warn().Strs("replicas", replicas).Msg("[Master Replication] No valid replica, leaving placement untouched")
		return
	}

	for _, node := range invalid {
		if err := rm.store.RemoveReplica(ctx, filename, chunkID, node); err != nil {
			logger.Warn().Err(err).Str("node", node).Msg("[Master Replication] Error pruning replica")
			continue
		}
		cycle.report.Pruned++
		rm.metrics.ReplicasPruned.Inc()
		logger.Info().Str("node", node).Msg("[Master Replication] Pruned invalid replica")
	}

	if len(valid) >= rm.replicationFactor {
		return
	}

	data, source := rm.fetchChunk(ctx, filename, chunkID, valid)
	if source == "" {
		logger.Warn().Strs("valid", valid).Msg("[Master Replication] Could not fetch chunk from any valid replica")
		return
	}

	holding := make(map[string]bool, len(valid))
	for _, node := range valid {
		holding[node] = true
	}
	start := cycle.cursor
	for i, node := range rotate(cycle.live, start) {
		if len(holding) >= rm.replicationFactor {
			break
		}
		if holding[node] {
			continue
		}
		if err := rm.nodes.Store(ctx, node, filename, chunkID, data); err != nil {
			logger.Warn().Err(err).Str("node", node).Msg("[Master Replication] Error pushing chunk")
			continue
		}
		if err := rm.store.AddReplica(ctx, filename, chunkID, node); err != nil {
			logger.Warn().Err(err).Str("node", node).Msg("[Master Replication] Error recording replica")
			continue
		}
		holding[node] = true
		cycle.cursor = start + i + 1
		cycle.report.Replicated++
		rm.metrics.ReplicasAdded.Inc()
		logger.Info().Str("from", source).Str("to", node).Msg("[Master Replication] Chunk replicated")
	}

	if len(holding) < rm.replicationFactor {
		logger.Warn().Int("replicas", len(holding)).Int("target", rm.replicationFactor).
			Msg("[Master Replication] Not enough live chunk servers to reach replication factor")
	}
}

// probeReplicas asks every registered server whether it holds the chunk bytes.
// A server that cannot be reached counts as invalid.
func (rm *ReplicationManager) probeReplicas(ctx context.Context, filename string, chunkID int, replicas []string) (valid, invalid []string) {
	held := make([]bool, len(replicas))

	var g errgroup.Group
	g.SetLimit(probeConcurrency)
	for i, node := range replicas {
		g.Go(func() error {
			ok, err := rm.nodes.Exists(ctx, node, filename, chunkID)
			if err != nil {
				log.Debug().Err(err).Str("node", node).Str("file", filename).Int("chunk", chunkID).
					Msg("[Master Replication] Existence probe failed")
			}
			held[i] = ok && err == nil
			return nil
		})
	}
	g.Wait()

	for i, node := range replicas {
		if held[i] {
			valid = append(valid, node)
		} else {
			invalid = append(invalid, node)
		}
	}
	return valid, invalid
}

func liveOnly(nodes, live []string) []string {
	isLive := make(map[string]bool, len(live))
	for _, node := range live {
		isLive[node] = true
	}
	var out []string
	for _, node := range nodes {
		if isLive[node] {
			out = append(out, node)
		}
	}
	return out
}

func (rm *ReplicationManager) fetchChunk(ctx context.Context, filename string, chunkID int, valid []string) ([]byte, string) {
	for _, node := range valid {
		data, err := rm.nodes.Retrieve(ctx, node, filename, chunkID)
		if err != nil {
			log.Debug().Err(err).Str("node", node).Str("file", filename).Int("chunk", chunkID).
				Msg("[Master Replication] Error retrieving chunk")
			continue
		}
		return data, node
	}
	return nil, ""
}
