package master

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/sutd_dfs_project/helper"
	"github.com/sutd_dfs_project/models"
	"github.com/sutd_dfs_project/store"
)

// FileController serves the file lifecycle: init, size, chunk locations and delete.
// It keeps no state of its own, every call reads the store.
type FileController struct {
	store     store.Store
	planner   Planner
	chunkSize int64
	maxChunks int
	// rotate the placement start per file using the store's cursor
	spread  bool
	metrics *Metrics
}

func NewFileController(st store.Store, cfg helper.MasterConfig, metrics *Metrics) *FileController {
	return &FileController{
		store: st,
		planner: Planner{
			ReplicationFactor: cfg.ReplicationFactor,
			BatchSize:         cfg.BatchSize,
		},
		chunkSize: cfg.ChunkSize,
		maxChunks: cfg.MaxChunks,
		spread:    cfg.SpreadAcrossFiles,
		metrics:   metrics,
	}
}

// Init records a new file and returns where each of its chunks should be pushed.
// The plan is not written to chunk placement; chunk servers register themselves
// once they store a chunk.
func (fc *FileController) Init(ctx context.Context, filename string, size int64) (models.ChunkAllocation, error) {
	name, err := helper.NormalizeFilename(filename)
	if err != nil {
		return nil, err
	}
	if size < 0 {
		return nil, helper.ErrInvalidSize
	}

	if _, err := fc.store.GetFile(ctx, name); err == nil {
		return nil, helper.ErrFileExists
	} else if !errors.Is(err, helper.ErrNotFound) {
		return nil, fmt.Errorf("looking up %s: %w", name, err)
	}

	numChunks := helper.ComputeNumberOfChunks(size, fc.chunkSize)
	if fc.maxChunks > 0 && numChunks > fc.maxChunks {
		return nil, fmt.Errorf("%w: %s needs %d chunks, limit is %d", helper.ErrFileTooLarge, name, numChunks, fc.maxChunks)
	}

	live, err := fc.store.LiveNodes(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading rotation queue: %w", err)
	}
	if len(live) == 0 {
		return nil, helper.ErrNoHealthyServers
	}
	if fc.spread {
		offset, err := fc.store.Cursor(ctx)
		if err != nil {
			return nil, fmt.Errorf("reading placement cursor: %w", err)
		}
		live = rotate(live, offset)
	}

	allocations, err := fc.planner.Plan(live, numChunks)
	if err != nil {
		return nil, err
	}

	rec := models.FileRecord{Name: name, Size: size, ChunkCount: numChunks}
	if err := fc.store.CreateFile(ctx, rec); err != nil {
		if errors.Is(err, helper.ErrConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("creating %s: %w", name, err)
	}

	// only files that were created move the cursor
	if fc.spread {
		steps := fc.planner.Batches(numChunks) * fc.planner.EffectiveReplication(len(live))
		if _, err := fc.store.AdvanceCursor(ctx, steps); err != nil {
			log.Warn().Err(err).Str("file", name).Msg("[Master] Error advancing placement cursor")
		}
	}

	fc.metrics.FilesInitialized.Inc()
	log.Info().Str("file", name).Int64("size", size).Int("chunks", numChunks).Strs("rotation", live).
		Msg("[Master] File initialised")
	return allocations, nil
}

// Size treats a malformed filename as an unknown file.
func (fc *FileController) Size(ctx context.Context, filename string) (int64, error) {
	name, err := helper.NormalizeFilename(filename)
	if err != nil {
		return 0, helper.ErrFileNotFound
	}
	rec, err := fc.store.GetFile(ctx, name)
	if err != nil {
		return 0, err
	}
	return rec.Size, nil
}

// Chunks returns the registered replicas of every chunk. Chunks no chunk server
// has registered yet map to an empty list.
func (fc *FileController) Chunks(ctx context.Context, filename string) (models.ChunkAllocation, error) {
	name, err := helper.NormalizeFilename(filename)
	if err != nil {
		return nil, err
	}
	rec, err := fc.store.GetFile(ctx, name)
	if err != nil {
		return nil, err
	}

	locations := make(models.ChunkAllocation, rec.ChunkCount)
	for id := 0; id < rec.ChunkCount; id++ {
		replicas, err := fc.store.Replicas(ctx, name, id)
		if err != nil {
			return nil, fmt.Errorf("reading replicas of %s chunk %d: %w", name, id, err)
		}
		if replicas == nil {
			replicas = []string{}
		}
		locations[id] = replicas
	}
	return locations, nil
}

// Delete removes the file record once no chunk server holds any of its chunks.
// Chunk blobs must be deleted from chunk servers first.
func (fc *FileController) Delete(ctx context.Context, filename string) error {
	name, err := helper.NormalizeFilename(filename)
	if err != nil {
		return err
	}
	remaining, err := fc.store.DeleteFileIfDrained(ctx, name)
	if err != nil {
		return err
	}
	if len(remaining) > 0 {
		return &helper.ChunksRemainError{Filename: name, Chunks: remaining}
	}

	fc.metrics.FilesDeleted.Inc()
	log.Info().Str("file", name).Msg("[Master] File deleted")
	return nil
}
