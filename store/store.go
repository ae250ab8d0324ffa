// Package store keeps the cluster metadata shared by the master, its background
// loops and the chunk servers: file records, chunk placement sets and membership.
package store

import (
	"context"

	"github.com/sutd_dfs_project/models"
)

// Store is the metadata backing store. Implementations must make membership
// updates and file create/delete atomic across every key they touch.
type Store interface {
	RegisterServers(ctx context.Context, nodes ...string) error
	Servers(ctx context.Context) ([]string, error)

	// MarkLive and MarkDead report whether membership changed.
	MarkLive(ctx context.Context, node string) (bool, error)
	MarkDead(ctx context.Context, node string) (bool, error)
	// LiveNodes returns the rotation queue, head first.
	LiveNodes(ctx context.Context) ([]string, error)
	LiveSet(ctx context.Context) ([]string, error)

	CreateFile(ctx context.Context, rec models.FileRecord) error
	GetFile(ctx context.Context, filename string) (models.FileRecord, error)
	ListFiles(ctx context.Context) ([]string, error)
	// DeleteFileIfDrained removes the record only if every chunk placement set is
	// empty, otherwise it returns the ids of the chunks still placed.
	DeleteFileIfDrained(ctx context.Context, filename string) ([]int, error)

	AddReplica(ctx context.Context, filename string, chunkID int, node string) error
	RemoveReplica(ctx context.Context, filename string, chunkID int, node string) error
	Replicas(ctx context.Context, filename string, chunkID int) ([]string, error)

	// Cursor reads the placement cursor, 0 when unset.
	Cursor(ctx context.Context) (int, error)
	// AdvanceCursor adds n to the placement cursor and returns its previous value.
	AdvanceCursor(ctx context.Context, n int) (int, error)
}
