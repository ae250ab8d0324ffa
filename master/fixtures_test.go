package master

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/sutd_dfs_project/helper"
	"github.com/sutd_dfs_project/store"
)

var errConnRefused = errors.New("connection refused")

// fakeNodes is an in-memory cluster of chunk servers.
type fakeNodes struct {
	mu        sync.Mutex
	down      map[string]bool
	failStore map[string]bool
	blobs     map[string]map[string][]byte
	pushes    []string
}

func newFakeNodes() *fakeNodes {
	return &fakeNodes{
		down:      make(map[string]bool),
		failStore: make(map[string]bool),
		blobs:     make(map[string]map[string][]byte),
	}
}

func blobKey(filename string, chunkID int) string {
	return fmt.Sprintf("%s/%d", filename, chunkID)
}

func (f *fakeNodes) put(node, filename string, chunkID int, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.blobs[node] == nil {
		f.blobs[node] = make(map[string][]byte)
	}
	f.blobs[node][blobKey(filename, chunkID)] = data
}

func (f *fakeNodes) setDown(node string, down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.down[node] = down
}

func (f *fakeNodes) has(node, filename string, chunkID int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.blobs[node][blobKey(filename, chunkID)]
	return ok
}

func (f *fakeNodes) Health(ctx context.Context, node string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down[node] {
		return errConnRefused
	}
	return nil
}

func (f *fakeNodes) Exists(ctx context.Context, node, filename string, chunkID int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down[node] {
		return false, errConnRefused
	}
	_, ok := f.blobs[node][blobKey(filename, chunkID)]
	return ok, nil
}

func (f *fakeNodes) Retrieve(ctx context.Context, node, filename string, chunkID int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down[node] {
		return nil, errConnRefused
	}
	data, ok := f.blobs[node][blobKey(filename, chunkID)]
	if !ok {
		return nil, helper.ErrChunkNotFound
	}
	return data, nil
}

func (f *fakeNodes) Store(ctx context.Context, node, filename string, chunkID int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down[node] || f.failStore[node] {
		return errConnRefused
	}
	if f.blobs[node] == nil {
		f.blobs[node] = make(map[string][]byte)
	}
	f.blobs[node][blobKey(filename, chunkID)] = data
	f.pushes = append(f.pushes, node)
	return nil
}

func testConfig() helper.MasterConfig {
	return helper.MasterConfig{
		ChunkSize:           1024,
		ReplicationFactor:   2,
		BatchSize:           10,
		MaxChunks:           helper.MAX_CHUNKS,
		HeartbeatInterval:   time.Hour,
		ReplicationInterval: time.Hour,
		Retry:               helper.DefaultRetryPolicy(),
	}
}

func newTestStore(t *testing.T) *store.RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return store.NewRedisStore(rdb)
}

func testMetrics() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}

func markLive(t *testing.T, st store.Store, nodes ...string) {
	t.Helper()
	for _, n := range nodes {
		if _, err := st.MarkLive(context.Background(), n); err != nil {
			t.Fatalf("MarkLive(%s): %v", n, err)
		}
	}
}
