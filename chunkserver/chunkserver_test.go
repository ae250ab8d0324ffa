package chunkserver

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sutd_dfs_project/helper"
	"github.com/sutd_dfs_project/store"
)

type testNode struct {
	addr  string
	root  string
	store *store.RedisStore
	srv   *httptest.Server
}

func startChunkServer(t *testing.T) *testNode {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	st := store.NewRedisStore(rdb)

	// the listener address is only known once the server starts
	srv := httptest.NewUnstartedServer(nil)
	addr := srv.Listener.Addr().String()
	root := t.TempDir()
	cs, err := NewChunkServer(addr, root, st)
	if err != nil {
		t.Fatalf("NewChunkServer: %v", err)
	}
	srv.Config.Handler = cs
	srv.Start()
	t.Cleanup(srv.Close)

	return &testNode{addr: addr, root: root, store: st, srv: srv}
}

func testClient() *NodeClient {
	return NewNodeClient(helper.RetryPolicy{Timeout: 2 * time.Second, Attempts: 2, Backoff: 10 * time.Millisecond})
}

func TestStoreRetrieveDelete(t *testing.T) {
	node := startChunkServer(t)
	c := testClient()
	ctx := context.Background()
	data := []byte("chunk zero bytes")

	if err := c.Health(ctx, node.addr); err != nil {
		t.Fatalf("Health: %v", err)
	}

	if ok, err := c.Exists(ctx, node.addr, "photo.jpg", 0); err != nil || ok {
		t.Fatalf("Exists before store = %v, %v", ok, err)
	}

	if err := c.Store(ctx, node.addr, "photo.jpg", 0, data); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if _, err := os.Stat(filepath.Join(node.root, "photo_0.jpg")); err != nil {
		t.Fatalf("expected blob photo_0.jpg on disk: %v", err)
	}

	if ok, err := c.Exists(ctx, node.addr, "photo.jpg", 0); err != nil || !ok {
		t.Fatalf("Exists after store = %v, %v", ok, err)
	}
	got, err := c.Retrieve(ctx, node.addr, "photo.jpg", 0)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("Retrieve = %q, want %q", got, data)
	}
	size, err := c.Size(ctx, node.addr, "photo.jpg", 0)
	if err != nil || size != int64(len(data)) {
		t.Fatalf("Size = %d, %v", size, err)
	}

	replicas, _ := node.store.Replicas(ctx, "photo.jpg", 0)
	if !reflect.DeepEqual(replicas, []string{node.addr}) {
		t.Fatalf("replicas after store = %v", replicas)
	}

	if err := c.Delete(ctx, node.addr, "photo.jpg", 0); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if replicas, _ := node.store.Replicas(ctx, "photo.jpg", 0); len(replicas) != 0 {
		t.Fatalf("replicas after delete = %v", replicas)
	}
	if err := c.Delete(ctx, node.addr, "photo.jpg", 0); !errors.Is(err, helper.ErrNotFound) {
		t.Fatalf("second Delete error = %v, want not found", err)
	}
	if _, err := c.Retrieve(ctx, node.addr, "photo.jpg", 0); !errors.Is(err, helper.ErrNotFound) {
		t.Fatalf("Retrieve after delete error = %v, want not found", err)
	}
}

func TestRepeatedStoreRegistersOnce(t *testing.T) {
	node := startChunkServer(t)
	c := testClient()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := c.Store(ctx, node.addr, "a.txt", 4, []byte("same")); err != nil {
			t.Fatalf("Store: %v", err)
		}
	}
	replicas, _ := node.store.Replicas(ctx, "a.txt", 4)
	if len(replicas) != 1 {
		t.Fatalf("replicas = %v, want a single entry", replicas)
	}
}

func TestStoreRejectsBadRequests(t *testing.T) {
	node := startChunkServer(t)
	base := node.srv.URL

	resp, err := http.Post(base+"/store/a.txt/0", "text/plain", strings.NewReader("no multipart"))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}

	resp, err = http.Get(base + "/retrieve/a.txt/minus")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestUnreachableNodeIsTransient(t *testing.T) {
	c := NewNodeClient(helper.RetryPolicy{Timeout: 200 * time.Millisecond, Attempts: 1})
	// reserved port, nothing listens there
	err := c.Health(context.Background(), "127.0.0.1:1")
	if !errors.Is(err, helper.ErrTransient) {
		t.Fatalf("Health error = %v, want transient", err)
	}
}
