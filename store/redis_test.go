package store

import (
	"context"
	"errors"
	"math/rand"
	"reflect"
	"sort"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sutd_dfs_project/helper"
	"github.com/sutd_dfs_project/models"
)

func newTestStore(t *testing.T) (*RedisStore, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewRedisStore(rdb), rdb
}

func assertMembershipConsistent(t *testing.T, s *RedisStore) {
	t.Helper()
	ctx := context.Background()
	set, err := s.LiveSet(ctx)
	if err != nil {
		t.Fatalf("LiveSet: %v", err)
	}
	queue, err := s.LiveNodes(ctx)
	if err != nil {
		t.Fatalf("LiveNodes: %v", err)
	}
	sorted := append([]string(nil), queue...)
	sort.Strings(sorted)
	if len(set) == 0 && len(sorted) == 0 {
		return
	}
	if !reflect.DeepEqual(set, sorted) {
		t.Fatalf("membership diverged: set=%v queue=%v", set, queue)
	}
}

func TestMarkLiveAppendsOnce(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	for _, n := range []string{"cs1:5000", "cs2:5000", "cs1:5000"} {
		if _, err := s.MarkLive(ctx, n); err != nil {
			t.Fatalf("MarkLive(%s): %v", n, err)
		}
	}
	queue, _ := s.LiveNodes(ctx)
	if want := []string{"cs1:5000", "cs2:5000"}; !reflect.DeepEqual(queue, want) {
		t.Fatalf("queue = %v, want %v", queue, want)
	}

	changed, err := s.MarkLive(ctx, "cs2:5000")
	if err != nil || changed {
		t.Fatalf("MarkLive on live node: changed=%v err=%v", changed, err)
	}
	assertMembershipConsistent(t, s)
}

func TestMarkDeadRemovesFromBothViews(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	s.MarkLive(ctx, "cs1:5000")
	s.MarkLive(ctx, "cs2:5000")

	changed, err := s.MarkDead(ctx, "cs1:5000")
	if err != nil || !changed {
		t.Fatalf("MarkDead: changed=%v err=%v", changed, err)
	}
	changed, err = s.MarkDead(ctx, "cs1:5000")
	if err != nil || changed {
		t.Fatalf("second MarkDead: changed=%v err=%v", changed, err)
	}
	queue, _ := s.LiveNodes(ctx)
	if want := []string{"cs2:5000"}; !reflect.DeepEqual(queue, want) {
		t.Fatalf("queue = %v, want %v", queue, want)
	}
	assertMembershipConsistent(t, s)
}

func TestMembershipRepairsDivergedViews(t *testing.T) {
	s, rdb := newTestStore(t)
	ctx := context.Background()

	// set entry without a queue entry, and a duplicated queue entry without a set entry
	rdb.SAdd(ctx, helper.HealthyServersSetKey, "cs1:5000")
	rdb.RPush(ctx, helper.HealthyServersListKey, "cs2:5000", "cs2:5000")

	if changed, err := s.MarkLive(ctx, "cs1:5000"); err != nil || !changed {
		t.Fatalf("MarkLive: changed=%v err=%v", changed, err)
	}
	if changed, err := s.MarkDead(ctx, "cs2:5000"); err != nil || !changed {
		t.Fatalf("MarkDead: changed=%v err=%v", changed, err)
	}
	queue, _ := s.LiveNodes(ctx)
	if want := []string{"cs1:5000"}; !reflect.DeepEqual(queue, want) {
		t.Fatalf("queue = %v, want %v", queue, want)
	}
	assertMembershipConsistent(t, s)
}

func TestMembershipConsistentUnderRandomProbeOutcomes(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	nodes := []string{"cs1:5000", "cs2:5000", "cs3:5000", "cs4:5000"}
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 200; i++ {
		n := nodes[rng.Intn(len(nodes))]
		var err error
		if rng.Intn(2) == 0 {
			_, err = s.MarkLive(ctx, n)
		} else {
			_, err = s.MarkDead(ctx, n)
		}
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		assertMembershipConsistent(t, s)
	}
}

func TestCreateAndGetFile(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	rec := models.FileRecord{Name: "a.txt", Size: 2500, ChunkCount: 3}

	if err := s.CreateFile(ctx, rec); err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	if err := s.CreateFile(ctx, rec); !errors.Is(err, helper.ErrConflict) {
		t.Fatalf("duplicate CreateFile error = %v, want conflict", err)
	}

	got, err := s.GetFile(ctx, "a.txt")
	if err != nil {
		t.Fatalf("GetFile: %v", err)
	}
	if got != rec {
		t.Fatalf("GetFile = %+v, want %+v", got, rec)
	}
	if _, err := s.GetFile(ctx, "missing.txt"); !errors.Is(err, helper.ErrNotFound) {
		t.Fatalf("GetFile(missing) error = %v, want not found", err)
	}

	files, _ := s.ListFiles(ctx)
	if !reflect.DeepEqual(files, []string{"a.txt"}) {
		t.Fatalf("ListFiles = %v", files)
	}
}

func TestDeleteFileIfDrained(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	s.CreateFile(ctx, models.FileRecord{Name: "a.txt", Size: 2500, ChunkCount: 3})
	s.AddReplica(ctx, "a.txt", 0, "cs1:5000")
	s.AddReplica(ctx, "a.txt", 2, "cs2:5000")

	remaining, err := s.DeleteFileIfDrained(ctx, "a.txt")
	if err != nil {
		t.Fatalf("DeleteFileIfDrained: %v", err)
	}
	if !reflect.DeepEqual(remaining, []int{0, 2}) {
		t.Fatalf("remaining = %v, want [0 2]", remaining)
	}
	if _, err := s.GetFile(ctx, "a.txt"); err != nil {
		t.Fatalf("file must survive a gated delete: %v", err)
	}

	s.RemoveReplica(ctx, "a.txt", 0, "cs1:5000")
	s.RemoveReplica(ctx, "a.txt", 2, "cs2:5000")
	remaining, err = s.DeleteFileIfDrained(ctx, "a.txt")
	if err != nil || len(remaining) != 0 {
		t.Fatalf("DeleteFileIfDrained: remaining=%v err=%v", remaining, err)
	}
	if _, err := s.GetFile(ctx, "a.txt"); !errors.Is(err, helper.ErrNotFound) {
		t.Fatalf("expected file to be gone, got %v", err)
	}
	if files, _ := s.ListFiles(ctx); len(files) != 0 {
		t.Fatalf("files index still lists %v", files)
	}

	if _, err := s.DeleteFileIfDrained(ctx, "a.txt"); !errors.Is(err, helper.ErrNotFound) {
		t.Fatalf("second delete error = %v, want not found", err)
	}
}

func TestAddReplicaIsIdempotent(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := s.AddReplica(ctx, "a.txt", 1, "cs1:5000"); err != nil {
			t.Fatalf("AddReplica: %v", err)
		}
	}
	s.AddReplica(ctx, "a.txt", 1, "cs0:5000")
	replicas, _ := s.Replicas(ctx, "a.txt", 1)
	if want := []string{"cs0:5000", "cs1:5000"}; !reflect.DeepEqual(replicas, want) {
		t.Fatalf("replicas = %v, want %v", replicas, want)
	}
}

func TestAdvanceCursor(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	if cur, err := s.Cursor(ctx); err != nil || cur != 0 {
		t.Fatalf("Cursor before first advance = %d, %v", cur, err)
	}
	if prev, err := s.AdvanceCursor(ctx, 4); err != nil || prev != 0 {
		t.Fatalf("AdvanceCursor = %d, %v", prev, err)
	}
	if prev, err := s.AdvanceCursor(ctx, 2); err != nil || prev != 4 {
		t.Fatalf("AdvanceCursor = %d, %v", prev, err)
	}
	if cur, err := s.Cursor(ctx); err != nil || cur != 6 {
		t.Fatalf("Cursor = %d, %v", cur, err)
	}
}

func TestRegisterServers(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	s.RegisterServers(ctx, "cs2:5000", "cs1:5000")
	s.RegisterServers(ctx, "cs1:5000")
	servers, _ := s.Servers(ctx)
	if want := []string{"cs1:5000", "cs2:5000"}; !reflect.DeepEqual(servers, want) {
		t.Fatalf("servers = %v, want %v", servers, want)
	}
}
