package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/sutd_dfs_project/helper"
	"github.com/sutd_dfs_project/models"
)

// optimistic-lock retries before a transaction gives up
const maxTxRetries = 16

var ErrTxContention = errors.New("store: transaction retries exhausted")

var _ Store = (*RedisStore)(nil)

type RedisStore struct {
	rdb redis.UniversalClient
}

func NewRedisClient(cfg helper.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

func NewRedisStore(rdb redis.UniversalClient) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// transaction runs fn under WATCH on keys, retrying when a watched key changed
// before EXEC.
func (s *RedisStore) transaction(ctx context.Context, fn func(tx *redis.Tx) error, keys ...string) error {
	for i := 0; i < maxTxRetries; i++ {
		err := s.rdb.Watch(ctx, fn, keys...)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
		log.Debug().Strs("keys", keys).Int("attempt", i+1).Msg("[Store] Watched keys changed, retrying transaction")
	}
	return ErrTxContention
}

/* ============================== Registry ============================== */

func (s *RedisStore) RegisterServers(ctx context.Context, nodes ...string) error {
	if len(nodes) == 0 {
		return nil
	}
	members := make([]interface{}, len(nodes))
	for i, n := range nodes {
		members[i] = n
	}
	return s.rdb.SAdd(ctx, helper.ChunkServersKey, members...).Err()
}

func (s *RedisStore) Servers(ctx context.Context) ([]string, error) {
	return s.sortedMembers(ctx, helper.ChunkServersKey)
}

/* ============================== Membership ============================== */

// MarkLive adds node to the membership set and to the tail of the rotation
// queue in one transaction. A node present in only one of the two views, or
// queued more than once, is rewritten to a single tail entry.
func (s *RedisStore) MarkLive(ctx context.Context, node string) (bool, error) {
	var changed bool
	err := s.transaction(ctx, func(tx *redis.Tx) error {
		changed = false
		member, err := tx.SIsMember(ctx, helper.HealthyServersSetKey, node).Result()
		if err != nil {
			return err
		}
		queue, err := tx.LRange(ctx, helper.HealthyServersListKey, 0, -1).Result()
		if err != nil {
			return err
		}
		if member && occurrences(queue, node) == 1 {
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.SAdd(ctx, helper.HealthyServersSetKey, node)
			pipe.LRem(ctx, helper.HealthyServersListKey, 0, node)
			pipe.RPush(ctx, helper.HealthyServersListKey, node)
			return nil
		})
		if err == nil {
			changed = true
		}
		return err
	}, helper.HealthyServersSetKey, helper.HealthyServersListKey)
	return changed, err
}

// MarkDead removes node from the membership set and every occurrence from the
// rotation queue in one transaction.
func (s *RedisStore) MarkDead(ctx context.Context, node string) (bool, error) {
	var changed bool
	err := s.transaction(ctx, func(tx *redis.Tx) error {
		changed = false
		member, err := tx.SIsMember(ctx, helper.HealthyServersSetKey, node).Result()
		if err != nil {
			return err
		}
		queue, err := tx.LRange(ctx, helper.HealthyServersListKey, 0, -1).Result()
		if err != nil {
			return err
		}
		if !member && occurrences(queue, node) == 0 {
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.SRem(ctx, helper.HealthyServersSetKey, node)
			pipe.LRem(ctx, helper.HealthyServersListKey, 0, node)
			return nil
		})
		if err == nil {
			changed = true
		}
		return err
	}, helper.HealthyServersSetKey, helper.HealthyServersListKey)
	return changed, err
}

func (s *RedisStore) LiveNodes(ctx context.Context) ([]string, error) {
	return s.rdb.LRange(ctx, helper.HealthyServersListKey, 0, -1).Result()
}

func (s *RedisStore) LiveSet(ctx context.Context) ([]string, error) {
	return s.sortedMembers(ctx, helper.HealthyServersSetKey)
}

/* ============================== Files ============================== */

func (s *RedisStore) CreateFile(ctx context.Context, rec models.FileRecord) error {
	sizeKey := helper.FileSizeKey(rec.Name)
	return s.transaction(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, sizeKey).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return helper.ErrFileExists
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, sizeKey, rec.Size, 0)
			pipe.Set(ctx, helper.FileChunksKey(rec.Name), rec.ChunkCount, 0)
			pipe.SAdd(ctx, helper.FilesKey, rec.Name)
			return nil
		})
		return err
	}, sizeKey)
}

func (s *RedisStore) GetFile(ctx context.Context, filename string) (models.FileRecord, error) {
	rec := models.FileRecord{Name: filename}
	vals, err := s.rdb.MGet(ctx, helper.FileSizeKey(filename), helper.FileChunksKey(filename)).Result()
	if err != nil {
		return rec, err
	}
	if vals[0] == nil || vals[1] == nil {
		return rec, helper.ErrFileNotFound
	}
	if rec.Size, err = parseInt64(vals[0]); err != nil {
		return rec, fmt.Errorf("file %s: size: %w", filename, err)
	}
	chunks, err := parseInt64(vals[1])
	if err != nil {
		return rec, fmt.Errorf("file %s: chunk count: %w", filename, err)
	}
	rec.ChunkCount = int(chunks)
	return rec, nil
}

func (s *RedisStore) ListFiles(ctx context.Context) ([]string, error) {
	return s.sortedMembers(ctx, helper.FilesKey)
}

func (s *RedisStore) DeleteFileIfDrained(ctx context.Context, filename string) ([]int, error) {
	rec, err := s.GetFile(ctx, filename)
	if err != nil {
		return nil, err
	}

	sizeKey := helper.FileSizeKey(filename)
	keys := make([]string, 0, rec.ChunkCount+1)
	keys = append(keys, sizeKey)
	for id := 0; id < rec.ChunkCount; id++ {
		keys = append(keys, helper.ChunkServersKeyFor(filename, id))
	}

	var remaining []int
	err = s.transaction(ctx, func(tx *redis.Tx) error {
		remaining = nil
		n, err := tx.Exists(ctx, sizeKey).Result()
		if err != nil {
			return err
		}
		if n == 0 {
			return helper.ErrFileNotFound
		}

		cmds, err := tx.Pipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, key := range keys[1:] {
				pipe.SCard(ctx, key)
			}
			return nil
		})
		if err != nil {
			return err
		}
		for id, cmd := range cmds {
			if cmd.(*redis.IntCmd).Val() > 0 {
				remaining = append(remaining, id)
			}
		}
		if len(remaining) > 0 {
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, sizeKey, helper.FileChunksKey(filename))
			pipe.SRem(ctx, helper.FilesKey, filename)
			return nil
		})
		return err
	}, keys...)
	if err != nil {
		return nil, err
	}
	return remaining, nil
}

/* ============================== Chunk placement ============================== */

// AddReplica is idempotent: registering the same node twice leaves a single entry.
func (s *RedisStore) AddReplica(ctx context.Context, filename string, chunkID int, node string) error {
	return s.rdb.SAdd(ctx, helper.ChunkServersKeyFor(filename, chunkID), node).Err()
}

func (s *RedisStore) RemoveReplica(ctx context.Context, filename string, chunkID int, node string) error {
	return s.rdb.SRem(ctx, helper.ChunkServersKeyFor(filename, chunkID), node).Err()
}

func (s *RedisStore) Replicas(ctx context.Context, filename string, chunkID int) ([]string, error) {
	return s.sortedMembers(ctx, helper.ChunkServersKeyFor(filename, chunkID))
}

func (s *RedisStore) Cursor(ctx context.Context) (int, error) {
	v, err := s.rdb.Get(ctx, helper.PlacementCursorKey).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}

func (s *RedisStore) AdvanceCursor(ctx context.Context, n int) (int, error) {
	next, err := s.rdb.IncrBy(ctx, helper.PlacementCursorKey, int64(n)).Result()
	if err != nil {
		return 0, err
	}
	return int(next) - n, nil
}

func (s *RedisStore) sortedMembers(ctx context.Context, key string) ([]string, error) {
	members, err := s.rdb.SMembers(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(members)
	return members, nil
}

func occurrences(queue []string, node string) int {
	n := 0
	for _, q := range queue {
		if q == node {
			n++
		}
	}
	return n
}

func parseInt64(v interface{}) (int64, error) {
	str, ok := v.(string)
	if !ok {
		return 0, fmt.Errorf("unexpected value type %T", v)
	}
	return strconv.ParseInt(str, 10, 64)
}
