package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	logx "fleetbot/pkg/logx"
)

const defaultRedisKey = "fleetbot:subscribers"

type redisStore struct {
	client *redis.Client
	key    string
	log    logx.Logger
}

func openRedis(cfg Config, log logx.Logger) (Store, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, errors.New("storage.addr is required for redis driver")
	}
	key := strings.TrimSpace(cfg.Key)
	if key == "" {
		key = defaultRedisKey
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return &redisStore{client: client, key: key, log: log}, nil
}

func (s *redisStore) Load(ctx context.Context) []int64 {
	members, err := s.client.SMembers(ctx, s.key).Result()
	if err != nil {
		s.log.Warn("subscriber set read failed; using empty set", logx.String("key", s.key), logx.Any("err", err))
		return []int64{}
	}
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			s.log.Warn("subscriber set has invalid member", logx.String("key", s.key), logx.String("member", m))
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Save swaps the set atomically via MULTI/EXEC.
func (s *redisStore) Save(ctx context.Context, ids []int64) error {
	ids = normalize(ids)
	members := make([]any, 0, len(ids))
	for _, id := range ids {
		members = append(members, strconv.FormatInt(id, 10))
	}
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, s.key)
		if len(members) > 0 {
			p.SAdd(ctx, s.key, members...)
		}
		return nil
	})
	if err != nil {
		s.log.Error("subscriber set save failed", logx.String("key", s.key), logx.Any("err", err))
	}
	return err
}

func (s *redisStore) Close() error { return s.client.Close() }
