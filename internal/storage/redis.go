package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/haasonsaas/chatagent/pkg/models"
)

const redisPrefix = "chatagent:"

// RedisStore implements every store interface on top of Redis.
//
// Layout:
//
//	chatagent:mem:<session>      hash   key -> MemoryEntry JSON
//	chatagent:task:<id>          string ScheduledTask JSON
//	chatagent:tasks:<session>    set    task ids
//	chatagent:tasks:due          zset   task id scored by next run (unix ms)
//	chatagent:history:<session>  string []Message JSON
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStoresFromURL connects to Redis using a redis:// URL.
func NewRedisStoresFromURL(ctx context.Context, url string) (StoreSet, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return StoreSet{}, fmt.Errorf("parse redis url: %w", err)
	}
	opts.PoolSize = 10
	opts.MinIdleConns = 2
	opts.MaxRetries = 3
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return StoreSet{}, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedisStores(client), nil
}

// NewRedisStores wraps an existing client.
func NewRedisStores(client redis.UniversalClient) StoreSet {
	s := &RedisStore{client: client}
	return StoreSet{Memory: s, Schedules: s, History: s, closer: client.Close}
}

func memKey(sessionID string) string { return redisPrefix + "mem:" + sessionID }

func taskKey(id string) string { return redisPrefix + "task:" + id }

func sessionTasksKey(sessionID string) string { return redisPrefix + "tasks:" + sessionID }

func historyKey(sessionID string) string { return redisPrefix + "history:" + sessionID }

const dueKey = redisPrefix + "tasks:due"

func (s *RedisStore) PutMemory(ctx context.Context, sessionID string, entry models.MemoryEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal memory: %w", err)
	}
	if err := s.client.HSet(ctx, memKey(sessionID), entry.Key, data).Err(); err != nil {
		return fmt.Errorf("put memory: %w", err)
	}
	return nil
}

func (s *RedisStore) GetMemory(ctx context.Context, sessionID, key string) (models.MemoryEntry, error) {
	data, err := s.client.HGet(ctx, memKey(sessionID), key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return models.MemoryEntry{}, ErrNotFound
		}
		return models.MemoryEntry{}, fmt.Errorf("get memory: %w", err)
	}
	var entry models.MemoryEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return models.MemoryEntry{}, fmt.Errorf("unmarshal memory: %w", err)
	}
	return entry, nil
}

func (s *RedisStore) DeleteMemory(ctx context.Context, sessionID, key string) error {
	n, err := s.client.HDel(ctx, memKey(sessionID), key).Result()
	if err != nil {
		return fmt.Errorf("delete memory: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *RedisStore) ListMemory(ctx context.Context, sessionID string) ([]models.MemoryEntry, error) {
	values, err := s.client.HGetAll(ctx, memKey(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list memory: %w", err)
	}
	entries := make([]models.MemoryEntry, 0, len(values))
	for _, raw := range values {
		var entry models.MemoryEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			return nil, fmt.Errorf("unmarshal memory: %w", err)
		}
		entries = append(entries, entry)
	}
	sortMemory(entries)
	return entries, nil
}

func (s *RedisStore) ClearMemory(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, memKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("clear memory: %w", err)
	}
	return nil
}

func (s *RedisStore) SaveTask(ctx context.Context, task *models.ScheduledTask) error {
	if task == nil || task.ID == "" {
		return fmt.Errorf("task is required")
	}
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, taskKey(task.ID), data, 0)
		pipe.SAdd(ctx, sessionTasksKey(task.SessionID), task.ID)
		pipe.ZAdd(ctx, dueKey, redis.Z{Score: float64(task.NextRun.UnixMilli()), Member: task.ID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("save task: %w", err)
	}
	return nil
}

func (s *RedisStore) GetTask(ctx context.Context, id string) (*models.ScheduledTask, error) {
	data, err := s.client.Get(ctx, taskKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get task: %w", err)
	}
	var task models.ScheduledTask
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("unmarshal task: %w", err)
	}
	return &task, nil
}

func (s *RedisStore) DeleteTask(ctx context.Context, id string) error {
	task, err := s.GetTask(ctx, id)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, taskKey(id))
		pipe.SRem(ctx, sessionTasksKey(task.SessionID), id)
		pipe.ZRem(ctx, dueKey, id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}

func (s *RedisStore) ListTasks(ctx context.Context, sessionID string) ([]*models.ScheduledTask, error) {
	var ids []string
	var err error
	if sessionID == "" {
		ids, err = s.client.ZRange(ctx, dueKey, 0, -1).Result()
	} else {
		ids, err = s.client.SMembers(ctx, sessionTasksKey(sessionID)).Result()
	}
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return s.loadTasks(ctx, ids)
}

func (s *RedisStore) DueTasks(ctx context.Context, now time.Time) ([]*models.ScheduledTask, error) {
	ids, err := s.client.ZRangeByScore(ctx, dueKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("due tasks: %w", err)
	}
	return s.loadTasks(ctx, ids)
}

func (s *RedisStore) loadTasks(ctx context.Context, ids []string) ([]*models.ScheduledTask, error) {
	tasks := make([]*models.ScheduledTask, 0, len(ids))
	for _, id := range ids {
		task, err := s.GetTask(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	sortTasks(tasks)
	return tasks, nil
}

func (s *RedisStore) LoadHistory(ctx context.Context, sessionID string) ([]models.Message, error) {
	data, err := s.client.Get(ctx, historyKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []models.Message{}, nil
		}
		return nil, fmt.Errorf("load history: %w", err)
	}
	var history []models.Message
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, fmt.Errorf("unmarshal history: %w", err)
	}
	return history, nil
}

func (s *RedisStore) SaveHistory(ctx context.Context, sessionID string, history []models.Message) error {
	data, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}
	if err := s.client.Set(ctx, historyKey(sessionID), data, 0).Err(); err != nil {
		return fmt.Errorf("save history: %w", err)
	}
	return nil
}

func (s *RedisStore) ClearHistory(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, historyKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	return nil
}
