package notification

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// OfflineStore 缓存离线审批人的 WebSocket 消息，重连时重放
type OfflineStore interface {
	Append(ctx context.Context, approverID string, payload []byte) error
	Drain(ctx context.Context, approverID string) ([][]byte, error)
}

// MemoryOfflineStore 简单内存实现
type MemoryOfflineStore struct {
	mu    sync.Mutex
	limit int
	data  map[string][][]byte
}

// NewMemoryOfflineStore 创建内存存储
func NewMemoryOfflineStore(limit int) *MemoryOfflineStore {
	if limit <= 0 {
		limit = 50
	}
	return &MemoryOfflineStore{
		limit: limit,
		data:  make(map[string][][]byte),
	}
}

// Append 追加离线消息，超出上限时丢弃最旧的
func (s *MemoryOfflineStore) Append(_ context.Context, approverID string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	queue := append(s.data[approverID], append([]byte(nil), payload...))
	if len(queue) > s.limit {
		queue = queue[len(queue)-s.limit:]
	}
	s.data[approverID] = queue
	return nil
}

// Drain 取出并清空离线消息
func (s *MemoryOfflineStore) Drain(_ context.Context, approverID string) ([][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	queue := s.data[approverID]
	delete(s.data, approverID)
	return queue, nil
}

// RedisOfflineStore Redis 实现，多实例部署时共享离线缓存
type RedisOfflineStore struct {
	client redis.UniversalClient
	limit  int64
	ttl    time.Duration
}

// NewRedisOfflineStore 创建 Redis 存储
func NewRedisOfflineStore(client redis.UniversalClient, limit int) *RedisOfflineStore {
	if limit <= 0 {
		limit = 50
	}
	return &RedisOfflineStore{
		client: client,
		limit:  int64(limit),
		ttl:    72 * time.Hour,
	}
}

func (s *RedisOfflineStore) key(approverID string) string {
	return fmt.Sprintf("approval:offline:%s", approverID)
}

// Append 追加离线消息
func (s *RedisOfflineStore) Append(ctx context.Context, approverID string, payload []byte) error {
	key := s.key(approverID)
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, payload)
	pipe.LTrim(ctx, key, -s.limit, -1)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("写入离线消息失败: %w", err)
	}
	return nil
}

// Drain 取出并清空离线消息
func (s *RedisOfflineStore) Drain(ctx context.Context, approverID string) ([][]byte, error) {
	key := s.key(approverID)
	pipe := s.client.TxPipeline()
	lrange := pipe.LRange(ctx, key, 0, -1)
	pipe.Del(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("读取离线消息失败: %w", err)
	}
	values := lrange.Val()
	messages := make([][]byte, 0, len(values))
	for _, v := range values {
		messages = append(messages, []byte(v))
	}
	return messages, nil
}
