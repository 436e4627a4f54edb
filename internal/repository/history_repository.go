package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"pdf-faq-go/internal/model"

	"github.com/go-redis/redis/v8"
)

const (
	// 每个用户保留最近 20 条问答
	historyLimit = 20
	historyTTL   = 7 * 24 * time.Hour
)

// HistoryRepository 定义了问答历史记录的操作接口。
type HistoryRepository interface {
	Append(ctx context.Context, userID uint, record model.QARecord) error
	List(ctx context.Context, userID uint) ([]model.QARecord, error)
	Clear(ctx context.Context, userID uint) error
}

type redisHistoryRepository struct {
	redisClient *redis.Client
}

// NewHistoryRepository 创建一个基于 Redis 列表的 HistoryRepository。
func NewHistoryRepository(redisClient *redis.Client) HistoryRepository {
	return &redisHistoryRepository{redisClient: redisClient}
}

func historyKey(userID uint) string {
	return fmt.Sprintf("user:%d:qa_history", userID)
}

// Append 追加一条记录并裁剪到最近 historyLimit 条。
func (r *redisHistoryRepository) Append(ctx context.Context, userID uint, record model.QARecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal qa record: %w", err)
	}
	key := historyKey(userID)
	pipe := r.redisClient.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.LTrim(ctx, key, -historyLimit, -1)
	pipe.Expire(ctx, key, historyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append qa history: %w", err)
	}
	return nil
}

// List 按时间顺序返回用户的问答历史。
func (r *redisHistoryRepository) List(ctx context.Context, userID uint) ([]model.QARecord, error) {
	items, err := r.redisClient.LRange(ctx, historyKey(userID), 0, -1).Result()
	if err == redis.Nil {
		return []model.QARecord{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get qa history: %w", err)
	}
	records := make([]model.QARecord, 0, len(items))
	for _, item := range items {
		var rec model.QARecord
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal qa record: %w", err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// Clear 删除用户的全部问答历史。
func (r *redisHistoryRepository) Clear(ctx context.Context, userID uint) error {
	if err := r.redisClient.Del(ctx, historyKey(userID)).Err(); err != nil {
		return fmt.Errorf("failed to clear qa history: %w", err)
	}
	return nil
}

type memoryHistoryRepository struct {
	mu      sync.Mutex
	records map[uint][]model.QARecord
}

// NewMemoryHistoryRepository 创建一个进程内的 HistoryRepository，未配置 Redis 时使用。
func NewMemoryHistoryRepository() HistoryRepository {
	return &memoryHistoryRepository{records: make(map[uint][]model.QARecord)}
}

func (r *memoryHistoryRepository) Append(_ context.Context, userID uint, record model.QARecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := append(r.records[userID], record)
	if len(list) > historyLimit {
		list = list[len(list)-historyLimit:]
	}
	r.records[userID] = list
	return nil
}

func (r *memoryHistoryRepository) List(_ context.Context, userID uint) ([]model.QARecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.QARecord, len(r.records[userID]))
	copy(out, r.records[userID])
	return out, nil
}

func (r *memoryHistoryRepository) Clear(_ context.Context, userID uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, userID)
	return nil
}
