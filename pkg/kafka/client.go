// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"pdf-faq-go/internal/config"
	"pdf-faq-go/pkg/log"
	"pdf-faq-go/pkg/tasks"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
)

// MaxAttempts 是同一个文档任务失败后的最大重试次数，达到后提交 offset 放弃。
const MaxAttempts = 3

// TaskProcessor defines the interface for any service that can process a task.
type TaskProcessor interface {
	Process(ctx context.Context, task tasks.DocumentIngestTask) error
}

// AttemptCounter 记录任务失败次数。
type AttemptCounter interface {
	Incr(ctx context.Context, key string) (int64, error)
	Reset(ctx context.Context, key string) error
}

type redisAttemptCounter struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisAttemptCounter 使用 Redis 计数失败次数，计数 24 小时后过期。
func NewRedisAttemptCounter(rdb *redis.Client) AttemptCounter {
	return &redisAttemptCounter{rdb: rdb, ttl: 24 * time.Hour}
}

func (c *redisAttemptCounter) Incr(ctx context.Context, key string) (int64, error) {
	attempts, err := c.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	_ = c.rdb.Expire(ctx, key, c.ttl).Err()
	return attempts, nil
}

func (c *redisAttemptCounter) Reset(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, key).Err()
}

// Producer 向 Kafka 发送文档处理任务。
type Producer struct {
	writer *kafka.Writer
}

// NewProducer 初始化 Kafka 生产者。
func NewProducer(cfg config.KafkaConfig) *Producer {
	w := &kafka.Writer{
		Addr:     kafka.TCP(strings.Split(cfg.Brokers, ",")...),
		Topic:    cfg.Topic,
		Balancer: &kafka.LeastBytes{},
	}
	log.Info("Kafka 生产者初始化成功")
	return &Producer{writer: w}
}

// Enqueue 发送一个文档处理任务到 Kafka，消息 key 为文档 id，保证同一文档落在同一分区。
func (p *Producer) Enqueue(ctx context.Context, task tasks.DocumentIngestTask) error {
	taskBytes, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(fmt.Sprintf("%d", task.DocumentID)),
		Value: taskBytes,
	})
}

// Close 关闭生产者。
func (p *Producer) Close() error {
	return p.writer.Close()
}

func attemptsKey(task tasks.DocumentIngestTask) string {
	return fmt.Sprintf("kafka:attempts:doc:%d", task.DocumentID)
}

// RetryBackoff 是任务失败或读取失败后的基础等待时间，第 n 次重试等待 n 倍。
var RetryBackoff = 2 * time.Second

// sleepCtx 等待 d，ctx 结束时提前返回 false。
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// handleMessage 处理一条消息，失败时在原地重试，总次数不超过 MaxAttempts。
// 失败次数同时记在 Redis 中，消费者重启或分区重平衡后重新投递的消息会接着之前的次数计算。
// 返回是否应该提交 offset，只有 ctx 结束时才返回 false。
func handleMessage(ctx context.Context, value []byte, processor TaskProcessor, counter AttemptCounter, backoff time.Duration) bool {
	var task tasks.DocumentIngestTask
	if err := json.Unmarshal(value, &task); err != nil {
		// 消息格式错误，直接提交，避免阻塞队列
		log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(value))
		return true
	}

	key := attemptsKey(task)
	var local int64
	for {
		log.Infof("开始处理文档任务: DocumentID=%d, FileName=%s", task.DocumentID, task.FileName)
		err := processor.Process(ctx, task)
		if err == nil {
			log.Infof("文档任务处理成功: DocumentID=%d", task.DocumentID)
			if err := counter.Reset(ctx, key); err != nil {
				log.Warnf("清理失败计数失败: %v", err)
			}
			return true
		}

		local++
		attempts := local
		if counted, incErr := counter.Incr(ctx, key); incErr != nil {
			// Redis 异常时只按本地次数计算
			log.Warnf("记录失败次数失败: %v", incErr)
		} else if counted > attempts {
			attempts = counted
		}
		log.Errorf("处理文档任务失败: DocumentID=%d, 第 %d/%d 次, Error: %v", task.DocumentID, attempts, MaxAttempts, err)
		if attempts >= MaxAttempts {
			log.Errorf("文档任务多次失败(>=%d)，提交 offset 终止重试: DocumentID=%d", MaxAttempts, task.DocumentID)
			if err := counter.Reset(ctx, key); err != nil {
				log.Warnf("清理失败计数失败: %v", err)
			}
			return true
		}
		if !sleepCtx(ctx, backoff*time.Duration(attempts)) {
			// 停机中，不提交 offset，重启后重新投递
			return false
		}
	}
}

// messageReader 是 consumer 使用的 kafka.Reader 方法子集。
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// StartConsumers 启动 cfg.Workers 个同组消费者，阻塞直到 ctx 被取消。
func StartConsumers(ctx context.Context, cfg config.KafkaConfig, processor TaskProcessor, counter AttemptCounter) {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := kafka.NewReader(kafka.ReaderConfig{
				Brokers:  strings.Split(cfg.Brokers, ","),
				Topic:    cfg.Topic,
				GroupID:  cfg.GroupID,
				MinBytes: 10e3, // 10KB
				MaxBytes: 10e6, // 10MB
			})
			defer func() {
				if err := r.Close(); err != nil {
					log.Errorf("关闭 Kafka 消费者失败: %v", err)
				}
			}()
			log.Infof("Kafka 消费者 #%d 已启动，正在监听主题 '%s'", worker, cfg.Topic)
			consume(ctx, r, worker, processor, counter, RetryBackoff)
		}(i)
	}
	wg.Wait()
}

func consume(ctx context.Context, r messageReader, worker int, processor TaskProcessor, counter AttemptCounter, backoff time.Duration) {
	fetchFailures := 0
	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				log.Infof("Kafka 消费者 #%d 已停止", worker)
				return
			}
			// 读取失败可能是短暂的网络问题，等待后继续
			fetchFailures++
			log.Error("从 Kafka 读取消息失败", err)
			if !sleepCtx(ctx, backoff*time.Duration(min(fetchFailures, 10))) {
				log.Infof("Kafka 消费者 #%d 已停止", worker)
				return
			}
			continue
		}
		fetchFailures = 0
		log.Infof("消费者 #%d 收到 Kafka 消息: partition %d, offset %d", worker, m.Partition, m.Offset)

		if !handleMessage(ctx, m.Value, processor, counter, backoff) {
			log.Infof("Kafka 消费者 #%d 已停止，消息 offset %d 未提交", worker, m.Offset)
			return
		}
		// 任务处理成功或放弃重试后，手动提交 offset
		if err := r.CommitMessages(ctx, m); err != nil {
			log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
		}
	}
}
