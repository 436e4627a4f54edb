package pipeline

import (
	"context"
	"errors"
	"sync"

	"pdf-faq-go/pkg/log"
	"pdf-faq-go/pkg/tasks"
)

// ErrQueueClosed 表示队列已经关闭。
var ErrQueueClosed = errors.New("ingest queue is closed")

// InlineQueue 在进程内用固定数量的 worker 处理文档任务，未配置 Kafka 时替代消息队列。
type InlineQueue struct {
	processor *Processor
	tasks     chan tasks.DocumentIngestTask
	wg        sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewInlineQueue 创建并启动 InlineQueue。
func NewInlineQueue(processor *Processor, workers int) *InlineQueue {
	if workers <= 0 {
		workers = 1
	}
	q := &InlineQueue{
		processor: processor,
		tasks:     make(chan tasks.DocumentIngestTask, 64),
	}
	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.run()
	}
	log.Infof("[InlineQueue] 进程内处理队列已启动, worker 数量: %d", workers)
	return q
}

func (q *InlineQueue) run() {
	defer q.wg.Done()
	for task := range q.tasks {
		// 错误已经由 Processor 写入错误日志，这里继续处理下一个文档
		_ = q.processor.Process(context.Background(), task)
	}
}

// Enqueue 提交一个任务，队列满时阻塞直到 ctx 结束。
func (q *InlineQueue) Enqueue(ctx context.Context, task tasks.DocumentIngestTask) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.tasks <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close 停止接收新任务，并等待已提交的任务处理完成。
func (q *InlineQueue) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.tasks)
	}
	q.mu.Unlock()
	q.wg.Wait()
}
