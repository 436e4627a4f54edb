package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"pdf-faq-go/pkg/tasks"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProcessor struct {
	err   error
	calls []tasks.DocumentIngestTask
}

func (f *fakeProcessor) Process(_ context.Context, task tasks.DocumentIngestTask) error {
	f.calls = append(f.calls, task)
	return f.err
}

type memoryCounter struct {
	mu     sync.Mutex
	counts map[string]int64
	err    error
}

func newMemoryCounter() *memoryCounter {
	return &memoryCounter{counts: make(map[string]int64)}
}

func (c *memoryCounter) Incr(_ context.Context, key string) (int64, error) {
	if c.err != nil {
		return 0, c.err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[key]++
	return c.counts[key], nil
}

func (c *memoryCounter) Reset(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.counts, key)
	return nil
}

func encodeTask(t *testing.T, task tasks.DocumentIngestTask) []byte {
	t.Helper()
	b, err := json.Marshal(task)
	require.NoError(t, err)
	return b
}

func TestHandleMessage_Success(t *testing.T) {
	processor := &fakeProcessor{}
	counter := newMemoryCounter()
	task := tasks.DocumentIngestTask{DocumentID: 7, OwnerID: 1, FileName: "cv.pdf", ObjectKey: "uploads/1/7/cv.pdf"}
	counter.counts[attemptsKey(task)] = 1

	commit := handleMessage(context.Background(), encodeTask(t, task), processor, counter, 0)

	assert.True(t, commit)
	require.Len(t, processor.calls, 1)
	assert.Equal(t, task, processor.calls[0])
	assert.NotContains(t, counter.counts, attemptsKey(task))
}

func TestHandleMessage_MalformedIsCommitted(t *testing.T) {
	processor := &fakeProcessor{}
	commit := handleMessage(context.Background(), []byte("{not json"), processor, newMemoryCounter(), 0)
	assert.True(t, commit)
	assert.Empty(t, processor.calls)
}

func TestHandleMessage_RetriesInPlaceUntilMaxAttempts(t *testing.T) {
	processor := &fakeProcessor{err: errors.New("extract failed")}
	counter := newMemoryCounter()

	commit := handleMessage(context.Background(), encodeTask(t, tasks.DocumentIngestTask{DocumentID: 3}), processor, counter, time.Millisecond)

	assert.True(t, commit)
	assert.Len(t, processor.calls, MaxAttempts)
	assert.Empty(t, counter.counts)
}

func TestHandleMessage_ContinuesEarlierAttempts(t *testing.T) {
	processor := &fakeProcessor{err: errors.New("extract failed")}
	counter := newMemoryCounter()
	task := tasks.DocumentIngestTask{DocumentID: 4}
	counter.counts[attemptsKey(task)] = MaxAttempts - 1

	assert.True(t, handleMessage(context.Background(), encodeTask(t, task), processor, counter, 0))
	assert.Len(t, processor.calls, 1)
}

func TestHandleMessage_CounterFailureStillBoundsRetries(t *testing.T) {
	processor := &fakeProcessor{err: errors.New("boom")}
	counter := newMemoryCounter()
	counter.err = errors.New("redis down")

	assert.True(t, handleMessage(context.Background(), encodeTask(t, tasks.DocumentIngestTask{DocumentID: 1}), processor, counter, 0))
	assert.Len(t, processor.calls, MaxAttempts)
}

func TestHandleMessage_ShutdownKeepsOffset(t *testing.T) {
	processor := &fakeProcessor{err: errors.New("boom")}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.False(t, handleMessage(ctx, encodeTask(t, tasks.DocumentIngestTask{DocumentID: 2}), processor, newMemoryCounter(), time.Hour))
	assert.Len(t, processor.calls, 1)
}

// fakeReader 依次返回 fetchErrs 中的错误和 messages 中的消息，全部读完后阻塞到 ctx 结束。
type fakeReader struct {
	mu        sync.Mutex
	fetchErrs []error
	messages  []kafka.Message
	committed []kafka.Message
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.fetchErrs) > 0 {
		err := r.fetchErrs[0]
		r.fetchErrs = r.fetchErrs[1:]
		r.mu.Unlock()
		return kafka.Message{}, err
	}
	if len(r.messages) > 0 {
		m := r.messages[0]
		r.messages = r.messages[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *fakeReader) committedOffsets() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	offsets := make([]int64, 0, len(r.committed))
	for _, m := range r.committed {
		offsets = append(offsets, m.Offset)
	}
	return offsets
}

// flakyProcessor 对指定文档先失败 failures 次。
type flakyProcessor struct {
	mu       sync.Mutex
	failures map[uint]int
	calls    map[uint]int
}

func (p *flakyProcessor) Process(_ context.Context, task tasks.DocumentIngestTask) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls[task.DocumentID]++
	if p.failures[task.DocumentID] > 0 {
		p.failures[task.DocumentID]--
		return errors.New("temporary failure")
	}
	return nil
}

func (p *flakyProcessor) callCount(documentID uint) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[documentID]
}

func runConsumer(t *testing.T, r *fakeReader, processor TaskProcessor, wantCommits int) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		consume(ctx, r, 0, processor, newMemoryCounter(), time.Millisecond)
	}()
	require.Eventually(t, func() bool { return len(r.committedOffsets()) == wantCommits }, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

func TestConsume_FailedMessageIsRetriedBeforeCommit(t *testing.T) {
	r := &fakeReader{messages: []kafka.Message{
		{Offset: 10, Value: encodeTask(t, tasks.DocumentIngestTask{DocumentID: 1})},
		{Offset: 11, Value: encodeTask(t, tasks.DocumentIngestTask{DocumentID: 2})},
	}}
	processor := &flakyProcessor{failures: map[uint]int{1: 2}, calls: map[uint]int{}}

	runConsumer(t, r, processor, 2)

	assert.Equal(t, 3, processor.callCount(1))
	assert.Equal(t, 1, processor.callCount(2))
	assert.Equal(t, []int64{10, 11}, r.committedOffsets())
}

func TestConsume_GivesUpAfterMaxAttempts(t *testing.T) {
	r := &fakeReader{messages: []kafka.Message{
		{Offset: 5, Value: encodeTask(t, tasks.DocumentIngestTask{DocumentID: 9})},
		{Offset: 6, Value: encodeTask(t, tasks.DocumentIngestTask{DocumentID: 10})},
	}}
	processor := &flakyProcessor{failures: map[uint]int{9: 100}, calls: map[uint]int{}}

	runConsumer(t, r, processor, 2)

	assert.Equal(t, MaxAttempts, processor.callCount(9))
	assert.Equal(t, 1, processor.callCount(10))
}

func TestConsume_SurvivesFetchErrors(t *testing.T) {
	r := &fakeReader{
		fetchErrs: []error{errors.New("broker unavailable"), errors.New("broker unavailable")},
		messages:  []kafka.Message{{Offset: 1, Value: encodeTask(t, tasks.DocumentIngestTask{DocumentID: 3})}},
	}
	processor := &flakyProcessor{failures: map[uint]int{}, calls: map[uint]int{}}

	runConsumer(t, r, processor, 1)

	assert.Equal(t, 1, processor.callCount(3))
}
