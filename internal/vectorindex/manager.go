package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"pdf-faq-go/internal/model"
	"pdf-faq-go/pkg/log"

	"golang.org/x/sync/singleflight"
)

// EmbeddingSource 提供重建索引所需的向量，通常就是记录存储。
type EmbeddingSource interface {
	ListEmbeddings(ctx context.Context, scope model.Scope) ([]model.Embedding, error)
}

// Manager 是按范围缓存的索引组件。
// 同一范围键上的加载、重建、持久化与失效互斥，并发的 GetOrBuild 共享同一次构建。
type Manager struct {
	repo   *Repository
	source EmbeddingSource
	dim    int

	mu    sync.RWMutex
	cache map[string]*Index

	locks sync.Map // scope key -> *sync.Mutex
	group singleflight.Group
}

// NewManager 创建 Manager。dim 为 embedding 模型的维度，0 表示不校验。
func NewManager(repo *Repository, source EmbeddingSource, dim int) *Manager {
	return &Manager{
		repo:   repo,
		source: source,
		dim:    dim,
		cache:  make(map[string]*Index),
	}
}

// GetOrBuild 返回范围对应的索引：先查内存，再读持久化文件，都没有时从记录存储重建并持久化。
// 范围内没有任何向量时返回 (nil, nil)。
func (m *Manager) GetOrBuild(ctx context.Context, scope model.Scope) (*Index, error) {
	key := scope.Key()
	if ix := m.cached(key); ix != nil {
		return ix, nil
	}

	// 构建结果由所有等待者共享，不能因为第一个调用方取消而失败
	shared := context.WithoutCancel(ctx)
	v, err, _ := m.group.Do(key, func() (interface{}, error) {
		ctx := shared
		unlock := m.lock(key)
		defer unlock()

		if ix := m.cached(key); ix != nil {
			return ix, nil
		}

		ix, err := m.repo.Load(ctx, key)
		switch {
		case err == nil && m.dim > 0 && ix.Dim() != m.dim:
			log.Warnf("[IndexManager] 索引 %s 的维度 %d 与模型维度 %d 不一致, 重新构建", key, ix.Dim(), m.dim)
		case err == nil:
			log.Debugf("[IndexManager] 从持久化文件加载索引 %s, 向量数: %d", key, ix.Len())
			m.store(key, ix)
			return ix, nil
		case errors.Is(err, ErrIndexNotFound):
			log.Infof("[IndexManager] 索引 %s 不存在, 从向量记录重建", key)
		default:
			log.Warnf("[IndexManager] 加载索引 %s 失败, 从向量记录重建: %v", key, err)
		}
		return m.buildLocked(ctx, scope, key)
	})
	if err != nil {
		return nil, err
	}
	ix, _ := v.(*Index)
	return ix, nil
}

// Rebuild 无条件地从记录存储重建范围索引并持久化，用于文档处理完成之后。
func (m *Manager) Rebuild(ctx context.Context, scope model.Scope) (*Index, error) {
	key := scope.Key()
	unlock := m.lock(key)
	defer unlock()
	return m.buildLocked(ctx, scope, key)
}

// Invalidate 丢弃范围的内存缓存和持久化文件，下一次 GetOrBuild 会重建。
func (m *Manager) Invalidate(ctx context.Context, scope model.Scope) error {
	key := scope.Key()
	unlock := m.lock(key)
	defer unlock()

	m.mu.Lock()
	delete(m.cache, key)
	m.mu.Unlock()
	if err := m.repo.Remove(ctx, key); err != nil {
		return fmt.Errorf("删除索引 %s 失败: %w", key, err)
	}
	return nil
}

// buildLocked 调用方必须持有 key 的锁。
func (m *Manager) buildLocked(ctx context.Context, scope model.Scope, key string) (*Index, error) {
	embeddings, err := m.source.ListEmbeddings(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("读取范围 %s 的向量失败: %w", key, err)
	}
	if len(embeddings) == 0 {
		m.mu.Lock()
		delete(m.cache, key)
		m.mu.Unlock()
		if err := m.repo.Remove(ctx, key); err != nil {
			log.Warnf("[IndexManager] 清理空范围 %s 的索引文件失败: %v", key, err)
		}
		return nil, nil
	}

	vectors := make([][]float32, len(embeddings))
	ids := make([]uint, len(embeddings))
	for i, e := range embeddings {
		vectors[i] = e.Vector
		ids[i] = e.ChunkID
	}
	ix, err := Build(vectors, ids)
	if err != nil {
		return nil, fmt.Errorf("构建索引 %s 失败: %w", key, err)
	}
	if m.dim > 0 && ix.Dim() != m.dim {
		return nil, fmt.Errorf("%w: scope %s stores %d-d vectors, model produces %d", ErrDimensionMismatch, key, ix.Dim(), m.dim)
	}

	// 持久化失败不影响本次使用，下次加载未命中时会再次重建
	if err := m.repo.Persist(ctx, ix, key); err != nil {
		log.Warnf("[IndexManager] 持久化索引 %s 失败: %v", key, err)
	}
	m.store(key, ix)
	log.Infof("[IndexManager] 索引 %s 构建完成, 向量数: %d, 维度: %d", key, ix.Len(), ix.Dim())
	return ix, nil
}

func (m *Manager) cached(key string) *Index {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cache[key]
}

func (m *Manager) store(key string, ix *Index) {
	m.mu.Lock()
	m.cache[key] = ix
	m.mu.Unlock()
}

func (m *Manager) lock(key string) func() {
	v, _ := m.locks.LoadOrStore(key, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
