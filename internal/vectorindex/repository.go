package vectorindex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrIndexNotFound 表示该范围还没有持久化的索引，调用方应重新构建。
	ErrIndexNotFound = errors.New("index not found")
	// ErrStaleIndex 表示两个伴生文件不一致（例如写到一半中断），同样需要重新构建。
	ErrStaleIndex = errors.New("index artifacts are inconsistent")
)

// IndexArtifactName 返回向量结构文件名。
func IndexArtifactName(scopeKey string) string { return "index_" + scopeKey + ".bin" }

// IDsArtifactName 返回 chunk id 列表文件名。
func IDsArtifactName(scopeKey string) string { return "ids_" + scopeKey + ".json" }

// Repository 负责索引的持久化：每个范围两个伴生文件，一个保存向量结构，一个保存按槽位排列的 chunk id。
type Repository struct {
	store ArtifactStore
}

// NewRepository 创建 Repository。
func NewRepository(store ArtifactStore) *Repository {
	return &Repository{store: store}
}

// Persist 写入索引的两个伴生文件。
func (r *Repository) Persist(ctx context.Context, ix *Index, scopeKey string) error {
	if ix.Len() == 0 {
		return ErrEmptyIndex
	}
	ids, err := json.Marshal(ix.chunkIDs)
	if err != nil {
		return fmt.Errorf("序列化 chunk id 列表失败: %w", err)
	}
	if err := r.store.Put(ctx, IndexArtifactName(scopeKey), ix.encodeVectors()); err != nil {
		return fmt.Errorf("写入索引文件失败: %w", err)
	}
	if err := r.store.Put(ctx, IDsArtifactName(scopeKey), ids); err != nil {
		return fmt.Errorf("写入 chunk id 文件失败: %w", err)
	}
	return nil
}

// Load 读取索引。任一文件缺失返回 ErrIndexNotFound，内容不一致返回 ErrStaleIndex。
func (r *Repository) Load(ctx context.Context, scopeKey string) (*Index, error) {
	raw, err := r.store.Get(ctx, IndexArtifactName(scopeKey))
	if errors.Is(err, ErrArtifactNotFound) {
		return nil, ErrIndexNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("读取索引文件失败: %w", err)
	}
	rawIDs, err := r.store.Get(ctx, IDsArtifactName(scopeKey))
	if errors.Is(err, ErrArtifactNotFound) {
		return nil, ErrIndexNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("读取 chunk id 文件失败: %w", err)
	}

	dim, count, vectors, err := decodeVectors(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStaleIndex, err)
	}
	var ids []uint
	if err := json.Unmarshal(rawIDs, &ids); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStaleIndex, err)
	}
	if len(ids) != count {
		return nil, fmt.Errorf("%w: %d ids for %d vectors", ErrStaleIndex, len(ids), count)
	}
	return &Index{dim: dim, vectors: vectors, chunkIDs: ids}, nil
}

// Remove 删除该范围的两个伴生文件。
func (r *Repository) Remove(ctx context.Context, scopeKey string) error {
	if err := r.store.Delete(ctx, IndexArtifactName(scopeKey)); err != nil {
		return err
	}
	return r.store.Delete(ctx, IDsArtifactName(scopeKey))
}
