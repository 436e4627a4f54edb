// Package vectorindex 实现了精确 L2 距离的平铺向量索引，以及它的持久化与按范围缓存。
package vectorindex

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sort"
)

var (
	// ErrEmptyIndex 表示没有任何向量可以建立索引。
	ErrEmptyIndex = errors.New("cannot build index from zero vectors")
	// ErrDimensionMismatch 表示向量维度与索引不一致。
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

// Index 是精确的平铺 L2 索引。
// vectors 按行存储，第 i 行对应 chunkIDs[i]，两者长度始终一致。
type Index struct {
	dim      int
	vectors  []float32
	chunkIDs []uint
}

// Hit 是一条检索结果。Distance 为 L2 距离的平方。
type Hit struct {
	ChunkID  uint
	Distance float64
}

// Build 用给定的向量和对应的 chunk id 构建索引。
func Build(vectors [][]float32, chunkIDs []uint) (*Index, error) {
	if len(vectors) == 0 {
		return nil, ErrEmptyIndex
	}
	if len(vectors) != len(chunkIDs) {
		return nil, fmt.Errorf("got %d vectors but %d chunk ids", len(vectors), len(chunkIDs))
	}
	dim := len(vectors[0])
	if dim == 0 {
		return nil, fmt.Errorf("%w: zero-length vector", ErrDimensionMismatch)
	}
	flat := make([]float32, 0, dim*len(vectors))
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("%w: vector %d has %d, want %d", ErrDimensionMismatch, i, len(v), dim)
		}
		flat = append(flat, v...)
	}
	ids := make([]uint, len(chunkIDs))
	copy(ids, chunkIDs)
	return &Index{dim: dim, vectors: flat, chunkIDs: ids}, nil
}

// Len 返回索引中的向量数量。
func (ix *Index) Len() int {
	if ix == nil {
		return 0
	}
	return len(ix.chunkIDs)
}

// Dim 返回向量维度。
func (ix *Index) Dim() int {
	if ix == nil {
		return 0
	}
	return ix.dim
}

// ChunkIDs 按槽位顺序返回 chunk id 的副本。
func (ix *Index) ChunkIDs() []uint {
	if ix == nil {
		return nil
	}
	out := make([]uint, len(ix.chunkIDs))
	copy(out, ix.chunkIDs)
	return out
}

// Search 返回距离 query 最近的至多 k 个结果，按距离升序，距离相同时按槽位顺序。
func (ix *Index) Search(query []float32, k int) ([]Hit, error) {
	if ix.Len() == 0 || k <= 0 {
		return nil, nil
	}
	if len(query) != ix.dim {
		return nil, fmt.Errorf("%w: query has %d, index has %d", ErrDimensionMismatch, len(query), ix.dim)
	}

	hits := make([]Hit, ix.Len())
	for i := range hits {
		row := ix.vectors[i*ix.dim : (i+1)*ix.dim]
		var d float64
		for j, q := range query {
			diff := float64(row[j]) - float64(q)
			d += diff * diff
		}
		hits[i] = Hit{ChunkID: ix.chunkIDs[i], Distance: d}
	}
	sort.SliceStable(hits, func(a, b int) bool { return hits[a].Distance < hits[b].Distance })
	if k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}

// Search 在 ix 中检索并只返回 chunk id。ix 为 nil 或为空时返回空结果。
func Search(query []float32, ix *Index, k int) ([]uint, error) {
	hits, err := ix.Search(query, k)
	if err != nil {
		return nil, err
	}
	ids := make([]uint, len(hits))
	for i, h := range hits {
		ids[i] = h.ChunkID
	}
	return ids, nil
}

// 二进制格式：magic(4) | version(u32) | dim(u32) | count(u32) | count*dim 个小端 float32
var indexMagic = [4]byte{'P', 'F', 'I', 'X'}

const indexVersion uint32 = 1

// encodeVectors 序列化向量部分，chunk id 列表单独存放。
func (ix *Index) encodeVectors() []byte {
	var buf bytes.Buffer
	buf.Grow(16 + 4*len(ix.vectors))
	buf.Write(indexMagic[:])
	_ = binary.Write(&buf, binary.LittleEndian, indexVersion)
	_ = binary.Write(&buf, binary.LittleEndian, uint32(ix.dim))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(ix.Len()))
	_ = binary.Write(&buf, binary.LittleEndian, ix.vectors)
	return buf.Bytes()
}

// decodeVectors 解析 encodeVectors 的输出，返回维度、行数和平铺的向量。
func decodeVectors(data []byte) (dim, count int, vectors []float32, err error) {
	r := bytes.NewReader(data)
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil || magic != indexMagic {
		return 0, 0, nil, errors.New("not an index file")
	}
	var header [3]uint32
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return 0, 0, nil, fmt.Errorf("read index header: %w", err)
	}
	if header[0] != indexVersion {
		return 0, 0, nil, fmt.Errorf("unsupported index version %d", header[0])
	}
	dim, count = int(header[1]), int(header[2])
	if dim == 0 || count == 0 {
		return 0, 0, nil, errors.New("index file holds no vectors")
	}
	if want := int64(dim) * int64(count) * 4; int64(r.Len()) != want {
		return 0, 0, nil, fmt.Errorf("index payload is %d bytes, want %d", r.Len(), want)
	}
	vectors = make([]float32, dim*count)
	if err := binary.Read(r, binary.LittleEndian, vectors); err != nil {
		return 0, 0, nil, fmt.Errorf("read index payload: %w", err)
	}
	return dim, count, vectors, nil
}
