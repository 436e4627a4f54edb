package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// HashingClient 是一个离线的特征哈希向量模型：
// 词项与字符三元组散列到固定维度后做 L2 归一化，结果只依赖输入文本。
type HashingClient struct {
	model     string
	dimension int
}

// NewHashingClient 创建一个给定维度的 HashingClient。
func NewHashingClient(model string, dimension int) *HashingClient {
	if model == "" {
		model = "hashing"
	}
	return &HashingClient{model: model, dimension: dimension}
}

func (h *HashingClient) Dimension() int    { return h.dimension }
func (h *HashingClient) ModelName() string { return h.model }

func (h *HashingClient) Embed(_ context.Context, text string) ([]float32, error) {
	return h.vector(text), nil
}

func (h *HashingClient) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = h.vector(t)
	}
	return out, nil
}

func (h *HashingClient) vector(text string) []float32 {
	acc := make([]float64, h.dimension)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '@'
	})
	for _, w := range words {
		h.add(acc, "w:"+w, 1.0)
		runes := []rune("^" + w + "$")
		for i := 0; i+3 <= len(runes); i++ {
			h.add(acc, "t:"+string(runes[i:i+3]), 0.5)
		}
	}

	var norm float64
	for _, v := range acc {
		norm += v * v
	}
	out := make([]float32, h.dimension)
	if norm == 0 {
		return out
	}
	norm = math.Sqrt(norm)
	for i, v := range acc {
		out[i] = float32(v / norm)
	}
	return out
}

func (h *HashingClient) add(acc []float64, feature string, weight float64) {
	f := fnv.New64a()
	_, _ = f.Write([]byte(feature))
	sum := f.Sum64()
	slot := int(sum % uint64(h.dimension))
	// 最高位决定符号，减少哈希冲突带来的偏差
	if sum>>63 == 1 {
		weight = -weight
	}
	acc[slot] += weight
}
