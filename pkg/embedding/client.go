// Package embedding provides clients that map text to fixed-dimension vectors.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"pdf-faq-go/internal/config"
	"pdf-faq-go/pkg/log"
)

// ErrDimensionMismatch is returned when a model produces vectors of an unexpected size.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Client defines the interface for an embedding model.
// EmbedBatch returns one vector per input, in input order.
type Client interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	ModelName() string
}

const probeText = "dimension probe"

// Load 根据配置创建 embedding 客户端并做一次探测调用，确认模型可用且维度与配置一致。
// 启动阶段调用，返回错误时应视为致命错误。
func Load(ctx context.Context, cfg config.EmbeddingConfig) (Client, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	switch provider {
	case "hashing":
		if cfg.Dimensions <= 0 {
			return nil, fmt.Errorf("hashing embedder requires a positive dimension, got %d", cfg.Dimensions)
		}
		log.Infof("[Embedding] 使用本地 hashing 向量模型, 维度: %d", cfg.Dimensions)
		return NewHashingClient(cfg.Model, cfg.Dimensions), nil
	case "", "openai":
		c := newOpenAICompatibleClient(cfg)
		vec, err := c.Embed(ctx, probeText)
		if err != nil {
			return nil, fmt.Errorf("embedding model %q failed to load: %w", cfg.Model, err)
		}
		if cfg.Dimensions > 0 && len(vec) != cfg.Dimensions {
			return nil, fmt.Errorf("%w: model %q returned %d, configured %d", ErrDimensionMismatch, cfg.Model, len(vec), cfg.Dimensions)
		}
		c.dimension = len(vec)
		log.Infof("[Embedding] Embedding 模型加载成功, model: %s, 维度: %d", cfg.Model, c.dimension)
		return c, nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}
