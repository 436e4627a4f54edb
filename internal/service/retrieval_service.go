package service

import (
	"context"
	"errors"
	"fmt"

	"pdf-faq-go/internal/model"
	"pdf-faq-go/internal/repository"
	"pdf-faq-go/internal/vectorindex"
	"pdf-faq-go/pkg/embedding"
	"pdf-faq-go/pkg/log"
)

// DefaultTopK 是未指定时检索的分块数量。
const DefaultTopK = 5

// RetrievalService 负责向量检索相关分块。
type RetrievalService interface {
	FindRelevant(ctx context.Context, question string, scope model.Scope, topK int) ([]model.RelevantChunk, error)
}

type retrievalService struct {
	embedder embedding.Client
	indexes  *vectorindex.Manager
	store    repository.RecordStore
}

// NewRetrievalService 创建一个新的 RetrievalService 实例。
func NewRetrievalService(embedder embedding.Client, indexes *vectorindex.Manager, store repository.RecordStore) RetrievalService {
	return &retrievalService{embedder: embedder, indexes: indexes, store: store}
}

// FindRelevant 按相似度返回范围内最相关的分块。无法解析的 chunk id 会被丢弃，结果可能少于 topK。
func (s *retrievalService) FindRelevant(ctx context.Context, question string, scope model.Scope, topK int) ([]model.RelevantChunk, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}

	// 1. 问题向量化
	query, err := s.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("生成问题向量失败: %w", err)
	}

	// 2. 获取范围索引，不存在时自动重建
	ix, err := s.indexes.GetOrBuild(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("获取索引 %s 失败: %w", scope.Key(), err)
	}
	if ix.Len() == 0 {
		log.Infof("[RetrievalService] 范围 %s 内没有任何向量", scope.Key())
		return []model.RelevantChunk{}, nil
	}

	// 3. 检索
	ids, err := vectorindex.Search(query, ix, topK)
	if err != nil {
		return nil, fmt.Errorf("向量检索失败: %w", err)
	}

	// 4. 解析分块内容与来源
	chunks := make([]model.RelevantChunk, 0, len(ids))
	for _, id := range ids {
		chunk, err := s.store.GetChunkWithDocumentName(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				log.Debugf("[RetrievalService] 索引中的分块 %d 已不存在, 跳过", id)
			} else {
				log.Warnf("[RetrievalService] 读取分块 %d 失败, 跳过: %v", id, err)
			}
			continue
		}
		chunks = append(chunks, *chunk)
	}
	log.Infof("[RetrievalService] 范围 %s 检索完成, 命中 %d/%d", scope.Key(), len(chunks), len(ids))
	return chunks, nil
}
