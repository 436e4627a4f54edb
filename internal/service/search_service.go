package service

import (
	"context"
	"errors"
	"strings"

	"pdf-faq-go/internal/model"
	"pdf-faq-go/pkg/log"
)

// ErrSearchDisabled 表示没有配置 Elasticsearch。
var ErrSearchDisabled = errors.New("passage search is not configured")

const defaultSearchSize = 10

// PassageSearcher 在段落镜像中做全文检索。
type PassageSearcher interface {
	Search(ctx context.Context, ownerID uint, query string, size int) ([]model.PassageHit, error)
}

// SearchService 接口定义了段落关键词检索。
type SearchService interface {
	SearchPassages(ctx context.Context, user *model.User, query string, size int) ([]model.PassageHit, error)
}

type searchService struct {
	searcher PassageSearcher
}

// NewSearchService 创建一个新的 SearchService 实例，searcher 为 nil 时检索不可用。
func NewSearchService(searcher PassageSearcher) SearchService {
	return &searchService{searcher: searcher}
}

func (s *searchService) SearchPassages(ctx context.Context, user *model.User, query string, size int) ([]model.PassageHit, error) {
	if s.searcher == nil {
		return nil, ErrSearchDisabled
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return []model.PassageHit{}, nil
	}
	if size <= 0 || size > 50 {
		size = defaultSearchSize
	}
	hits, err := s.searcher.Search(ctx, user.ID, query, size)
	if err != nil {
		return nil, err
	}
	log.Infof("[SearchService] 用户 %s 检索 '%s', 命中 %d 条", user.Username, query, len(hits))
	return hits, nil
}
