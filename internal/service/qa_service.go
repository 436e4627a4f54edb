package service

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"pdf-faq-go/internal/model"
	"pdf-faq-go/internal/repository"
	"pdf-faq-go/pkg/log"
)

// ErrEmptyQuestion 表示问题为空。
var ErrEmptyQuestion = errors.New("question must not be empty")

// QAResult 是一次问答的结果。RelevantChunks 为 0 时前端应提示用户换个问法。
type QAResult struct {
	Answer         string  `json:"answer"`
	SourceDocument *string `json:"sourceDocument"`
	SourcePage     *int    `json:"sourcePage"`
	RelevantChunks int     `json:"relevantChunks"`
}

// QAService 接口定义了问答相关的业务操作。
type QAService interface {
	// AskQuestion 在单个文档（documentID 非空）或用户的全部文档中回答问题。
	AskQuestion(ctx context.Context, user *model.User, question string, documentID *uint) (*QAResult, error)
	History(ctx context.Context, user *model.User) ([]model.QARecord, error)
	ClearHistory(ctx context.Context, user *model.User) error
}

type qaService struct {
	store     repository.RecordStore
	retrieval RetrievalService
	generator AnswerGenerator
	history   repository.HistoryRepository
	topK      int
}

// NewQAService 创建一个新的 QAService 实例。history 可以为 nil。
func NewQAService(store repository.RecordStore, retrieval RetrievalService, generator AnswerGenerator, history repository.HistoryRepository, topK int) QAService {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &qaService{store: store, retrieval: retrieval, generator: generator, history: history, topK: topK}
}

func (s *qaService) AskQuestion(ctx context.Context, user *model.User, question string, documentID *uint) (*QAResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}

	scope := model.OwnerScope(user.ID)
	if documentID != nil {
		doc, err := s.store.GetDocument(ctx, *documentID)
		if errors.Is(err, repository.ErrNotFound) || (err == nil && doc.OwnerID != user.ID) {
			return nil, ErrDocumentNotFound
		}
		if err != nil {
			return nil, err
		}
		scope = model.DocumentScope(doc.ID)
	}
	log.Infof("[QAService] 用户 %s 提问, 范围: %s, 问题: %s", user.Username, scope.Key(), question)

	// 1. 记录问题
	queryID, err := s.store.InsertQuery(ctx, user.ID, question)
	if err != nil {
		log.Warnf("[QAService] 记录问题失败: %v", err)
	}

	// 2. 检索相关分块，失败时按没有找到处理
	chunks, err := s.retrieval.FindRelevant(ctx, question, scope, s.topK)
	if err != nil {
		log.Errorf("[QAService] 检索失败: %v", err)
		s.logError(ctx, fmt.Sprintf("Error retrieving chunks: %v", err))
		chunks = nil
	}

	// 3. 生成答案
	answer, err := s.generator.Generate(ctx, question, chunks)
	if err != nil {
		log.Errorf("[QAService] 生成答案失败: %v", err)
		s.logError(ctx, fmt.Sprintf("Error generating answer: %v", err))
		answer = Answer{Text: NotFoundAnswer, RelevantChunks: len(chunks)}
	}

	// 4. 记录答案
	if queryID != 0 {
		if err := s.store.InsertResponse(ctx, queryID, answer.Text, answer.SourceDocument, answer.SourcePage); err != nil {
			log.Warnf("[QAService] 记录答案失败: %v", err)
		}
	}

	result := &QAResult{
		Answer:         answer.Text,
		SourceDocument: answer.SourceDocument,
		SourcePage:     answer.SourcePage,
		RelevantChunks: answer.RelevantChunks,
	}

	// 5. 写入问答历史
	if s.history != nil {
		record := model.QARecord{
			Question:       question,
			Answer:         result.Answer,
			SourceDocument: result.SourceDocument,
			SourcePage:     result.SourcePage,
			RelevantChunks: result.RelevantChunks,
			Timestamp:      time.Now(),
		}
		if err := s.history.Append(ctx, user.ID, record); err != nil {
			log.Warnf("[QAService] 写入问答历史失败: %v", err)
		}
	}
	return result, nil
}

func (s *qaService) History(ctx context.Context, user *model.User) ([]model.QARecord, error) {
	if s.history == nil {
		return []model.QARecord{}, nil
	}
	return s.history.List(ctx, user.ID)
}

func (s *qaService) ClearHistory(ctx context.Context, user *model.User) error {
	if s.history == nil {
		return nil
	}
	return s.history.Clear(ctx, user.ID)
}

func (s *qaService) logError(ctx context.Context, msg string) {
	trace := string(debug.Stack())
	if err := s.store.LogError(ctx, msg, &trace); err != nil {
		log.Warnf("[QAService] 写入错误日志失败: %v", err)
	}
}
