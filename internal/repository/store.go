// Package repository 定义了与数据库进行数据交换的接口和实现。
package repository

import (
	"context"
	"errors"

	"pdf-faq-go/internal/model"
)

// ErrNotFound 表示请求的记录不存在。
var ErrNotFound = errors.New("record not found")

// RecordStore 是问答流程依赖的记录存储。
// 生产环境使用 GORM/MySQL 实现，测试与单机模式使用内存实现。
type RecordStore interface {
	InsertDocument(ctx context.Context, doc *model.Document) (uint, error)
	GetDocument(ctx context.Context, documentID uint) (*model.Document, error)
	// ListDocuments 按上传时间倒序返回用户的文档。
	ListDocuments(ctx context.Context, ownerID uint) ([]model.Document, error)
	// DeleteDocument 删除文档及其全部分块和向量。
	DeleteDocument(ctx context.Context, documentID uint) error

	InsertChunk(ctx context.Context, documentID uint, text string, sequenceIndex int, pageNumber *int) (uint, error)
	GetChunk(ctx context.Context, chunkID uint) (*model.Chunk, error)
	GetChunkWithDocumentName(ctx context.Context, chunkID uint) (*model.RelevantChunk, error)
	// DeleteChunksByDocument 删除文档已有的分块和向量，用于重复处理同一文档。
	DeleteChunksByDocument(ctx context.Context, documentID uint) error

	InsertEmbedding(ctx context.Context, chunkID uint, vector []float32) error
	// ListEmbeddings 按 chunk id 升序返回范围内的全部向量。
	ListEmbeddings(ctx context.Context, scope model.Scope) ([]model.Embedding, error)

	InsertQuery(ctx context.Context, ownerID uint, question string) (uint, error)
	InsertResponse(ctx context.Context, queryID uint, answer string, sourceName *string, sourcePage *int) error
	LogError(ctx context.Context, message string, trace *string) error
}
