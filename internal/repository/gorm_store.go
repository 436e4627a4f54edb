package repository

import (
	"context"
	"errors"

	"pdf-faq-go/internal/model"

	"gorm.io/gorm"
)

type gormRecordStore struct {
	db *gorm.DB
}

// NewGormRecordStore 创建一个基于 GORM 的 RecordStore。
func NewGormRecordStore(db *gorm.DB) RecordStore {
	return &gormRecordStore{db: db}
}

// AutoMigrate 创建或更新记录存储使用的表结构。
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.User{},
		&model.Document{},
		&model.Chunk{},
		&model.Embedding{},
		&model.Query{},
		&model.Response{},
		&model.ErrorLog{},
	)
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func (s *gormRecordStore) InsertDocument(ctx context.Context, doc *model.Document) (uint, error) {
	if err := s.db.WithContext(ctx).Create(doc).Error; err != nil {
		return 0, err
	}
	return doc.ID, nil
}

func (s *gormRecordStore) GetDocument(ctx context.Context, documentID uint) (*model.Document, error) {
	var doc model.Document
	if err := s.db.WithContext(ctx).First(&doc, documentID).Error; err != nil {
		return nil, notFound(err)
	}
	return &doc, nil
}

func (s *gormRecordStore) ListDocuments(ctx context.Context, ownerID uint) ([]model.Document, error) {
	var docs []model.Document
	err := s.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").Order("id DESC").
		Find(&docs).Error
	return docs, err
}

func (s *gormRecordStore) DeleteDocument(ctx context.Context, documentID uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := deleteChunks(tx, documentID); err != nil {
			return err
		}
		res := tx.Delete(&model.Document{}, documentID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (s *gormRecordStore) InsertChunk(ctx context.Context, documentID uint, text string, sequenceIndex int, pageNumber *int) (uint, error) {
	chunk := model.Chunk{
		DocumentID:    documentID,
		Text:          text,
		SequenceIndex: sequenceIndex,
		PageNumber:    pageNumber,
	}
	if err := s.db.WithContext(ctx).Create(&chunk).Error; err != nil {
		return 0, err
	}
	return chunk.ID, nil
}

func (s *gormRecordStore) GetChunk(ctx context.Context, chunkID uint) (*model.Chunk, error) {
	var chunk model.Chunk
	if err := s.db.WithContext(ctx).First(&chunk, chunkID).Error; err != nil {
		return nil, notFound(err)
	}
	return &chunk, nil
}

func (s *gormRecordStore) GetChunkWithDocumentName(ctx context.Context, chunkID uint) (*model.RelevantChunk, error) {
	var row model.RelevantChunk
	res := s.db.WithContext(ctx).
		Table("chunks").
		Select("chunks.id AS chunk_id, chunks.document_id, documents.name AS document_name, chunks.text, chunks.page_number").
		Joins("JOIN documents ON documents.id = chunks.document_id").
		Where("chunks.id = ?", chunkID).
		Limit(1).
		Scan(&row)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return &row, nil
}

func (s *gormRecordStore) DeleteChunksByDocument(ctx context.Context, documentID uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return deleteChunks(tx, documentID)
	})
}

func deleteChunks(tx *gorm.DB, documentID uint) error {
	sub := tx.Model(&model.Chunk{}).Select("id").Where("document_id = ?", documentID)
	if err := tx.Where("chunk_id IN (?)", sub).Delete(&model.Embedding{}).Error; err != nil {
		return err
	}
	return tx.Where("document_id = ?", documentID).Delete(&model.Chunk{}).Error
}

func (s *gormRecordStore) InsertEmbedding(ctx context.Context, chunkID uint, vector []float32) error {
	return s.db.WithContext(ctx).Create(&model.Embedding{ChunkID: chunkID, Vector: vector}).Error
}

func (s *gormRecordStore) ListEmbeddings(ctx context.Context, scope model.Scope) ([]model.Embedding, error) {
	var out []model.Embedding
	q := s.db.WithContext(ctx).Model(&model.Embedding{}).Select("embeddings.*")
	switch {
	case scope.DocumentID != 0:
		q = q.Joins("JOIN chunks ON chunks.id = embeddings.chunk_id").
			Where("chunks.document_id = ?", scope.DocumentID)
	case scope.OwnerID != 0:
		q = q.Joins("JOIN chunks ON chunks.id = embeddings.chunk_id").
			Joins("JOIN documents ON documents.id = chunks.document_id").
			Where("documents.owner_id = ?", scope.OwnerID)
	}
	err := q.Order("embeddings.chunk_id ASC").Find(&out).Error
	return out, err
}

func (s *gormRecordStore) InsertQuery(ctx context.Context, ownerID uint, question string) (uint, error) {
	q := model.Query{OwnerID: ownerID, Question: question}
	if err := s.db.WithContext(ctx).Create(&q).Error; err != nil {
		return 0, err
	}
	return q.ID, nil
}

func (s *gormRecordStore) InsertResponse(ctx context.Context, queryID uint, answer string, sourceName *string, sourcePage *int) error {
	return s.db.WithContext(ctx).Create(&model.Response{
		QueryID:    queryID,
		Answer:     answer,
		SourceName: sourceName,
		SourcePage: sourcePage,
	}).Error
}

func (s *gormRecordStore) LogError(ctx context.Context, message string, trace *string) error {
	return s.db.WithContext(ctx).Create(&model.ErrorLog{Message: message, Trace: trace}).Error
}
