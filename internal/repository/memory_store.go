package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"pdf-faq-go/internal/model"
)

// MemoryRecordStore 是 RecordStore 的内存实现，主键从 1 开始自增。
// 适用于单机演示与测试，进程退出后数据丢失。
type MemoryRecordStore struct {
	mu sync.RWMutex

	nextDocumentID uint
	nextChunkID    uint
	nextQueryID    uint
	nextResponseID uint
	nextErrorID    uint

	documents  map[uint]model.Document
	chunks     map[uint]model.Chunk
	embeddings map[uint]model.Embedding
	queries    map[uint]model.Query
	responses  []model.Response
	errors     []model.ErrorLog

	now func() time.Time
}

// NewMemoryRecordStore 创建一个空的内存记录存储。
func NewMemoryRecordStore() *MemoryRecordStore {
	return &MemoryRecordStore{
		documents:  make(map[uint]model.Document),
		chunks:     make(map[uint]model.Chunk),
		embeddings: make(map[uint]model.Embedding),
		queries:    make(map[uint]model.Query),
		now:        time.Now,
	}
}

func (s *MemoryRecordStore) InsertDocument(_ context.Context, doc *model.Document) (uint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextDocumentID++
	doc.ID = s.nextDocumentID
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = s.now()
	}
	s.documents[doc.ID] = *doc
	return doc.ID, nil
}

func (s *MemoryRecordStore) GetDocument(_ context.Context, documentID uint) (*model.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.documents[documentID]
	if !ok {
		return nil, ErrNotFound
	}
	return &doc, nil
}

func (s *MemoryRecordStore) ListDocuments(_ context.Context, ownerID uint) ([]model.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var docs []model.Document
	for _, doc := range s.documents {
		if doc.OwnerID == ownerID {
			docs = append(docs, doc)
		}
	}
	sort.Slice(docs, func(i, j int) bool {
		if !docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].CreatedAt.After(docs[j].CreatedAt)
		}
		return docs[i].ID > docs[j].ID
	})
	return docs, nil
}

func (s *MemoryRecordStore) DeleteDocument(_ context.Context, documentID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.documents[documentID]; !ok {
		return ErrNotFound
	}
	s.deleteChunksLocked(documentID)
	delete(s.documents, documentID)
	return nil
}

func (s *MemoryRecordStore) InsertChunk(_ context.Context, documentID uint, text string, sequenceIndex int, pageNumber *int) (uint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.documents[documentID]; !ok {
		return 0, ErrNotFound
	}
	s.nextChunkID++
	s.chunks[s.nextChunkID] = model.Chunk{
		ID:            s.nextChunkID,
		DocumentID:    documentID,
		Text:          text,
		SequenceIndex: sequenceIndex,
		PageNumber:    pageNumber,
	}
	return s.nextChunkID, nil
}

func (s *MemoryRecordStore) GetChunk(_ context.Context, chunkID uint) (*model.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chunk, ok := s.chunks[chunkID]
	if !ok {
		return nil, ErrNotFound
	}
	return &chunk, nil
}

func (s *MemoryRecordStore) GetChunkWithDocumentName(_ context.Context, chunkID uint) (*model.RelevantChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chunk, ok := s.chunks[chunkID]
	if !ok {
		return nil, ErrNotFound
	}
	doc, ok := s.documents[chunk.DocumentID]
	if !ok {
		return nil, ErrNotFound
	}
	return &model.RelevantChunk{
		ChunkID:      chunk.ID,
		DocumentID:   doc.ID,
		DocumentName: doc.Name,
		Text:         chunk.Text,
		PageNumber:   chunk.PageNumber,
	}, nil
}

func (s *MemoryRecordStore) DeleteChunksByDocument(_ context.Context, documentID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteChunksLocked(documentID)
	return nil
}

func (s *MemoryRecordStore) deleteChunksLocked(documentID uint) {
	for id, chunk := range s.chunks {
		if chunk.DocumentID == documentID {
			delete(s.embeddings, id)
			delete(s.chunks, id)
		}
	}
}

func (s *MemoryRecordStore) InsertEmbedding(_ context.Context, chunkID uint, vector []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.chunks[chunkID]; !ok {
		return ErrNotFound
	}
	v := make(model.Vector, len(vector))
	copy(v, vector)
	s.embeddings[chunkID] = model.Embedding{ChunkID: chunkID, Vector: v}
	return nil
}

func (s *MemoryRecordStore) ListEmbeddings(_ context.Context, scope model.Scope) ([]model.Embedding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Embedding
	for id, emb := range s.embeddings {
		chunk := s.chunks[id]
		switch {
		case scope.DocumentID != 0:
			if chunk.DocumentID != scope.DocumentID {
				continue
			}
		case scope.OwnerID != 0:
			if s.documents[chunk.DocumentID].OwnerID != scope.OwnerID {
				continue
			}
		}
		out = append(out, emb)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChunkID < out[j].ChunkID })
	return out, nil
}

func (s *MemoryRecordStore) InsertQuery(_ context.Context, ownerID uint, question string) (uint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextQueryID++
	s.queries[s.nextQueryID] = model.Query{
		ID:        s.nextQueryID,
		OwnerID:   ownerID,
		Question:  question,
		CreatedAt: s.now(),
	}
	return s.nextQueryID, nil
}

func (s *MemoryRecordStore) InsertResponse(_ context.Context, queryID uint, answer string, sourceName *string, sourcePage *int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.queries[queryID]; !ok {
		return ErrNotFound
	}
	s.nextResponseID++
	s.responses = append(s.responses, model.Response{
		ID:         s.nextResponseID,
		QueryID:    queryID,
		Answer:     answer,
		SourceName: sourceName,
		SourcePage: sourcePage,
		CreatedAt:  s.now(),
	})
	return nil
}

func (s *MemoryRecordStore) LogError(_ context.Context, message string, trace *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextErrorID++
	s.errors = append(s.errors, model.ErrorLog{
		ID:        s.nextErrorID,
		Message:   message,
		Trace:     trace,
		CreatedAt: s.now(),
	})
	return nil
}

// Responses 返回已记录的答案，按写入顺序。
func (s *MemoryRecordStore) Responses() []model.Response {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Response(nil), s.responses...)
}

// ErrorLogs 返回已记录的错误，按写入顺序。
func (s *MemoryRecordStore) ErrorLogs() []model.ErrorLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.ErrorLog(nil), s.errors...)
}
