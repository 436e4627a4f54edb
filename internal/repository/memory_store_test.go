package repository

import (
	"context"
	"testing"
	"time"

	"pdf-faq-go/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func TestMemoryRecordStore_IncrementingIDs(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryRecordStore()

	d1, err := s.InsertDocument(ctx, &model.Document{OwnerID: 1, Name: "a.pdf"})
	require.NoError(t, err)
	d2, err := s.InsertDocument(ctx, &model.Document{OwnerID: 1, Name: "b.pdf"})
	require.NoError(t, err)
	assert.Equal(t, uint(1), d1)
	assert.Equal(t, uint(2), d2)

	c1, err := s.InsertChunk(ctx, d1, "erster", 0, intPtr(1))
	require.NoError(t, err)
	c2, err := s.InsertChunk(ctx, d2, "zweiter", 0, nil)
	require.NoError(t, err)
	assert.Equal(t, uint(1), c1)
	assert.Equal(t, uint(2), c2)
}

func TestMemoryRecordStore_ChunkResolution(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryRecordStore()

	docID, _ := s.InsertDocument(ctx, &model.Document{OwnerID: 7, Name: "lebenslauf.pdf"})
	chunkID, err := s.InsertChunk(ctx, docID, "Hans Müller", 0, intPtr(2))
	require.NoError(t, err)

	chunk, err := s.GetChunk(ctx, chunkID)
	require.NoError(t, err)
	assert.Equal(t, "Hans Müller", chunk.Text)
	assert.Equal(t, docID, chunk.DocumentID)

	rc, err := s.GetChunkWithDocumentName(ctx, chunkID)
	require.NoError(t, err)
	assert.Equal(t, "lebenslauf.pdf", rc.DocumentName)
	require.NotNil(t, rc.PageNumber)
	assert.Equal(t, 2, *rc.PageNumber)

	_, err = s.GetChunk(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.GetChunkWithDocumentName(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.InsertChunk(ctx, 42, "orphan", 0, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryRecordStore_ListEmbeddingsByScope(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryRecordStore()

	a, _ := s.InsertDocument(ctx, &model.Document{OwnerID: 1, Name: "a.pdf"})
	b, _ := s.InsertDocument(ctx, &model.Document{OwnerID: 1, Name: "b.pdf"})
	c, _ := s.InsertDocument(ctx, &model.Document{OwnerID: 2, Name: "c.pdf"})
	for i, doc := range []uint{a, b, c} {
		id, err := s.InsertChunk(ctx, doc, "text", 0, nil)
		require.NoError(t, err)
		require.NoError(t, s.InsertEmbedding(ctx, id, []float32{float32(i), 1}))
	}

	docOnly, err := s.ListEmbeddings(ctx, model.DocumentScope(b))
	require.NoError(t, err)
	require.Len(t, docOnly, 1)
	assert.Equal(t, uint(2), docOnly[0].ChunkID)

	owner, err := s.ListEmbeddings(ctx, model.OwnerScope(1))
	require.NoError(t, err)
	require.Len(t, owner, 2)
	assert.Equal(t, uint(1), owner[0].ChunkID)
	assert.Equal(t, uint(2), owner[1].ChunkID)

	all, err := s.ListEmbeddings(ctx, model.Scope{})
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestMemoryRecordStore_ListDocumentsNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryRecordStore()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	_, _ = s.InsertDocument(ctx, &model.Document{OwnerID: 1, Name: "old.pdf", CreatedAt: base})
	_, _ = s.InsertDocument(ctx, &model.Document{OwnerID: 1, Name: "new.pdf", CreatedAt: base.Add(time.Hour)})
	_, _ = s.InsertDocument(ctx, &model.Document{OwnerID: 2, Name: "other.pdf", CreatedAt: base})

	docs, err := s.ListDocuments(ctx, 1)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "new.pdf", docs[0].Name)
	assert.Equal(t, "old.pdf", docs[1].Name)
}

func TestMemoryRecordStore_DeleteDocumentCascades(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryRecordStore()

	docID, _ := s.InsertDocument(ctx, &model.Document{OwnerID: 1, Name: "a.pdf"})
	chunkID, _ := s.InsertChunk(ctx, docID, "text", 0, nil)
	require.NoError(t, s.InsertEmbedding(ctx, chunkID, []float32{1, 2}))

	require.NoError(t, s.DeleteDocument(ctx, docID))

	_, err := s.GetChunk(ctx, chunkID)
	assert.ErrorIs(t, err, ErrNotFound)
	embs, err := s.ListEmbeddings(ctx, model.Scope{})
	require.NoError(t, err)
	assert.Empty(t, embs)
	assert.ErrorIs(t, s.DeleteDocument(ctx, docID), ErrNotFound)
}

func TestMemoryRecordStore_AuditTrail(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryRecordStore()

	qid, err := s.InsertQuery(ctx, 3, "Wo wohnt er?")
	require.NoError(t, err)
	name := "a.pdf"
	require.NoError(t, s.InsertResponse(ctx, qid, "Musterstraße 5", &name, intPtr(1)))
	assert.ErrorIs(t, s.InsertResponse(ctx, 99, "x", nil, nil), ErrNotFound)

	trace := "stack"
	require.NoError(t, s.LogError(ctx, "boom", &trace))

	require.Len(t, s.Responses(), 1)
	assert.Equal(t, "Musterstraße 5", s.Responses()[0].Answer)
	require.Len(t, s.ErrorLogs(), 1)
	assert.Equal(t, "boom", s.ErrorLogs()[0].Message)
}
