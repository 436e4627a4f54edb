package pipeline

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunker_ShortTextIsSingleChunk(t *testing.T) {
	c := NewChunker(1000, 200)
	text := "Hans Müller wohnt in der Musterstraße 5, 12345 Musterstadt. Seine E-Mail ist hans@example.com."
	chunks := c.Split(text)
	require.Len(t, chunks, 1)
	assert.Equal(t, text, chunks[0])

	exact := strings.Repeat("ä", 1000)
	assert.Equal(t, []string{exact}, c.Split(exact))
}

func TestChunker_EmptyAndWhitespace(t *testing.T) {
	c := NewChunker(100, 20)
	assert.Empty(t, c.Split(""))
	assert.Empty(t, c.Split(" \n\t "))
}

func TestChunker_CutsAtSentenceBoundaryPastMidpoint(t *testing.T) {
	c := NewChunker(100, 10)
	first := strings.Repeat("a", 69) + ". "
	text := first + strings.Repeat("b", 80)

	chunks := c.Split(text)
	require.GreaterOrEqual(t, len(chunks), 2)
	assert.Equal(t, strings.Repeat("a", 69)+".", chunks[0])
	// 下一个分块从切分点回退 overlap 个字符开始
	assert.True(t, strings.HasPrefix(chunks[1], strings.Repeat("a", 9)+". "))
}

func TestChunker_IgnoresBoundaryBeforeMidpoint(t *testing.T) {
	c := NewChunker(100, 0)
	text := strings.Repeat("a", 10) + ". " + strings.Repeat("b", 200)

	chunks := c.Split(text)
	require.NotEmpty(t, chunks)
	assert.Equal(t, 100, utf8.RuneCountInString(chunks[0]))
}

func TestChunker_ChunksRespectMaxSizeAndCoverText(t *testing.T) {
	c := NewChunker(50, 10)
	var sb strings.Builder
	for i := 0; i < 40; i++ {
		sb.WriteString("Das ist Satz Nummer ")
		sb.WriteString(strings.Repeat("x", i%7))
		sb.WriteString("! ")
	}
	text := sb.String()

	chunks := c.Split(text)
	require.NotEmpty(t, chunks)
	for _, ch := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(ch), 50)
	}
	assert.True(t, strings.HasSuffix(text, chunks[len(chunks)-1]))
	assert.True(t, strings.HasPrefix(text, chunks[0]))
}

func TestChunker_OverlapNotSmallerThanSizeStillTerminates(t *testing.T) {
	c := NewChunker(10, 10)
	assert.Equal(t, 2, c.Overlap())

	raw := &Chunker{size: 10, overlap: 50}
	text := strings.Repeat("abcdefghij", 10)
	chunks := raw.Split(text)
	// overlap 超过 size 时每次强制前进到切分点，不会重叠也不会死循环
	assert.Len(t, chunks, 10)
	assert.Equal(t, text, strings.Join(chunks, ""))
}

func TestChunker_Defaults(t *testing.T) {
	c := NewChunker(0, -5)
	assert.Equal(t, DefaultChunkSize, c.Size())
	assert.Equal(t, 0, c.Overlap())
}

func TestChunker_ChunkPagesNumbersSequentially(t *testing.T) {
	c := NewChunker(20, 5)
	drafts := c.ChunkPages([]PageText{
		{Number: 1, Text: "Kurzer Text."},
		{Number: 2, Text: "   "},
		{Number: 3, Text: strings.Repeat("z", 30)},
		{Number: 0, Text: "ohne Seite"},
	})

	require.Len(t, drafts, 4)
	for i, d := range drafts {
		assert.Equal(t, i, d.SequenceIndex)
	}
	require.NotNil(t, drafts[0].PageNumber)
	assert.Equal(t, 1, *drafts[0].PageNumber)
	assert.Equal(t, 3, *drafts[1].PageNumber)
	assert.Equal(t, 3, *drafts[2].PageNumber)
	assert.Nil(t, drafts[3].PageNumber)
}
