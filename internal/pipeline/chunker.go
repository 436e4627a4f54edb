package pipeline

import (
	"strings"

	"pdf-faq-go/pkg/log"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// 句子结束标记（". " ".\n" "! " "? "），优先在这些位置切分
var sentenceDelimiters = [][2]rune{{'.', ' '}, {'.', '\n'}, {'!', ' '}, {'?', ' '}}

// PageText 是一页提取出的文本，Number 从 1 开始，0 表示来源没有分页。
type PageText struct {
	Number int
	Text   string
}

// ChunkDraft 是写入记录存储之前的分块。
type ChunkDraft struct {
	Text          string
	SequenceIndex int
	PageNumber    *int
}

// Chunker 按字符（rune）切分文本，相邻分块之间保留 overlap 个字符的重叠。
type Chunker struct {
	size    int
	overlap int
}

// NewChunker 创建 Chunker。size <= 0 时使用默认值；overlap >= size 会导致无法前进，
// 此时收缩为 size/4。
func NewChunker(size, overlap int) *Chunker {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		log.Warnf("[Chunker] chunk overlap %d 不小于 chunk size %d, 调整为 %d", overlap, size, size/4)
		overlap = size / 4
	}
	return &Chunker{size: size, overlap: overlap}
}

// Size 返回分块的最大长度。
func (c *Chunker) Size() int { return c.size }

// Overlap 返回相邻分块的重叠长度。
func (c *Chunker) Overlap() int { return c.overlap }

// Split 将一页文本切分为有序的分块。空白文本返回 nil。
func (c *Chunker) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	runes := []rune(text)
	if len(runes) <= c.size {
		return []string{text}
	}

	var chunks []string
	start := 0
	for start < len(runes) {
		end := start + c.size
		if end >= len(runes) {
			chunks = append(chunks, string(runes[start:]))
			break
		}

		// 仅当句子边界落在窗口后半段时才在边界处切分
		if cut := lastDelimiter(runes[start:end]); cut*2 > c.size {
			end = start + cut + 1
		}
		chunks = append(chunks, string(runes[start:end]))

		next := end - c.overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks
}

// ChunkPages 切分整份文档，跳过空白页，SequenceIndex 在文档内连续编号。
func (c *Chunker) ChunkPages(pages []PageText) []ChunkDraft {
	var drafts []ChunkDraft
	seq := 0
	for _, page := range pages {
		var pageNumber *int
		if page.Number > 0 {
			n := page.Number
			pageNumber = &n
		}
		for _, text := range c.Split(page.Text) {
			drafts = append(drafts, ChunkDraft{Text: text, SequenceIndex: seq, PageNumber: pageNumber})
			seq++
		}
	}
	return drafts
}

// lastDelimiter 返回窗口内最后一个句子结束符的位置（rune 下标），没有时返回 -1。
func lastDelimiter(window []rune) int {
	for i := len(window) - 2; i >= 0; i-- {
		for _, d := range sentenceDelimiters {
			if window[i] == d[0] && window[i+1] == d[1] {
				return i
			}
		}
	}
	return -1
}
