// Package pipeline 定义了文档处理的核心流程。
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"pdf-faq-go/internal/model"
	"pdf-faq-go/internal/repository"
	"pdf-faq-go/internal/vectorindex"
	"pdf-faq-go/pkg/embedding"
	"pdf-faq-go/pkg/log"
	"pdf-faq-go/pkg/storage"
	"pdf-faq-go/pkg/tasks"
)

// ErrNoText 表示文档中没有可用的文本。
var ErrNoText = errors.New("document contains no extractable text")

// PassageMirror 接收处理完成的段落，用于关键词检索。
type PassageMirror interface {
	IndexPassages(ctx context.Context, passages []model.PassageDocument) error
	DeleteDocument(ctx context.Context, documentID uint) error
}

// Processor 封装了文档处理的所有依赖和逻辑。
type Processor struct {
	objects   storage.ObjectStore
	extractor TextExtractor
	chunker   *Chunker
	embedder  embedding.Client
	store     repository.RecordStore
	indexes   *vectorindex.Manager
	passages  PassageMirror
}

// NewProcessor 创建一个新的 Processor 实例。passages 可以为 nil。
func NewProcessor(
	objects storage.ObjectStore,
	extractor TextExtractor,
	chunker *Chunker,
	embedder embedding.Client,
	store repository.RecordStore,
	indexes *vectorindex.Manager,
	passages PassageMirror,
) *Processor {
	return &Processor{
		objects:   objects,
		extractor: extractor,
		chunker:   chunker,
		embedder:  embedder,
		store:     store,
		indexes:   indexes,
		passages:  passages,
	}
}

// Process 处理一个文档任务。失败时把错误和调用栈写入错误日志后返回，不会 panic。
func (p *Processor) Process(ctx context.Context, task tasks.DocumentIngestTask) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("处理文档 %d 时发生 panic: %v", task.DocumentID, r)
		}
		if err != nil {
			trace := string(debug.Stack())
			log.Errorf("[Processor] 文档处理失败, DocumentID: %d, FileName: %s, Error: %v", task.DocumentID, task.FileName, err)
			if logErr := p.store.LogError(ctx, fmt.Sprintf("Error processing %s: %v", task.FileName, err), &trace); logErr != nil {
				log.Warnf("[Processor] 写入错误日志失败: %v", logErr)
			}
		}
	}()
	return p.ingest(ctx, task)
}

func (p *Processor) ingest(ctx context.Context, task tasks.DocumentIngestTask) error {
	log.Infof("[Processor] 开始处理文档, DocumentID: %d, FileName: %s, OwnerID: %d", task.DocumentID, task.FileName, task.OwnerID)

	doc, err := p.store.GetDocument(ctx, task.DocumentID)
	if errors.Is(err, repository.ErrNotFound) {
		// 排队期间文档已被删除
		log.Warnf("[Processor] 文档 %d 已不存在, 跳过处理", task.DocumentID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("读取文档记录失败: %w", err)
	}

	// 1. 下载文件
	log.Infof("[Processor] 步骤1: 下载文件, Object: %s", task.ObjectKey)
	data, err := p.objects.Get(ctx, task.ObjectKey)
	if err != nil {
		return err
	}
	log.Infof("[Processor] 步骤1: 文件下载成功, 大小: %d字节", len(data))

	// 2. 提取文本
	log.Infof("[Processor] 步骤2: 提取文本")
	pages, err := p.extractor.Extract(ctx, task.FileName, data)
	if err != nil {
		return fmt.Errorf("提取文本失败: %w", err)
	}
	log.Infof("[Processor] 步骤2: 提取完成, 页数: %d", len(pages))

	// 3. 分块
	drafts := p.chunker.ChunkPages(pages)
	if len(drafts) == 0 {
		return ErrNoText
	}
	log.Infof("[Processor] 步骤3: 文本分块完成, 分块数量: %d", len(drafts))

	// 4. 生成向量
	texts := make([]string, len(drafts))
	for i, d := range drafts {
		texts[i] = d.Text
	}
	vectors, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("生成向量失败: %w", err)
	}
	if len(vectors) != len(drafts) {
		return fmt.Errorf("向量数量 %d 与分块数量 %d 不一致", len(vectors), len(drafts))
	}
	dim := p.embedder.Dimension()
	for i, v := range vectors {
		if dim > 0 && len(v) != dim {
			return fmt.Errorf("%w: chunk %d has %d, expected %d", embedding.ErrDimensionMismatch, i, len(v), dim)
		}
	}
	log.Infof("[Processor] 步骤4: 向量生成完成, 维度: %d", dim)

	// 5. 写入记录存储。先清理旧数据，重复处理同一文档不会产生重复分块
	if err := p.store.DeleteChunksByDocument(ctx, doc.ID); err != nil {
		return fmt.Errorf("清理旧分块失败: %w", err)
	}
	passages := make([]model.PassageDocument, 0, len(drafts))
	for i, d := range drafts {
		chunkID, err := p.store.InsertChunk(ctx, doc.ID, d.Text, d.SequenceIndex, d.PageNumber)
		if err != nil {
			return fmt.Errorf("保存分块 %d 失败: %w", d.SequenceIndex, err)
		}
		if err := p.store.InsertEmbedding(ctx, chunkID, vectors[i]); err != nil {
			return fmt.Errorf("保存分块 %d 的向量失败: %w", d.SequenceIndex, err)
		}
		passages = append(passages, model.PassageDocument{
			ChunkID:      chunkID,
			DocumentID:   doc.ID,
			DocumentName: doc.Name,
			OwnerID:      doc.OwnerID,
			PageNumber:   d.PageNumber,
			Text:         d.Text,
		})
	}
	log.Infof("[Processor] 步骤5: 分块与向量已保存")

	// 6. 构建文档索引，并让用户的全局索引失效
	if _, err := p.indexes.Rebuild(ctx, model.DocumentScope(doc.ID)); err != nil {
		return fmt.Errorf("构建文档索引失败: %w", err)
	}
	if err := p.indexes.Invalidate(ctx, model.OwnerScope(doc.OwnerID)); err != nil {
		log.Warnf("[Processor] 全局索引失效失败: %v", err)
	}
	log.Infof("[Processor] 步骤6: 文档索引构建完成")

	// 7. 镜像到关键词检索，失败不影响问答
	if p.passages != nil {
		// 重新处理时分块 ID 会变化，先清掉旧段落
		if err := p.passages.DeleteDocument(ctx, doc.ID); err != nil {
			log.Warnf("[Processor] 步骤7: 清理旧段落失败: %v", err)
		}
		if err := p.passages.IndexPassages(ctx, passages); err != nil {
			log.Warnf("[Processor] 步骤7: 段落写入 Elasticsearch 失败: %v", err)
		} else {
			log.Infof("[Processor] 步骤7: 段落已写入 Elasticsearch")
		}
	}

	log.Infof("[Processor] 文档处理完成, DocumentID: %d, 分块数量: %d", doc.ID, len(drafts))
	return nil
}
