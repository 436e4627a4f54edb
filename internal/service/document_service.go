// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"pdf-faq-go/internal/model"
	"pdf-faq-go/internal/repository"
	"pdf-faq-go/internal/vectorindex"
	"pdf-faq-go/pkg/log"
	"pdf-faq-go/pkg/storage"
	"pdf-faq-go/pkg/tasks"

	"github.com/google/uuid"
)

var (
	// ErrDocumentNotFound 表示文档不存在或不属于当前用户。
	ErrDocumentNotFound = errors.New("文档不存在或不属于该用户")
	// ErrUnsupportedFile 表示文件格式不受支持。
	ErrUnsupportedFile = errors.New("不支持的文件格式")
)

// 不依赖 Tika 即可处理的格式
var nativeExtensions = map[string]bool{".pdf": true, ".txt": true, ".md": true}

// UploadFile 是一个待上传的文件。
type UploadFile struct {
	Name        string
	ContentType string
	Data        []byte
}

// UploadResult 是单个文件的上传结果，Error 非空表示该文件失败。
type UploadResult struct {
	FileName   string `json:"fileName"`
	DocumentID uint   `json:"documentId,omitempty"`
	Error      string `json:"error,omitempty"`
}

// IngestQueue 接收文档处理任务，Kafka 生产者和进程内队列都实现了它。
type IngestQueue interface {
	Enqueue(ctx context.Context, task tasks.DocumentIngestTask) error
}

// PassageRemover 从关键词检索中删除文档的段落。
type PassageRemover interface {
	DeleteDocument(ctx context.Context, documentID uint) error
}

// DocumentService 接口定义了文档管理相关的业务操作。
type DocumentService interface {
	// Upload 逐个保存并排队处理文件，单个文件失败不影响其他文件。
	Upload(ctx context.Context, user *model.User, files []UploadFile) []UploadResult
	List(ctx context.Context, user *model.User) ([]model.DocumentDTO, error)
	Delete(ctx context.Context, user *model.User, documentID uint) error
}

type documentService struct {
	store       repository.RecordStore
	objects     storage.ObjectStore
	queue       IngestQueue
	indexes     *vectorindex.Manager
	passages    PassageRemover
	tikaEnabled bool
}

// NewDocumentService 创建一个新的 DocumentService 实例。passages 可以为 nil。
func NewDocumentService(store repository.RecordStore, objects storage.ObjectStore, queue IngestQueue, indexes *vectorindex.Manager, passages PassageRemover, tikaEnabled bool) DocumentService {
	return &documentService{
		store:       store,
		objects:     objects,
		queue:       queue,
		indexes:     indexes,
		passages:    passages,
		tikaEnabled: tikaEnabled,
	}
}

func (s *documentService) Upload(ctx context.Context, user *model.User, files []UploadFile) []UploadResult {
	results := make([]UploadResult, 0, len(files))
	for _, f := range files {
		name := filepath.Base(f.Name)
		id, err := s.uploadOne(ctx, user, name, f)
		if err != nil {
			log.Warnf("[DocumentService] 文件 %s 上传失败: %v", name, err)
			results = append(results, UploadResult{FileName: name, Error: err.Error()})
			continue
		}
		results = append(results, UploadResult{FileName: name, DocumentID: id})
	}
	return results
}

func (s *documentService) uploadOne(ctx context.Context, user *model.User, name string, f UploadFile) (uint, error) {
	ext := strings.ToLower(filepath.Ext(name))
	if !nativeExtensions[ext] && !s.tikaEnabled {
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedFile, ext)
	}
	if len(f.Data) == 0 {
		return 0, errors.New("文件内容为空")
	}

	sum := md5.Sum(f.Data)
	fileMD5 := hex.EncodeToString(sum[:])
	// 同一文件可以上传多次，每次上传都有独立的对象，删除其中一份不影响其他副本
	objectKey := fmt.Sprintf("uploads/%d/%s/%s/%s", user.ID, fileMD5, uuid.NewString(), name)

	// 1. 保存原始文件
	if err := s.objects.Put(ctx, objectKey, f.Data, f.ContentType); err != nil {
		return 0, err
	}

	// 2. 写入文档记录
	doc := &model.Document{OwnerID: user.ID, Name: name, FileMD5: fileMD5, ObjectKey: objectKey}
	id, err := s.store.InsertDocument(ctx, doc)
	if err != nil {
		_ = s.objects.Remove(ctx, objectKey)
		return 0, fmt.Errorf("保存文档记录失败: %w", err)
	}

	// 3. 提交处理任务
	task := tasks.DocumentIngestTask{DocumentID: id, OwnerID: user.ID, FileName: name, ObjectKey: objectKey}
	if err := s.queue.Enqueue(ctx, task); err != nil {
		_ = s.store.DeleteDocument(ctx, id)
		_ = s.objects.Remove(ctx, objectKey)
		return 0, fmt.Errorf("提交处理任务失败: %w", err)
	}
	log.Infof("[DocumentService] 文件 %s 已上传, DocumentID: %d, MD5: %s", name, id, fileMD5)
	return id, nil
}

func (s *documentService) List(ctx context.Context, user *model.User) ([]model.DocumentDTO, error) {
	docs, err := s.store.ListDocuments(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	dtos := make([]model.DocumentDTO, 0, len(docs))
	for _, d := range docs {
		dtos = append(dtos, model.DocumentDTO{ID: d.ID, Name: d.Name, UploadedAt: model.LocalTime(d.CreatedAt)})
	}
	return dtos, nil
}

// Delete 删除文档记录、索引、原始文件和检索段落。只有记录删除失败会返回错误。
func (s *documentService) Delete(ctx context.Context, user *model.User, documentID uint) error {
	doc, err := s.store.GetDocument(ctx, documentID)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && doc.OwnerID != user.ID) {
		return ErrDocumentNotFound
	}
	if err != nil {
		return err
	}

	if err := s.store.DeleteDocument(ctx, doc.ID); err != nil {
		return fmt.Errorf("删除文档记录失败: %w", err)
	}
	if err := s.indexes.Invalidate(ctx, model.DocumentScope(doc.ID)); err != nil {
		log.Warnf("[DocumentService] 删除文档索引失败: %v", err)
	}
	if err := s.indexes.Invalidate(ctx, model.OwnerScope(doc.OwnerID)); err != nil {
		log.Warnf("[DocumentService] 全局索引失效失败: %v", err)
	}
	if doc.ObjectKey != "" {
		if err := s.objects.Remove(ctx, doc.ObjectKey); err != nil {
			log.Warnf("[DocumentService] 删除原始文件失败: %v", err)
		}
	}
	if s.passages != nil {
		if err := s.passages.DeleteDocument(ctx, doc.ID); err != nil {
			log.Warnf("[DocumentService] 删除检索段落失败: %v", err)
		}
	}
	log.Infof("[DocumentService] 文档 %d 已删除", doc.ID)
	return nil
}
