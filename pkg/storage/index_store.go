package storage

import (
	"bytes"
	"context"
	"io"
	"path"

	"pdf-faq-go/internal/vectorindex"

	"github.com/minio/minio-go/v7"
)

// MinioArtifactStore 把向量索引的伴生文件保存到 MinIO，实现 vectorindex.ArtifactStore。
type MinioArtifactStore struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewMinioArtifactStore 创建 MinioArtifactStore，对象键为 prefix/文件名。
func NewMinioArtifactStore(client *minio.Client, bucket, prefix string) *MinioArtifactStore {
	return &MinioArtifactStore{client: client, bucket: bucket, prefix: prefix}
}

func (s *MinioArtifactStore) key(name string) string {
	return path.Join(s.prefix, name)
}

func (s *MinioArtifactStore) Get(ctx context.Context, name string) ([]byte, error) {
	object, err := s.client.GetObject(ctx, s.bucket, s.key(name), minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer object.Close()
	data, err := io.ReadAll(object)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, vectorindex.ErrArtifactNotFound
		}
		return nil, err
	}
	return data, nil
}

// Put 单个对象的写入在 MinIO 中是原子的。
func (s *MinioArtifactStore) Put(ctx context.Context, name string, data []byte) error {
	_, err := s.client.PutObject(ctx, s.bucket, s.key(name), bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	return err
}

func (s *MinioArtifactStore) Delete(ctx context.Context, name string) error {
	// 删除不存在的对象不会报错
	return s.client.RemoveObject(ctx, s.bucket, s.key(name), minio.RemoveObjectOptions{})
}
