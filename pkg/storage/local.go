package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrObjectNotFound 表示本地对象不存在。
var ErrObjectNotFound = errors.New("object not found")

type localObjectStore struct {
	root string
}

// NewLocalObjectStore 创建一个保存在本地目录中的 ObjectStore，单机模式下替代 MinIO。
func NewLocalObjectStore(root string) (ObjectStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("创建上传目录失败: %w", err)
	}
	return &localObjectStore{root: root}, nil
}

// path 拒绝跳出根目录的对象名。
func (s *localObjectStore) path(objectKey string) (string, error) {
	clean := filepath.Clean("/" + objectKey)
	p := filepath.Join(s.root, clean)
	if !strings.HasPrefix(p, filepath.Clean(s.root)+string(os.PathSeparator)) {
		return "", fmt.Errorf("非法的对象名: %s", objectKey)
	}
	return p, nil
}

func (s *localObjectStore) Put(_ context.Context, objectKey string, data []byte, _ string) error {
	p, err := s.path(objectKey)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("上传对象 %s 失败: %w", objectKey, err)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return fmt.Errorf("上传对象 %s 失败: %w", objectKey, err)
	}
	return nil
}

func (s *localObjectStore) Get(_ context.Context, objectKey string) ([]byte, error) {
	p, err := s.path(objectKey)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("下载对象 %s 失败: %w", objectKey, ErrObjectNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("下载对象 %s 失败: %w", objectKey, err)
	}
	return data, nil
}

func (s *localObjectStore) Remove(_ context.Context, objectKey string) error {
	p, err := s.path(objectKey)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("删除对象 %s 失败: %w", objectKey, err)
	}
	return nil
}
