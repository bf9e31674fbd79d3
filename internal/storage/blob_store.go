// Package storage 负责文件内容在磁盘上的存取
// 文件以随机生成的名字平铺在根目录下，与元数据通过 StoredName 关联
package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/weiwangfds/linkdrop/internal/logger"
)

const tempSuffix = ".tmp"

// BlobStore 基于 afero 文件系统的文件内容存储
type BlobStore struct {
	fs   afero.Fs
	root string
}

// NewBlobStore 创建文件内容存储，root 在首次写入时创建
func NewBlobStore(fs afero.Fs, root string) *BlobStore {
	return &BlobStore{fs: fs, root: root}
}

// NewOsBlobStore 创建基于本地磁盘的文件内容存储
func NewOsBlobStore(root string) *BlobStore {
	return NewBlobStore(afero.NewOsFs(), root)
}

// Root 返回存储根目录
func (s *BlobStore) Root() string {
	return s.root
}

// Put 将数据流写入一个新生成名字的文件
// 先写临时文件再重命名，失败时临时文件会被清理，不会留下半截文件
func (s *BlobStore) Put(r io.Reader) (storedName string, written int64, err error) {
	if err := s.fs.MkdirAll(s.root, 0755); err != nil {
		return "", 0, fmt.Errorf("create storage root %s: %w", s.root, err)
	}

	storedName = uuid.New().String()
	finalPath := s.Resolve(storedName)
	tempPath := finalPath + tempSuffix

	f, err := s.fs.OpenFile(tempPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return "", 0, fmt.Errorf("create blob %s: %w", tempPath, err)
	}

	written, err = io.Copy(f, r)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		s.removeQuietly(tempPath)
		return "", 0, fmt.Errorf("write blob %s: %w", storedName, err)
	}

	if err := s.fs.Rename(tempPath, finalPath); err != nil {
		s.removeQuietly(tempPath)
		return "", 0, fmt.Errorf("commit blob %s: %w", storedName, err)
	}

	logger.Debugf("[文件存储] 已写入 %s (%s)", storedName, humanize.IBytes(uint64(written)))
	return storedName, written, nil
}

// Resolve 返回 storedName 对应的路径，不访问文件系统
func (s *BlobStore) Resolve(storedName string) string {
	return filepath.Join(s.root, storedName)
}

// Exists 判断路径上是否存在普通文件
func (s *BlobStore) Exists(path string) bool {
	info, err := s.fs.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// Open 打开文件用于读取
func (s *BlobStore) Open(path string) (afero.File, error) {
	f, err := s.fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open blob %s: %w", path, err)
	}
	return f, nil
}

// Delete 删除文件，文件不存在时只记录日志
func (s *BlobStore) Delete(path string) error {
	err := s.fs.Remove(path)
	if err == nil {
		return nil
	}
	if errors.Is(err, os.ErrNotExist) {
		logger.Warnf("[文件存储] 待删除的文件不存在: %s", path)
		return nil
	}
	return fmt.Errorf("delete blob %s: %w", path, err)
}

func (s *BlobStore) removeQuietly(path string) {
	if err := s.fs.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warnf("[文件存储] 清理临时文件失败 %s: %v", path, err)
	}
}
