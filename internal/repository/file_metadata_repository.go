// Package repository 提供文件元数据的持久化访问
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/weiwangfds/linkdrop/internal/database"
	"github.com/weiwangfds/linkdrop/internal/logger"
	"gorm.io/gorm"
)

// ErrRecordNotFound 记录不存在
var ErrRecordNotFound = errors.New("file metadata not found")

// FileMetadataRepository 文件元数据仓储接口
// 所有方法在独立事务中执行，出错时事务回滚
type FileMetadataRepository interface {
	// Insert 插入一条记录，生成ID，UploadDate为零值时取当前时间
	Insert(ctx context.Context, record *database.FileMetadata) (*database.FileMetadata, error)
	// FindByID 根据ID查询，不存在时返回 ErrRecordNotFound
	FindByID(ctx context.Context, id string) (*database.FileMetadata, error)
	// FindAll 查询全部记录，按上传时间倒序
	FindAll(ctx context.Context) ([]database.FileMetadata, error)
	// IncrementDownloadCount 原子地累加下载次数并刷新最后下载时间
	IncrementDownloadCount(ctx context.Context, id string) error
	// FindStale 查询超过 thresholdDays 天未被使用的记录，按上传时间正序
	FindStale(ctx context.Context, thresholdDays int) ([]database.FileMetadata, error)
	// Delete 删除记录，不存在时不报错
	Delete(ctx context.Context, id string) error
}

// Option 仓储选项
type Option func(*fileMetadataRepository)

// WithClock 替换时间来源，测试中用于固定当前时间
func WithClock(now func() time.Time) Option {
	return func(r *fileMetadataRepository) {
		r.now = now
	}
}

type fileMetadataRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewFileMetadataRepository 创建基于gorm的文件元数据仓储
func NewFileMetadataRepository(db *gorm.DB, opts ...Option) FileMetadataRepository {
	r := &fileMetadataRepository{
		db:  db,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// clock 返回UTC时间，保证sqlite中的时间按字符串比较时有序
func (r *fileMetadataRepository) clock() time.Time {
	return r.now().UTC()
}

func (r *fileMetadataRepository) Insert(ctx context.Context, record *database.FileMetadata) (*database.FileMetadata, error) {
	if record == nil {
		return nil, errors.New("record must not be nil")
	}

	created := *record
	created.ID = uuid.New().String()
	if created.UploadDate.IsZero() {
		created.UploadDate = r.clock()
	} else {
		created.UploadDate = created.UploadDate.UTC()
	}
	if created.DownloadCount < 0 {
		created.DownloadCount = 0
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&created).Error
	})
	if err != nil {
		return nil, fmt.Errorf("insert file metadata: %w", err)
	}

	logger.Debugf("[元数据] 已插入记录 id=%s stored=%s", created.ID, created.StoredName)
	return &created, nil
}

func (r *fileMetadataRepository) FindByID(ctx context.Context, id string) (*database.FileMetadata, error) {
	var record database.FileMetadata
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Where("id = ?", id).First(&record).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("find file metadata %s: %w", id, err)
	}
	return &record, nil
}

func (r *fileMetadataRepository) FindAll(ctx context.Context) ([]database.FileMetadata, error) {
	var records []database.FileMetadata
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Order("upload_date DESC").Find(&records).Error
	})
	if err != nil {
		return nil, fmt.Errorf("list file metadata: %w", err)
	}
	return records, nil
}

func (r *fileMetadataRepository) IncrementDownloadCount(ctx context.Context, id string) error {
	var affected int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&database.FileMetadata{}).
			Where("id = ?", id).
			Updates(map[string]interface{}{
				"download_count":     gorm.Expr("download_count + ?", 1),
				"last_download_date": r.clock(),
			})
		affected = result.RowsAffected
		return result.Error
	})
	if err != nil {
		return fmt.Errorf("increment download count %s: %w", id, err)
	}
	if affected == 0 {
		logger.Warnf("[元数据] 累加下载次数时记录不存在: %s", id)
	}
	return nil
}

func (r *fileMetadataRepository) FindStale(ctx context.Context, thresholdDays int) ([]database.FileMetadata, error) {
	threshold := r.clock().AddDate(0, 0, -thresholdDays)

	var records []database.FileMetadata
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Where(
			"(last_download_date IS NULL AND upload_date < ?) OR (last_download_date IS NOT NULL AND last_download_date < ?)",
			threshold, threshold,
		).Order("upload_date ASC").Find(&records).Error
	})
	if err != nil {
		return nil, fmt.Errorf("find stale file metadata: %w", err)
	}
	return records, nil
}

func (r *fileMetadataRepository) Delete(ctx context.Context, id string) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Where("id = ?", id).Delete(&database.FileMetadata{}).Error
	})
	if err != nil {
		return fmt.Errorf("delete file metadata %s: %w", id, err)
	}
	return nil
}
