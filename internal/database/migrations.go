package database

import (
	"github.com/weiwangfds/linkdrop/internal/logger"
	"gorm.io/gorm"
)

// Migrate 执行文件元数据表的迁移并创建辅助索引
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&FileMetadata{}); err != nil {
		return err
	}
	return createFileIndexes(db)
}

// createFileIndexes 创建过期文件查询使用的复合索引
func createFileIndexes(db *gorm.DB) error {
	indexes := []string{
		// 从未下载过的文件按上传时间筛选
		"CREATE INDEX IF NOT EXISTS idx_file_metadata_never_downloaded ON file_metadata(upload_date) WHERE last_download_date IS NULL",
		// 列表按上传时间倒序
		"CREATE INDEX IF NOT EXISTS idx_file_metadata_upload_desc ON file_metadata(upload_date DESC)",
	}

	for _, indexSQL := range indexes {
		if err := db.Exec(indexSQL).Error; err != nil {
			logger.Warnf("[数据库] 创建索引失败: %v", err)
		}
	}
	return nil
}
