// Package database 定义了文件相关的数据库模型
package database

import (
	"time"
)

// FileMetadata 文件元数据模型
// 一条记录对应存储根目录下的一个文件，StoredName 是磁盘上的文件名
type FileMetadata struct {
	ID               string     `gorm:"primaryKey;size:36" json:"id"`                    // 文件唯一标识符（UUID格式），插入时生成
	OriginalName     string     `gorm:"not null;size:255" json:"original_name"`          // 上传时的文件名，用于下载时的 Content-Disposition
	StoredName       string     `gorm:"uniqueIndex;not null;size:36" json:"stored_name"` // 磁盘上的文件名（UUID格式），不可复用
	Size             int64      `gorm:"not null" json:"size"`                            // 实际写入的字节数
	ContentType      string     `gorm:"not null;size:255" json:"content_type"`           // MIME类型
	UploadDate       time.Time  `gorm:"not null;index" json:"upload_date"`               // 上传时间（UTC）
	LastDownloadDate *time.Time `gorm:"index" json:"last_download_date,omitempty"`       // 最后一次下载时间，从未下载为nil
	DownloadCount    int64      `gorm:"not null;default:0" json:"download_count"`        // 下载次数，只增不减
}

// TableName 指定FileMetadata模型对应的数据库表名
func (FileMetadata) TableName() string {
	return "file_metadata"
}
