// Package file 提供文件上传、临时下载链接和过期回收的业务逻辑
// 文件内容和元数据分别保存，本包负责在两者之间保持一致
package file

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/weiwangfds/linkdrop/config"
	"github.com/weiwangfds/linkdrop/internal/database"
	"github.com/weiwangfds/linkdrop/internal/errors"
	"github.com/weiwangfds/linkdrop/internal/logger"
	"github.com/weiwangfds/linkdrop/internal/metrics"
	"github.com/weiwangfds/linkdrop/internal/repository"
	"github.com/weiwangfds/linkdrop/internal/service/link"
	"github.com/weiwangfds/linkdrop/internal/service/mirror"
)

const (
	// DefaultContentType 无法识别类型时使用的MIME类型
	DefaultContentType = "application/octet-stream"

	// sniffLen 用于识别内容类型的头部字节数
	sniffLen = 3072
)

// FileResponse 文件摘要，不包含磁盘上的文件名和路径
type FileResponse struct {
	ID           string    `json:"id"`
	OriginalName string    `json:"original_name"`
	Size         int64     `json:"size"`
	ContentType  string    `json:"content_type"`
	UploadDate   time.Time `json:"upload_date"`
}

// DownloadDescriptor 下载一个文件所需的全部信息
type DownloadDescriptor struct {
	FileID      string
	Path        string
	ContentType string
	DisplayName string
	Size        int64
}

// ReclaimResult 一次过期回收的结果
type ReclaimResult struct {
	Candidates int           `json:"candidates"`
	Reclaimed  int           `json:"reclaimed"`
	Failed     int           `json:"failed"`
	FreedBytes int64         `json:"freed_bytes"`
	Duration   time.Duration `json:"duration"`
}

// BlobStore 文件内容存储
type BlobStore interface {
	Put(r io.Reader) (storedName string, written int64, err error)
	Resolve(storedName string) string
	Exists(path string) bool
	Open(path string) (afero.File, error)
	Delete(path string) error
}

// Mirror 对象存储镜像
type Mirror interface {
	Enqueue(job mirror.Job) bool
	Remove(ctx context.Context, storedName string) error
}

// FileService 文件服务接口
type FileService interface {
	// Upload 保存上传的文件
	// 参数:
	//   - r: 文件数据流
	//   - displayName: 展示用文件名，为空时自动生成
	//   - contentType: MIME类型，为空时根据内容识别
	//   - declaredSize: 客户端声明的大小，为0时直接拒绝
	// 返回值:
	//   - *FileResponse: 文件摘要
	//   - error: ErrFileEmpty、ErrFileWriteFailed 或 ErrDatabaseInsert
	Upload(ctx context.Context, r io.Reader, displayName, contentType string, declaredSize int64) (*FileResponse, error)

	// ListFiles 列出所有文件，最新上传的在前
	ListFiles(ctx context.Context) ([]FileResponse, error)

	// IssueDownloadLink 为文件生成一个新的临时下载链接
	IssueDownloadLink(ctx context.Context, fileID string) (string, error)

	// ResolveDownload 解析下载令牌，不会累加下载次数
	ResolveDownload(ctx context.Context, token string) (*DownloadDescriptor, error)

	// OpenBlob 打开已解析的文件内容，调用者负责关闭
	OpenBlob(path string) (io.ReadCloser, error)

	// RecordDownload 累加下载次数，应在文件内容完整发送后调用
	RecordDownload(ctx context.Context, fileID string) error

	// ReclaimStale 删除超过 thresholdDays 天未被使用的文件
	// 单个文件失败只记录日志，不影响其余文件
	ReclaimStale(ctx context.Context, thresholdDays int) (*ReclaimResult, error)
}

// Option 文件服务选项
type Option func(*fileService)

// WithMirror 上传成功后把文件交给镜像服务，回收时同步删除副本
func WithMirror(m Mirror) Option {
	return func(s *fileService) {
		s.mirror = m
	}
}

// WithClock 替换生成默认文件名时使用的时间来源
func WithClock(now func() time.Time) Option {
	return func(s *fileService) {
		s.now = now
	}
}

type fileService struct {
	repo    repository.FileMetadataRepository
	blobs   BlobStore
	links   link.Registry
	baseURL string
	mirror  Mirror
	now     func() time.Time
}

// NewFileService 创建文件服务实例
func NewFileService(repo repository.FileMetadataRepository, blobs BlobStore, links link.Registry, cfg config.FileConfig, opts ...Option) FileService {
	s := &fileService{
		repo:    repo,
		blobs:   blobs,
		links:   links,
		baseURL: strings.TrimRight(cfg.DownloadBaseURL, "/"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	logger.Infof("[文件服务] 初始化完成，存储目录: %s，下载地址前缀: %s", cfg.StoragePath, s.baseURL)
	return s
}

func (s *fileService) Upload(ctx context.Context, r io.Reader, displayName, contentType string, declaredSize int64) (*FileResponse, error) {
	if declaredSize == 0 {
		metrics.UploadsTotal.WithLabelValues("rejected").Inc()
		return nil, errors.New(errors.ErrFileEmpty, "")
	}

	if displayName == "" {
		displayName = fmt.Sprintf("uploaded_file_%d", s.now().UnixMilli())
	}

	if contentType == "" {
		detected, body, err := sniffContentType(r)
		if err != nil {
			metrics.UploadsTotal.WithLabelValues("failed").Inc()
			logger.Errorf("[文件服务] 读取上传内容失败 %s: %v", displayName, err)
			return nil, errors.Wrap(errors.ErrFileReadFailed, "", err)
		}
		contentType, r = detected, body
	}

	storedName, written, err := s.blobs.Put(r)
	if err != nil {
		metrics.UploadsTotal.WithLabelValues("failed").Inc()
		logger.Errorf("[文件服务] 写入文件失败 %s: %v", displayName, err)
		return nil, errors.Wrap(errors.ErrFileWriteFailed, "", err)
	}
	path := s.blobs.Resolve(storedName)

	if written == 0 {
		metrics.UploadsTotal.WithLabelValues("rejected").Inc()
		if err := s.blobs.Delete(path); err != nil {
			logger.Warnf("[文件服务] 删除空文件失败 %s: %v", storedName, err)
		}
		return nil, errors.New(errors.ErrFileEmpty, "")
	}

	record, err := s.repo.Insert(ctx, &database.FileMetadata{
		OriginalName: displayName,
		StoredName:   storedName,
		Size:         written,
		ContentType:  contentType,
	})
	if err != nil {
		metrics.UploadsTotal.WithLabelValues("failed").Inc()
		// 文件已落盘但没有对应记录，留给人工对账
		logger.WithFields(logrus.Fields{
			"stored_name": storedName,
			"path":        path,
			"size":        written,
		}).Errorf("[文件服务] 保存元数据失败，遗留孤立文件: %v", err)
		return nil, errors.Wrap(errors.ErrDatabaseInsert, "", err)
	}

	if s.mirror != nil {
		s.mirror.Enqueue(mirror.Job{
			StoredName:  storedName,
			Path:        path,
			ContentType: contentType,
		})
	}

	metrics.UploadsTotal.WithLabelValues("success").Inc()
	metrics.UploadBytesTotal.Add(float64(written))
	logger.Infof("[文件服务] 上传完成: %s (ID: %s, %s, %s)", displayName, record.ID, humanize.IBytes(uint64(written)), contentType)

	resp := toResponse(record)
	return &resp, nil
}

// sniffContentType 读取头部识别内容类型，返回的 Reader 仍包含完整内容
func sniffContentType(r io.Reader) (string, io.Reader, error) {
	header := make([]byte, sniffLen)
	n, err := io.ReadFull(r, header)
	if err != nil && !stderrors.Is(err, io.EOF) && !stderrors.Is(err, io.ErrUnexpectedEOF) {
		return "", nil, err
	}
	header = header[:n]

	contentType := DefaultContentType
	if n > 0 {
		contentType = mimetype.Detect(header).String()
	}
	return contentType, io.MultiReader(bytes.NewReader(header), r), nil
}

func (s *fileService) ListFiles(ctx context.Context) ([]FileResponse, error) {
	records, err := s.repo.FindAll(ctx)
	if err != nil {
		logger.Errorf("[文件服务] 查询文件列表失败: %v", err)
		return nil, errors.Wrap(errors.ErrDatabaseQuery, "", err)
	}

	files := make([]FileResponse, 0, len(records))
	for i := range records {
		files = append(files, toResponse(&records[i]))
	}
	return files, nil
}

func (s *fileService) IssueDownloadLink(ctx context.Context, fileID string) (string, error) {
	if _, err := s.findRecord(ctx, fileID); err != nil {
		return "", err
	}

	token, err := s.links.Issue(fileID)
	if err != nil {
		logger.Errorf("[文件服务] 生成下载令牌失败 %s: %v", fileID, err)
		return "", errors.Wrap(errors.ErrInternalServer, "", err)
	}

	metrics.LinksIssuedTotal.Inc()
	logger.Debugf("[文件服务] 已为文件 %s 生成下载链接", fileID)
	return s.baseURL + "/" + token, nil
}

func (s *fileService) ResolveDownload(ctx context.Context, token string) (*DownloadDescriptor, error) {
	if _, err := uuid.Parse(token); err != nil {
		return nil, errors.Newf(errors.ErrInvalidParams, "malformed download token")
	}

	fileID, err := s.links.Resolve(token)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInvalidLink, "", err)
	}

	record, err := s.findRecord(ctx, fileID)
	if err != nil {
		if errors.HasCode(err, errors.ErrFileNotFound) {
			logger.Infof("[文件服务] 令牌指向的文件已被回收: %s", fileID)
		}
		return nil, err
	}

	path := s.blobs.Resolve(record.StoredName)
	if !s.blobs.Exists(path) {
		// 记录保留，等待下一次回收
		logger.WithFields(logrus.Fields{
			"file_id":     record.ID,
			"stored_name": record.StoredName,
		}).Warn("[文件服务] 元数据存在但文件内容缺失")
		return nil, errors.New(errors.ErrBlobMissing, "")
	}

	return &DownloadDescriptor{
		FileID:      record.ID,
		Path:        path,
		ContentType: record.ContentType,
		DisplayName: record.OriginalName,
		Size:        record.Size,
	}, nil
}

func (s *fileService) OpenBlob(path string) (io.ReadCloser, error) {
	f, err := s.blobs.Open(path)
	if err != nil {
		logger.Errorf("[文件服务] 打开文件失败 %s: %v", path, err)
		return nil, errors.Wrap(errors.ErrFileReadFailed, "", err)
	}
	return f, nil
}

func (s *fileService) RecordDownload(ctx context.Context, fileID string) error {
	if err := s.repo.IncrementDownloadCount(ctx, fileID); err != nil {
		logger.Errorf("[文件服务] 更新下载次数失败 %s: %v", fileID, err)
		return errors.Wrap(errors.ErrDatabaseUpdate, "", err)
	}
	metrics.DownloadsRecordedTotal.Inc()
	return nil
}

func (s *fileService) ReclaimStale(ctx context.Context, thresholdDays int) (*ReclaimResult, error) {
	start := time.Now()
	metrics.ReclaimRunsTotal.Inc()

	candidates, err := s.repo.FindStale(ctx, thresholdDays)
	if err != nil {
		logger.Errorf("[文件服务] 查询过期文件失败: %v", err)
		return nil, errors.Wrap(errors.ErrDatabaseQuery, "", err)
	}

	result := &ReclaimResult{Candidates: len(candidates)}
	var freed int64
	for i := range candidates {
		if err := ctx.Err(); err != nil {
			logger.Warnf("[文件服务] 回收被中断，剩余 %d 个文件未处理", len(candidates)-i)
			break
		}
		record := &candidates[i]
		if err := s.reclaimOne(ctx, record); err != nil {
			result.Failed++
			fields := logrus.Fields{
				"file_id":     record.ID,
				"stored_name": record.StoredName,
			}
			if appErr, ok := errors.GetAppError(err); ok {
				fields["code"] = appErr.Code
			}
			logger.WithFields(fields).Errorf("[文件服务] 回收失败: %v", err)
			continue
		}
		result.Reclaimed++
		freed += record.Size
		logger.Debugf("[文件服务] 已回收 %s", record.OriginalName)
	}

	result.FreedBytes = freed
	result.Duration = time.Since(start)
	metrics.ReclaimedFilesTotal.Add(float64(result.Reclaimed))
	metrics.ReclaimFailuresTotal.Add(float64(result.Failed))
	metrics.ReclaimDurationSeconds.Observe(result.Duration.Seconds())

	logger.Infof("[文件服务] 回收完成: 候选 %d，成功 %d，失败 %d，释放 %s，耗时 %s",
		result.Candidates, result.Reclaimed, result.Failed, humanize.IBytes(uint64(freed)), result.Duration.Round(time.Millisecond))
	return result, nil
}

// reclaimOne 先删文件内容再删记录，中途失败最多留下一条没有内容的记录
// reclaimOne 回收单个文件，先删文件再删记录，文件删除失败时保留记录等待下次回收
func (s *fileService) reclaimOne(ctx context.Context, record *database.FileMetadata) error {
	if err := s.blobs.Delete(s.blobs.Resolve(record.StoredName)); err != nil {
		return errors.Wrap(errors.ErrFileDeleteFailed, "", err)
	}

	if err := s.repo.Delete(ctx, record.ID); err != nil {
		return errors.Wrap(errors.ErrDatabaseDelete, "", err)
	}

	if s.mirror != nil {
		if err := s.mirror.Remove(ctx, record.StoredName); err != nil {
			logger.WithField("stored_name", record.StoredName).Warnf("[文件服务] 删除镜像副本失败: %v", err)
		}
	}
	return nil
}

// findRecord 查询记录并转换为应用错误
func (s *fileService) findRecord(ctx context.Context, fileID string) (*database.FileMetadata, error) {
	record, err := s.repo.FindByID(ctx, fileID)
	if err != nil {
		if stderrors.Is(err, repository.ErrRecordNotFound) {
			return nil, errors.Newf(errors.ErrFileNotFound, "file id %s", fileID)
		}
		logger.Errorf("[文件服务] 查询文件失败 %s: %v", fileID, err)
		return nil, errors.Wrap(errors.ErrDatabaseQuery, "", err)
	}
	return record, nil
}

func toResponse(record *database.FileMetadata) FileResponse {
	return FileResponse{
		ID:           record.ID,
		OriginalName: record.OriginalName,
		Size:         record.Size,
		ContentType:  record.ContentType,
		UploadDate:   record.UploadDate,
	}
}
