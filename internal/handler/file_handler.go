package handler

import (
	stderrors "errors"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/weiwangfds/linkdrop/internal/errors"
	"github.com/weiwangfds/linkdrop/internal/logger"
	"github.com/weiwangfds/linkdrop/internal/response"
	fileservice "github.com/weiwangfds/linkdrop/internal/service/file"
)

// Options 文件处理器选项
type Options struct {
	// MaxUploadBytes 单次上传的请求体上限，0表示不限制
	MaxUploadBytes int64
	// CountOnTransfer 下载完整发送后自动累加下载次数
	CountOnTransfer bool
}

// FileHandler 文件处理器
// @Description 文件上传、临时链接和下载相关的HTTP处理器
type FileHandler struct {
	fileService fileservice.FileService
	opts        Options
}

// NewFileHandler 创建文件处理器实例
func NewFileHandler(fileService fileservice.FileService, opts Options) *FileHandler {
	return &FileHandler{
		fileService: fileService,
		opts:        opts,
	}
}

// ListFiles 获取文件列表
// @Summary 获取文件列表
// @Description 返回全部文件，最新上传的在前
// @Tags 文件管理
// @Produce json
// @Success 200 {object} response.Response "文件列表"
// @Failure 500 {object} response.Response "服务器内部错误"
// @Router /api/v1/files [get]
func (h *FileHandler) ListFiles(c *gin.Context) {
	files, err := h.fileService.ListFiles(c.Request.Context())
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, files)
}

// UploadFile 上传文件
// @Summary 上传文件
// @Description 上传单个文件，返回文件摘要
// @Tags 文件管理
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "要上传的文件"
// @Success 200 {object} response.Response "上传成功"
// @Failure 400 {object} response.Response "未选择文件或文件为空"
// @Failure 413 {object} response.Response "文件过大"
// @Failure 500 {object} response.Response "服务器内部错误"
// @Router /api/v1/files/upload [post]
func (h *FileHandler) UploadFile(c *gin.Context) {
	if h.opts.MaxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.opts.MaxUploadBytes)
	}

	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			response.Error(c, http.StatusRequestEntityTooLarge, errors.ErrInvalidParams, "文件超过大小限制 "+strconv.FormatInt(tooLarge.Limit, 10)+" 字节")
			return
		}
		response.BadRequest(c, "未选择文件或文件无效")
		return
	}

	src, err := header.Open()
	if err != nil {
		response.FromError(c, errors.Wrap(errors.ErrFileReadFailed, "", err))
		return
	}
	defer src.Close()

	uploaded, err := h.fileService.Upload(c.Request.Context(), src, header.Filename, header.Header.Get("Content-Type"), header.Size)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, uploaded)
}

// GetDownloadURL 生成临时下载链接
// @Summary 生成临时下载链接
// @Description 为文件生成一个新的下载链接，链接在服务重启前有效
// @Tags 文件管理
// @Produce json
// @Param uuid query string true "文件ID"
// @Success 200 {object} response.Response "下载链接"
// @Failure 400 {object} response.Response "文件ID为空"
// @Failure 404 {object} response.Response "文件不存在"
// @Router /api/v1/files/get-url [post]
func (h *FileHandler) GetDownloadURL(c *gin.Context) {
	fileID := c.Query("uuid")
	if fileID == "" {
		response.BadRequest(c, "文件ID不能为空")
		return
	}

	url, err := h.fileService.IssueDownloadLink(c.Request.Context(), fileID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, gin.H{"url": url})
}

// DownloadFile 通过临时链接下载文件
// @Summary 下载文件
// @Description 根据令牌下载文件内容
// @Tags 文件管理
// @Produce application/octet-stream
// @Param token path string true "下载令牌"
// @Success 200 {file} file "文件内容"
// @Failure 400 {object} response.Response "令牌格式错误"
// @Failure 404 {object} response.Response "令牌无效或文件不存在"
// @Failure 410 {object} response.Response "文件内容已丢失"
// @Router /api/v1/files/download/{token} [get]
func (h *FileHandler) DownloadFile(c *gin.Context) {
	ctx := c.Request.Context()

	desc, err := h.fileService.ResolveDownload(ctx, c.Param("token"))
	if err != nil {
		response.FromError(c, err)
		return
	}

	src, err := h.fileService.OpenBlob(desc.Path)
	if err != nil {
		response.FromError(c, err)
		return
	}
	defer src.Close()

	c.Header("Content-Type", desc.ContentType)
	c.Header("Content-Length", strconv.FormatInt(desc.Size, 10))
	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": desc.DisplayName}))
	c.Status(http.StatusOK)

	written, err := io.Copy(c.Writer, src)
	if err != nil {
		// 响应头已发出，只能记录
		logger.Warnf("[文件接口] 下载中断 %s: 已发送 %d/%d 字节: %v", desc.FileID, written, desc.Size, err)
		return
	}

	if h.opts.CountOnTransfer {
		if err := h.fileService.RecordDownload(ctx, desc.FileID); err != nil {
			logger.Errorf("[文件接口] 下载完成但累加次数失败 %s: %v", desc.FileID, err)
		}
	}
}

// UpdateDownloadCount 累加下载次数
// @Summary 累加下载次数
// @Description 客户端确认下载完成后调用
// @Tags 文件管理
// @Produce json
// @Param uuid query string true "文件ID"
// @Success 200 {object} response.Response "已更新"
// @Failure 400 {object} response.Response "文件ID为空"
// @Failure 500 {object} response.Response "服务器内部错误"
// @Router /api/v1/files/update-download-count [post]
func (h *FileHandler) UpdateDownloadCount(c *gin.Context) {
	fileID := c.Query("uuid")
	if fileID == "" {
		response.BadRequest(c, "文件ID不能为空")
		return
	}

	if err := h.fileService.RecordDownload(c.Request.Context(), fileID); err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, gin.H{"status": "updated"})
}
