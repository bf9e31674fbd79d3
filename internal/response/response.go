package response

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/weiwangfds/linkdrop/internal/errors"
)

// Response 统一返回值结构体
// @Description API统一响应格式
type Response struct {
	// 状态码，0表示成功，非0表示失败
	Code int `json:"code" example:"0"`
	// 响应消息
	Message string `json:"message" example:"success"`
	// 响应数据
	Data interface{} `json:"data,omitempty"`
	// 请求ID，用于链路追踪
	RequestID string `json:"request_id,omitempty" example:"9b2f5c1e-8a7d-4c3b-9e0f-1a2b3c4d5e6f"`
	// 时间戳
	Timestamp int64 `json:"timestamp" example:"1640995200"`
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:      int(errors.ErrSuccess),
		Message:   "success",
		Data:      data,
		RequestID: getRequestID(c),
		Timestamp: now().Unix(),
	})
}

// Error 按HTTP状态码返回错误响应
func Error(c *gin.Context, status int, code errors.ErrorCode, message string) {
	c.AbortWithStatusJSON(status, Response{
		Code:      int(code),
		Message:   message,
		RequestID: getRequestID(c),
		Timestamp: now().Unix(),
	})
}

// BadRequest 400错误响应
func BadRequest(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, errors.ErrInvalidParams, message)
}

// InternalServerError 500错误响应
func InternalServerError(c *gin.Context, message string) {
	Error(c, http.StatusInternalServerError, errors.ErrInternalServer, message)
}

// FromError 把服务层错误转换为响应，内部错误不向调用方暴露细节
func FromError(c *gin.Context, err error) {
	appErr, ok := errors.GetAppError(err)
	if !ok {
		_ = c.Error(err)
		InternalServerError(c, errors.GetErrorMessage(errors.ErrInternalServer))
		return
	}

	status := StatusOf(appErr.Code)
	message := appErr.Message
	if status < http.StatusInternalServerError && appErr.Details != "" && appErr.OriginalError == nil {
		message = appErr.Message + ": " + appErr.Details
	}
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	Error(c, status, appErr.Code, message)
}

// StatusOf 错误码对应的HTTP状态码
func StatusOf(code errors.ErrorCode) int {
	switch code {
	case errors.ErrInvalidParams, errors.ErrFileEmpty:
		return http.StatusBadRequest
	case errors.ErrFileNotFound, errors.ErrInvalidLink:
		return http.StatusNotFound
	case errors.ErrBlobMissing:
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}

// getRequestID 从gin上下文中获取请求ID
func getRequestID(c *gin.Context) string {
	if requestID, exists := c.Get("request_id"); exists {
		if id, ok := requestID.(string); ok {
			return id
		}
	}
	return ""
}

// now 便于测试时替换
var now = time.Now
