package errors

import (
	stderrors "errors"
	"fmt"

	"github.com/weiwangfds/linkdrop/internal/i18n"
)

// ErrorCode 错误码类型
type ErrorCode int

// 定义错误码常量
const (
	// 通用错误码 (1000-1999)
	ErrSuccess        ErrorCode = 0    // 成功
	ErrInternalServer ErrorCode = 1000 // 服务器内部错误
	ErrInvalidParams  ErrorCode = 1001 // 参数错误（空文件、格式错误的令牌等）

	// 文件相关错误码 (2000-2999)
	ErrFileNotFound     ErrorCode = 2000 // 文件记录不存在
	ErrFileEmpty        ErrorCode = 2001 // 上传内容为空
	ErrFileWriteFailed  ErrorCode = 2005 // 文件写入失败
	ErrFileReadFailed   ErrorCode = 2004 // 文件读取失败
	ErrFileDeleteFailed ErrorCode = 2003 // 文件删除失败
	ErrBlobMissing      ErrorCode = 2010 // 记录存在但磁盘上没有文件内容
	ErrInvalidLink      ErrorCode = 2011 // 临时下载链接无法解析

	// 数据库相关错误码 (4000-4999)
	ErrDatabaseQuery  ErrorCode = 4001 // 数据库查询错误
	ErrDatabaseInsert ErrorCode = 4002 // 数据库插入错误
	ErrDatabaseUpdate ErrorCode = 4003 // 数据库更新错误
	ErrDatabaseDelete ErrorCode = 4004 // 数据库删除错误
)

// AppError 应用错误结构体
type AppError struct {
	// 错误码
	Code ErrorCode `json:"code"`
	// 错误消息
	Message string `json:"message"`
	// 详细错误信息
	Details string `json:"details,omitempty"`
	// 原始错误
	OriginalError error `json:"-"`
}

// Error 实现error接口
func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%d] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap 返回原始错误，便于 errors.Is / errors.As 穿透
func (e *AppError) Unwrap() error {
	return e.OriginalError
}

// Is 按错误码比较，errors.Is(err, errors.New(ErrFileNotFound, "")) 即可判断类别
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithDetails 添加详细错误信息
func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

// New 创建新的应用错误，message为空时使用错误码对应的默认消息
func New(code ErrorCode, message string) *AppError {
	if message == "" {
		message = GetErrorMessage(code)
	}
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Newf 创建带格式化详细信息的应用错误
func Newf(code ErrorCode, format string, args ...interface{}) *AppError {
	return New(code, "").WithDetails(fmt.Sprintf(format, args...))
}

// Wrap 包装原始错误
func Wrap(code ErrorCode, message string, err error) *AppError {
	appErr := New(code, message)
	appErr.OriginalError = err
	if err != nil {
		appErr.Details = err.Error()
	}
	return appErr
}

// GetAppError 从错误链中提取应用错误
func GetAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HasCode 判断错误链中是否包含指定错误码的应用错误
func HasCode(err error, code ErrorCode) bool {
	appErr, ok := GetAppError(err)
	return ok && appErr.Code == code
}

// 错误码到i18n键的映射
var errorCodeToKeyMap = map[ErrorCode]string{
	ErrSuccess:        "success",
	ErrInternalServer: "internal_server_error",
	ErrInvalidParams:  "invalid_params",

	ErrFileNotFound:     "file_not_found",
	ErrFileEmpty:        "file_empty",
	ErrFileWriteFailed:  "file_write_failed",
	ErrFileReadFailed:   "file_read_failed",
	ErrFileDeleteFailed: "file_delete_failed",
	ErrBlobMissing:      "file_blob_missing",
	ErrInvalidLink:      "invalid_link",

	ErrDatabaseQuery:  "database_query",
	ErrDatabaseInsert: "database_insert",
	ErrDatabaseUpdate: "database_update",
	ErrDatabaseDelete: "database_delete",
}

// GetErrorMessage 根据错误码获取错误消息（使用默认语言）
func GetErrorMessage(code ErrorCode) string {
	return GetErrorMessageWithLang(code, i18n.GetInstance().GetDefaultLanguage())
}

// GetErrorMessageWithLang 根据错误码和语言获取错误消息
func GetErrorMessageWithLang(code ErrorCode, lang string) string {
	key, exists := errorCodeToKeyMap[code]
	if !exists {
		key = "unknown_error"
	}
	return i18n.GetInstance().Translate(key, lang)
}
