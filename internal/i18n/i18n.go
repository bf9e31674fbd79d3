// Package i18n 提供国际化支持
// 负责管理错误消息的语言包和翻译功能
package i18n

import (
	"sync"

	"github.com/go-playground/locales/en_US"
	"github.com/go-playground/locales/zh"
	ut "github.com/go-playground/universal-translator"
)

// 支持的语言
const (
	LangZhCN = "zh-CN"
	LangEnUS = "en-US"
)

var (
	instance *I18n
	once     sync.Once

	// 语言包存储
	translations = map[string]map[string]string{
		LangZhCN: {
			"success":               "成功",
			"internal_server_error": "服务器内部错误",
			"invalid_params":        "参数错误",
			"not_found":             "资源未找到",

			"file_not_found":     "文件未找到",
			"file_empty":         "文件为空",
			"file_write_failed":  "文件写入失败",
			"file_read_failed":   "文件读取失败",
			"file_delete_failed": "文件删除失败",
			"file_blob_missing":  "文件内容已丢失",
			"invalid_link":       "下载链接无效",

			"database_query":  "数据库查询错误",
			"database_insert": "数据库插入错误",
			"database_update": "数据库更新错误",
			"database_delete": "数据库删除错误",

			"unknown_error": "未知错误",
		},
		LangEnUS: {
			"success":               "Success",
			"internal_server_error": "Internal Server Error",
			"invalid_params":        "Invalid Parameters",
			"not_found":             "Resource Not Found",

			"file_not_found":     "File Not Found",
			"file_empty":         "File Is Empty",
			"file_write_failed":  "File Write Failed",
			"file_read_failed":   "File Read Failed",
			"file_delete_failed": "File Delete Failed",
			"file_blob_missing":  "File Content Missing",
			"invalid_link":       "Invalid Download Link",

			"database_query":  "Database Query Error",
			"database_insert": "Database Insert Error",
			"database_update": "Database Update Error",
			"database_delete": "Database Delete Error",

			"unknown_error": "Unknown Error",
		},
	}
)

// I18n 国际化管理器
type I18n struct {
	mu          sync.RWMutex
	translators map[string]ut.Translator
	defaultLang string
}

// GetInstance 获取I18n单例
func GetInstance() *I18n {
	once.Do(func() {
		instance = &I18n{
			translators: make(map[string]ut.Translator),
			defaultLang: LangZhCN,
		}
		instance.initTranslators()
	})
	return instance
}

// initTranslators 初始化翻译器
func (i *I18n) initTranslators() {
	zhCN := zh.New()
	enUS := en_US.New()
	uni := ut.New(zhCN, zhCN, enUS)

	langMappings := map[string]string{
		LangZhCN: "zh",
		LangEnUS: "en_US",
	}

	for ourLang, localeLang := range langMappings {
		if trans, found := uni.GetTranslator(localeLang); found {
			i.translators[ourLang] = trans
		}
	}
}

// Translate 根据键和语言获取翻译，找不到时回退到默认语言，再找不到返回键本身
func (i *I18n) Translate(key, lang string) string {
	i.mu.RLock()
	defaultLang := i.defaultLang
	i.mu.RUnlock()

	if _, ok := i.translators[lang]; !ok {
		lang = defaultLang
	}

	if translation, found := translations[lang][key]; found {
		return translation
	}
	if lang != defaultLang {
		if translation, found := translations[defaultLang][key]; found {
			return translation
		}
	}
	return key
}

// SetDefaultLanguage 设置默认语言，不支持的语言会被忽略
func (i *I18n) SetDefaultLanguage(lang string) {
	if !i.IsSupportedLanguage(lang) {
		return
	}
	i.mu.Lock()
	i.defaultLang = lang
	i.mu.Unlock()
}

// GetDefaultLanguage 获取默认语言
func (i *I18n) GetDefaultLanguage() string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.defaultLang
}

// IsSupportedLanguage 检查语言是否支持
func (i *I18n) IsSupportedLanguage(lang string) bool {
	_, exists := i.translators[lang]
	return exists
}
