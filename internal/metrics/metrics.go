// Package metrics 定义服务暴露的 Prometheus 指标
// 业务指标在服务层更新，HTTP 指标由中间件更新
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 文件业务指标
var (
	// UploadsTotal 上传次数，按结果区分
	UploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "linkdrop_uploads_total",
		Help: "上传请求总数",
	}, []string{"result"})

	// UploadBytesTotal 成功写入的字节数
	UploadBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "linkdrop_upload_bytes_total",
		Help: "成功上传的字节总数",
	})

	// LinksIssuedTotal 生成的临时下载链接数
	LinksIssuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "linkdrop_links_issued_total",
		Help: "生成的临时下载链接总数",
	})

	// DownloadsRecordedTotal 记录的下载次数
	DownloadsRecordedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "linkdrop_downloads_recorded_total",
		Help: "记录的下载总次数",
	})
)

// 过期回收指标
var (
	ReclaimRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "linkdrop_reclaim_runs_total",
		Help: "过期回收执行次数",
	})

	ReclaimedFilesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "linkdrop_reclaimed_files_total",
		Help: "被回收的文件总数",
	})

	ReclaimFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "linkdrop_reclaim_failures_total",
		Help: "回收单个文件失败的次数",
	})

	ReclaimDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "linkdrop_reclaim_duration_seconds",
		Help:    "一次过期回收的耗时（秒）",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
	})
)

// MirrorUploadsTotal 镜像上传次数，result 取值 success、failed、dropped、skipped
var MirrorUploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "linkdrop_mirror_uploads_total",
	Help: "镜像到对象存储的上传次数",
}, []string{"result"})

// HTTP 指标
var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "linkdrop_http_requests_total",
		Help: "HTTP请求总数",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "linkdrop_http_request_duration_seconds",
		Help:    "HTTP请求耗时（秒）",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})
)

var activeLinksOnce sync.Once

// RegisterActiveLinks 注册当前有效临时链接数的指标，只有第一次调用生效
func RegisterActiveLinks(count func() int) {
	activeLinksOnce.Do(func() {
		promauto.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "linkdrop_active_links",
			Help: "内存中登记的临时下载链接数",
		}, func() float64 {
			return float64(count())
		})
	})
}
