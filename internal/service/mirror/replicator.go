package mirror

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/weiwangfds/linkdrop/internal/logger"
	"github.com/weiwangfds/linkdrop/internal/metrics"
)

// Job 一次镜像任务
type Job struct {
	StoredName  string
	Path        string
	ContentType string
}

// Opener 按路径打开本地文件
type Opener func(path string) (io.ReadCloser, error)

// Replicator 后台把本地文件上传到对象存储
// 任务进入有界队列，由单个工作协程顺序处理，队列满时任务被丢弃
type Replicator struct {
	provider Provider
	open     Opener
	prefix   string
	queue    chan Job

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// pending 记录已入队但未处理完的任务，值为true表示处理期间本地文件已被回收
	pendingMu sync.Mutex
	pending   map[string]bool
}

// NewReplicator 创建镜像复制器
func NewReplicator(provider Provider, open Opener, prefix string, queueSize int) *Replicator {
	if queueSize <= 0 {
		queueSize = 100
	}
	return &Replicator{
		provider: provider,
		open:     open,
		prefix:   prefix,
		queue:    make(chan Job, queueSize),
		pending:  make(map[string]bool),
	}
}

// ObjectKey 返回文件在对象存储中的键
func (r *Replicator) ObjectKey(storedName string) string {
	if r.prefix == "" {
		return storedName
	}
	return path.Join(r.prefix, storedName)
}

// Start 启动工作协程
func (r *Replicator) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return errors.New("replicator is already running")
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true

	r.wg.Add(1)
	go r.worker(ctx)

	logger.Infof("[镜像服务] 已启动，队列容量 %d", cap(r.queue))
	return nil
}

// Stop 停止工作协程，队列中未处理的任务会被丢弃
func (r *Replicator) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.cancel()
	r.mu.Unlock()

	r.wg.Wait()

	if pending := len(r.queue); pending > 0 {
		logger.Warnf("[镜像服务] 停止时丢弃 %d 个未处理的任务", pending)
	}
	logger.Info("[镜像服务] 已停止")
}

// Enqueue 提交镜像任务，队列已满时返回false
func (r *Replicator) Enqueue(job Job) bool {
	r.pendingMu.Lock()
	r.pending[job.StoredName] = false
	r.pendingMu.Unlock()

	select {
	case r.queue <- job:
		return true
	default:
		r.finish(job.StoredName)
		metrics.MirrorUploadsTotal.WithLabelValues("dropped").Inc()
		logger.Warnf("[镜像服务] 队列已满，放弃镜像 %s", job.StoredName)
		return false
	}
}

// Remove 删除对象存储中的副本
// 任务仍在队列中或正在上传时先做标记，上传完成后由工作协程再删一次
func (r *Replicator) Remove(ctx context.Context, storedName string) error {
	r.pendingMu.Lock()
	if _, ok := r.pending[storedName]; ok {
		r.pending[storedName] = true
	}
	r.pendingMu.Unlock()

	return r.provider.Delete(ctx, r.ObjectKey(storedName))
}

func (r *Replicator) removed(storedName string) bool {
	r.pendingMu.Lock()
	defer r.pendingMu.Unlock()
	return r.pending[storedName]
}

// finish 清除任务标记，返回处理期间文件是否已被回收
func (r *Replicator) finish(storedName string) bool {
	r.pendingMu.Lock()
	defer r.pendingMu.Unlock()
	removed := r.pending[storedName]
	delete(r.pending, storedName)
	return removed
}

func (r *Replicator) worker(ctx context.Context) {
	defer r.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-r.queue:
			r.replicate(ctx, job)
		}
	}
}

func (r *Replicator) replicate(ctx context.Context, job Job) {
	start := time.Now()
	key := r.ObjectKey(job.StoredName)
	entry := logger.WithFields(logrus.Fields{
		"stored_name": job.StoredName,
		"key":         key,
	})

	if r.removed(job.StoredName) {
		r.finish(job.StoredName)
		metrics.MirrorUploadsTotal.WithLabelValues("skipped").Inc()
		entry.Info("[镜像服务] 本地文件已回收，跳过")
		return
	}

	// 存储名唯一，对象已存在说明之前已经镜像过
	if exists, err := r.provider.Exists(ctx, key); err != nil {
		entry.Warnf("[镜像服务] 检查对象是否存在失败: %v", err)
	} else if exists {
		r.finish(job.StoredName)
		metrics.MirrorUploadsTotal.WithLabelValues("skipped").Inc()
		entry.Info("[镜像服务] 对象已存在，跳过")
		return
	}

	err := r.upload(ctx, key, job)
	if r.finish(job.StoredName) && err == nil {
		// 上传期间文件已被回收，删除刚写入的副本
		if delErr := r.provider.Delete(ctx, key); delErr != nil {
			entry.Warnf("[镜像服务] 删除已回收文件的副本失败: %v", delErr)
		}
		metrics.MirrorUploadsTotal.WithLabelValues("skipped").Inc()
		return
	}
	if err != nil {
		metrics.MirrorUploadsTotal.WithLabelValues("failed").Inc()
		entry.Errorf("[镜像服务] 上传失败: %v", err)
		return
	}

	metrics.MirrorUploadsTotal.WithLabelValues("success").Inc()
	entry.Infof("[镜像服务] 上传完成，耗时 %s", time.Since(start).Round(time.Millisecond))
}

func (r *Replicator) upload(ctx context.Context, key string, job Job) error {
	f, err := r.open(job.Path)
	if err != nil {
		return fmt.Errorf("open local file: %w", err)
	}
	defer f.Close()
	return r.provider.Upload(ctx, key, f, job.ContentType)
}
