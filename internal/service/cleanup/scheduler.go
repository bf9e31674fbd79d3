// Package cleanup 定时回收长期未使用的文件
package cleanup

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/weiwangfds/linkdrop/config"
	"github.com/weiwangfds/linkdrop/internal/logger"
	"github.com/weiwangfds/linkdrop/internal/service/file"
)

// Reclaimer 执行一次过期回收
type Reclaimer interface {
	ReclaimStale(ctx context.Context, thresholdDays int) (*file.ReclaimResult, error)
}

// Scheduler 每天在固定时刻执行一次过期回收
// 回收在单个协程内同步执行，相邻两次不会重叠
type Scheduler struct {
	reclaimer     Reclaimer
	thresholdDays int
	hour          int
	minute        int
	runOnStart    bool
	now           func() time.Time

	stopChan  chan struct{}
	wg        sync.WaitGroup
	isRunning bool
	mu        sync.Mutex

	// runMu 保证同一进程内 RunOnce 和定时触发不会同时执行；
	// reclaim 命令在另一个进程中运行不受其约束，重复删除文件或记录都是无操作
	runMu sync.Mutex
}

// NewScheduler 创建回收调度器，RunAt 无法解析时使用 02:00
func NewScheduler(reclaimer Reclaimer, cfg config.RetentionConfig) *Scheduler {
	hour, minute, err := cfg.RunAtClock()
	if err != nil {
		logger.Warnf("[清理任务] %v，使用默认时间 02:00", err)
		hour, minute = 2, 0
	}

	logger.Infof("[清理任务] 每天 %02d:%02d 回收超过 %d 天未使用的文件", hour, minute, cfg.ThresholdDays)
	return &Scheduler{
		reclaimer:     reclaimer,
		thresholdDays: cfg.ThresholdDays,
		hour:          hour,
		minute:        minute,
		runOnStart:    cfg.RunOnStart,
		now:           time.Now,
	}
}

// Start 启动调度协程
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("cleanup scheduler is already running")
	}

	s.stopChan = make(chan struct{})
	s.isRunning = true

	s.wg.Add(1)
	go s.loop(ctx, s.stopChan)

	logger.Infof("[清理任务] 调度已启动，下次执行时间: %s", nextRun(s.now(), s.hour, s.minute).Format("2006-01-02 15:04"))
	return nil
}

// Stop 停止调度，正在执行的回收会先完成
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return nil
	}

	close(s.stopChan)
	s.wg.Wait()

	s.isRunning = false
	logger.Info("[清理任务] 调度已停止")
	return nil
}

// RunOnce 立即执行一次回收
func (s *Scheduler) RunOnce(ctx context.Context) (*file.ReclaimResult, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	logger.Infof("[清理任务] 开始回收超过 %d 天未使用的文件", s.thresholdDays)
	result, err := s.reclaimer.ReclaimStale(ctx, s.thresholdDays)
	if err != nil {
		logger.Errorf("[清理任务] 回收失败: %v", err)
		return nil, err
	}
	return result, nil
}

func (s *Scheduler) loop(ctx context.Context, stop <-chan struct{}) {
	defer s.wg.Done()

	if s.runOnStart {
		s.RunOnce(ctx)
	}

	for {
		now := s.now()
		timer := time.NewTimer(nextRun(now, s.hour, s.minute).Sub(now))

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-stop:
			timer.Stop()
			return
		case <-timer.C:
			s.RunOnce(ctx)
		}
	}
}

// nextRun 返回 now 之后第一个 hour:minute 时刻，恰好相等时取第二天
func nextRun(now time.Time, hour, minute int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
