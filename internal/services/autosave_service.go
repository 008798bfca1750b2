// internal/services/autosave_service.go
package services

import (
	"bytes"
	"sync"
	"time"

	"github.com/WovenInk/StoryLoom/internal/metrics"
	"github.com/WovenInk/StoryLoom/internal/utils"
)

// AutosaveStatus 自动保存状态机的状态
type AutosaveStatus string

const (
	AutosaveIdle    AutosaveStatus = "idle"
	AutosaveUnsaved AutosaveStatus = "unsaved"
	AutosaveSaving  AutosaveStatus = "saving"
	AutosaveSaved   AutosaveStatus = "saved"
)

// savedDisplayDelay "saved"状态的展示时长，之后回到"idle"。
// 纯展示用途，不代表持久性语义。
const savedDisplayDelay = 1500 * time.Millisecond

// ProjectPersister 自动保存所需的项目状态访问接口
type ProjectPersister interface {
	// SerializeActive 返回活动项目的序列化形态，无活动项目时为nil
	SerializeActive() []byte
	// CommitActive 将活动项目合并进集合并落盘，返回提交时的序列化形态
	CommitActive() ([]byte, error)
}

// AutosaveService 去抖自动保存控制器。
// 每次检测到活动项目相对基线的变更时进入unsaved并重置去抖计时器
// （计时器从不叠加）；计时器到期后执行合并写入；写入失败保持可重试
// 状态并上报错误，不得谎称已保存。
type AutosaveService struct {
	mu       sync.Mutex
	projects ProjectPersister
	delay    time.Duration

	timer     *time.Timer // 去抖计时器
	idleTimer *time.Timer // saved->idle 展示计时器
	status    AutosaveStatus
	baseline  []byte // 上次成功保存时的序列化形态
	lastErr   error

	onStatus func(status AutosaveStatus, err error)
}

// NewAutosaveService 创建自动保存控制器
func NewAutosaveService(projects ProjectPersister, delay time.Duration) *AutosaveService {
	return &AutosaveService{
		projects: projects,
		delay:    delay,
		status:   AutosaveIdle,
	}
}

// SetStatusHook 注册状态变更钩子（WebSocket推送使用）。
// 钩子在持锁状态下调用，不得回调本服务。
func (s *AutosaveService) SetStatusHook(fn func(status AutosaveStatus, err error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onStatus = fn
}

// Status 返回当前状态与最近一次保存错误
func (s *AutosaveService) Status() (AutosaveStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status, s.lastErr
}

func (s *AutosaveService) emitLocked() {
	if s.onStatus != nil {
		s.onStatus(s.status, s.lastErr)
	}
}

// NotifyMutation 由项目服务的变更钩子调用：对比基线，有差异则进入
// unsaved并重置去抖计时器。
func (s *AutosaveService) NotifyMutation() {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.projects.SerializeActive()
	if snapshot == nil {
		return
	}
	if bytes.Equal(snapshot, s.baseline) {
		return
	}

	if s.idleTimer != nil {
		s.idleTimer.Stop()
		s.idleTimer = nil
	}

	s.status = AutosaveUnsaved
	s.emitLocked()

	// 重置去抖计时器，绝不叠加
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.delay, s.autoFlush)
}

// autoFlush 去抖计时器到期回调
func (s *AutosaveService) autoFlush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushLocked()
}

// SaveNow 手动保存：取消挂起的去抖计时器并立即执行合并写入
func (s *AutosaveService) SaveNow() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	return s.flushLocked()
}

// flushLocked 执行一次合并写入。调用方需持锁。
func (s *AutosaveService) flushLocked() error {
	s.status = AutosaveSaving
	s.emitLocked()

	saved, err := s.projects.CommitActive()
	if err != nil {
		// 写入失败：状态保持可重试（回到unsaved），错误对用户可见，
		// 下一次变更或手动保存可重试；绝不谎称saved。
		metrics.AutosaveTotal.WithLabelValues("error").Inc()
		utils.GetLogger().Errorf("自动保存失败: %v", err)
		s.status = AutosaveUnsaved
		s.lastErr = err
		s.emitLocked()
		return err
	}

	metrics.AutosaveTotal.WithLabelValues("ok").Inc()
	s.baseline = saved
	s.lastErr = nil
	s.status = AutosaveSaved
	s.emitLocked()

	// saved状态短暂展示后回到idle
	if s.idleTimer != nil {
		s.idleTimer.Stop()
	}
	s.idleTimer = time.AfterFunc(savedDisplayDelay, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.status == AutosaveSaved {
			s.status = AutosaveIdle
			s.emitLocked()
		}
	})

	return nil
}

// ResetBaseline 活动项目切换（打开或新建）时调用：以新项目的序列化
// 形态为基线并强制回到idle，避免刚加载的项目被立即标记为未保存。
func (s *AutosaveService) ResetBaseline() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.idleTimer != nil {
		s.idleTimer.Stop()
		s.idleTimer = nil
	}

	s.baseline = s.projects.SerializeActive()
	s.lastErr = nil
	s.status = AutosaveIdle
	s.emitLocked()
}

// Stop 停止所有挂起的计时器（应用关闭时调用）
func (s *AutosaveService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.idleTimer != nil {
		s.idleTimer.Stop()
		s.idleTimer = nil
	}
}
