// internal/services/autosave_service_test.go
package services

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// fakePersister 可控的项目状态桩：记录提交次数，可注入失败
type fakePersister struct {
	mu        sync.Mutex
	state     []byte
	commits   int
	failNext  bool
	commitErr error
}

func (f *fakePersister) SerializeActive() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakePersister) CommitActive() ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failNext {
		f.failNext = false
		return nil, f.commitErr
	}
	f.commits++
	return f.state, nil
}

func (f *fakePersister) setState(s string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = []byte(s)
}

func (f *fakePersister) commitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.commits
}

// waitForStatus 轮询等待状态机到达期望状态
func waitForStatus(t *testing.T, s *AutosaveService, want AutosaveStatus) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if status, _ := s.Status(); status == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	status, _ := s.Status()
	t.Fatalf("等待状态 %s 超时，当前状态: %s", want, status)
}

// TestDebounceCoalescesBurst 测试快速连续变更只产生一次写入
func TestDebounceCoalescesBurst(t *testing.T) {
	persister := &fakePersister{}
	autosave := NewAutosaveService(persister, 50*time.Millisecond)
	defer autosave.Stop()

	persister.setState("v0")
	autosave.ResetBaseline()

	// 模拟一串快速编辑
	for i := 1; i <= 5; i++ {
		persister.setState(fmt.Sprintf("v%d", i))
		autosave.NotifyMutation()
		time.Sleep(10 * time.Millisecond)
	}

	if status, _ := autosave.Status(); status != AutosaveUnsaved {
		t.Errorf("去抖窗口内应该处于unsaved状态，实际: %s", status)
	}

	waitForStatus(t, autosave, AutosaveSaved)

	if got := persister.commitCount(); got != 1 {
		t.Errorf("连续变更应该合并为一次写入，实际写入次数: %d", got)
	}
}

// TestNoWriteWhenUnchanged 测试与基线相同的状态不触发保存
func TestNoWriteWhenUnchanged(t *testing.T) {
	persister := &fakePersister{}
	autosave := NewAutosaveService(persister, 20*time.Millisecond)
	defer autosave.Stop()

	persister.setState("same")
	autosave.ResetBaseline()

	autosave.NotifyMutation()
	time.Sleep(60 * time.Millisecond)

	if got := persister.commitCount(); got != 0 {
		t.Errorf("状态未变化时不应该写入，实际写入次数: %d", got)
	}
	if status, _ := autosave.Status(); status != AutosaveIdle {
		t.Errorf("状态未变化时应该保持idle，实际: %s", status)
	}
}

// TestSaveNowCancelsTimer 测试手动保存取消挂起的去抖计时器
func TestSaveNowCancelsTimer(t *testing.T) {
	persister := &fakePersister{}
	autosave := NewAutosaveService(persister, 10*time.Second)
	defer autosave.Stop()

	persister.setState("v0")
	autosave.ResetBaseline()

	persister.setState("v1")
	autosave.NotifyMutation()

	if err := autosave.SaveNow(); err != nil {
		t.Fatalf("手动保存失败: %v", err)
	}
	if got := persister.commitCount(); got != 1 {
		t.Fatalf("手动保存应该立即写入，实际写入次数: %d", got)
	}

	// 等待超出原去抖窗口的时间片段，确认计时器已被取消
	time.Sleep(50 * time.Millisecond)
	if got := persister.commitCount(); got != 1 {
		t.Errorf("取消计时器后不应该有额外写入，实际: %d", got)
	}
}

// TestWriteFailureIsRetryable 测试写入失败后保持可重试状态且不谎称已保存
func TestWriteFailureIsRetryable(t *testing.T) {
	persister := &fakePersister{}
	autosave := NewAutosaveService(persister, 10*time.Millisecond)
	defer autosave.Stop()

	persister.setState("v0")
	autosave.ResetBaseline()

	persister.setState("v1")
	persister.mu.Lock()
	persister.failNext = true
	persister.commitErr = errors.New("磁盘已满")
	persister.mu.Unlock()

	autosave.NotifyMutation()

	// 等待失败的写入完成：状态回到unsaved且错误对调用方可见
	deadline := time.Now().Add(2 * time.Second)
	for {
		status, lastErr := autosave.Status()
		if status == AutosaveUnsaved && lastErr != nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("等待写入失败状态超时，当前状态: %s %v", status, lastErr)
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := persister.commitCount(); got != 0 {
		t.Errorf("失败的写入不应该计为成功，实际: %d", got)
	}

	// 手动重试成功后状态恢复，错误清除
	if err := autosave.SaveNow(); err != nil {
		t.Fatalf("重试保存失败: %v", err)
	}
	status, lastErr := autosave.Status()
	if status != AutosaveSaved || lastErr != nil {
		t.Errorf("重试成功后应该是saved且无错误，实际: %s %v", status, lastErr)
	}
}

// TestSavedFallsBackToIdle 测试saved状态短暂展示后回到idle
func TestSavedFallsBackToIdle(t *testing.T) {
	persister := &fakePersister{}
	autosave := NewAutosaveService(persister, 10*time.Millisecond)
	defer autosave.Stop()

	persister.setState("v0")
	autosave.ResetBaseline()

	persister.setState("v1")
	autosave.NotifyMutation()

	waitForStatus(t, autosave, AutosaveSaved)
	waitForStatus(t, autosave, AutosaveIdle)
}

// TestResetBaselineSuppressesStaleSave 测试切换项目后旧的变更不再触发保存
func TestResetBaselineSuppressesStaleSave(t *testing.T) {
	persister := &fakePersister{}
	autosave := NewAutosaveService(persister, 30*time.Millisecond)
	defer autosave.Stop()

	persister.setState("old-project")
	autosave.ResetBaseline()

	persister.setState("old-project-edited")
	autosave.NotifyMutation()

	// 打开新项目：基线重置，挂起的计时器取消
	persister.setState("new-project")
	autosave.ResetBaseline()

	if status, _ := autosave.Status(); status != AutosaveIdle {
		t.Errorf("切换项目后应该回到idle，实际: %s", status)
	}

	time.Sleep(80 * time.Millisecond)
	if got := persister.commitCount(); got != 0 {
		t.Errorf("切换项目应该取消挂起的保存，实际写入次数: %d", got)
	}

	// 新项目的变更正常触发保存
	persister.setState("new-project-edited")
	autosave.NotifyMutation()
	waitForStatus(t, autosave, AutosaveSaved)
	if got := persister.commitCount(); got != 1 {
		t.Errorf("新项目的变更应该正常保存，实际: %d", got)
	}
}

// TestStatusHookReceivesTransitions 测试状态钩子收到完整的状态迁移
func TestStatusHookReceivesTransitions(t *testing.T) {
	persister := &fakePersister{}
	autosave := NewAutosaveService(persister, 10*time.Millisecond)
	defer autosave.Stop()

	var mu sync.Mutex
	var transitions []AutosaveStatus
	autosave.SetStatusHook(func(status AutosaveStatus, err error) {
		mu.Lock()
		transitions = append(transitions, status)
		mu.Unlock()
	})

	persister.setState("v0")
	autosave.ResetBaseline()

	persister.setState("v1")
	autosave.NotifyMutation()
	waitForStatus(t, autosave, AutosaveSaved)

	mu.Lock()
	defer mu.Unlock()

	want := []AutosaveStatus{AutosaveIdle, AutosaveUnsaved, AutosaveSaving, AutosaveSaved}
	if len(transitions) < len(want) {
		t.Fatalf("状态迁移不完整: %v", transitions)
	}
	for i, status := range want {
		if transitions[i] != status {
			t.Fatalf("状态迁移顺序不正确，期望: %v，实际: %v", want, transitions)
		}
	}
}
