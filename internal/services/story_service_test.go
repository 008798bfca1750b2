// internal/services/story_service_test.go
package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	apperrors "github.com/WovenInk/StoryLoom/internal/errors"
	"github.com/WovenInk/StoryLoom/internal/llm"
	"github.com/WovenInk/StoryLoom/internal/models"
)

// stubProvider 测试用提供者：可阻塞、可注入失败
type stubProvider struct {
	mu       sync.Mutex
	response string
	err      error
	block    chan struct{} // 非nil时CompleteText阻塞直到通道关闭
	lastReq  llm.CompletionRequest
}

func (p *stubProvider) Initialize(config map[string]string) error { return nil }
func (p *stubProvider) GetName() string                           { return "stub" }
func (p *stubProvider) GetSupportedModels() []string              { return []string{"stub-1"} }

func (p *stubProvider) CompleteText(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	p.lastReq = req
	block := p.block
	response := p.response
	err := p.err
	p.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return &llm.CompletionResponse{Text: response, ProviderName: "stub"}, nil
}

func (p *stubProvider) lastRequest() llm.CompletionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastReq
}

// newStubStoryService 构造使用桩提供者的生成服务
func newStubStoryService(t *testing.T, provider *stubProvider) *StoryService {
	t.Helper()

	llm.Register("stub", func() llm.Provider { return provider })

	llmService := NewEmptyLLMService()
	if err := llmService.UpdateProvider("stub", map[string]string{}); err != nil {
		t.Fatalf("切换到桩提供者失败: %v", err)
	}

	return NewStoryService(llmService)
}

func stubInput() GenerationInput {
	return GenerationInput{
		ProjectTitle:  "নীল জ্যোৎস্না",
		ChapterTitle:  "পরিচ্ছেদ ১",
		Genre:         models.GenreMystery,
		Maturity:      models.MaturityTeen,
		LanguageStyle: models.LanguageStyleModern,
		Settings:      models.DefaultGenerationSettings(),
	}
}

// TestGenerateChapterUsesResolvedSettings 测试生成请求携带解析后的参数
func TestGenerateChapterUsesResolvedSettings(t *testing.T) {
	provider := &stubProvider{response: "চাঁদের আলোয় শহরটা ঘুমিয়ে ছিল।"}
	s := newStubStoryService(t, provider)

	input := stubInput()
	input.Settings.Creativity = 0.5
	input.Settings.Length = models.LengthLong

	text, err := s.GenerateChapter(context.Background(), "p1", input)
	if err != nil {
		t.Fatalf("生成失败: %v", err)
	}
	if text != "চাঁদের আলোয় শহরটা ঘুমিয়ে ছিল।" {
		t.Errorf("生成结果不正确: %s", text)
	}

	req := provider.lastRequest()
	if req.MaxTokens != 1800 {
		t.Errorf("long档位应该映射到1800 tokens，实际: %d", req.MaxTokens)
	}
	// 创意度0.5映射到温度0.8
	if req.Temperature < 0.79 || req.Temperature > 0.81 {
		t.Errorf("温度映射不正确: %f", req.Temperature)
	}
	if !strings.Contains(req.SystemPrompt, "নীল জ্যোৎস্না") {
		t.Error("系统指令应该包含项目标题")
	}
	if !strings.Contains(req.Prompt, "পরিচ্ছেদ ১") {
		t.Error("用户提示应该包含章节标题")
	}
}

// TestInFlightGuardRejectsConcurrent 测试同一项目的并发生成被拒绝
func TestInFlightGuardRejectsConcurrent(t *testing.T) {
	block := make(chan struct{})
	provider := &stubProvider{response: "ঠিক আছে", block: block}
	s := newStubStoryService(t, provider)

	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		close(started)
		_, err := s.GenerateChapter(context.Background(), "p1", stubInput())
		done <- err
	}()
	<-started

	// 等待在途标志置位
	deadline := time.Now().Add(2 * time.Second)
	for !s.IsGenerating("p1") {
		if time.Now().After(deadline) {
			t.Fatal("等待在途标志超时")
		}
		time.Sleep(time.Millisecond)
	}

	// 同一项目的第二个调用立即被拒绝
	if _, err := s.ContinueStory(context.Background(), "p1", "আগের লেখা", stubInput()); !apperrors.IsConflictError(err) {
		t.Errorf("在途期间的并发调用应该返回conflict错误，实际: %v", err)
	}

	// 不同项目不受影响：阻塞在provider上，但不会被在途保护拒绝
	if s.IsGenerating("p2") {
		t.Error("其他项目不应该有在途标志")
	}

	close(block)
	if err := <-done; err != nil {
		t.Fatalf("首个生成调用应该成功: %v", err)
	}

	// 完成后槽位释放
	if s.IsGenerating("p1") {
		t.Error("生成完成后在途标志应该清除")
	}
	if _, err := s.GenerateChapter(context.Background(), "p1", stubInput()); err != nil {
		t.Errorf("槽位释放后应该可以再次生成: %v", err)
	}
}

// TestGenerationFailureSurfacesError 测试提供者失败转化为processing错误
func TestGenerationFailureSurfacesError(t *testing.T) {
	provider := &stubProvider{err: errors.New("上游超时")}
	s := newStubStoryService(t, provider)

	_, err := s.GenerateChapter(context.Background(), "p1", stubInput())
	if err == nil {
		t.Fatal("提供者失败时应该返回错误")
	}
	appErr, ok := err.(*apperrors.AppError)
	if !ok || appErr.Type != apperrors.ErrorTypeProcessing {
		t.Errorf("应该返回processing错误，实际: %v", err)
	}

	// 失败后槽位释放，可以重试
	if s.IsGenerating("p1") {
		t.Error("失败后在途标志应该清除")
	}
}

// TestRewriteRequiresContent 测试空文本的改写请求被拒绝
func TestRewriteRequiresContent(t *testing.T) {
	provider := &stubProvider{response: "নতুন লেখা"}
	s := newStubStoryService(t, provider)

	if _, err := s.RewriteText(context.Background(), "p1", "   ", "আরো নাটকীয় করো", models.GenreDrama); !apperrors.IsValidationError(err) {
		t.Errorf("空文本应该返回validation错误，实际: %v", err)
	}

	text, err := s.RewriteText(context.Background(), "p1", "<p>পুরনো লেখা</p>", "আরো নাটকীয় করো", models.GenreDrama)
	if err != nil {
		t.Fatalf("改写失败: %v", err)
	}
	if text != "নতুন লেখা" {
		t.Errorf("改写结果不正确: %s", text)
	}

	// 改写提示携带纯文本与指令
	req := provider.lastRequest()
	if strings.Contains(req.Prompt, "<p>") {
		t.Error("改写提示应该使用去标签后的纯文本")
	}
	if !strings.Contains(req.Prompt, "আরো নাটকীয় করো") {
		t.Error("改写提示应该包含指令")
	}
}

// TestBuildGenerationInputResolvesOverrides 测试生成输入的解析与前章摘录
func TestBuildGenerationInputResolvesOverrides(t *testing.T) {
	p := models.NewProject("উপন্যাস", "পটভূমি", models.GenreRomance, models.MaturityAllAges, models.LanguageStyleModern)
	p.Chapters[0].Content = "<p>" + strings.Repeat("ক", 2000) + "</p>"
	p.Chapters = append(p.Chapters, models.NewChapter("পরিচ্ছেদ ২"))

	genre := models.GenreHorror
	p.Chapters[1].Genre = &genre

	input, err := BuildGenerationInput(p, 1)
	if err != nil {
		t.Fatalf("构建生成输入失败: %v", err)
	}

	if input.Genre != models.GenreHorror {
		t.Errorf("应该使用章节覆盖的体裁，实际: %s", input.Genre)
	}
	if input.Maturity != models.MaturityAllAges {
		t.Errorf("未覆盖的分级应该回退项目默认值，实际: %s", input.Maturity)
	}
	if got := len([]rune(input.PreviousExcerpt)); got != 1200 {
		t.Errorf("前章摘录应该截断为1200个rune，实际: %d", got)
	}

	// 首章没有前章摘录
	first, err := BuildGenerationInput(p, 0)
	if err != nil {
		t.Fatalf("构建首章输入失败: %v", err)
	}
	if first.PreviousExcerpt != "" {
		t.Error("首章不应该有前章摘录")
	}

	// 越界索引
	if _, err := BuildGenerationInput(p, 5); !apperrors.IsValidationError(err) {
		t.Errorf("越界索引应该返回validation错误，实际: %v", err)
	}
}
