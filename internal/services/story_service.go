// internal/services/story_service.go
package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	apperrors "github.com/WovenInk/StoryLoom/internal/errors"
	"github.com/WovenInk/StoryLoom/internal/llm"
	"github.com/WovenInk/StoryLoom/internal/metrics"
	"github.com/WovenInk/StoryLoom/internal/models"
	"github.com/WovenInk/StoryLoom/internal/utils"
)

// previousExcerptRunes 前一章节摘录的长度上限（rune数），
// 用于给模型提供连续性上下文。调优参数，不构成正确性契约。
const previousExcerptRunes = 1200

// ErrGenerationBusy 同一项目会话已有生成调用在途
var ErrGenerationBusy = apperrors.NewConflictError("已有生成任务进行中，请等待完成", nil)

// GenerationInput 生成调用的输入。所有字段都是解析后的有效值，
// 绝不直接传入原始的项目/章节覆盖。
type GenerationInput struct {
	ProjectTitle    string
	ChapterTitle    string
	Context         string // 叙事背景：项目简介等
	Genre           models.Genre
	Maturity        models.MaturityLevel
	LanguageStyle   models.LanguageStyle
	Settings        models.GenerationSettings
	PreviousExcerpt string
}

// StoryService 生成边界适配器：将解析后的设置与叙事上下文翻译为
// 对外部文本生成服务的请求。每个项目会话同一时刻只允许一个在途
// 生成调用；失败时不触碰章节内容。
type StoryService struct {
	llm *LLMService

	inFlightMu sync.Mutex
	inFlight   map[string]bool // projectID -> 在途标志
}

// NewStoryService 创建生成服务
func NewStoryService(llmService *LLMService) *StoryService {
	return &StoryService{
		llm:      llmService,
		inFlight: make(map[string]bool),
	}
}

// tryAcquire 获取项目会话的在途槽位
func (s *StoryService) tryAcquire(projectID string) bool {
	s.inFlightMu.Lock()
	defer s.inFlightMu.Unlock()

	if s.inFlight[projectID] {
		return false
	}
	s.inFlight[projectID] = true
	return true
}

func (s *StoryService) release(projectID string) {
	s.inFlightMu.Lock()
	defer s.inFlightMu.Unlock()
	delete(s.inFlight, projectID)
}

// IsGenerating 查询项目是否有在途生成调用
func (s *StoryService) IsGenerating(projectID string) bool {
	s.inFlightMu.Lock()
	defer s.inFlightMu.Unlock()
	return s.inFlight[projectID]
}

// BuildGenerationInput 从项目与章节索引解析生成输入：
// 有效值解析 + 前一章节的纯文本尾部摘录。
func BuildGenerationInput(p *models.Project, chapterIndex int) (GenerationInput, error) {
	if chapterIndex < 0 || chapterIndex >= len(p.Chapters) {
		return GenerationInput{}, apperrors.NewValidationError(fmt.Sprintf("章节索引越界: %d", chapterIndex), nil)
	}

	chapter := &p.Chapters[chapterIndex]

	input := GenerationInput{
		ProjectTitle:  p.Title,
		ChapterTitle:  chapter.Title,
		Context:       p.Description,
		Genre:         models.EffectiveGenre(p, chapter),
		Maturity:      models.EffectiveMaturity(p, chapter),
		LanguageStyle: models.EffectiveLanguageStyle(p, chapter),
		Settings:      models.EffectiveSettings(p, chapter),
	}

	if chapterIndex > 0 {
		previous := StripTags(p.Chapters[chapterIndex-1].Content)
		input.PreviousExcerpt = TrailingRunes(previous, previousExcerptRunes)
	}

	return input, nil
}

// GenerateChapter 为章节生成正文
func (s *StoryService) GenerateChapter(ctx context.Context, projectID string, input GenerationInput) (string, error) {
	return s.complete(ctx, projectID, "generate", input.Settings, buildSystemPrompt(input), buildGeneratePrompt(input))
}

// ContinueStory 在现有内容基础上续写
func (s *StoryService) ContinueStory(ctx context.Context, projectID, content string, input GenerationInput) (string, error) {
	existing := TrailingRunes(StripTags(content), previousExcerptRunes)
	prompt := fmt.Sprintf("এখন পর্যন্ত লেখা অংশ:\n\n%s\n\nগল্পটি স্বাভাবিক ধারাবাহিকতায় এগিয়ে নিয়ে যাও। শুধু নতুন অংশ লেখো, আগের লেখা পুনরাবৃত্তি করো না।", existing)
	return s.complete(ctx, projectID, "continue", input.Settings, buildSystemPrompt(input), prompt)
}

// RewriteText 按指令改写给定文本
func (s *StoryService) RewriteText(ctx context.Context, projectID, content, instruction string, genre models.Genre) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", apperrors.NewValidationError("没有可改写的内容", nil)
	}

	settings := models.DefaultGenerationSettings()
	system := fmt.Sprintf("তুমি একজন দক্ষ বাংলা সাহিত্য সম্পাদক। %s ঘরানার লেখা সম্পাদনা করছ। মূল ঘটনাপ্রবাহ অক্ষুণ্ণ রেখে নির্দেশ অনুযায়ী লেখাটি পুনর্লিখন করো।", genreLabel(genre))
	prompt := fmt.Sprintf("নির্দেশ: %s\n\nমূল লেখা:\n\n%s", instruction, StripTags(content))
	return s.complete(ctx, projectID, "rewrite", settings, system, prompt)
}

// complete 执行一次受在途保护的生成调用
func (s *StoryService) complete(ctx context.Context, projectID, kind string, settings models.GenerationSettings, system, prompt string) (string, error) {
	if !s.tryAcquire(projectID) {
		metrics.GenerationTotal.WithLabelValues(kind, "busy").Inc()
		return "", ErrGenerationBusy
	}
	defer s.release(projectID)

	start := time.Now()
	resp, err := s.llm.CreateCompletion(ctx, llm.CompletionRequest{
		Prompt:       prompt,
		SystemPrompt: system,
		MaxTokens:    settings.Length.MaxTokens(),
		Temperature:  creativityToTemperature(settings.Creativity),
	})
	metrics.GenerationDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.GenerationTotal.WithLabelValues(kind, "error").Inc()
		utils.GetLogger().Errorf("生成调用失败 kind=%s project=%s: %v", kind, projectID, err)
		return "", apperrors.NewProcessingError("生成失败，请稍后重试", err)
	}

	metrics.GenerationTotal.WithLabelValues(kind, "ok").Inc()
	return resp.Text, nil
}

// creativityToTemperature 将[0,1]的创意度映射到采样温度[0.2, 1.4]
func creativityToTemperature(creativity float64) float32 {
	return float32(0.2 + creativity*1.2)
}

// buildSystemPrompt 组装系统指令：体裁、分级、语言风格、基调与自定义指令
func buildSystemPrompt(input GenerationInput) string {
	var b strings.Builder

	fmt.Fprintf(&b, "তুমি একজন প্রতিভাবান বাংলা কথাসাহিত্যিক। তুমি \"%s\" শিরোনামের একটি %s উপন্যাস লিখছ।\n",
		input.ProjectTitle, genreLabel(input.Genre))
	fmt.Fprintf(&b, "লেখার ভঙ্গি: %s। গল্পের সুর: %s।\n", styleLabel(input.LanguageStyle), input.Settings.Tone)
	b.WriteString(maturityInstruction(input.Maturity))

	if input.Settings.CustomSystemPrompt != "" {
		b.WriteString("\n")
		b.WriteString(input.Settings.CustomSystemPrompt)
		b.WriteString("\n")
	}

	return b.String()
}

// buildGeneratePrompt 组装章节生成的用户提示
func buildGeneratePrompt(input GenerationInput) string {
	var b strings.Builder

	fmt.Fprintf(&b, "অধ্যায়ের শিরোনাম: %s\n", input.ChapterTitle)
	if input.Context != "" {
		fmt.Fprintf(&b, "গল্পের পটভূমি: %s\n", input.Context)
	}
	if input.PreviousExcerpt != "" {
		fmt.Fprintf(&b, "\nআগের অধ্যায়ের শেষাংশ (ধারাবাহিকতার জন্য):\n%s\n", input.PreviousExcerpt)
	}
	b.WriteString("\nএই অধ্যায়ের পূর্ণাঙ্গ বর্ণনা লেখো। শুধু গল্পের মূল লেখা দাও, কোনো ব্যাখ্যা বা শিরোনাম নয়।")

	return b.String()
}

func genreLabel(genre models.Genre) string {
	switch genre {
	case models.GenreRomance:
		return "রোমান্টিক"
	case models.GenreMystery:
		return "রহস্য"
	case models.GenreFantasy:
		return "ফ্যান্টাসি"
	case models.GenreSciFi:
		return "কল্পবিজ্ঞান"
	case models.GenreHorror:
		return "ভৌতিক"
	case models.GenreAdventure:
		return "রোমাঞ্চকর"
	case models.GenreComedy:
		return "হাস্যরসাত্মক"
	default:
		return "নাটকীয়"
	}
}

func styleLabel(style models.LanguageStyle) string {
	switch style {
	case models.LanguageStyleClassic:
		return "সাধু রীতির ধ্রুপদী গদ্য"
	case models.LanguageStyleColloquial:
		return "সহজ কথ্য চলিত ভাষা"
	case models.LanguageStylePoetic:
		return "কাব্যিক ও চিত্রকল্পময় গদ্য"
	default:
		return "আধুনিক প্রমিত বাংলা"
	}
}

func maturityInstruction(maturity models.MaturityLevel) string {
	switch maturity {
	case models.MaturityMature:
		return "পাঠক প্রাপ্তবয়স্ক; পরিণত বিষয়বস্তু গ্রহণযোগ্য।\n"
	case models.MaturityTeen:
		return "কিশোর পাঠকের উপযোগী রাখো; সহিংসতা ও প্রেমের বর্ণনা সংযত রাখো।\n"
	default:
		return "সব বয়সের পাঠকের উপযোগী রাখো।\n"
	}
}
