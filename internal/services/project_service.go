// internal/services/project_service.go
package services

import (
	"encoding/json"
	"fmt"
	"sync"

	apperrors "github.com/WovenInk/StoryLoom/internal/errors"
	"github.com/WovenInk/StoryLoom/internal/models"
	"github.com/WovenInk/StoryLoom/internal/storage"
)

// ProjectService 持有应用状态：已保存的项目集合、当前活动项目的工作副本
// 与活动章节指针。所有状态变更都经由本服务的方法进行，变更成功后在锁外
// 触发mutation钩子供自动保存观察；切换活动项目触发switch钩子以重置保存
// 基线。钩子在服务接线阶段注册，之后不再变更。
type ProjectService struct {
	mu            sync.RWMutex
	store         *storage.ProjectStore
	projects      []models.Project // 已保存集合，最新在前
	active        *models.Project  // 活动项目的工作副本
	activeChapter int

	hookMu   sync.RWMutex
	onMutate func()
	onSwitch func()
}

// NewProjectService 创建项目服务并加载已保存的集合
func NewProjectService(store *storage.ProjectStore) *ProjectService {
	return &ProjectService{
		store:    store,
		projects: store.Load(),
	}
}

// SetMutationHook 注册状态变更钩子（自动保存控制器使用）
func (s *ProjectService) SetMutationHook(fn func()) {
	s.hookMu.Lock()
	defer s.hookMu.Unlock()
	s.onMutate = fn
}

// SetSwitchHook 注册活动项目切换钩子
func (s *ProjectService) SetSwitchHook(fn func()) {
	s.hookMu.Lock()
	defer s.hookMu.Unlock()
	s.onSwitch = fn
}

// fireMutate 在锁外触发变更钩子
func (s *ProjectService) fireMutate() {
	s.hookMu.RLock()
	fn := s.onMutate
	s.hookMu.RUnlock()

	if fn != nil {
		fn()
	}
}

// fireSwitch 在锁外触发切换钩子
func (s *ProjectService) fireSwitch() {
	s.hookMu.RLock()
	fn := s.onSwitch
	s.hookMu.RUnlock()

	if fn != nil {
		fn()
	}
}

// Projects 返回已保存项目集合的副本
func (s *ProjectService) Projects() []models.Project {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]models.Project, 0, len(s.projects))
	for i := range s.projects {
		result = append(result, *cloneProject(&s.projects[i]))
	}
	return result
}

// CreateProject 创建新项目并设为活动项目。新项目只存在于内存中，
// 直到首次自动保存或手动保存才会落盘。
func (s *ProjectService) CreateProject(title, description string, genre models.Genre, maturity models.MaturityLevel, style models.LanguageStyle) models.Project {
	s.mu.Lock()
	project := models.NewProject(title, description, genre, maturity, style)
	s.active = project
	s.activeChapter = 0
	result := *cloneProject(project)
	s.mu.Unlock()

	s.fireSwitch()
	return result
}

// OpenProject 将已保存的项目加载为活动项目
func (s *ProjectService) OpenProject(id string) (models.Project, error) {
	s.mu.Lock()
	var result models.Project
	found := false
	for i := range s.projects {
		if s.projects[i].ID == id {
			s.active = cloneProject(&s.projects[i])
			s.activeChapter = 0
			result = *cloneProject(s.active)
			found = true
			break
		}
	}
	s.mu.Unlock()

	if !found {
		return models.Project{}, apperrors.NewNotFoundError(fmt.Sprintf("项目不存在: %s", id), nil)
	}

	s.fireSwitch()
	return result, nil
}

// DeleteProject 从集合中整体删除项目并立即落盘
func (s *ProjectService) DeleteProject(id string) error {
	s.mu.Lock()
	index := -1
	for i := range s.projects {
		if s.projects[i].ID == id {
			index = i
			break
		}
	}
	if index < 0 {
		s.mu.Unlock()
		return apperrors.NewNotFoundError(fmt.Sprintf("项目不存在: %s", id), nil)
	}

	s.projects = append(s.projects[:index], s.projects[index+1:]...)
	wasActive := s.active != nil && s.active.ID == id
	if wasActive {
		s.active = nil
		s.activeChapter = 0
	}
	err := s.store.SaveAll(s.projects)
	s.mu.Unlock()

	if wasActive {
		s.fireSwitch()
	}
	return err
}

// ActiveProject 返回活动项目的副本
func (s *ProjectService) ActiveProject() (models.Project, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.active == nil {
		return models.Project{}, false
	}
	return *cloneProject(s.active), true
}

// ActiveChapterIndex 返回活动章节索引
func (s *ProjectService) ActiveChapterIndex() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeChapter
}

// SetActiveChapter 切换活动章节
func (s *ProjectService) SetActiveChapter(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == nil {
		return apperrors.NewValidationError("没有打开的项目", nil)
	}
	if index < 0 || index >= len(s.active.Chapters) {
		return apperrors.NewValidationError(fmt.Sprintf("章节索引越界: %d", index), nil)
	}

	s.activeChapter = index
	return nil
}

// AddChapter 追加新章节并设为活动章节。标题为空时按孟加拉数字顺延命名。
func (s *ProjectService) AddChapter(title string) (models.Chapter, error) {
	s.mu.Lock()
	if s.active == nil {
		s.mu.Unlock()
		return models.Chapter{}, apperrors.NewValidationError("没有打开的项目", nil)
	}

	if title == "" {
		title = "পরিচ্ছেদ " + BengaliNumeral(len(s.active.Chapters)+1)
	}

	chapter := models.NewChapter(title)
	s.active.Chapters = append(s.active.Chapters, chapter)
	s.activeChapter = len(s.active.Chapters) - 1
	s.mu.Unlock()

	s.fireMutate()
	return chapter, nil
}

// RemoveChapter 删除章节。每个项目至少保留一个章节；删除活动章节时
// 活动索引移动到前一个章节（下限为0）。
func (s *ProjectService) RemoveChapter(chapterID string) error {
	s.mu.Lock()
	if s.active == nil {
		s.mu.Unlock()
		return apperrors.NewValidationError("没有打开的项目", nil)
	}

	if len(s.active.Chapters) <= 1 {
		s.mu.Unlock()
		return apperrors.NewValidationError("无法删除最后一个章节", nil)
	}

	index, _ := s.active.ChapterByID(chapterID)
	if index < 0 {
		s.mu.Unlock()
		return apperrors.NewNotFoundError(fmt.Sprintf("章节不存在: %s", chapterID), nil)
	}

	s.active.Chapters = append(s.active.Chapters[:index], s.active.Chapters[index+1:]...)

	if index == s.activeChapter {
		s.activeChapter = index - 1
		if s.activeChapter < 0 {
			s.activeChapter = 0
		}
	} else if index < s.activeChapter {
		s.activeChapter--
	}
	s.mu.Unlock()

	s.fireMutate()
	return nil
}

// UpdateProjectMeta 更新项目元数据
func (s *ProjectService) UpdateProjectMeta(title, description string, genre models.Genre, maturity models.MaturityLevel, style models.LanguageStyle) error {
	return s.withActive(func(p *models.Project) error {
		p.Title = title
		p.Description = description
		p.Genre = genre
		p.MaturityLevel = maturity
		p.LanguageStyle = style
		return nil
	})
}

// UpdateProjectSettings 更新项目级默认生成参数
func (s *ProjectService) UpdateProjectSettings(settings models.GenerationSettings) error {
	if settings.Creativity < 0 || settings.Creativity > 1 {
		return apperrors.NewValidationError("创意度必须在[0,1]范围内", nil)
	}

	return s.withActive(func(p *models.Project) error {
		p.Settings = settings
		return nil
	})
}

// UpdateChapterContent 替换章节内容
func (s *ProjectService) UpdateChapterContent(chapterID, content string) error {
	return s.withChapter(chapterID, func(p *models.Project, c *models.Chapter) error {
		c.Content = content
		return nil
	})
}

// AppendChapterContent 在章节内容末尾追加文本（续写结果写回）
func (s *ProjectService) AppendChapterContent(chapterID, content string) error {
	return s.withChapter(chapterID, func(p *models.Project, c *models.Chapter) error {
		c.Content += content
		return nil
	})
}

// UpdateChapterTitle 更新章节标题
func (s *ProjectService) UpdateChapterTitle(chapterID, title string) error {
	return s.withChapter(chapterID, func(p *models.Project, c *models.Chapter) error {
		c.Title = title
		return nil
	})
}

// SetChapterGenre 设置或清除章节体裁覆盖（nil清除）
func (s *ProjectService) SetChapterGenre(chapterID string, genre *models.Genre) error {
	return s.withChapter(chapterID, func(p *models.Project, c *models.Chapter) error {
		c.Genre = genre
		return nil
	})
}

// SetChapterMaturity 设置或清除章节分级覆盖（nil清除）
func (s *ProjectService) SetChapterMaturity(chapterID string, maturity *models.MaturityLevel) error {
	return s.withChapter(chapterID, func(p *models.Project, c *models.Chapter) error {
		c.MaturityLevel = maturity
		return nil
	})
}

// SetChapterLanguageStyle 设置或清除章节语言风格覆盖（nil清除）
func (s *ProjectService) SetChapterLanguageStyle(chapterID string, style *models.LanguageStyle) error {
	return s.withChapter(chapterID, func(p *models.Project, c *models.Chapter) error {
		c.LanguageStyle = style
		return nil
	})
}

// ensureSettingsOverride 惰性物化章节级参数覆盖：首次编辑任一参数时，
// 以当时的有效参数为底板生成完整覆盖对象。此后项目默认值的变化不再
// 影响该章节的其余参数字段（保留源系统的整对象覆盖语义）。
func ensureSettingsOverride(p *models.Project, c *models.Chapter) {
	if c.Settings == nil {
		effective := models.EffectiveSettings(p, c)
		c.Settings = &effective
	}
}

// SetChapterCreativity 编辑章节级创意度
func (s *ProjectService) SetChapterCreativity(chapterID string, creativity float64) error {
	if creativity < 0 || creativity > 1 {
		return apperrors.NewValidationError("创意度必须在[0,1]范围内", nil)
	}
	return s.withChapter(chapterID, func(p *models.Project, c *models.Chapter) error {
		ensureSettingsOverride(p, c)
		c.Settings.Creativity = creativity
		return nil
	})
}

// SetChapterLength 编辑章节级篇幅档位
func (s *ProjectService) SetChapterLength(chapterID string, length models.StoryLength) error {
	return s.withChapter(chapterID, func(p *models.Project, c *models.Chapter) error {
		ensureSettingsOverride(p, c)
		c.Settings.Length = length
		return nil
	})
}

// SetChapterTone 编辑章节级基调
func (s *ProjectService) SetChapterTone(chapterID string, tone string) error {
	return s.withChapter(chapterID, func(p *models.Project, c *models.Chapter) error {
		ensureSettingsOverride(p, c)
		c.Settings.Tone = tone
		return nil
	})
}

// SetChapterCustomPrompt 编辑章节级自定义指令
func (s *ProjectService) SetChapterCustomPrompt(chapterID string, prompt string) error {
	return s.withChapter(chapterID, func(p *models.Project, c *models.Chapter) error {
		ensureSettingsOverride(p, c)
		c.Settings.CustomSystemPrompt = prompt
		return nil
	})
}

// ClearChapterOverrides 清除章节的全部覆盖，回退到项目默认值
func (s *ProjectService) ClearChapterOverrides(chapterID string) error {
	return s.withChapter(chapterID, func(p *models.Project, c *models.Chapter) error {
		models.ClearOverrides(c)
		return nil
	})
}

// withActive 在活动项目上执行变更，成功后在锁外触发变更钩子
func (s *ProjectService) withActive(fn func(*models.Project) error) error {
	s.mu.Lock()
	if s.active == nil {
		s.mu.Unlock()
		return apperrors.NewValidationError("没有打开的项目", nil)
	}

	err := fn(s.active)
	s.mu.Unlock()

	if err != nil {
		return err
	}
	s.fireMutate()
	return nil
}

// withChapter 在活动项目中定位章节并执行变更，成功后在锁外触发变更钩子
func (s *ProjectService) withChapter(chapterID string, fn func(*models.Project, *models.Chapter) error) error {
	s.mu.Lock()
	if s.active == nil {
		s.mu.Unlock()
		return apperrors.NewValidationError("没有打开的项目", nil)
	}

	_, chapter := s.active.ChapterByID(chapterID)
	if chapter == nil {
		s.mu.Unlock()
		return apperrors.NewNotFoundError(fmt.Sprintf("章节不存在: %s", chapterID), nil)
	}

	err := fn(s.active, chapter)
	s.mu.Unlock()

	if err != nil {
		return err
	}
	s.fireMutate()
	return nil
}

// SerializeActive 返回活动项目的序列化形态；无活动项目时返回nil。
// 自动保存控制器用它做基线比较。
func (s *ProjectService) SerializeActive() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.active == nil {
		return nil
	}

	data, err := json.Marshal(s.active)
	if err != nil {
		return nil
	}
	return data
}

// CommitActive 将活动项目按ID合并进已保存集合（存在则替换，否则前插）
// 并整体落盘。返回提交时的序列化形态，供自动保存更新基线。
func (s *ProjectService) CommitActive() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == nil {
		return nil, apperrors.NewValidationError("没有打开的项目", nil)
	}

	snapshot := cloneProject(s.active)

	replaced := false
	for i := range s.projects {
		if s.projects[i].ID == snapshot.ID {
			s.projects[i] = *snapshot
			replaced = true
			break
		}
	}
	if !replaced {
		s.projects = append([]models.Project{*snapshot}, s.projects...)
	}

	if err := s.store.SaveAll(s.projects); err != nil {
		return nil, err
	}

	data, err := json.Marshal(s.active)
	if err != nil {
		return nil, apperrors.NewProcessingError("序列化项目失败", err)
	}
	return data, nil
}

// cloneProject 深拷贝项目，隔离活动副本与已保存集合
func cloneProject(p *models.Project) *models.Project {
	clone := *p
	clone.Chapters = make([]models.Chapter, len(p.Chapters))
	for i := range p.Chapters {
		clone.Chapters[i] = cloneChapter(&p.Chapters[i])
	}
	return &clone
}

func cloneChapter(c *models.Chapter) models.Chapter {
	clone := *c
	if c.Genre != nil {
		g := *c.Genre
		clone.Genre = &g
	}
	if c.MaturityLevel != nil {
		m := *c.MaturityLevel
		clone.MaturityLevel = &m
	}
	if c.LanguageStyle != nil {
		l := *c.LanguageStyle
		clone.LanguageStyle = &l
	}
	if c.Settings != nil {
		settings := *c.Settings
		clone.Settings = &settings
	}
	return clone
}
