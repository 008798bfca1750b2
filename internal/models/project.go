// internal/models/project.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// Genre 故事体裁
type Genre string

const (
	GenreRomance   Genre = "romance"
	GenreMystery   Genre = "mystery"
	GenreFantasy   Genre = "fantasy"
	GenreSciFi     Genre = "scifi"
	GenreHorror    Genre = "horror"
	GenreAdventure Genre = "adventure"
	GenreDrama     Genre = "drama"
	GenreComedy    Genre = "comedy"
)

// MaturityLevel 内容分级
type MaturityLevel string

const (
	MaturityAllAges MaturityLevel = "all_ages"
	MaturityTeen    MaturityLevel = "teen"
	MaturityMature  MaturityLevel = "mature"
)

// LanguageStyle 语言风格（孟加拉语写作中的文体选择，如庄重体与口语体）
type LanguageStyle string

const (
	LanguageStyleModern     LanguageStyle = "modern"
	LanguageStyleClassic    LanguageStyle = "classic"
	LanguageStyleColloquial LanguageStyle = "colloquial"
	LanguageStylePoetic     LanguageStyle = "poetic"
)

// StoryLength 生成篇幅档位
type StoryLength string

const (
	LengthShort  StoryLength = "short"
	LengthMedium StoryLength = "medium"
	LengthLong   StoryLength = "long"
	LengthEpic   StoryLength = "epic"
)

// MaxTokens 返回篇幅档位对应的生成上限
func (l StoryLength) MaxTokens() int {
	switch l {
	case LengthShort:
		return 500
	case LengthLong:
		return 1800
	case LengthEpic:
		return 3200
	default: // medium
		return 1000
	}
}

// GenerationSettings 生成参数
type GenerationSettings struct {
	Creativity         float64     `json:"creativity"` // [0,1]，映射到采样温度
	Length             StoryLength `json:"length"`
	Tone               string      `json:"tone"`
	CustomSystemPrompt string      `json:"custom_system_prompt,omitempty"`
}

// DefaultToneOptions UI中提供的基调选项（Tone本身不做类型约束）
var DefaultToneOptions = []string{
	"Passionate",
	"Dark and Thrilling",
	"Lighthearted",
	"Melancholic",
	"Suspenseful",
}

// DefaultGenerationSettings 返回新项目的默认生成参数
func DefaultGenerationSettings() GenerationSettings {
	return GenerationSettings{
		Creativity: 0.7,
		Length:     LengthMedium,
		Tone:       "Passionate",
	}
}

// Chapter 章节。四个覆盖字段均为可选：任一存在即视为"自定义"章节，
// 全部缺席则完全继承项目默认值。Settings覆盖是整对象替换，不做逐字段合并。
type Chapter struct {
	ID            string              `json:"id"`
	Title         string              `json:"title"`
	Content       string              `json:"content"` // 富文本，对核心逻辑不透明
	Genre         *Genre              `json:"genre,omitempty"`
	MaturityLevel *MaturityLevel      `json:"maturity_level,omitempty"`
	LanguageStyle *LanguageStyle      `json:"language_style,omitempty"`
	Settings      *GenerationSettings `json:"settings,omitempty"`
}

// Project 项目：一部完整作品的元数据、默认生成参数与有序章节列表。
// 不变式：处于活动状态的项目至少有一个章节。
type Project struct {
	ID            string             `json:"id"`
	Title         string             `json:"title"`
	Description   string             `json:"description"`
	Genre         Genre              `json:"genre"`
	MaturityLevel MaturityLevel      `json:"maturity_level"`
	LanguageStyle LanguageStyle      `json:"language_style"`
	Settings      GenerationSettings `json:"settings"`
	Chapters      []Chapter          `json:"chapters"`
	CreatedAt     time.Time          `json:"created_at"`
}

// DefaultChapterTitle 新项目首个章节的标题
const DefaultChapterTitle = "পরিচ্ছেদ ১"

// NewProject 创建带一个默认章节的新项目
func NewProject(title, description string, genre Genre, maturity MaturityLevel, style LanguageStyle) *Project {
	return &Project{
		ID:            uuid.NewString(),
		Title:         title,
		Description:   description,
		Genre:         genre,
		MaturityLevel: maturity,
		LanguageStyle: style,
		Settings:      DefaultGenerationSettings(),
		Chapters:      []Chapter{NewChapter(DefaultChapterTitle)},
		CreatedAt:     time.Now(),
	}
}

// NewChapter 创建一个无覆盖的新章节
func NewChapter(title string) Chapter {
	return Chapter{
		ID:    uuid.NewString(),
		Title: title,
	}
}

// ChapterByID 按ID查找章节，返回索引与指针；未找到时返回(-1, nil)
func (p *Project) ChapterByID(id string) (int, *Chapter) {
	for i := range p.Chapters {
		if p.Chapters[i].ID == id {
			return i, &p.Chapters[i]
		}
	}
	return -1, nil
}
