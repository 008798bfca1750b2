// internal/models/resolve_test.go
package models

import "testing"

func sampleProject() *Project {
	return NewProject("নীল জ্যোৎস্না", "একটি রহস্য উপন্যাস", GenreMystery, MaturityTeen, LanguageStyleModern)
}

// TestNewProjectDefaults 测试新项目的默认形态
func TestNewProjectDefaults(t *testing.T) {
	p := sampleProject()

	if p.ID == "" {
		t.Error("新项目应该有ID")
	}
	if len(p.Chapters) != 1 {
		t.Fatalf("新项目应该有一个默认章节，实际: %d", len(p.Chapters))
	}
	if p.Chapters[0].Title != DefaultChapterTitle {
		t.Errorf("默认章节标题不正确，期望: %s，实际: %s", DefaultChapterTitle, p.Chapters[0].Title)
	}
	if HasOverrides(&p.Chapters[0]) {
		t.Error("默认章节不应该有任何覆盖")
	}
	if p.Settings.Creativity != 0.7 || p.Settings.Length != LengthMedium {
		t.Errorf("默认生成参数不正确: %+v", p.Settings)
	}
}

// TestEffectiveFallback 测试无覆盖时回退项目默认值
func TestEffectiveFallback(t *testing.T) {
	p := sampleProject()
	c := &p.Chapters[0]

	if got := EffectiveGenre(p, c); got != GenreMystery {
		t.Errorf("体裁应该回退项目默认值，实际: %s", got)
	}
	if got := EffectiveMaturity(p, c); got != MaturityTeen {
		t.Errorf("分级应该回退项目默认值，实际: %s", got)
	}
	if got := EffectiveLanguageStyle(p, c); got != LanguageStyleModern {
		t.Errorf("语言风格应该回退项目默认值，实际: %s", got)
	}
	if got := EffectiveSettings(p, c); got != p.Settings {
		t.Errorf("生成参数应该回退项目默认值，实际: %+v", got)
	}
}

// TestEffectiveOverride 测试章节覆盖优先于项目默认值
func TestEffectiveOverride(t *testing.T) {
	p := sampleProject()
	c := &p.Chapters[0]

	genre := GenreHorror
	c.Genre = &genre

	if got := EffectiveGenre(p, c); got != GenreHorror {
		t.Errorf("章节覆盖应该优先，实际: %s", got)
	}
	// 其他类别不受影响
	if got := EffectiveMaturity(p, c); got != MaturityTeen {
		t.Errorf("未覆盖的分级应该仍回退项目默认值，实际: %s", got)
	}
}

// TestSettingsOverrideIsWholeObject 测试生成参数覆盖的整对象语义：
// 存在覆盖时每个字段都以覆盖为准，项目默认值的后续变化不再透传。
func TestSettingsOverrideIsWholeObject(t *testing.T) {
	p := sampleProject()
	c := &p.Chapters[0]

	override := p.Settings
	override.Creativity = 0.9
	c.Settings = &override

	// 修改项目默认基调
	p.Settings.Tone = "Melancholic"

	effective := EffectiveSettings(p, c)
	if effective.Creativity != 0.9 {
		t.Errorf("覆盖的创意度应该生效，实际: %f", effective.Creativity)
	}
	if effective.Tone != "Passionate" {
		t.Errorf("覆盖对象冻结了创建时的基调，项目默认值的变化不应透传，实际: %s", effective.Tone)
	}

	// 单字段读取与整对象读取一致
	if got := EffectiveTone(p, c); got != "Passionate" {
		t.Errorf("单字段读取应该与整对象语义一致，实际: %s", got)
	}
}

// TestClearOverrides 测试清除覆盖后完全回退
func TestClearOverrides(t *testing.T) {
	p := sampleProject()
	c := &p.Chapters[0]

	genre := GenreComedy
	style := LanguageStylePoetic
	settings := DefaultGenerationSettings()
	c.Genre = &genre
	c.LanguageStyle = &style
	c.Settings = &settings

	if !HasOverrides(c) {
		t.Fatal("设置覆盖后HasOverrides应该为true")
	}

	ClearOverrides(c)

	if HasOverrides(c) {
		t.Error("清除后不应该有任何覆盖")
	}
	if got := EffectiveGenre(p, c); got != p.Genre {
		t.Errorf("清除后应该回退项目默认体裁，实际: %s", got)
	}

	// 幂等性
	ClearOverrides(c)
	if HasOverrides(c) {
		t.Error("重复清除应该是幂等的")
	}

	// nil安全
	ClearOverrides(nil)
	if HasOverrides(nil) {
		t.Error("nil章节不应该有覆盖")
	}
}

// TestStoryLengthMaxTokens 测试篇幅档位映射
func TestStoryLengthMaxTokens(t *testing.T) {
	cases := []struct {
		length StoryLength
		want   int
	}{
		{LengthShort, 500},
		{LengthMedium, 1000},
		{LengthLong, 1800},
		{LengthEpic, 3200},
		{StoryLength("unknown"), 1000},
	}

	for _, tc := range cases {
		if got := tc.length.MaxTokens(); got != tc.want {
			t.Errorf("档位 %s 的上限不正确，期望: %d，实际: %d", tc.length, tc.want, got)
		}
	}
}

// TestChapterByID 测试按ID查找章节
func TestChapterByID(t *testing.T) {
	p := sampleProject()
	p.Chapters = append(p.Chapters, NewChapter("পরিচ্ছেদ ২"))

	index, chapter := p.ChapterByID(p.Chapters[1].ID)
	if index != 1 || chapter == nil {
		t.Fatalf("应该找到第二个章节，实际索引: %d", index)
	}
	if chapter.Title != "পরিচ্ছেদ ২" {
		t.Errorf("章节标题不正确: %s", chapter.Title)
	}

	index, chapter = p.ChapterByID("missing")
	if index != -1 || chapter != nil {
		t.Error("不存在的ID应该返回(-1, nil)")
	}
}
