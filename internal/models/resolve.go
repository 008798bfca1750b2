// internal/models/resolve.go
package models

// 有效值解析：章节覆盖优先，缺席时回退项目默认值。
// 所有函数均为纯函数，不修改入参（ClearOverrides除外）。

// EffectiveGenre 返回章节的有效体裁
func EffectiveGenre(p *Project, c *Chapter) Genre {
	if c != nil && c.Genre != nil {
		return *c.Genre
	}
	return p.Genre
}

// EffectiveMaturity 返回章节的有效内容分级
func EffectiveMaturity(p *Project, c *Chapter) MaturityLevel {
	if c != nil && c.MaturityLevel != nil {
		return *c.MaturityLevel
	}
	return p.MaturityLevel
}

// EffectiveLanguageStyle 返回章节的有效语言风格
func EffectiveLanguageStyle(p *Project, c *Chapter) LanguageStyle {
	if c != nil && c.LanguageStyle != nil {
		return *c.LanguageStyle
	}
	return p.LanguageStyle
}

// EffectiveSettings 返回章节的有效生成参数。
// 整对象回退：章节一旦定义了Settings覆盖，其每个字段都生效，
// 包括作者创建覆盖时未改动的字段；不与项目默认值做逐字段合并。
func EffectiveSettings(p *Project, c *Chapter) GenerationSettings {
	if c != nil && c.Settings != nil {
		return *c.Settings
	}
	return p.Settings
}

// 以下为单字段的读取时回退，供UI就地编辑单个参数时使用。
// 写入路径始终物化完整覆盖对象（见ProjectService的SetChapter*方法）。

// EffectiveCreativity 返回有效创意度
func EffectiveCreativity(p *Project, c *Chapter) float64 {
	if c != nil && c.Settings != nil {
		return c.Settings.Creativity
	}
	return p.Settings.Creativity
}

// EffectiveLength 返回有效篇幅档位
func EffectiveLength(p *Project, c *Chapter) StoryLength {
	if c != nil && c.Settings != nil {
		return c.Settings.Length
	}
	return p.Settings.Length
}

// EffectiveTone 返回有效基调
func EffectiveTone(p *Project, c *Chapter) string {
	if c != nil && c.Settings != nil {
		return c.Settings.Tone
	}
	return p.Settings.Tone
}

// EffectiveCustomPrompt 返回有效的自定义指令
func EffectiveCustomPrompt(p *Project, c *Chapter) string {
	if c != nil && c.Settings != nil {
		return c.Settings.CustomSystemPrompt
	}
	return p.Settings.CustomSystemPrompt
}

// HasOverrides 判断章节是否存在任一覆盖字段
func HasOverrides(c *Chapter) bool {
	if c == nil {
		return false
	}
	return c.Genre != nil || c.MaturityLevel != nil || c.LanguageStyle != nil || c.Settings != nil
}

// ClearOverrides 移除章节的全部覆盖字段，完全回退到项目默认值。
// 该操作不可逆，且幂等。
func ClearOverrides(c *Chapter) {
	if c == nil {
		return
	}
	c.Genre = nil
	c.MaturityLevel = nil
	c.LanguageStyle = nil
	c.Settings = nil
}
