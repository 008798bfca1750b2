// internal/services/text.go
package services

import (
	"strconv"
	"strings"
)

// StripTags 将富文本内容粗略转为纯文本：丢弃标签，块级标签换行。
// 章节内容对核心逻辑不透明，这里只为摘录、朗读与导出做降级处理。
func StripTags(html string) string {
	var b strings.Builder
	var tagName strings.Builder
	inTag := false
	nameDone := false

	for _, r := range html {
		switch {
		case r == '<':
			inTag = true
			nameDone = false
			tagName.Reset()
		case r == '>' && inTag:
			inTag = false
			name := strings.ToLower(tagName.String())
			closing := strings.HasPrefix(name, "/")
			name = strings.TrimSuffix(strings.TrimPrefix(name, "/"), "/")
			// 块级标签在闭合处换行，<br>本身即换行
			switch name {
			case "br":
				b.WriteByte('\n')
			case "p", "div", "h1", "h2", "h3", "li":
				if closing {
					b.WriteByte('\n')
				}
			}
		case inTag:
			// 标签名记录到第一个空格为止，属性忽略
			if r == ' ' {
				nameDone = true
			} else if !nameDone {
				tagName.WriteRune(r)
			}
		default:
			b.WriteRune(r)
		}
	}

	text := b.String()
	text = strings.ReplaceAll(text, "&nbsp;", " ")
	text = strings.ReplaceAll(text, "&amp;", "&")
	text = strings.ReplaceAll(text, "&lt;", "<")
	text = strings.ReplaceAll(text, "&gt;", ">")

	// 压缩连续空行
	for strings.Contains(text, "\n\n\n") {
		text = strings.ReplaceAll(text, "\n\n\n", "\n\n")
	}

	return strings.TrimSpace(text)
}

// TrailingRunes 返回文本末尾最多n个rune的切片
func TrailingRunes(text string, n int) string {
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[len(runes)-n:])
}

// 孟加拉数字字符表
var bengaliDigits = []rune("০১২৩৪৫৬৭৮৯")

// BengaliNumeral 将十进制数字转换为孟加拉数字字符串
func BengaliNumeral(n int) string {
	var b strings.Builder
	for _, d := range strconv.Itoa(n) {
		if d == '-' {
			b.WriteRune(d)
			continue
		}
		b.WriteRune(bengaliDigits[d-'0'])
	}
	return b.String()
}
