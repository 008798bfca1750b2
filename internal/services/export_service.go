// internal/services/export_service.go
package services

import (
	"fmt"
	"strings"
	"time"

	apperrors "github.com/WovenInk/StoryLoom/internal/errors"
	"github.com/WovenInk/StoryLoom/internal/models"
)

// ExportResult 导出结果
type ExportResult struct {
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	Content     string `json:"content"`
}

// ExportService 将项目导出为可下载的文档
type ExportService struct{}

// NewExportService 创建导出服务
func NewExportService() *ExportService {
	return &ExportService{}
}

// Export 按格式导出项目，支持 "markdown" 与 "text"
func (s *ExportService) Export(p *models.Project, format string) (*ExportResult, error) {
	if p == nil {
		return nil, apperrors.NewValidationError("没有可导出的项目", nil)
	}

	switch format {
	case "markdown", "md", "":
		return &ExportResult{
			FileName:    exportFileName(p.Title, "md"),
			ContentType: "text/markdown; charset=utf-8",
			Content:     s.renderMarkdown(p),
		}, nil
	case "text", "txt":
		return &ExportResult{
			FileName:    exportFileName(p.Title, "txt"),
			ContentType: "text/plain; charset=utf-8",
			Content:     s.renderText(p),
		}, nil
	default:
		return nil, apperrors.NewValidationError(fmt.Sprintf("不支持的导出格式: %s", format), nil)
	}
}

func (s *ExportService) renderMarkdown(p *models.Project) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", p.Title)
	if p.Description != "" {
		fmt.Fprintf(&b, "> %s\n\n", p.Description)
	}

	for i := range p.Chapters {
		chapter := &p.Chapters[i]
		fmt.Fprintf(&b, "## %s\n\n", chapter.Title)
		body := StripTags(chapter.Content)
		if body != "" {
			b.WriteString(body)
			b.WriteString("\n\n")
		}
	}

	fmt.Fprintf(&b, "---\n\n*রপ্তানির সময়: %s*\n", time.Now().Format("2006-01-02 15:04"))
	return b.String()
}

func (s *ExportService) renderText(p *models.Project) string {
	var b strings.Builder

	b.WriteString(p.Title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", 40))
	b.WriteString("\n\n")

	for i := range p.Chapters {
		chapter := &p.Chapters[i]
		b.WriteString(chapter.Title)
		b.WriteString("\n")
		b.WriteString(strings.Repeat("-", 40))
		b.WriteString("\n\n")
		body := StripTags(chapter.Content)
		if body != "" {
			b.WriteString(body)
			b.WriteString("\n\n")
		}
	}

	return b.String()
}

// exportFileName 生成安全的导出文件名
func exportFileName(title, ext string) string {
	name := strings.TrimSpace(title)
	if name == "" {
		name = "story"
	}
	replacer := strings.NewReplacer("/", "-", "\\", "-", ":", "-", "*", "", "?", "", "\"", "", "<", "", ">", "", "|", "")
	name = replacer.Replace(name)
	return fmt.Sprintf("%s.%s", name, ext)
}
