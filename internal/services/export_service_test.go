// internal/services/export_service_test.go
package services

import (
	"strings"
	"testing"

	apperrors "github.com/WovenInk/StoryLoom/internal/errors"
	"github.com/WovenInk/StoryLoom/internal/models"
)

func exportSample() *models.Project {
	p := models.NewProject("সোনার তরী", "নদীর গল্প", models.GenreDrama, models.MaturityAllAges, models.LanguageStyleModern)
	p.Chapters[0].Content = "<p>নদীর ধারে <b>ছোট্ট</b> গ্রাম।</p>"
	p.Chapters = append(p.Chapters, models.NewChapter("পরিচ্ছেদ ২"))
	return p
}

// TestExportMarkdown 测试Markdown导出
func TestExportMarkdown(t *testing.T) {
	result, err := NewExportService().Export(exportSample(), "markdown")
	if err != nil {
		t.Fatalf("导出失败: %v", err)
	}

	if result.FileName != "সোনার তরী.md" {
		t.Errorf("文件名不正确: %s", result.FileName)
	}
	if !strings.Contains(result.Content, "# সোনার তরী") {
		t.Error("导出内容应该包含项目标题")
	}
	if !strings.Contains(result.Content, "## "+models.DefaultChapterTitle) {
		t.Error("导出内容应该包含章节标题")
	}
	if strings.Contains(result.Content, "<b>") {
		t.Error("导出内容不应该包含富文本标签")
	}
}

// TestExportText 测试纯文本导出
func TestExportText(t *testing.T) {
	result, err := NewExportService().Export(exportSample(), "text")
	if err != nil {
		t.Fatalf("导出失败: %v", err)
	}

	if result.ContentType != "text/plain; charset=utf-8" {
		t.Errorf("内容类型不正确: %s", result.ContentType)
	}
	if !strings.Contains(result.Content, "নদীর ধারে ছোট্ট গ্রাম।") {
		t.Error("导出内容应该包含降级后的正文")
	}
}

// TestExportValidation 测试导出的校验分支
func TestExportValidation(t *testing.T) {
	s := NewExportService()

	if _, err := s.Export(nil, "markdown"); !apperrors.IsValidationError(err) {
		t.Errorf("空项目应该返回validation错误，实际: %v", err)
	}
	if _, err := s.Export(exportSample(), "pdf"); !apperrors.IsValidationError(err) {
		t.Errorf("不支持的格式应该返回validation错误，实际: %v", err)
	}
}
