// internal/storage/project_store_test.go
package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/WovenInk/StoryLoom/internal/models"
)

func newTestStore(t *testing.T) (*ProjectStore, string) {
	t.Helper()

	tempDir, err := os.MkdirTemp("", "project_store_test_*")
	if err != nil {
		t.Fatalf("创建临时测试目录失败: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tempDir) })

	fs, err := NewFileStorage(tempDir)
	if err != nil {
		t.Fatalf("创建文件存储失败: %v", err)
	}

	return NewProjectStore(fs), tempDir
}

// TestLoadMissingFile 测试数据文件缺失时返回空集合
func TestLoadMissingFile(t *testing.T) {
	store, _ := newTestStore(t)

	projects := store.Load()
	if projects == nil {
		t.Fatal("缺失数据时应该返回空切片而不是nil")
	}
	if len(projects) != 0 {
		t.Errorf("缺失数据时应该返回空集合，实际: %d", len(projects))
	}
}

// TestLoadCorruptFile 测试数据损坏时按空集合处理而不报错
func TestLoadCorruptFile(t *testing.T) {
	store, tempDir := newTestStore(t)

	corruptPath := filepath.Join(tempDir, "projects_v1.json")
	if err := os.WriteFile(corruptPath, []byte("{not valid json"), 0644); err != nil {
		t.Fatalf("写入损坏数据失败: %v", err)
	}

	projects := store.Load()
	if len(projects) != 0 {
		t.Errorf("损坏数据时应该返回空集合，实际: %d", len(projects))
	}
}

// TestSaveAllRoundTrip 测试整集合保存后能完整读回
func TestSaveAllRoundTrip(t *testing.T) {
	store, tempDir := newTestStore(t)

	first := models.NewProject("প্রথম গল্প", "", models.GenreFantasy, models.MaturityAllAges, models.LanguageStyleModern)
	second := models.NewProject("দ্বিতীয় গল্প", "রহস্য", models.GenreMystery, models.MaturityMature, models.LanguageStyleClassic)

	if err := store.SaveAll([]models.Project{*first, *second}); err != nil {
		t.Fatalf("保存项目集合失败: %v", err)
	}

	// 数据文件应该使用固定的版本化键名
	if _, err := os.Stat(filepath.Join(tempDir, "projects_v1.json")); os.IsNotExist(err) {
		t.Error("应该在projects_v1.json下写入数据")
	}

	loaded := store.Load()
	if len(loaded) != 2 {
		t.Fatalf("应该读回2个项目，实际: %d", len(loaded))
	}
	if loaded[0].ID != first.ID || loaded[1].ID != second.ID {
		t.Error("项目顺序应该在保存和读取之间保持不变")
	}
	if loaded[1].Title != "দ্বিতীয় গল্প" {
		t.Errorf("项目标题读回不正确: %s", loaded[1].Title)
	}
	if len(loaded[0].Chapters) != 1 || loaded[0].Chapters[0].Title != models.DefaultChapterTitle {
		t.Error("章节数据应该完整读回")
	}
}

// TestSaveAllOverwrites 测试保存是整集合覆盖
func TestSaveAllOverwrites(t *testing.T) {
	store, _ := newTestStore(t)

	p1 := models.NewProject("গল্প ১", "", models.GenreDrama, models.MaturityTeen, models.LanguageStyleModern)
	p2 := models.NewProject("গল্প ২", "", models.GenreDrama, models.MaturityTeen, models.LanguageStyleModern)

	if err := store.SaveAll([]models.Project{*p1, *p2}); err != nil {
		t.Fatalf("第一次保存失败: %v", err)
	}
	if err := store.SaveAll([]models.Project{*p2}); err != nil {
		t.Fatalf("第二次保存失败: %v", err)
	}

	loaded := store.Load()
	if len(loaded) != 1 {
		t.Fatalf("整集合覆盖后应该只剩1个项目，实际: %d", len(loaded))
	}
	if loaded[0].ID != p2.ID {
		t.Error("保留的项目不正确")
	}
}

// TestChapterOverridesSurviveRoundTrip 测试章节覆盖字段的持久化
func TestChapterOverridesSurviveRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)

	p := models.NewProject("覆盖测试", "", models.GenreRomance, models.MaturityAllAges, models.LanguageStyleModern)
	genre := models.GenreHorror
	p.Chapters[0].Genre = &genre
	settings := models.DefaultGenerationSettings()
	settings.Creativity = 0.25
	p.Chapters[0].Settings = &settings

	if err := store.SaveAll([]models.Project{*p}); err != nil {
		t.Fatalf("保存失败: %v", err)
	}

	loaded := store.Load()
	if len(loaded) != 1 {
		t.Fatalf("应该读回1个项目，实际: %d", len(loaded))
	}

	chapter := &loaded[0].Chapters[0]
	if chapter.Genre == nil || *chapter.Genre != models.GenreHorror {
		t.Error("章节体裁覆盖应该被持久化")
	}
	if chapter.Settings == nil || chapter.Settings.Creativity != 0.25 {
		t.Error("章节生成参数覆盖应该被持久化")
	}
	if chapter.MaturityLevel != nil {
		t.Error("未设置的覆盖字段读回后应该保持缺席")
	}
}
