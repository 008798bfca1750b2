// internal/storage/project_store.go
package storage

import (
	"github.com/WovenInk/StoryLoom/internal/errors"
	"github.com/WovenInk/StoryLoom/internal/metrics"
	"github.com/WovenInk/StoryLoom/internal/models"
	"github.com/WovenInk/StoryLoom/internal/utils"
)

// projectsKey 项目集合的存储键。版本号升级即重置存储状态，
// 这是本系统唯一的"迁移"策略。
const projectsKey = "projects_v1.json"

// ProjectStore 项目集合的持久化存储：单一键下的整集合读写。
// 没有部分写入或事务保证，写入要么整体成功，要么将底层失败上抛。
type ProjectStore struct {
	fs *FileStorage
}

// NewProjectStore 创建项目存储
func NewProjectStore(fs *FileStorage) *ProjectStore {
	return &ProjectStore{fs: fs}
}

// Load 读取完整项目集合。数据缺失或损坏时返回空集合并记录警告，
// 从不向调用方返回错误。
func (s *ProjectStore) Load() []models.Project {
	if !s.fs.FileExists(projectsKey) {
		return []models.Project{}
	}

	var projects []models.Project
	if err := s.fs.LoadJSONFile(projectsKey, &projects); err != nil {
		utils.GetLogger().Warnf("项目数据读取失败，按空集合处理: %v", err)
		return []models.Project{}
	}

	if projects == nil {
		projects = []models.Project{}
	}
	return projects
}

// SaveAll 序列化并整体覆盖项目集合。调用方必须先组装完整的更新后序列。
func (s *ProjectStore) SaveAll(projects []models.Project) error {
	if err := s.fs.SaveJSONFile(projectsKey, projects); err != nil {
		metrics.StorageWriteErrors.Inc()
		return errors.NewStorageError("保存项目数据失败", err)
	}
	return nil
}
