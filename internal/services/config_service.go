// internal/services/config_service.go
package services

import (
	"sync"

	"github.com/WovenInk/StoryLoom/internal/config"
	apperrors "github.com/WovenInk/StoryLoom/internal/errors"
	"github.com/WovenInk/StoryLoom/internal/llm"
	"github.com/WovenInk/StoryLoom/internal/utils"
)

// ConfigSubscriber 配置变更订阅者
type ConfigSubscriber interface {
	OnConfigChanged(oldConfig, newConfig *config.AppConfig)
}

// ConfigService 运行时配置门面：封装LLM配置的读取与更新，
// 并在变更后通知订阅者（典型订阅者是LLMService）。
type ConfigService struct {
	mu          sync.RWMutex
	subscribers []ConfigSubscriber
}

// NewConfigService 创建配置服务
func NewConfigService() *ConfigService {
	return &ConfigService{}
}

// Subscribe 注册配置变更订阅者
func (s *ConfigService) Subscribe(subscriber ConfigSubscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = append(s.subscribers, subscriber)
}

// GetConfig 返回当前配置的副本
func (s *ConfigService) GetConfig() *config.AppConfig {
	return config.GetCurrentConfig()
}

// LLMSettings 面向设置页面的LLM配置视图（不暴露完整密钥）
type LLMSettings struct {
	Provider     string   `json:"provider"`
	DefaultModel string   `json:"default_model"`
	HasAPIKey    bool     `json:"has_api_key"`
	Models       []string `json:"models"`
	Providers    []string `json:"providers"`
}

// GetLLMSettings 返回设置页面所需的LLM配置视图
func (s *ConfigService) GetLLMSettings() *LLMSettings {
	cfg := config.GetCurrentConfig()

	settings := &LLMSettings{
		Provider:  cfg.LLMProvider,
		Providers: llm.ListProviders(),
	}
	if cfg.LLMConfig != nil {
		settings.DefaultModel = cfg.LLMConfig["default_model"]
		settings.HasAPIKey = cfg.LLMConfig["api_key"] != ""
	}
	settings.Models = llm.GetSupportedModelsForProvider(cfg.LLMProvider)

	return settings
}

// UpdateLLMConfig 更新LLM提供者配置并通知订阅者
func (s *ConfigService) UpdateLLMConfig(provider, apiKey, defaultModel string) error {
	if provider == "" {
		return apperrors.NewValidationError("提供者名称不能为空", nil)
	}

	oldConfig := config.GetCurrentConfig()

	newLLMConfig := map[string]string{
		"api_key":       apiKey,
		"default_model": defaultModel,
	}
	// 空密钥表示沿用已保存的密钥
	if apiKey == "" && oldConfig.LLMConfig != nil {
		newLLMConfig["api_key"] = oldConfig.LLMConfig["api_key"]
	}
	if defaultModel == "" {
		newLLMConfig["default_model"] = providerDefaultModels[provider]
	}

	if err := config.UpdateLLMConfig(provider, newLLMConfig); err != nil {
		return apperrors.NewStorageError("保存配置失败", err)
	}

	newConfig := config.GetCurrentConfig()
	utils.GetLogger().Infof("LLM配置已更新: provider=%s model=%s", provider, newLLMConfig["default_model"])

	s.mu.RLock()
	subscribers := make([]ConfigSubscriber, len(s.subscribers))
	copy(subscribers, s.subscribers)
	s.mu.RUnlock()

	for _, subscriber := range subscribers {
		subscriber.OnConfigChanged(oldConfig, newConfig)
	}

	return nil
}
