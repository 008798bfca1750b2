// internal/api/router.go
package api

import (
	"fmt"
	"path/filepath"

	"github.com/WovenInk/StoryLoom/internal/config"
	"github.com/WovenInk/StoryLoom/internal/di"
	"github.com/WovenInk/StoryLoom/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRouter 配置HTTP路由
func SetupRouter() (*gin.Engine, error) {
	cfg := config.GetCurrentConfig()

	// 只从容器获取服务，不再创建新实例
	container := di.GetContainer()

	projectService, ok := container.Get("project").(*services.ProjectService)
	if !ok {
		return nil, fmt.Errorf("项目服务未正确初始化")
	}

	autosaveService, ok := container.Get("autosave").(*services.AutosaveService)
	if !ok {
		return nil, fmt.Errorf("自动保存服务未正确初始化")
	}

	storyService, ok := container.Get("story").(*services.StoryService)
	if !ok {
		return nil, fmt.Errorf("生成服务未正确初始化")
	}

	speechService, ok := container.Get("speech").(*services.SpeechService)
	if !ok {
		return nil, fmt.Errorf("语音服务未正确初始化")
	}

	exportService, ok := container.Get("export").(*services.ExportService)
	if !ok {
		return nil, fmt.Errorf("导出服务未正确初始化")
	}

	configService, ok := container.Get("config").(*services.ConfigService)
	if !ok {
		return nil, fmt.Errorf("配置服务未正确初始化")
	}

	llmService, ok := container.Get("llm").(*services.LLMService)
	if !ok {
		return nil, fmt.Errorf("LLM服务未正确初始化")
	}

	handler := NewHandler(
		projectService,
		autosaveService,
		storyService,
		speechService,
		exportService,
		configService,
		llmService,
	)

	if !cfg.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()

	r.Use(RequestIDMiddleware())
	r.Use(CORSMiddleware())

	// 静态文件与模板
	r.Static("/static", cfg.StaticDir)
	r.LoadHTMLGlob(filepath.Join(cfg.TemplatesDir, "*.html"))

	// ===============================
	// 页面路由
	// ===============================
	r.GET("/", handler.IndexPage)
	r.GET("/settings", handler.SettingsPage)

	// WebSocket 支持
	r.GET("/ws/project/:id", handler.ProjectWebSocket)

	// Prometheus 指标
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// ===============================
	// API路由组
	// ===============================
	api := r.Group("/api")
	{
		// ===============================
		// 项目相关路由
		// ===============================
		projectsGroup := api.Group("/projects")
		{
			projectsGroup.GET("", handler.GetProjects)
			projectsGroup.POST("", handler.CreateProject)
			projectsGroup.GET("/:id", handler.OpenProject)
			projectsGroup.PUT("/:id", handler.UpdateProject)
			projectsGroup.DELETE("/:id", handler.DeleteProject)
			projectsGroup.PUT("/:id/settings", handler.UpdateProjectSettings)

			// 章节相关路由
			chaptersGroup := projectsGroup.Group("/:id/chapters")
			{
				chaptersGroup.POST("", handler.AddChapter)
				chaptersGroup.PUT("/:cid", handler.UpdateChapter)
				chaptersGroup.DELETE("/:cid", handler.RemoveChapter)
				chaptersGroup.POST("/:cid/activate", handler.ActivateChapter)
				chaptersGroup.POST("/:cid/overrides/clear", handler.ClearChapterOverrides)
			}

			// 生成相关路由
			projectsGroup.POST("/:id/generate", handler.GenerateChapter)
			projectsGroup.POST("/:id/continue", handler.ContinueStory)
			projectsGroup.POST("/:id/rewrite", handler.RewriteText)

			// 保存与导出
			projectsGroup.POST("/:id/save", handler.SaveProject)
			projectsGroup.GET("/:id/autosave", handler.GetAutosaveStatus)
			projectsGroup.GET("/:id/export", handler.ExportProject)
		}

		// ===============================
		// 朗读
		// ===============================
		api.POST("/speech", handler.SynthesizeSpeech)

		// ===============================
		// 设置相关路由
		// ===============================
		settingsGroup := api.Group("/settings")
		{
			settingsGroup.GET("", handler.GetSettings)
			settingsGroup.POST("", handler.UpdateLLMConfig)
		}

		// ===============================
		// LLM配置相关路由
		// ===============================
		llmGroup := api.Group("/llm")
		{
			llmGroup.GET("/status", handler.GetLLMStatus)
			llmGroup.GET("/models", handler.GetLLMModels)
			llmGroup.POST("/config", handler.UpdateLLMConfig)
		}

		// ===============================
		// 配置健康检查
		// ===============================
		api.GET("/config/health", handler.GetConfigHealth)

		// 调试路由
		api.GET("/ws/status", handler.GetWebSocketStatus)
	}

	return r, nil
}
