// internal/app/app.go
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/WovenInk/StoryLoom/internal/api"
	"github.com/WovenInk/StoryLoom/internal/config"
	"github.com/WovenInk/StoryLoom/internal/di"
	"github.com/WovenInk/StoryLoom/internal/services"
	"github.com/WovenInk/StoryLoom/internal/storage"
	"github.com/WovenInk/StoryLoom/internal/utils"
)

// HTTPServer 抽象HTTP服务器，便于测试替换
type HTTPServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// App 应用程序单例：持有配置、路由与服务器生命周期
type App struct {
	config   *config.AppConfig
	router   http.Handler
	server   HTTPServer
	stopChan chan os.Signal
}

// 全局应用实例
var instance *App

// GetApp 获取应用实例
func GetApp() *App {
	if instance == nil {
		instance = &App{
			stopChan: make(chan os.Signal, 1),
		}
	}
	return instance
}

// GetConfig 返回应用配置
func (a *App) GetConfig() *config.AppConfig {
	return a.config
}

// GetDIContainer 获取依赖注入容器
func GetDIContainer() *di.Container {
	return di.GetContainer()
}

// IsDebugMode 检查是否处于调试模式
func IsDebugMode() bool {
	if instance == nil || instance.config == nil {
		return false
	}
	return instance.config.DebugMode
}

// Initialize 初始化应用：配置、日志、服务与路由
func Initialize() error {
	cfg := config.GetCurrentConfig()
	GetApp().config = cfg

	if err := initLogger(cfg.LogDir); err != nil {
		return fmt.Errorf("初始化日志系统失败: %w", err)
	}

	if err := InitServices(); err != nil {
		return fmt.Errorf("初始化服务失败: %w", err)
	}

	router, err := api.SetupRouter()
	if err != nil {
		return fmt.Errorf("设置路由失败: %w", err)
	}
	GetApp().router = router

	return nil
}

// initLogger 初始化日志系统，日志文件按日期命名
func initLogger(logDir string) error {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return fmt.Errorf("创建日志目录失败: %w", err)
	}

	logFile := filepath.Join(logDir, fmt.Sprintf("storyloom_%s.log", time.Now().Format("2006-01-02")))
	return utils.InitLogger(logFile)
}

// InitServices 按依赖顺序初始化所有服务并注册到容器
func InitServices() error {
	container := di.GetContainer()
	cfg := config.GetCurrentConfig()

	// 1. LLM服务（失败时降级为未就绪服务，应用仍可启动）
	llmService, err := services.NewLLMService()
	if err != nil || llmService == nil {
		llmService = services.NewEmptyLLMService()
	}
	container.Register("llm", llmService)

	// 2. 配置服务：LLM服务订阅配置变更
	configService := services.NewConfigService()
	configService.Subscribe(llmService)
	container.Register("config", configService)

	// 3. 存储与项目服务
	fileStorage, err := storage.NewFileStorage(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("初始化文件存储失败: %w", err)
	}
	container.Register("fileStorage", fileStorage)

	projectStore := storage.NewProjectStore(fileStorage)
	container.Register("projectStore", projectStore)

	projectService := services.NewProjectService(projectStore)
	container.Register("project", projectService)

	// 4. 自动保存控制器：观察项目变更，状态变化推送到WebSocket
	delay := time.Duration(cfg.AutosaveDelaySeconds) * time.Second
	autosaveService := services.NewAutosaveService(projectService, delay)

	autosaveService.SetStatusHook(func(status services.AutosaveStatus, statusErr error) {
		if active, ok := projectService.ActiveProject(); ok {
			api.BroadcastAutosaveStatus(active.ID, status, statusErr)
		}
	})
	projectService.SetMutationHook(autosaveService.NotifyMutation)
	projectService.SetSwitchHook(autosaveService.ResetBaseline)
	container.Register("autosave", autosaveService)

	// 5. 生成、朗读与导出服务
	container.Register("story", services.NewStoryService(llmService))
	container.Register("speech", services.NewSpeechService(llmService))
	container.Register("export", services.NewExportService())

	return nil
}

// Run 启动HTTP服务器并阻塞至收到停止信号
func Run() error {
	app := GetApp()

	if app.server == nil {
		port := "8080"
		if app.config != nil && app.config.Port != "" {
			port = app.config.Port
		}
		app.server = &http.Server{
			Addr:    ":" + port,
			Handler: app.router,
		}
	}

	go func() {
		if err := app.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			utils.GetLogger().Fatalf("启动服务器失败: %v", err)
		}
	}()

	signal.Notify(app.stopChan, syscall.SIGINT, syscall.SIGTERM)
	<-app.stopChan

	utils.GetLogger().Infof("正在关闭服务器...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("服务器关闭失败: %w", err)
	}

	app.cleanup()
	return nil
}

// cleanup 释放服务资源：停止自动保存计时器并尽力保存未落盘的编辑
func (a *App) cleanup() {
	container := di.GetContainer()

	if autosaveService, ok := container.Get("autosave").(*services.AutosaveService); ok && autosaveService != nil {
		if status, _ := autosaveService.Status(); status == services.AutosaveUnsaved {
			if err := autosaveService.SaveNow(); err != nil {
				utils.GetLogger().Errorf("退出前保存失败: %v", err)
			}
		}
		autosaveService.Stop()
	}

	utils.GetLogger().Infof("应用资源清理完成")
	utils.GetLogger().Close()
}
