// internal/api/handlers.go
package api

import (
	"net/http"
	"time"

	apperrors "github.com/WovenInk/StoryLoom/internal/errors"
	"github.com/WovenInk/StoryLoom/internal/models"
	"github.com/WovenInk/StoryLoom/internal/services"
	"github.com/gin-gonic/gin"
)

// Handler 处理API请求
type Handler struct {
	ProjectService  *services.ProjectService  // 项目状态服务
	AutosaveService *services.AutosaveService // 自动保存控制器
	StoryService    *services.StoryService    // 文本生成服务
	SpeechService   *services.SpeechService   // 语音合成服务
	ExportService   *services.ExportService   // 导出服务
	ConfigService   *services.ConfigService   // 配置服务
	LLMService      *services.LLMService      // LLM服务
	Response        *ResponseHelper           // 响应助手
}

// NewHandler 创建API处理器
func NewHandler(
	projectService *services.ProjectService,
	autosaveService *services.AutosaveService,
	storyService *services.StoryService,
	speechService *services.SpeechService,
	exportService *services.ExportService,
	configService *services.ConfigService,
	llmService *services.LLMService,
) *Handler {
	return &Handler{
		ProjectService:  projectService,
		AutosaveService: autosaveService,
		StoryService:    storyService,
		SpeechService:   speechService,
		ExportService:   exportService,
		ConfigService:   configService,
		LLMService:      llmService,
		Response:        NewResponseHelper(),
	}
}

// ========================================
// 请求结构
// ========================================

// CreateProjectRequest 创建项目的请求结构
type CreateProjectRequest struct {
	Title         string `json:"title"`          // 项目标题
	Description   string `json:"description"`    // 项目简介
	Genre         string `json:"genre"`          // 体裁
	MaturityLevel string `json:"maturity_level"` // 内容分级
	LanguageStyle string `json:"language_style"` // 语言风格
}

// UpdateProjectRequest 更新项目元数据的请求结构
type UpdateProjectRequest struct {
	Title         string `json:"title"`
	Description   string `json:"description"`
	Genre         string `json:"genre"`
	MaturityLevel string `json:"maturity_level"`
	LanguageStyle string `json:"language_style"`
}

// UpdateProjectSettingsRequest 更新项目级默认生成参数的请求结构
type UpdateProjectSettingsRequest struct {
	Creativity         float64 `json:"creativity"`
	Length             string  `json:"length"`
	Tone               string  `json:"tone"`
	CustomSystemPrompt string  `json:"custom_system_prompt"`
}

// AddChapterRequest 新增章节的请求结构
type AddChapterRequest struct {
	Title string `json:"title"` // 为空时自动按序命名
}

// UpdateChapterRequest 更新章节的请求结构。
// 所有字段都是可选的；未出现的字段不做变更。
// 分类覆盖字段传空字符串表示清除该项覆盖。
type UpdateChapterRequest struct {
	Title              *string  `json:"title,omitempty"`
	Content            *string  `json:"content,omitempty"`
	Genre              *string  `json:"genre,omitempty"`
	MaturityLevel      *string  `json:"maturity_level,omitempty"`
	LanguageStyle      *string  `json:"language_style,omitempty"`
	Creativity         *float64 `json:"creativity,omitempty"`
	Length             *string  `json:"length,omitempty"`
	Tone               *string  `json:"tone,omitempty"`
	CustomSystemPrompt *string  `json:"custom_system_prompt,omitempty"`
}

// GenerateRequest 生成/续写的请求结构
type GenerateRequest struct {
	ChapterID string `json:"chapter_id"`
}

// RewriteRequest 改写的请求结构
type RewriteRequest struct {
	Text        string `json:"text"`        // 待改写的文本
	Instruction string `json:"instruction"` // 改写指令
}

// SpeechRequest 朗读的请求结构
type SpeechRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice"`
}

// UpdateLLMConfigRequest 更新LLM配置的请求结构
type UpdateLLMConfigRequest struct {
	Provider     string `json:"provider"`
	APIKey       string `json:"api_key"`
	DefaultModel string `json:"default_model"`
}

// ========================================
// 页面路由
// ========================================

// IndexPage 渲染主编辑页面
func (h *Handler) IndexPage(c *gin.Context) {
	c.HTML(http.StatusOK, "index.html", gin.H{
		"title": "StoryLoom",
	})
}

// SettingsPage 渲染设置页面
func (h *Handler) SettingsPage(c *gin.Context) {
	c.HTML(http.StatusOK, "settings.html", gin.H{
		"title":    "StoryLoom - সেটিংস",
		"settings": h.ConfigService.GetLLMSettings(),
	})
}

// ========================================
// 项目管理
// ========================================

// GetProjects 返回已保存的项目集合
func (h *Handler) GetProjects(c *gin.Context) {
	h.Response.Success(c, h.ProjectService.Projects())
}

// CreateProject 创建新项目并设为活动项目
func (h *Handler) CreateProject(c *gin.Context) {
	var req CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "请求格式错误", err.Error())
		return
	}

	if req.Title == "" {
		h.Response.BadRequest(c, "项目标题不能为空")
		return
	}

	project := h.ProjectService.CreateProject(
		req.Title,
		req.Description,
		models.Genre(req.Genre),
		models.MaturityLevel(req.MaturityLevel),
		models.LanguageStyle(req.LanguageStyle),
	)

	h.Response.Created(c, project, "项目创建成功")
}

// OpenProject 打开项目作为活动项目并返回完整数据
func (h *Handler) OpenProject(c *gin.Context) {
	projectID := c.Param("id")

	// 已是活动项目时直接返回工作副本，避免丢弃未保存的编辑
	if active, ok := h.ProjectService.ActiveProject(); ok && active.ID == projectID {
		h.Response.Success(c, active)
		return
	}

	project, err := h.ProjectService.OpenProject(projectID)
	if err != nil {
		h.Response.AppError(c, err)
		return
	}

	h.Response.Success(c, project)
}

// DeleteProject 删除项目
func (h *Handler) DeleteProject(c *gin.Context) {
	if err := h.ProjectService.DeleteProject(c.Param("id")); err != nil {
		h.Response.AppError(c, err)
		return
	}
	h.Response.Success(c, nil, "项目已删除")
}

// UpdateProject 更新活动项目的元数据
func (h *Handler) UpdateProject(c *gin.Context) {
	if !h.requireActive(c) {
		return
	}

	var req UpdateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "请求格式错误", err.Error())
		return
	}

	err := h.ProjectService.UpdateProjectMeta(
		req.Title,
		req.Description,
		models.Genre(req.Genre),
		models.MaturityLevel(req.MaturityLevel),
		models.LanguageStyle(req.LanguageStyle),
	)
	if err != nil {
		h.Response.AppError(c, err)
		return
	}

	h.Response.Success(c, nil, "项目已更新")
}

// UpdateProjectSettings 更新活动项目的默认生成参数
func (h *Handler) UpdateProjectSettings(c *gin.Context) {
	if !h.requireActive(c) {
		return
	}

	var req UpdateProjectSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "请求格式错误", err.Error())
		return
	}

	err := h.ProjectService.UpdateProjectSettings(models.GenerationSettings{
		Creativity:         req.Creativity,
		Length:             models.StoryLength(req.Length),
		Tone:               req.Tone,
		CustomSystemPrompt: req.CustomSystemPrompt,
	})
	if err != nil {
		h.Response.AppError(c, err)
		return
	}

	h.Response.Success(c, nil, "生成参数已更新")
}

// ========================================
// 章节管理
// ========================================

// AddChapter 新增章节
func (h *Handler) AddChapter(c *gin.Context) {
	if !h.requireActive(c) {
		return
	}

	var req AddChapterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "请求格式错误", err.Error())
		return
	}

	chapter, err := h.ProjectService.AddChapter(req.Title)
	if err != nil {
		h.Response.AppError(c, err)
		return
	}

	h.Response.Created(c, chapter, "章节已创建")
}

// RemoveChapter 删除章节
func (h *Handler) RemoveChapter(c *gin.Context) {
	if !h.requireActive(c) {
		return
	}

	if err := h.ProjectService.RemoveChapter(c.Param("cid")); err != nil {
		h.Response.AppError(c, err)
		return
	}
	h.Response.Success(c, nil, "章节已删除")
}

// UpdateChapter 更新章节内容、标题或章节级覆盖
func (h *Handler) UpdateChapter(c *gin.Context) {
	if !h.requireActive(c) {
		return
	}

	var req UpdateChapterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "请求格式错误", err.Error())
		return
	}

	chapterID := c.Param("cid")
	if err := h.applyChapterUpdate(chapterID, &req); err != nil {
		h.Response.AppError(c, err)
		return
	}

	h.Response.Success(c, nil, "章节已更新")
}

// applyChapterUpdate 按字段应用章节更新
func (h *Handler) applyChapterUpdate(chapterID string, req *UpdateChapterRequest) error {
	if req.Title != nil {
		if err := h.ProjectService.UpdateChapterTitle(chapterID, *req.Title); err != nil {
			return err
		}
	}
	if req.Content != nil {
		if err := h.ProjectService.UpdateChapterContent(chapterID, *req.Content); err != nil {
			return err
		}
	}
	if req.Genre != nil {
		var genre *models.Genre
		if *req.Genre != "" {
			value := models.Genre(*req.Genre)
			genre = &value
		}
		if err := h.ProjectService.SetChapterGenre(chapterID, genre); err != nil {
			return err
		}
	}
	if req.MaturityLevel != nil {
		var maturity *models.MaturityLevel
		if *req.MaturityLevel != "" {
			value := models.MaturityLevel(*req.MaturityLevel)
			maturity = &value
		}
		if err := h.ProjectService.SetChapterMaturity(chapterID, maturity); err != nil {
			return err
		}
	}
	if req.LanguageStyle != nil {
		var style *models.LanguageStyle
		if *req.LanguageStyle != "" {
			value := models.LanguageStyle(*req.LanguageStyle)
			style = &value
		}
		if err := h.ProjectService.SetChapterLanguageStyle(chapterID, style); err != nil {
			return err
		}
	}
	if req.Creativity != nil {
		if err := h.ProjectService.SetChapterCreativity(chapterID, *req.Creativity); err != nil {
			return err
		}
	}
	if req.Length != nil {
		if err := h.ProjectService.SetChapterLength(chapterID, models.StoryLength(*req.Length)); err != nil {
			return err
		}
	}
	if req.Tone != nil {
		if err := h.ProjectService.SetChapterTone(chapterID, *req.Tone); err != nil {
			return err
		}
	}
	if req.CustomSystemPrompt != nil {
		if err := h.ProjectService.SetChapterCustomPrompt(chapterID, *req.CustomSystemPrompt); err != nil {
			return err
		}
	}
	return nil
}

// ActivateChapter 切换活动章节
func (h *Handler) ActivateChapter(c *gin.Context) {
	if !h.requireActive(c) {
		return
	}

	active, _ := h.ProjectService.ActiveProject()
	index, _ := active.ChapterByID(c.Param("cid"))
	if index < 0 {
		h.Response.NotFound(c, "章节不存在")
		return
	}

	if err := h.ProjectService.SetActiveChapter(index); err != nil {
		h.Response.AppError(c, err)
		return
	}
	h.Response.Success(c, gin.H{"active_chapter": index})
}

// ClearChapterOverrides 清除章节的全部覆盖
func (h *Handler) ClearChapterOverrides(c *gin.Context) {
	if !h.requireActive(c) {
		return
	}

	if err := h.ProjectService.ClearChapterOverrides(c.Param("cid")); err != nil {
		h.Response.AppError(c, err)
		return
	}
	h.Response.Success(c, nil, "章节覆盖已清除")
}

// ========================================
// 生成相关
// ========================================

// GenerateChapter 为章节生成正文并写回
func (h *Handler) GenerateChapter(c *gin.Context) {
	projectID := c.Param("id")
	if !h.requireActive(c) {
		return
	}

	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "请求格式错误", err.Error())
		return
	}

	active, _ := h.ProjectService.ActiveProject()
	index, _ := active.ChapterByID(req.ChapterID)
	if index < 0 {
		h.Response.NotFound(c, "章节不存在")
		return
	}

	input, err := services.BuildGenerationInput(&active, index)
	if err != nil {
		h.Response.AppError(c, err)
		return
	}

	h.broadcastGeneration(projectID, "generate", "started", req.ChapterID)
	text, err := h.StoryService.GenerateChapter(c.Request.Context(), projectID, input)
	if err != nil {
		h.broadcastGeneration(projectID, "generate", "failed", req.ChapterID)
		h.Response.AppError(c, err)
		return
	}

	if err := h.ProjectService.UpdateChapterContent(req.ChapterID, text); err != nil {
		h.Response.AppError(c, err)
		return
	}

	h.broadcastGeneration(projectID, "generate", "finished", req.ChapterID)
	h.Response.Success(c, gin.H{"chapter_id": req.ChapterID, "content": text})
}

// ContinueStory 续写章节并将新文本追加到末尾
func (h *Handler) ContinueStory(c *gin.Context) {
	projectID := c.Param("id")
	if !h.requireActive(c) {
		return
	}

	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "请求格式错误", err.Error())
		return
	}

	active, _ := h.ProjectService.ActiveProject()
	index, chapter := active.ChapterByID(req.ChapterID)
	if index < 0 {
		h.Response.NotFound(c, "章节不存在")
		return
	}

	input, err := services.BuildGenerationInput(&active, index)
	if err != nil {
		h.Response.AppError(c, err)
		return
	}

	h.broadcastGeneration(projectID, "continue", "started", req.ChapterID)
	text, err := h.StoryService.ContinueStory(c.Request.Context(), projectID, chapter.Content, input)
	if err != nil {
		h.broadcastGeneration(projectID, "continue", "failed", req.ChapterID)
		h.Response.AppError(c, err)
		return
	}

	if err := h.ProjectService.AppendChapterContent(req.ChapterID, "\n"+text); err != nil {
		h.Response.AppError(c, err)
		return
	}

	h.broadcastGeneration(projectID, "continue", "finished", req.ChapterID)
	h.Response.Success(c, gin.H{"chapter_id": req.ChapterID, "appended": text})
}

// RewriteText 按指令改写给定文本，结果交由前端决定如何插入
func (h *Handler) RewriteText(c *gin.Context) {
	projectID := c.Param("id")
	if !h.requireActive(c) {
		return
	}

	var req RewriteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "请求格式错误", err.Error())
		return
	}
	if req.Instruction == "" {
		h.Response.BadRequest(c, "改写指令不能为空")
		return
	}

	active, _ := h.ProjectService.ActiveProject()
	index := h.ProjectService.ActiveChapterIndex()
	genre := active.Genre
	if index >= 0 && index < len(active.Chapters) {
		genre = models.EffectiveGenre(&active, &active.Chapters[index])
	}

	text, err := h.StoryService.RewriteText(c.Request.Context(), projectID, req.Text, req.Instruction, genre)
	if err != nil {
		h.Response.AppError(c, err)
		return
	}

	h.Response.Success(c, gin.H{"rewritten": text})
}

// ========================================
// 保存与导出
// ========================================

// SaveProject 手动保存活动项目
func (h *Handler) SaveProject(c *gin.Context) {
	if !h.requireActive(c) {
		return
	}

	if err := h.AutosaveService.SaveNow(); err != nil {
		h.Response.AppError(c, apperrors.NewStorageError("保存失败", err))
		return
	}

	status, _ := h.AutosaveService.Status()
	h.Response.Success(c, gin.H{"status": status}, "保存成功")
}

// GetAutosaveStatus 查询自动保存状态
func (h *Handler) GetAutosaveStatus(c *gin.Context) {
	status, lastErr := h.AutosaveService.Status()

	data := gin.H{"status": status}
	if lastErr != nil {
		data["last_error"] = lastErr.Error()
	}
	h.Response.Success(c, data)
}

// ExportProject 导出活动项目
func (h *Handler) ExportProject(c *gin.Context) {
	if !h.requireActive(c) {
		return
	}

	active, _ := h.ProjectService.ActiveProject()
	format := c.DefaultQuery("format", "markdown")

	result, err := h.ExportService.Export(&active, format)
	if err != nil {
		h.Response.AppError(c, err)
		return
	}

	h.Response.FileResponse(c, result.Content, result.FileName, result.ContentType)
}

// ========================================
// 朗读
// ========================================

// SynthesizeSpeech 合成朗读音频
func (h *Handler) SynthesizeSpeech(c *gin.Context) {
	var req SpeechRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "请求格式错误", err.Error())
		return
	}

	result, err := h.SpeechService.Synthesize(c.Request.Context(), req.Text, req.Voice)
	if err != nil {
		h.Response.AppError(c, err)
		return
	}

	h.Response.Success(c, result)
}

// ========================================
// 设置与LLM配置
// ========================================

// GetSettings 返回设置页面所需的配置视图
func (h *Handler) GetSettings(c *gin.Context) {
	h.Response.Success(c, h.ConfigService.GetLLMSettings())
}

// UpdateLLMConfig 更新LLM提供者配置
func (h *Handler) UpdateLLMConfig(c *gin.Context) {
	var req UpdateLLMConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "请求格式错误", err.Error())
		return
	}

	if err := h.ConfigService.UpdateLLMConfig(req.Provider, req.APIKey, req.DefaultModel); err != nil {
		h.Response.AppError(c, err)
		return
	}

	h.Response.Success(c, h.ConfigService.GetLLMSettings(), "配置已更新")
}

// GetLLMStatus 查询LLM服务就绪状态
func (h *Handler) GetLLMStatus(c *gin.Context) {
	h.Response.Success(c, gin.H{
		"ready":    h.LLMService.IsReady(),
		"state":    h.LLMService.ReadyState(),
		"provider": h.LLMService.ProviderName(),
	})
}

// GetLLMModels 查询当前提供者支持的模型列表
func (h *Handler) GetLLMModels(c *gin.Context) {
	h.Response.Success(c, gin.H{
		"provider": h.LLMService.ProviderName(),
		"models":   h.LLMService.SupportedModels(),
	})
}

// GetConfigHealth 配置健康检查
func (h *Handler) GetConfigHealth(c *gin.Context) {
	cfg := h.ConfigService.GetConfig()
	h.Response.Success(c, gin.H{
		"healthy":          true,
		"llm_ready":        h.LLMService.IsReady(),
		"llm_provider":     cfg.LLMProvider,
		"autosave_seconds": cfg.AutosaveDelaySeconds,
		"timestamp":        time.Now().Format(time.RFC3339),
	})
}

// ========================================
// WebSocket
// ========================================

// ProjectWebSocket 建立项目状态推送连接
func (h *Handler) ProjectWebSocket(c *gin.Context) {
	projectID := c.Param("id")
	if projectID == "" {
		h.Response.BadRequest(c, "缺少项目ID")
		return
	}

	if err := serveProjectWebSocket(c.Writer, c.Request, projectID); err != nil {
		h.Response.InternalError(c, "WebSocket升级失败", err.Error())
	}
}

// GetWebSocketStatus 获取 WebSocket 连接状态（调试用）
func (h *Handler) GetWebSocketStatus(c *gin.Context) {
	status := wsManager.GetStatus()
	status["timestamp"] = time.Now().Format(time.RFC3339)
	c.JSON(http.StatusOK, status)
}

// BroadcastAutosaveStatus 供接线阶段注册为自动保存状态钩子
func BroadcastAutosaveStatus(projectID string, status services.AutosaveStatus, err error) {
	message := map[string]interface{}{
		"type":      "autosave",
		"status":    string(status),
		"timestamp": time.Now().Format(time.RFC3339),
	}
	if err != nil {
		message["error"] = err.Error()
	}
	wsManager.BroadcastToProject(projectID, message)
}

// broadcastGeneration 推送生成任务的状态变化
func (h *Handler) broadcastGeneration(projectID, kind, state, chapterID string) {
	wsManager.BroadcastToProject(projectID, map[string]interface{}{
		"type":       "generation",
		"kind":       kind,
		"state":      state,
		"chapter_id": chapterID,
		"timestamp":  time.Now().Format(time.RFC3339),
	})
}

// requireActive 校验路径中的项目ID是当前活动项目
func (h *Handler) requireActive(c *gin.Context) bool {
	projectID := c.Param("id")

	active, ok := h.ProjectService.ActiveProject()
	if !ok {
		h.Response.Conflict(c, "没有打开的项目")
		return false
	}
	if active.ID != projectID {
		h.Response.Conflict(c, "项目未打开: "+projectID)
		return false
	}
	return true
}
