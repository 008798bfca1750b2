// internal/api/error_codes.go
package api

// API错误代码常量
const (
	ErrCodeBadRequest      = "BAD_REQUEST"
	ErrCodeNotFound        = "RESOURCE_NOT_FOUND"
	ErrCodeProjectNotFound = "PROJECT_NOT_FOUND"
	ErrCodeChapterNotFound = "CHAPTER_NOT_FOUND"
	ErrCodeConflict        = "CONFLICT"
	ErrCodeGenerationBusy  = "GENERATION_BUSY"
	ErrCodeLLMNotReady     = "LLM_NOT_READY"
	ErrCodeStorage         = "STORAGE_ERROR"
	ErrCodeInternal        = "INTERNAL_ERROR"
)
