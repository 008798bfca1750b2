// internal/api/response_helpers_test.go
package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	apperrors "github.com/WovenInk/StoryLoom/internal/errors"
	"github.com/gin-gonic/gin"
)

func newTestContext() (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(recorder)
	c.Request = httptest.NewRequest(http.MethodGet, "/test", nil)
	return c, recorder
}

func decodeResponse(t *testing.T, recorder *httptest.ResponseRecorder) *APIResponse {
	t.Helper()

	var response APIResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &response); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	return &response
}

// TestSuccessResponse 测试成功响应格式
func TestSuccessResponse(t *testing.T) {
	c, recorder := newTestContext()
	c.Set("request_id", "req-123")

	NewResponseHelper().Success(c, gin.H{"value": 1}, "完成")

	if recorder.Code != http.StatusOK {
		t.Errorf("状态码应该是200，实际: %d", recorder.Code)
	}

	response := decodeResponse(t, recorder)
	if !response.Success {
		t.Error("success字段应该为true")
	}
	if response.Message != "完成" {
		t.Errorf("消息不正确: %s", response.Message)
	}
	if response.RequestID != "req-123" {
		t.Errorf("请求ID应该回传，实际: %s", response.RequestID)
	}
}

// TestAppErrorMapping 测试AppError到HTTP状态码的映射
func TestAppErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"校验错误映射400", apperrors.NewValidationError("参数不合法", nil), http.StatusBadRequest, ErrCodeBadRequest},
		{"未找到映射404", apperrors.NewNotFoundError("项目不存在", nil), http.StatusNotFound, ErrCodeNotFound},
		{"冲突映射409", apperrors.NewConflictError("生成任务进行中", nil), http.StatusConflict, ErrCodeConflict},
		{"存储错误映射500", apperrors.NewStorageError("写入失败", nil), http.StatusInternalServerError, ErrCodeStorage},
		{"处理错误映射500", apperrors.NewProcessingError("生成失败", nil), http.StatusInternalServerError, ErrCodeInternal},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, recorder := newTestContext()
			NewResponseHelper().AppError(c, tc.err)

			if recorder.Code != tc.wantStatus {
				t.Errorf("状态码不正确，期望: %d，实际: %d", tc.wantStatus, recorder.Code)
			}

			response := decodeResponse(t, recorder)
			if response.Success {
				t.Error("错误响应的success字段应该为false")
			}
			if response.Error == nil || response.Error.Code != tc.wantCode {
				t.Errorf("错误代码不正确，期望: %s，实际: %+v", tc.wantCode, response.Error)
			}
		})
	}
}

// TestRequestIDMiddleware 测试请求ID中间件
func TestRequestIDMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestIDMiddleware())
	router.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString("request_id"))
	})

	// 未提供时自动生成
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/ping", nil))
	if recorder.Header().Get("X-Request-ID") == "" {
		t.Error("应该自动生成请求ID并写入响应头")
	}
	if recorder.Body.String() == "" {
		t.Error("请求ID应该写入上下文")
	}

	// 提供时透传
	recorder = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Request-ID", "client-42")
	router.ServeHTTP(recorder, req)
	if recorder.Header().Get("X-Request-ID") != "client-42" {
		t.Errorf("客户端提供的请求ID应该透传，实际: %s", recorder.Header().Get("X-Request-ID"))
	}
}
