// internal/services/speech_service.go
package services

import (
	"context"
	"errors"
	"strings"

	apperrors "github.com/WovenInk/StoryLoom/internal/errors"
	"github.com/WovenInk/StoryLoom/internal/llm"
	"github.com/WovenInk/StoryLoom/internal/metrics"
	"github.com/WovenInk/StoryLoom/internal/utils"
)

// maxSpeechRunes 单次朗读请求的文本长度上限（rune数）
const maxSpeechRunes = 5000

// SpeechResult 语音合成结果：base64编码的单声道16位PCM音频
type SpeechResult struct {
	AudioBase64 string `json:"audio_base64"`
	SampleRate  int    `json:"sample_rate"`
	Channels    int    `json:"channels"`
	BitDepth    int    `json:"bit_depth"`
}

// SpeechService 朗读边界适配器：将章节文本降级为纯文本后交给
// 支持语音合成的提供者。
type SpeechService struct {
	llm *LLMService
}

// NewSpeechService 创建语音服务
func NewSpeechService(llmService *LLMService) *SpeechService {
	return &SpeechService{llm: llmService}
}

// Synthesize 合成给定文本的朗读音频
func (s *SpeechService) Synthesize(ctx context.Context, text, voice string) (*SpeechResult, error) {
	plain := StripTags(text)
	if strings.TrimSpace(plain) == "" {
		return nil, apperrors.NewValidationError("没有可朗读的内容", nil)
	}
	if runes := []rune(plain); len(runes) > maxSpeechRunes {
		plain = string(runes[:maxSpeechRunes])
	}

	resp, err := s.llm.SynthesizeSpeech(ctx, llm.SpeechRequest{
		Text:  plain,
		Voice: voice,
	})
	if err != nil {
		metrics.SpeechTotal.WithLabelValues("error").Inc()
		if errors.Is(err, llm.ErrSpeechUnsupported) {
			return nil, apperrors.NewValidationError("当前提供者不支持语音合成", err)
		}
		utils.GetLogger().Errorf("语音合成失败: %v", err)
		return nil, apperrors.NewProcessingError("语音合成失败，请稍后重试", err)
	}

	metrics.SpeechTotal.WithLabelValues("ok").Inc()
	return &SpeechResult{
		AudioBase64: resp.AudioBase64,
		SampleRate:  resp.SampleRate,
		Channels:    1,
		BitDepth:    16,
	}, nil
}
