// internal/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 生成与自动保存的基础指标，通过 /metrics 暴露。

var (
	// GenerationTotal 按类型与结果统计生成调用次数
	GenerationTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storyloom_generation_total",
		Help: "生成调用总数，按kind(generate/rewrite/continue)与status(ok/error/busy)统计",
	}, []string{"kind", "status"})

	// GenerationDuration 生成调用耗时
	GenerationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "storyloom_generation_duration_seconds",
		Help:    "生成调用耗时（秒）",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 8),
	}, []string{"kind"})

	// AutosaveTotal 按结果统计自动保存次数
	AutosaveTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storyloom_autosave_total",
		Help: "自动保存执行总数，按status(ok/error)统计",
	}, []string{"status"})

	// StorageWriteErrors 底层存储写入失败次数
	StorageWriteErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storyloom_storage_write_errors_total",
		Help: "持久化层写入失败总数",
	})

	// SpeechTotal 语音合成调用次数
	SpeechTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storyloom_speech_total",
		Help: "语音合成调用总数，按status(ok/error)统计",
	}, []string{"status"})
)
