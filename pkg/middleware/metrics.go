package middleware

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/agentcore/orchestrator/pkg/llm"
)

// MetricsMiddleware records the elapsed wall time of each model call in a
// histogram labeled by model name (spec §4.4).
type MetricsMiddleware struct {
	Base
	modelCallDuration *prometheus.HistogramVec
}

// NewMetricsMiddleware constructs the probe and registers its histogram
// with registerer (pass prometheus.DefaultRegisterer in production).
func NewMetricsMiddleware(registerer prometheus.Registerer) *MetricsMiddleware {
	hist := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "agentcore",
		Subsystem: "llm",
		Name:      "model_call_duration_seconds",
		Help:      "Elapsed wall time of each LLM gateway call, labeled by model.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"model"})
	registerer.MustRegister(hist)
	return &MetricsMiddleware{Base: NewBase("metrics"), modelCallDuration: hist}
}

// WrapModelCall implements Middleware.
func (m *MetricsMiddleware) WrapModelCall(next ModelCallFunc) ModelCallFunc {
	return func(ctx context.Context, req ModelRequest) (llm.Response, error) {
		start := time.Now()
		resp, err := next(ctx, req)
		elapsed := time.Since(start).Seconds()

		model := resp.Model
		if model == "" {
			model = "unknown"
		}
		m.modelCallDuration.WithLabelValues(model).Observe(elapsed)
		return resp, err
	}
}
