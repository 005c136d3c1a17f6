package observe

import (
	"context"
	"time"

	"github.com/talkdrill/talkdrill/pkg/provider/llm"
)

// instrumentedLLM wraps an [llm.Provider] so every completion is timed and
// counted under the provider's configured name.
type instrumentedLLM struct {
	inner   llm.Provider
	name    string
	metrics *Metrics
}

// Compile-time interface assertion.
var _ llm.Provider = (*instrumentedLLM)(nil)

// InstrumentLLM wraps p so each Complete call records an inference latency
// sample and a provider request count. A nil m falls back to
// [DefaultMetrics].
func InstrumentLLM(p llm.Provider, name string, m *Metrics) llm.Provider {
	if m == nil {
		m = DefaultMetrics()
	}
	return &instrumentedLLM{inner: p, name: name, metrics: m}
}

func (i *instrumentedLLM) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	start := time.Now()
	resp, err := i.inner.Complete(ctx, req)
	i.metrics.LLMDuration.Record(ctx, time.Since(start).Seconds())
	status := "ok"
	if err != nil {
		status = "error"
	}
	i.metrics.RecordProviderRequest(ctx, i.name, "llm", status)
	return resp, err
}
