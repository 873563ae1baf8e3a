// Package metrics provides Prometheus collectors for the transcript pipeline.
//
// All Recorder methods are safe to call on a nil *Recorder, so components can
// be constructed without metrics in tests and CLI runs.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MikeSquared-Agency/iepscribe/internal/llm"
)

const namespace = "iepscribe"

// Outcome labels.
const (
	OutcomeOK       = "ok"
	OutcomeUpstream = "upstream_error"
	OutcomeFormat   = "format_error"
	OutcomeOther    = "error"
)

type Recorder struct {
	registry *prometheus.Registry

	llmCalls   *prometheus.CounterVec
	llmLatency *prometheus.HistogramVec

	embeddingTexts *prometheus.CounterVec

	validationDrops    prometheus.Counter
	inferenceFallbacks prometheus.Counter
	narrativeFallbacks prometheus.Counter
	sessionsSuggested  prometheus.Counter
	analyses           *prometheus.CounterVec
}

// New creates a Recorder with its own registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	r := &Recorder{
		registry: reg,
		llmCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "calls_total",
			Help:      "LLM gateway calls by provider and outcome.",
		}, []string{"provider", "outcome"}),
		llmLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "call_duration_seconds",
			Help:      "LLM gateway call latency.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32, 64},
		}, []string{"provider"}),
		embeddingTexts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "embedding",
			Name:      "texts_total",
			Help:      "Texts resolved by the embedding cache, by result (hit or miss).",
		}, []string{"result"}),
		validationDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "extractor",
			Name:      "validation_drops_total",
			Help:      "Extracted session events dropped for failing shape validation.",
		}),
		inferenceFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "progress",
			Name:      "fallbacks_total",
			Help:      "Progress inferences that degraded to zero progress.",
		}),
		narrativeFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "narrative",
			Name:      "fallbacks_total",
			Help:      "Narrative generations that returned the fallback text.",
		}),
		sessionsSuggested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "suggested_sessions_total",
			Help:      "Suggested sessions returned to callers.",
		}),
		analyses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "analyses_total",
			Help:      "Transcript analyses by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(
		r.llmCalls, r.llmLatency, r.embeddingTexts,
		r.validationDrops, r.inferenceFallbacks, r.narrativeFallbacks,
		r.sessionsSuggested, r.analyses,
	)
	return r
}

// Registry exposes the underlying registry, mainly for tests.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func (r *Recorder) ObserveLLM(provider string, d time.Duration, err error) {
	if r == nil {
		return
	}
	r.llmCalls.WithLabelValues(provider, Outcome(err)).Inc()
	r.llmLatency.WithLabelValues(provider).Observe(d.Seconds())
}

func (r *Recorder) EmbeddingCache(hits, misses int) {
	if r == nil {
		return
	}
	r.embeddingTexts.WithLabelValues("hit").Add(float64(hits))
	r.embeddingTexts.WithLabelValues("miss").Add(float64(misses))
}

func (r *Recorder) ValidationDrop() {
	if r == nil {
		return
	}
	r.validationDrops.Inc()
}

func (r *Recorder) InferenceFallback() {
	if r == nil {
		return
	}
	r.inferenceFallbacks.Inc()
}

func (r *Recorder) NarrativeFallback() {
	if r == nil {
		return
	}
	r.narrativeFallbacks.Inc()
}

// Analysis records one transcript analysis; result is "ok", "no_sessions",
// "no_students" or "failed".
func (r *Recorder) Analysis(result string, suggested int) {
	if r == nil {
		return
	}
	r.analyses.WithLabelValues(result).Inc()
	r.sessionsSuggested.Add(float64(suggested))
}

// Outcome maps an error to its outcome label.
func Outcome(err error) string {
	var fe *llm.FormatError
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, llm.ErrUpstream):
		return OutcomeUpstream
	case errors.As(err, &fe):
		return OutcomeFormat
	default:
		return OutcomeOther
	}
}

// Gateway wraps g so every call is timed and counted under provider.
func (r *Recorder) Gateway(provider string, g llm.Gateway) llm.Gateway {
	if r == nil {
		return g
	}
	return llm.GatewayFunc(func(ctx context.Context, systemPrompt, userPrompt string, temperature float64) (string, error) {
		start := time.Now()
		out, err := g.Complete(ctx, systemPrompt, userPrompt, temperature)
		r.ObserveLLM(provider, time.Since(start), err)
		return out, err
	})
}
