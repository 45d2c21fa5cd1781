package metrics

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCollectorRecordRequest(t *testing.T) {
	c := NewCollector("test", zap.NewNop())

	c.RecordRequest("CHAT_COMPLETE", "openai", 200, 120*time.Millisecond)
	c.RecordRequest("CHAT_COMPLETE", "openai", 200, 80*time.Millisecond)
	c.RecordRequest("CHAT_COMPLETE", "anthropic", 503, time.Second)

	assert.Equal(t, float64(2),
		testutil.ToFloat64(c.requestsTotal.WithLabelValues("CHAT_COMPLETE", "openai", "200")))
	assert.Equal(t, float64(1),
		testutil.ToFloat64(c.requestsTotal.WithLabelValues("CHAT_COMPLETE", "anthropic", "503")))
}

func TestCollectorRecordTokens(t *testing.T) {
	c := NewCollector("test", zap.NewNop())

	c.RecordTokens("openai", "gpt-4o-mini", 120, 40)
	c.RecordTokens("openai", "gpt-4o-mini", 80, 10)

	assert.Equal(t, float64(200),
		testutil.ToFloat64(c.tokensUsed.WithLabelValues("openai", "gpt-4o-mini", "prompt")))
	assert.Equal(t, float64(50),
		testutil.ToFloat64(c.tokensUsed.WithLabelValues("openai", "gpt-4o-mini", "completion")))
}

func TestCollectorRecordCacheEvents(t *testing.T) {
	c := NewCollector("test", zap.NewNop())

	c.RecordCacheEvent("HIT")
	c.RecordCacheEvent("HIT")
	c.RecordCacheEvent("MISS")

	assert.Equal(t, float64(2), testutil.ToFloat64(c.cacheEventsTotal.WithLabelValues("HIT")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.cacheEventsTotal.WithLabelValues("MISS")))
}

func TestCollectorRecordOptimizer(t *testing.T) {
	c := NewCollector("test", zap.NewNop())

	c.RecordArmSelection("summarize")
	c.RecordReward("summarize", 0.8)
	c.RecordEvaluation("latency", "ok")

	assert.Equal(t, float64(1), testutil.ToFloat64(c.armSelectionsTotal.WithLabelValues("summarize")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.evaluationsTotal.WithLabelValues("latency", "ok")))
}

func TestCollectorHandlerScrapes(t *testing.T) {
	c := NewCollector("gateway", zap.NewNop())
	c.RecordRequest("CHAT_COMPLETE", "openai", 200, 10*time.Millisecond)
	c.RecordUpstream("openai", 200)
	c.RecordRetry("openai")
	c.RecordFirstToken("openai", 75*time.Millisecond)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "gateway_requests_total")
	assert.Contains(t, body, "gateway_upstream_requests_total")
	assert.Contains(t, body, "gateway_upstream_retries_total")
	assert.Contains(t, body, "gateway_first_token_seconds")
}

func TestCollectorsAreIsolated(t *testing.T) {
	a := NewCollector("iso", zap.NewNop())
	b := NewCollector("iso", zap.NewNop())

	a.RecordCacheEvent("HIT")
	assert.Equal(t, float64(1), testutil.ToFloat64(a.cacheEventsTotal.WithLabelValues("HIT")))
	assert.Equal(t, float64(0), testutil.ToFloat64(b.cacheEventsTotal.WithLabelValues("HIT")))
}
