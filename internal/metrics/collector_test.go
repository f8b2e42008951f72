package metrics

import (
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounterIsSharedByKey(t *testing.T) {
	c := NewMetricsCollector()
	a := c.Counter("runs_total", "runs", `route="echo"`)
	b := c.Counter("runs_total", "runs", `route="echo"`)
	other := c.Counter("runs_total", "runs", `route="conversation"`)

	a.Inc()
	b.Add(2)

	assert.Same(t, a, b)
	assert.Equal(t, int64(3), a.Value())
	assert.Equal(t, int64(0), other.Value())
}

func TestCounterConcurrentIncrements(t *testing.T) {
	c := NewMetricsCollector()
	ctr := c.Counter("hits_total", "hits", "")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctr.Inc()
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(50), ctr.Value())
}

func TestGauge(t *testing.T) {
	c := NewMetricsCollector()
	g := c.Gauge("active", "active runs", "")
	g.Inc()
	g.Inc()
	g.Dec()
	assert.Equal(t, int64(1), g.Value())
	g.Set(7)
	assert.Equal(t, int64(7), g.Value())
}

func TestHandlerRendersPrometheusText(t *testing.T) {
	c := NewMetricsCollector()
	c.Counter("replies_total", "replies sent", "").Add(4)
	c.Counter("dispatch_total", "dispatches", `route="echo"`).Inc()
	c.Gauge("active_runs", "in flight", "").Set(2)
	h := c.Histogram("latency_seconds", "latency", "", []float64{1, 0.1})
	h.Observe(0.05)
	h.Observe(0.5)
	h.Observe(3)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()

	require.Equal(t, 200, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain"))
	assert.Contains(t, body, "# TYPE replies_total counter")
	assert.Contains(t, body, "replies_total 4\n")
	assert.Contains(t, body, `dispatch_total{route="echo"} 1`)
	assert.Contains(t, body, "active_runs 2\n")
	assert.Contains(t, body, `latency_seconds_bucket{le="0.1"} 1`)
	assert.Contains(t, body, `latency_seconds_bucket{le="1"} 2`)
	assert.Contains(t, body, `latency_seconds_bucket{le="+Inf"} 3`)
	assert.Contains(t, body, "latency_seconds_count 3\n")
	assert.Contains(t, body, "personabot_uptime_seconds")
}

func TestPredefinedLabelledCounters(t *testing.T) {
	before := RouteDispatches("echo").Value()
	RouteDispatches("echo").Inc()
	assert.Equal(t, before+1, RouteDispatches("echo").Value())

	ChannelInputs("DISCORD").Inc()
	assert.GreaterOrEqual(t, ChannelInputs("DISCORD").Value(), int64(1))
}

func TestRunErrorsByStage(t *testing.T) {
	before := RunErrors("").Value()
	RunErrors("").Inc()
	assert.Same(t, RunErrors(""), RunErrors("handler"))
	assert.Equal(t, before+1, RunErrors("handler").Value())
	assert.NotSame(t, RunErrors("handler"), RunErrors("memory"))
}

func TestFamiliesRenderInNameOrder(t *testing.T) {
	c := NewMetricsCollector()
	c.Counter("zeta_total", "z", "").Inc()
	c.Counter("alpha_total", "a", `k="b"`).Inc()
	c.Counter("alpha_total", "a", `k="a"`).Inc()

	var sb strings.Builder
	c.Render(&sb)
	out := sb.String()

	assert.Less(t, strings.Index(out, "alpha_total"), strings.Index(out, "zeta_total"))
	assert.Less(t, strings.Index(out, `alpha_total{k="a"}`), strings.Index(out, `alpha_total{k="b"}`))
	assert.Equal(t, 1, strings.Count(out, "# TYPE alpha_total counter"))
}

func TestKindMismatchPanics(t *testing.T) {
	c := NewMetricsCollector()
	c.Counter("mixed", "m", "")
	assert.Panics(t, func() { c.Gauge("mixed", "m", "") })
}
