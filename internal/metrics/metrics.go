// Package metrics is the timing/metrics sink the engine reports through:
// one summary per operation name for latency, one counter per
// operation+outcome pair. It stands in for the out-of-scope metrics
// collaborator and is the concrete replacement for the original store's
// com.codahale.metrics.Timer / Timer.Context pattern.
package metrics

import (
	"net/http"
	"time"

	"github.com/VictoriaMetrics/metrics"
)

// TimeContext is started at operation entry and stopped on every exit
// path, mirroring Timer.Context.stop().
type TimeContext struct {
	op    string
	start time.Time
}

// GetTimeContext opens a timing context for op.
func GetTimeContext(op string) *TimeContext {
	return &TimeContext{op: op, start: time.Now()}
}

// Stop records the elapsed duration against this operation's summary.
func (t *TimeContext) Stop() {
	metrics.GetOrCreateSummary(`rheakv_op_duration_seconds{op="` + t.op + `"}`).Update(time.Since(t.start).Seconds())
}

// Success increments the success counter for op.
func Success(op string) {
	metrics.GetOrCreateCounter(`rheakv_op_total{op="` + op + `",result="success"}`).Inc()
}

// Failure increments the failure counter for op.
func Failure(op string) {
	metrics.GetOrCreateCounter(`rheakv_op_total{op="` + op + `",result="failure"}`).Inc()
}

// Handler exposes all registered metrics in Prometheus exposition format.
func Handler(w http.ResponseWriter, r *http.Request) {
	metrics.WritePrometheus(w, true)
}
