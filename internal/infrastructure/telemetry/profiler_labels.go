package telemetry

import (
	"context"
	"sort"
	"strings"

	"github.com/grafana/pyroscope-go"
)

// Profiling label keys
const (
	ProfilingLabelOperation = "operation"
	ProfilingLabelTrigger   = "trigger"
	ProfilingLabelRoute     = "route"
	ProfilingLabelMethod    = "method"
)

// MaxLabelValueLength caps label values
const MaxLabelValueLength = 128

// highCardinalityLabels are dropped: per-entity IDs blow up profile storage.
var highCardinalityLabels = map[string]bool{
	"tenant_id":  true,
	"invoice_id": true,
	"request_id": true,
	"run_id":     true,
	"trace_id":   true,
	"span_id":    true,
}

// WithProfilingLabels runs fn with pprof labels attached so Pyroscope can
// slice CPU time by them. High-cardinality keys and empty values are dropped.
//
//	telemetry.WithProfilingLabels(ctx, telemetry.OperationLabels("billing_pass", map[string]string{
//	    telemetry.ProfilingLabelTrigger: trigger,
//	}), func(c context.Context) { ... })
func WithProfilingLabels(ctx context.Context, labels map[string]string, fn func(context.Context)) {
	pairs := sanitizeLabels(labels)
	if len(pairs) == 0 {
		fn(ctx)
		return
	}
	pyroscope.TagWrapper(ctx, pyroscope.Labels(pairs...), fn)
}

// OperationLabels builds labels for a named operation
func OperationLabels(operation string, extra map[string]string) map[string]string {
	labels := make(map[string]string, len(extra)+1)
	for k, v := range extra {
		labels[k] = v
	}
	labels[ProfilingLabelOperation] = operation
	return labels
}

// HTTPRequestLabels builds labels for an HTTP route
func HTTPRequestLabels(route, method string) map[string]string {
	return map[string]string{
		ProfilingLabelRoute:  route,
		ProfilingLabelMethod: method,
	}
}

// sanitizeLabels returns sorted key/value pairs with snake_case keys
func sanitizeLabels(labels map[string]string) []string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(labels)*2)
	for _, key := range keys {
		value := labels[key]
		if value == "" || highCardinalityLabels[key] {
			continue
		}
		sanitized := sanitizeLabelKey(key)
		if sanitized == "" || highCardinalityLabels[sanitized] {
			continue
		}
		if len(value) > MaxLabelValueLength {
			value = value[:MaxLabelValueLength]
		}
		pairs = append(pairs, sanitized, value)
	}
	return pairs
}

func sanitizeLabelKey(key string) string {
	key = strings.ToLower(key)
	key = strings.NewReplacer(" ", "_", "-", "_").Replace(key)

	var b strings.Builder
	for i := 0; i < len(key); i++ {
		c := key[i]
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '_' {
			b.WriteByte(c)
		}
	}
	return b.String()
}
