package telemetry

import (
	"encoding/json"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"
)

// StatsFunc contributes an extra section to the diagnostics document.
type StatsFunc func() any

// HandlerOption configures Handler.
type HandlerOption func(*handlerOptions)

type handlerOptions struct {
	stats map[string]StatsFunc
	tp    trace.TracerProvider
}

// WithStats adds a named section, e.g. the hierarchy index statistics.
func WithStats(name string, fn StatsFunc) HandlerOption {
	return func(o *handlerOptions) { o.stats[name] = fn }
}

// WithTracerProvider sets the provider the otelhttp wrapper uses.
func WithTracerProvider(tp trace.TracerProvider) HandlerOption {
	return func(o *handlerOptions) { o.tp = tp }
}

type diagnosticsDocument struct {
	Total   uint64            `json:"total"`
	Counts  map[string]uint64 `json:"counts"`
	Entries any               `json:"entries"`
	Stats   map[string]any    `json:"stats,omitempty"`
}

// Handler serves the collector as JSON on GET. Requests are traced with
// otelhttp and tagged with a request ID.
func Handler(d *Diagnostics, opts ...HandlerOption) http.Handler {
	o := handlerOptions{stats: make(map[string]StatsFunc)}
	for _, opt := range opts {
		opt(&o)
	}

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		doc := diagnosticsDocument{
			Total:   d.Total(),
			Counts:  d.Counts(),
			Entries: d.List(),
		}
		if len(o.stats) > 0 {
			doc.Stats = make(map[string]any, len(o.stats))
			for name, fn := range o.stats {
				doc.Stats[name] = fn()
			}
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(doc); err != nil {
			d.log.Error("Failed to encode diagnostics", "error", err, "request_id", GetRequestID(r.Context()))
		}
	})

	var otelOpts []otelhttp.Option
	if o.tp != nil {
		otelOpts = append(otelOpts, otelhttp.WithTracerProvider(o.tp))
	}
	return otelhttp.NewHandler(RequestIDMiddleware(h), "weave.diagnostics", otelOpts...)
}
