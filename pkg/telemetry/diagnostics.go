package telemetry

import (
	"errors"
	"sync"
	"time"

	"github.com/itsneelabh/weave/pkg/core"
	"github.com/itsneelabh/weave/pkg/logger"
)

// DefaultMaxDiagnostics bounds a collector created with max <= 0.
const DefaultMaxDiagnostics = 500

// Diagnostics keeps the most recent isolated failures in a ring and counts
// all of them by category. It implements core.DiagnosticSink.
type Diagnostics struct {
	mu     sync.Mutex
	ring   []core.Diagnostic
	next   int
	full   bool
	total  uint64
	byKind map[string]uint64
	log    logger.Logger
	now    func() time.Time
}

// NewDiagnostics creates a collector holding at most max entries. Every
// reported diagnostic is also logged at warn level.
func NewDiagnostics(max int, log logger.Logger) *Diagnostics {
	if max <= 0 {
		max = DefaultMaxDiagnostics
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Diagnostics{
		ring:   make([]core.Diagnostic, max),
		byKind: make(map[string]uint64),
		log:    log,
		now:    time.Now,
	}
}

// Report implements core.DiagnosticSink.
func (d *Diagnostics) Report(diag core.Diagnostic) {
	if diag.Time.IsZero() {
		diag.Time = d.now()
	}
	kind := Category(diag.Err)

	d.mu.Lock()
	d.ring[d.next] = diag
	d.next = (d.next + 1) % len(d.ring)
	if d.next == 0 {
		d.full = true
	}
	d.total++
	d.byKind[kind]++
	d.mu.Unlock()

	d.log.Warn("Weave diagnostic",
		"component", diag.Component,
		"category", kind,
		"class", diag.Class,
		"method", diag.Method,
		"advice", diag.Advice,
		"error", diag.Error())
}

// List returns retained diagnostics, oldest first.
func (d *Diagnostics) List() []core.Diagnostic {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.full {
		return append([]core.Diagnostic(nil), d.ring[:d.next]...)
	}
	out := make([]core.Diagnostic, 0, len(d.ring))
	out = append(out, d.ring[d.next:]...)
	return append(out, d.ring[:d.next]...)
}

// Len is the number of retained diagnostics.
func (d *Diagnostics) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.full {
		return len(d.ring)
	}
	return d.next
}

// Total counts every diagnostic ever reported, including evicted ones.
func (d *Diagnostics) Total() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.total
}

// Counts returns totals per Category.
func (d *Diagnostics) Counts() map[string]uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]uint64, len(d.byKind))
	for k, v := range d.byKind {
		out[k] = v
	}
	return out
}

// Category names the sentinel err wraps.
func Category(err error) string {
	switch {
	case errors.Is(err, core.ErrClassNotAnalyzable):
		return "class_not_analyzable"
	case errors.Is(err, core.ErrHierarchyCycle):
		return "hierarchy_cycle"
	case errors.Is(err, core.ErrAdviceBinding):
		return "advice_binding"
	case errors.Is(err, core.ErrWeaveGeneration):
		return "weave_generation"
	case errors.Is(err, core.ErrInvalidDescriptor):
		return "invalid_descriptor"
	default:
		return "other"
	}
}
