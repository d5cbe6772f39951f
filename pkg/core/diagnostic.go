package core

import (
	"encoding/json"
	"time"
)

// Diagnostic records a per-class or per-method failure that was isolated
// instead of aborting the operation.
type Diagnostic struct {
	Time      time.Time
	Component string
	Class     string
	Method    string
	Advice    string
	Err       error
}

func (d Diagnostic) Error() string {
	if d.Err == nil {
		return d.Component + ": unknown failure"
	}
	return d.Err.Error()
}

// Unwrap exposes the underlying error.
func (d Diagnostic) Unwrap() error { return d.Err }

// MarshalJSON renders Err as a string.
func (d Diagnostic) MarshalJSON() ([]byte, error) {
	msg := ""
	if d.Err != nil {
		msg = d.Err.Error()
	}
	return json.Marshal(struct {
		Time      time.Time `json:"time"`
		Component string    `json:"component"`
		Class     string    `json:"class,omitempty"`
		Method    string    `json:"method,omitempty"`
		Advice    string    `json:"advice,omitempty"`
		Error     string    `json:"error"`
	}{d.Time, d.Component, d.Class, d.Method, d.Advice, msg})
}

// DiagnosticSink receives isolated failures.
type DiagnosticSink interface {
	Report(d Diagnostic)
}

// DiagnosticFunc adapts a function to DiagnosticSink.
type DiagnosticFunc func(Diagnostic)

// Report calls f.
func (f DiagnosticFunc) Report(d Diagnostic) { f(d) }

// DiscardDiagnostics drops everything.
var DiscardDiagnostics DiagnosticSink = DiagnosticFunc(func(Diagnostic) {})
