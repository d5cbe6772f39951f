// Package logger provides structured logging for the weaving engine.
//
// The Logger interface is deliberately small so hooks, the hierarchy index
// and the weaver can all accept one without importing zap:
//
//	type Logger interface {
//	    Debug(msg string, fields ...interface{})
//	    Info(msg string, fields ...interface{})
//	    Warn(msg string, fields ...interface{})
//	    Error(msg string, fields ...interface{})
//	    SetLevel(level string)
//	    WithField(key string, value interface{}) Logger
//	    WithFields(fields map[string]interface{}) Logger
//	    With(fields ...Field) Logger
//	}
//
// Fields are passed as alternating key/value pairs:
//
//	log.Warn("method left unwoven",
//	    "class", "com.example.OrderService",
//	    "method", "place(java.lang.String)",
//	    "error", err,
//	)
//
// # Implementations
//
// New builds a zap-backed logger. Format "json" produces one JSON object per
// line for log aggregation; "text" produces zap's console encoding for local
// work. NewNop returns a logger that discards everything and is the default
// for every engine component, so an embedding agent only pays for logging
// when it asks for it.
//
// # Configuration
//
// The level and format come from core.Config (WEAVE_LOG_LEVEL and
// WEAVE_LOG_FORMAT). SetLevel changes the level at runtime for the logger
// and every child created from it with With/WithField/WithFields.
package logger
