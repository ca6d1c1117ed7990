// Package log provides structured logging for Shortlist using zerolog.
//
// All components receive a child logger built from the global instance via
// Init(Config{...}) at process startup, then WithComponent/WithNode/WithTask/
// WithRegion for the context fields that accompany every line a loop emits.
// JSON output is the default for production; console output is useful when
// running a node interactively.
package log
