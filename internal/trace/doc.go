// Package trace records request and subprocess timings for tidyls.
//
// Tracing is off by default. Enable it from the command line:
//
//	tidyls lsp --trace=/tmp/tidyls.ndjson --trace-level=process
//
// # Levels
//
//   - LevelOff: no tracing
//   - LevelError: only failed operations
//   - LevelRequest: LSP requests and CLI files
//   - LevelProcess: requests plus every perltidy run
//   - LevelDebug: everything
//
// # Context Propagation
//
// The tracer rides on the request context:
//
//	ctx = trace.WithTracer(ctx, tracer)
//	span := trace.Begin(trace.FromContext(ctx), trace.ScopeProcess, "perltidy", 0)
//	defer span.End("")
package trace
