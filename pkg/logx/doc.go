// Package logx configures the structured logging shared by the notify,
// scheduler, and dashboard binaries.
//
// This repo uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - Log level and sinks re-appliable on config reload
package logx
