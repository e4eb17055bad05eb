// Package logging provides a tiny abstraction over slog so the rest of the
// module can depend on a minimal Logger interface while letting applications
// plug in any structured logger. SessionLogger adds session/turn context and
// a helper for model-call accounting.
package logging
