// Package logging builds the structured slog loggers shared by the audiobook packages.
//
// Two handlers are available: "json" for machine consumption and "console" for a compact
// single-line format that colours the level only when writing to a terminal. Library code
// accepts a *slog.Logger and falls back to NewNop when given nil.
package logging
