// Package logging provides slog construction and shared structured logging
// helpers: attribute constructors, standardized field names, and
// context-carried correlation fields.
package logging
