// Package logging builds the structured slog logger used by the server
// binary. Output format, level and destination come from the logging
// section of the YAML configuration.
package logging
