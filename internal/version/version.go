// Package version holds the build version reported by the CLI and /health.
package version

// Version is overridable at build time via -ldflags.
var Version = "0.1.0"
