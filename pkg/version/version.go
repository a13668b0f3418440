// Package version holds build version information.
package version

// Version is the Shelfmark version, overridable at build time via
// -ldflags "-X github.com/shelfmark/shelfmark/pkg/version.Version=...".
var Version = "0.1.0-dev"
