// Package buildinfo contains build-time metadata separate from user configuration
package buildinfo

import (
	"fmt"
	"runtime"
)

// UnknownValue is reported for metadata that was not injected at build time
const UnknownValue = "unknown"

// Context contains build-time metadata that is not user-configurable.
// main injects it from -ldflags.
type Context struct {
	// Version holds the Git version tag from build
	Version string

	// BuildDate is the time when the binary was built
	BuildDate string

	// Commit is the Git revision the binary was built from
	Commit string
}

// NewContext creates a new build info context
func NewContext(version, buildDate, commit string) *Context {
	return &Context{Version: version, BuildDate: buildDate, Commit: commit}
}

// GetVersion returns the version or UnknownValue
func (c *Context) GetVersion() string {
	if c == nil || c.Version == "" {
		return UnknownValue
	}
	return c.Version
}

// GetBuildDate returns the build date or UnknownValue
func (c *Context) GetBuildDate() string {
	if c == nil || c.BuildDate == "" {
		return UnknownValue
	}
	return c.BuildDate
}

// GetCommit returns the commit or UnknownValue
func (c *Context) GetCommit() string {
	if c == nil || c.Commit == "" {
		return UnknownValue
	}
	return c.Commit
}

// String formats the metadata for the version command
func (c *Context) String() string {
	return fmt.Sprintf("usagipass-migrate %s (commit %s, built %s, %s %s/%s)",
		c.GetVersion(), c.GetCommit(), c.GetBuildDate(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
