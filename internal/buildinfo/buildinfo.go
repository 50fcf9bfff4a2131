// Package buildinfo carries build-time metadata injected with -ldflags.
package buildinfo

import "fmt"

const unknown = "unknown"

// Context contains build-time metadata that is not user-configurable.
type Context struct {
	Version   string // git tag or describe output
	BuildDate string
}

// GetVersion returns the version or "unknown".
func (c *Context) GetVersion() string {
	if c == nil || c.Version == "" {
		return unknown
	}
	return c.Version
}

// GetBuildDate returns the build date or "unknown".
func (c *Context) GetBuildDate() string {
	if c == nil || c.BuildDate == "" {
		return unknown
	}
	return c.BuildDate
}

// String formats the metadata for the version command.
func (c *Context) String() string {
	return fmt.Sprintf("PneumoDetect %s (built %s)", c.GetVersion(), c.GetBuildDate())
}
