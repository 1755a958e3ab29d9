// Package buildinfo holds build-time metadata kept apart from user configuration.
package buildinfo

import (
	"fmt"

	"github.com/google/uuid"
)

// UnknownValue is reported for metadata that was not injected at build time.
const UnknownValue = "unknown"

// Context contains the build version and the identity of this process. It is
// created once at startup and never changes.
type Context struct {
	version    string
	buildDate  string
	instanceID string
}

// NewContext creates build metadata. An empty instanceID gets a random one so
// concurrent runs can be told apart in logs.
func NewContext(version, buildDate, instanceID string) *Context {
	if instanceID == "" {
		instanceID = uuid.NewString()
	}
	return &Context{version: version, buildDate: buildDate, instanceID: instanceID}
}

func (c *Context) Version() string {
	if c == nil || c.version == "" {
		return UnknownValue
	}
	return c.version
}

func (c *Context) BuildDate() string {
	if c == nil || c.buildDate == "" {
		return UnknownValue
	}
	return c.buildDate
}

func (c *Context) InstanceID() string {
	if c == nil || c.instanceID == "" {
		return UnknownValue
	}
	return c.instanceID
}

// String is the form printed by --version.
func (c *Context) String() string {
	return fmt.Sprintf("%s (built %s)", c.Version(), c.BuildDate())
}
