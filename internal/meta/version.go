package meta

import (
	"fmt"
	"runtime"

	"github.com/luma/ferry/protocol"
)

// Info describes the build context of a ferry binary.
//
// Most of it is filled in at build time by the Go linker, see the vars
// below.
type Info struct {
	Version   string
	Build     string
	Branch    string
	BuildTime string
	Platform  string
	GoVersion string
	GoTag     string

	// Protocols lists the rsync protocol versions this build speaks.
	Protocols string
}

// These will be filled in using the linker -X flag
var (
	// Version as an arbitrary string
	Version string

	// Build is the Git sha from when we are building
	Build string

	// Branch is the Git branch that we are building from
	Branch string

	// BuildTimeUTC is the build time in UTC (year/month/day hour:min:sec)
	BuildTimeUTC string

	// GoTag is the Go build tags.
	GoTag string

	platform = fmt.Sprintf("%s %s", runtime.GOOS, runtime.GOARCH)
)

// GetInfo returns an Info struct populated with the build information.
func GetInfo() Info {
	return Info{
		GoVersion: runtime.Version(),
		Version:   Version,
		Build:     Build,
		Branch:    Branch,
		BuildTime: BuildTimeUTC,
		GoTag:     GoTag,
		Platform:  platform,
		Protocols: protocol.SupportedProtocolsDisplay(),
	}
}

func (i Info) String() string {
	version := i.Version
	if version == "" {
		version = "dev"
	}

	return fmt.Sprintf("ferry %s (%s, %s) protocols %s, %s", version, i.Build, i.Platform, i.Protocols, i.GoVersion)
}
