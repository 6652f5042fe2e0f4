package buildinfo

import "runtime"

// Set at link time:
//
//	-X 'github.com/m3rciful/afkbot/core/buildinfo.Version=v0.3.0'
//	-X 'github.com/m3rciful/afkbot/core/buildinfo.Commit=abcdef0'
//	-X 'github.com/m3rciful/afkbot/core/buildinfo.Date=2026-10-01T12:00:00Z'
var (
	// Version reports the semantic version or tag of the build.
	Version = "dev"
	// Commit reports the source control commit used for the build.
	Commit = "local"
	// Date reports the build timestamp in RFC3339 format.
	Date = ""
)

// Info is a snapshot of build metadata suitable for JSON responses.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date,omitempty"`
	GoVersion string `json:"go_version"`
}

// Current returns build metadata for the running binary.
func Current() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: runtime.Version(),
	}
}
