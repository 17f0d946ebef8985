// Package version holds build identification, overridable with -ldflags.
package version

var (
	Name    = "localprobe"
	Version = "1.0.0"
	Commit  = "unknown"
)

// UserAgent is sent on every outgoing request.
func UserAgent() string {
	return Name + "/" + Version
}
