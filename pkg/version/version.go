// Package version holds build information set through ldflags.
package version

import "runtime/debug"

var (
	// Version can be set via:
	// -ldflags="-X 'github.com/defenseunicorns/uds-preflight-scan/pkg/version.Version=$TAG'"
	Version string
	// CommitSHA can be set via:
	// -ldflags="-X 'github.com/defenseunicorns/uds-preflight-scan/pkg/version.CommitSHA=$SHA'"
	CommitSHA string
)

func init() {
	if Version != "" && CommitSHA != "" {
		return
	}
	i, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	if Version == "" {
		Version = i.Main.Version
	}
	if CommitSHA == "" {
		for _, s := range i.Settings {
			if s.Key == "vcs.revision" {
				CommitSHA = s.Value
			}
		}
	}
}
