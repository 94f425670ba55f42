package cmd

import (
	"encoding/json"

	"github.com/defenseunicorns/uds-preflight-scan/pkg/version"
)

type versionInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
}

// versionString renders the build information as the --version output.
func versionString() string {
	b, err := json.Marshal(versionInfo{Version: version.Version, Commit: version.CommitSHA})
	if err != nil {
		return version.Version
	}
	return string(b)
}
