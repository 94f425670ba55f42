package cmd

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/defenseunicorns/uds-preflight-scan/pkg/version"
)

func TestVersionString(t *testing.T) {
	var got versionInfo
	require.NoError(t, json.Unmarshal([]byte(versionString()), &got))
	require.Equal(t, version.Version, got.Version)
	require.Equal(t, version.CommitSHA, got.Commit)
}
