package types

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeStatus(t *testing.T) {
	testCases := []struct {
		raw  string
		want Status
	}{
		{raw: "PASSED", want: StatusPassed},
		{raw: "FAILED", want: StatusFailed},
		{raw: "NOT_APP", want: StatusNotApplicable},
		{raw: "ERROR", want: StatusNotApplicable},
		{raw: "", want: StatusNotApplicable},
		{raw: "passed", want: StatusNotApplicable},
	}

	for _, tc := range testCases {
		t.Run(tc.raw, func(t *testing.T) {
			assert.Equal(t, tc.want, NormalizeStatus(tc.raw))
		})
	}
}

func TestStatusPriority(t *testing.T) {
	assert.Less(t, StatusFailed.Priority(), StatusNotApplicable.Priority())
	assert.Less(t, StatusNotApplicable.Priority(), StatusPassed.Priority())
	assert.Less(t, StatusPassed.Priority(), Status("BOGUS").Priority())
}

func TestImageTargetDisplayName(t *testing.T) {
	assert.Equal(t, "nginx:1.25", ImageTarget{Name: "nginx", Tag: "1.25"}.DisplayName())
	assert.Equal(t, "nginx", ImageTarget{Name: "nginx"}.DisplayName())
}

func TestImageScanResultFailed(t *testing.T) {
	assert.False(t, (&ImageScanResult{}).Failed())
	assert.True(t, (&ImageScanResult{ExitErr: errors.New("exit status 1")}).Failed())
	assert.True(t, (&ImageScanResult{Err: errors.New("no such image")}).Failed())
}
