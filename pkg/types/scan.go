package types

import (
	"time"
)

// Status is the outcome of a single preflight test case.
type Status string

const (
	// StatusPassed is reported when the check succeeded.
	StatusPassed Status = "PASSED"
	// StatusFailed is reported when the check ran and did not succeed.
	StatusFailed Status = "FAILED"
	// StatusNotApplicable covers checks that errored or did not apply to the image.
	StatusNotApplicable Status = "NOT_APP"
)

// NormalizeStatus maps a raw status token from the scanning tool onto the closed Status set.
// Anything that is not PASSED or FAILED, including ERROR, becomes NOT_APP.
func NormalizeStatus(raw string) Status {
	switch Status(raw) {
	case StatusPassed:
		return StatusPassed
	case StatusFailed:
		return StatusFailed
	default:
		return StatusNotApplicable
	}
}

// Priority returns the sort rank of the status; failures sort first.
func (s Status) Priority() int {
	switch s {
	case StatusFailed:
		return 0
	case StatusNotApplicable:
		return 1
	case StatusPassed:
		return 2
	default:
		return 3
	}
}

// Row is a single line of the result table.
type Row struct {
	ImageName     string `json:"imageName"`
	ImageTag      string `json:"imageTag"`
	ModifiedFiles string `json:"modifiedFiles,omitempty"`
	TestCase      string `json:"testCase"`
	Status        Status `json:"status"`
}

// ImageTarget is an image reference resolved from the registry or an image list file.
type ImageTarget struct {
	// Source is the entry the target was built from (a file line or a repository name).
	Source string `json:"source"`
	// Name is the last path segment of the repository, without tag or digest.
	Name string `json:"name"`
	// Tag is the tag name or the manifest digest.
	Tag string `json:"tag"`
	// InspectRef is the reference handed to the scanning tool.
	InspectRef string `json:"inspectRef"`
}

// DisplayName returns name:tag, or just the name when no tag is known.
func (t ImageTarget) DisplayName() string {
	if t.Tag == "" {
		return t.Name
	}
	return t.Name + ":" + t.Tag
}

// ImageScanResult is the outcome of running the scanning tool against one image.
type ImageScanResult struct {
	Target  ImageTarget
	Rows    []Row
	Verdict Status
	Elapsed time.Duration
	// ExitErr is set when the scanning tool ran but exited non-zero.
	ExitErr error
	// Err is set when the scan could not be run at all.
	Err error
}

// Failed reports whether the image scan should fail the run.
func (r *ImageScanResult) Failed() bool {
	return r.Err != nil || r.ExitErr != nil
}
