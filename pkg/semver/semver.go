package semver

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/Masterminds/semver/v3"
)

// ErrNoVersion is returned when no x.y.z version can be found in a tool's output.
var ErrNoVersion = errors.New("could not determine version")

var versionPattern = regexp.MustCompile(`v?(\d+\.\d+\.\d+)`)

// ExtractVersion finds the first x.y.z version in the output of a `<tool> --version` call.
func ExtractVersion(output string) (*semver.Version, error) {
	m := versionPattern.FindStringSubmatch(output)
	if m == nil {
		return nil, fmt.Errorf("%w in %q", ErrNoVersion, output)
	}
	v, err := semver.NewVersion(m[1])
	if err != nil {
		return nil, fmt.Errorf("invalid semver: %s: %w", m[1], err)
	}
	return v, nil
}

// AtLeast reports whether the version found in output is >= minimum.
// It returns the detected version so callers can report it.
func AtLeast(output, minimum string) (bool, string, error) {
	current, err := ExtractVersion(output)
	if err != nil {
		return false, "", err
	}
	constraint, err := semver.NewConstraint(">= " + minimum)
	if err != nil {
		return false, "", fmt.Errorf("invalid minimum version %s: %w", minimum, err)
	}
	return constraint.Check(current), current.String(), nil
}
