package scan

import (
	"bufio"
	"fmt"
	"regexp"
	"strings"

	"github.com/defenseunicorns/uds-preflight-scan/pkg/types"
)

// ModifiedFilesCheck is the test case whose failure carries the list of modified files.
const ModifiedFilesCheck = "HasModifiedFiles"

var (
	checkToken    = regexp.MustCompile(`(?:^|\s)check=("[^"]*"|\S+)`)
	resultToken   = regexp.MustCompile(`(?:^|\s)result=("[^"]*"|\S+)`)
	fileToken     = regexp.MustCompile(`(?:^|\s)file=("[^"]*"|\S+)`)
	logVerdict    = regexp.MustCompile(`result:\s*(PASSED|FAILED|NOT_APP)`)
	outputVerdict = regexp.MustCompile(`Preflight result:\s*(PASSED|FAILED|NOT_APP)`)
)

const (
	quoteTrimChars = `"`
	maxLineSize    = 4 * 1024 * 1024
)

// CheckResult is one check=<name> result=<value> pair scraped from the tool output.
type CheckResult struct {
	Check  string
	Result string
}

// ParseCheckResults returns, in order, every line of output carrying both a check and a result token.
// A line longer than maxLineSize stops the scan; the results read before it are returned with the error.
func ParseCheckResults(output string) ([]CheckResult, error) {
	var results []CheckResult
	sc := bufio.NewScanner(strings.NewReader(output))
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for sc.Scan() {
		line := sc.Text()
		c := checkToken.FindStringSubmatch(line)
		if c == nil {
			continue
		}
		r := resultToken.FindStringSubmatch(line)
		if r == nil {
			continue
		}
		results = append(results, CheckResult{
			Check:  strings.Trim(c[1], quoteTrimChars),
			Result: strings.Trim(r[1], quoteTrimChars),
		})
	}
	if err := sc.Err(); err != nil {
		return results, fmt.Errorf("error reading preflight output after %d checks: %w", len(results), err)
	}
	return results, nil
}

// ParseModifiedFiles returns the distinct file=<path> tokens of the log, in order of appearance.
func ParseModifiedFiles(log string) []string {
	var files []string
	seen := make(map[string]struct{})
	for _, m := range fileToken.FindAllStringSubmatch(log, -1) {
		f := strings.Trim(m[1], quoteTrimChars)
		if f == "" {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		files = append(files, f)
	}
	return files
}

// ParseVerdict reads the overall verdict from the log file, falling back to the
// "Preflight result:" line of the console output and finally to NOT_APP.
func ParseVerdict(log, output string) types.Status {
	if m := logVerdict.FindStringSubmatch(log); m != nil {
		return types.Status(m[1])
	}
	if m := outputVerdict.FindStringSubmatch(output); m != nil {
		return types.Status(m[1])
	}
	return types.StatusNotApplicable
}

// BuildRows turns scraped check results into table rows for target.
// Only a failed HasModifiedFiles row carries the colon-joined modifiedFiles.
func BuildRows(target types.ImageTarget, checks []CheckResult, modifiedFiles []string) []types.Row {
	rows := make([]types.Row, 0, len(checks))
	for _, c := range checks {
		status := types.NormalizeStatus(c.Result)
		row := types.Row{
			ImageName: target.Name,
			ImageTag:  target.Tag,
			TestCase:  c.Check,
			Status:    status,
		}
		if c.Check == ModifiedFilesCheck && status == types.StatusFailed {
			row.ModifiedFiles = strings.Join(modifiedFiles, ":")
		}
		rows = append(rows, row)
	}
	return rows
}

// hasFailedModifiedFiles reports whether the modified files list is needed.
func hasFailedModifiedFiles(checks []CheckResult) bool {
	for _, c := range checks {
		if c.Check == ModifiedFilesCheck && types.NormalizeStatus(c.Result) == types.StatusFailed {
			return true
		}
	}
	return false
}
