package report

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/defenseunicorns/uds-preflight-scan/pkg/types"
)

func sampleRows() []types.Row {
	return []types.Row{
		{ImageName: "amf", ImageTag: "2.1.0", TestCase: "RunAsNonRoot", Status: types.StatusPassed},
		{ImageName: "amf", ImageTag: "2.1.0", TestCase: "HasLicense", Status: types.StatusFailed},
		{ImageName: "amf", ImageTag: "2.1.0", TestCase: "HasNoProhibitedPackages", Status: types.StatusNotApplicable},
		{ImageName: "amf", ImageTag: "2.1.0", ModifiedFiles: "/etc/a.conf:/usr/lib/b.so", TestCase: "HasModifiedFiles", Status: types.StatusFailed},
		{ImageName: "smf", ImageTag: "1.0.0", TestCase: "BasedOnUbi", Status: types.StatusPassed},
	}
}

func TestWriteReadCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleRows()))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, len(sampleRows())+1)
	assert.Equal(t, "Image Name,Image Tag,Has Modified Files,Test Case,Status", lines[0])
	assert.Equal(t, "amf,2.1.0,/etc/a.conf:/usr/lib/b.so,HasModifiedFiles,FAILED", lines[4])

	rows, err := ReadCSV(&buf)
	require.NoError(t, err)
	if diff := cmp.Diff(sampleRows(), rows); diff != "" {
		t.Errorf("ReadCSV() mismatch (-want +got):\n%s", diff)
	}
}

func TestReadCSV(t *testing.T) {
	testCases := []struct {
		name    string
		input   string
		want    []types.Row
		wantErr error
	}{
		{
			name:  "normalizes statuses",
			input: "Image Name,Image Tag,Has Modified Files,Test Case,Status\nnginx,1.25,,HasLicense,ERROR\n",
			want:  []types.Row{{ImageName: "nginx", ImageTag: "1.25", TestCase: "HasLicense", Status: types.StatusNotApplicable}},
		},
		{
			name:  "header only",
			input: "Image Name,Image Tag,Has Modified Files,Test Case,Status\n",
		},
		{
			name:    "empty file",
			input:   "",
			wantErr: ErrInvalidHeader,
		},
		{
			name:    "wrong header",
			input:   "Image,Tag,Files,Case,Result\n",
			wantErr: ErrInvalidHeader,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rows, err := ReadCSV(strings.NewReader(tc.input))
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, rows)
		})
	}
}

func TestReadCSVWrongFieldCount(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("Image Name,Image Tag,Has Modified Files,Test Case,Status\nnginx,1.25\n"))
	require.Error(t, err)
}

func TestRotateFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "results.csv")

	moved, err := RotateFile(path)
	require.NoError(t, err)
	assert.False(t, moved)

	require.NoError(t, os.WriteFile(path, []byte("old"), 0o600))
	moved, err = RotateFile(path)
	require.NoError(t, err)
	assert.True(t, moved)

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	saved, err := os.ReadFile(path + "_saved")
	require.NoError(t, err)
	assert.Equal(t, "old", string(saved))
}

func TestSortRows(t *testing.T) {
	rows := sampleRows()
	sorted := SortRows(rows)

	var got []string
	for _, r := range sorted {
		got = append(got, string(r.Status)+"/"+r.TestCase)
	}
	want := []string{
		"FAILED/HasLicense",
		"FAILED/HasModifiedFiles",
		"NOT_APP/HasNoProhibitedPackages",
		"PASSED/BasedOnUbi",
		"PASSED/RunAsNonRoot",
	}
	assert.Equal(t, want, got)
	assert.Equal(t, "RunAsNonRoot", rows[0].TestCase, "input must not be reordered")
}

func TestSortRowsStable(t *testing.T) {
	rows := []types.Row{
		{ImageName: "b", TestCase: "HasLicense", Status: types.StatusFailed},
		{ImageName: "a", TestCase: "HasLicense", Status: types.StatusFailed},
	}
	sorted := SortRows(rows)
	assert.Equal(t, "b", sorted[0].ImageName)
	assert.Equal(t, "a", sorted[1].ImageName)
}

func TestCount(t *testing.T) {
	counts := Count(sampleRows())
	assert.Equal(t, 2, counts[types.StatusFailed])
	assert.Equal(t, 1, counts[types.StatusNotApplicable])
	assert.Equal(t, 2, counts[types.StatusPassed])
}

func TestWriteXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "images_scan_results.xlsx")
	require.NoError(t, WriteXLSX(path, sampleRows()))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	require.Len(t, rows, len(sampleRows())+1)
	assert.Equal(t, Header, rows[0])

	var statuses []string
	for _, r := range rows[1:] {
		statuses = append(statuses, r[4])
	}
	assert.Equal(t, []string{"FAILED", "FAILED", "NOT_APP", "PASSED", "PASSED"}, statuses)
	assert.Equal(t, "/etc/a.conf:/usr/lib/b.so", rows[2][2])

	width, err := f.GetColWidth(SheetName, "C")
	require.NoError(t, err)
	assert.InDelta(t, 40, width, 0.01)

	failedStyle, err := f.GetCellStyle(SheetName, "E2")
	require.NoError(t, err)
	passedStyle, err := f.GetCellStyle(SheetName, "E5")
	require.NoError(t, err)
	naStyle, err := f.GetCellStyle(SheetName, "E4")
	require.NoError(t, err)
	assert.NotEqual(t, failedStyle, passedStyle)
	assert.NotEqual(t, failedStyle, naStyle)
	assert.NotEqual(t, naStyle, passedStyle)

	headerStyle, err := f.GetCellStyle(SheetName, "A1")
	require.NoError(t, err)
	nameStyle, err := f.GetCellStyle(SheetName, "A2")
	require.NoError(t, err)
	assert.NotEqual(t, headerStyle, nameStyle)
}

func TestConvertCSVToXLSX(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "in.csv")
	xlsxPath := filepath.Join(dir, "out.xlsx")
	require.NoError(t, WriteCSVFile(csvPath, sampleRows()))

	n, err := ConvertCSVToXLSX(csvPath, xlsxPath)
	require.NoError(t, err)
	assert.Equal(t, len(sampleRows()), n)
	_, err = os.Stat(xlsxPath)
	require.NoError(t, err)

	_, err = ConvertCSVToXLSX(filepath.Join(dir, "missing.csv"), xlsxPath)
	require.Error(t, err)
}

func TestFormatDuration(t *testing.T) {
	testCases := []struct {
		d    time.Duration
		want string
	}{
		{0, "00h:00m:00s"},
		{65 * time.Second, "00h:01m:05s"},
		{3*time.Hour + 2*time.Minute + 1500*time.Millisecond, "03h:02m:01s"},
		{-time.Second, "00h:00m:00s"},
	}
	for _, tc := range testCases {
		t.Run(tc.want, func(t *testing.T) {
			assert.Equal(t, tc.want, FormatDuration(tc.d))
		})
	}
}

func TestPrinter(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, 0)

	res := &types.ImageScanResult{
		Target:  types.ImageTarget{Name: "amf", Tag: "2.1.0"},
		Rows:    sampleRows()[:4],
		Verdict: types.StatusFailed,
		Elapsed: 1500 * time.Millisecond,
	}
	p.PrintImage(res)
	p.PrintImage(&types.ImageScanResult{
		Target: types.ImageTarget{Name: "smf", Tag: "1.0.0"},
		Err:    os.ErrNotExist,
	})
	p.PrintSummary([]*types.ImageScanResult{res, {Err: os.ErrNotExist}}, 65*time.Second)
	p.PrintChecks([]Check{
		{Name: "preflight version", OK: true, Detail: "1.9.0"},
		{Name: "registry reachable", OK: false, Detail: "dial timeout"},
	})

	out := buf.String()
	assert.Contains(t, out, "Scanning image: amf:2.1.0")
	assert.Contains(t, out, "HasModifiedFiles")
	assert.Contains(t, out, "Verdict: FAILED")
	assert.Contains(t, out, "Time elapsed: 1.500 seconds")
	assert.Contains(t, out, "Scanning image: smf:1.0.0")
	assert.Contains(t, out, "Scan error:")
	assert.Contains(t, out, "Total Images Scanned: 2")
	assert.Contains(t, out, "Failed Scans: 1")
	assert.Contains(t, out, "Total Scan Time: 00h:01m:05s")
	assert.Contains(t, out, "NOK")
	assert.Contains(t, out, "dial timeout")

	// rows keep scan order on the console; only the spreadsheet is sorted
	first := strings.Index(out, "RunAsNonRoot")
	second := strings.Index(out, "HasLicense")
	require.NotEqual(t, -1, first)
	require.NotEqual(t, -1, second)
	assert.Less(t, first, second)
}

func TestVerdictColor(t *testing.T) {
	assert.Equal(t, text.Colors{text.FgGreen, text.Bold}, verdictColor(types.StatusPassed))
	assert.Equal(t, text.Colors{text.FgRed, text.Bold}, verdictColor(types.StatusFailed))
	assert.Equal(t, text.Colors{text.FgRed, text.Bold}, verdictColor(types.StatusNotApplicable))
	assert.Equal(t, text.Colors{text.FgRed, text.Bold}, verdictColor(""))
}
