package report

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/defenseunicorns/uds-preflight-scan/pkg/types"
)

// Header is the column header of the result table, in column order.
var Header = []string{"Image Name", "Image Tag", "Has Modified Files", "Test Case", "Status"}

// ErrInvalidHeader is returned when a result CSV does not start with Header.
var ErrInvalidHeader = errors.New("invalid result csv header")

// WriteCSV writes the header and rows, in the given order.
func WriteCSV(w io.Writer, rows []types.Row) error {
	csvWriter := csv.NewWriter(w)

	if err := csvWriter.Write(Header); err != nil {
		return fmt.Errorf("error writing csv header: %w", err)
	}
	for _, r := range rows {
		record := []string{r.ImageName, r.ImageTag, r.ModifiedFiles, r.TestCase, string(r.Status)}
		if err := csvWriter.Write(record); err != nil {
			return fmt.Errorf("error writing csv record: %w", err)
		}
	}

	csvWriter.Flush()
	if err := csvWriter.Error(); err != nil {
		return fmt.Errorf("error flushing csv: %w", err)
	}
	return nil
}

// WriteCSVFile writes rows to path, replacing any existing file.
func WriteCSVFile(path string, rows []types.Row) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("error creating output file: %w", err)
	}
	if err := WriteCSV(f, rows); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("error closing %s: %w", path, err)
	}
	return nil
}

// ReadCSV parses a result CSV written by WriteCSV. Statuses are normalized.
func ReadCSV(r io.Reader) ([]types.Row, error) {
	csvReader := csv.NewReader(r)
	csvReader.FieldsPerRecord = len(Header)

	header, err := csvReader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: file is empty", ErrInvalidHeader)
		}
		return nil, fmt.Errorf("error reading csv header: %w", err)
	}
	for i, h := range Header {
		if header[i] != h {
			return nil, fmt.Errorf("%w: column %d is %q, want %q", ErrInvalidHeader, i+1, header[i], h)
		}
	}

	var rows []types.Row
	for {
		record, err := csvReader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error reading csv record: %w", err)
		}
		rows = append(rows, types.Row{
			ImageName:     record[0],
			ImageTag:      record[1],
			ModifiedFiles: record[2],
			TestCase:      record[3],
			Status:        types.NormalizeStatus(record[4]),
		})
	}
	return rows, nil
}

// ReadCSVFile reads a result CSV from path.
func ReadCSVFile(path string) ([]types.Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("input CSV %s: %w", path, err)
	}
	defer f.Close()
	return ReadCSV(f)
}

// RotateFile renames an existing path to path_saved so a new run does not overwrite it.
// It reports whether a file was moved.
func RotateFile(path string) (bool, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("error checking %s: %w", path, err)
	}
	if err := os.Rename(path, path+"_saved"); err != nil {
		return false, fmt.Errorf("error renaming file: %w", err)
	}
	return true, nil
}
