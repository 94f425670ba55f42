package report

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/defenseunicorns/uds-preflight-scan/pkg/types"
)

// SheetName is the name of the single worksheet in the workbook.
const SheetName = "Scan Results"

const (
	headerFill = "ADD8E6"
	black      = "000000"
)

// statusColors are the font colors of the Status column.
var statusColors = map[types.Status]string{
	types.StatusPassed:        "006400",
	types.StatusFailed:        "FF0000",
	types.StatusNotApplicable: "FFA500",
}

// columnWidths are indexed by column letter, A through E.
var columnWidths = []struct {
	col   string
	width float64
}{
	{"A", 20},
	{"B", 30},
	{"C", 40},
	{"D", 30},
	{"E", 20},
}

type sheetStyles struct {
	header int
	left   int
	center int
	wrap   int
	status map[types.Status]int
}

func newSheetStyles(f *excelize.File) (*sheetStyles, error) {
	s := &sheetStyles{status: make(map[types.Status]int, len(statusColors))}
	var err error

	s.header, err = f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{headerFill}, Pattern: 1},
		Font:      &excelize.Font{Bold: true, Color: black},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return nil, fmt.Errorf("error creating header style: %w", err)
	}
	s.left, err = f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{Horizontal: "left", Vertical: "center"},
	})
	if err != nil {
		return nil, fmt.Errorf("error creating cell style: %w", err)
	}
	s.center, err = f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return nil, fmt.Errorf("error creating cell style: %w", err)
	}
	s.wrap, err = f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{Horizontal: "left", Vertical: "center", WrapText: true},
	})
	if err != nil {
		return nil, fmt.Errorf("error creating cell style: %w", err)
	}
	for status, color := range statusColors {
		id, err := f.NewStyle(&excelize.Style{
			Font:      &excelize.Font{Color: color},
			Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
		})
		if err != nil {
			return nil, fmt.Errorf("error creating %s style: %w", status, err)
		}
		s.status[status] = id
	}
	return s, nil
}

// styleFor returns the style of a data cell in column col (1-based).
func (s *sheetStyles) styleFor(col int, status types.Status) int {
	switch col {
	case 2:
		return s.center
	case 3:
		return s.wrap
	case 5:
		if id, ok := s.status[status]; ok {
			return id
		}
		return s.center
	default:
		return s.left
	}
}

// WriteXLSX writes rows to a styled single-sheet workbook at path. Rows are sorted with SortRows first.
func WriteXLSX(path string, rows []types.Row) (err error) {
	f := excelize.NewFile()
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("error closing workbook: %w", cerr)
		}
	}()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return fmt.Errorf("error naming sheet: %w", err)
	}
	for _, cw := range columnWidths {
		if err := f.SetColWidth(SheetName, cw.col, cw.col, cw.width); err != nil {
			return fmt.Errorf("error setting width of column %s: %w", cw.col, err)
		}
	}

	styles, err := newSheetStyles(f)
	if err != nil {
		return err
	}

	header := make([]interface{}, len(Header))
	for i, h := range Header {
		header[i] = h
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return fmt.Errorf("error writing header: %w", err)
	}
	if err := f.SetCellStyle(SheetName, "A1", "E1", styles.header); err != nil {
		return fmt.Errorf("error styling header: %w", err)
	}

	for i, r := range SortRows(rows) {
		rowNum := i + 2
		values := []string{r.ImageName, r.ImageTag, r.ModifiedFiles, r.TestCase, string(r.Status)}
		for col, v := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, rowNum)
			if err != nil {
				return err
			}
			if err := f.SetCellStr(SheetName, cell, v); err != nil {
				return fmt.Errorf("error writing cell %s: %w", cell, err)
			}
			if err := f.SetCellStyle(SheetName, cell, cell, styles.styleFor(col+1, r.Status)); err != nil {
				return fmt.Errorf("error styling cell %s: %w", cell, err)
			}
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("error saving workbook %s: %w", path, err)
	}
	return nil
}

// ConvertCSVToXLSX reads a result CSV and writes it as a styled workbook.
func ConvertCSVToXLSX(csvPath, xlsxPath string) (int, error) {
	rows, err := ReadCSVFile(csvPath)
	if err != nil {
		return 0, err
	}
	if err := WriteXLSX(xlsxPath, rows); err != nil {
		return 0, err
	}
	return len(rows), nil
}
