package form

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ReadWorkbook loads a filled-in permit sheet and returns its non-empty cells
// keyed the same way submitted form data is. An empty sheet name selects the
// first sheet.
func ReadWorkbook(r io.Reader, sheet string) (Data, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("form: open workbook: %w", err)
	}
	defer f.Close()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("form: workbook has no sheets")
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("form: read sheet %q: %w", sheet, err)
	}

	data := make(Data)
	for r, row := range rows {
		for c, cell := range row {
			if strings.TrimSpace(cell) == "" {
				continue
			}
			data[CellKey{Row: r + 1, Col: c + 1}.FormDataKey()] = cell
		}
	}
	return data, nil
}
