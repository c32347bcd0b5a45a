package form

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var cellKeyPattern = regexp.MustCompile(`^R(\d+)C(\d+)$`)

// CellKey is a 1-based template coordinate written as R{row}C{col}.
type CellKey struct {
	Row int
	Col int
}

// ParseCellKey parses "R5C3". Rows and columns must be positive.
func ParseCellKey(s string) (CellKey, error) {
	m := cellKeyPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return CellKey{}, fmt.Errorf("form: malformed cell key %q", s)
	}
	row, err := strconv.Atoi(m[1])
	if err != nil {
		return CellKey{}, fmt.Errorf("form: cell key %q row: %w", s, err)
	}
	col, err := strconv.Atoi(m[2])
	if err != nil {
		return CellKey{}, fmt.Errorf("form: cell key %q col: %w", s, err)
	}
	if row < 1 || col < 1 {
		return CellKey{}, fmt.Errorf("form: cell key %q is not 1-based", s)
	}
	return CellKey{Row: row, Col: col}, nil
}

// String renders the key back as R{row}C{col}.
func (k CellKey) String() string {
	return fmt.Sprintf("R%dC%d", k.Row, k.Col)
}

// FormDataKey is the zero-based "{row-1}-{col-1}" key used by submitted form
// data. R5C3 maps to "4-2".
func (k CellKey) FormDataKey() string {
	return fmt.Sprintf("%d-%d", k.Row-1, k.Col-1)
}

// CellKeyFromFormDataKey is the inverse of FormDataKey.
func CellKeyFromFormDataKey(s string) (CellKey, error) {
	r, c, ok := strings.Cut(strings.TrimSpace(s), "-")
	if !ok {
		return CellKey{}, fmt.Errorf("form: malformed form data key %q", s)
	}
	row, err := strconv.Atoi(r)
	if err != nil || row < 0 {
		return CellKey{}, fmt.Errorf("form: malformed form data key %q", s)
	}
	col, err := strconv.Atoi(c)
	if err != nil || col < 0 {
		return CellKey{}, fmt.Errorf("form: malformed form data key %q", s)
	}
	return CellKey{Row: row + 1, Col: col + 1}, nil
}
