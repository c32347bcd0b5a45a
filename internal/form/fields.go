// Package form models the spreadsheet-like permit templates: which cells hold
// which logical fields, and the values submitted for them.
package form

import (
	"fmt"
	"strconv"
	"strings"
)

// Field types assigned by the template parser.
const (
	TypeText       = "text"
	TypeDepartment = "department"
	TypeDate       = "date"
	TypeNumber     = "number"
	TypePersonnel  = "personnel"
	TypeSignature  = "signature"
	TypeOption     = "option"
	TypeOther      = "other"
)

// ParsedField describes one template cell.
type ParsedField struct {
	CellKey   string   `json:"cellKey" yaml:"cellKey"`
	Label     string   `json:"label,omitempty" yaml:"label"`
	FieldName string   `json:"fieldName" yaml:"fieldName"`
	FieldType string   `json:"fieldType" yaml:"fieldType"`
	Options   []string `json:"options,omitempty" yaml:"options"`
}

// Data holds submitted values keyed by zero-based "row-col".
type Data map[string]any

// Fields pairs template metadata with submitted data.
type Fields struct {
	Parsed []ParsedField `json:"parsedFields,omitempty" yaml:"parsedFields"`
	Data   Data          `json:"formData,omitempty" yaml:"formData"`
}

// Empty reports whether there is no template metadata to look values up in.
func (f Fields) Empty() bool {
	return len(f.Parsed) == 0
}

// Find returns the first field whose FieldName equals name or whose Label
// contains it. A non-empty expectedType must also match FieldType.
func (f Fields) Find(name, expectedType string) (ParsedField, bool) {
	if name == "" {
		return ParsedField{}, false
	}
	for _, pf := range f.Parsed {
		if expectedType != "" && pf.FieldType != expectedType {
			continue
		}
		if pf.FieldName == name || (pf.Label != "" && strings.Contains(pf.Label, name)) {
			return pf, true
		}
	}
	return ParsedField{}, false
}

// Raw returns the submitted value behind a field. ok is false when the cell
// key does not parse or nothing was submitted for it.
func (f Fields) Raw(pf ParsedField) (any, bool) {
	key, err := ParseCellKey(pf.CellKey)
	if err != nil {
		return nil, false
	}
	v, ok := f.Data[key.FormDataKey()]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// Lookup finds a field by name and returns its trimmed string value.
func (f Fields) Lookup(name, expectedType string) (string, bool) {
	pf, ok := f.Find(name, expectedType)
	if !ok {
		return "", false
	}
	raw, ok := f.Raw(pf)
	if !ok {
		return "", false
	}
	return Stringify(raw), true
}

// Stringify converts a decoded JSON/YAML scalar into its trimmed string form.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}
