package form

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestParseCellKey(t *testing.T) {
	k, err := ParseCellKey("R5C3")
	require.NoError(t, err)
	assert.Equal(t, CellKey{Row: 5, Col: 3}, k)
	assert.Equal(t, "4-2", k.FormDataKey())
	assert.Equal(t, "R5C3", k.String())

	k, err = ParseCellKey("R1C1")
	require.NoError(t, err)
	assert.Equal(t, "0-0", k.FormDataKey())
}

func TestParseCellKey_Malformed(t *testing.T) {
	for _, s := range []string{"", "C3R5", "R0C1", "R1C0", "r5c3", "R5C", "RxC3", "R5C3x"} {
		_, err := ParseCellKey(s)
		assert.Error(t, err, s)
	}
}

func TestCellKeyFromFormDataKey_RoundTrip(t *testing.T) {
	k, err := CellKeyFromFormDataKey("4-2")
	require.NoError(t, err)
	assert.Equal(t, "R5C3", k.String())

	_, err = CellKeyFromFormDataKey("4_2")
	assert.Error(t, err)
	_, err = CellKeyFromFormDataKey("-1-2")
	assert.Error(t, err)
}

func TestFieldsLookup(t *testing.T) {
	f := Fields{
		Parsed: []ParsedField{
			{CellKey: "R5C3", Label: "作业部门", FieldName: "workDept", FieldType: TypeDepartment},
			{CellKey: "R6C2", Label: "作业内容", FieldName: "content", FieldType: TypeText},
			{CellKey: "bogus", Label: "坏字段", FieldName: "broken", FieldType: TypeText},
		},
		Data: Data{"4-2": "  车间 ", "5-1": 42.0},
	}

	v, ok := f.Lookup("workDept", "")
	require.True(t, ok)
	assert.Equal(t, "车间", v)

	v, ok = f.Lookup("部门", TypeDepartment)
	require.True(t, ok, "label containment")
	assert.Equal(t, "车间", v)

	_, ok = f.Lookup("workDept", TypeText)
	assert.False(t, ok, "type mismatch")

	v, ok = f.Lookup("content", "")
	require.True(t, ok)
	assert.Equal(t, "42", v)

	_, ok = f.Lookup("broken", "")
	assert.False(t, ok, "unparseable cell key")

	_, ok = f.Lookup("", "")
	assert.False(t, ok)
}

func TestFieldsLookup_MissingValue(t *testing.T) {
	f := Fields{Parsed: []ParsedField{{CellKey: "R2C2", FieldName: "x"}}, Data: Data{"1-1": nil}}
	_, ok := f.Lookup("x", "")
	assert.False(t, ok)
}

func TestStringify(t *testing.T) {
	assert.Equal(t, "true", Stringify(true))
	assert.Equal(t, "3.5", Stringify(3.5))
	assert.Equal(t, "7", Stringify(7))
	assert.Equal(t, "", Stringify(nil))
	assert.Equal(t, "a", Stringify(" a "))
}

func TestReadWorkbook(t *testing.T) {
	f := excelize.NewFile()
	require.NoError(t, f.SetCellValue("Sheet1", "C5", "车间"))
	require.NoError(t, f.SetCellValue("Sheet1", "A1", "动火作业票"))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	data, err := ReadWorkbook(bytes.NewReader(buf.Bytes()), "")
	require.NoError(t, err)
	assert.Equal(t, "车间", data["4-2"])
	assert.Equal(t, "动火作业票", data["0-0"])
	assert.Len(t, data, 2)
}

func TestReadWorkbook_UnknownSheet(t *testing.T) {
	f := excelize.NewFile()
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	_, err = ReadWorkbook(bytes.NewReader(buf.Bytes()), "nope")
	assert.Error(t, err)
}
