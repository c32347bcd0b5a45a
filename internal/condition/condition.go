// Package condition evaluates the single-predicate gates attached to strategy
// entries against submitted form fields.
package condition

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/pesio-ai/be-ehs-handlers/internal/form"
)

// Operator is a comparison applied between a field value and Condition.Value.
type Operator string

const (
	OpEq          Operator = "="
	OpNe          Operator = "!="
	OpGt          Operator = ">"
	OpLt          Operator = "<"
	OpGe          Operator = ">="
	OpLe          Operator = "<="
	OpContains    Operator = "contains"
	OpNotContains Operator = "not_contains"
	OpIn          Operator = "in"
	OpNotIn       Operator = "not_in"
)

// Valid reports whether op is a known operator.
func (op Operator) Valid() bool {
	switch op {
	case OpEq, OpNe, OpGt, OpLt, OpGe, OpLe, OpContains, OpNotContains, OpIn, OpNotIn:
		return true
	}
	return false
}

// Condition is "fieldName operator value".
type Condition struct {
	Enabled   bool     `json:"enabled" yaml:"enabled"`
	FieldName string   `json:"fieldName" yaml:"fieldName"`
	Operator  Operator `json:"operator" yaml:"operator"`
	Value     Operand  `json:"value" yaml:"value"`
}

// Active reports whether the condition gates anything at all.
func (c *Condition) Active() bool {
	return c != nil && c.Enabled
}

// Operand is the right-hand side of a condition. Authoring tools store it as
// either a plain string or, for in/not_in, a list.
type Operand struct {
	Text string
	List []string
}

// Text builds a scalar operand.
func Text(s string) Operand { return Operand{Text: s} }

// List builds a list operand.
func List(items ...string) Operand { return Operand{List: items} }

// String returns the scalar form; list operands are comma-joined.
func (o Operand) String() string {
	if len(o.List) > 0 {
		return strings.Join(o.List, ",")
	}
	return o.Text
}

// Items returns the membership list: the explicit list if present, otherwise
// the scalar split on ASCII or full-width commas. Items are trimmed and
// empty items dropped.
func (o Operand) Items() []string {
	src := o.List
	if len(src) == 0 {
		src = strings.FieldsFunc(o.Text, func(r rune) bool { return r == ',' || r == '，' })
	}
	out := make([]string, 0, len(src))
	for _, s := range src {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// MarshalJSON writes a list as an array and anything else as a string.
func (o Operand) MarshalJSON() ([]byte, error) {
	if len(o.List) > 0 {
		return json.Marshal(o.List)
	}
	return json.Marshal(o.Text)
}

// UnmarshalJSON accepts a string, a number, a bool, null or an array of scalars.
func (o *Operand) UnmarshalJSON(b []byte) error {
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	return o.set(raw)
}

// UnmarshalYAML accepts the same shapes as UnmarshalJSON.
func (o *Operand) UnmarshalYAML(unmarshal func(any) error) error {
	var raw any
	if err := unmarshal(&raw); err != nil {
		return err
	}
	return o.set(raw)
}

func (o *Operand) set(raw any) error {
	*o = Operand{}
	switch t := raw.(type) {
	case nil:
	case []any:
		for _, item := range t {
			o.List = append(o.List, form.Stringify(item))
		}
	case map[string]any:
		return fmt.Errorf("condition: value must be a scalar or a list")
	default:
		o.Text = form.Stringify(t)
	}
	return nil
}

// UnmarshalJSON also accepts "field" for the field name, as stored by the
// hazard workflow editor.
func (c *Condition) UnmarshalJSON(b []byte) error {
	type plain Condition
	var v struct {
		plain
		Field string `json:"field"`
	}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*c = Condition(v.plain)
	if c.FieldName == "" {
		c.FieldName = v.Field
	}
	return nil
}

// UnmarshalYAML accepts the same "field" alias as UnmarshalJSON.
func (c *Condition) UnmarshalYAML(unmarshal func(any) error) error {
	var v struct {
		Enabled   bool     `yaml:"enabled"`
		FieldName string   `yaml:"fieldName"`
		Field     string   `yaml:"field"`
		Operator  Operator `yaml:"operator"`
		Value     Operand  `yaml:"value"`
	}
	if err := unmarshal(&v); err != nil {
		return err
	}
	*c = Condition{Enabled: v.Enabled, FieldName: v.FieldName, Operator: v.Operator, Value: v.Value}
	if c.FieldName == "" {
		c.FieldName = v.Field
	}
	return nil
}

// Lookup resolves a field name to its current string value.
type Lookup func(fieldName string) (string, bool)

// FieldLookup looks names up in submitted form fields.
func FieldLookup(fields form.Fields) Lookup {
	return func(name string) (string, bool) {
		return fields.Lookup(name, "")
	}
}

// Evaluate applies c to fields. A nil or disabled condition, an unknown
// operator, an unresolvable field or an unparseable cell key all evaluate to
// false; callers decide what "not gated" means for their mode.
func Evaluate(c *Condition, fields form.Fields) bool {
	return EvaluateWith(c, FieldLookup(fields))
}

// EvaluateWith is Evaluate over an arbitrary lookup.
func EvaluateWith(c *Condition, lookup Lookup) bool {
	if !c.Active() || !c.Operator.Valid() || lookup == nil {
		return false
	}
	actual, ok := lookup(c.FieldName)
	if !ok {
		return false
	}
	return Compare(actual, c.Operator, c.Value)
}

// Compare applies op between an extracted field value and the operand.
func Compare(actual string, op Operator, value Operand) bool {
	expected := value.String()
	switch op {
	case OpEq:
		return actual == expected
	case OpNe:
		return actual != expected
	case OpGt:
		return order(actual, expected) > 0
	case OpLt:
		return order(actual, expected) < 0
	case OpGe:
		return order(actual, expected) >= 0
	case OpLe:
		return order(actual, expected) <= 0
	case OpContains:
		return strings.Contains(actual, expected)
	case OpNotContains:
		return !strings.Contains(actual, expected)
	case OpIn:
		return member(actual, value.Items())
	case OpNotIn:
		return !member(actual, value.Items())
	}
	return false
}

// order compares numerically when both sides parse as decimals, otherwise
// lexically.
func order(a, b string) int {
	da, errA := decimal.NewFromString(strings.TrimSpace(a))
	db, errB := decimal.NewFromString(strings.TrimSpace(b))
	if errA == nil && errB == nil {
		return da.Cmp(db)
	}
	return strings.Compare(a, b)
}

func member(s string, items []string) bool {
	for _, item := range items {
		if item == s {
			return true
		}
	}
	return false
}
