// Package workflow combines the strategy entries of a workflow step into the
// step's final handler set.
package workflow

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pesio-ai/be-ehs-handlers/internal/condition"
	"github.com/pesio-ai/be-ehs-handlers/internal/strategy"
)

// Mode is a step's approval mode.
type Mode string

const (
	ModeOR          Mode = "OR"
	ModeAND         Mode = "AND"
	ModeConditional Mode = "CONDITIONAL"
)

// ParseMode normalises a stored mode; anything unknown is OR.
func ParseMode(s string) Mode {
	switch m := Mode(strings.ToUpper(strings.TrimSpace(s))); m {
	case ModeAND, ModeConditional:
		return m
	}
	return ModeOR
}

// Entry is one strategy attached to a step, optionally gated by a condition.
type Entry struct {
	ID          string
	Strategy    strategy.Config
	Condition   *condition.Condition
	Description string
}

// Step is the handler configuration of one workflow step.
type Step struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Mode        Mode    `json:"approvalMode"`
	Entries     []Entry `json:"entries"`
	CC          []Entry `json:"cc,omitempty"`
}

// ── JSON ────────────────────────────────────────────────────────────────────

type entryJSON struct {
	ID          string               `json:"id,omitempty"`
	Strategy    json.RawMessage      `json:"strategy"`
	Condition   *condition.Condition `json:"condition,omitempty"`
	Description string               `json:"description,omitempty"`
}

// MarshalJSON writes the entry with its strategy as a tagged object.
func (e Entry) MarshalJSON() ([]byte, error) {
	cfg, err := strategy.Encode(e.Strategy)
	if err != nil {
		return nil, err
	}
	return json.Marshal(entryJSON{ID: e.ID, Strategy: cfg, Condition: e.Condition, Description: e.Description})
}

// UnmarshalJSON accepts either {"strategy": {"type": ...}} or the editors'
// flat form, where "strategy" is the tag and parameters sit beside it, in
// "strategyConfig" or in "config". Fixed approvers stored as "approvers" are
// read as fixedUsers.
func (e *Entry) UnmarshalJSON(b []byte) error {
	var head entryJSON
	if err := json.Unmarshal(b, &head); err != nil {
		return err
	}
	*e = Entry{ID: head.ID, Condition: head.Condition, Description: head.Description}

	raw := head.Strategy
	if len(raw) == 0 || raw[0] != '{' {
		merged, err := flattenEntry(b)
		if err != nil {
			return err
		}
		raw = merged
	}
	cfg, err := strategy.Decode(raw)
	if err != nil {
		return fmt.Errorf("entry %q: %w", e.ID, err)
	}
	e.Strategy = cfg
	return nil
}

func flattenEntry(b []byte) ([]byte, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(b, &obj); err != nil {
		return nil, err
	}
	out := map[string]json.RawMessage{}
	for k, v := range obj {
		switch k {
		case "id", "condition", "strategyConfig", "config", "approvers":
		default:
			out[k] = v
		}
	}
	for _, nested := range []string{"strategyConfig", "config"} {
		var inner map[string]json.RawMessage
		if v, ok := obj[nested]; ok && json.Unmarshal(v, &inner) == nil {
			for k, v := range inner {
				out[k] = v
			}
		}
	}
	if approvers, ok := obj["approvers"]; ok {
		if _, has := out["fixedUsers"]; !has {
			out["fixedUsers"] = approvers
		}
	}
	if tag, ok := out["strategy"]; ok {
		if _, has := out["type"]; !has {
			out["type"] = tag
		}
		delete(out, "strategy")
	}
	return json.Marshal(out)
}

type stepJSON struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Mode        string          `json:"approvalMode"`
	Entries     []Entry         `json:"entries"`
	CC          []Entry         `json:"cc"`
	CCRules     json.RawMessage `json:"ccRules"`
	StepIndex   *int            `json:"stepIndex"`
	Step        *int            `json:"step"`
	Handler     json.RawMessage `json:"handlerStrategy"`
	Strategies  []Entry         `json:"approverStrategies"`
	Single      string          `json:"approverStrategy"`
}

// UnmarshalJSON reads the native shape as well as the hazard shape
// ({"handlerStrategy": {"approvalMode", "strategies"}, "ccRules": [...]})
// and both permit shapes ({"approverStrategies": [...]} and the single
// {"approverStrategy", "strategyConfig", "approvers"}). Editor CC rules are
// appended after any native "cc" entries.
func (s *Step) UnmarshalJSON(b []byte) error {
	var v stepJSON
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*s = Step{ID: v.ID, Name: v.Name, Description: v.Description, Mode: ParseMode(v.Mode), Entries: v.Entries, CC: v.CC}
	if s.ID == "" {
		switch {
		case v.StepIndex != nil:
			s.ID = fmt.Sprint(*v.StepIndex)
		case v.Step != nil:
			s.ID = fmt.Sprint(*v.Step)
		}
	}
	if len(v.CCRules) > 0 && string(v.CCRules) != "null" {
		rules, err := decodeCCRules(v.CCRules)
		if err != nil {
			return fmt.Errorf("step %q: %w", s.ID, err)
		}
		s.CC = append(s.CC, rules...)
	}

	switch {
	case len(s.Entries) > 0:
	case len(v.Handler) > 0 && string(v.Handler) != "null":
		return s.readHandlerStrategy(v.Handler)
	case len(v.Strategies) > 0:
		s.Entries = v.Strategies
	case v.Single != "":
		entry, err := singleEntry(b, v.Single)
		if err != nil {
			return err
		}
		s.Entries = []Entry{entry}
	}
	return nil
}

func (s *Step) readHandlerStrategy(raw json.RawMessage) error {
	var hs struct {
		Type        string  `json:"type"`
		Mode        string  `json:"approvalMode"`
		Description string  `json:"description"`
		Strategies  []Entry `json:"strategies"`
	}
	if err := json.Unmarshal(raw, &hs); err != nil {
		return fmt.Errorf("step %q handlerStrategy: %w", s.ID, err)
	}
	if hs.Mode != "" {
		s.Mode = ParseMode(hs.Mode)
	}
	if s.Description == "" {
		s.Description = hs.Description
	}
	if len(hs.Strategies) > 0 {
		s.Entries = hs.Strategies
		return nil
	}
	if hs.Type == "" {
		return nil
	}
	cfg, err := strategy.Decode(raw)
	if err != nil {
		return fmt.Errorf("step %q: %w", s.ID, err)
	}
	s.Entries = []Entry{{ID: s.ID, Strategy: cfg, Description: hs.Description}}
	return nil
}

func singleEntry(b []byte, tag string) (Entry, error) {
	var legacy struct {
		StrategyConfig json.RawMessage `json:"strategyConfig"`
		Approvers      json.RawMessage `json:"approvers"`
	}
	if err := json.Unmarshal(b, &legacy); err != nil {
		return Entry{}, err
	}
	obj := map[string]json.RawMessage{}
	obj["strategy"], _ = json.Marshal(tag)
	if len(legacy.StrategyConfig) > 0 {
		obj["strategyConfig"] = legacy.StrategyConfig
	}
	if len(legacy.Approvers) > 0 {
		obj["approvers"] = legacy.Approvers
	}
	raw, err := json.Marshal(obj)
	if err != nil {
		return Entry{}, err
	}
	var e Entry
	err = e.UnmarshalJSON(raw)
	return e, err
}

// DecodeSteps reads a JSON array of steps.
func DecodeSteps(raw []byte) ([]Step, error) {
	var steps []Step
	if err := json.Unmarshal(raw, &steps); err != nil {
		return nil, fmt.Errorf("workflow: %w", err)
	}
	return steps, nil
}
