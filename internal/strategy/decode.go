package strategy

import (
	"encoding/json"
	"fmt"
	"sort"
)

type decoder func(raw json.RawMessage) (Config, error)

func into[T Config](raw json.RawMessage) (Config, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func empty[T Config](json.RawMessage) (Config, error) {
	var v T
	return v, nil
}

var decoders = map[Kind]decoder{
	KindFixed:                     into[Fixed],
	KindReporter:                  empty[Reporter],
	KindReporterManager:           empty[ReporterManager],
	KindDepartmentManager:         empty[DepartmentManager],
	KindAssignedDepartmentManager: empty[AssignedDepartmentManager],
	KindResponsible:               empty[Responsible],
	KindResponsibleManager:        empty[ResponsibleManager],
	KindDeptManager:               into[DeptManager],
	kindSpecificDeptManager:       into[DeptManager],
	KindRole:                      into[Role],
	KindLocationMatch:             decodeLocationMatch,
	KindTypeMatch:                 decodeTypeMatch,
	KindRiskMatch:                 decodeRiskMatch,
	KindHandlerManager:            empty[HandlerManager],
	KindDeptMembers:               into[DeptMembers],
	KindCurrentDeptManager:        empty[CurrentDeptManager],
	KindTemplateFieldManager:      into[TemplateFieldManager],
	KindTemplateTextMatch:         into[TemplateTextMatch],
	KindTemplateOptionMatch:       into[TemplateOptionMatch],
}

// Kinds lists every tag Decode accepts, sorted.
func Kinds() []Kind {
	out := make([]Kind, 0, len(decoders))
	for k := range decoders {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Decode reads a configuration object. The tag is taken from "type", or from
// "strategy" when "type" is absent.
func Decode(raw []byte) (Config, error) {
	var tag struct {
		Type     Kind `json:"type"`
		Strategy Kind `json:"strategy"`
	}
	if err := json.Unmarshal(raw, &tag); err != nil {
		return nil, fmt.Errorf("strategy: %w", err)
	}
	kind := tag.Type
	if kind == "" {
		kind = tag.Strategy
	}
	if kind == "" {
		return nil, fmt.Errorf("strategy: missing type")
	}
	dec, ok := decoders[kind]
	if !ok {
		return nil, fmt.Errorf("strategy: unknown type %q", kind)
	}
	cfg, err := dec(raw)
	if err != nil {
		return nil, fmt.Errorf("strategy %s: %w", kind, err)
	}
	return cfg, nil
}

// Encode writes cfg with its tag under "type".
func Encode(cfg Config) ([]byte, error) {
	if cfg == nil {
		return []byte("null"), nil
	}
	body, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	obj := map[string]json.RawMessage{}
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, err
	}
	obj["type"], _ = json.Marshal(cfg.Kind())
	return json.Marshal(obj)
}

// Older hazard configurations keep rules under locationMatches, typeMatches
// and riskMatches.

func decodeLocationMatch(raw json.RawMessage) (Config, error) {
	var v struct {
		Rules  []LocationRule `json:"rules"`
		Legacy []LocationRule `json:"locationMatches"`
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	if len(v.Rules) == 0 {
		v.Rules = v.Legacy
	}
	return LocationMatch{Rules: v.Rules}, nil
}

func decodeTypeMatch(raw json.RawMessage) (Config, error) {
	var v struct {
		Rules  []TypeRule `json:"rules"`
		Legacy []TypeRule `json:"typeMatches"`
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	if len(v.Rules) == 0 {
		v.Rules = v.Legacy
	}
	return TypeMatch{Rules: v.Rules}, nil
}

func decodeRiskMatch(raw json.RawMessage) (Config, error) {
	var v struct {
		Rules  []RiskRule `json:"rules"`
		Legacy []RiskRule `json:"riskMatches"`
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	if len(v.Rules) == 0 {
		v.Rules = v.Legacy
	}
	return RiskMatch{Rules: v.Rules}, nil
}
