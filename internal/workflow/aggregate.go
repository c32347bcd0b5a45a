package workflow

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/pesio-ai/be-ehs-handlers/internal/condition"
	"github.com/pesio-ai/be-ehs-handlers/internal/errors"
	"github.com/pesio-ai/be-ehs-handlers/internal/form"
	"github.com/pesio-ai/be-ehs-handlers/internal/orggraph"
	"github.com/pesio-ai/be-ehs-handlers/internal/strategy"
)

// EntryResult is what one entry contributed. Inactive entries were gated out
// by their condition and not resolved.
type EntryResult struct {
	EntryID string          `json:"entryId"`
	Kind    strategy.Kind   `json:"strategy"`
	Active  bool            `json:"active"`
	Users   []orggraph.User `json:"users,omitempty"`
	Error   string          `json:"error,omitempty"`
	Code    errors.ErrCode  `json:"code,omitempty"`
}

// HandlerResult is the outcome of resolving one step. Users is the
// de-duplicated union; in AND mode each entry's required set stays available
// in Entries.
type HandlerResult struct {
	Success   bool            `json:"success"`
	Users     []orggraph.User `json:"users"`
	MatchedBy string          `json:"matchedBy,omitempty"`
	Error     string          `json:"error,omitempty"`
	Code      errors.ErrCode  `json:"code,omitempty"`
	Mode      Mode            `json:"approvalMode"`
	Entries   []EntryResult   `json:"entries,omitempty"`
	CC        []orggraph.User `json:"cc,omitempty"`
}

// StepResult is a HandlerResult tagged with its step.
type StepResult struct {
	Index    int    `json:"index"`
	StepID   string `json:"stepId"`
	StepName string `json:"stepName"`
	HandlerResult
}

// WorkflowResult is the outcome of resolving every step of a workflow.
type WorkflowResult struct {
	Success bool         `json:"success"`
	Steps   []StepResult `json:"steps"`
	Error   string       `json:"error,omitempty"`
}

// Resolver runs step resolution. The zero value logs nothing.
type Resolver struct {
	Log zerolog.Logger
	// ApplicantDepartment is the permit applicant's department id or name,
	// read by current_dept_manager.
	ApplicantDepartment string
}

// ResolveHandlers resolves step for record against graph.
func ResolveHandlers(record strategy.Record, step Step, graph *orggraph.Graph) HandlerResult {
	return Resolver{}.Handlers(record, step, graph)
}

// ResolveApprovers resolves a permit step for an applicant department. Any
// failure yields an empty list.
func ResolveApprovers(applicantDeptID string, step Step, formData form.Data, parsedFields []form.ParsedField, graph *orggraph.Graph) []orggraph.User {
	return Resolver{}.Approvers(applicantDeptID, step, formData, parsedFields, graph)
}

// ResolveWorkflow resolves every step independently.
func ResolveWorkflow(record strategy.Record, steps []Step, graph *orggraph.Graph) WorkflowResult {
	return Resolver{}.Workflow(record, steps, graph)
}

// Handlers resolves step for record against graph.
func (r Resolver) Handlers(record strategy.Record, step Step, graph *orggraph.Graph) HandlerResult {
	return r.resolve(r.env(record, step, graph, r.ApplicantDepartment), step)
}

// Approvers resolves a permit step for an applicant department.
func (r Resolver) Approvers(applicantDeptID string, step Step, formData form.Data, parsedFields []form.ParsedField, graph *orggraph.Graph) []orggraph.User {
	record := strategy.Record{
		Kind:   strategy.RecordPermit,
		Fields: form.Fields{Parsed: parsedFields, Data: formData},
	}
	res := r.resolve(r.env(record, step, graph, applicantDeptID), step)
	if !res.Success {
		return []orggraph.User{}
	}
	return res.Users
}

// Workflow resolves every step; it succeeds only if every step does.
func (r Resolver) Workflow(record strategy.Record, steps []Step, graph *orggraph.Graph) WorkflowResult {
	out := WorkflowResult{Success: true, Steps: make([]StepResult, 0, len(steps))}
	for i, step := range steps {
		res := r.Handlers(record, step, graph)
		if !res.Success {
			out.Success = false
		}
		out.Steps = append(out.Steps, StepResult{Index: i, StepID: step.ID, StepName: step.Name, HandlerResult: res})
	}
	if !out.Success {
		out.Error = "some steps could not be matched"
	}
	return out
}

func (r Resolver) env(record strategy.Record, step Step, graph *orggraph.Graph, applicant string) *strategy.Env {
	return &strategy.Env{
		Record:              record,
		Graph:               graph,
		Step:                strategy.StepContext{ID: step.ID, Name: step.Name, Description: step.Description},
		ApplicantDepartment: applicant,
		Log:                 r.Log,
	}
}

// ── Aggregation ─────────────────────────────────────────────────────────────

func (r Resolver) resolve(env *strategy.Env, step Step) HandlerResult {
	mode := ParseMode(string(step.Mode))
	res := HandlerResult{Mode: mode, Users: []orggraph.User{}}
	if len(step.Entries) == 0 {
		return res.fail(errors.New(errors.ErrCodeConfig, fmt.Sprintf("step %q has no strategies", step.ID)))
	}

	lookup := recordLookup(env.Record)
	var (
		union   []orggraph.User
		matched []string
		active  int
		missing []string
	)
	for i, e := range step.Entries {
		er := EntryResult{EntryID: e.ID, Active: gate(mode, e.Condition, lookup)}
		if er.EntryID == "" {
			er.EntryID = fmt.Sprintf("%d", i)
		}
		if e.Strategy != nil {
			er.Kind = e.Strategy.Kind()
		}
		if er.Active {
			active++
			users, err := strategy.Resolve(e.Strategy, env)
			if err != nil {
				er.Error, er.Code = err.Error(), errors.CodeOf(err)
				missing = append(missing, er.EntryID)
			} else {
				er.Users = users
				union = append(union, users...)
				matched = appendUnique(matched, string(er.Kind))
			}
		}
		res.Entries = append(res.Entries, er)
	}
	res = r.settle(res, step.ID, union, matched, active, missing)

	env.Handlers = res.Users
	res.CC = r.cc(env, step.CC, lookup)
	return res
}

// settle turns the per-entry outcomes into the step's result.
func (r Resolver) settle(res HandlerResult, stepID string, union []orggraph.User, matched []string, active int, missing []string) HandlerResult {
	if active == 0 {
		return res.fail(errors.EmptyResult("no applicable rule, requires fallback or manual assignment"))
	}
	if res.Mode == ModeAND && len(missing) > 0 {
		r.Log.Debug().
			Str("step_id", stepID).
			Strs("entries", missing).
			Msg("AND step has entries without approvers")
		return res.fail(errors.EmptyResult(fmt.Sprintf("entries %s resolved no approvers", strings.Join(missing, ","))))
	}

	users := strategy.Dedupe(union)
	if len(users) == 0 {
		if active == 1 {
			for _, er := range res.Entries {
				if er.Active {
					res.Error, res.Code = er.Error, er.Code
				}
			}
			return res
		}
		return res.fail(errors.EmptyResult(fmt.Sprintf("no handler found for step %q", stepID)))
	}
	res.Success = true
	res.Users = users
	res.MatchedBy = strings.Join(matched, ",")
	return res
}

func (res HandlerResult) fail(err error) HandlerResult {
	res.Success = false
	res.Users = []orggraph.User{}
	res.Error = err.Error()
	res.Code = errors.CodeOf(err)
	return res
}

func (r Resolver) cc(env *strategy.Env, entries []Entry, lookup condition.Lookup) []orggraph.User {
	var out []orggraph.User
	for _, e := range entries {
		if !gate(ModeOR, e.Condition, lookup) {
			continue
		}
		out = append(out, strategy.Users(e.Strategy, env)...)
	}
	return strategy.Dedupe(out)
}

// gate decides whether an entry participates. In CONDITIONAL mode only an
// enabled condition that holds lets it through; otherwise a disabled or
// missing condition does not gate at all.
func gate(mode Mode, c *condition.Condition, lookup condition.Lookup) bool {
	if mode == ModeConditional {
		return condition.EvaluateWith(c, lookup)
	}
	if !c.Active() {
		return true
	}
	return condition.EvaluateWith(c, lookup)
}

// recordLookup resolves condition fields against the permit form first and
// the hazard attributes second.
func recordLookup(rec strategy.Record) condition.Lookup {
	fields := condition.FieldLookup(rec.Fields)
	return func(name string) (string, bool) {
		if v, ok := fields(name); ok {
			return v, true
		}
		switch name {
		case "location":
			return rec.Location, rec.Location != ""
		case "type":
			return rec.Type, rec.Type != ""
		case "riskLevel":
			return rec.RiskLevel, rec.RiskLevel != ""
		}
		return "", false
	}
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}
