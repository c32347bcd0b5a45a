package strategy

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/pesio-ai/be-ehs-handlers/internal/errors"
	"github.com/pesio-ai/be-ehs-handlers/internal/form"
	"github.com/pesio-ai/be-ehs-handlers/internal/orggraph"
)

// Resolve runs cfg against env and returns the users it designates, in
// strategy order with duplicates removed. A nil result always comes with a
// coded error (CONFIG_ERROR, LOOKUP_ERROR or EMPTY_RESULT) explaining why.
func Resolve(cfg Config, env *Env) ([]orggraph.User, error) {
	if env == nil {
		env = &Env{Log: zerolog.Nop()}
	}
	if cfg == nil {
		return nil, errors.Config("", "type")
	}

	users, err := cfg.resolve(env)
	users = Dedupe(users)
	if err == nil && len(users) == 0 {
		err = errors.EmptyResult(fmt.Sprintf("%s resolved no users", cfg.Kind()))
	}
	if err != nil {
		env.Log.Debug().
			Err(err).
			Str("strategy", string(cfg.Kind())).
			Str("record_id", env.Record.ID).
			Str("step_id", env.Step.ID).
			Msg("Strategy resolved no users")
		return nil, err
	}
	return users, nil
}

// Users is Resolve without the explanation.
func Users(cfg Config, env *Env) []orggraph.User {
	users, _ := Resolve(cfg, env)
	return users
}

// Dedupe drops repeated user ids, keeping first occurrence order.
func Dedupe(users []orggraph.User) []orggraph.User {
	if len(users) < 2 {
		return users
	}
	seen := make(map[string]struct{}, len(users))
	out := make([]orggraph.User, 0, len(users))
	for _, u := range users {
		if _, dup := seen[u.ID]; dup {
			continue
		}
		seen[u.ID] = struct{}{}
		out = append(out, u)
	}
	return out
}

// ── Helpers ─────────────────────────────────────────────────────────────────

func one(u orggraph.User) []orggraph.User { return []orggraph.User{u} }

func (env *Env) user(id, what string) ([]orggraph.User, error) {
	if id == "" {
		return nil, errors.EmptyResult(fmt.Sprintf("record has no %s", what))
	}
	u, ok := env.Graph.UserByID(id)
	if !ok {
		return nil, errors.Lookup("user", id)
	}
	return one(u), nil
}

func (env *Env) supervisor(id, what string) ([]orggraph.User, error) {
	if _, err := env.user(id, what); err != nil {
		return nil, err
	}
	sup, ok := env.Graph.SupervisorOf(id)
	if !ok {
		return nil, errors.EmptyResult(fmt.Sprintf("%s %q has no supervisor", what, id))
	}
	return one(sup), nil
}

func (env *Env) manager(deptID string) ([]orggraph.User, error) {
	if _, ok := env.Graph.DepartmentByID(deptID); !ok {
		return nil, errors.Lookup("department", deptID)
	}
	m, ok := env.Graph.ManagerOf(deptID)
	if !ok {
		return nil, errors.EmptyResult(fmt.Sprintf("department %q has no manager", deptID))
	}
	return one(m), nil
}

// department resolves a configured department reference by id, or by name
// when no id was stored.
func (env *Env) department(kind Kind, id, name string) (orggraph.Department, error) {
	switch {
	case id != "":
		d, ok := env.Graph.DepartmentByID(id)
		if !ok {
			return orggraph.Department{}, errors.Lookup("department", id)
		}
		return d, nil
	case name != "":
		d, ok := env.Graph.DepartmentByName(name)
		if !ok {
			return orggraph.Department{}, errors.Lookup("department", name)
		}
		return d, nil
	}
	return orggraph.Department{}, errors.Config(string(kind), "targetDeptId")
}

// ── Record-role strategies ──────────────────────────────────────────────────

func (Reporter) resolve(env *Env) ([]orggraph.User, error) {
	return env.user(env.Record.ReporterID, "reporter")
}

func (Responsible) resolve(env *Env) ([]orggraph.User, error) {
	return env.user(env.Record.ResponsibleID, "responsible person")
}

func (ReporterManager) resolve(env *Env) ([]orggraph.User, error) {
	return env.supervisor(env.Record.ReporterID, "reporter")
}

func (DepartmentManager) resolve(env *Env) ([]orggraph.User, error) {
	return ReporterManager{}.resolve(env)
}

func (ResponsibleManager) resolve(env *Env) ([]orggraph.User, error) {
	return env.supervisor(env.Record.ResponsibleID, "responsible person")
}

func (AssignedDepartmentManager) resolve(env *Env) ([]orggraph.User, error) {
	if env.Record.AssignedDepartmentID == "" {
		return nil, errors.EmptyResult("record has no assigned department")
	}
	return env.manager(env.Record.AssignedDepartmentID)
}

// ── Fixed ───────────────────────────────────────────────────────────────────

var (
	reporterHints    = []string{"上报人", "发起人", "reporter"}
	responsibleHints = []string{"责任人", "整改", "responsible"}
)

// resolve tries, in order: the configured users, the single userId, the
// auto_* sentinels, the step's id or name, and finally keywords in the
// description. The first source that yields anyone wins.
func (c Fixed) resolve(env *Env) ([]orggraph.User, error) {
	var missing []string
	if len(c.FixedUsers) > 0 {
		var users []orggraph.User
		for _, fu := range c.FixedUsers {
			if u, ok := env.Graph.UserByID(fu.UserID); ok {
				users = append(users, u)
			} else {
				missing = append(missing, fu.UserID)
			}
		}
		if len(users) > 0 {
			return users, nil
		}
	}

	switch c.UserID {
	case "":
	case AutoReporter:
		if users, err := (Reporter{}).resolve(env); err == nil {
			return users, nil
		}
	case AutoAssigned:
		if users, err := (Responsible{}).resolve(env); err == nil {
			return users, nil
		}
	default:
		if u, ok := env.Graph.UserByID(c.UserID); ok {
			return one(u), nil
		}
		missing = append(missing, c.UserID)
	}

	if users := env.fromStepContext(); len(users) > 0 {
		return users, nil
	}

	desc := c.Description
	if desc == "" {
		desc = env.Step.Description
	}
	if users := env.fromDescription(desc); len(users) > 0 {
		return users, nil
	}

	switch {
	case len(missing) > 0:
		return nil, errors.Lookup("user", strings.Join(missing, ","))
	case len(c.FixedUsers) == 0 && c.UserID == "":
		return nil, errors.Config(string(KindFixed), "fixedUsers")
	}
	return nil, errors.EmptyResult("fixed resolved no users")
}

func (env *Env) fromStepContext() []orggraph.User {
	id, name := strings.ToLower(env.Step.ID), env.Step.Name
	switch {
	case id == "report" || strings.Contains(name, "上报"):
		users, _ := Reporter{}.resolve(env)
		return users
	case id == "rectify" || strings.Contains(name, "整改"):
		users, _ := Responsible{}.resolve(env)
		return users
	}
	return nil
}

func (env *Env) fromDescription(desc string) []orggraph.User {
	if desc == "" {
		return nil
	}
	lower := strings.ToLower(desc)
	switch {
	case containsAny(lower, reporterHints):
		users, _ := Reporter{}.resolve(env)
		return users
	case containsAny(lower, responsibleHints):
		users, _ := Responsible{}.resolve(env)
		return users
	}
	return nil
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// ── Department strategies ───────────────────────────────────────────────────

func (c DeptManager) resolve(env *Env) ([]orggraph.User, error) {
	d, err := env.department(KindDeptManager, c.TargetDeptID, c.TargetDeptName)
	if err != nil {
		return nil, err
	}
	return env.manager(d.ID)
}

func (c Role) resolve(env *Env) ([]orggraph.User, error) {
	if c.RoleName == "" {
		return nil, errors.Config(string(KindRole), "roleName")
	}
	d, err := env.department(KindRole, c.TargetDeptID, c.TargetDeptName)
	if err != nil {
		return nil, err
	}
	var users []orggraph.User
	for _, u := range env.Graph.UsersInDepartment(d.ID, true) {
		if strings.Contains(u.Role, c.RoleName) {
			users = append(users, u)
		}
	}
	return users, nil
}

func (c DeptMembers) resolve(env *Env) ([]orggraph.User, error) {
	d, err := env.department(KindDeptMembers, c.DeptID, c.DeptName)
	if err != nil {
		return nil, err
	}
	if c.LocationMatch != "" && !strings.Contains(env.Record.Location, c.LocationMatch) {
		return nil, errors.EmptyResult(fmt.Sprintf("location %q does not match %q", env.Record.Location, c.LocationMatch))
	}
	if c.TypeMatch != "" && env.Record.Type != c.TypeMatch {
		return nil, errors.EmptyResult(fmt.Sprintf("type %q does not match %q", env.Record.Type, c.TypeMatch))
	}
	return env.Graph.UsersInDepartment(d.ID, false), nil
}

func (HandlerManager) resolve(env *Env) ([]orggraph.User, error) {
	if len(env.Handlers) == 0 {
		return nil, errors.EmptyResult("step has no resolved handler")
	}
	return env.supervisor(env.Handlers[0].ID, "handler")
}

// ── Rule-table strategies ───────────────────────────────────────────────────

func (c LocationMatch) resolve(env *Env) ([]orggraph.User, error) {
	if len(c.Rules) == 0 {
		return nil, errors.Config(string(KindLocationMatch), "rules")
	}
	loc := env.Record.Location
	if loc == "" {
		return nil, errors.EmptyResult("record has no location")
	}
	for i, r := range c.Rules {
		if strings.Contains(loc, r.Location) {
			return env.ruleTarget(KindLocationMatch, i, r.DeptID)
		}
	}
	return nil, errors.EmptyResult(fmt.Sprintf("no location rule matches %q", loc))
}

func (c TypeMatch) resolve(env *Env) ([]orggraph.User, error) {
	if len(c.Rules) == 0 {
		return nil, errors.Config(string(KindTypeMatch), "rules")
	}
	typ := env.Record.Type
	if typ == "" {
		return nil, errors.EmptyResult("record has no type")
	}
	for i, r := range c.Rules {
		if typ == r.Type || strings.Contains(typ, r.Type) {
			return env.ruleTarget(KindTypeMatch, i, r.DeptID)
		}
	}
	return nil, errors.EmptyResult(fmt.Sprintf("no type rule matches %q", typ))
}

func (c RiskMatch) resolve(env *Env) ([]orggraph.User, error) {
	if len(c.Rules) == 0 {
		return nil, errors.Config(string(KindRiskMatch), "rules")
	}
	risk := env.Record.RiskLevel
	if risk == "" {
		return nil, errors.EmptyResult("record has no risk level")
	}
	for i, r := range c.Rules {
		if risk == r.RiskLevel {
			return env.ruleTarget(KindRiskMatch, i, r.DeptID)
		}
	}
	return nil, errors.EmptyResult(fmt.Sprintf("no risk rule matches %q", risk))
}

func (env *Env) ruleTarget(kind Kind, i int, deptID string) ([]orggraph.User, error) {
	if deptID == "" {
		return nil, errors.Config(string(kind), fmt.Sprintf("rules[%d].deptId", i))
	}
	return env.manager(deptID)
}

// ── Permit strategies ───────────────────────────────────────────────────────

func (CurrentDeptManager) resolve(env *Env) ([]orggraph.User, error) {
	ref := strings.TrimSpace(env.ApplicantDepartment)
	if ref == "" {
		return nil, errors.EmptyResult("no applicant department")
	}
	d, ok := env.Graph.DepartmentByID(ref)
	if !ok {
		if d, ok = env.Graph.DepartmentByName(ref); !ok {
			return nil, errors.Lookup("department", ref)
		}
	}
	return env.manager(d.ID)
}

func (c TemplateFieldManager) resolve(env *Env) ([]orggraph.User, error) {
	if c.FieldName == "" {
		return nil, errors.Config(string(KindTemplateFieldManager), "fieldName")
	}
	fields := env.Record.Fields
	if fields.Empty() {
		return nil, errors.EmptyResult("no form fields")
	}
	expected := c.ExpectedType
	if expected == "" {
		expected = form.TypeDepartment
	}
	value, ok := fields.Lookup(c.FieldName, expected)
	if !ok || value == "" {
		return nil, errors.EmptyResult(fmt.Sprintf("field %q has no value", c.FieldName))
	}
	d, ok := env.Graph.DepartmentByName(value)
	if !ok {
		if d, ok = env.Graph.DepartmentByID(value); !ok {
			return nil, errors.Lookup("department", value)
		}
	}
	return env.manager(d.ID)
}

func (c TemplateTextMatch) resolve(env *Env) ([]orggraph.User, error) {
	if len(c.TextMatches) == 0 {
		return nil, errors.Config(string(KindTemplateTextMatch), "textMatches")
	}
	fields := env.Record.Fields
	if fields.Empty() {
		return nil, errors.EmptyResult("no form fields")
	}
	for _, m := range c.TextMatches {
		if m.FieldName == "" || m.TargetDeptID == "" {
			continue
		}
		value, ok := fields.Lookup(m.FieldName, form.TypeText)
		if !ok || !strings.Contains(value, m.ContainsText) {
			continue
		}
		if users, err := env.manager(m.TargetDeptID); err == nil {
			return users, nil
		}
	}
	return nil, errors.EmptyResult("no text match hit")
}

var checkMarks = regexp.MustCompile(`[√☑✔✅]`)

func (c TemplateOptionMatch) resolve(env *Env) ([]orggraph.User, error) {
	if len(c.OptionMatches) == 0 {
		return nil, errors.Config(string(KindTemplateOptionMatch), "optionMatches")
	}
	fields := env.Record.Fields
	if fields.Empty() {
		return nil, errors.EmptyResult("no form fields")
	}
	var users []orggraph.User
	for _, m := range c.OptionMatches {
		pf, ok := fields.Find(m.FieldName, form.TypeOption)
		if !ok {
			continue
		}
		raw, ok := fields.Raw(pf)
		if !ok || !optionChecked(raw, m.CheckedValue) {
			continue
		}
		switch m.ApproverType {
		case ApproverPerson:
			if u, ok := env.Graph.UserByID(m.ApproverUserID); ok {
				users = append(users, u)
			}
		case ApproverDeptManager:
			if m.TargetDeptID == "" {
				continue
			}
			if u, ok := env.Graph.ManagerOf(m.TargetDeptID); ok {
				users = append(users, u)
			}
		}
	}
	return users, nil
}

// optionChecked reports whether an option cell counts as ticked: a boolean
// true, a truthy word, a check mark, or a value naming the expected option.
func optionChecked(raw any, want string) bool {
	if b, ok := raw.(bool); ok {
		return b
	}
	value := form.Stringify(raw)
	if value == "" {
		return false
	}
	switch strings.ToLower(value) {
	case "true", "1", "yes", "是":
		return true
	}
	if checkMarks.MatchString(value) {
		return true
	}
	if want == "" {
		return true
	}
	compact := strings.Join(strings.Fields(value), "")
	return strings.Contains(value, want) || strings.Contains(compact, want)
}
