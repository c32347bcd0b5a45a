// Package strategy resolves the users behind one configured handler strategy.
//
// Configurations form a closed tagged union: every variant implements Config
// and carries only the fields it needs. Adding a variant without a resolve
// method does not compile, and decoding an unknown tag fails up front instead
// of silently resolving nobody at run time.
package strategy

import (
	"github.com/pesio-ai/be-ehs-handlers/internal/orggraph"
)

// Kind is the tag of a strategy configuration.
type Kind string

const (
	KindFixed                     Kind = "fixed"
	KindReporter                  Kind = "reporter"
	KindReporterManager           Kind = "reporter_manager"
	KindDepartmentManager         Kind = "department_manager"
	KindAssignedDepartmentManager Kind = "assigned_department_manager"
	KindResponsible               Kind = "responsible"
	KindResponsibleManager        Kind = "responsible_manager"
	KindDeptManager               Kind = "dept_manager"
	KindRole                      Kind = "role"
	KindLocationMatch             Kind = "location_match"
	KindTypeMatch                 Kind = "type_match"
	KindRiskMatch                 Kind = "risk_match"
	KindHandlerManager            Kind = "handler_manager"
	KindDeptMembers               Kind = "dept_members"

	// Work-permit strategies.
	KindCurrentDeptManager   Kind = "current_dept_manager"
	KindTemplateFieldManager Kind = "template_field_manager"
	KindTemplateTextMatch    Kind = "template_text_match"
	KindTemplateOptionMatch  Kind = "template_option_match"

	// kindSpecificDeptManager is the permit editor's name for dept_manager.
	kindSpecificDeptManager Kind = "specific_dept_manager"
)

// Sentinel user ids understood by the fixed strategy.
const (
	AutoReporter = "auto_reporter"
	AutoAssigned = "auto_assigned"
)

// Config is one strategy configuration.
type Config interface {
	Kind() Kind
	resolve(env *Env) ([]orggraph.User, error)
}

// FixedUser is one explicitly chosen handler.
type FixedUser struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName,omitempty"`
}

// Fixed resolves an explicit list of users, falling back to the step's
// inferred intent when the list is empty or stale.
type Fixed struct {
	FixedUsers  []FixedUser `json:"fixedUsers,omitempty"`
	UserID      string      `json:"userId,omitempty"`
	Description string      `json:"description,omitempty"`
}

// Reporter resolves the record's reporter.
type Reporter struct{}

// ReporterManager resolves the reporter's supervisor.
type ReporterManager struct{}

// DepartmentManager is the legacy name of ReporterManager.
type DepartmentManager struct{}

// AssignedDepartmentManager resolves the manager of the record's assigned department.
type AssignedDepartmentManager struct{}

// Responsible resolves the record's responsible person.
type Responsible struct{}

// ResponsibleManager resolves the responsible person's supervisor.
type ResponsibleManager struct{}

// DeptManager resolves the manager of a configured department.
type DeptManager struct {
	TargetDeptID   string `json:"targetDeptId,omitempty"`
	TargetDeptName string `json:"targetDeptName,omitempty"`
}

// Role resolves every user under a department (recursively) whose role
// contains RoleName.
type Role struct {
	TargetDeptID   string `json:"targetDeptId,omitempty"`
	TargetDeptName string `json:"targetDeptName,omitempty"`
	RoleName       string `json:"roleName,omitempty"`
}

// HandlerManager resolves the supervisor of the step's first resolved
// handler. It only yields users in CC entries, which run after the step's
// handlers are known.
type HandlerManager struct{}

// DeptMembers resolves the direct members of a department. A non-empty
// LocationMatch requires the record's location to contain it; a non-empty
// TypeMatch requires the record's type to equal it.
type DeptMembers struct {
	DeptID        string `json:"deptId,omitempty"`
	DeptName      string `json:"deptName,omitempty"`
	LocationMatch string `json:"locationMatch,omitempty"`
	TypeMatch     string `json:"typeMatch,omitempty"`
}

// LocationRule routes records whose location contains Location.
type LocationRule struct {
	Location string `json:"location"`
	DeptID   string `json:"deptId"`
	DeptName string `json:"deptName,omitempty"`
}

// TypeRule routes records whose type equals or contains Type.
type TypeRule struct {
	Type     string `json:"type"`
	DeptID   string `json:"deptId"`
	DeptName string `json:"deptName,omitempty"`
}

// RiskRule routes records whose risk level equals RiskLevel.
type RiskRule struct {
	RiskLevel string `json:"riskLevel"`
	DeptID    string `json:"deptId"`
	DeptName  string `json:"deptName,omitempty"`
}

// LocationMatch routes by location; the first matching rule wins.
type LocationMatch struct {
	Rules []LocationRule `json:"rules"`
}

// TypeMatch routes by record type; the first matching rule wins.
type TypeMatch struct {
	Rules []TypeRule `json:"rules"`
}

// RiskMatch routes by risk level; the first matching rule wins.
type RiskMatch struct {
	Rules []RiskRule `json:"rules"`
}

// CurrentDeptManager resolves the manager of the applicant's department.
type CurrentDeptManager struct{}

// TemplateFieldManager reads a department name from a form field and
// resolves that department's manager.
type TemplateFieldManager struct {
	FieldName    string `json:"fieldName,omitempty"`
	ExpectedType string `json:"expectedType,omitempty"`
}

// TextMatch routes to TargetDeptID when a text field contains ContainsText.
type TextMatch struct {
	FieldName      string `json:"fieldName"`
	ContainsText   string `json:"containsText"`
	TargetDeptID   string `json:"targetDeptId"`
	TargetDeptName string `json:"targetDeptName,omitempty"`
}

// TemplateTextMatch resolves the first TextMatch that hits.
type TemplateTextMatch struct {
	TextMatches []TextMatch `json:"textMatches"`
}

// Option approver types.
const (
	ApproverPerson      = "person"
	ApproverDeptManager = "dept_manager"
)

// OptionMatch adds an approver when an option field is ticked.
type OptionMatch struct {
	FieldName        string `json:"fieldName"`
	CheckedValue     string `json:"checkedValue,omitempty"`
	ApproverType     string `json:"approverType"`
	ApproverUserID   string `json:"approverUserId,omitempty"`
	ApproverUserName string `json:"approverUserName,omitempty"`
	TargetDeptID     string `json:"targetDeptId,omitempty"`
	TargetDeptName   string `json:"targetDeptName,omitempty"`
}

// TemplateOptionMatch resolves every OptionMatch that hits.
type TemplateOptionMatch struct {
	OptionMatches []OptionMatch `json:"optionMatches"`
}

func (Fixed) Kind() Kind                     { return KindFixed }
func (Reporter) Kind() Kind                  { return KindReporter }
func (ReporterManager) Kind() Kind           { return KindReporterManager }
func (DepartmentManager) Kind() Kind         { return KindDepartmentManager }
func (AssignedDepartmentManager) Kind() Kind { return KindAssignedDepartmentManager }
func (Responsible) Kind() Kind               { return KindResponsible }
func (ResponsibleManager) Kind() Kind        { return KindResponsibleManager }
func (DeptManager) Kind() Kind               { return KindDeptManager }
func (Role) Kind() Kind                      { return KindRole }
func (LocationMatch) Kind() Kind             { return KindLocationMatch }
func (TypeMatch) Kind() Kind                 { return KindTypeMatch }
func (RiskMatch) Kind() Kind                 { return KindRiskMatch }
func (HandlerManager) Kind() Kind            { return KindHandlerManager }
func (DeptMembers) Kind() Kind               { return KindDeptMembers }
func (CurrentDeptManager) Kind() Kind        { return KindCurrentDeptManager }
func (TemplateFieldManager) Kind() Kind      { return KindTemplateFieldManager }
func (TemplateTextMatch) Kind() Kind         { return KindTemplateTextMatch }
func (TemplateOptionMatch) Kind() Kind       { return KindTemplateOptionMatch }
