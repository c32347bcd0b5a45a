package workflow

import (
	"encoding/json"
	"fmt"

	"github.com/pesio-ai/be-ehs-handlers/internal/strategy"
)

// CC rule types stored by the hazard workflow editor under "ccRules".
const (
	ccFixedUsers         = "fixed_users"
	ccReporterManager    = "reporter_manager"
	ccResponsibleManager = "responsible_manager"
	ccHandlerManager     = "handler_manager"
	ccDeptByLocation     = "dept_by_location"
	ccDeptByType         = "dept_by_type"
	ccRoleMatch          = "role_match"
	ccResponsible        = "responsible"
	ccReporter           = "reporter"
)

type ccRuleJSON struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Config      struct {
		UserIDs       []string `json:"userIds"`
		UserNames     []string `json:"userNames"`
		DeptID        string   `json:"deptId"`
		DeptName      string   `json:"deptName"`
		RoleName      string   `json:"roleName"`
		LocationMatch string   `json:"locationMatch"`
		TypeMatch     string   `json:"typeMatch"`
	} `json:"config"`
}

// decodeCCRules maps editor CC rules onto CC entries. Unknown rule types and
// rules missing their required parameters are rejected.
func decodeCCRules(raw json.RawMessage) ([]Entry, error) {
	var rules []ccRuleJSON
	if err := json.Unmarshal(raw, &rules); err != nil {
		return nil, fmt.Errorf("ccRules: %w", err)
	}
	out := make([]Entry, 0, len(rules))
	for i, rule := range rules {
		cfg, err := rule.strategy()
		if err != nil {
			return nil, fmt.Errorf("ccRules[%d] %q: %w", i, rule.ID, err)
		}
		out = append(out, Entry{ID: rule.ID, Strategy: cfg, Description: rule.Description})
	}
	return out, nil
}

func (rule ccRuleJSON) strategy() (strategy.Config, error) {
	c := rule.Config
	hasDept := c.DeptID != "" || c.DeptName != ""
	switch rule.Type {
	case ccFixedUsers:
		if len(c.UserIDs) == 0 {
			return nil, fmt.Errorf("%s needs userIds", rule.Type)
		}
		users := make([]strategy.FixedUser, 0, len(c.UserIDs))
		for i, id := range c.UserIDs {
			fu := strategy.FixedUser{UserID: id}
			if i < len(c.UserNames) {
				fu.UserName = c.UserNames[i]
			}
			users = append(users, fu)
		}
		return strategy.Fixed{FixedUsers: users}, nil
	case ccReporterManager:
		return strategy.ReporterManager{}, nil
	case ccResponsibleManager:
		return strategy.ResponsibleManager{}, nil
	case ccHandlerManager:
		return strategy.HandlerManager{}, nil
	case ccDeptByLocation:
		if c.LocationMatch == "" || !hasDept {
			return nil, fmt.Errorf("%s needs locationMatch and deptId", rule.Type)
		}
		return strategy.DeptMembers{DeptID: c.DeptID, DeptName: c.DeptName, LocationMatch: c.LocationMatch}, nil
	case ccDeptByType:
		if c.TypeMatch == "" || !hasDept {
			return nil, fmt.Errorf("%s needs typeMatch and deptId", rule.Type)
		}
		return strategy.DeptMembers{DeptID: c.DeptID, DeptName: c.DeptName, TypeMatch: c.TypeMatch}, nil
	case ccRoleMatch:
		if c.RoleName == "" || !hasDept {
			return nil, fmt.Errorf("%s needs deptId and roleName", rule.Type)
		}
		return strategy.Role{TargetDeptID: c.DeptID, TargetDeptName: c.DeptName, RoleName: c.RoleName}, nil
	case ccResponsible:
		return strategy.Responsible{}, nil
	case ccReporter:
		return strategy.Reporter{}, nil
	}
	return nil, fmt.Errorf("unknown cc rule type %q", rule.Type)
}
