package workflow

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-ehs-handlers/internal/condition"
	"github.com/pesio-ai/be-ehs-handlers/internal/errors"
	"github.com/pesio-ai/be-ehs-handlers/internal/form"
	"github.com/pesio-ai/be-ehs-handlers/internal/orggraph"
	"github.com/pesio-ai/be-ehs-handlers/internal/strategy"
)

func graph() *orggraph.Graph {
	return orggraph.New(
		[]orggraph.Department{
			{ID: "d0", Name: "公司", ManagerID: "C"},
			{ID: "d1", Name: "一号车间", ParentID: "d0", ManagerID: "B"},
			{ID: "d2", Name: "办公室", ParentID: "d0", ManagerID: "D"},
		},
		[]orggraph.User{
			{ID: "A", Name: "甲", DepartmentID: "d1"},
			{ID: "B", Name: "乙", DepartmentID: "d1"},
			{ID: "C", Name: "丙", DepartmentID: "d0"},
			{ID: "D", Name: "丁", DepartmentID: "d2"},
		},
	)
}

func record() strategy.Record {
	return strategy.Record{ID: "h-1", Kind: strategy.RecordHazard, ReporterID: "A", ResponsibleID: "D", Location: "一号车间东区"}
}

func fixed(ids ...string) strategy.Config {
	var users []strategy.FixedUser
	for _, id := range ids {
		users = append(users, strategy.FixedUser{UserID: id})
	}
	return strategy.Fixed{FixedUsers: users}
}

func userIDs(users []orggraph.User) []string {
	out := make([]string, 0, len(users))
	for _, u := range users {
		out = append(out, u.ID)
	}
	return out
}

func deptCondition(value string) *condition.Condition {
	return &condition.Condition{Enabled: true, FieldName: "部门", Operator: condition.OpEq, Value: condition.Text(value)}
}

func permitFields(dept string) (form.Data, []form.ParsedField) {
	return form.Data{"4-2": dept},
		[]form.ParsedField{{CellKey: "R5C3", Label: "作业部门", FieldName: "部门", FieldType: form.TypeDepartment}}
}

func TestOR_UnionDeduplicated(t *testing.T) {
	step := Step{ID: "s1", Mode: ModeOR, Entries: []Entry{
		{ID: "e1", Strategy: fixed("A", "B")},
		{ID: "e2", Strategy: fixed("B", "C")},
	}}
	res := ResolveHandlers(record(), step, graph())
	require.True(t, res.Success, res.Error)
	assert.Equal(t, []string{"A", "B", "C"}, userIDs(res.Users))
	assert.Equal(t, "fixed", res.MatchedBy)
	assert.Len(t, res.Entries, 2)
}

func TestOR_PartialFailureStillSucceeds(t *testing.T) {
	step := Step{ID: "s1", Entries: []Entry{
		{ID: "e1", Strategy: strategy.DeptManager{TargetDeptID: "nope"}},
		{ID: "e2", Strategy: strategy.Reporter{}},
	}}
	res := ResolveHandlers(record(), step, graph())
	require.True(t, res.Success)
	assert.Equal(t, []string{"A"}, userIDs(res.Users))
	assert.Equal(t, "reporter", res.MatchedBy)
	assert.Equal(t, errors.ErrCodeLookup, res.Entries[0].Code)
}

func TestAND_EmptyEntryFailsStep(t *testing.T) {
	step := Step{ID: "s1", Mode: ModeAND, Entries: []Entry{
		{ID: "e1", Strategy: fixed("A")},
		{ID: "e2", Strategy: strategy.DeptManager{}},
	}}
	res := ResolveHandlers(record(), step, graph())
	assert.False(t, res.Success)
	assert.Empty(t, res.Users, "no partial approver set")
	assert.Equal(t, errors.ErrCodeEmptyResult, res.Code)
	assert.Contains(t, res.Error, "e2")
	assert.Equal(t, []string{"A"}, userIDs(res.Entries[0].Users))
}

func TestAND_PerEntrySets(t *testing.T) {
	step := Step{ID: "s1", Mode: ModeAND, Entries: []Entry{
		{ID: "e1", Strategy: fixed("A", "B")},
		{ID: "e2", Strategy: strategy.AssignedDepartmentManager{}},
	}}
	rec := record()
	rec.AssignedDepartmentID = "d2"
	res := ResolveHandlers(rec, step, graph())
	require.True(t, res.Success, res.Error)
	assert.Equal(t, []string{"A", "B"}, userIDs(res.Entries[0].Users))
	assert.Equal(t, []string{"D"}, userIDs(res.Entries[1].Users))
	assert.Equal(t, []string{"A", "B", "D"}, userIDs(res.Users))
	assert.Equal(t, "fixed,assigned_department_manager", res.MatchedBy)
}

func TestAND_FalseConditionNotRequired(t *testing.T) {
	step := Step{ID: "s1", Mode: ModeAND, Entries: []Entry{
		{ID: "e1", Strategy: fixed("A")},
		{ID: "e2", Strategy: strategy.DeptManager{}, Condition: deptCondition("办公室")},
	}}
	data, parsed := permitFields("车间")
	users := ResolveApprovers("", step, data, parsed, graph())
	assert.Equal(t, []string{"A"}, userIDs(users))
}

func TestConditional_Activation(t *testing.T) {
	step := Step{ID: "s1", Mode: ModeConditional, Entries: []Entry{
		{ID: "workshop", Strategy: strategy.DeptManager{TargetDeptID: "d1"}, Condition: deptCondition("车间")},
		{ID: "always", Strategy: fixed("C")},
	}}

	data, parsed := permitFields("车间")
	assert.Equal(t, []string{"B"}, userIDs(ResolveApprovers("", step, data, parsed, graph())))

	data, parsed = permitFields("办公室")
	assert.Empty(t, ResolveApprovers("", step, data, parsed, graph()))

	res := Resolver{}.Handlers(strategy.Record{Fields: form.Fields{Parsed: parsed, Data: data}}, step, graph())
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "no applicable rule")
	assert.False(t, res.Entries[0].Active)
	assert.False(t, res.Entries[1].Active, "unconditioned entries never fire in CONDITIONAL mode")
}

func TestConditional_MultipleTrueUnion(t *testing.T) {
	always := &condition.Condition{Enabled: true, FieldName: "部门", Operator: condition.OpContains, Value: condition.Text("车")}
	step := Step{ID: "s1", Mode: ModeConditional, Entries: []Entry{
		{ID: "a", Strategy: fixed("A", "B"), Condition: deptCondition("车间")},
		{ID: "b", Strategy: fixed("B", "C"), Condition: always},
	}}
	data, parsed := permitFields("车间")
	assert.Equal(t, []string{"A", "B", "C"}, userIDs(ResolveApprovers("", step, data, parsed, graph())))
}

func TestConditional_RecordAttributes(t *testing.T) {
	step := Step{ID: "s1", Mode: ModeConditional, Entries: []Entry{
		{ID: "loc", Strategy: fixed("D"), Condition: &condition.Condition{
			Enabled: true, FieldName: "location", Operator: condition.OpContains, Value: condition.Text("一号车间"),
		}},
	}}
	res := ResolveHandlers(record(), step, graph())
	require.True(t, res.Success)
	assert.Equal(t, []string{"D"}, userIDs(res.Users))
}

func TestDisabledConditionIgnoredInOR(t *testing.T) {
	step := Step{ID: "s1", Entries: []Entry{
		{ID: "e1", Strategy: fixed("A"), Condition: &condition.Condition{Enabled: false, FieldName: "x", Operator: condition.OpEq}},
	}}
	res := ResolveHandlers(record(), step, graph())
	require.True(t, res.Success)
	assert.Equal(t, []string{"A"}, userIDs(res.Users))
}

func TestSingleEntryFailureKeepsItsCode(t *testing.T) {
	step := Step{ID: "s1", Entries: []Entry{{ID: "e1", Strategy: strategy.Role{TargetDeptID: "d1"}}}}
	res := ResolveHandlers(record(), step, graph())
	assert.False(t, res.Success)
	assert.Equal(t, errors.ErrCodeConfig, res.Code)
	assert.NotNil(t, res.Users)
}

func TestNoEntries(t *testing.T) {
	res := ResolveHandlers(record(), Step{ID: "s1"}, graph())
	assert.False(t, res.Success)
	assert.Equal(t, errors.ErrCodeConfig, res.Code)
}

func TestCC_NeverAffectsSuccess(t *testing.T) {
	step := Step{
		ID:      "s1",
		Entries: []Entry{{ID: "e1", Strategy: strategy.Reporter{}}},
		CC:      []Entry{{ID: "cc1", Strategy: strategy.DeptManager{TargetDeptID: "d2"}}, {ID: "cc2", Strategy: strategy.DeptManager{}}},
	}
	res := ResolveHandlers(record(), step, graph())
	require.True(t, res.Success)
	assert.Equal(t, []string{"D"}, userIDs(res.CC))

	step.Entries = []Entry{{ID: "e1", Strategy: strategy.DeptManager{}}}
	res = ResolveHandlers(record(), step, graph())
	assert.False(t, res.Success)
	assert.Equal(t, []string{"D"}, userIDs(res.CC))
}

func TestResolveWorkflow(t *testing.T) {
	steps := []Step{
		{ID: "report", Name: "上报", Entries: []Entry{{Strategy: strategy.Fixed{}}}},
		{ID: "rectify", Name: "整改", Entries: []Entry{{Strategy: strategy.Responsible{}}}},
	}
	res := ResolveWorkflow(record(), steps, graph())
	require.True(t, res.Success)
	require.Len(t, res.Steps, 2)
	assert.Equal(t, []string{"A"}, userIDs(res.Steps[0].Users))
	assert.Equal(t, "rectify", res.Steps[1].StepID)

	steps = append(steps, Step{ID: "verify", Entries: []Entry{{Strategy: strategy.DeptManager{}}}})
	res = ResolveWorkflow(record(), steps, graph())
	assert.False(t, res.Success)
	assert.Equal(t, "some steps could not be matched", res.Error)
	assert.True(t, res.Steps[0].Success)
}

func TestDeterministic(t *testing.T) {
	step := Step{ID: "s1", Entries: []Entry{
		{ID: "e1", Strategy: strategy.LocationMatch{Rules: []strategy.LocationRule{{Location: "一号车间", DeptID: "d1"}}}},
		{ID: "e2", Strategy: fixed("C", "A")},
	}}
	g := graph()
	first := ResolveHandlers(record(), step, g)
	second := ResolveHandlers(record(), step, g)
	assert.Equal(t, first, second)
	assert.Equal(t, []string{"B", "C", "A"}, userIDs(first.Users))
}

func TestParseMode(t *testing.T) {
	assert.Equal(t, ModeAND, ParseMode(" and "))
	assert.Equal(t, ModeConditional, ParseMode("CONDITIONAL"))
	assert.Equal(t, ModeOR, ParseMode(""))
	assert.Equal(t, ModeOR, ParseMode("XOR"))
}

func TestStepJSON_Native(t *testing.T) {
	raw := `{"id":"s1","name":"审核","approvalMode":"AND","entries":[
		{"id":"e1","strategy":{"type":"dept_manager","targetDeptId":"d1"}},
		{"id":"e2","strategy":{"type":"fixed","fixedUsers":[{"userId":"A"}]},
		 "condition":{"enabled":true,"fieldName":"部门","operator":"in","value":["车间","仓库"]}}
	]}`
	var s Step
	require.NoError(t, json.Unmarshal([]byte(raw), &s))
	assert.Equal(t, ModeAND, s.Mode)
	require.Len(t, s.Entries, 2)
	assert.Equal(t, strategy.DeptManager{TargetDeptID: "d1"}, s.Entries[0].Strategy)
	assert.Equal(t, []string{"车间", "仓库"}, s.Entries[1].Condition.Value.Items())

	out, err := json.Marshal(s)
	require.NoError(t, err)
	var back Step
	require.NoError(t, json.Unmarshal(out, &back))
	assert.Equal(t, s, back)
}

func TestStepJSON_HazardShape(t *testing.T) {
	raw := `{"id":"assign","name":"指派","handlerStrategy":{"type":"fixed","approvalMode":"CONDITIONAL","strategies":[
		{"id":"s1","strategy":"location_match","locationMatches":[{"location":"一号车间","deptId":"d1"}],
		 "condition":{"enabled":true,"field":"riskLevel","operator":"=","value":"重大"}},
		{"id":"s2","strategy":"role","targetDeptId":"d1","roleName":"安全员"}
	]}}`
	var s Step
	require.NoError(t, json.Unmarshal([]byte(raw), &s))
	assert.Equal(t, ModeConditional, s.Mode)
	require.Len(t, s.Entries, 2)
	assert.Equal(t, strategy.KindLocationMatch, s.Entries[0].Strategy.Kind())
	assert.Equal(t, "riskLevel", s.Entries[0].Condition.FieldName)
	assert.Equal(t, strategy.Role{TargetDeptID: "d1", RoleName: "安全员"}, s.Entries[1].Strategy)
}

func TestStepJSON_HazardSingleStrategy(t *testing.T) {
	raw := `{"id":"rectify","name":"整改","handlerStrategy":{"type":"responsible","description":"责任人整改"}}`
	var s Step
	require.NoError(t, json.Unmarshal([]byte(raw), &s))
	require.Len(t, s.Entries, 1)
	assert.Equal(t, strategy.Responsible{}, s.Entries[0].Strategy)
	assert.Equal(t, "责任人整改", s.Description)
}

func TestStepJSON_PermitShapes(t *testing.T) {
	raw := `[
		{"step":0,"name":"部门审批","approvalMode":"OR","approverStrategies":[
			{"id":"a","strategy":"specific_dept_manager","strategyConfig":{"targetDeptId":"d2"}},
			{"id":"b","strategy":"fixed","approvers":[{"userId":"C","userName":"丙"}]}
		]},
		{"step":1,"name":"安全审批","approverStrategy":"template_field_manager","strategyConfig":{"fieldName":"部门"},"approvers":[]}
	]`
	steps, err := DecodeSteps([]byte(raw))
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, "0", steps[0].ID)
	assert.Equal(t, strategy.DeptManager{TargetDeptID: "d2"}, steps[0].Entries[0].Strategy)
	assert.Equal(t, strategy.Fixed{FixedUsers: []strategy.FixedUser{{UserID: "C", UserName: "丙"}}}, steps[0].Entries[1].Strategy)
	assert.Equal(t, strategy.TemplateFieldManager{FieldName: "部门"}, steps[1].Entries[0].Strategy)

	data, parsed := permitFields("办公室")
	assert.Equal(t, []string{"D", "C"}, userIDs(ResolveApprovers("", steps[0], data, parsed, graph())))
	assert.Equal(t, []string{"D"}, userIDs(ResolveApprovers("", steps[1], data, parsed, graph())))
}

func TestStepJSON_UnknownStrategy(t *testing.T) {
	_, err := DecodeSteps([]byte(`[{"id":"s","entries":[{"id":"e","strategy":{"type":"tarot"}}]}]`))
	assert.Error(t, err)
}

func TestResolver_ApplicantDepartment(t *testing.T) {
	step := Step{ID: "s1", Entries: []Entry{{Strategy: strategy.CurrentDeptManager{}}}}

	res := Resolver{ApplicantDepartment: "办公室"}.Handlers(strategy.Record{Kind: strategy.RecordPermit}, step, graph())
	require.True(t, res.Success)
	assert.Equal(t, []string{"D"}, userIDs(res.Users))

	assert.Equal(t, []string{"B"}, userIDs(ResolveApprovers("d1", step, nil, nil, graph())))
	assert.Empty(t, ResolveApprovers("", step, nil, nil, graph()))
}

func TestStepJSON_CCRules(t *testing.T) {
	raw := `{"id":"rectify","name":"整改","handlerStrategy":{"type":"responsible"},"ccRules":[
		{"id":"c1","type":"reporter_manager","description":"上报人主管"},
		{"id":"c2","type":"handler_manager","description":"处理人主管"}
	]}`
	var s Step
	require.NoError(t, json.Unmarshal([]byte(raw), &s))
	require.Len(t, s.CC, 2)
	assert.Equal(t, Entry{ID: "c1", Strategy: strategy.ReporterManager{}, Description: "上报人主管"}, s.CC[0])
	assert.Equal(t, strategy.HandlerManager{}, s.CC[1].Strategy)

	res := ResolveHandlers(record(), s, graph())
	require.True(t, res.Success, res.Error)
	assert.Equal(t, []string{"D"}, userIDs(res.Users))
	// Reporter A reports to B; handler D heads 办公室 and reports to C.
	assert.Equal(t, []string{"B", "C"}, userIDs(res.CC))

	out, err := json.Marshal(s)
	require.NoError(t, err)
	var back Step
	require.NoError(t, json.Unmarshal(out, &back))
	assert.Equal(t, s.CC, back.CC)
}

func TestCCRules_Types(t *testing.T) {
	g := orggraph.New(
		[]orggraph.Department{
			{ID: "d0", Name: "公司", ManagerID: "C"},
			{ID: "d1", Name: "一号车间", ParentID: "d0", ManagerID: "B"},
			{ID: "d2", Name: "办公室", ParentID: "d0", ManagerID: "D"},
		},
		[]orggraph.User{
			{ID: "A", Name: "甲", DepartmentID: "d1"},
			{ID: "B", Name: "乙", DepartmentID: "d1", Role: "车间班长"},
			{ID: "C", Name: "丙", DepartmentID: "d0"},
			{ID: "D", Name: "丁", DepartmentID: "d2"},
		},
	)
	rec := record()
	rec.Type = "电气隐患"

	tests := []struct {
		name string
		rule string
		want []string
	}{
		{"fixed users", `{"id":"r","type":"fixed_users","config":{"userIds":["C"],"userNames":["丙"]}}`, []string{"C"}},
		{"reporter manager", `{"id":"r","type":"reporter_manager"}`, []string{"B"}},
		{"responsible manager", `{"id":"r","type":"responsible_manager"}`, []string{"C"}},
		{"handler manager", `{"id":"r","type":"handler_manager"}`, []string{"B"}},
		{"dept by location", `{"id":"r","type":"dept_by_location","config":{"locationMatch":"东区","deptId":"d1"}}`, []string{"A", "B"}},
		{"dept by location miss", `{"id":"r","type":"dept_by_location","config":{"locationMatch":"西区","deptId":"d1"}}`, []string{}},
		{"dept by type", `{"id":"r","type":"dept_by_type","config":{"typeMatch":"电气隐患","deptName":"办公室"}}`, []string{"D"}},
		{"dept by type miss", `{"id":"r","type":"dept_by_type","config":{"typeMatch":"消防隐患","deptId":"d2"}}`, []string{}},
		{"role match", `{"id":"r","type":"role_match","config":{"deptId":"d1","roleName":"班长"}}`, []string{"B"}},
		{"responsible", `{"id":"r","type":"responsible"}`, []string{"D"}},
		{"reporter", `{"id":"r","type":"reporter"}`, []string{"A"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := `{"id":"s1","handlerStrategy":{"type":"reporter"},"ccRules":[` + tt.rule + `]}`
			var s Step
			require.NoError(t, json.Unmarshal([]byte(raw), &s))
			require.Len(t, s.CC, 1)

			res := ResolveHandlers(rec, s, g)
			require.True(t, res.Success, res.Error)
			assert.Equal(t, []string{"A"}, userIDs(res.Users))
			assert.Equal(t, tt.want, userIDs(res.CC))
		})
	}
}

func TestCCRules_HandlerManagerNeedsHandler(t *testing.T) {
	raw := `{"id":"s1","handlerStrategy":{"type":"dept_manager"},"ccRules":[{"id":"r","type":"handler_manager"}]}`
	var s Step
	require.NoError(t, json.Unmarshal([]byte(raw), &s))

	res := ResolveHandlers(record(), s, graph())
	assert.False(t, res.Success)
	assert.Empty(t, res.CC)
}

func TestCCRules_Invalid(t *testing.T) {
	for _, rule := range []string{
		`{"id":"r","type":"carbon_copy"}`,
		`{"id":"r","type":"fixed_users","config":{}}`,
		`{"id":"r","type":"dept_by_location","config":{"deptId":"d1"}}`,
		`{"id":"r","type":"dept_by_type","config":{"typeMatch":"电气隐患"}}`,
		`{"id":"r","type":"role_match","config":{"deptId":"d1"}}`,
	} {
		_, err := DecodeSteps([]byte(`[{"id":"s1","handlerStrategy":{"type":"reporter"},"ccRules":[` + rule + `]}]`))
		assert.Error(t, err, rule)
	}
}
