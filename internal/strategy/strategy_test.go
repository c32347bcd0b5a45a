package strategy

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-ehs-handlers/internal/errors"
	"github.com/pesio-ai/be-ehs-handlers/internal/form"
	"github.com/pesio-ai/be-ehs-handlers/internal/orggraph"
)

func testGraph() *orggraph.Graph {
	return orggraph.New(
		[]orggraph.Department{
			{ID: "d0", Name: "公司", ManagerID: "m0", Level: 1},
			{ID: "d1", Name: "一号车间", ParentID: "d0", ManagerID: "m1", Level: 2},
			{ID: "d2", Name: "二号车间", ParentID: "d0", ManagerID: "m2", Level: 2},
			{ID: "d3", Name: "安全部", ParentID: "d0", ManagerID: "m3", Level: 2},
			{ID: "d11", Name: "焊接班组", ParentID: "d1", Level: 3},
		},
		[]orggraph.User{
			{ID: "m0", Name: "总经理", DepartmentID: "d0"},
			{ID: "m1", Name: "车间主任甲", DepartmentID: "d1"},
			{ID: "m2", Name: "车间主任乙", DepartmentID: "d2"},
			{ID: "m3", Name: "安全经理", DepartmentID: "d3"},
			{ID: "u1", Name: "张三", DepartmentID: "d11", Role: "操作工"},
			{ID: "u5", Name: "李四", DepartmentID: "d11", Role: "兼职安全员"},
			{ID: "u6", Name: "王五", DepartmentID: "d1", Role: "班长"},
			{ID: "u9", Name: "赵六", DepartmentID: "d2", Role: "安全员"},
		},
	)
}

func testEnv() *Env {
	return &Env{
		Graph: testGraph(),
		Record: Record{
			ID:                   "h-1",
			Kind:                 RecordHazard,
			ReporterID:           "u1",
			ResponsibleID:        "u9",
			AssignedDepartmentID: "d3",
			Location:             "一号车间东区",
			Type:                 "电气隐患",
			RiskLevel:            "重大",
		},
		Step: StepContext{ID: "review", Name: "审核"},
	}
}

func ids(users []orggraph.User) []string {
	out := make([]string, 0, len(users))
	for _, u := range users {
		out = append(out, u.ID)
	}
	return out
}

func TestRecordRoleStrategies(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
		want []string
	}{
		{"reporter", Reporter{}, []string{"u1"}},
		{"responsible", Responsible{}, []string{"u9"}},
		{"reporter manager climbs past managerless team", ReporterManager{}, []string{"m1"}},
		{"department manager alias", DepartmentManager{}, []string{"m1"}},
		{"responsible manager", ResponsibleManager{}, []string{"m2"}},
		{"assigned department manager", AssignedDepartmentManager{}, []string{"m3"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			users, err := Resolve(tc.cfg, testEnv())
			require.NoError(t, err)
			assert.Equal(t, tc.want, ids(users))
		})
	}
}

func TestReporter_Missing(t *testing.T) {
	env := testEnv()
	env.Record.ReporterID = ""
	_, err := Resolve(Reporter{}, env)
	assert.True(t, errors.Is(err, errors.ErrCodeEmptyResult))

	env.Record.ReporterID = "ghost"
	_, err = Resolve(Reporter{}, env)
	assert.True(t, errors.Is(err, errors.ErrCodeLookup))
}

func TestFixed_ConfiguredUsers(t *testing.T) {
	cfg := Fixed{FixedUsers: []FixedUser{{UserID: "ghost"}, {UserID: "u6"}, {UserID: "u6"}, {UserID: "m3"}}}
	users, err := Resolve(cfg, testEnv())
	require.NoError(t, err)
	assert.Equal(t, []string{"u6", "m3"}, ids(users))
}

func TestFixed_Fallbacks(t *testing.T) {
	cases := []struct {
		name string
		cfg  Fixed
		step StepContext
		want string
	}{
		{"single user id", Fixed{UserID: "m2"}, StepContext{}, "m2"},
		{"auto reporter", Fixed{UserID: AutoReporter}, StepContext{}, "u1"},
		{"auto assigned", Fixed{UserID: AutoAssigned}, StepContext{}, "u9"},
		{"step id report", Fixed{}, StepContext{ID: "report"}, "u1"},
		{"step name rectify", Fixed{}, StepContext{ID: "s2", Name: "隐患整改"}, "u9"},
		{"description responsible", Fixed{Description: "由责任人处理"}, StepContext{ID: "review", Name: "审核"}, "u9"},
		{"step description reporter", Fixed{}, StepContext{ID: "x", Description: "退回发起人确认"}, "u1"},
		{"english keyword", Fixed{Description: "Sent back to the Reporter"}, StepContext{}, "u1"},
		{"stale list falls through", Fixed{FixedUsers: []FixedUser{{UserID: "ghost"}}}, StepContext{ID: "rectify"}, "u9"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := testEnv()
			env.Step = tc.step
			users, err := Resolve(tc.cfg, env)
			require.NoError(t, err)
			assert.Equal(t, []string{tc.want}, ids(users))
		})
	}
}

func TestFixed_Errors(t *testing.T) {
	_, err := Resolve(Fixed{}, testEnv())
	assert.True(t, errors.Is(err, errors.ErrCodeConfig))

	_, err = Resolve(Fixed{FixedUsers: []FixedUser{{UserID: "ghost"}}}, testEnv())
	assert.True(t, errors.Is(err, errors.ErrCodeLookup))
	assert.Contains(t, err.Error(), "ghost")
}

func TestDeptManagerAndRole(t *testing.T) {
	users, err := Resolve(DeptManager{TargetDeptID: "d2"}, testEnv())
	require.NoError(t, err)
	assert.Equal(t, []string{"m2"}, ids(users))

	users, err = Resolve(DeptManager{TargetDeptName: "安全部"}, testEnv())
	require.NoError(t, err)
	assert.Equal(t, []string{"m3"}, ids(users))

	_, err = Resolve(DeptManager{}, testEnv())
	assert.True(t, errors.Is(err, errors.ErrCodeConfig))

	_, err = Resolve(DeptManager{TargetDeptID: "d404"}, testEnv())
	assert.True(t, errors.Is(err, errors.ErrCodeLookup))

	_, err = Resolve(DeptManager{TargetDeptID: "d11"}, testEnv())
	assert.True(t, errors.Is(err, errors.ErrCodeEmptyResult), "no manager")

	users, err = Resolve(Role{TargetDeptID: "d1", RoleName: "安全员"}, testEnv())
	require.NoError(t, err)
	assert.Equal(t, []string{"u5"}, ids(users), "recursive into sub-departments")

	_, err = Resolve(Role{TargetDeptID: "d1"}, testEnv())
	assert.True(t, errors.Is(err, errors.ErrCodeConfig))
}

func TestLocationMatch(t *testing.T) {
	cfg := LocationMatch{Rules: []LocationRule{
		{Location: "二号车间", DeptID: "d2"},
		{Location: "一号车间", DeptID: "d1"},
	}}
	users, err := Resolve(cfg, testEnv())
	require.NoError(t, err)
	assert.Equal(t, []string{"m1"}, ids(users))
}

func TestLocationMatch_FirstMatchWins(t *testing.T) {
	cfg := LocationMatch{Rules: []LocationRule{
		{Location: "车间", DeptID: "d3"},
		{Location: "一号车间", DeptID: "d1"},
	}}
	users, err := Resolve(cfg, testEnv())
	require.NoError(t, err)
	assert.Equal(t, []string{"m3"}, ids(users))
}

func TestRuleTables_Misses(t *testing.T) {
	_, err := Resolve(LocationMatch{}, testEnv())
	assert.True(t, errors.Is(err, errors.ErrCodeConfig))

	_, err = Resolve(LocationMatch{Rules: []LocationRule{{Location: "仓库", DeptID: "d2"}}}, testEnv())
	assert.True(t, errors.Is(err, errors.ErrCodeEmptyResult))

	_, err = Resolve(LocationMatch{Rules: []LocationRule{{Location: "一号", DeptID: ""}}}, testEnv())
	assert.True(t, errors.Is(err, errors.ErrCodeConfig))

	assert.Nil(t, Users(RiskMatch{Rules: []RiskRule{{RiskLevel: "重大风险", DeptID: "d3"}}}, testEnv()),
		"risk levels compare by equality")
}

func TestTypeAndRiskMatch(t *testing.T) {
	users, err := Resolve(TypeMatch{Rules: []TypeRule{{Type: "消防", DeptID: "d2"}, {Type: "电气", DeptID: "d3"}}}, testEnv())
	require.NoError(t, err)
	assert.Equal(t, []string{"m3"}, ids(users))

	users, err = Resolve(RiskMatch{Rules: []RiskRule{{RiskLevel: "一般", DeptID: "d1"}, {RiskLevel: "重大", DeptID: "d0"}}}, testEnv())
	require.NoError(t, err)
	assert.Equal(t, []string{"m0"}, ids(users))
}

func permitEnv(data form.Data) *Env {
	env := testEnv()
	env.Record = Record{
		ID:   "p-1",
		Kind: RecordPermit,
		Fields: form.Fields{
			Parsed: []form.ParsedField{
				{CellKey: "R2C2", Label: "作业部门", FieldName: "workDept", FieldType: form.TypeDepartment},
				{CellKey: "R3C2", Label: "作业内容", FieldName: "content", FieldType: form.TypeText},
				{CellKey: "R4C2", Label: "是否涉及受限空间", FieldName: "confined", FieldType: form.TypeOption},
				{CellKey: "R5C2", Label: "是否高处作业", FieldName: "height", FieldType: form.TypeOption},
			},
			Data: data,
		},
	}
	env.ApplicantDepartment = "二号车间"
	return env
}

func TestPermitStrategies(t *testing.T) {
	env := permitEnv(form.Data{"1-1": "一号车间", "2-1": "更换电机并动火切割", "3-1": "☑是 □否", "4-1": false})

	users, err := Resolve(CurrentDeptManager{}, env)
	require.NoError(t, err)
	assert.Equal(t, []string{"m2"}, ids(users))

	users, err = Resolve(TemplateFieldManager{FieldName: "workDept"}, env)
	require.NoError(t, err)
	assert.Equal(t, []string{"m1"}, ids(users))

	users, err = Resolve(TemplateTextMatch{TextMatches: []TextMatch{
		{FieldName: "content", ContainsText: "吊装", TargetDeptID: "d2"},
		{FieldName: "content", ContainsText: "动火", TargetDeptID: "d3"},
	}}, env)
	require.NoError(t, err)
	assert.Equal(t, []string{"m3"}, ids(users))

	users, err = Resolve(TemplateOptionMatch{OptionMatches: []OptionMatch{
		{FieldName: "confined", ApproverType: ApproverDeptManager, TargetDeptID: "d3"},
		{FieldName: "confined", ApproverType: ApproverPerson, ApproverUserID: "m3"},
		{FieldName: "height", ApproverType: ApproverPerson, ApproverUserID: "u6"},
	}}, env)
	require.NoError(t, err)
	assert.Equal(t, []string{"m3"}, ids(users), "deduplicated and unticked option skipped")
}

func TestTemplateFieldManager_NoFields(t *testing.T) {
	_, err := Resolve(TemplateFieldManager{FieldName: "workDept"}, testEnv())
	assert.True(t, errors.Is(err, errors.ErrCodeEmptyResult))

	_, err = Resolve(TemplateFieldManager{}, testEnv())
	assert.True(t, errors.Is(err, errors.ErrCodeConfig))
}

func TestOptionChecked(t *testing.T) {
	assert.True(t, optionChecked(true, ""))
	assert.False(t, optionChecked(false, ""))
	assert.True(t, optionChecked("是", "否"))
	assert.True(t, optionChecked("✔", "x"))
	assert.True(t, optionChecked("动 火", "动火"))
	assert.False(t, optionChecked("高处", "动火"))
	assert.False(t, optionChecked("", ""))
	assert.True(t, optionChecked(1.0, "x"))
}

func TestResolve_NilInputs(t *testing.T) {
	_, err := Resolve(nil, testEnv())
	assert.True(t, errors.Is(err, errors.ErrCodeConfig))

	_, err = Resolve(Reporter{}, nil)
	assert.Error(t, err)
}

func TestDecode(t *testing.T) {
	cfg, err := Decode([]byte(`{"type":"location_match","rules":[{"location":"一号车间","deptId":"d1"}]}`))
	require.NoError(t, err)
	assert.Equal(t, LocationMatch{Rules: []LocationRule{{Location: "一号车间", DeptID: "d1"}}}, cfg)

	cfg, err = Decode([]byte(`{"type":"risk_match","riskMatches":[{"riskLevel":"重大","deptId":"d3"}]}`))
	require.NoError(t, err)
	assert.Equal(t, KindRiskMatch, cfg.Kind())
	assert.Len(t, cfg.(RiskMatch).Rules, 1)

	cfg, err = Decode([]byte(`{"strategy":"specific_dept_manager","targetDeptId":"d2"}`))
	require.NoError(t, err)
	assert.Equal(t, DeptManager{TargetDeptID: "d2"}, cfg)

	cfg, err = Decode([]byte(`{"type":"reporter"}`))
	require.NoError(t, err)
	assert.Equal(t, Reporter{}, cfg)

	for _, bad := range []string{`{}`, `{"type":"astrology"}`, `[1]`, `{"type":"role","roleName":5}`} {
		_, err := Decode([]byte(bad))
		assert.Error(t, err, bad)
	}
}

func TestEncode(t *testing.T) {
	in := Role{TargetDeptID: "d1", RoleName: "安全员"}
	b, err := Encode(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"role","targetDeptId":"d1","roleName":"安全员"}`, string(b))

	out, err := Decode(b)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	b, err = Encode(Reporter{})
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	assert.Equal(t, "reporter", m["type"])
}

func TestKinds(t *testing.T) {
	kinds := Kinds()
	assert.Contains(t, kinds, KindLocationMatch)
	assert.Contains(t, kinds, KindTemplateOptionMatch)
	assert.Len(t, kinds, 19)
}

func TestHandlerManager(t *testing.T) {
	env := testEnv()
	_, err := Resolve(HandlerManager{}, env)
	assert.True(t, errors.Is(err, errors.ErrCodeEmptyResult))

	env.Handlers = []orggraph.User{{ID: "u1"}, {ID: "u9"}}
	users, err := Resolve(HandlerManager{}, env)
	require.NoError(t, err)
	assert.Equal(t, []string{"m1"}, ids(users))

	env.Handlers = []orggraph.User{{ID: "ghost"}}
	_, err = Resolve(HandlerManager{}, env)
	assert.True(t, errors.Is(err, errors.ErrCodeLookup))
}

func TestDeptMembers(t *testing.T) {
	env := testEnv()

	users, err := Resolve(DeptMembers{DeptID: "d1"}, env)
	require.NoError(t, err)
	assert.Equal(t, []string{"m1", "u6"}, ids(users))

	users, err = Resolve(DeptMembers{DeptName: "焊接班组", LocationMatch: "东区"}, env)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u5"}, ids(users))

	_, err = Resolve(DeptMembers{DeptID: "d1", LocationMatch: "西区"}, env)
	assert.True(t, errors.Is(err, errors.ErrCodeEmptyResult))

	_, err = Resolve(DeptMembers{DeptID: "d2", TypeMatch: "电气"}, env)
	assert.True(t, errors.Is(err, errors.ErrCodeEmptyResult))

	users, err = Resolve(DeptMembers{DeptID: "d2", TypeMatch: "电气隐患"}, env)
	require.NoError(t, err)
	assert.Equal(t, []string{"m2", "u9"}, ids(users))

	_, err = Resolve(DeptMembers{}, env)
	assert.True(t, errors.Is(err, errors.ErrCodeConfig))
}
