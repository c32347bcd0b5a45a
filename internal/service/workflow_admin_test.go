package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-ehs-handlers/internal/errors"
	"github.com/pesio-ai/be-ehs-handlers/internal/strategy"
	"github.com/pesio-ai/be-ehs-handlers/internal/workflow"
)

func TestDefineWorkflow(t *testing.T) {
	f := newFixture(t)

	var req DefineWorkflowRequest
	require.NoError(t, json.Unmarshal([]byte(`{
		"entity_id": "ent",
		"record_type": "permit",
		"workflow": "confined-space",
		"steps": [{"id": "0", "approverStrategies": [{"strategy": "dept_manager", "targetDeptId": "d2"}]}]
	}`), &req))

	def, err := f.svc.DefineWorkflow(context.Background(), &req)
	require.NoError(t, err)
	assert.Equal(t, 1, def.Version)
	assert.True(t, def.IsActive)
	require.Len(t, f.definitions.created, 1)
	assert.Equal(t, strategy.KindDeptManager, def.Steps[0].Entries[0].Strategy.Kind())
}

func TestDefineWorkflow_Validation(t *testing.T) {
	f := newFixture(t)
	ok := []workflow.Step{{ID: "0", Entries: []workflow.Entry{{Strategy: strategy.Reporter{}}}}}

	tests := []struct {
		name string
		req  DefineWorkflowRequest
	}{
		{"no entity", DefineWorkflowRequest{RecordType: "hazard", WorkflowKey: "k", Steps: ok}},
		{"bad type", DefineWorkflowRequest{EntityID: "e", RecordType: "x", WorkflowKey: "k", Steps: ok}},
		{"no key", DefineWorkflowRequest{EntityID: "e", RecordType: "hazard", Steps: ok}},
		{"no steps", DefineWorkflowRequest{EntityID: "e", RecordType: "hazard", WorkflowKey: "k"}},
		{"empty step", DefineWorkflowRequest{EntityID: "e", RecordType: "hazard", WorkflowKey: "k", Steps: []workflow.Step{{ID: "0"}}}},
		{"nil strategy", DefineWorkflowRequest{EntityID: "e", RecordType: "hazard", WorkflowKey: "k",
			Steps: []workflow.Step{{ID: "0", Entries: []workflow.Entry{{}}}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.DefineWorkflow(context.Background(), &tt.req)
			assert.Equal(t, errors.ErrCodeInvalidInput, errors.CodeOf(err))
		})
	}
	assert.Empty(t, f.definitions.created)
}

func TestListWorkflows(t *testing.T) {
	f := newFixture(t)

	defs, err := f.svc.ListWorkflows(context.Background(), "ent", "permit", true)
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, "hot-work", defs[0].WorkflowKey)

	defs, err = f.svc.ListWorkflows(context.Background(), "ent", "other", true)
	require.NoError(t, err)
	assert.NotNil(t, defs)
	assert.Empty(t, defs)

	_, err = f.svc.ListWorkflows(context.Background(), "", "permit", true)
	assert.Error(t, err)
}

func TestGetAssignmentAndAuditTrail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ref := RecordRef{EntityID: "ent", RecordType: "hazard", RecordID: "h-1"}

	_, err := f.svc.GetAssignment(ctx, ref, 1)
	assert.Equal(t, errors.ErrCodeNotFound, errors.CodeOf(err))

	_, err = f.svc.AssignHandlers(ctx, ref, 1)
	require.NoError(t, err)

	a, err := f.svc.GetAssignment(ctx, ref, 1)
	require.NoError(t, err)
	assert.Equal(t, "rectify", a.StepID)

	_, err = f.svc.GetAssignment(ctx, ref, -1)
	assert.Equal(t, errors.ErrCodeInvalidInput, errors.CodeOf(err))

	trail, err := f.svc.AuditTrail(ctx, ref)
	require.NoError(t, err)
	require.Len(t, trail, 1)
	assert.Equal(t, OperationAssign, trail[0].Operation)
}
