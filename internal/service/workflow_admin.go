package service

import (
	"context"
	"fmt"

	"github.com/pesio-ai/be-ehs-handlers/internal/errors"
	"github.com/pesio-ai/be-ehs-handlers/internal/repository"
	"github.com/pesio-ai/be-ehs-handlers/internal/strategy"
	"github.com/pesio-ai/be-ehs-handlers/internal/workflow"
)

// DefineWorkflowRequest stores a new version of a workflow's steps.
type DefineWorkflowRequest struct {
	EntityID    string          `json:"entity_id"`
	RecordType  string          `json:"record_type"`
	WorkflowKey string          `json:"workflow"`
	Steps       []workflow.Step `json:"steps"`
	Inactive    bool            `json:"inactive,omitempty"`
}

// DefineWorkflow validates and stores a new workflow version.
func (s *HandlerService) DefineWorkflow(ctx context.Context, req *DefineWorkflowRequest) (*repository.WorkflowDefinition, error) {
	if req.EntityID == "" {
		return nil, errors.InvalidInput("entity_id", "entity_id is required")
	}
	if req.RecordType != strategy.RecordHazard && req.RecordType != strategy.RecordPermit {
		return nil, errors.InvalidInput("record_type", "record_type must be hazard or permit")
	}
	if req.WorkflowKey == "" {
		return nil, errors.InvalidInput("workflow", "workflow is required")
	}
	if err := validateSteps(req.Steps); err != nil {
		return nil, err
	}

	def := &repository.WorkflowDefinition{
		EntityID:    req.EntityID,
		RecordType:  req.RecordType,
		WorkflowKey: req.WorkflowKey,
		Steps:       req.Steps,
		IsActive:    !req.Inactive,
	}
	if err := s.definitions.Create(ctx, def); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("entity_id", def.EntityID).
		Str("workflow", def.WorkflowKey).
		Int("version", def.Version).
		Int("steps", len(def.Steps)).
		Msg("Workflow definition created")
	return def, nil
}

func validateSteps(steps []workflow.Step) error {
	if len(steps) == 0 {
		return errors.InvalidInput("steps", "at least one step is required")
	}
	for i, step := range steps {
		if len(step.Entries) == 0 {
			return errors.InvalidInput("steps", fmt.Sprintf("step %d has no strategies", i))
		}
		for j, e := range append(append([]workflow.Entry(nil), step.Entries...), step.CC...) {
			if e.Strategy == nil {
				return errors.InvalidInput("steps", fmt.Sprintf("step %d entry %d has no strategy", i, j))
			}
		}
	}
	return nil
}

// ListWorkflows returns an entity's workflow definitions for a record type.
func (s *HandlerService) ListWorkflows(ctx context.Context, entityID, recordType string, activeOnly bool) ([]*repository.WorkflowDefinition, error) {
	if entityID == "" {
		return nil, errors.InvalidInput("entity_id", "entity_id is required")
	}
	defs, err := s.definitions.List(ctx, entityID, recordType, activeOnly)
	if err != nil {
		return nil, err
	}
	if defs == nil {
		defs = []*repository.WorkflowDefinition{}
	}
	return defs, nil
}

// GetAssignment returns the stored candidates of a record's step.
func (s *HandlerService) GetAssignment(ctx context.Context, ref RecordRef, stepIndex int) (*repository.StepAssignment, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	if stepIndex < 0 {
		return nil, errors.InvalidInput("step", "step is required")
	}
	return s.assignments.Get(ctx, ref.EntityID, ref.RecordType, ref.RecordID, stepIndex)
}

// AuditTrail returns a record's resolution history, oldest first.
func (s *HandlerService) AuditTrail(ctx context.Context, ref RecordRef) ([]*repository.ResolutionAuditEntry, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	entries, err := s.audit.ListByRecord(ctx, ref.EntityID, ref.RecordType, ref.RecordID)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []*repository.ResolutionAuditEntry{}
	}
	return entries, nil
}
