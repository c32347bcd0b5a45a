package repository

import (
	"time"

	"github.com/pesio-ai/be-ehs-handlers/internal/strategy"
	"github.com/pesio-ai/be-ehs-handlers/internal/workflow"
)

// ── Domain types for handler resolution ─────────────────────────────────────

// WorkflowDefinition is the authored step configuration for one record type.
type WorkflowDefinition struct {
	ID          string          `json:"id"`
	EntityID    string          `json:"entity_id"`
	RecordType  string          `json:"record_type"` // hazard | permit
	WorkflowKey string          `json:"workflow_key"`
	Version     int             `json:"version"`
	Steps       []workflow.Step `json:"steps"`
	IsActive    bool            `json:"is_active"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Step returns the step at index, or false when out of range.
func (d *WorkflowDefinition) Step(index int) (workflow.Step, bool) {
	if d == nil || index < 0 || index >= len(d.Steps) {
		return workflow.Step{}, false
	}
	return d.Steps[index], true
}

// PermitRecord is a work-permit instance with its template metadata.
type PermitRecord struct {
	Record              strategy.Record
	WorkflowKey         string
	TemplateID          string
	ApplicantDepartment string
	CurrentStep         int
}

// HazardRecord is a hazard report.
type HazardRecord struct {
	Record      strategy.Record
	WorkflowKey string
	CurrentStep int
}

// CandidateHandler is one user resolved by one strategy entry of a record's
// step. A user picked by several entries has one row per entry.
type CandidateHandler struct {
	ID         string    `json:"id"`
	EntityID   string    `json:"entity_id"`
	RecordType string    `json:"record_type"`
	RecordID   string    `json:"record_id"`
	StepIndex  int       `json:"step_index"`
	EntryID    string    `json:"entry_id"`
	UserID     string    `json:"user_id"`
	UserName   string    `json:"user_name"`
	CreatedAt  time.Time `json:"created_at"`
}

// CandidateGroup is the candidates one strategy entry resolved. In AND mode
// every group needs one of its candidates to act; in the other modes any
// candidate of any group may act.
type CandidateGroup struct {
	EntryID    string             `json:"entry_id"`
	Candidates []CandidateHandler `json:"candidates"`
}

// GroupCandidates groups candidates by entry, keeping first-seen order.
func GroupCandidates(candidates []CandidateHandler) []CandidateGroup {
	var groups []CandidateGroup
	index := make(map[string]int)
	for _, c := range candidates {
		i, ok := index[c.EntryID]
		if !ok {
			i = len(groups)
			index[c.EntryID] = i
			groups = append(groups, CandidateGroup{EntryID: c.EntryID})
		}
		groups[i].Candidates = append(groups[i].Candidates, c)
	}
	return groups
}

// StepAssignment is the persisted outcome of resolving one step.
type StepAssignment struct {
	EntityID              string             `json:"entity_id"`
	RecordType            string             `json:"record_type"`
	RecordID              string             `json:"record_id"`
	StepIndex             int                `json:"step_index"`
	StepID                string             `json:"step_id"`
	ApprovalMode          string             `json:"approval_mode"` // OR | AND | CONDITIONAL
	NeedsManualAssignment bool               `json:"needs_manual_assignment"`
	Reason                *string            `json:"reason,omitempty"`
	Candidates            []CandidateHandler `json:"candidates,omitempty"`
	Groups                []CandidateGroup   `json:"groups,omitempty"`
	UpdatedAt             time.Time          `json:"updated_at"`
}

// ResolutionAuditEntry is one immutable row of the resolution audit trail.
type ResolutionAuditEntry struct {
	ID           string         `json:"id"`
	EntityID     string         `json:"entity_id"`
	RecordType   string         `json:"record_type"`
	RecordID     string         `json:"record_id"`
	StepIndex    int            `json:"step_index"`
	StepID       string         `json:"step_id"`
	Operation    string         `json:"operation"` // preview | assign | approvers
	RequestID    *string        `json:"request_id,omitempty"`
	Success      bool           `json:"success"`
	MatchedBy    *string        `json:"matched_by,omitempty"`
	UserIDs      []string       `json:"user_ids"`
	ErrorCode    *string        `json:"error_code,omitempty"`
	ErrorMessage *string        `json:"error_message,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	PerformedAt  time.Time      `json:"performed_at"`
}
