package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pesio-ai/be-ehs-handlers/internal/client"
	"github.com/pesio-ai/be-ehs-handlers/internal/errors"
	"github.com/pesio-ai/be-ehs-handlers/internal/form"
	"github.com/pesio-ai/be-ehs-handlers/internal/logger"
	"github.com/pesio-ai/be-ehs-handlers/internal/metrics"
	"github.com/pesio-ai/be-ehs-handlers/internal/orggraph"
	"github.com/pesio-ai/be-ehs-handlers/internal/repository"
	"github.com/pesio-ai/be-ehs-handlers/internal/strategy"
	"github.com/pesio-ai/be-ehs-handlers/internal/workflow"
)

// OrgSnapshotter loads the organisation an entity's records resolve against.
type OrgSnapshotter interface {
	Snapshot(ctx context.Context, entityID string) (*orggraph.Graph, error)
}

// DefinitionStore holds versioned workflow step configurations.
type DefinitionStore interface {
	Create(ctx context.Context, def *repository.WorkflowDefinition) error
	GetActive(ctx context.Context, entityID, recordType, workflowKey string) (*repository.WorkflowDefinition, error)
	List(ctx context.Context, entityID, recordType string, activeOnly bool) ([]*repository.WorkflowDefinition, error)
}

// RecordStore reads hazard reports and work permits.
type RecordStore interface {
	GetHazard(ctx context.Context, entityID, id string) (*repository.HazardRecord, error)
	GetPermit(ctx context.Context, entityID, id string) (*repository.PermitRecord, error)
}

// AssignmentStore persists the candidates of a step.
type AssignmentStore interface {
	Replace(ctx context.Context, a *repository.StepAssignment) error
	Get(ctx context.Context, entityID, recordType, recordID string, stepIndex int) (*repository.StepAssignment, error)
}

// AuditStore appends and reads resolution audit entries.
type AuditStore interface {
	Append(ctx context.Context, entry *repository.ResolutionAuditEntry) error
	ListByRecord(ctx context.Context, entityID, recordType, recordID string) ([]*repository.ResolutionAuditEntry, error)
}

// Notifier publishes record events. Implementations must not block on
// delivery failures.
type Notifier interface {
	PublishRecordEvent(ctx context.Context, eventType, recordType, recordID, entityID string, recipients []string, payload map[string]any)
}

// Audit operations.
const (
	OperationPreview   = "preview"
	OperationAssign    = "assign"
	OperationApprovers = "approvers"
	OperationWorkflow  = "workflow"
)

// Config tunes HandlerService.
type Config struct {
	// FallbackApproverIDs receive manual_assignment_required events.
	FallbackApproverIDs []string
	// ApplicantDeptField names the permit form field holding the applicant
	// department when the permit row has none.
	ApplicantDeptField string
}

// RecordRef identifies a record and the workflow its steps come from. An
// empty WorkflowKey means the record's own workflow.
type RecordRef struct {
	EntityID    string `json:"entity_id"`
	RecordType  string `json:"record_type"`
	RecordID    string `json:"record_id"`
	WorkflowKey string `json:"workflow,omitempty"`
}

// Validate checks the reference is complete.
func (r RecordRef) Validate() error {
	if r.EntityID == "" {
		return errors.InvalidInput("entity_id", "entity_id is required")
	}
	if r.RecordID == "" {
		return errors.InvalidInput("record_id", "record_id is required")
	}
	if r.RecordType != strategy.RecordHazard && r.RecordType != strategy.RecordPermit {
		return errors.InvalidInput("record_type", "record_type must be hazard or permit")
	}
	return nil
}

// HandlerService resolves, persists and announces the handlers of hazard and
// permit workflow steps.
type HandlerService struct {
	orgs        OrgSnapshotter
	definitions DefinitionStore
	records     RecordStore
	assignments AssignmentStore
	audit       AuditStore
	notifier    Notifier
	cfg         Config
	log         *logger.Logger
}

// NewHandlerService creates a new HandlerService.
func NewHandlerService(
	orgs OrgSnapshotter,
	definitions DefinitionStore,
	records RecordStore,
	assignments AssignmentStore,
	audit AuditStore,
	notifier Notifier,
	cfg Config,
	log *logger.Logger,
) *HandlerService {
	if cfg.ApplicantDeptField == "" {
		cfg.ApplicantDeptField = "申请部门"
	}
	return &HandlerService{
		orgs:        orgs,
		definitions: definitions,
		records:     records,
		assignments: assignments,
		audit:       audit,
		notifier:    notifier,
		cfg:         cfg,
		log:         log,
	}
}

// target is everything one resolution needs.
type target struct {
	ref         RecordRef
	record      strategy.Record
	applicant   string
	currentStep int
	definition  *repository.WorkflowDefinition
	graph       *orggraph.Graph
}

// ── Preview ───────────────────────────────────────────────────────────────────

// PreviewStep resolves one step without storing candidates. A negative
// stepIndex selects the record's current step.
func (s *HandlerService) PreviewStep(ctx context.Context, ref RecordRef, stepIndex int) (*workflow.HandlerResult, error) {
	start := time.Now()
	t, err := s.load(ctx, ref)
	if err != nil {
		return nil, err
	}
	index, step, err := t.step(stepIndex)
	if err != nil {
		return nil, err
	}

	res := s.resolver(t).Handlers(t.record, step, t.graph)
	s.observe(OperationPreview, res, time.Since(start))
	s.appendAudit(ctx, s.auditEntry(ctx, t, index, step, OperationPreview, res))
	return &res, nil
}

// PreviewWorkflow resolves every step of the record's workflow.
func (s *HandlerService) PreviewWorkflow(ctx context.Context, ref RecordRef) (*workflow.WorkflowResult, error) {
	start := time.Now()
	t, err := s.load(ctx, ref)
	if err != nil {
		return nil, err
	}

	res := s.resolver(t).Workflow(t.record, t.definition.Steps, t.graph)
	for _, step := range res.Steps {
		for _, er := range step.Entries {
			if er.Active {
				metrics.ObserveStrategy(string(er.Kind), resultLabel(er.Error == "", er.Code))
			}
		}
	}
	result := metrics.ResultSuccess
	if !res.Success {
		result = metrics.ResultEmpty
	}
	metrics.ObserveResolution(OperationWorkflow, "", result, time.Since(start))

	s.log.Debug().
		Str("record_id", ref.RecordID).
		Int("steps", len(res.Steps)).
		Bool("success", res.Success).
		Msg("Workflow previewed")
	return &res, nil
}

// PreviewApprovers returns the approvers of a permit step for the permit's
// applicant department. An unresolvable step yields an empty list.
func (s *HandlerService) PreviewApprovers(ctx context.Context, entityID, permitID, workflowKey string, stepIndex int) ([]orggraph.User, error) {
	start := time.Now()
	ref := RecordRef{EntityID: entityID, RecordType: strategy.RecordPermit, RecordID: permitID, WorkflowKey: workflowKey}
	t, err := s.load(ctx, ref)
	if err != nil {
		return nil, err
	}
	index, step, err := t.step(stepIndex)
	if err != nil {
		return nil, err
	}

	fields := t.record.Fields
	users := s.resolver(t).Approvers(t.applicant, step, fields.Data, fields.Parsed, t.graph)

	res := workflow.HandlerResult{Success: len(users) > 0, Users: users, Mode: workflow.ParseMode(string(step.Mode))}
	if !res.Success {
		res.Code, res.Error = errors.ErrCodeEmptyResult, "no approvers resolved"
	}
	metrics.ObserveResolution(OperationApprovers, string(res.Mode), resultLabel(res.Success, res.Code), time.Since(start))
	s.appendAudit(ctx, s.auditEntry(ctx, t, index, step, OperationApprovers, res))
	return users, nil
}

// ── Assignment ────────────────────────────────────────────────────────────────

// AssignHandlers resolves a step, stores its candidates and notifies them.
// A step that resolves nobody is stored as needing manual assignment and the
// fallback approvers are notified instead.
func (s *HandlerService) AssignHandlers(ctx context.Context, ref RecordRef, stepIndex int) (*workflow.HandlerResult, error) {
	start := time.Now()
	t, err := s.load(ctx, ref)
	if err != nil {
		return nil, err
	}
	index, step, err := t.step(stepIndex)
	if err != nil {
		return nil, err
	}

	res := s.resolver(t).Handlers(t.record, step, t.graph)

	assignment := &repository.StepAssignment{
		EntityID:              ref.EntityID,
		RecordType:            ref.RecordType,
		RecordID:              ref.RecordID,
		StepIndex:             index,
		StepID:                step.ID,
		ApprovalMode:          string(res.Mode),
		NeedsManualAssignment: !res.Success,
	}
	if res.Success {
		assignment.Candidates = candidates(res)
	} else {
		reason := res.Error
		assignment.Reason = &reason
	}

	if err := s.assignments.Replace(ctx, assignment); err != nil {
		metrics.ObserveResolution(OperationAssign, string(res.Mode), metrics.ResultError, time.Since(start))
		return nil, err
	}

	s.observe(OperationAssign, res, time.Since(start))
	s.appendAudit(ctx, s.auditEntry(ctx, t, index, step, OperationAssign, res))
	s.notify(ctx, t, index, step, res)

	if res.Success {
		s.log.Info().
			Str("record_id", ref.RecordID).
			Str("step_id", step.ID).
			Str("matched_by", res.MatchedBy).
			Str("handlers", joinIDs(res.Users)).
			Msg("Handlers assigned")
	} else {
		metrics.ManualAssignment(ref.RecordType)
		s.log.Warn().
			Str("record_id", ref.RecordID).
			Str("step_id", step.ID).
			Str("code", string(res.Code)).
			Str("reason", res.Error).
			Msg("Step needs manual assignment")
	}
	return &res, nil
}

// candidates stores one row per (entry, user) so each entry's required set
// survives in AND mode.
func candidates(res workflow.HandlerResult) []repository.CandidateHandler {
	var out []repository.CandidateHandler
	seen := make(map[[2]string]struct{})
	for _, er := range res.Entries {
		for _, u := range er.Users {
			key := [2]string{er.EntryID, u.ID}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, repository.CandidateHandler{EntryID: er.EntryID, UserID: u.ID, UserName: u.Name})
		}
	}
	return out
}

func (s *HandlerService) notify(ctx context.Context, t *target, index int, step workflow.Step, res workflow.HandlerResult) {
	if s.notifier == nil {
		return
	}
	payload := map[string]any{
		"step_index":    index,
		"step_id":       step.ID,
		"step_name":     step.Name,
		"approval_mode": string(res.Mode),
	}

	if !res.Success {
		payload["reason"] = res.Error
		s.notifier.PublishRecordEvent(ctx, client.EventManualAssignmentRequired,
			t.ref.RecordType, t.ref.RecordID, t.ref.EntityID, s.cfg.FallbackApproverIDs, payload)
		return
	}

	payload["matched_by"] = res.MatchedBy
	s.notifier.PublishRecordEvent(ctx, client.EventHandlerAssigned,
		t.ref.RecordType, t.ref.RecordID, t.ref.EntityID, userIDs(res.Users), payload)
	if len(res.CC) > 0 {
		cc := make(map[string]any, len(payload)+1)
		for k, v := range payload {
			cc[k] = v
		}
		cc["cc"] = true
		s.notifier.PublishRecordEvent(ctx, client.EventHandlerAssigned,
			t.ref.RecordType, t.ref.RecordID, t.ref.EntityID, userIDs(res.CC), cc)
	}
}

// ── Loading ───────────────────────────────────────────────────────────────────

func (s *HandlerService) load(ctx context.Context, ref RecordRef) (*target, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	t := &target{ref: ref}

	var workflowKey string
	switch ref.RecordType {
	case strategy.RecordHazard:
		h, err := s.records.GetHazard(ctx, ref.EntityID, ref.RecordID)
		if err != nil {
			return nil, err
		}
		t.record, t.currentStep, workflowKey = h.Record, h.CurrentStep, h.WorkflowKey
	case strategy.RecordPermit:
		p, err := s.records.GetPermit(ctx, ref.EntityID, ref.RecordID)
		if err != nil {
			return nil, err
		}
		t.record, t.currentStep, workflowKey = p.Record, p.CurrentStep, p.WorkflowKey
		t.applicant = s.applicantDepartment(p)
	}
	if ref.WorkflowKey != "" {
		workflowKey = ref.WorkflowKey
	}
	t.ref.WorkflowKey = workflowKey

	def, err := s.definitions.GetActive(ctx, ref.EntityID, ref.RecordType, workflowKey)
	if err != nil {
		return nil, err
	}
	t.definition = def

	graph, err := s.orgs.Snapshot(ctx, ref.EntityID)
	if err != nil {
		return nil, err
	}
	t.graph = graph
	return t, nil
}

func (s *HandlerService) applicantDepartment(p *repository.PermitRecord) string {
	if p.ApplicantDepartment != "" {
		return p.ApplicantDepartment
	}
	if v, ok := p.Record.Fields.Lookup(s.cfg.ApplicantDeptField, form.TypeDepartment); ok {
		return v
	}
	v, _ := p.Record.Fields.Lookup(s.cfg.ApplicantDeptField, "")
	return v
}

func (t *target) step(index int) (int, workflow.Step, error) {
	if index < 0 {
		index = t.currentStep
	}
	step, ok := t.definition.Step(index)
	if !ok {
		return 0, workflow.Step{}, errors.InvalidInput("step", "step index out of range")
	}
	return index, step, nil
}

func (s *HandlerService) resolver(t *target) workflow.Resolver {
	return workflow.Resolver{
		Log: s.log.With().
			Str("record_type", t.ref.RecordType).
			Str("workflow", t.ref.WorkflowKey).
			Logger(),
		ApplicantDepartment: t.applicant,
	}
}

// ── Audit & metrics ───────────────────────────────────────────────────────────

func (s *HandlerService) auditEntry(ctx context.Context, t *target, index int, step workflow.Step, op string, res workflow.HandlerResult) *repository.ResolutionAuditEntry {
	entry := &repository.ResolutionAuditEntry{
		ID:         uuid.New().String(),
		EntityID:   t.ref.EntityID,
		RecordType: t.ref.RecordType,
		RecordID:   t.ref.RecordID,
		StepIndex:  index,
		StepID:     step.ID,
		Operation:  op,
		Success:    res.Success,
		UserIDs:    userIDs(res.Users),
		Metadata: map[string]any{
			"workflow":      t.ref.WorkflowKey,
			"approval_mode": string(res.Mode),
		},
	}
	if id := logger.RequestIDFromContext(ctx); id != "" {
		entry.RequestID = &id
	}
	if res.MatchedBy != "" {
		matched := res.MatchedBy
		entry.MatchedBy = &matched
	}
	if !res.Success {
		code, msg := string(res.Code), res.Error
		entry.ErrorCode, entry.ErrorMessage = &code, &msg
	}
	return entry
}

// appendAudit writes an audit entry. Failures are logged, never returned.
func (s *HandlerService) appendAudit(ctx context.Context, entry *repository.ResolutionAuditEntry) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Append(ctx, entry); err != nil {
		s.log.Warn().Err(err).
			Str("record_id", entry.RecordID).
			Str("operation", entry.Operation).
			Msg("Failed to write resolution audit entry")
	}
}

func (s *HandlerService) observe(op string, res workflow.HandlerResult, took time.Duration) {
	for _, er := range res.Entries {
		if er.Active {
			metrics.ObserveStrategy(string(er.Kind), resultLabel(er.Error == "", er.Code))
		}
	}
	metrics.ObserveResolution(op, string(res.Mode), resultLabel(res.Success, res.Code), took)
}

func resultLabel(ok bool, code errors.ErrCode) string {
	switch {
	case ok:
		return metrics.ResultSuccess
	case code == errors.ErrCodeEmptyResult || code == errors.ErrCodeLookup:
		return metrics.ResultEmpty
	default:
		return metrics.ResultError
	}
}

func userIDs(users []orggraph.User) []string {
	ids := make([]string, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	return ids
}

func joinIDs(users []orggraph.User) string {
	return strings.Join(userIDs(users), ",")
}
