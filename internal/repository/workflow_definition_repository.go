package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-ehs-handlers/internal/database"
	"github.com/pesio-ai/be-ehs-handlers/internal/errors"
	"github.com/pesio-ai/be-ehs-handlers/internal/workflow"
)

// WorkflowDefinitionRepository handles the authored step configurations in
// ehs_workflow_definitions.
type WorkflowDefinitionRepository struct {
	db *database.DB
}

// NewWorkflowDefinitionRepository creates a new WorkflowDefinitionRepository.
func NewWorkflowDefinitionRepository(db *database.DB) *WorkflowDefinitionRepository {
	return &WorkflowDefinitionRepository{db: db}
}

// Create inserts a new definition version.
func (r *WorkflowDefinitionRepository) Create(ctx context.Context, def *WorkflowDefinition) error {
	stepsJSON, err := json.Marshal(def.Steps)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal workflow steps")
	}

	query := `
		INSERT INTO ehs_workflow_definitions
		    (entity_id, record_type, workflow_key, version, steps, is_active)
		VALUES ($1, $2, $3,
		        COALESCE((SELECT MAX(version) FROM ehs_workflow_definitions
		                  WHERE entity_id = $1 AND record_type = $2 AND workflow_key = $3), 0) + 1,
		        $4, $5)
		RETURNING id, version, created_at, updated_at
	`

	err = r.db.QueryRow(ctx, query,
		def.EntityID,
		def.RecordType,
		def.WorkflowKey,
		stepsJSON,
		def.IsActive,
	).Scan(&def.ID, &def.Version, &def.CreatedAt, &def.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create workflow definition")
	}
	return nil
}

// GetActive returns the newest active definition for a workflow key.
func (r *WorkflowDefinitionRepository) GetActive(ctx context.Context, entityID, recordType, workflowKey string) (*WorkflowDefinition, error) {
	query := `
		SELECT id, entity_id, record_type, workflow_key, version,
		       steps, is_active, created_at, updated_at
		FROM ehs_workflow_definitions
		WHERE entity_id = $1 AND record_type = $2 AND workflow_key = $3
		  AND is_active = TRUE
		ORDER BY version DESC
		LIMIT 1
	`

	def, err := r.scanDefinition(r.db.QueryRow(ctx, query, entityID, recordType, workflowKey))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("workflow_definition", workflowKey)
	}
	return def, err
}

// List returns every definition of a record type, newest version first.
func (r *WorkflowDefinitionRepository) List(ctx context.Context, entityID, recordType string, activeOnly bool) ([]*WorkflowDefinition, error) {
	query := `
		SELECT id, entity_id, record_type, workflow_key, version,
		       steps, is_active, created_at, updated_at
		FROM ehs_workflow_definitions
		WHERE entity_id = $1 AND record_type = $2
	`
	if activeOnly {
		query += " AND is_active = TRUE"
	}
	query += " ORDER BY workflow_key ASC, version DESC"

	rows, err := r.db.Query(ctx, query, entityID, recordType)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list workflow definitions")
	}
	defer rows.Close()

	return r.scanDefinitions(rows)
}

func (r *WorkflowDefinitionRepository) scanDefinitions(rows pgx.Rows) ([]*WorkflowDefinition, error) {
	var defs []*WorkflowDefinition
	for rows.Next() {
		def, err := r.scanDefinition(rows)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to iterate workflow definitions")
	}
	return defs, nil
}

// ── scan helpers ──────────────────────────────────────────────────────────────

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *WorkflowDefinitionRepository) scanDefinition(sc rowScanner) (*WorkflowDefinition, error) {
	def := &WorkflowDefinition{}
	var stepsJSON []byte

	err := sc.Scan(
		&def.ID,
		&def.EntityID,
		&def.RecordType,
		&def.WorkflowKey,
		&def.Version,
		&stepsJSON,
		&def.IsActive,
		&def.CreatedAt,
		&def.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan workflow definition")
	}

	steps, err := workflow.DecodeSteps(stepsJSON)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to decode workflow steps")
	}
	def.Steps = steps
	return def, nil
}
