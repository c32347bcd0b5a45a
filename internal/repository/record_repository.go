package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-ehs-handlers/internal/database"
	"github.com/pesio-ai/be-ehs-handlers/internal/errors"
	"github.com/pesio-ai/be-ehs-handlers/internal/form"
	"github.com/pesio-ai/be-ehs-handlers/internal/strategy"
)

// RecordRepository reads the business records handlers are resolved for.
type RecordRepository struct {
	db *database.DB
}

// NewRecordRepository creates a new RecordRepository.
func NewRecordRepository(db *database.DB) *RecordRepository {
	return &RecordRepository{db: db}
}

// GetHazard retrieves a hazard report.
func (r *RecordRepository) GetHazard(ctx context.Context, entityID, id string) (*HazardRecord, error) {
	query := `
		SELECT id, COALESCE(reporter_id, ''), COALESCE(responsible_id, ''),
		       COALESCE(assigned_department_id, ''), COALESCE(location, ''),
		       COALESCE(hazard_type, ''), COALESCE(risk_level, ''),
		       workflow_key, current_step
		FROM ehs_hazards
		WHERE id = $1 AND entity_id = $2
	`

	h := &HazardRecord{Record: strategy.Record{Kind: strategy.RecordHazard}}
	rec := &h.Record
	err := r.db.QueryRow(ctx, query, id, entityID).Scan(
		&rec.ID,
		&rec.ReporterID,
		&rec.ResponsibleID,
		&rec.AssignedDepartmentID,
		&rec.Location,
		&rec.Type,
		&rec.RiskLevel,
		&h.WorkflowKey,
		&h.CurrentStep,
	)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("hazard", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get hazard")
	}
	return h, nil
}

// GetPermit retrieves a work permit together with its template's parsed
// fields and the submitted form data.
func (r *RecordRepository) GetPermit(ctx context.Context, entityID, id string) (*PermitRecord, error) {
	query := `
		SELECT p.id, p.workflow_key, p.template_id,
		       COALESCE(p.applicant_department, ''), p.current_step,
		       t.parsed_fields, p.form_data
		FROM ehs_work_permits p
		JOIN ehs_permit_templates t ON t.id = p.template_id
		WHERE p.id = $1 AND p.entity_id = $2
	`

	p := &PermitRecord{Record: strategy.Record{Kind: strategy.RecordPermit}}
	var parsedJSON, dataJSON []byte
	err := r.db.QueryRow(ctx, query, id, entityID).Scan(
		&p.Record.ID,
		&p.WorkflowKey,
		&p.TemplateID,
		&p.ApplicantDepartment,
		&p.CurrentStep,
		&parsedJSON,
		&dataJSON,
	)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("work_permit", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get work permit")
	}

	fields, err := decodeFormFields(parsedJSON, dataJSON)
	if err != nil {
		return nil, err
	}
	p.Record.Fields = fields
	return p, nil
}

// decodeFormFields tolerates empty or null columns; a template that was never
// parsed simply has no fields.
func decodeFormFields(parsedJSON, dataJSON []byte) (form.Fields, error) {
	var f form.Fields
	if len(parsedJSON) > 0 {
		if err := json.Unmarshal(parsedJSON, &f.Parsed); err != nil {
			return form.Fields{}, errors.Wrap(err, errors.ErrCodeInternal, "failed to unmarshal parsed fields")
		}
	}
	if len(dataJSON) > 0 {
		if err := json.Unmarshal(dataJSON, &f.Data); err != nil {
			return form.Fields{}, errors.Wrap(err, errors.ErrCodeInternal, "failed to unmarshal form data")
		}
	}
	return f, nil
}
