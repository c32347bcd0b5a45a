package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-ehs-handlers/internal/database"
	"github.com/pesio-ai/be-ehs-handlers/internal/errors"
)

// AssignmentRepository persists the resolved candidates of a record's step.
// A step's assignment row and its candidate rows are always replaced together
// in a single transaction. Assignments are keyed by (entity_id, record_type,
// record_id, step_index); candidates additionally by (entry_id, user_id).
type AssignmentRepository struct {
	db *database.DB
}

// NewAssignmentRepository creates a new AssignmentRepository.
func NewAssignmentRepository(db *database.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

// Replace upserts the step assignment and swaps its candidate handlers.
func (r *AssignmentRepository) Replace(ctx context.Context, a *StepAssignment) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		upsert := `
			INSERT INTO ehs_step_assignments
			    (entity_id, record_type, record_id, step_index, step_id,
			     approval_mode, needs_manual_assignment, reason)
			VALUES ($1, $2, $3, $4, $5,
			        $6, $7, $8)
			ON CONFLICT (entity_id, record_type, record_id, step_index) DO UPDATE
			SET step_id                 = EXCLUDED.step_id,
			    approval_mode           = EXCLUDED.approval_mode,
			    needs_manual_assignment = EXCLUDED.needs_manual_assignment,
			    reason                  = EXCLUDED.reason,
			    updated_at              = NOW()
			RETURNING updated_at
		`

		err := tx.QueryRow(ctx, upsert,
			a.EntityID,
			a.RecordType,
			a.RecordID,
			a.StepIndex,
			a.StepID,
			a.ApprovalMode,
			a.NeedsManualAssignment,
			a.Reason,
		).Scan(&a.UpdatedAt)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to upsert step assignment")
		}

		_, err = tx.Exec(ctx, `
			DELETE FROM ehs_candidate_handlers
			WHERE entity_id = $1 AND record_type = $2 AND record_id = $3 AND step_index = $4
		`, a.EntityID, a.RecordType, a.RecordID, a.StepIndex)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to clear candidate handlers")
		}

		insert := `
			INSERT INTO ehs_candidate_handlers
			    (entity_id, record_type, record_id, step_index, entry_id, user_id, user_name)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id, created_at
		`
		for i := range a.Candidates {
			c := &a.Candidates[i]
			c.EntityID, c.RecordType, c.RecordID, c.StepIndex = a.EntityID, a.RecordType, a.RecordID, a.StepIndex
			err := tx.QueryRow(ctx, insert,
				c.EntityID,
				c.RecordType,
				c.RecordID,
				c.StepIndex,
				c.EntryID,
				c.UserID,
				c.UserName,
			).Scan(&c.ID, &c.CreatedAt)
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeInternal, "failed to insert candidate handler")
			}
		}
		a.Groups = GroupCandidates(a.Candidates)
		return nil
	})
}

// Get returns a step's assignment with its candidates.
func (r *AssignmentRepository) Get(ctx context.Context, entityID, recordType, recordID string, stepIndex int) (*StepAssignment, error) {
	query := `
		SELECT entity_id, record_type, record_id, step_index, step_id,
		       approval_mode, needs_manual_assignment, reason, updated_at
		FROM ehs_step_assignments
		WHERE entity_id = $1 AND record_type = $2 AND record_id = $3 AND step_index = $4
	`

	a := &StepAssignment{}
	err := r.db.QueryRow(ctx, query, entityID, recordType, recordID, stepIndex).Scan(
		&a.EntityID,
		&a.RecordType,
		&a.RecordID,
		&a.StepIndex,
		&a.StepID,
		&a.ApprovalMode,
		&a.NeedsManualAssignment,
		&a.Reason,
		&a.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("step_assignment", recordID)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get step assignment")
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, entity_id, record_type, record_id, step_index,
		       entry_id, user_id, user_name, created_at
		FROM ehs_candidate_handlers
		WHERE entity_id = $1 AND record_type = $2 AND record_id = $3 AND step_index = $4
		ORDER BY created_at ASC, id ASC
	`, entityID, recordType, recordID, stepIndex)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get candidate handlers")
	}
	defer rows.Close()

	if a.Candidates, err = scanCandidates(rows); err != nil {
		return nil, err
	}
	a.Groups = GroupCandidates(a.Candidates)
	return a, nil
}

func scanCandidates(rows pgx.Rows) ([]CandidateHandler, error) {
	var out []CandidateHandler
	for rows.Next() {
		var c CandidateHandler
		if err := rows.Scan(&c.ID, &c.EntityID, &c.RecordType, &c.RecordID, &c.StepIndex,
			&c.EntryID, &c.UserID, &c.UserName, &c.CreatedAt); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan candidate handler")
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to iterate candidate handlers")
	}
	return out, nil
}
