package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-ehs-handlers/internal/database"
	"github.com/pesio-ai/be-ehs-handlers/internal/errors"
)

// ResolutionAuditRepository appends and reads immutable resolution audit entries.
type ResolutionAuditRepository struct {
	db *database.DB
}

// NewResolutionAuditRepository creates a new ResolutionAuditRepository.
func NewResolutionAuditRepository(db *database.DB) *ResolutionAuditRepository {
	return &ResolutionAuditRepository{db: db}
}

// Append inserts one audit entry. Entries are never updated or deleted.
func (r *ResolutionAuditRepository) Append(ctx context.Context, entry *ResolutionAuditEntry) error {
	var metadataJSON []byte
	if entry.Metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(entry.Metadata)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal audit metadata")
		}
	}

	query := `
		INSERT INTO ehs_resolution_audit_log
		    (id, entity_id, record_type, record_id,
		     step_index, step_id, operation, request_id,
		     success, matched_by, user_ids,
		     error_code, error_message, metadata)
		VALUES ($1, $2, $3, $4,
		        $5, $6, $7, $8,
		        $9, $10, $11,
		        $12, $13, $14)
		RETURNING performed_at
	`

	err := r.db.QueryRow(ctx, query,
		entry.ID,
		entry.EntityID,
		entry.RecordType,
		entry.RecordID,
		entry.StepIndex,
		entry.StepID,
		entry.Operation,
		entry.RequestID,
		entry.Success,
		entry.MatchedBy,
		entry.UserIDs,
		entry.ErrorCode,
		entry.ErrorMessage,
		metadataJSON,
	).Scan(&entry.PerformedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to append resolution audit entry")
	}
	return nil
}

// ListByRecord returns a record's audit trail ordered oldest-first.
func (r *ResolutionAuditRepository) ListByRecord(ctx context.Context, entityID, recordType, recordID string) ([]*ResolutionAuditEntry, error) {
	query := `
		SELECT id, entity_id, record_type, record_id,
		       step_index, step_id, operation, request_id,
		       success, matched_by, user_ids,
		       error_code, error_message, metadata, performed_at
		FROM ehs_resolution_audit_log
		WHERE entity_id = $1 AND record_type = $2 AND record_id = $3
		ORDER BY performed_at ASC
	`

	rows, err := r.db.Query(ctx, query, entityID, recordType, recordID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get resolution audit log")
	}
	defer rows.Close()

	return r.scanRows(rows)
}

// ── scan helpers ──────────────────────────────────────────────────────────────

func (r *ResolutionAuditRepository) scanRows(rows pgx.Rows) ([]*ResolutionAuditEntry, error) {
	var entries []*ResolutionAuditEntry
	for rows.Next() {
		entry, err := r.scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to iterate resolution audit log")
	}
	return entries, nil
}

func (r *ResolutionAuditRepository) scanEntry(sc rowScanner) (*ResolutionAuditEntry, error) {
	entry := &ResolutionAuditEntry{}
	var metadataJSON []byte

	err := sc.Scan(
		&entry.ID,
		&entry.EntityID,
		&entry.RecordType,
		&entry.RecordID,
		&entry.StepIndex,
		&entry.StepID,
		&entry.Operation,
		&entry.RequestID,
		&entry.Success,
		&entry.MatchedBy,
		&entry.UserIDs,
		&entry.ErrorCode,
		&entry.ErrorMessage,
		&metadataJSON,
		&entry.PerformedAt,
	)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan resolution audit entry")
	}

	if metadataJSON != nil {
		if err := json.Unmarshal(metadataJSON, &entry.Metadata); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to unmarshal audit metadata")
		}
	}

	return entry, nil
}
