package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/keyxmakerx/atlas/internal/entity"
)

// AuditRepository defines the data access contract for audit log operations.
// All SQL lives in the concrete implementation -- no SQL leaks out.
type AuditRepository interface {
	// Log inserts a new audit entry.
	Log(ctx context.Context, entry *Entry) error

	// ListByEntity returns the most recent entries that concern ref: those
	// scoped to it, plus file-level entries of files currently attached to it.
	ListByEntity(ctx context.Context, ref entity.Ref, limit int) ([]Entry, error)
}

// auditRepository implements AuditRepository with MariaDB queries.
type auditRepository struct {
	db *sql.DB
}

// NewAuditRepository creates a new repository backed by the given DB pool.
func NewAuditRepository(db *sql.DB) AuditRepository {
	return &auditRepository{db: db}
}

// Log inserts a new audit entry. The details map is serialized to JSON
// before storage. Nil details and an empty scope are stored as SQL NULL.
func (r *auditRepository) Log(ctx context.Context, entry *Entry) error {
	query := `INSERT INTO audit_log (action, entity_type, entity_id, media_id, details, created_at)
	          VALUES (?, ?, ?, ?, ?, ?)`

	var detailsJSON []byte
	if entry.Details != nil {
		var err error
		detailsJSON, err = json.Marshal(entry.Details)
		if err != nil {
			return fmt.Errorf("marshaling audit details: %w", err)
		}
	}

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	result, err := r.db.ExecContext(ctx, query,
		entry.Action, nullable(entry.EntityType), nullable(entry.EntityID),
		nullable(entry.MediaID), detailsJSON, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting audit entry id: %w", err)
	}
	entry.ID = id

	return nil
}

// ListByEntity returns entries for ref, most recent first.
func (r *auditRepository) ListByEntity(ctx context.Context, ref entity.Ref, limit int) ([]Entry, error) {
	query := `SELECT a.id, a.action, a.entity_type, a.entity_id, a.media_id, a.details, a.created_at
	          FROM audit_log a
	          WHERE (a.entity_type = ? AND a.entity_id = ?)
	             OR (a.entity_type IS NULL AND a.media_id IN (
	                   SELECT m.media_file_id FROM media_attachments m
	                   WHERE m.entity_type = ? AND m.entity_id = ?))
	          ORDER BY a.created_at DESC, a.id DESC
	          LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query,
		string(ref.Type), ref.ID, string(ref.Type), ref.ID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing entity audit entries: %w", err)
	}
	defer rows.Close()

	return scanAuditRows(rows)
}

// scanAuditRows scans rows from an audit_log query into Entry slices.
// Expects columns: id, action, entity_type, entity_id, media_id, details,
// created_at.
func scanAuditRows(rows *sql.Rows) ([]Entry, error) {
	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var entityType, entityID, mediaID, detailsJSON sql.NullString
		if err := rows.Scan(
			&e.ID, &e.Action, &entityType, &entityID, &mediaID,
			&detailsJSON, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning audit entry: %w", err)
		}
		e.EntityType = entityType.String
		e.EntityID = entityID.String
		e.MediaID = mediaID.String

		// Deserialize JSON details if present.
		if detailsJSON.Valid && detailsJSON.String != "" {
			if err := json.Unmarshal([]byte(detailsJSON.String), &e.Details); err != nil {
				// Non-fatal: keep the entry in the feed.
				e.Details = map[string]any{"_parse_error": "invalid JSON"}
			}
		}

		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit rows: %w", err)
	}

	return entries, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
