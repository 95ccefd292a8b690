package media

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/keyxmakerx/atlas/internal/apperror"
	"github.com/keyxmakerx/atlas/internal/entity"
	"github.com/keyxmakerx/atlas/internal/mediaapi"
)

// MediaRepository defines the data access contract for media files and
// their attachments. All SQL for both tables lives here.
type MediaRepository interface {
	// ListByEntity returns every attachment of ref joined with its file,
	// ordered by display_order then attachment id.
	ListByEntity(ctx context.Context, ref entity.Ref) ([]mediaapi.Item, error)

	// FindItem returns one attachment of ref joined with its file.
	FindItem(ctx context.Context, ref entity.Ref, fileID, relationType string) (*mediaapi.Item, error)

	// FindFile returns a catalog row including its drive keys.
	FindFile(ctx context.Context, id string) (*FileRecord, error)

	// CreateWithAttachment inserts a new file and attaches it to ref at the
	// end of its order, in one transaction.
	CreateWithAttachment(ctx context.Context, file *FileRecord, ref entity.Ref) (*mediaapi.Item, error)

	// Attach links an existing file to ref at the end of its order.
	Attach(ctx context.Context, fileID string, ref entity.Ref, relationType string) error

	// Detach removes every attachment of fileID to ref. The file survives.
	Detach(ctx context.Context, fileID string, ref entity.Ref) error

	// Reorder rewrites display_order of ref's attachments so that
	// orderedIDs[i] is at position i. orderedIDs must be a permutation of
	// the attached file ids.
	Reorder(ctx context.Context, ref entity.Ref, orderedIDs []string) error

	// UpdateMetadata applies the non-nil fields of req.
	UpdateMetadata(ctx context.Context, id string, req mediaapi.UpdateMetadataRequest) error

	// UpdateLinks stores freshly issued links. An empty thumbnailURL leaves
	// the stored thumbnail link unchanged.
	UpdateLinks(ctx context.Context, id, fileURL, thumbnailURL string) error

	// UpdateThumbnail records a (re)generated preview.
	UpdateThumbnail(ctx context.Context, id, thumbnailKey, thumbnailURL string, at time.Time) error

	// Search queries the global catalog.
	Search(ctx context.Context, params mediaapi.SearchParams) ([]mediaapi.File, error)
}

// mediaRepository implements MediaRepository with MariaDB queries.
type mediaRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewMediaRepository creates a new media repository.
func NewMediaRepository(db *sql.DB) MediaRepository {
	return &mediaRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// fileColumns is the column list scanned by fileRow.
const fileColumns = `f.id, f.file_name, f.file_type, f.mime_type, f.file_size,
	f.object_key, f.file_url, f.public_url, f.thumbnail_key, f.thumbnail_url,
	f.thumbnail_updated_at, f.duration_seconds, f.width, f.height,
	f.description, f.created_at, f.updated_at`

// attachmentColumns follows fileColumns in item queries. The last column is
// the link clock: when the file's links were last issued, or when the
// attachment was made for rows that predate links_issued_at.
const attachmentColumns = `a.id, a.entity_type, a.entity_id, a.display_order,
	a.relation_type, COALESCE(f.links_issued_at, a.created_at)`

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// fileRow holds the nullable columns of media_files while scanning.
type fileRow struct {
	rec FileRecord

	fileURL, publicURL sql.NullString
	thumbKey, thumbURL sql.NullString
	description        sql.NullString
	thumbAt            sql.NullTime
	duration           sql.NullFloat64
	width, height      sql.NullInt64
}

func (r *fileRow) dest() []any {
	return []any{
		&r.rec.ID, &r.rec.FileName, &r.rec.FileType, &r.rec.MimeType, &r.rec.FileSize,
		&r.rec.ObjectKey, &r.fileURL, &r.publicURL, &r.thumbKey, &r.thumbURL,
		&r.thumbAt, &r.duration, &r.width, &r.height,
		&r.description, &r.rec.CreatedAt, &r.rec.UpdatedAt,
	}
}

func (r *fileRow) record() *FileRecord {
	rec := r.rec
	rec.FileURL = r.fileURL.String
	rec.PublicURL = r.publicURL.String
	rec.ThumbnailKey = r.thumbKey.String
	rec.ThumbnailURL = r.thumbURL.String
	rec.Description = r.description.String
	if r.thumbAt.Valid {
		t := r.thumbAt.Time
		rec.ThumbnailUpdatedAt = &t
	}
	if r.duration.Valid {
		d := r.duration.Float64
		rec.DurationSeconds = &d
	}
	if r.width.Valid {
		w := int(r.width.Int64)
		rec.Width = &w
	}
	if r.height.Valid {
		h := int(r.height.Int64)
		rec.Height = &h
	}
	return &rec
}

// scanItem scans fileColumns followed by attachmentColumns. The item's
// UpdatedAt is its link clock, so metadata and preview edits never make a
// signed link look fresher than it is.
func scanItem(s rowScanner) (*mediaapi.Item, error) {
	var (
		row      fileRow
		item     mediaapi.Item
		linkedAt time.Time
	)
	dest := append(row.dest(),
		&item.AttachmentID, &item.EntityType, &item.EntityID, &item.DisplayOrder,
		&item.RelationType, &linkedAt,
	)
	if err := s.Scan(dest...); err != nil {
		return nil, err
	}
	item.File = row.record().File
	item.UpdatedAt = linkedAt
	return &item, nil
}

// ListByEntity returns the attachments of ref in display order.
func (r *mediaRepository) ListByEntity(ctx context.Context, ref entity.Ref) ([]mediaapi.Item, error) {
	query := `SELECT ` + fileColumns + `, ` + attachmentColumns + `
	          FROM media_attachments a
	          INNER JOIN media_files f ON f.id = a.media_file_id
	          WHERE a.entity_type = ? AND a.entity_id = ?
	          ORDER BY a.display_order, a.id`

	rows, err := r.db.QueryContext(ctx, query, string(ref.Type), ref.ID)
	if err != nil {
		return nil, fmt.Errorf("listing media for %s: %w", ref, err)
	}
	defer rows.Close()

	items := []mediaapi.Item{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning media item: %w", err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// FindItem returns a single attachment joined with its file.
func (r *mediaRepository) FindItem(ctx context.Context, ref entity.Ref, fileID, relationType string) (*mediaapi.Item, error) {
	query := `SELECT ` + fileColumns + `, ` + attachmentColumns + `
	          FROM media_attachments a
	          INNER JOIN media_files f ON f.id = a.media_file_id
	          WHERE a.entity_type = ? AND a.entity_id = ? AND a.media_file_id = ? AND a.relation_type = ?`

	item, err := scanItem(r.db.QueryRowContext(ctx, query, string(ref.Type), ref.ID, fileID, relationType))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("media is not attached to this entity")
	}
	if err != nil {
		return nil, fmt.Errorf("querying media item: %w", err)
	}
	return item, nil
}

// FindFile retrieves a catalog row by its UUID.
func (r *mediaRepository) FindFile(ctx context.Context, id string) (*FileRecord, error) {
	query := `SELECT ` + fileColumns + ` FROM media_files f WHERE f.id = ?`

	var row fileRow
	err := r.db.QueryRowContext(ctx, query, id).Scan(row.dest()...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("media file not found")
	}
	if err != nil {
		return nil, fmt.Errorf("querying media file by id: %w", err)
	}
	return row.record(), nil
}

// nextOrder returns the display_order one past the current maximum for ref.
// The row lock keeps concurrent appends from sharing a position.
func nextOrder(ctx context.Context, tx *sql.Tx, ref entity.Ref) (int, error) {
	var next int
	err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(display_order), -1) + 1 FROM media_attachments
		 WHERE entity_type = ? AND entity_id = ? FOR UPDATE`,
		string(ref.Type), ref.ID,
	).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("computing next display order: %w", err)
	}
	return next, nil
}

// insertAttachment adds the join row inside tx and returns its id and order.
func insertAttachment(ctx context.Context, tx *sql.Tx, fileID string, ref entity.Ref, relationType string, now time.Time) (int64, int, error) {
	order, err := nextOrder(ctx, tx, ref)
	if err != nil {
		return 0, 0, err
	}

	result, err := tx.ExecContext(ctx,
		`INSERT INTO media_attachments
		 (entity_type, entity_id, media_file_id, display_order, relation_type, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(ref.Type), ref.ID, fileID, order, relationType, now, now,
	)
	if err != nil {
		if isDuplicateEntry(err) {
			return 0, 0, apperror.NewConflict("media is already linked to this entity")
		}
		return 0, 0, fmt.Errorf("inserting media attachment: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, 0, fmt.Errorf("getting attachment id: %w", err)
	}
	return id, order, nil
}

// CreateWithAttachment inserts the file row and its first attachment.
func (r *mediaRepository) CreateWithAttachment(ctx context.Context, file *FileRecord, ref entity.Ref) (*mediaapi.Item, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning upload tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO media_files
		 (id, file_name, file_type, mime_type, file_size, object_key, file_url, public_url,
		  thumbnail_key, thumbnail_url, thumbnail_updated_at, duration_seconds, width, height,
		  description, created_at, updated_at, links_issued_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		file.ID, file.FileName, string(file.FileType), file.MimeType, file.FileSize,
		file.ObjectKey, nullString(file.FileURL), nullString(file.PublicURL),
		nullString(file.ThumbnailKey), nullString(file.ThumbnailURL), file.ThumbnailUpdatedAt,
		file.DurationSeconds, file.Width, file.Height,
		file.Description, file.CreatedAt, file.UpdatedAt, linksIssuedAt(file),
	)
	if err != nil {
		return nil, fmt.Errorf("inserting media file: %w", err)
	}

	attachmentID, order, err := insertAttachment(ctx, tx, file.ID, ref, mediaapi.RelationPrimary, file.CreatedAt)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing upload tx: %w", err)
	}

	return &mediaapi.Item{
		File:         file.File,
		AttachmentID: attachmentID,
		EntityType:   string(ref.Type),
		EntityID:     ref.ID,
		DisplayOrder: order,
		RelationType: mediaapi.RelationPrimary,
	}, nil
}

// Attach links an existing file to ref. A duplicate link is a conflict.
func (r *mediaRepository) Attach(ctx context.Context, fileID string, ref entity.Ref, relationType string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning link tx: %w", err)
	}
	defer tx.Rollback()

	if _, _, err := insertAttachment(ctx, tx, fileID, ref, relationType, r.now()); err != nil {
		return err
	}
	return tx.Commit()
}

// Detach removes the attachment rows only.
func (r *mediaRepository) Detach(ctx context.Context, fileID string, ref entity.Ref) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM media_attachments WHERE entity_type = ? AND entity_id = ? AND media_file_id = ?`,
		string(ref.Type), ref.ID, fileID,
	)
	if err != nil {
		return fmt.Errorf("deleting media attachment: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return apperror.NewNotFound("media is not attached to this entity")
	}
	return nil
}

// Reorder validates the permutation against the locked rows and rewrites
// every position in one transaction.
func (r *mediaRepository) Reorder(ctx context.Context, ref entity.Ref, orderedIDs []string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning reorder tx: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT DISTINCT media_file_id FROM media_attachments
		 WHERE entity_type = ? AND entity_id = ? FOR UPDATE`,
		string(ref.Type), ref.ID,
	)
	if err != nil {
		return fmt.Errorf("locking attachments for reorder: %w", err)
	}
	var current []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("scanning attachment id: %w", err)
		}
		current = append(current, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating attachments: %w", err)
	}

	if err := checkPermutation(current, orderedIDs); err != nil {
		return err
	}

	now := r.now()
	for i, id := range orderedIDs {
		_, err := tx.ExecContext(ctx,
			`UPDATE media_attachments SET display_order = ?, updated_at = ?
			 WHERE entity_type = ? AND entity_id = ? AND media_file_id = ?`,
			i, now, string(ref.Type), ref.ID, id,
		)
		if err != nil {
			return fmt.Errorf("updating display order of %s: %w", id, err)
		}
	}
	return tx.Commit()
}

// checkPermutation reports a validation error unless ordered contains each
// id of current exactly once and nothing else.
func checkPermutation(current, ordered []string) error {
	if len(ordered) != len(current) {
		return apperror.NewValidation(fmt.Sprintf(
			"orderedIds must list all %d attached media, got %d", len(current), len(ordered)))
	}
	attached := make(map[string]bool, len(current))
	for _, id := range current {
		attached[id] = true
	}
	seen := make(map[string]bool, len(ordered))
	for _, id := range ordered {
		if !attached[id] {
			return apperror.NewValidation("media " + id + " is not attached to this entity")
		}
		if seen[id] {
			return apperror.NewValidation("media " + id + " appears more than once")
		}
		seen[id] = true
	}
	return nil
}

// UpdateMetadata builds the SET clause from the supplied fields only.
func (r *mediaRepository) UpdateMetadata(ctx context.Context, id string, req mediaapi.UpdateMetadataRequest) error {
	sets := []string{"updated_at = ?"}
	args := []any{r.now()}
	if req.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *req.Description)
	}
	if req.DurationSeconds != nil {
		sets = append(sets, "duration_seconds = ?")
		args = append(args, *req.DurationSeconds)
	}
	if req.Width != nil {
		sets = append(sets, "width = ?")
		args = append(args, *req.Width)
	}
	if req.Height != nil {
		sets = append(sets, "height = ?")
		args = append(args, *req.Height)
	}
	args = append(args, id)

	query := "UPDATE media_files SET " + strings.Join(sets, ", ") + " WHERE id = ?"
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating media metadata: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return apperror.NewNotFound("media file not found")
	}
	return nil
}

// UpdateLinks stores re-issued links and restarts the link clock. It is
// the only update that moves links_issued_at.
func (r *mediaRepository) UpdateLinks(ctx context.Context, id, fileURL, thumbnailURL string) error {
	now := r.now()
	_, err := r.db.ExecContext(ctx,
		`UPDATE media_files SET file_url = ?, thumbnail_url = COALESCE(?, thumbnail_url),
		 updated_at = ?, links_issued_at = ?
		 WHERE id = ?`,
		fileURL, nullString(thumbnailURL), now, now, id,
	)
	if err != nil {
		return fmt.Errorf("updating media links: %w", err)
	}
	return nil
}

// UpdateThumbnail records a regenerated preview.
func (r *mediaRepository) UpdateThumbnail(ctx context.Context, id, thumbnailKey, thumbnailURL string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE media_files SET thumbnail_key = ?, thumbnail_url = ?, thumbnail_updated_at = ?, updated_at = ?
		 WHERE id = ?`,
		thumbnailKey, thumbnailURL, at, at, id,
	)
	if err != nil {
		return fmt.Errorf("updating media thumbnail: %w", err)
	}
	return nil
}

// Search filters the catalog by text, type, and attachment to an excluded
// entity. No match is an empty slice.
func (r *mediaRepository) Search(ctx context.Context, params mediaapi.SearchParams) ([]mediaapi.File, error) {
	var (
		conditions []string
		args       []any
	)
	if q := strings.TrimSpace(params.Search); q != "" {
		pattern := "%" + escapeLike(q) + "%"
		conditions = append(conditions, "(f.file_name LIKE ? OR f.description LIKE ?)")
		args = append(args, pattern, pattern)
	}
	if params.FileType != "" {
		conditions = append(conditions, "f.file_type = ?")
		args = append(args, string(params.FileType))
	}
	if params.ExcludeEntityType != "" && params.ExcludeEntityID != "" {
		conditions = append(conditions, `NOT EXISTS (SELECT 1 FROM media_attachments a
		    WHERE a.media_file_id = f.id AND a.entity_type = ? AND a.entity_id = ?)`)
		args = append(args, params.ExcludeEntityType, params.ExcludeEntityID)
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}
	query := `SELECT ` + fileColumns + ` FROM media_files f` + where +
		` ORDER BY f.created_at DESC, f.id LIMIT ?`
	args = append(args, mediaapi.ClampLimit(params.Limit))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("searching media files: %w", err)
	}
	defer rows.Close()

	files := []mediaapi.File{}
	for rows.Next() {
		var row fileRow
		if err := rows.Scan(row.dest()...); err != nil {
			return nil, fmt.Errorf("scanning media file: %w", err)
		}
		files = append(files, row.record().File)
	}
	return files, rows.Err()
}

// escapeLike escapes the LIKE wildcards in user input.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// nullString maps "" to NULL.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// linksIssuedAt is the link clock of a new file: its creation time when a
// link was issued, NULL otherwise.
func linksIssuedAt(file *FileRecord) *time.Time {
	if file.FileURL == "" {
		return nil
	}
	at := file.UpdatedAt
	return &at
}

// erDupEntry is the MySQL/MariaDB error number for unique key violations.
const erDupEntry = 1062

// isDuplicateEntry checks if a MySQL/MariaDB error is a duplicate key violation.
func isDuplicateEntry(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == erDupEntry
}
