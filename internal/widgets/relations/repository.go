package relations

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/keyxmakerx/atlas/internal/entity"
)

// RelationRepository defines the data access contract for the relations
// view. One method per association source; merging is the service's job.
type RelationRepository interface {
	// ListDirect returns targets of targetType linked directly from source.
	ListDirect(ctx context.Context, source entity.Ref, targetType entity.Type) ([]Association, error)

	// ListViaGroups returns members of targetType of every group source
	// links to.
	ListViaGroups(ctx context.Context, source entity.Ref, targetType entity.Type) ([]Association, error)
}

// relationRepository implements RelationRepository using MariaDB with
// hand-written SQL. No ORM.
type relationRepository struct {
	db *sql.DB
}

// NewRelationRepository creates a new RelationRepository backed by the
// given database connection.
func NewRelationRepository(db *sql.DB) RelationRepository {
	return &relationRepository{db: db}
}

// ListDirect joins entity_links to the name index. Targets missing from the
// index are still listed, with an empty name.
func (r *relationRepository) ListDirect(ctx context.Context, source entity.Ref, targetType entity.Type) ([]Association, error) {
	query := `SELECT l.target_type, l.target_id, COALESCE(ei.name, ''), l.display_order
	          FROM entity_links l
	          LEFT JOIN entity_index ei ON ei.entity_type = l.target_type AND ei.entity_id = l.target_id
	          WHERE l.source_type = ? AND l.source_id = ? AND l.target_type = ?
	          ORDER BY l.id`

	rows, err := r.db.QueryContext(ctx, query, string(source.Type), source.ID, string(targetType))
	if err != nil {
		return nil, fmt.Errorf("listing direct links of %s: %w", source, err)
	}
	defer rows.Close()

	var out []Association
	for rows.Next() {
		var (
			a     Association
			order sql.NullInt64
		)
		if err := rows.Scan(&a.EntityType, &a.EntityID, &a.Name, &order); err != nil {
			return nil, fmt.Errorf("scanning direct link: %w", err)
		}
		a.DisplayOrder = intPtr(order)
		a.Source = SourceDirect
		out = append(out, a)
	}
	return out, rows.Err()
}

// ListViaGroups follows source -> group links into group_members.
func (r *relationRepository) ListViaGroups(ctx context.Context, source entity.Ref, targetType entity.Type) ([]Association, error) {
	query := `SELECT gm.member_type, gm.member_id, COALESCE(ei.name, ''), gm.display_order,
	                 gm.group_type, gm.group_id
	          FROM entity_links l
	          INNER JOIN group_members gm ON gm.group_type = l.target_type AND gm.group_id = l.target_id
	          LEFT JOIN entity_index ei ON ei.entity_type = gm.member_type AND ei.entity_id = gm.member_id
	          WHERE l.source_type = ? AND l.source_id = ? AND gm.member_type = ?
	          ORDER BY l.id, gm.display_order`

	rows, err := r.db.QueryContext(ctx, query, string(source.Type), source.ID, string(targetType))
	if err != nil {
		return nil, fmt.Errorf("listing group links of %s: %w", source, err)
	}
	defer rows.Close()

	var out []Association
	for rows.Next() {
		var (
			a     Association
			order sql.NullInt64
		)
		if err := rows.Scan(&a.EntityType, &a.EntityID, &a.Name, &order, &a.ViaGroupType, &a.ViaGroupID); err != nil {
			return nil, fmt.Errorf("scanning group member: %w", err)
		}
		a.DisplayOrder = intPtr(order)
		a.Source = SourceGroup
		out = append(out, a)
	}
	return out, rows.Err()
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}
