// Package relations implements the read view that lists the records
// associated with an entity. An association is either direct (an
// entity_links row from the entity to the target) or derived through a
// group the entity links to (dysfunction -> muscle group -> muscle). Both
// sources are merged so each target appears once.
package relations

import (
	"cmp"
	"slices"
)

// Source tells how an association was found.
type Source string

const (
	SourceDirect Source = "direct"
	SourceGroup  Source = "group"
)

// DefaultDisplayOrder sorts associations without an explicit order last.
const DefaultDisplayOrder = 9999

// Association is one target record in the merged view.
type Association struct {
	EntityType   string `json:"entity_type"`
	EntityID     string `json:"entity_id"`
	Name         string `json:"name"`
	DisplayOrder *int   `json:"display_order,omitempty"`
	Source       Source `json:"source"`

	// ViaGroupType and ViaGroupID name the group of a derived association.
	ViaGroupType string `json:"via_group_type,omitempty"`
	ViaGroupID   string `json:"via_group_id,omitempty"`
}

func (a Association) key() string {
	return a.EntityType + "/" + a.EntityID
}

func (a Association) order() int {
	if a.DisplayOrder == nil {
		return DefaultDisplayOrder
	}
	return *a.DisplayOrder
}

// MergeAssociations combines direct and group-derived associations so every
// target appears exactly once. A direct association always wins over a
// derived one for the same target; among duplicates from one source the
// first is kept. The result is sorted by display order (absent orders last),
// then name, then id.
func MergeAssociations(direct, derived []Association) []Association {
	seen := make(map[string]bool, len(direct)+len(derived))
	merged := make([]Association, 0, len(direct)+len(derived))

	for _, a := range direct {
		if seen[a.key()] {
			continue
		}
		seen[a.key()] = true
		a.Source = SourceDirect
		a.ViaGroupType, a.ViaGroupID = "", ""
		merged = append(merged, a)
	}
	for _, a := range derived {
		if seen[a.key()] {
			continue
		}
		seen[a.key()] = true
		a.Source = SourceGroup
		merged = append(merged, a)
	}

	slices.SortStableFunc(merged, func(x, y Association) int {
		return cmp.Or(
			cmp.Compare(x.order(), y.order()),
			cmp.Compare(x.Name, y.Name),
			cmp.Compare(x.EntityID, y.EntityID),
		)
	})
	return merged
}
