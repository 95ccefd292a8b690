// Package audit records media mutations in the audit_log table and serves
// the per-entity activity feed. Every successful upload, detach, link,
// reorder, metadata edit and refresh is captured as an Entry.
//
// This plugin never changes media data; it only records observations about
// changes made by the media plugin.
package audit

import "time"

// Entry is one recorded media mutation. EntityType and EntityID are empty
// for file-level actions (metadata edits, refreshes) that are not scoped to
// one entity.
type Entry struct {
	ID         int64          `json:"id"`
	Action     string         `json:"action"`
	EntityType string         `json:"entity_type,omitempty"`
	EntityID   string         `json:"entity_id,omitempty"`
	MediaID    string         `json:"media_id,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}
