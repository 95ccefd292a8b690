// Package entity defines the closed set of reference record kinds that media
// can be attached to. The media layer never looks inside an entity; the type
// is only a namespace discriminator. Each kind has a single registry entry
// holding its display and route metadata so callers never switch on raw
// strings.
package entity

import (
	"fmt"
	"strings"
)

// Type identifies a kind of reference record (muscle, organ, ...). The zero
// value is invalid.
type Type string

// Supported entity types. The string values are the wire and database form.
const (
	Muscle        Type = "muscle"
	Organ         Type = "organ"
	Meridian      Type = "meridian"
	Dysfunction   Type = "dysfunction"
	MuscleGroup   Type = "muscle_group"
	Receptor      Type = "receptor"
	ReceptorClass Type = "receptor_class"
	Tool          Type = "tool"
	Entry         Type = "entry"
)

// Info is the registry metadata for one entity type.
type Info struct {
	Type       Type   `json:"type"`
	Name       string `json:"name"`
	NamePlural string `json:"name_plural"`
	Icon       string `json:"icon"`

	// RoutePrefix is the path segment used by detail pages (e.g. "/muscles").
	RoutePrefix string `json:"route_prefix"`

	// IsGroup marks types whose members are other entities (muscle groups,
	// receptor classes). Used by the relations view to expand associations.
	IsGroup bool `json:"is_group"`
}

// registry is ordered the way navigation lists entity kinds.
var registry = []Info{
	{Type: Muscle, Name: "Muscle", NamePlural: "Muscles", Icon: "fa-person-running", RoutePrefix: "/muscles"},
	{Type: MuscleGroup, Name: "Muscle group", NamePlural: "Muscle groups", Icon: "fa-people-group", RoutePrefix: "/muscle-groups", IsGroup: true},
	{Type: Organ, Name: "Organ", NamePlural: "Organs", Icon: "fa-heart-pulse", RoutePrefix: "/organs"},
	{Type: Meridian, Name: "Meridian", NamePlural: "Meridians", Icon: "fa-wave-square", RoutePrefix: "/meridians"},
	{Type: Dysfunction, Name: "Dysfunction", NamePlural: "Dysfunctions", Icon: "fa-triangle-exclamation", RoutePrefix: "/dysfunctions"},
	{Type: Receptor, Name: "Receptor", NamePlural: "Receptors", Icon: "fa-satellite-dish", RoutePrefix: "/receptors"},
	{Type: ReceptorClass, Name: "Receptor class", NamePlural: "Receptor classes", Icon: "fa-layer-group", RoutePrefix: "/receptor-classes", IsGroup: true},
	{Type: Tool, Name: "Tool", NamePlural: "Tools", Icon: "fa-screwdriver-wrench", RoutePrefix: "/tools"},
	{Type: Entry, Name: "Entry", NamePlural: "Entries", Icon: "fa-book-open", RoutePrefix: "/entries"},
}

var byType = func() map[Type]Info {
	m := make(map[Type]Info, len(registry))
	for _, info := range registry {
		m[info.Type] = info
	}
	return m
}()

// All returns the registry entries in display order. The returned slice is a
// copy.
func All() []Info {
	out := make([]Info, len(registry))
	copy(out, registry)
	return out
}

// Lookup returns the registry entry for t.
func Lookup(t Type) (Info, bool) {
	info, ok := byType[t]
	return info, ok
}

// Parse converts a wire string into a Type. Matching is case-insensitive and
// accepts hyphens in place of underscores ("muscle-group").
func Parse(s string) (Type, error) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	t := Type(normalized)
	if _, ok := byType[t]; !ok {
		return "", fmt.Errorf("unknown entity type %q", s)
	}
	return t, nil
}

// Valid reports whether t is a registered type.
func (t Type) Valid() bool {
	_, ok := byType[t]
	return ok
}

// String implements fmt.Stringer.
func (t Type) String() string { return string(t) }

// Ref is an opaque key into one entity record: (type, id).
type Ref struct {
	Type Type
	ID   string
}

// NewRef validates both halves of a reference.
func NewRef(entityType, id string) (Ref, error) {
	t, err := Parse(entityType)
	if err != nil {
		return Ref{}, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return Ref{}, fmt.Errorf("entity id is required")
	}
	return Ref{Type: t, ID: id}, nil
}

// String renders the reference as "type/id", the form used in logs.
func (r Ref) String() string { return string(r.Type) + "/" + r.ID }

// Path returns the detail page path for the referenced record.
func (r Ref) Path() string {
	info, ok := byType[r.Type]
	if !ok {
		return ""
	}
	return info.RoutePrefix + "/" + r.ID
}
