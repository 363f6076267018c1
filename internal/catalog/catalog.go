// Package catalog holds the immutable schema catalog: the mapping between
// business-facing entity names and physical warehouse tables, with column
// metadata used for prompting, validation and identifier remapping.
package catalog

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Reference describes a foreign-entity link of a column. RefersTo holds
// logical entity names; TypeColumn names the discriminator column for
// polymorphic references.
type Reference struct {
	RefersTo   []string `json:"refers_to"`
	TypeColumn string   `json:"type_column,omitempty"`
}

// EnumValue is one allowed value of an enumerated column.
type EnumValue struct {
	Value string `json:"value"`
	Label string `json:"value_label"`
}

// Column is the metadata of one entity column.
type Column struct {
	Type           string      `json:"field_type"`
	Label          string      `json:"field_label,omitempty"`
	Description    string      `json:"description,omitempty"`
	Nullable       bool        `json:"is_nullable"`
	Reference      *Reference  `json:"reference,omitempty"`
	PossibleValues []EnumValue `json:"possible_values,omitempty"`
}

// Entity maps a logical entity to its physical table and columns.
type Entity struct {
	TableName string             `json:"table_name"`
	Label     string             `json:"label,omitempty"`
	Notes     string             `json:"important_notes_and_rules,omitempty"`
	Columns   map[string]*Column `json:"columns"`
}

// Snapshot is the persisted catalog form: logical entity name to descriptor.
type Snapshot map[string]*Entity

// Catalog is the process-wide schema catalog. It is built once, validated,
// and never mutated afterwards, so concurrent readers need no locking.
type Catalog struct {
	entities          map[string]*Entity
	logicalByPhysical map[string]string
	project           string
	dataset           string
	rendered          string
}

// New validates the snapshot invariants and freezes it into a Catalog:
// physical names must be unique, and every reference target must name an
// entity present in the snapshot.
func New(snap Snapshot, project, dataset string) (*Catalog, error) {
	logicalByPhysical := make(map[string]string, len(snap))
	for logical, ent := range snap {
		if ent == nil || ent.TableName == "" {
			return nil, fmt.Errorf("entity %q has no physical table name", logical)
		}
		if prev, ok := logicalByPhysical[ent.TableName]; ok {
			return nil, fmt.Errorf("physical table %q claimed by both %q and %q",
				ent.TableName, prev, logical)
		}
		logicalByPhysical[ent.TableName] = logical
	}

	for logical, ent := range snap {
		for colName, col := range ent.Columns {
			if col.Reference == nil {
				continue
			}
			for _, target := range col.Reference.RefersTo {
				if _, ok := snap[target]; !ok {
					return nil, fmt.Errorf("column %s.%s refers to unknown entity %q",
						logical, colName, target)
				}
			}
		}
	}

	rendered, err := renderSnapshot(snap)
	if err != nil {
		return nil, fmt.Errorf("render catalog: %w", err)
	}

	return &Catalog{
		entities:          snap,
		logicalByPhysical: logicalByPhysical,
		project:           project,
		dataset:           dataset,
		rendered:          rendered,
	}, nil
}

// Entity returns the descriptor for a logical name.
func (c *Catalog) Entity(logical string) (*Entity, bool) {
	e, ok := c.entities[logical]
	return e, ok
}

// Len returns the number of entities.
func (c *Catalog) Len() int {
	return len(c.entities)
}

// Logicals returns all logical entity names, sorted.
func (c *Catalog) Logicals() []string {
	names := make([]string, 0, len(c.entities))
	for name := range c.entities {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// PhysicalName maps a logical entity name to its warehouse table name.
func (c *Catalog) PhysicalName(logical string) (string, bool) {
	e, ok := c.entities[logical]
	if !ok {
		return "", false
	}
	return e.TableName, true
}

// LogicalName maps a warehouse table name back to its logical entity name.
func (c *Catalog) LogicalName(physical string) (string, bool) {
	l, ok := c.logicalByPhysical[physical]
	return l, ok
}

// Project returns the warehouse project the catalog is scoped to.
func (c *Catalog) Project() string { return c.project }

// Dataset returns the warehouse dataset the catalog is scoped to.
func (c *Catalog) Dataset() string { return c.dataset }

// JSON returns the deterministic pretty-printed catalog used as model
// context.
func (c *Catalog) JSON() string { return c.rendered }

func renderSnapshot(snap Snapshot) (string, error) {
	b, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}
