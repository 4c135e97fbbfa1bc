// Table specs live here so the star model and the backends can share them
// without import cycles.
package storage

import "fmt"

// Logical column types. Each backend maps them onto its own DDL types.
const (
	TypeInteger = "integer"
	TypeBigInt  = "bigint"
	TypeDouble  = "double"
	TypeString  = "string"
)

// Constraint kinds.
const (
	ConstraintPrimaryKey = "primary_key"
	ConstraintUnique     = "unique"
)

type TableSpec struct {
	Name        string           `json:"name"`
	PrimaryKey  *PrimaryKeySpec  `json:"primary_key,omitempty"`
	Columns     []ColumnSpec     `json:"columns"`
	Constraints []ConstraintSpec `json:"constraints,omitempty"`
}

// PrimaryKeySpec is a single-column key. AutoIncrement keys are generated
// by the store when no explicit value is inserted.
type PrimaryKeySpec struct {
	Name          string `json:"name"`
	Type          string `json:"type"`
	AutoIncrement bool   `json:"auto_increment"`
}

type ColumnSpec struct {
	Name       string         `json:"name"`
	Type       string         `json:"type"`
	Size       int            `json:"size,omitempty"` // strings only
	Nullable   *bool          `json:"nullable,omitempty"`
	References *ReferenceSpec `json:"references,omitempty"`
}

type ReferenceSpec struct {
	Table  string `json:"table"`
	Column string `json:"column"`
}

// ConstraintSpec is a table-level constraint: a composite primary key or a
// unique set.
type ConstraintSpec struct {
	Kind    string   `json:"kind"`
	Columns []string `json:"columns"`
}

// ColumnNames returns the insert column order: primary key first, then
// Columns in declaration order.
func (t TableSpec) ColumnNames() []string {
	out := make([]string, 0, len(t.Columns)+1)
	if t.PrimaryKey != nil {
		out = append(out, t.PrimaryKey.Name)
	}
	for _, c := range t.Columns {
		out = append(out, c.Name)
	}
	return out
}

// AutoIncrement reports whether the table has a generated key.
func (t TableSpec) AutoIncrement() bool {
	return t.PrimaryKey != nil && t.PrimaryKey.AutoIncrement
}

// References lists the distinct tables this table points at.
func (t TableSpec) References() []string {
	var out []string
	seen := map[string]bool{}
	for _, c := range t.Columns {
		if c.References == nil || seen[c.References.Table] {
			continue
		}
		seen[c.References.Table] = true
		out = append(out, c.References.Table)
	}
	return out
}

// Validate checks the spec for shape errors shared by every backend.
func (t TableSpec) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("table name is empty")
	}
	if t.PrimaryKey == nil && len(t.Columns) == 0 {
		return fmt.Errorf("%s: no columns", t.Name)
	}

	known := map[string]bool{}
	for _, n := range t.ColumnNames() {
		if n == "" {
			return fmt.Errorf("%s: empty column name", t.Name)
		}
		if known[n] {
			return fmt.Errorf("%s: duplicate column %q", t.Name, n)
		}
		known[n] = true
	}

	hasPK := t.PrimaryKey != nil
	for _, con := range t.Constraints {
		switch con.Kind {
		case ConstraintPrimaryKey:
			if hasPK {
				return fmt.Errorf("%s: more than one primary key", t.Name)
			}
			hasPK = true
		case ConstraintUnique:
		default:
			return fmt.Errorf("%s unsupported constraint kind: %s", t.Name, con.Kind)
		}
		if len(con.Columns) == 0 {
			return fmt.Errorf("%s: %s constraint without columns", t.Name, con.Kind)
		}
		for _, c := range con.Columns {
			if !known[c] {
				return fmt.Errorf("%s: %s constraint on unknown column %q", t.Name, con.Kind, c)
			}
		}
	}
	return nil
}
