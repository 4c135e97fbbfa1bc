package storage

import (
	"fmt"
	"strings"

	"github.com/huandu/go-sqlbuilder"
)

// Dialect describes how a backend spells column types and generated keys.
type Dialect struct {
	Flavor sqlbuilder.Flavor

	// ColumnType maps a logical column type to DDL.
	ColumnType func(c ColumnSpec) (string, error)

	// AutoIncrementKey returns the type and modifiers that follow the
	// quoted column name of a generated primary key.
	AutoIncrementKey func(pk PrimaryKeySpec) (string, error)
}

// CreateTable builds the CREATE TABLE statement for t. The caller decides
// on IF NOT EXISTS, which not every dialect supports.
func (d Dialect) CreateTable(t TableSpec) (*sqlbuilder.CreateTableBuilder, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}

	q := d.Flavor.Quote
	ctb := d.Flavor.NewCreateTableBuilder()
	ctb.CreateTable(q(t.Name))

	if pk := t.PrimaryKey; pk != nil {
		var def string
		if pk.AutoIncrement {
			s, err := d.AutoIncrementKey(*pk)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", t.Name, pk.Name, err)
			}
			def = s
		} else {
			s, err := d.ColumnType(ColumnSpec{Name: pk.Name, Type: pk.Type})
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", t.Name, pk.Name, err)
			}
			def = s + " NOT NULL PRIMARY KEY"
		}
		ctb.Define(q(pk.Name), def)
	}

	for _, c := range t.Columns {
		typ, err := d.ColumnType(c)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", t.Name, c.Name, err)
		}
		def := []string{q(c.Name), typ}
		if c.Nullable != nil && !*c.Nullable {
			def = append(def, "NOT NULL")
		}
		if r := c.References; r != nil {
			def = append(def, fmt.Sprintf("REFERENCES %s (%s)", q(r.Table), q(r.Column)))
		}
		ctb.Define(def...)
	}

	for _, con := range t.Constraints {
		cols := make([]string, len(con.Columns))
		for i, c := range con.Columns {
			cols[i] = q(c)
		}
		switch con.Kind {
		case ConstraintPrimaryKey:
			ctb.Define("PRIMARY KEY", "("+strings.Join(cols, ", ")+")")
		case ConstraintUnique:
			ctb.Define("UNIQUE", "("+strings.Join(cols, ", ")+")")
		}
	}
	return ctb, nil
}

// InsertStatements builds one multi-row INSERT per chunk of rows.
func (d Dialect) InsertStatements(table string, columns []string, rows [][]any, perStatement int) []Statement {
	q := d.Flavor.Quote
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = q(c)
	}

	chunks := Chunks(rows, perStatement)
	out := make([]Statement, 0, len(chunks))
	for _, chunk := range chunks {
		ib := d.Flavor.NewInsertBuilder()
		ib.InsertInto(q(table)).Cols(quoted...)
		for _, row := range chunk {
			ib.Values(row...)
		}
		sql, args := ib.Build()
		out = append(out, Statement{SQL: sql, Args: args, Rows: len(chunk)})
	}
	return out
}

// DeleteAll builds an unconditional DELETE for table.
func (d Dialect) DeleteAll(table string) (string, []any) {
	db := d.Flavor.NewDeleteBuilder()
	db.DeleteFrom(d.Flavor.Quote(table))
	return db.Build()
}

// Statement is one built SQL statement and its bound arguments.
type Statement struct {
	SQL  string
	Args []any
	Rows int
}
