// Package schema describes the incident columns the pipeline consumes and
// turns loosely typed source values into the typed shape the star model
// expects.
package schema

import (
	"gtdetl/internal/etlerr"
)

// Kind is the logical type of an input column.
type Kind int

const (
	KindString Kind = iota
	KindInt
	KindFloat
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	default:
		return "string"
	}
}

// Column describes one expected input column.
type Column struct {
	Name    string
	Kind    Kind
	Aliases []string

	// Required columns abort the run when absent.
	Required bool
	// Extra columns are used when present and never warned about.
	Extra bool
}

// Descriptor is an ordered set of expected columns.
type Descriptor struct {
	Columns []Column
}

// Incidents describes the GTD incident record.
var Incidents = Descriptor{Columns: []Column{
	{Name: "eventid", Kind: KindInt, Required: true},
	{Name: "iyear", Kind: KindInt},
	{Name: "imonth", Kind: KindInt},
	{Name: "iday", Kind: KindInt},
	{Name: "country_txt", Kind: KindString},
	{Name: "region_txt", Kind: KindString},
	{Name: "provstate", Kind: KindString},
	{Name: "city", Kind: KindString},
	{Name: "latitude", Kind: KindFloat},
	{Name: "longitude", Kind: KindFloat},
	{Name: "gname", Kind: KindString},
	{Name: "subgname", Kind: KindString, Aliases: []string{"gsubname"}},
	{Name: "attacktype1_txt", Kind: KindString},
	{Name: "suicide", Kind: KindInt},
	{Name: "targtype1_txt", Kind: KindString},
	{Name: "corp1", Kind: KindString},
	{Name: "target1", Kind: KindString},
	{Name: "weaptype1_txt", Kind: KindString},
	{Name: "weapsubtype1_txt", Kind: KindString},
	{Name: "nkill", Kind: KindInt},
	{Name: "nwound", Kind: KindInt},
	{Name: "success", Kind: KindInt},
	{Name: "propvalue", Kind: KindFloat},

	{Name: "weaptype2_txt", Kind: KindString, Extra: true},
	{Name: "weapsubtype2_txt", Kind: KindString, Extra: true},
	{Name: "weaptype3_txt", Kind: KindString, Extra: true},
	{Name: "weapsubtype3_txt", Kind: KindString, Extra: true},
	{Name: "weaptype4_txt", Kind: KindString, Extra: true},
	{Name: "weapsubtype4_txt", Kind: KindString, Extra: true},
}}

// Names returns the canonical column names in declaration order.
func (d Descriptor) Names() []string {
	out := make([]string, 0, len(d.Columns))
	for _, c := range d.Columns {
		out = append(out, c.Name)
	}
	return out
}

// Lookup returns the column named name (canonical names only).
func (d Descriptor) Lookup(name string) (Column, bool) {
	for _, c := range d.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// AliasMap maps every alias to its canonical name.
func (d Descriptor) AliasMap() map[string]string {
	out := map[string]string{}
	for _, c := range d.Columns {
		for _, a := range c.Aliases {
			out[a] = c.Name
		}
	}
	return out
}

// Validate compares the columns present in the input against the
// descriptor. Absent optional columns produce warnings; an absent required
// column produces a MissingRequiredColumn error.
func (d Descriptor) Validate(present []string) ([]etlerr.SchemaMismatchWarning, error) {
	have := make(map[string]bool, len(present))
	for _, p := range present {
		have[p] = true
	}

	var (
		warnings []etlerr.SchemaMismatchWarning
		err      error
	)
	for _, c := range d.Columns {
		if have[c.Name] {
			continue
		}
		switch {
		case c.Required:
			if err == nil {
				err = &etlerr.MissingRequiredColumn{Column: c.Name, Stage: "schema validation"}
			}
		case c.Extra:
		default:
			warnings = append(warnings, etlerr.SchemaMismatchWarning{Column: c.Name})
		}
	}
	return warnings, err
}
