// Package star turns a denormalized incident record set into the GTD star
// schema: six dimensions with surrogate keys, the attack fact table, and the
// incident/weapon bridge. It also builds the query that reverses the model.
package star

import "gtdetl/internal/storage"

// Table names of the persisted schema.
const (
	TableTime     = "TIEMPO"
	TableLocation = "UBICACION"
	TableGroup    = "GRUPO"
	TableMethod   = "METODO"
	TableTarget   = "OBJETIVO"
	TableWeapon   = "ARMA"
	TableFact     = "FACT_ATAQUES"
	TableBridge   = "PUENTE_USA"
)

// NaturalID is the input column that identifies an incident. It is stored
// as the fact key FactKey.
const (
	NaturalID = "eventid"
	FactKey   = "id_ataque"
)

// Measures are the fact columns copied from the input.
var Measures = []string{"nkill", "nwound", "success", "propvalue"}

// DimensionSpec describes one dimension: its table, surrogate key column,
// and the input columns that form its natural tuple.
type DimensionSpec struct {
	Name    string
	Table   string
	Key     string
	Columns []string

	// Bridged dimensions are linked through the bridge table instead of a
	// fact foreign key.
	Bridged bool
}

var dimensions = []DimensionSpec{
	{Name: "time", Table: TableTime, Key: "id_tiempo", Columns: []string{"iyear", "imonth", "iday"}},
	{Name: "location", Table: TableLocation, Key: "id_ubicacion", Columns: []string{"country_txt", "region_txt", "provstate", "city", "latitude", "longitude"}},
	{Name: "group", Table: TableGroup, Key: "id_grupo", Columns: []string{"gname", "subgname"}},
	{Name: "method", Table: TableMethod, Key: "id_metodo", Columns: []string{"attacktype1_txt", "suicide"}},
	{Name: "target", Table: TableTarget, Key: "id_objetivo", Columns: []string{"targtype1_txt", "corp1", "target1"}},
	{Name: "weapon", Table: TableWeapon, Key: "id_arma", Columns: []string{"weaptype1_txt", "weapsubtype1_txt"}, Bridged: true},
}

// columnTypes carries the DDL of every non-key column.
var columnTypes = map[string]storage.ColumnSpec{
	"iyear":            {Type: storage.TypeInteger},
	"imonth":           {Type: storage.TypeInteger},
	"iday":             {Type: storage.TypeInteger},
	"country_txt":      {Type: storage.TypeString, Size: 100},
	"region_txt":       {Type: storage.TypeString, Size: 100},
	"provstate":        {Type: storage.TypeString, Size: 100},
	"city":             {Type: storage.TypeString, Size: 100},
	"latitude":         {Type: storage.TypeDouble},
	"longitude":        {Type: storage.TypeDouble},
	"gname":            {Type: storage.TypeString, Size: 255},
	"subgname":         {Type: storage.TypeString, Size: 255},
	"attacktype1_txt":  {Type: storage.TypeString, Size: 150},
	"suicide":          {Type: storage.TypeInteger},
	"targtype1_txt":    {Type: storage.TypeString, Size: 150},
	"corp1":            {Type: storage.TypeString, Size: 255},
	"target1":          {Type: storage.TypeString, Size: 255},
	"weaptype1_txt":    {Type: storage.TypeString, Size: 150},
	"weapsubtype1_txt": {Type: storage.TypeString, Size: 150},
	"nkill":            {Type: storage.TypeInteger},
	"nwound":           {Type: storage.TypeInteger},
	"success":          {Type: storage.TypeInteger},
	"propvalue":        {Type: storage.TypeDouble},
}

// Dimensions returns the dimensions in extraction order.
func Dimensions() []DimensionSpec {
	out := make([]DimensionSpec, len(dimensions))
	copy(out, dimensions)
	return out
}

// Dimension returns the spec named name.
func Dimension(name string) (DimensionSpec, bool) {
	for _, d := range dimensions {
		if d.Name == name {
			return d, true
		}
	}
	return DimensionSpec{}, false
}

// FactColumns is the column order of fact rows.
func FactColumns() []string {
	out := []string{FactKey}
	out = append(out, Measures...)
	for _, d := range dimensions {
		if !d.Bridged {
			out = append(out, d.Key)
		}
	}
	return out
}

// BridgeColumns is the column order of bridge rows.
func BridgeColumns() []string {
	return []string{FactKey, bridgedDimension().Key}
}

// InputColumns lists every input column the model reads.
func InputColumns() []string {
	out := []string{NaturalID}
	out = append(out, Measures...)
	for _, d := range dimensions {
		out = append(out, d.Columns...)
	}
	return out
}

func bridgedDimension() DimensionSpec {
	for _, d := range dimensions {
		if d.Bridged {
			return d
		}
	}
	panic("star: no bridged dimension")
}

// Tables returns the table specs in creation (dependency) order:
// dimensions, then the fact table, then the bridge.
func Tables() []storage.TableSpec {
	notNull := false

	out := make([]storage.TableSpec, 0, len(dimensions)+2)
	for _, d := range dimensions {
		t := storage.TableSpec{
			Name:       d.Table,
			PrimaryKey: &storage.PrimaryKeySpec{Name: d.Key, Type: storage.TypeInteger, AutoIncrement: true},
		}
		for _, c := range d.Columns {
			t.Columns = append(t.Columns, column(c))
		}
		out = append(out, t)
	}

	fact := storage.TableSpec{
		Name:       TableFact,
		PrimaryKey: &storage.PrimaryKeySpec{Name: FactKey, Type: storage.TypeBigInt},
	}
	for _, m := range Measures {
		fact.Columns = append(fact.Columns, column(m))
	}
	for _, d := range dimensions {
		if d.Bridged {
			continue
		}
		fact.Columns = append(fact.Columns, storage.ColumnSpec{
			Name:       d.Key,
			Type:       storage.TypeInteger,
			References: &storage.ReferenceSpec{Table: d.Table, Column: d.Key},
		})
	}
	out = append(out, fact)

	w := bridgedDimension()
	out = append(out, storage.TableSpec{
		Name: TableBridge,
		Columns: []storage.ColumnSpec{
			{Name: FactKey, Type: storage.TypeBigInt, Nullable: &notNull, References: &storage.ReferenceSpec{Table: TableFact, Column: FactKey}},
			{Name: w.Key, Type: storage.TypeInteger, Nullable: &notNull, References: &storage.ReferenceSpec{Table: w.Table, Column: w.Key}},
		},
		Constraints: []storage.ConstraintSpec{{Kind: storage.ConstraintPrimaryKey, Columns: []string{FactKey, w.Key}}},
	})
	return out
}

// ResetOrder returns the table specs in reverse dependency order: bridge,
// fact, then dimensions last to first.
func ResetOrder() []storage.TableSpec {
	tables := Tables()
	out := make([]storage.TableSpec, len(tables))
	for i, t := range tables {
		out[len(tables)-1-i] = t
	}
	return out
}

// Table returns the spec of the named table.
func Table(name string) (storage.TableSpec, bool) {
	for _, t := range Tables() {
		if t.Name == name {
			return t, true
		}
	}
	return storage.TableSpec{}, false
}

func column(name string) storage.ColumnSpec {
	c := columnTypes[name]
	c.Name = name
	return c
}
