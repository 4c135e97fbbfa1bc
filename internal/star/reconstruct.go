package star

import (
	"context"
	"fmt"

	"github.com/huandu/go-sqlbuilder"

	"gtdetl/internal/storage"
	"gtdetl/pkg/records"
)

// table aliases used by the reconstruction query
var dimensionAlias = map[string]string{
	TableTime:     "t",
	TableLocation: "u",
	TableGroup:    "g",
	TableMethod:   "m",
	TableTarget:   "o",
	TableWeapon:   "a",
}

// ReconstructQuery builds the outer join that turns the star back into one
// row per (fact, bridged weapon) pair:
//
//	FACT ⟕ TIEMPO ⟕ UBICACION ⟕ GRUPO ⟕ METODO ⟕ OBJETIVO ⟕ PUENTE ⟕ ARMA
//
// Every fact appears at least once; facts without a weapon yield a row with
// nil weapon columns, facts with several weapons fan out. Columns are
// aliased to storage.AnalyticalColumns.
func ReconstructQuery(flavor sqlbuilder.Flavor) (string, []any) {
	q := flavor.Quote
	sb := flavor.NewSelectBuilder()

	cols := []string{sb.As("f."+FactKey, NaturalID)}
	for _, m := range Measures {
		cols = append(cols, sb.As("f."+m, m))
	}
	for _, d := range dimensions {
		alias := dimensionAlias[d.Table]
		for _, c := range d.Columns {
			cols = append(cols, sb.As(alias+"."+c, c))
		}
	}
	sb.Select(cols...)
	sb.From(q(TableFact) + " f")

	w := bridgedDimension()
	for _, d := range dimensions {
		alias := dimensionAlias[d.Table]
		if d.Bridged {
			sb.JoinWithOption(sqlbuilder.LeftOuterJoin, q(TableBridge)+" p", fmt.Sprintf("f.%s = p.%s", FactKey, FactKey))
			sb.JoinWithOption(sqlbuilder.LeftOuterJoin, q(d.Table)+" "+alias, fmt.Sprintf("p.%s = %s.%s", w.Key, alias, d.Key))
			continue
		}
		sb.JoinWithOption(sqlbuilder.LeftOuterJoin, q(d.Table)+" "+alias, fmt.Sprintf("f.%s = %s.%s", d.Key, alias, d.Key))
	}
	sb.OrderBy("f."+FactKey, "p."+w.Key)
	return sb.Build()
}

// Reconstruct reads the denormalized table back from repo. Columns follow
// storage.AnalyticalColumns.
func Reconstruct(ctx context.Context, repo storage.Repository) (*records.RecordSet, error) {
	q, args := ReconstructQuery(repo.Flavor())
	rows, err := repo.QueryAnalytical(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("reconstruct: %w", err)
	}

	out := make([][]any, len(rows))
	for i, r := range rows {
		out[i] = r.Values()
	}
	return records.New(storage.AnalyticalColumns, out), nil
}
