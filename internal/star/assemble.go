package star

import (
	"fmt"

	"gtdetl/internal/etlerr"
	"gtdetl/internal/schema"
	"gtdetl/pkg/records"
)

// Stats counts what the assembler kept and dropped.
type Stats struct {
	Records        int `json:"records"`
	Facts          int `json:"facts"`
	MissingID      int `json:"missing_id"`
	DuplicateIDs   int `json:"duplicate_ids"`
	Bridge         int `json:"bridge"`
	MissingWeapon  int `json:"missing_weapon"`
	DuplicatePairs int `json:"duplicate_pairs"`
}

// Model is a fully assembled star: dimension rows in extraction order, fact
// rows in FactColumns order, bridge rows in BridgeColumns order.
type Model struct {
	Dimensions []DimensionRows
	Facts      [][]any
	Bridge     [][]any
	Stats      Stats
}

// Dimension returns the built dimension named name.
func (m *Model) Dimension(name string) (DimensionRows, bool) {
	for _, d := range m.Dimensions {
		if d.Spec.Name == name {
			return d, true
		}
	}
	return DimensionRows{}, false
}

// Assemble extracts every dimension in order, threading the augmented set
// through each call, then projects fact and bridge rows.
//
// Records without an eventid are left out of facts and bridge but still
// feed the dimensions. When an eventid repeats, its first record is the
// fact; bridge pairs are kept once each.
func Assemble(rs *records.RecordSet) (*Model, error) {
	if _, ok := rs.Index(NaturalID); !ok {
		return nil, &etlerr.MissingRequiredColumn{Column: NaturalID, Stage: "assemble facts"}
	}
	if _, missing := rs.Indices(Measures); missing != "" {
		return nil, &etlerr.MissingRequiredColumn{Column: missing, Stage: "assemble facts"}
	}

	m := &Model{Stats: Stats{Records: rs.Len()}}
	aug := rs
	for _, spec := range dimensions {
		dim, next, err := Extract(aug, spec)
		if err != nil {
			return nil, err
		}
		m.Dimensions = append(m.Dimensions, dim)
		aug = next
	}

	factIdx, missing := aug.Indices(factSourceColumns())
	if missing != "" {
		return nil, &etlerr.MissingRequiredColumn{Column: missing, Stage: "assemble facts"}
	}
	weaponIdx, _ := aug.Index(bridgedDimension().Key)

	seenIDs := make(map[int64]struct{}, aug.Len())
	seenPairs := make(map[[2]int64]struct{}, aug.Len())

	for r, row := range aug.Rows {
		id, ok, err := naturalID(row[factIdx[0]])
		if err != nil {
			return nil, fmt.Errorf("assemble facts: row %d: %w", r+1, err)
		}
		if !ok {
			m.Stats.MissingID++
			continue
		}

		if _, dup := seenIDs[id]; dup {
			m.Stats.DuplicateIDs++
		} else {
			seenIDs[id] = struct{}{}
			fact := make([]any, len(factIdx))
			fact[0] = id
			for i := 1; i < len(factIdx); i++ {
				fact[i] = row[factIdx[i]]
			}
			m.Facts = append(m.Facts, fact)
		}

		w := row[weaponIdx]
		if w == nil {
			m.Stats.MissingWeapon++
			continue
		}
		pair := [2]int64{id, w.(int64)}
		if _, dup := seenPairs[pair]; dup {
			m.Stats.DuplicatePairs++
			continue
		}
		seenPairs[pair] = struct{}{}
		m.Bridge = append(m.Bridge, []any{id, pair[1]})
	}

	m.Stats.Facts = len(m.Facts)
	m.Stats.Bridge = len(m.Bridge)
	return m, nil
}

// factSourceColumns is FactColumns with the fact key read from NaturalID.
func factSourceColumns() []string {
	cols := FactColumns()
	cols[0] = NaturalID
	return cols
}

// naturalID converts an eventid cell to int64. ok is false for a missing
// value.
func naturalID(v any) (int64, bool, error) {
	if v == nil {
		return 0, false, nil
	}
	if id, isInt := v.(int64); isInt {
		return id, true, nil
	}
	c, valid := schema.CoerceValue(schema.KindInt, v)
	if !valid {
		return 0, false, fmt.Errorf("%s %v is not an integer", NaturalID, v)
	}
	if c == nil {
		return 0, false, nil
	}
	return c.(int64), true, nil
}
