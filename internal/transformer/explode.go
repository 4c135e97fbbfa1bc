package transformer

import (
	"fmt"

	"gtdetl/pkg/records"
)

// MaxWeaponSlots is the number of weapon slots a GTD incident can list.
const MaxWeaponSlots = 4

// WeaponColumns returns the (type, subtype) column names of slot n (1-based).
func WeaponColumns(n int) (string, string) {
	return fmt.Sprintf("weaptype%d_txt", n), fmt.Sprintf("weapsubtype%d_txt", n)
}

// ExplodeWeapons emits one record per listed weapon so the bridge table can
// hold every (incident, weapon) pair.
//
// Each input record is kept as-is (slot 1). For every further slot whose type
// column is present and non-empty, a copy is emitted with the slot's type and
// subtype moved into weaptype1_txt/weapsubtype1_txt. Records without extra
// slots pass through unchanged, so the output always has at least as many
// rows as the input.
func ExplodeWeapons(rs *records.RecordSet) (*records.RecordSet, int) {
	t1, s1 := WeaponColumns(1)
	ti1, ok1 := rs.Index(t1)
	si1, okS1 := rs.Index(s1)
	if !ok1 {
		return rs, 0
	}

	type slot struct{ t, s int }
	var slots []slot
	for n := 2; n <= MaxWeaponSlots; n++ {
		tc, sc := WeaponColumns(n)
		ti, ok := rs.Index(tc)
		if !ok {
			continue
		}
		si, okS := rs.Index(sc)
		if !okS {
			si = -1
		}
		slots = append(slots, slot{t: ti, s: si})
	}
	if len(slots) == 0 {
		return rs, 0
	}

	added := 0
	rows := make([][]any, 0, len(rs.Rows))
	for _, src := range rs.Rows {
		rows = append(rows, src)
		for _, sl := range slots {
			wt := src[sl.t]
			if wt == nil || wt == "" {
				continue
			}
			dup := append([]any(nil), src...)
			dup[ti1] = wt
			if okS1 {
				if sl.s >= 0 {
					dup[si1] = src[sl.s]
				} else {
					dup[si1] = nil
				}
			}
			rows = append(rows, dup)
			added++
		}
	}
	return records.New(rs.Columns, rows), added
}
