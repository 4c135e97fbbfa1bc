package star

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gtdetl/internal/etlerr"
	"gtdetl/pkg/records"
)

func incident(id any) records.Record {
	return records.Record{
		"eventid": id, "iyear": int64(2000), "imonth": int64(1), "iday": int64(1),
		"country_txt": "USA", "region_txt": "NA", "provstate": "CA", "city": "LA",
		"latitude": 0.0, "longitude": 0.0,
		"gname": "X", "subgname": "",
		"attacktype1_txt": "Bombing", "suicide": int64(0),
		"targtype1_txt": "Military", "corp1": "", "target1": "Base",
		"weaptype1_txt": "Explosives", "weapsubtype1_txt": "IED",
		"nkill": int64(2), "nwound": int64(1), "success": int64(1), "propvalue": 0.0,
	}
}

func build(recs ...records.Record) *records.RecordSet {
	return records.FromRecords(InputColumns(), recs)
}

func TestAssemble_SingleIncident(t *testing.T) {
	t.Parallel()

	m, err := Assemble(build(incident("1")))
	require.NoError(t, err)

	tm, ok := m.Dimension("time")
	require.True(t, ok)
	assert.Equal(t, [][]any{{int64(1), int64(2000), int64(1), int64(1)}}, tm.Rows)

	require.Len(t, m.Facts, 1)
	assert.Equal(t, []any{
		int64(1),
		int64(2), int64(1), int64(1), 0.0,
		int64(1), int64(1), int64(1), int64(1), int64(1),
	}, m.Facts[0])
	assert.Len(t, m.Facts[0], len(FactColumns()))

	assert.Equal(t, [][]any{{int64(1), int64(1)}}, m.Bridge)
	assert.Len(t, m.Dimensions, 6)
	for _, d := range m.Dimensions {
		assert.Len(t, d.Rows, 1, d.Spec.Name)
	}
}

func TestAssemble_SharedGroupReferencesOneRow(t *testing.T) {
	t.Parallel()

	a := incident(int64(10))
	b := incident(int64(11))
	b["city"] = "SF"

	m, err := Assemble(build(a, b))
	require.NoError(t, err)

	grp, _ := m.Dimension("group")
	require.Len(t, grp.Rows, 1)

	loc, _ := m.Dimension("location")
	assert.Len(t, loc.Rows, 2)

	gi := indexOf(FactColumns(), "id_grupo")
	require.Len(t, m.Facts, 2)
	assert.Equal(t, m.Facts[0][gi], m.Facts[1][gi])
	assert.Equal(t, int64(1), m.Facts[0][gi])
}

func TestAssemble_MissingEventIDStillFeedsDimensions(t *testing.T) {
	t.Parallel()

	a := incident(int64(1))
	b := incident(nil)
	b["gname"] = "Only In Orphan"

	m, err := Assemble(build(a, b))
	require.NoError(t, err)

	require.Len(t, m.Facts, 1)
	assert.Equal(t, int64(1), m.Facts[0][0])
	require.Len(t, m.Bridge, 1)
	assert.Equal(t, 1, m.Stats.MissingID)

	grp, _ := m.Dimension("group")
	require.Len(t, grp.Rows, 2)
	assert.Equal(t, "Only In Orphan", grp.Rows[1][1])
}

func TestAssemble_DuplicateEventIDFirstWins(t *testing.T) {
	t.Parallel()

	a := incident(int64(7))
	b := incident(int64(7))
	b["nkill"] = int64(99)
	b["weaptype1_txt"] = "Firearms"
	c := incident(int64(7))

	m, err := Assemble(build(a, b, c))
	require.NoError(t, err)

	require.Len(t, m.Facts, 1)
	assert.Equal(t, int64(2), m.Facts[0][1])
	assert.Equal(t, 2, m.Stats.DuplicateIDs)

	assert.Equal(t, [][]any{{int64(7), int64(1)}, {int64(7), int64(2)}}, m.Bridge)
	assert.Equal(t, 1, m.Stats.DuplicatePairs)
}

func TestAssemble_MissingWeaponSkipsBridgeOnly(t *testing.T) {
	t.Parallel()

	a := incident(int64(1))
	a["weapsubtype1_txt"] = nil

	m, err := Assemble(build(a))
	require.NoError(t, err)
	assert.Len(t, m.Facts, 1)
	assert.Empty(t, m.Bridge)
	assert.Equal(t, 1, m.Stats.MissingWeapon)

	w, _ := m.Dimension("weapon")
	assert.Empty(t, w.Rows)
}

func TestAssemble_NullForeignKeyWhenDimensionTupleIncomplete(t *testing.T) {
	t.Parallel()

	a := incident(int64(1))
	a["corp1"] = nil

	m, err := Assemble(build(a))
	require.NoError(t, err)
	require.Len(t, m.Facts, 1)
	assert.Nil(t, m.Facts[0][indexOf(FactColumns(), "id_objetivo")])
}

func TestAssemble_Errors(t *testing.T) {
	t.Parallel()

	t.Run("no_eventid_column", func(t *testing.T) {
		t.Parallel()
		cols := InputColumns()[1:]
		_, err := Assemble(records.FromRecords(cols, []records.Record{incident(int64(1))}))
		var mc *etlerr.MissingRequiredColumn
		require.True(t, errors.As(err, &mc))
		assert.Equal(t, "eventid", mc.Column)
	})

	t.Run("no_dimension_column", func(t *testing.T) {
		t.Parallel()
		var cols []string
		for _, c := range InputColumns() {
			if c != "target1" {
				cols = append(cols, c)
			}
		}
		_, err := Assemble(records.FromRecords(cols, []records.Record{incident(int64(1))}))
		var mc *etlerr.MissingRequiredColumn
		require.True(t, errors.As(err, &mc))
		assert.Equal(t, "target1", mc.Column)
		assert.Equal(t, "extract target", mc.Stage)
	})

	t.Run("non_integer_eventid", func(t *testing.T) {
		t.Parallel()
		_, err := Assemble(build(incident("abc")))
		require.ErrorContains(t, err, "not an integer")
	})
}

func TestAssemble_ReferentialIntegrityAndCounts(t *testing.T) {
	t.Parallel()

	var recs []records.Record
	for i := 0; i < 120; i++ {
		r := incident(int64(1000 + i%90))
		r["iyear"] = int64(1970 + i%7)
		r["city"] = fmt.Sprintf("city-%d", i%11)
		r["gname"] = []any{"A", "B", nil}[i%3]
		r["weaptype1_txt"] = []any{"Explosives", "Firearms", "Unknown", nil}[i%4]
		if i%17 == 0 {
			r["eventid"] = nil
		}
		recs = append(recs, r)
	}

	m, err := Assemble(build(recs...))
	require.NoError(t, err)

	keys := map[string]map[int64]bool{}
	for _, d := range m.Dimensions {
		keys[d.Spec.Key] = map[int64]bool{}
		for _, row := range d.Rows {
			keys[d.Spec.Key][row[0].(int64)] = true
		}
	}

	cols := FactColumns()
	withID := 0
	for _, r := range recs {
		if r["eventid"] != nil {
			withID++
		}
	}
	assert.LessOrEqual(t, len(m.Facts), withID)

	factIDs := map[int64]bool{}
	for _, f := range m.Facts {
		factIDs[f[0].(int64)] = true
		for i := 1 + len(Measures); i < len(cols); i++ {
			if f[i] == nil {
				continue
			}
			assert.True(t, keys[cols[i]][f[i].(int64)], "%s=%v dangling", cols[i], f[i])
		}
	}
	assert.Len(t, factIDs, len(m.Facts))

	for _, b := range m.Bridge {
		assert.True(t, factIDs[b[0].(int64)])
		assert.True(t, keys["id_arma"][b[1].(int64)])
	}
}

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}
