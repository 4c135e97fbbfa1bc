package multitable

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"gtdetl/internal/config"
	"gtdetl/internal/star"
	"gtdetl/pkg/records"
)

// incident is a typed record as it looks after coercion.
func incident(id int64, gname string) records.Record {
	return records.Record{
		"eventid": id, "iyear": int64(2000), "imonth": int64(1), "iday": int64(1),
		"country_txt": "USA", "region_txt": "North America", "provstate": "CA", "city": "LA",
		"latitude": 34.05, "longitude": -118.24,
		"gname": gname, "subgname": "",
		"attacktype1_txt": "Bombing/Explosion", "suicide": int64(0),
		"targtype1_txt": "Military", "corp1": "", "target1": "Base",
		"weaptype1_txt": "Explosives", "weapsubtype1_txt": "Vehicle",
		"nkill": int64(2), "nwound": int64(1), "success": int64(1), "propvalue": 0.0,
	}
}

var (
	countries = []string{"Peru", "Spain", "Iraq"}
	groups    = []string{"Shining Path (SL)", "ETA", "Unknown", "ISIL"}
	attacks   = []string{"Bombing/Explosion", "Armed Assault", "Assassination"}
	weapons   = [][2]string{{"Explosives", "Vehicle"}, {"Firearms", "Automatic Weapon"}, {"Incendiary", "Arson/Fire"}}
)

// rawIncidents returns n unique incidents with every value as a string,
// the way the CSV parser delivers them.
func rawIncidents(n int) *records.RecordSet {
	recs := make([]records.Record, n)
	for i := 0; i < n; i++ {
		w := weapons[i%len(weapons)]
		recs[i] = records.Record{
			"eventid":          fmt.Sprint(197001010001 + int64(i)),
			"iyear":            fmt.Sprint(1970 + i%5),
			"imonth":           fmt.Sprint(1 + i%12),
			"iday":             fmt.Sprint(1 + i%28),
			"country_txt":      countries[i%len(countries)],
			"region_txt":       "Region " + countries[i%len(countries)],
			"provstate":        fmt.Sprintf("State %d", i%4),
			"city":             fmt.Sprintf("City %d", i%6),
			"latitude":         fmt.Sprintf("%.4f", 10+float64(i%6)/4),
			"longitude":        fmt.Sprintf("%.4f", -70-float64(i%6)/8),
			"gname":            groups[i%len(groups)],
			"subgname":         "",
			"attacktype1_txt":  attacks[i%len(attacks)],
			"suicide":          fmt.Sprint(i % 2),
			"targtype1_txt":    "Business",
			"corp1":            fmt.Sprintf("Corp %d", i%3),
			"target1":          fmt.Sprintf("Target %d", i%5),
			"weaptype1_txt":    w[0],
			"weapsubtype1_txt": w[1],
			"nkill":            fmt.Sprint(i % 4),
			"nwound":           fmt.Sprint(i % 3),
			"success":          "1",
			"propvalue":        "",
		}
	}
	return records.FromRecords(star.InputColumns(), recs)
}

func staticSource(rs *records.RecordSet) SourceFunc {
	return func(context.Context, config.Source, *zap.Logger) (*records.RecordSet, error) {
		return rs, nil
	}
}

func sqlitePipeline(t *testing.T) config.Pipeline {
	t.Helper()
	return config.Pipeline{
		Job:     "gtd_test",
		Source:  config.Source{Kind: "csv", File: &config.FileSource{Path: "unused.csv"}},
		Clean:   config.Clean{FillMeasures: true},
		Storage: config.Storage{Kind: "sqlite", DSN: filepath.Join(t.TempDir(), "gtd.db")},
		Runtime: config.Runtime{BatchSize: 7},
	}
}
