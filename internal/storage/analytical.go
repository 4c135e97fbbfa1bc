package storage

// AnalyticalRow is one denormalized (fact, weapon) row read back from the
// star schema. Nil pointers are missing values from outer joins.
type AnalyticalRow struct {
	EventID         *int64   `db:"eventid"`
	Nkill           *int64   `db:"nkill"`
	Nwound          *int64   `db:"nwound"`
	Success         *int64   `db:"success"`
	Propvalue       *float64 `db:"propvalue"`
	Iyear           *int64   `db:"iyear"`
	Imonth          *int64   `db:"imonth"`
	Iday            *int64   `db:"iday"`
	CountryTxt      *string  `db:"country_txt"`
	RegionTxt       *string  `db:"region_txt"`
	Provstate       *string  `db:"provstate"`
	City            *string  `db:"city"`
	Latitude        *float64 `db:"latitude"`
	Longitude       *float64 `db:"longitude"`
	Gname           *string  `db:"gname"`
	Subgname        *string  `db:"subgname"`
	Attacktype1Txt  *string  `db:"attacktype1_txt"`
	Suicide         *int64   `db:"suicide"`
	Targtype1Txt    *string  `db:"targtype1_txt"`
	Corp1           *string  `db:"corp1"`
	Target1         *string  `db:"target1"`
	Weaptype1Txt    *string  `db:"weaptype1_txt"`
	Weapsubtype1Txt *string  `db:"weapsubtype1_txt"`
}

// AnalyticalColumns is the column order of AnalyticalRow.Values.
var AnalyticalColumns = []string{
	"eventid",
	"nkill", "nwound", "success", "propvalue",
	"iyear", "imonth", "iday",
	"country_txt", "region_txt", "provstate", "city", "latitude", "longitude",
	"gname", "subgname",
	"attacktype1_txt", "suicide",
	"targtype1_txt", "corp1", "target1",
	"weaptype1_txt", "weapsubtype1_txt",
}

// Values flattens the row in AnalyticalColumns order; nil pointers become
// untyped nil.
func (r AnalyticalRow) Values() []any {
	return []any{
		i64(r.EventID),
		i64(r.Nkill), i64(r.Nwound), i64(r.Success), f64(r.Propvalue),
		i64(r.Iyear), i64(r.Imonth), i64(r.Iday),
		str(r.CountryTxt), str(r.RegionTxt), str(r.Provstate), str(r.City), f64(r.Latitude), f64(r.Longitude),
		str(r.Gname), str(r.Subgname),
		str(r.Attacktype1Txt), i64(r.Suicide),
		str(r.Targtype1Txt), str(r.Corp1), str(r.Target1),
		str(r.Weaptype1Txt), str(r.Weapsubtype1Txt),
	}
}

func i64(p *int64) any {
	if p == nil {
		return nil
	}
	return *p
}

func f64(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}

func str(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}
