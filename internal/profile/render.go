package profile

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"
)

// Formats accepted by Write.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Write renders r to w in format (text, json or yaml).
func Write(w io.Writer, r Report, format string) error {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", FormatText:
		return WriteText(w, r)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case FormatYAML, "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("profile: unknown format %q (want text, json or yaml)", format)
	}
}

// WriteText renders r as an aligned plain-text report.
func WriteText(w io.Writer, r Report) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintf(tw, "quality report:\trows=%d\n", r.Rows)
	if missing := r.MissingColumns(); len(missing) == 0 {
		fmt.Fprintln(tw, "no null or empty values")
	} else {
		fmt.Fprintf(tw, "%d columns with missing values\n", len(missing))
	}
	fmt.Fprintln(tw, "column\tkind\tnulls\tempty\tmissing\tpct\tdistinct")
	for _, c := range r.Columns {
		distinct := fmt.Sprintf("%d", c.Distinct)
		if c.Capped {
			distinct += "+"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%.2f%%\t%s\n",
			c.Column, c.Kind, c.Nulls, c.Empty, c.Missing, c.MissingPct, distinct)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(r.HighMissing) > 0 {
		fmt.Fprintf(w, "\nhigh missing: %s\n", strings.Join(r.HighMissing, ", "))
	}

	if r.KeyPresent {
		fmt.Fprintf(w, "\nduplicates on %s: %d\n", r.KeyColumn, r.DuplicateKeys)
	} else {
		fmt.Fprintf(w, "\nduplicates on %s: column absent\n", r.KeyColumn)
	}
	fmt.Fprintf(w, "duplicate records: %d\n", r.DuplicateRecords)

	for _, c := range r.Categorical {
		fmt.Fprintf(w, "\ntext column %s: %d distinct\n", c.Column, c.Distinct)
		if c.Truncated {
			fmt.Fprintf(w, "  values (first %d): [%s] ...\n", len(c.Values), quoteAll(c.Values))
		} else {
			fmt.Fprintf(w, "  values: [%s]\n", quoteAll(c.Values))
		}
	}
	return nil
}
