package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"gopkg.in/yaml.v3"
)

// printer renders API responses. Table output is only defined for list
// commands; other commands print JSON when table is requested.
type printer struct {
	w      io.Writer
	format string
}

func (p printer) table() bool { return p.format == "table" }

// print renders v, which should be a decoded JSON value so that yaml keeps the
// wire field names.
func (p printer) print(v any) error {
	switch p.format {
	case "yaml":
		enc := yaml.NewEncoder(p.w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(p.w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
}

func (p printer) tabular(header []string, rows [][]string) error {
	tw := tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
	writeRow(tw, header)
	for _, r := range rows {
		writeRow(tw, r)
	}
	return tw.Flush()
}

func writeRow(w io.Writer, cols []string) {
	for i, c := range cols {
		if i > 0 {
			fmt.Fprint(w, "\t")
		}
		fmt.Fprint(w, c)
	}
	fmt.Fprintln(w)
}

func validFormat(f string) bool {
	switch f {
	case "json", "yaml", "table":
		return true
	}
	return false
}
