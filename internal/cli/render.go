package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/mesh-intelligence/relmap/internal/sqlite"
	"github.com/mesh-intelligence/relmap/pkg/relmap"
	"github.com/mesh-intelligence/relmap/pkg/types"
)

// Table output formats.
const (
	formatTable    = "table"
	formatCSV      = "csv"
	formatMarkdown = "markdown"
)

// renderer writes command output either as JSON or as text tables.
type renderer struct {
	w        io.Writer
	jsonMode bool
	format   string
}

func (a *app) renderer(w io.Writer) renderer {
	return renderer{w: w, jsonMode: a.flags.jsonMode, format: formatTable}
}

func (r renderer) json(v any) error {
	enc := json.NewEncoder(r.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (r renderer) table(header table.Row, rows []table.Row) error {
	t := table.NewWriter()
	t.SetOutputMirror(r.w)
	style := table.StyleLight
	style.Format.Header = text.FormatDefault
	t.SetStyle(style)
	t.AppendHeader(header)
	t.AppendRows(rows)
	switch r.format {
	case formatTable, "":
		t.Render()
	case formatCSV:
		t.RenderCSV()
	case formatMarkdown:
		t.RenderMarkdown()
	}
	return nil
}

func validFormat(format string) error {
	switch format {
	case formatTable, formatCSV, formatMarkdown:
		return nil
	}
	return fmt.Errorf("%w: unknown output format %q", errInvalidInput, format)
}

func (r renderer) syncResults(results []relmap.SyncResult) error {
	if r.jsonMode {
		return r.json(results)
	}
	rows := make([]table.Row, 0, len(results))
	for _, res := range results {
		detail := ""
		switch {
		case len(res.Added) > 0:
			detail = "added " + strings.Join(res.Added, ", ")
		case res.Mismatch != "":
			detail = "column " + res.Mismatch + " changed"
		}
		rows = append(rows, table.Row{res.Table, res.Outcome, detail})
	}
	return r.table(table.Row{"table", "outcome", "detail"}, rows)
}

// records renders the records of table t in rs, projected on columns.
func (r renderer) records(t *types.Table, columns []string, rs *types.RecordSet) error {
	cols, err := sqlite.Projection(t, columns)
	if err != nil {
		return err
	}
	var recs []*types.Record
	if g, ok := rs.Group(t.Name); ok {
		recs = g.Records()
	}

	if r.jsonMode {
		out := make([]json.RawMessage, 0, len(recs))
		for _, rec := range recs {
			line, err := sqlite.EncodeRecord(rec)
			if err != nil {
				return err
			}
			out = append(out, line)
		}
		return r.json(out)
	}

	if len(recs) == 0 {
		fmt.Fprintln(r.w, "(0 rows)")
		return nil
	}
	header := make(table.Row, len(cols))
	for i, c := range cols {
		header[i] = c
	}
	rows := make([]table.Row, 0, len(recs))
	for _, rec := range recs {
		row := make(table.Row, len(cols))
		for i, c := range cols {
			v, _ := rec.Get(c)
			row[i] = v.String()
		}
		rows = append(rows, row)
	}
	if err := r.table(header, rows); err != nil {
		return err
	}
	if r.format == formatTable {
		fmt.Fprintf(r.w, "(%d rows)\n", len(recs))
	}
	return nil
}

// schema renders the CREATE statement of every table, or the declared
// schema as JSON.
func (r renderer) schema(s *types.Schema) error {
	if !r.jsonMode {
		for i := range s.Tables {
			fmt.Fprintf(r.w, "%s;\n", s.Tables[i].CreateStatement())
		}
		return nil
	}

	type columnDoc struct {
		Name string `json:"name"`
		Type string `json:"type"`
	}
	type foreignKeyDoc struct {
		Column     string `json:"column"`
		References string `json:"references"`
	}
	type tableDoc struct {
		Name        string          `json:"name"`
		PrimaryKey  string          `json:"primary_key"`
		Columns     []columnDoc     `json:"columns"`
		ForeignKeys []foreignKeyDoc `json:"foreign_keys,omitempty"`
	}
	doc := struct {
		Name     string     `json:"name"`
		Filename string     `json:"filename,omitempty"`
		Tables   []tableDoc `json:"tables"`
	}{Name: s.Name, Filename: s.Filename}

	for _, t := range s.Tables {
		td := tableDoc{Name: t.Name, PrimaryKey: t.PrimaryKey}
		for _, c := range t.Columns {
			typ := string(c.Type)
			if c.Nullable {
				typ += types.NullableMarker
			}
			td.Columns = append(td.Columns, columnDoc{Name: c.Name, Type: typ})
		}
		for _, fk := range t.ForeignKeys {
			td.ForeignKeys = append(td.ForeignKeys, foreignKeyDoc{Column: fk.Column, References: fk.RefTable + "." + fk.RefColumn})
		}
		doc.Tables = append(doc.Tables, td)
	}
	return r.json(doc)
}
