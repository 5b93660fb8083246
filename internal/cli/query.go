package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/relmap/pkg/types"
)

type queryFlags struct {
	columns []string
	id      string
	where   string
	args    []string
	format  string
}

func newQueryCmd(a *app) *cobra.Command {
	var f queryFlags
	cmd := &cobra.Command{
		Use:   "query <table>",
		Short: "Print records of a table",
		Long: `Query prints records of one declared table. The primary key is always
shown; --columns restricts the other columns.

Values given to --id and --arg are read as JSON when they parse (42, 1.5,
null, "quoted text") and as plain text otherwise.

Example:
  relmap query customer
  relmap query customer --columns name --id 7
  relmap query order --where '"paid" = ? AND "id_customer" = ?' --arg 1 --arg 7`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runQuery(cmd, args[0], f)
		},
	}
	cmd.Flags().StringSliceVarP(&f.columns, "columns", "c", nil, "columns to show (default: all)")
	cmd.Flags().StringVar(&f.id, "id", "", "primary key value of one record")
	cmd.Flags().StringVar(&f.where, "where", "", "SQL condition with ? placeholders")
	cmd.Flags().StringArrayVar(&f.args, "arg", nil, "placeholder value for --where (repeatable)")
	cmd.Flags().StringVar(&f.format, "format", formatTable, "text output format: table, csv or markdown")
	cmd.MarkFlagsMutuallyExclusive("id", "where")
	return cmd
}

func (a *app) runQuery(cmd *cobra.Command, table string, f queryFlags) error {
	if len(f.args) > 0 && f.where == "" {
		return fmt.Errorf("%w: --arg needs --where", errInvalidInput)
	}
	format := strings.ToLower(f.format)
	if err := validFormat(format); err != nil {
		return err
	}
	eng, err := a.openEngine(cmd.Context(), true)
	if err != nil {
		return err
	}
	defer eng.Close()

	t, err := eng.Schema().Table(table)
	if err != nil {
		return err
	}

	var rs *types.RecordSet
	switch {
	case cmd.Flags().Changed("id"):
		id := parseValue(f.id)
		rs, err = eng.Query(cmd.Context(), table, f.columns, &id)
	case f.where != "":
		args := make([]any, len(f.args))
		for i, s := range f.args {
			args[i] = parseValue(s)
		}
		rs, err = eng.RawQuery(cmd.Context(), table, f.columns, f.where, args...)
	default:
		rs, err = eng.Query(cmd.Context(), table, f.columns, nil)
	}
	if err != nil {
		return sysErr(err)
	}

	r := a.renderer(cmd.OutOrStdout())
	r.format = format
	return r.records(t, f.columns, rs)
}

// parseValue reads s as a JSON scalar, falling back to text.
func parseValue(s string) types.Value {
	var v types.Value
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return types.Text(s)
	}
	return v
}
