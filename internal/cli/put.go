package cli

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/relmap/internal/sqlite"
	"github.com/mesh-intelligence/relmap/pkg/types"
)

func newPutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "put <table> [json...]",
		Short: "Insert or update records of a table",
		Long: `Put saves one record per JSON object. Objects come from the arguments or,
when there are none, one per line from standard input. A record whose primary
key already exists is updated; columns left out of the object are set to NULL.

Example:
  relmap put customer '{"id_customer": 1, "name": "ann"}'
  relmap put customer < customers.jsonl`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runPut(cmd, args[0], args[1:])
		},
	}
}

func (a *app) runPut(cmd *cobra.Command, table string, objects []string) error {
	eng, err := a.openEngine(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer eng.Close()

	t, err := eng.Schema().Table(table)
	if err != nil {
		return err
	}

	lines := make([]json.RawMessage, 0, len(objects))
	for _, o := range objects {
		lines = append(lines, json.RawMessage(o))
	}
	if len(objects) == 0 {
		scanner := bufio.NewScanner(cmd.InOrStdin())
		scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}
			lines = append(lines, json.RawMessage(bytes.Clone(line)))
		}
		if err := scanner.Err(); err != nil {
			return sysErr(fmt.Errorf("read stdin: %w", err))
		}
	}

	rs := types.NewRecordSet()
	rs.EnsureGroup(t.Name)
	for i, line := range lines {
		r, dropped, err := sqlite.DecodeRecord(t, line)
		if err != nil {
			return fmt.Errorf("%w: record %d: %w", errInvalidInput, i+1, err)
		}
		if len(dropped) > 0 {
			return types.ColumnNotFound(t.Name, dropped[0])
		}
		if !rs.MergeRecord(r) {
			a.logger.Warn("duplicate primary key, first record kept", "table", t.Name, "id", r.ID.String())
		}
	}

	if err := eng.Save(cmd.Context(), rs); err != nil {
		return sysErr(err)
	}
	if a.flags.jsonMode {
		return a.renderer(cmd.OutOrStdout()).json(map[string]int{"saved": rs.Len()})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "saved %d records to %s\n", rs.Len(), t.Name)
	return nil
}
