package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newExportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "export <dir>",
		Short: "Write every table to JSONL files",
		Long:  "Export writes one <table>.jsonl file per declared table into dir. Each\nfile is replaced atomically.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := a.openEngine(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer eng.Close()

			n, err := eng.Export(cmd.Context(), args[0])
			if err != nil {
				return sysErr(err)
			}
			return a.reportTransfer(cmd, "exported", n, args[0])
		},
	}
}

func newImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import <dir>",
		Short: "Load JSONL files into the tables",
		Long: "Import reads <table>.jsonl for every declared table found in dir and saves\n" +
			"the records in one transaction. Malformed lines and undeclared fields are\n" +
			"skipped with a warning.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := a.openEngine(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer eng.Close()

			n, err := eng.Import(cmd.Context(), args[0])
			if err != nil {
				return sysErr(err)
			}
			return a.reportTransfer(cmd, "imported", n, args[0])
		},
	}
}

func (a *app) reportTransfer(cmd *cobra.Command, verb string, n int, dir string) error {
	if a.flags.jsonMode {
		return a.renderer(cmd.OutOrStdout()).json(map[string]any{verb: n, "dir": dir})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %d records (%s)\n", verb, n, dir)
	return nil
}
