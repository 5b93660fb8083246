package cli

import (
	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/relmap/internal/config"
)

func newSchemaCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the declared schema",
		Long:  "Print the CREATE TABLE statement of every declared table, or the schema\ndocument with --json. The database is not opened.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := config.LoadSchema(a.settings.SchemaFile)
			if err != nil {
				return sysErr(err)
			}
			if a.settings.MappingFile != "" {
				if _, err := config.LoadMapping(a.settings.MappingFile, s); err != nil {
					return sysErr(err)
				}
			}
			return a.renderer(cmd.OutOrStdout()).schema(s)
		},
	}
}
