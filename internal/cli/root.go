// Package cli implements the relmap command-line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/relmap/internal/paths"
	"github.com/mesh-intelligence/relmap/pkg/relmap"
	"github.com/mesh-intelligence/relmap/pkg/types"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

// rootFlags holds global flag values accessible to all subcommands.
type rootFlags struct {
	configDir string
	dataDir   string
	jsonMode  bool
	verbose   bool
}

// app is the state shared by the subcommands of one root command.
type app struct {
	flags     rootFlags
	configDir string
	settings  settings
	logger    *slog.Logger
}

// NewRootCmd creates the top-level "relmap" command with global flags and
// all subcommands registered.
func NewRootCmd() *cobra.Command {
	a := &app{logger: slog.New(slog.DiscardHandler)}
	root := &cobra.Command{
		Use:     "relmap",
		Short:   "Declarative SQLite schemas and object mapping",
		Long:    "relmap keeps a SQLite database in line with a declared schema and moves\nrecords in and out of it.",
		Version: relmap.Version,
		// Do not print usage on errors returned by subcommands.
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.prepare,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.flags.configDir, "config-dir", "", "configuration directory (default: $(CWD)/"+paths.DefaultConfigDirName+" or the platform config dir)")
	pf.StringVar(&a.flags.dataDir, "data-dir", "", "data directory (default: $(CWD)/"+paths.DefaultDataDirName+")")
	pf.BoolVar(&a.flags.jsonMode, "json", false, "output in JSON format")
	pf.BoolVarP(&a.flags.verbose, "verbose", "v", false, "log at debug level")
	pf.String("schema-file", "", "schema definition document (overrides config.yaml)")
	pf.String("mapping-file", "", "mapping definition document (overrides config.yaml)")
	pf.String("log-level", "", "log level: debug, info, warn or error")
	pf.String("log-format", "", "log format: text or json")

	root.AddCommand(
		newVersionCmd(),
		newInitCmd(a),
		newSyncCmd(a),
		newSchemaCmd(a),
		newQueryCmd(a),
		newPutCmd(a),
		newExportCmd(a),
		newImportCmd(a),
	)
	return root
}

// Execute runs the root command and exits with the appropriate code.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, NewRootCmd(), os.Args[1:], os.Stderr)
	stop()
	os.Exit(code)
}

// run executes root with args and maps the outcome to an exit code.
func run(ctx context.Context, root *cobra.Command, args []string, stderr io.Writer) int {
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(stderr, "relmap:", err)
		return exitCode(err)
	}
	return exitSuccess
}

// errInvalidInput reports malformed command input: a record that is not a
// JSON object of the table, or flags that do not fit together.
var errInvalidInput = errors.New("invalid input")

// systemError marks a failure of the environment rather than of the input:
// the database, the file system or the watcher.
type systemError struct{ err error }

func (e *systemError) Error() string { return e.err.Error() }

func (e *systemError) Unwrap() error { return e.err }

// sysErr wraps err as a systemError unless it reports bad input.
func sysErr(err error) error {
	if err == nil || userFacing(err) {
		return err
	}
	return &systemError{err: err}
}

func userFacing(err error) bool {
	for _, target := range []error{
		types.ErrInvalidConfig,
		errInvalidInput,
		types.ErrTableNotFound,
		types.ErrColumnNotFound,
		types.ErrRecordNotFound,
		types.ErrObjectNotDefined,
		types.ErrTypeMismatch,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func exitCode(err error) int {
	var se *systemError
	if errors.As(err, &se) {
		return exitSysError
	}
	return exitUserError
}
