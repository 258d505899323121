package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose    bool
	jsonOutput bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "entitykit",
		Short: "EntityKit - Schema-driven entity runtime",
		Long: `EntityKit is a schema-driven entity runtime: classes declared in YAML or
CUE files become validated, role-guarded entities with a lifecycle state
machine and dispatchable actions.

Features:
  - Typed field constraints with per-write validation
  - Lifecycle state machine (DRAFT, VALIDATED, COMMITTED, ARCHIVED)
  - Role-authorized action dispatch with OPA/rego policies
  - Starlark action bodies in class definitions
  - Snapshot persistence to YAML, JSON, and SQLite
  - Hot reload of definitions on file change`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newInspectCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newWatchCommand())
	rootCmd.AddCommand(newStoreCommand())

	return rootCmd
}
