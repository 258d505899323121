package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/entitykit/entitykit/pkg/definition"
	"github.com/entitykit/entitykit/pkg/entity"
	"github.com/entitykit/entitykit/pkg/stores"
)

func newStoreCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "store",
		Short: "Manage the entity store",
		Long: `Store manages entity snapshots persisted in a SQLite database:
importing snapshot files, listing stored entities, and reading the
audit trail.`,
	}

	cmd.AddCommand(newStoreImportCommand())
	cmd.AddCommand(newStoreListCommand())
	cmd.AddCommand(newStoreAuditCommand())

	return cmd
}

func newStoreImportCommand() *cobra.Command {
	var (
		dbPath    string
		defPath   string
		className string
	)

	cmd := &cobra.Command{
		Use:   "import [snapshot...]",
		Short: "Import snapshot files into the store",
		Long: `Import loads one or more entity snapshot files (YAML or JSON) against a
class definition and persists them. Each import is recorded in the
audit trail.`,
		Example: `  entitykit store import alice.yaml bob.json \
      --db entities.db --definitions definitions/ --class user`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loader := definition.NewLoader(commandLogger())
			classes, err := buildClasses(loader, defPath)
			if err != nil {
				return err
			}
			desc, ok := classes[className]
			if !ok {
				return fmt.Errorf("class %q not found in %s", className, defPath)
			}

			store, err := openStore(cmd, dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := cmd.Context()
			for _, path := range args {
				e, err := entity.LoadFile(desc, path)
				if err != nil {
					return fmt.Errorf("failed to load %s: %w", path, err)
				}
				if err := store.SaveEntity(ctx, e); err != nil {
					return fmt.Errorf("failed to save %s: %w", path, err)
				}
				if err := store.AppendAudit(ctx, &stores.AuditEntry{
					EntityID: e.ID(),
					Action:   "import",
					Profile:  "command",
					Actor:    "cli",
					Outcome:  "ok",
				}); err != nil {
					return fmt.Errorf("failed to record audit for %s: %w", path, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "imported %s as %s\n", path, e.ID())
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "entities.db", "SQLite database path")
	cmd.Flags().StringVar(&defPath, "definitions", "", "definition file or directory")
	cmd.Flags().StringVar(&className, "class", "", "class to import the snapshots as")
	cmd.MarkFlagRequired("definitions")
	cmd.MarkFlagRequired("class")

	return cmd
}

func newStoreListCommand() *cobra.Command {
	var (
		dbPath     string
		entityType string
		limit      int
		offset     int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored entities",
		Example: `  entitykit store list --db entities.db
  entitykit store list --db entities.db --type user --limit 10`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd, dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := store.ListRecords(cmd.Context(), entityType, limit, offset)
			if err != nil {
				return err
			}

			out := make([]map[string]interface{}, 0, len(records))
			for _, rec := range records {
				out = append(out, map[string]interface{}{
					"id":      rec.ID,
					"type":    rec.EntityType,
					"state":   rec.State,
					"version": rec.Version,
					"updated": rec.UpdatedAt,
				})
			}
			return printOutput(cmd, out)
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "entities.db", "SQLite database path")
	cmd.Flags().StringVar(&entityType, "type", "", "filter by entity type")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum records to return")
	cmd.Flags().IntVar(&offset, "offset", 0, "records to skip")

	return cmd
}

func newStoreAuditCommand() *cobra.Command {
	var (
		dbPath   string
		entityID string
		action   string
		limit    int
	)

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Read the audit trail",
		Example: `  entitykit store audit --db entities.db
  entitykit store audit --db entities.db --entity u-1 --action promote`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd, dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			var idFilter, actionFilter *string
			if entityID != "" {
				idFilter = &entityID
			}
			if action != "" {
				actionFilter = &action
			}

			entries, err := store.ListAudit(cmd.Context(), idFilter, actionFilter, limit, 0)
			if err != nil {
				return err
			}

			out := make([]map[string]interface{}, 0, len(entries))
			for _, entry := range entries {
				row := map[string]interface{}{
					"entity":    entry.EntityID,
					"action":    entry.Action,
					"profile":   entry.Profile,
					"actor":     entry.Actor,
					"outcome":   entry.Outcome,
					"timestamp": entry.Timestamp,
				}
				if entry.Details != nil {
					row["details"] = *entry.Details
				}
				out = append(out, row)
			}
			return printOutput(cmd, out)
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "entities.db", "SQLite database path")
	cmd.Flags().StringVar(&entityID, "entity", "", "filter by entity id")
	cmd.Flags().StringVar(&action, "action", "", "filter by action name")
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum entries to return")

	return cmd
}

// openStore opens and migrates the SQLite store at path.
func openStore(cmd *cobra.Command, path string) (*stores.SQLiteStore, error) {
	store, err := stores.NewSQLiteStore(stores.Config{Path: path})
	if err != nil {
		return nil, err
	}
	ctx := cmd.Context()
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("failed to open store %s: %w", path, err)
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to migrate store %s: %w", path, err)
	}
	return store, nil
}
