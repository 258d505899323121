package commands

import (
	"github.com/spf13/cobra"

	"github.com/entitykit/entitykit/pkg/definition"
	"github.com/entitykit/entitykit/pkg/entity"
)

func newWatchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch [path...]",
		Short: "Watch definition files and rebuild on change",
		Long: `Watch monitors definition files and directories for changes and rebuilds
the affected classes when a file is written. Each rebuild is logged with
the resulting class list; a failed rebuild keeps the previous classes.

Runs until interrupted.`,
		Example: `  # Watch a directory of definitions
  entitykit watch definitions/

  # Watch multiple paths
  entitykit watch definitions/ extra/user.yaml`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := commandLogger()
			loader := definition.NewLoader(logger)

			w := definition.NewWatcher(loader, nil, logger)
			defer w.Close()

			ctx := cmd.Context()
			reload := func(classes map[string]*entity.Descriptor) error {
				names := make([]string, 0, len(classes))
				for name := range classes {
					names = append(names, name)
				}
				logger.Info().Strs("classes", names).Msg("Definitions rebuilt")
				return nil
			}

			if err := w.Watch(ctx, args, reload); err != nil {
				return err
			}
			logger.Info().Strs("paths", args).Msg("Watching for definition changes")

			<-ctx.Done()
			return nil
		},
	}

	return cmd
}
