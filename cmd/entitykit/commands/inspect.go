package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/entitykit/entitykit/pkg/definition"
	"github.com/entitykit/entitykit/pkg/entity"
)

func newInspectCommand() *cobra.Command {
	var (
		showActions bool
		className   string
	)

	cmd := &cobra.Command{
		Use:   "inspect [path]",
		Short: "Inspect class definitions",
		Long: `Inspect loads class definitions from a file or directory and prints
the resolved schema for each class: declared fields, constraints,
defaults, and the storage strategy.

With --actions the exported action table (profiles, roles, required
parameters) is included.`,
		Example: `  # Inspect a single definition file
  entitykit inspect definitions/user.yaml

  # Inspect a directory, one class only, with actions
  entitykit inspect definitions/ --class user --actions

  # JSON output
  entitykit inspect definitions/ --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loader := definition.NewLoader(commandLogger())

			classes, err := buildClasses(loader, args[0])
			if err != nil {
				return err
			}
			if className != "" {
				desc, ok := classes[className]
				if !ok {
					return fmt.Errorf("class %q not found in %s", className, args[0])
				}
				classes = map[string]*entity.Descriptor{className: desc}
			}

			names := make([]string, 0, len(classes))
			for name := range classes {
				names = append(names, name)
			}
			sort.Strings(names)

			out := make([]map[string]interface{}, 0, len(names))
			for _, name := range names {
				desc := classes[name]
				info := desc.DescribeSchema()
				if showActions {
					info["actions"] = desc.ExportActions()
				}
				out = append(out, info)
			}

			return printOutput(cmd, out)
		},
	}

	cmd.Flags().BoolVar(&showActions, "actions", false, "include the action table")
	cmd.Flags().StringVar(&className, "class", "", "inspect a single class")

	return cmd
}

// buildClasses builds descriptors from a definition file or directory.
func buildClasses(loader *definition.Loader, path string) (map[string]*entity.Descriptor, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return loader.BuildDir(path, nil)
	}
	desc, err := loader.BuildFile(path, nil)
	if err != nil {
		return nil, err
	}
	return map[string]*entity.Descriptor{desc.Type(): desc}, nil
}

// commandLogger returns the logger used by command implementations,
// honoring the global --verbose flag.
func commandLogger() zerolog.Logger {
	if verbose {
		return log.Logger.Level(zerolog.DebugLevel)
	}
	return log.Logger
}

// printOutput renders v as YAML, or JSON when --json is set.
func printOutput(cmd *cobra.Command, v interface{}) error {
	if jsonOutput {
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal output: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	fmt.Fprint(cmd.OutOrStdout(), string(data))
	return nil
}
