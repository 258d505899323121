package commands

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/entitykit/entitykit/pkg/definition"
	"github.com/entitykit/entitykit/pkg/entity"
)

func newValidateCommand() *cobra.Command {
	var (
		dataFile  string
		className string
	)

	cmd := &cobra.Command{
		Use:   "validate [path]",
		Short: "Validate class definitions and entity data",
		Long: `Validate parses class definitions from a file or directory and reports
every definition that fails structural validation: missing class names,
actions without roles, defaults that violate their own constraints.

With --data, an entity snapshot file (YAML or JSON) is additionally
loaded against one of the classes and every field value is checked.`,
		Example: `  # Validate all definitions in a directory
  entitykit validate definitions/

  # Validate a snapshot against the user class
  entitykit validate definitions/ --data alice.yaml --class user`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loader := definition.NewLoader(commandLogger())

			failures, classes, err := validateDefinitions(loader, args[0])
			if err != nil {
				return err
			}
			for _, f := range failures {
				fmt.Fprintf(cmd.OutOrStdout(), "INVALID  %s: %s\n", f.path, f.reason)
			}

			if dataFile != "" {
				if className == "" {
					return fmt.Errorf("--data requires --class")
				}
				desc, ok := classes[className]
				if !ok {
					return fmt.Errorf("class %q not found in %s", className, args[0])
				}
				e, err := entity.LoadFile(desc, dataFile)
				if err != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "INVALID  %s: %v\n", dataFile, err)
					return fmt.Errorf("validation failed")
				}
				if err := e.Validate(); err != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "INVALID  %s: %v\n", dataFile, err)
					return fmt.Errorf("validation failed")
				}
				fmt.Fprintf(cmd.OutOrStdout(), "OK       %s (class %s)\n", dataFile, className)
			}

			if len(failures) > 0 {
				return fmt.Errorf("%d invalid definition(s)", len(failures))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "OK       %d class(es) valid\n", len(classes))
			return nil
		},
	}

	cmd.Flags().StringVar(&dataFile, "data", "", "entity snapshot file to validate")
	cmd.Flags().StringVar(&className, "class", "", "class to validate the snapshot against")

	return cmd
}

type validationFailure struct {
	path   string
	reason string
}

// validateDefinitions builds every definition under path, collecting
// per-file failures instead of stopping at the first bad one.
func validateDefinitions(loader *definition.Loader, path string) ([]validationFailure, map[string]*entity.Descriptor, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	var files []string
	if info.IsDir() {
		err := filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			switch strings.ToLower(filepath.Ext(p)) {
			case ".yaml", ".yml", ".cue":
				files = append(files, p)
			}
			return nil
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to walk %s: %w", path, err)
		}
	} else {
		files = []string{path}
	}

	var failures []validationFailure
	classes := make(map[string]*entity.Descriptor)
	for _, f := range files {
		desc, err := loader.BuildFile(f, nil)
		if err != nil {
			failures = append(failures, validationFailure{path: f, reason: err.Error()})
			continue
		}
		if _, exists := classes[desc.Type()]; exists {
			failures = append(failures, validationFailure{path: f, reason: fmt.Sprintf("duplicate class %q", desc.Type())})
			continue
		}
		classes[desc.Type()] = desc
	}
	return failures, classes, nil
}
