package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/conversekit/kbresolve/configs"
	"github.com/conversekit/kbresolve/internal/mapping"
)

func newInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a starter .kbresolve.yaml and mapping directory",
		Long: `Write a commented .kbresolve.yaml into the project directory and create
a mapping directory with a sample "city" entity type, ready to fit.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing .kbresolve.yaml")
	return cmd
}

func runInit(cmd *cobra.Command, force bool) error {
	out := newWriter(cmd)

	configPath := filepath.Join(projectDir, ".kbresolve.yaml")
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", configPath)
	}

	if err := os.WriteFile(configPath, []byte(configs.ProjectConfigTemplate), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", configPath, err)
	}
	out.Successf("wrote %s", configPath)

	sampleDir := filepath.Join(projectDir, "mappings", "city")
	samplePath := filepath.Join(sampleDir, mapping.MappingFileName)
	if _, err := os.Stat(samplePath); err == nil {
		out.Dim("mapping directory already present, leaving it alone")
		return nil
	}

	if err := os.MkdirAll(sampleDir, 0o755); err != nil {
		return fmt.Errorf("failed to create mapping directory: %w", err)
	}
	if err := os.WriteFile(samplePath, []byte(configs.SampleMapping), 0o644); err != nil {
		return fmt.Errorf("failed to write sample mapping: %w", err)
	}
	out.Successf("wrote %s", samplePath)
	out.Plain("next: kbresolve fit")
	return nil
}
