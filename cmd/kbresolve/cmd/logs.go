package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/conversekit/kbresolve/internal/logging"
)

func newLogsCmd() *cobra.Command {
	var (
		file string
		tail int
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show recent log entries",
		Long: `Print the tail of the kbresolve log file. Logs are only written when a
command runs with --debug, or once a default-level event occurs.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogs(cmd, file, tail)
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "Log file path (default: ~/.kbresolve/logs/kbresolve.log)")
	cmd.Flags().IntVarP(&tail, "tail", "n", 50, "Number of trailing lines to print")
	return cmd
}

func runLogs(cmd *cobra.Command, file string, tail int) error {
	path, err := logging.FindLogFile(file)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read log file: %w", err)
	}

	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if tail > 0 && len(lines) > tail {
		lines = lines[len(lines)-tail:]
	}
	for _, line := range lines {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), line)
	}
	return nil
}
