// Package cmd provides the CLI commands for kbresolve.
package cmd

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/conversekit/kbresolve/internal/backend"
	"github.com/conversekit/kbresolve/internal/config"
	"github.com/conversekit/kbresolve/internal/logging"
	"github.com/conversekit/kbresolve/internal/mapping"
	"github.com/conversekit/kbresolve/internal/output"
	"github.com/conversekit/kbresolve/internal/profiling"
	"github.com/conversekit/kbresolve/internal/resolver"
	"github.com/conversekit/kbresolve/pkg/version"
)

var (
	debugMode      bool
	quietMode      bool
	projectDir     string
	loggingCleanup func()

	profileCPU   string
	profileMem   string
	profileTrace string
	profiler     = profiling.NewProfiler()
	cpuCleanup   func()
	traceCleanup func()
)

// NewRootCmd creates the root command for the kbresolve CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kbresolve",
		Short: "Entity canonicalization and resolution engine",
		Long: `kbresolve resolves entity mentions ("big apple", "SEA") to canonical
knowledge-base records, using per-entity-type mapping files.

It keeps an exact synonym table in memory and a ranked fuzzy index on disk,
built from <mapping-dir>/<entity-type>/mapping.json files.

Typical flow:
  kbresolve fit              # build indexes from mapping files
  kbresolve resolve city SEA # resolve a mention`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("kbresolve version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&projectDir, "dir", "C", ".", "Project directory")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.kbresolve/logs/")
	cmd.PersistentFlags().BoolVarP(&quietMode, "quiet", "q", false, "Suppress everything except errors")
	cmd.PersistentFlags().StringVar(&profileCPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&profileMem, "profile-mem", "", "Write memory profile to file")
	cmd.PersistentFlags().StringVar(&profileTrace, "profile-trace", "", "Write execution trace to file")

	cmd.PersistentPreRunE = startLoggingAndProfiling
	cmd.PersistentPostRunE = stopLoggingAndProfiling

	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newFitCmd())
	cmd.AddCommand(newResolveCmd())
	cmd.AddCommand(newEntitiesCmd())
	cmd.AddCommand(newLogsCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// startLoggingAndProfiling enables file logging (debug level with --debug)
// and starts CPU/trace profiling when requested.
func startLoggingAndProfiling(_ *cobra.Command, _ []string) error {
	cfg := logging.DefaultConfig()
	cfg.WriteToStderr = false
	if debugMode {
		cfg = logging.DebugConfig()
	}

	logger, cleanup, err := logging.Setup(cfg)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)

	if profileCPU != "" {
		if cpuCleanup, err = profiler.StartCPU(profileCPU); err != nil {
			return fmt.Errorf("failed to start CPU profile: %w", err)
		}
	}
	if profileTrace != "" {
		if traceCleanup, err = profiler.StartTrace(profileTrace); err != nil {
			if cpuCleanup != nil {
				cpuCleanup()
				cpuCleanup = nil
			}
			return fmt.Errorf("failed to start trace: %w", err)
		}
	}
	return nil
}

func stopLoggingAndProfiling(_ *cobra.Command, _ []string) error {
	if cpuCleanup != nil {
		cpuCleanup()
		cpuCleanup = nil
	}
	if traceCleanup != nil {
		traceCleanup()
		traceCleanup = nil
	}
	if profileMem != "" {
		if err := profiler.WriteHeap(profileMem); err != nil {
			return fmt.Errorf("failed to write memory profile: %w", err)
		}
	}
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// loadConfig resolves the project root and loads configuration for it.
func loadConfig() (*config.Config, string, error) {
	root, err := config.FindProjectRoot(projectDir)
	if err != nil {
		root = projectDir
	}
	cfg, err := config.Load(root)
	if err != nil {
		return nil, "", err
	}
	return cfg, root, nil
}

// openRegistry wires a resolver registry from configuration. The caller owns
// the registry and must Close it.
func openRegistry(cfg *config.Config, root string) *resolver.Registry {
	mappingDir := cfg.Paths.MappingDir
	if !filepath.IsAbs(mappingDir) {
		mappingDir = filepath.Join(root, mappingDir)
	}

	be := backend.New(cfg.Paths.DataDir, nil, backend.Boosts{
		Exact: cfg.Index.ExactBoost,
		Text:  cfg.Index.TextBoost,
		Ngram: cfg.Index.NgramBoost,
	})
	lifecycle := resolver.NewLifecycle(be, cfg.Paths.DataDir)
	loader := mapping.NewLoader(mappingDir)

	return resolver.NewRegistry(be, lifecycle, loader, nil, resolver.Config{
		TopK:        cfg.Resolve.TopK,
		BatchSize:   cfg.Index.BatchSize,
		MaxInFlight: cfg.Index.MaxInFlight,
		MaxGroups:   cfg.Resolve.MaxGroups,
		GroupSample: cfg.Resolve.GroupSample,
		CacheSize:   cfg.Resolve.CacheSize,
	})
}

// newWriter creates the console writer for a command, honoring --quiet.
func newWriter(cmd *cobra.Command) *output.Writer {
	out := output.NewAuto(cmd.OutOrStdout())
	out.SetQuiet(quietMode)
	return out
}

// mappingLoader returns the mapping loader for the configured directory.
func mappingLoader(cfg *config.Config, root string) *mapping.Loader {
	dir := cfg.Paths.MappingDir
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(root, dir)
	}
	return mapping.NewLoader(dir)
}
