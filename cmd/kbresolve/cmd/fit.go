package cmd

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/conversekit/kbresolve/internal/config"
	"github.com/conversekit/kbresolve/internal/mapping"
	"github.com/conversekit/kbresolve/internal/output"
	"github.com/conversekit/kbresolve/internal/resolver"
)

// fitOptions holds CLI flags for fit.
type fitOptions struct {
	clean bool
	watch bool
}

func newFitCmd() *cobra.Command {
	var opts fitOptions

	cmd := &cobra.Command{
		Use:   "fit [entity-type...]",
		Short: "Build synonym indexes from mapping files",
		Long: `Build the synonym indexes and in-memory tables from mapping files.

With no arguments, every entity type under the mapping directory is fitted.
A clean fit deletes and recreates each index so records removed from the
mapping files do not linger.

Examples:
  kbresolve fit
  kbresolve fit city restaurant
  kbresolve fit --clean
  kbresolve fit --watch`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFit(cmd.Context(), cmd, args, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.clean, "clean", false, "Delete and recreate indexes before fitting")
	cmd.Flags().BoolVarP(&opts.watch, "watch", "w", false, "Keep running and refit when mapping files change")

	return cmd
}

func runFit(ctx context.Context, cmd *cobra.Command, args []string, opts fitOptions) error {
	cfg, root, err := loadConfig()
	if err != nil {
		return err
	}

	reg := openRegistry(cfg, root)
	defer func() { _ = reg.Close() }()
	out := newWriter(cmd)

	types := args
	if len(types) == 0 {
		types, err = reg.EntityTypes()
		if err != nil {
			return err
		}
	}
	if len(types) == 0 {
		out.Warning("no entity types found under the mapping directory")
		return nil
	}

	for _, entityType := range types {
		if err := reg.Resolver(entityType).Fit(ctx, opts.clean); err != nil {
			out.Errorf("fit %s: %v", entityType, err)
			return err
		}
		out.Successf("fitted %s", entityType)
	}

	if !opts.watch {
		return nil
	}
	return watchMappings(ctx, cfg, root, reg, out)
}

// watchMappings blocks, refitting an entity type whenever its mapping file
// changes, until interrupted.
func watchMappings(ctx context.Context, cfg *config.Config, root string, reg *resolver.Registry, out *output.Writer) error {
	debounce, err := cfg.WatchDebounce()
	if err != nil {
		return err
	}

	watchCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	watcher, err := mapping.NewWatcher(mappingLoader(cfg, root), func(entityType string) {
		if err := reg.Resolver(entityType).Fit(watchCtx, false); err != nil {
			slog.Error("watch_refit_failed",
				slog.String("entity_type", entityType),
				slog.String("error", err.Error()))
			out.Errorf("refit %s: %v", entityType, err)
			return
		}
		out.Successf("refitted %s", entityType)
	})
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()
	watcher.SetDebounce(debounce)

	out.Plain("watching for mapping changes (ctrl-c to stop)")
	if err := watcher.Start(watchCtx); err != nil && watchCtx.Err() == nil {
		return err
	}
	return nil
}
