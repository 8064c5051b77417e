package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"nimp/internal/watch"
)

var (
	watchOpts     runOptions
	watchDebounce time.Duration
)

// watchCmd regenerates libraries whenever their sources change
var watchCmd = &cobra.Command{
	Use:   "watch [libs...]",
	Short: "Regenerate and compile a library each time its source file changes",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runWatch,
}

func init() {
	watchCmd.Flags().BoolVar(&watchOpts.noCache, "no-cache", false, "Don't read or write the knowledge store")
	watchCmd.Flags().BoolVar(&watchOpts.noRepair, "no-repair", false, "Only write the staging file, don't compile it")
	watchCmd.Flags().StringVar(&watchOpts.resolver, "resolver", "", "Resolver mode: prompt, tui, default or gemini")
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", watch.DefaultDebounce, "Quiet period before a change is acted on")
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	p, closeStore, err := newPipeline(ctx, cfg, watchOpts, os.Stdin, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer closeStore()

	sources := make(map[string]string, len(args))
	for _, lib := range args {
		sources[lib] = cfg.LibraryPath(lib)
	}

	rerun := func(ctx context.Context, lib string) error {
		logger.Info("source changed", zap.String("lib", lib))
		report, err := p.Run(ctx, []string{lib})
		if ferr := finishRun(cmd, report, err); ferr != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), ferr)
			return ferr
		}
		return nil
	}

	report, err := p.Run(ctx, args)
	if ferr := finishRun(cmd, report, err); ferr != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), ferr)
	}

	w, err := watch.New(sources, rerun, watchDebounce)
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		return err
	}
	defer w.Stop()

	fmt.Fprintf(cmd.OutOrStdout(), "Watching %d libraries, press Ctrl+C to stop\n", len(sources))
	<-w.Done()
	return nil
}
