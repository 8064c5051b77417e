package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"nimp/internal/pipeline"
	"nimp/internal/repair"
)

var genOpts runOptions

// generateCmd generates and compiles calls for one or more libraries
var generateCmd = &cobra.Command{
	Use:   "generate [libs...]",
	Short: "Generate a call for every procedure of the given libraries and compile them",
	Long: `Extracts the documented procedures of each library with nim jsondoc,
synthesizes an argument value for every parameter and writes one call per
procedure to the staging file. The file is then compiled; each call the
compiler rejects is commented out until the file builds.

Libraries are given relative to <nim root>/lib, without extension.

Example:
  nimp generate pure/strutils pure/httpclient
  nimp generate --no-cache --resolver default pure/json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runGenerate,
}

// compileCmd recompiles the staging file without regenerating it
var compileCmd = &cobra.Command{
	Use:   "compile",
	Short: "Compile and repair the existing staging file",
	Long: `Reads the staging file left by a previous run (possibly edited by
hand) and runs the compile-and-repair loop on it.`,
	Args: cobra.NoArgs,
	RunE: runCompile,
}

func init() {
	generateCmd.Flags().BoolVar(&genOpts.noCache, "no-cache", false, "Don't read or write the knowledge store")
	generateCmd.Flags().BoolVar(&genOpts.noRepair, "no-repair", false, "Only write the staging file, don't compile it")
	generateCmd.Flags().StringVar(&genOpts.resolver, "resolver", "", "Resolver mode: prompt, tui, default or gemini")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	p, closeStore, err := newPipeline(ctx, cfg, genOpts, os.Stdin, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer closeStore()

	logger.Info("generating calls", zap.Strings("libs", args))
	report, err := p.Run(ctx, args)
	return finishRun(cmd, report, err)
}

func runCompile(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	p, closeStore, err := newPipeline(ctx, cfg, runOptions{noCache: true, resolver: "default"}, os.Stdin, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer closeStore()

	logger.Info("compiling staging file", zap.String("path", cfg.Nim.StagingPath))
	report, err := p.CompileOnly(ctx)
	return finishRun(cmd, report, err)
}

// finishRun prints the report, if any, and turns the run error into the
// command error.
func finishRun(cmd *cobra.Command, report *pipeline.Report, err error) error {
	if report != nil {
		if perr := printMarkdown(cmd.OutOrStdout(), renderReport(report)); perr != nil {
			logger.Warn("report rendering failed", zap.Error(perr))
		}
		logger.Info("run finished",
			zap.Int("attempted", report.Attempted),
			zap.Int("compiled", report.Compiled),
			zap.Int("removed", report.Removed),
			zap.Bool("success", report.Success),
			zap.Duration("duration", report.Duration))
	}
	if err == nil {
		return nil
	}
	if errors.Is(err, repair.ErrUnrepairable) && report != nil {
		return fmt.Errorf("cannot backtrace, partial unit left at %s: %w", report.StagingPath, err)
	}
	return err
}
