package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"nimp/internal/knowledge"
)

var (
	kbJSON  bool
	kbForce bool
)

// kbCmd groups knowledge base maintenance commands
var kbCmd = &cobra.Command{
	Use:   "kb",
	Short: "Inspect and edit the knowledge base",
}

var kbShowCmd = &cobra.Command{
	Use:   "show",
	Short: "List every classification",
	Args:  cobra.NoArgs,
	RunE:  kbShow,
}

var kbCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Check the knowledge base for redirect cycles, dangling redirects and conflicts",
	Args:  cobra.NoArgs,
	RunE:  kbCheck,
}

var kbClassifyCmd = &cobra.Command{
	Use:   "classify [type] [classification]",
	Short: "Record how a type is built",
	Long: `Records a classification for a type name. The classification is one of
ref (or !r), object (or !o), "redirect: <type>" or "literal: <expr>".

Example:
  nimp kb classify AsyncFD "redirect: int"
  nimp kb classify Direction "literal: Direction.north"`,
	Args: cobra.ExactArgs(2),
	RunE: kbClassify,
}

func init() {
	kbShowCmd.Flags().BoolVar(&kbJSON, "json", false, "Print the snapshot as JSON")
	kbClassifyCmd.Flags().BoolVar(&kbForce, "force", false, "Replace an existing classification")

	kbCmd.AddCommand(kbShowCmd)
	kbCmd.AddCommand(kbCheckCmd)
	kbCmd.AddCommand(kbClassifyCmd)
}

// loadKnowledge opens the configured store and returns the seeded base merged
// with what it holds.
func loadKnowledge(cmd *cobra.Command) (*knowledge.Base, knowledge.Store, func() error, error) {
	store, closeStore, err := openStore(cfg, false)
	if err != nil {
		return nil, nil, nil, err
	}
	base := knowledge.Seed()
	if err := knowledge.LoadInto(cmd.Context(), store, base); err != nil {
		closeStore()
		return nil, nil, nil, err
	}
	return base, store, closeStore, nil
}

func kbShow(cmd *cobra.Command, args []string) error {
	base, _, closeStore, err := loadKnowledge(cmd)
	if err != nil {
		return err
	}
	defer closeStore()

	if kbJSON {
		return knowledge.Encode(cmd.OutOrStdout(), base)
	}
	return printMarkdown(cmd.OutOrStdout(), renderKnowledge(base))
}

func kbCheck(cmd *cobra.Command, args []string) error {
	base, _, closeStore, err := loadKnowledge(cmd)
	if err != nil {
		return err
	}
	defer closeStore()

	report, err := knowledge.Check(cmd.Context(), base)
	if err != nil {
		return err
	}
	if err := printMarkdown(cmd.OutOrStdout(), renderCheck(report)); err != nil {
		return err
	}
	if !report.OK() {
		return fmt.Errorf("knowledge base has %d cycles, %d dangling redirects and %d conflicts",
			len(report.Cycles), len(report.Dangling), len(report.Conflicts))
	}
	return nil
}

func kbClassify(cmd *cobra.Command, args []string) error {
	name := args[0]
	c, err := knowledge.ParseClassification(args[1])
	if err != nil {
		return err
	}

	base, store, closeStore, err := loadKnowledge(cmd)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := base.Classify(name, c); err != nil {
		if !kbForce || !errors.Is(err, knowledge.ErrConflict) {
			return err
		}
		logger.Info("replacing classification", zap.String("type", name), zap.Stringer("with", c))
		base.Shadow(name, c)
	}
	if err := store.Save(cmd.Context(), base); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", name, c)
	return nil
}
