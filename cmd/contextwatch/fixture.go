package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/23skdu/contextwatch/internal/engine"
	"github.com/23skdu/contextwatch/internal/logger"
)

func newFixtureCmd() *cobra.Command {
	var (
		out   string
		opts  engine.FixtureOptions
		words []string
	)
	cmd := &cobra.Command{
		Use:   "fixture",
		Short: "Write a small self-contained GGUF model for smoke runs",
		Long: `Writes a tiny model whose greedy continuation walks a fixed word chain and
ends with the end-of-sequence token after the last word.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Words = words
			w, err := engine.NewFixture(opts)
			if err != nil {
				return err
			}
			if err := w.WriteFile(out); err != nil {
				return fmt.Errorf("failed to write fixture: %w", err)
			}
			logger.Log.Info("Fixture written", "path", out, "context_length", opts.ContextLength, "f16", opts.F16)
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "output", "o", "fixture.gguf", "Output path")
	cmd.Flags().IntVar(&opts.ContextLength, "context-length", 64, "Context length written to the model metadata")
	cmd.Flags().BoolVar(&opts.F16, "f16", false, "Store weights as F16")
	cmd.Flags().StringSliceVar(&words, "words", nil, "Word chain (default: built-in sentence)")
	return cmd
}
