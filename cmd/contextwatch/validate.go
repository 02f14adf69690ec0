package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/23skdu/contextwatch/internal/engine"
	"github.com/23skdu/contextwatch/internal/gguf"
	"github.com/23skdu/contextwatch/internal/inference"
	"github.com/23skdu/contextwatch/internal/ollama"
	"github.com/23skdu/contextwatch/internal/tokenizer"
)

func newValidateCmd() *cobra.Command {
	var (
		modelName string
		prompt    string
		maxTokens int
	)
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Run a short generation and check the token accounting",
		Long: `Analyzes the model file, runs a short generation and checks that
total = prompt + generated, generated <= max tokens, prompt > 0 and that every
tracker recorded exactly one snapshot per generated token.

Without --model the built-in fixture model is used.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			if modelName == "" {
				dir, err := os.MkdirTemp("", "contextwatch-validate-")
				if err != nil {
					return err
				}
				defer func() { _ = os.RemoveAll(dir) }()

				modelName = filepath.Join(dir, "fixture.gguf")
				w, err := engine.NewFixture(engine.FixtureOptions{})
				if err != nil {
					return err
				}
				if err := w.WriteFile(modelName); err != nil {
					return err
				}
			}

			fmt.Fprintln(out, "=== ContextWatch Validation ===")
			fmt.Fprintf(out, "Model:      %s\n", modelName)
			fmt.Fprintf(out, "Prompt:     %q\n", prompt)
			fmt.Fprintf(out, "Max tokens: %d\n\n", maxTokens)

			path, err := ollama.Resolve(modelName)
			if err != nil {
				return err
			}
			f, err := gguf.LoadFile(path)
			if err != nil {
				return err
			}
			analyzer := gguf.NewMetadataAnalyzer(f)
			rep, err := analyzer.Analyze()
			if err != nil {
				return err
			}
			fmt.Fprint(out, rep.String())
			if issues := analyzer.ValidateTensors(); len(issues) > 0 {
				for _, issue := range issues {
					fmt.Fprintf(out, "  %s\n", issue)
				}
				return fmt.Errorf("%d tensor issues found", len(issues))
			}

			e, err := engine.NewFromGGUF(f)
			if err != nil {
				return err
			}
			tok, err := tokenizer.NewFromGGUF(f)
			if err != nil {
				return err
			}

			opts := inference.DefaultOptions()
			opts.MaxTokens = maxTokens
			res, err := inference.Run(cmd.Context(), e, tok, prompt, opts)
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "\nPrompt tokens: %d\n", res.PromptTokenCount)
			fmt.Fprintf(out, "Generated tokens: %d\n", res.GeneratedTokenCount)
			fmt.Fprintf(out, "Total tokens: %d\n", res.TotalTokenCount)
			fmt.Fprintf(out, "Generated text: %q\n", res.GeneratedText)

			if err := res.CheckInvariants(maxTokens); err != nil {
				fmt.Fprintln(out, "\n"+color.RedString("FAILED: %v", err))
				return err
			}
			fmt.Fprintln(out, "\n"+color.GreenString("All assertions passed."))
			return nil
		},
	}

	cmd.Flags().StringVar(&modelName, "model", "", "GGUF path or Ollama model name (default: built-in fixture)")
	cmd.Flags().StringVar(&prompt, "prompt", "Hello", "Text prompt to feed to the model")
	cmd.Flags().IntVar(&maxTokens, "max-tokens", 20, "Maximum number of tokens to generate")
	return cmd
}
