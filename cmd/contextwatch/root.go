package main

import (
	"github.com/spf13/cobra"

	"github.com/23skdu/contextwatch/internal/logger"
)

type rootFlags struct {
	configFile string
	logLevel   string
	logFormat  string
}

func newRootCmd() *cobra.Command {
	rf := &rootFlags{}
	cmd := &cobra.Command{
		Use:   "contextwatch",
		Short: "Controlled LLM inference with token accounting",
		Long: `contextwatch drives a model one token at a time with greedy decoding and
tracks context window usage, per-token latency and process memory as it goes.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger.Setup(rf.logLevel, rf.logFormat)
		},
	}

	cmd.PersistentFlags().StringVar(&rf.configFile, "config", "", "YAML run file; flags override its values")
	cmd.PersistentFlags().StringVar(&rf.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&rf.logFormat, "log-format", "console", "Log format (console or json)")

	cmd.AddCommand(
		newRunCmd(rf),
		newValidateCmd(),
		newFixtureCmd(),
		newVersionCmd(),
	)
	return cmd
}
