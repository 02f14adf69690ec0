package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/23skdu/contextwatch/internal/monitoring"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of contextwatch",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "contextwatch version %s\n", monitoring.Version)
		},
	}
}
