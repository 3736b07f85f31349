package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "masedb",
		Short:         "evaluate filters, apply updates and run transactions against a MaseDB store",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(evalCmd(), applyCmd(), runCmd(), serveCmd())
	return cmd
}
