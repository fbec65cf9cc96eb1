// Command lampctl is the operator tool for the wish oracle: it encodes and
// decodes hoard instructions and account data, inspects payout tiers, runs
// database migrations and issues admin tokens.
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/rub-lamp/oracle_layer/internal/cli"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "lampctl",
		Short:         "Operator tool for the wish oracle",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		encodeCmd(),
		decodeCmd(),
		tierCmd(),
		rentCmd(),
		migrateCmd(),
		tokenCmd(),
	)
	return root
}

func printer(cmd *cobra.Command) *cli.Printer {
	return cli.NewPrinter(cmd.OutOrStdout())
}

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		cli.NewPrinter(os.Stderr).Error("%v", err)
		os.Exit(1)
	}
}
