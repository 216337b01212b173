package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

const pushArgCount = 5

const usageText = `Usage:
  imagepush <api-root> <api-key> <ledger> <dir> <tag-prefix>

Publishes every image in <dir> that is not yet recorded in <ledger> to the
content API at <api-root>, tagging it with "<tag-prefix>:<tag>" for each
sidecar tag. An empty <tag-prefix> ("") publishes tags unprefixed, even when
the config file sets sync.tag_prefix. Items are recorded in the ledger only
after a successful upload.

Other commands:
  imagepush ledger stats <ledger>
  imagepush ledger list <ledger> [--limit N]
  imagepush config init [--path PATH]
  imagepush config validate [--check-api]
`

func newRootCommand() *cobra.Command {
	var configFlag string

	ctx := newCommandContext(&configFlag)

	rootCmd := &cobra.Command{
		Use:           "imagepush <api-root> <api-key> <ledger> <dir> <tag-prefix>",
		Short:         "Publish local images and their metadata to a content API",
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// The root command loads config itself once the argument shape is known.
			if !cmd.HasParent() || shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != pushArgCount {
				printUsage(cmd.OutOrStdout())
				return nil
			}
			return runPush(cmd, ctx, pushArgs{
				apiRoot:    args[0],
				apiKey:     args[1],
				ledgerPath: args[2],
				sourceDir:  args[3],
				tagPrefix:  args[4],
			})
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")

	rootCmd.AddCommand(newLedgerCommand())
	rootCmd.AddCommand(newConfigCommand(ctx))

	return rootCmd
}

func printUsage(out io.Writer) {
	fmt.Fprint(out, usageText)
}
