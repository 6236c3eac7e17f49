package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	flags := &globalFlags{}
	ctx := newCommandContext(flags)
	batch := &batchFlags{}

	rootCmd := &cobra.Command{
		Use:   "tsshrink [flags] <directory>",
		Short: "Convert MPEG-TS recordings to verified HEVC MP4",
		Long: `tsshrink converts every .ts recording in a directory to an MP4 file,
verifies the result against the source, and offers to delete the source
once the output has passed verification.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig(cmd)
			if err != nil {
				return err
			}
			if err := batch.apply(cmd, cfg); err != nil {
				return err
			}
			return runBatch(cmd, cfg, batch, args[0])
		},
	}

	persistent := rootCmd.PersistentFlags()
	persistent.StringVarP(&flags.configPath, "config", "c", "", "Configuration file (YAML or TOML, env "+configEnv+")")
	persistent.StringVar(&flags.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	persistent.StringVar(&flags.historyPath, "history", "", "Run history database (SQLite)")

	batch.register(rootCmd)

	rootCmd.AddCommand(newHistoryCommand(ctx))
	rootCmd.AddCommand(newVerifyCommand(ctx))
	rootCmd.AddCommand(newConfigCommand(ctx))

	return rootCmd
}
