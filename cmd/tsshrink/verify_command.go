package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gwlsn/tsshrink/internal/config"
	"github.com/gwlsn/tsshrink/internal/ffmpeg"
	"github.com/gwlsn/tsshrink/internal/verify"
)

func newVerifyCommand(ctx *commandContext) *cobra.Command {
	var remux bool
	var tolerance float64

	cmd := &cobra.Command{
		Use:   "verify <source> <output>",
		Short: "Check an existing output against its source",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig(cmd)
			if err != nil {
				return err
			}
			if remux {
				cfg.Mode = config.ModeRemux
			}
			if cmd.Flags().Changed("tolerance") {
				cfg.ToleranceSeconds = tolerance
			}

			prober := ffmpeg.NewProber(cfg.FFprobePath).WithTimeouts(cfg.ProbeTimeout(), cfg.ValidityTimeout())
			engine := verify.NewEngine(prober, verify.PolicyFor(cfg.Mode, cfg.ToleranceSeconds))

			verdict := engine.Verify(cmd.Context(), args[0], args[1])

			out := cmd.OutOrStdout()
			for _, w := range verdict.Warnings {
				fmt.Fprintf(out, "warning: %s\n", w)
			}
			if !verdict.OK {
				fmt.Fprintf(out, "FAIL (%s): %s\n", verdict.Check, verdict.Reason)
				return &exitError{code: 1}
			}
			fmt.Fprintf(out, "OK: %s, %.1f%% smaller\n", verdict.Reason, verdict.CompressionRatio)
			return nil
		},
	}

	cmd.Flags().BoolVar(&remux, "remux", false, "Apply the stream copy policy")
	cmd.Flags().Float64Var(&tolerance, "tolerance", 2.0, "Duration tolerance in seconds for --remux")
	return cmd
}
