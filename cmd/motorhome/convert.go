package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/timzifer/motorhome/config"
	"github.com/timzifer/motorhome/legacy"
	"github.com/timzifer/motorhome/processor"
)

func convertCmd(global *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "convert",
		Short: "Convert v1 generator scripts into homing definitions",
	}
	cmd.AddCommand(convertFileCmd(global), convertMotionCmd(global))
	return cmd
}

func convertFileCmd(global *globalOptions) *cobra.Command {
	var (
		plcs []string
		name string
	)
	cmd := &cobra.Command{
		Use:   "file SCRIPT [OUT]",
		Short: "Convert one generator script",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, cleanup, err := setupLogger(global, config.LoggingConfig{})
			if err != nil {
				return err
			}
			defer cleanup()

			out := legacy.DefinitionName
			if len(args) == 2 {
				out = args[1]
			}
			if name == "" {
				name = strings.TrimSuffix(filepath.Base(out), filepath.Ext(out))
			}
			cfg, err := legacy.ConvertFile(cmd.Context(), args[0], out, plcs,
				legacy.WithLogger(logger), legacy.WithName(name))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Converted %s to %s (%d PLC(s))\n", args[0], out, len(cfg.Plcs))
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&plcs, "plc", nil, "PLC file to convert as included by Master.pmc, e.g. PLCs/PLC11_SLITS_HM.pmc (repeatable)")
	cmd.Flags().StringVar(&name, "name", "", "Definition name (default: the output file name)")
	return cmd
}

func convertMotionCmd(global *globalOptions) *cobra.Command {
	var check bool
	cmd := &cobra.Command{
		Use:   "motion ROOT",
		Short: "Convert every generator script below a motion area",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, cleanup, err := setupLogger(global, config.LoggingConfig{})
			if err != nil {
				return err
			}
			defer cleanup()

			results, err := legacy.ConvertMotion(cmd.Context(), args[0], legacy.WithLogger(logger))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			failed := 0
			for _, result := range results {
				if result.Err != nil {
					failed++
					fmt.Fprintf(out, "FAILED  %s: %v\n", result.Dir, result.Err)
					continue
				}
				fmt.Fprintf(out, "OK      %s (%d PLC(s))\n", result.Definition, len(result.Files))
				if !check {
					continue
				}
				if err := verifyDefinition(cmd.Context(), out, logger, result.Definition); err != nil {
					failed++
					fmt.Fprintf(out, "MISMATCH %s: %v\n", result.Definition, err)
				}
			}
			fmt.Fprintf(out, "Converted %d of %d controller(s)\n", len(results)-failed, len(results))
			if failed > 0 {
				return fmt.Errorf("%d controller(s) failed", failed)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&check, "verify", false, "Regenerate each converted definition and compare it with the existing PLCs")
	return cmd
}

// verifyDefinition plans the definition at path and compares the result with
// the PLC files already next to it.
func verifyDefinition(ctx context.Context, out io.Writer, logger zerolog.Logger, path string) error {
	proc, err := processor.New(ctx, processor.WithConfigPath(path), processor.WithLogger(logger))
	if err != nil {
		return err
	}
	defer proc.Close()
	report, err := proc.Plan(ctx)
	if err != nil {
		return err
	}
	return verifyReport(out, report, proc.OutputDir(), "")
}
