package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/timzifer/motorhome/config"
	"github.com/timzifer/motorhome/homing"
	"github.com/timzifer/motorhome/processor"
	"github.com/timzifer/motorhome/telemetry"
	"github.com/timzifer/motorhome/verify"
)

type definitionOptions struct {
	path      string
	outputDir string
}

func (d *definitionOptions) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&d.path, "config", "c", "homing.yaml", "Homing definition file or directory")
	cmd.Flags().StringVarP(&d.outputDir, "out", "o", "", "Output directory overriding the definition and "+envOutDir)
}

// open loads the definition and builds a processor for it.
func (d *definitionOptions) open(ctx context.Context, global *globalOptions, extra ...processor.Option) (*processor.Processor, zerolog.Logger, func(), error) {
	cfg, err := config.Load(d.path)
	if err != nil {
		return nil, zerolog.Nop(), nil, err
	}
	logger, cleanup, err := setupLogger(global, cfg.Logging)
	if err != nil {
		return nil, zerolog.Nop(), nil, err
	}
	opts := []processor.Option{
		processor.WithConfig(cfg),
		processor.WithConfigPath(d.path),
		processor.WithLogger(logger),
	}
	if dir := firstNonEmpty(d.outputDir, os.Getenv(envOutDir)); dir != "" {
		opts = append(opts, processor.WithOutputDir(dir))
	}
	proc, err := processor.New(ctx, append(opts, extra...)...)
	if err != nil {
		cleanup()
		return nil, zerolog.Nop(), nil, err
	}
	return proc, logger, func() {
		proc.Close()
		cleanup()
	}, nil
}

func generateCmd(global *globalOptions) *cobra.Command {
	var (
		def     definitionOptions
		watch   bool
		metrics string
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write the homing PLCs of a definition",
		RunE: func(cmd *cobra.Command, args []string) error {
			var extra []processor.Option
			if metrics != "" {
				collector, err := telemetry.NewPrometheusCollector(prometheus.NewRegistry())
				if err != nil {
					return err
				}
				extra = append(extra, processor.WithTelemetry(collector))
			}
			proc, logger, closeFn, err := def.open(cmd.Context(), global, extra...)
			if err != nil {
				return err
			}
			defer closeFn()

			out := cmd.OutOrStdout()
			if watch || proc.Config().HotReload {
				logger.Info().Str("definition", def.path).Msg("watching for changes")
				return proc.Watch(cmd.Context(), func(report *processor.Report, err error) {
					if err != nil {
						logger.Error().Err(err).Msg("generation failed")
					} else {
						printReport(out, report)
					}
					if err := proc.WriteMetrics(metrics); err != nil {
						logger.Error().Err(err).Msg("failed to write metrics")
					}
				})
			}

			report, genErr := proc.Generate(cmd.Context())
			if report != nil {
				printReport(out, report)
			}
			if err := proc.WriteMetrics(metrics); err != nil {
				return errors.Join(genErr, err)
			}
			return genErr
		},
	}
	def.register(cmd)
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Regenerate whenever the definition or a template override changes")
	cmd.Flags().StringVar(&metrics, "metrics-textfile", "", "Write generation metrics to this file in textfile collector format")
	return cmd
}

func printReport(w io.Writer, report *processor.Report) {
	for _, plc := range report.Plcs {
		fmt.Fprintf(w, "PLC%d %s\n", plc.Plc, plc.Path)
	}
	fmt.Fprintf(w, "Generated %d PLC(s) in %s (run %s)\n", len(report.Plcs), report.Duration.Round(time.Millisecond), report.RunID)
}

func checkCmd(global *globalOptions) *cobra.Command {
	var (
		def  definitionOptions
		show bool
	)
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate a definition by generating it without writing any file",
		RunE: func(cmd *cobra.Command, args []string) error {
			proc, _, closeFn, err := def.open(cmd.Context(), global)
			if err != nil {
				return err
			}
			defer closeFn()

			report, err := proc.Plan(cmd.Context())
			out := cmd.OutOrStdout()
			if report != nil {
				for _, plc := range report.Plcs {
					printPlan(out, plc, show)
				}
			}
			if err != nil {
				fmt.Fprintln(out, "Definition check completed with errors.")
				return err
			}
			fmt.Fprintln(out, "Definition check completed successfully.")
			return nil
		},
	}
	def.register(cmd)
	cmd.Flags().BoolVar(&show, "show", false, "Print the rendered PLC text")
	return cmd
}

func printPlan(w io.Writer, plc processor.PlcReport, show bool) {
	label := fmt.Sprintf("PLC%d", plc.Plc)
	if plc.Name != "" {
		label += " " + plc.Name
	}
	fmt.Fprintf(w, "%s (%s)\n", label, plc.Controller)
	if plc.Source != "" {
		fmt.Fprintf(w, "  Source: %s\n", plc.Source)
	}
	fmt.Fprintf(w, "  Output: %s\n", plc.Path)
	fmt.Fprintf(w, "  Motors: %d, groups: %d, snippets: %d\n", plc.Motors, plc.Groups, plc.Snippets)
	if show {
		for _, line := range strings.Split(strings.TrimRight(plc.Text, "\n"), "\n") {
			fmt.Fprintf(w, "    %s\n", line)
		}
	}
	fmt.Fprintln(w)
}

func verifyCmd(global *globalOptions) *cobra.Command {
	var (
		def     definitionOptions
		against string
	)
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Compare the PLCs a definition generates with existing files, ignoring whitespace",
		RunE: func(cmd *cobra.Command, args []string) error {
			proc, _, closeFn, err := def.open(cmd.Context(), global)
			if err != nil {
				return err
			}
			defer closeFn()
			report, err := proc.Plan(cmd.Context())
			if err != nil {
				return err
			}
			return verifyReport(cmd.OutOrStdout(), report, proc.OutputDir(), against)
		},
	}
	def.register(cmd)
	cmd.Flags().StringVar(&against, "against", "", "Directory holding the existing PLCs (default: the output directory)")
	return cmd
}

// verifyReport compares each planned PLC with the existing file at the same
// path relative to against.
func verifyReport(w io.Writer, report *processor.Report, outputDir, against string) error {
	mismatches := 0
	for _, plc := range report.Plcs {
		existing := plc.Path
		if against != "" {
			rel, err := filepath.Rel(outputDir, plc.Path)
			if err != nil || strings.HasPrefix(rel, "..") {
				rel = filepath.Base(plc.Path)
			}
			existing = filepath.Join(against, rel)
		}
		result, err := verify.CompareFile(existing, []byte(plc.Text))
		if err != nil {
			fmt.Fprintf(w, "MISSING %s\n", existing)
			mismatches++
			continue
		}
		if result.Equal {
			fmt.Fprintf(w, "OK      %s\n", existing)
			continue
		}
		mismatches++
		fmt.Fprintf(w, "DIFFER  %s\n%s", existing, result.Diff)
	}
	if mismatches > 0 {
		return fmt.Errorf("%d of %d PLC(s) differ", mismatches, len(report.Plcs))
	}
	return nil
}

func sequencesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sequences",
		Short: "List the homing sequences and snippets a definition can use",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Sequences:")
			for _, name := range homing.RegisteredSequences() {
				fmt.Fprintf(out, "  %s\n", name)
			}
			fmt.Fprintln(out, "Snippets:")
			for _, name := range homing.SnippetNames() {
				defaults, err := homing.SnippetDefaults(name)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "  %s %+v\n", name, defaults)
			}
			return nil
		},
	}
}
