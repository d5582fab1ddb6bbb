package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/example/control-assessor/internal/app"
	"github.com/example/control-assessor/internal/models"
	"github.com/example/control-assessor/internal/orchestrator"
	"github.com/example/control-assessor/internal/report"
)

var (
	runFile string
	runOut  string
)

var runCmd = &cobra.Command{
	Use:   "run [description]",
	Short: "Run one assessment and print the report",
	Long: `Runs the eight assessment stages over a control description given as
arguments or read from --file (PDF, HTML or text). Progress is printed per
stage; the combined report is rendered at the end.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		ctx, stop := app.NotifyContext(cmd.Context())
		defer stop()
		return runAssessment(ctx, a, strings.Join(args, " "), cmd.OutOrStdout())
	},
}

func init() {
	runCmd.Flags().StringVarP(&runFile, "file", "f", "", "read the control description from a document")
	runCmd.Flags().StringVarP(&runOut, "out", "o", "", "write the CSV artifact to this path")
}

func runAssessment(ctx context.Context, a *app.App, text string, out io.Writer) error {
	if runFile != "" {
		res, err := a.Ingest.ExtractFile(ctx, runFile)
		if err != nil {
			return err
		}
		text = strings.TrimSpace(text + "\n\n" + res.Text)
	}
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("provide a control description or --file")
	}

	state, err := a.Pipeline.Run(ctx, text, a.Config.LLM.APIKey, printProgress(out))
	if err != nil {
		printPartial(out, state)
		return err
	}
	fmt.Fprint(out, render(report.Format(state)))

	if runOut != "" {
		art, err := report.CSV(state)
		if err != nil {
			return err
		}
		if err := os.WriteFile(runOut, art.Data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", runOut, err)
		}
		fmt.Fprintf(out, "saved %s\n", runOut)
	}
	return nil
}

func printProgress(out io.Writer) func(orchestrator.Progress) {
	return func(p orchestrator.Progress) {
		fmt.Fprintf(out, "[%d/%d] %s\n", p.Index+1, p.Total, p.Title)
	}
}

// printPartial shows the sections a failed run did produce.
func printPartial(out io.Writer, state models.Assessment) {
	if md := report.FormatPartial(state); md != "" {
		fmt.Fprint(out, render(md))
		fmt.Fprintln(out)
	}
}
