package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/example/control-assessor/internal/app"
	"github.com/example/control-assessor/internal/config"
	"github.com/example/control-assessor/internal/platform/logger"
)

// version is set at build time via -ldflags.
var version = "dev"

var (
	configPath string
	provider   string
	parallel   bool
	verbose    bool
	plain      bool
)

var rootCmd = &cobra.Command{
	Use:   "assess",
	Short: "Assess payment-processing controls with an LLM pipeline",
	Long: "assess classifies a free-text control description and produces a\n" +
		"structured assessment: summary, risks, dependencies, gaps, industry\n" +
		"practices, a Low/Medium/High score and the reasoning behind it.",
	SilenceUsage: true,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "YAML config file (default $ASSESSOR_CONFIG)")
	pf.StringVar(&provider, "provider", "", "LLM provider: openai, anthropic, gemini or mock")
	pf.BoolVar(&parallel, "parallel", false, "run the independent analysis stages concurrently")
	pf.BoolVarP(&verbose, "verbose", "v", false, "log to stderr")
	pf.BoolVar(&plain, "plain", false, "print markdown without terminal rendering")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.Version = version
}

// loadApp builds the application from the config file plus command-line
// overrides. The CLI stays quiet unless --verbose is set.
func loadApp(cmd *cobra.Command) (*app.App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if provider != "" {
		cfg.LLM.Provider = strings.ToLower(provider)
		if cfg.LLM.Provider == config.ProviderMock && cfg.LLM.APIKey == "" {
			cfg.LLM.APIKey = "mock"
		}
	}
	if cmd.Flags().Changed("parallel") {
		cfg.Pipeline.ParallelAnalysis = parallel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := logger.Nop()
	if verbose {
		if log, err = logger.New(cfg.Env); err != nil {
			return nil, fmt.Errorf("init logger: %w", err)
		}
	}
	return app.Build(cfg, log)
}

// render formats markdown for the terminal unless --plain is set.
func render(md string) string {
	if plain {
		return md
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return out
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
