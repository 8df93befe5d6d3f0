package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/VAR-META-Tech/intent-verification/internal/analyzer"
	"github.com/VAR-META-Tech/intent-verification/internal/config"
	"github.com/VAR-META-Tech/intent-verification/internal/constants"
	"github.com/VAR-META-Tech/intent-verification/internal/logging"
	"github.com/VAR-META-Tech/intent-verification/internal/output"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui *output.UI
	v  *viper.Viper

	cfgFile string
	verbose bool

	buildVersion, buildCommit, buildDate string

	// newAnalyzer builds the analyzer, replaceable in tests.
	newAnalyzer = analyzer.New
)

var rootCmd = &cobra.Command{
	Use:   "intent-verification",
	Short: "Review the files changed between two commits with AI",
	Long: `intent-verification asks an AI completion service to judge every file
changed between two commits of a git repository and reports a verdict per file.
The verify command checks the same changes against what a set of tests expects.

The same analysis is available to other languages through the shared library
built from the repository root.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "Config file (default ~/.config/intent-verification/config.yaml)")
	pf.BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	pf.String("api-key", "", "API key of the completion provider (default $OPENAI_API_KEY)")
	pf.String("provider", "", "Completion provider: openai, gemini or anthropic")
	pf.String("log-level", "", "Log level: debug, info, warn or error")

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(ui.Out, "intent-verification %s (commit %s, built %s)\n", buildVersion, buildCommit, buildDate)
	},
}

func initConfig() {
	v = config.New(cfgFile)

	pf := rootCmd.PersistentFlags()
	_ = v.BindPFlag("openai.api_key", pf.Lookup("api-key"))
	_ = v.BindPFlag("provider", pf.Lookup("provider"))
	_ = v.BindPFlag("log.level", pf.Lookup("log-level"))

	if err := config.ReadInto(v); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose
}

// loadConfig decodes the effective configuration and routes library logs
// to stderr at the configured level.
func loadConfig() (*config.Config, error) {
	cfg, err := config.FromViper(v)
	if err != nil {
		return nil, err
	}

	level := cfg.Log.Level
	if verbose && flagUnset("log-level") {
		level = "info"
	}
	if _, err := logging.Setup(logging.Config{Level: level, File: cfg.Log.File, Stderr: true}); err != nil {
		return nil, fmt.Errorf("configure logging: %w", err)
	}
	return cfg, nil
}

func flagUnset(name string) bool {
	f := rootCmd.PersistentFlags().Lookup(name)
	return f == nil || !f.Changed
}

// apiKey returns the credential for the configured provider. An explicit
// --api-key, config value or INTENT_VERIFICATION_OPENAI_API_KEY wins, then
// the provider's conventional environment variable.
func apiKey(cfg *config.Config) string {
	if key := v.GetString("openai.api_key"); key != "" {
		return key
	}
	switch cfg.Provider {
	case constants.ProviderGemini:
		return os.Getenv("GEMINI_API_KEY")
	case constants.ProviderAnthropic:
		return os.Getenv("ANTHROPIC_API_KEY")
	default:
		return cfg.OpenAI.APIKey
	}
}
