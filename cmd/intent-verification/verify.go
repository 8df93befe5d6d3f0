package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/VAR-META-Tech/intent-verification/internal/analyzer"
	"github.com/VAR-META-Tech/intent-verification/internal/output"
	"github.com/VAR-META-Tech/intent-verification/internal/reviewer"
)

var (
	verifyTestRepo          string
	verifyTestCommit        string
	verifyRepo              string
	verifyFrom              string
	verifyTo                string
	verifyIntent            string
	verifyFormat            string
	verifyFailOnUnfulfilled bool
)

var errIntentUnfulfilled = errors.New("test intent not fulfilled")

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check that the changes between two commits fulfil a test intent",
	Example: `  intent-verification verify --repo https://github.com/owner/repo --from 1a2b3c --to 4d5e6f \
    --intent "parse_header must accept tab separated fields"
  intent-verification verify --repo . --from HEAD~1 --to HEAD --test-repo ../tests --test-commit main \
    --intent "ratio returns NaN for a zero divisor" -o json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return verifyRun(cmd.Context())
	},
}

func init() {
	f := verifyCmd.Flags()
	f.StringVar(&verifyRepo, "repo", "", "Repository URL or local path of the solution")
	f.StringVar(&verifyFrom, "from", "", "Older commit")
	f.StringVar(&verifyTo, "to", "", "Newer commit")
	f.StringVar(&verifyIntent, "intent", "", "What the tests expect the changes to achieve")
	f.StringVar(&verifyTestRepo, "test-repo", "", "Repository holding the tests (default --repo)")
	f.StringVar(&verifyTestCommit, "test-commit", "", "Commit of the tests (default --to)")
	f.StringVarP(&verifyFormat, "format", "o", output.FormatTable, "Output format: table, json or yaml")
	f.BoolVar(&verifyFailOnUnfulfilled, "fail-on-unfulfilled", false, "Exit non-zero unless the intent is fulfilled")
	_ = verifyCmd.MarkFlagRequired("repo")
	_ = verifyCmd.MarkFlagRequired("from")
	_ = verifyCmd.MarkFlagRequired("to")
	_ = verifyCmd.MarkFlagRequired("intent")

	rootCmd.AddCommand(verifyCmd)
}

func verifyRun(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newAnalyzer(cfg)
	if err != nil {
		return err
	}

	ui.VerboseLog("Verifying %s %s..%s against %q with %s (%s)", verifyRepo, verifyFrom, verifyTo, verifyIntent, cfg.Provider, cfg.Model())
	result, err := a.VerifyIntent(ctx, apiKey(cfg), analyzer.IntentRequest{
		TestRepoURL: verifyTestRepo,
		TestCommit:  verifyTestCommit,
		RepoURL:     verifyRepo,
		FromCommit:  verifyFrom,
		ToCommit:    verifyTo,
		Intent:      verifyIntent,
	})
	if err != nil {
		return err
	}

	if err := renderIntentResult(result, verifyFormat); err != nil {
		return err
	}
	if verifyFailOnUnfulfilled && !result.IsIntentFulfilled {
		return errIntentUnfulfilled
	}
	return nil
}

func renderIntentResult(result *analyzer.IntentResult, format string) error {
	if format != output.FormatTable {
		return ui.Structured(result, format)
	}

	if result.Targets != nil && ui.Verbose {
		for _, fn := range result.Targets.Functions {
			if fn.Found() {
				ui.VerboseLog("target function %s found in %s", fn.Name, fn.FilePath)
			} else {
				ui.Warning("target function %s: %s", fn.Name, fn.Error)
			}
		}
		for _, f := range result.Targets.Files {
			if !f.Found() {
				ui.Warning("target file %s: %s", f.Path, f.Error)
			}
		}
	}

	if len(result.Files) == 0 {
		ui.Info("No files changed")
		return nil
	}

	table := ui.Table([]string{"FILE", "CHANGE", "INTENT", "CONFIDENCE", "REASONING"})
	for _, f := range result.Files {
		_ = table.Append([]string{
			f.FilePath,
			f.ChangeType,
			intentLabel(f),
			output.ConfidenceColor(f.Confidence),
			firstLine(f.Reasoning, 80),
		})
	}
	if err := table.Render(); err != nil {
		return err
	}

	fmt.Fprintln(ui.Out)
	if a := strings.TrimSpace(result.OverallAssessment); a != "" {
		fmt.Fprintln(ui.Out, a)
		fmt.Fprintln(ui.Out)
	}
	summary := fmt.Sprintf("%s (confidence %s)", result.Explanation, output.ConfidenceColor(result.Confidence))
	if result.IsIntentFulfilled {
		ui.Success("Intent fulfilled: %s", summary)
	} else {
		ui.Warning("Intent not fulfilled: %s", summary)
	}
	return nil
}

func intentLabel(f reviewer.FileIntent) string {
	switch {
	case f.Skipped:
		return output.Cyan("skipped")
	case f.Error:
		return output.Red("error")
	case f.SupportsIntent:
		return output.Green("supports")
	default:
		return output.Yellow("unrelated")
	}
}
