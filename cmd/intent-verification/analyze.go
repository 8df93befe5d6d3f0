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
	analyzeRepo         string
	analyzeFrom         string
	analyzeTo           string
	analyzeFormat       string
	analyzeConcurrency  int
	analyzeFailOnIssues bool
)

// errIssuesFound makes the command exit non-zero under --fail-on-issues.
var errIssuesFound = errors.New("files need attention")

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Review the files changed between two commits",
	Example: `  intent-verification analyze --repo https://github.com/owner/repo --from 1a2b3c --to 4d5e6f
  intent-verification analyze --repo . --from HEAD~1 --to HEAD --format json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return analyzeRun(cmd.Context())
	},
}

func init() {
	f := analyzeCmd.Flags()
	f.StringVar(&analyzeRepo, "repo", "", "Repository URL or local path")
	f.StringVar(&analyzeFrom, "from", "", "Older commit")
	f.StringVar(&analyzeTo, "to", "", "Newer commit")
	f.StringVarP(&analyzeFormat, "format", "o", output.FormatTable, "Output format: table, json or yaml")
	f.IntVar(&analyzeConcurrency, "concurrency", 0, "Files reviewed in parallel (default from config)")
	f.BoolVar(&analyzeFailOnIssues, "fail-on-issues", false, "Exit non-zero unless every analyzed file is good")
	_ = analyzeCmd.MarkFlagRequired("repo")
	_ = analyzeCmd.MarkFlagRequired("from")
	_ = analyzeCmd.MarkFlagRequired("to")

	rootCmd.AddCommand(analyzeCmd)
}

func analyzeRun(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var opts []analyzer.Option
	if analyzeConcurrency > 0 {
		opts = append(opts, analyzer.WithConcurrency(analyzeConcurrency))
	}
	a, err := newAnalyzer(cfg, opts...)
	if err != nil {
		return err
	}

	ui.VerboseLog("Analyzing %s %s..%s with %s (%s)", analyzeRepo, analyzeFrom, analyzeTo, cfg.Provider, cfg.Model())
	result, err := a.AnalyzeRepositoryChanges(ctx, apiKey(cfg), analyzeRepo, analyzeFrom, analyzeTo)
	if err != nil {
		return err
	}

	if err := renderResult(result, analyzeFormat); err != nil {
		return err
	}
	if analyzeFailOnIssues && !result.OverallGood {
		return errIssuesFound
	}
	return nil
}

func renderResult(result *analyzer.Result, format string) error {
	if format != output.FormatTable {
		return ui.Structured(result, format)
	}

	if len(result.Files) == 0 {
		ui.Info("No files changed")
		return nil
	}

	table := ui.Table([]string{"FILE", "CHANGE", "VERDICT", "CONFIDENCE", "RATIONALE"})
	for _, v := range result.Files {
		_ = table.Append([]string{
			v.FilePath,
			v.ChangeType,
			verdictLabel(v),
			output.ConfidenceColor(v.Confidence),
			firstLine(v.Rationale, 80),
		})
	}
	if err := table.Render(); err != nil {
		return err
	}

	if ui.Verbose {
		for _, v := range result.Files {
			if v.Suggestions != "" {
				ui.VerboseLog("%s: %s", v.FilePath, v.Suggestions)
			}
			for _, w := range v.Warnings {
				ui.Warning("%s: %s", v.FilePath, w)
			}
		}
	}

	fmt.Fprintln(ui.Out)
	summary := fmt.Sprintf("%d files changed, %d analyzed, %d good, %d with issues",
		result.TotalFiles, result.AnalyzedFiles, result.GoodFiles, result.FilesWithIssues)
	if result.OverallGood {
		ui.Success("%s", summary)
	} else {
		ui.Warning("%s", summary)
	}
	return nil
}

func verdictLabel(v reviewer.Verdict) string {
	switch {
	case v.Skipped:
		return output.Cyan("skipped")
	case v.Error:
		return output.Red("error")
	case v.IsGood:
		return output.Green("good")
	default:
		return output.Yellow("needs attention")
	}
}

func firstLine(s string, limit int) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if r := []rune(s); len(r) > limit {
		s = string(r[:limit-3]) + "..."
	}
	return s
}
