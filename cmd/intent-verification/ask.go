package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var askCmd = &cobra.Command{
	Use:     "ask <prompt>",
	Short:   "Send a single prompt to the completion service",
	Example: `  intent-verification ask "What is Rust?"`,
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return askRun(cmd.Context(), strings.Join(args, " "))
	},
}

func init() {
	rootCmd.AddCommand(askCmd)
}

func askRun(ctx context.Context, prompt string) error {
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

	reply, err := a.AskQuestion(ctx, prompt, apiKey(cfg))
	if err != nil {
		return err
	}
	fmt.Fprintln(ui.Out, reply)
	return nil
}
