package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/VAR-META-Tech/intent-verification/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show configuration",
	Long: `Show intent-verification configuration.

Running bare 'intent-verification config' is the same as 'intent-verification config show'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration with sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}

func configShowRun() error {
	if used := v.ConfigFileUsed(); used != "" {
		if _, err := os.Stat(used); err == nil {
			ui.Info("Config file: %s", used)
		} else {
			ui.Info("Config file: (none)")
		}
	} else {
		ui.Info("Config file: (none)")
	}
	fmt.Fprintln(ui.Out)

	for _, k := range config.Keys {
		val := fmt.Sprint(v.Get(k.Key))
		if k.Secret && val != "" {
			val = mask(val)
		}
		fmt.Fprintf(ui.Out, "  %-28s %-30s %s\n", k.Key, val, detectSource(k))
	}
	return nil
}

// detectSource determines where a config value is coming from.
func detectSource(k config.Key) string {
	if f := flagForKey(k.Key); f != "" && !flagUnset(f) {
		return fmt.Sprintf("(flag: --%s)", f)
	}
	if _, ok := os.LookupEnv(k.EnvVar); ok {
		return fmt.Sprintf("(env: %s)", k.EnvVar)
	}
	if v.InConfig(k.Key) {
		return "(file)"
	}
	return "(default)"
}

func flagForKey(key string) string {
	switch key {
	case "openai.api_key":
		return "api-key"
	case "provider":
		return "provider"
	case "log.level":
		return "log-level"
	}
	return ""
}

// mask hides all but the last four characters of a secret.
func mask(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return "****" + s[len(s)-4:]
}
