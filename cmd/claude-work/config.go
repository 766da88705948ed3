package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/windschord/claude-work/internal/common/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration as YAML",
	Long:  "Print the configuration after defaults, config.yaml and CLAUDE_WORK_* variables are merged. Secrets are omitted.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.LoadWithPath(configDir)
		if err != nil {
			return fmt.Errorf("error loading config: %w", err)
		}
		out, err := yaml.Marshal(cfg)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}
