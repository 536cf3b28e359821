package main

import (
	"fmt"

	frontdesk "github.com/frontdesk-ai/console/sdk/golang"
	"github.com/spf13/cobra"
)

var initEnvironment string

func init() {
	initCmd.Flags().StringVar(&initEnvironment, "env", string(frontdesk.Production), "Environment: production or staging")
	rootCmd.AddCommand(initCmd)
}

var initCmd = &cobra.Command{
	Use:   "init [base-url]",
	Short: "Create ~/.frontdesk/config.toml",
	Long:  "Initialize the Frontdesk CLI by choosing an environment or a custom API base URL.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		switch frontdesk.Environment(initEnvironment) {
		case frontdesk.Production, frontdesk.Staging:
			cfg.Default.Environment = initEnvironment
		default:
			return fmt.Errorf("unknown environment %q (valid: production, staging)", initEnvironment)
		}
		if len(args) == 1 {
			cfg.Default.BaseURL = args[0]
		}

		if err := saveConfig(cfg); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}

		path, _ := configPath()
		fmt.Printf("Configuration saved to %s\n", path)
		return nil
	},
}
