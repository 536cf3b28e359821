package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage Frontdesk configuration",
	Long:  "View or modify the Frontdesk CLI configuration stored in ~/.frontdesk/config.toml.",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the current configuration with tokens masked",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := configPath()
		if err != nil {
			return err
		}
		if _, err := os.Stat(path); os.IsNotExist(err) {
			fmt.Println("No configuration file found. Run 'frontdesk init' to create one.")
			return nil
		}
		cfg, err := readConfig(path)
		if err != nil {
			return err
		}

		section := ""
		for _, k := range configKeys {
			sec, field, _ := strings.Cut(k.name, ".")
			if sec != section {
				if section != "" {
					fmt.Println()
				}
				fmt.Printf("[%s]\n", sec)
				section = sec
			}
			value := *k.field(cfg)
			if k.secret {
				value = maskToken(value)
			}
			fmt.Printf("%s = %q\n", field, value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a configuration value using dot notation.\nExample: frontdesk config set default.base_url https://api.staging.frontdesk.ai",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		if err := setConfigValue(cfg, key, value); err != nil {
			return err
		}

		if err := saveConfig(cfg); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}

		fmt.Printf("Set %s = %s\n", key, value)
		return nil
	},
}
