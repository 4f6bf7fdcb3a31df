package main

import (
	"fmt"
	"os"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)

	configShowCmd.Flags().BoolVar(&configShowResolved, "resolved", false, "Apply .env and GIGBOARD_* overrides")
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage gigboard configuration",
	Long:  "View or modify the CLI configuration stored in ~/.gigboard/config.toml.",
}

var configShowResolved bool

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the current configuration with the token masked",
	Long:  "Print the configuration stored in ~/.gigboard/config.toml. With --resolved, .env and GIGBOARD_* overrides are applied first.",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := configPath()
		if err != nil {
			return err
		}
		if _, err := os.Stat(path); os.IsNotExist(err) && !configShowResolved {
			fmt.Println("No configuration file found. Run 'gigboard init <user-id> <token>' to create one.")
			return nil
		}

		load := loadConfig
		if configShowResolved {
			load = resolveConfig
		}
		cfg, err := load()
		if err != nil {
			return err
		}

		data, err := toml.Marshal(redactConfig(cfg))
		if err != nil {
			return fmt.Errorf("cannot marshal config: %w", err)
		}
		fmt.Printf("# %s\n", path)
		fmt.Print(string(data))
		return nil
	},
}

// redactConfig returns a copy of cfg that is safe to print.
func redactConfig(cfg *Config) *Config {
	out := *cfg
	if out.Auth.Token != "" {
		out.Auth.Token = maskKey(out.Auth.Token)
	}
	return &out
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a configuration value using dot notation.\nExample: gigboard config set default.base_url https://api.gigboard.dev",
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

		shown := value
		if key == "auth.token" {
			shown = maskKey(value)
		}
		fmt.Printf("Set %s = %s\n", key, shown)
		return nil
	},
}
