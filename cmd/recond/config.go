package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/cardworks/recon/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and bootstrap the configuration file",
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configValidateCmd)
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration to the config path",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(configPath); err == nil {
			return fmt.Errorf("%s already exists", configPath)
		}
		data, err := yaml.Marshal(config.Default())
		if err != nil {
			return err
		}
		if err := os.WriteFile(configPath, data, 0o644); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", configPath)
		return nil
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print one configuration value (e.g. sources.left_prefixes)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v := viper.New()
		v.SetConfigType("yaml")
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read %s: %w", configPath, err)
		}
		val := v.Get(args[0])
		if val == nil {
			return fmt.Errorf("key %q is not set", args[0])
		}
		fmt.Println(val)
		return nil
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration file for problems",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		var issues []string
		if cfg.Listen == "" {
			issues = append(issues, "listen: must not be empty")
		}
		if cfg.DBPath == "" {
			issues = append(issues, "db_path: must not be empty")
		}
		if len(cfg.Sources.LeftPrefixes) == 0 {
			issues = append(issues, "sources.left_prefixes: at least one prefix is required")
		}
		if len(cfg.Sources.RightPrefixes) == 0 {
			issues = append(issues, "sources.right_prefixes: at least one prefix is required")
		}
		for _, lp := range cfg.Sources.LeftPrefixes {
			for _, rp := range cfg.Sources.RightPrefixes {
				if lp == rp {
					issues = append(issues, fmt.Sprintf("sources: prefix %q is listed on both sides", lp))
				}
			}
		}
		if cfg.Watch.Enabled && cfg.Watch.Dir == "" {
			issues = append(issues, "watch.dir: required when watch.enabled is true")
		}
		if cfg.PANHashSecret == config.Default().PANHashSecret {
			issues = append(issues, "pan_hash_secret: still the built-in default")
		}

		if len(issues) == 0 {
			fmt.Println("configuration is valid")
			return nil
		}
		fmt.Println("configuration validation found issues:")
		for _, issue := range issues {
			fmt.Printf("  - %s\n", issue)
		}
		os.Exit(1)
		return nil
	},
}
