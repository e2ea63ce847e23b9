/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/ssargent/dbcache/pkg/config"
)

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	Long: `Write a configuration file with default values.

Examples:
  dbcache init
  dbcache init --config ./dbcache.yaml --force`,
	Args: cobra.NoArgs,
	// init must work even when the existing configuration does not load
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		force, _ := cmd.Flags().GetBool("force")
		if configPath == "" {
			configPath = config.GetDefaultConfigPath()
		}

		written, err := initConfig(configPath, force)
		if err != nil {
			return err
		}
		if !written {
			cmd.Printf("Config already exists at %s. Use --force to overwrite.\n", configPath)
			return nil
		}
		cmd.Printf("Wrote default configuration to %s\n", configPath)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().Bool("force", false, "Overwrite an existing configuration")
}

// initConfig writes the default configuration unless one exists
func initConfig(configPath string, force bool) (bool, error) {
	if config.ConfigExists(configPath) && !force {
		return false, nil
	}
	if err := config.SaveConfig(config.DefaultConfig(), configPath); err != nil {
		return false, err
	}
	return true, nil
}
