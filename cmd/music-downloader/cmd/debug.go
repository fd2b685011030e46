package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
)

var debugShowConfigJSON bool

var debugCmd = &cobra.Command{
	Use:   "debug",
	Short: "Debugging utilities (not for general use)",
	Long:  `Contains helper commands for debugging application behavior, like inspecting configuration.`,
}

var debugShowConfigCmd = &cobra.Command{
	Use:   "show-config",
	Short: "Print the fully loaded configuration",
	Long: `Loads configuration via flags, environment and config file (respecting precedence)
and prints the result as TOML, ready to be used as a config.toml. Useful for
verifying how settings are merged.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if debugShowConfigJSON {
			data, err := json.MarshalIndent(globalConfig, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to marshal config to JSON: %w", err)
			}
			fmt.Fprintln(out, string(data))
			return nil
		}
		if err := toml.NewEncoder(out).Encode(globalConfig); err != nil {
			return fmt.Errorf("failed to encode config as TOML: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(debugCmd)
	debugCmd.AddCommand(debugShowConfigCmd)
	debugShowConfigCmd.Flags().BoolVar(&debugShowConfigJSON, "json", false, "Print JSON instead of TOML")
}
