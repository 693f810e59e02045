package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"firestige.xyz/ipingest/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as YAML",
	Long: `Print the configuration after defaults and IPINGEST_* environment
overrides have been applied.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runConfigShow(configFile, cmd.OutOrStdout()); err != nil {
			exitWithError("failed to show config", err)
		}
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
}

func runConfigShow(path string, out io.Writer) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	defer enc.Close()
	if err := enc.Encode(map[string]*config.GlobalConfig{"ipingest": cfg}); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return nil
}
