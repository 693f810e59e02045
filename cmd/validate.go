package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"firestige.xyz/ipingest/internal/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Validate a configuration file without processing any capture.

Examples:
  ipingest validate -c ipingest.yml`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runValidate(configFile, cmd.OutOrStdout()); err != nil {
			fmt.Fprintf(os.Stderr, "INVALID: %v\n", err)
			os.Exit(1)
		}
	},
}

func runValidate(path string, out io.Writer) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	ip := cfg.Decoder.IPv4
	fmt.Fprintf(out, "VALID: max_fragments=%d context_ttl=%s check_checksum=%t metrics=%t\n",
		ip.MaxFragments, ip.ContextTTLDuration(), ip.CheckChecksum, cfg.Metrics.Enabled)
	return nil
}
