package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command for the fitgate gateway
var rootCmd = &cobra.Command{
	Use:   "fitgate",
	Short: "Multi-tenant JSON-RPC gateway for third-party fitness data",
	Long: `fitgate serves fitness data tools over a line-oriented JSON-RPC
protocol. Each tenant links their own OAuth credentials for a fitness
provider; credentials are encrypted at rest and strictly isolated per
tenant.`,
	SilenceUsage: true,
}

// version will be set by main
var version = "dev"

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "fitgate version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newKeygenCmd())
	rootCmd.AddCommand(newVersionCmd())
}
