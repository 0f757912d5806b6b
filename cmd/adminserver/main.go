// Package main provides adminserver, a development server that exposes demo
// entities through the adminrest service.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

// configFile is set by the --config flag.
var configFile string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "adminserver",
		Short: "adminserver serves demo entities over the admin REST surface",
		Long: `adminserver registers the demo Customer and Order entities with an adminrest
service and serves them over HTTP. Configuration is read from a YAML file
(--config) and ADMINREST_* environment variables.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (YAML)")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newSeedCmd())
	return rootCmd
}
