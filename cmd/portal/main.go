package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Version is set at build time.
var Version = "dev"

var (
	mainCmd = &cobra.Command{
		Use:          "portal",
		Short:        "Admin portal backend for a virtualization fabric",
		SilenceUsage: true,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve the portal HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("%s command does not take any arguments", cmd.Name())
			}
			cfg, err := loadConfig(cmd.Flags())
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the portal version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "portal", Version)
		},
	}
)

func init() {
	addGlobalFlags(mainCmd.PersistentFlags())
	serveCmd.Flags().String("listen", "", "Address to listen on, overrides the config file")
	mainCmd.AddCommand(
		serveCmd,
		versionCmd,
	)
}

func addGlobalFlags(flags *pflag.FlagSet) {
	flags.StringP("config", "c", "", "Path to the YAML config file")
	flags.String("log-level", "", "Log level, overrides the config file")
}

func main() {
	if _, err := mainCmd.ExecuteC(); err != nil {
		os.Exit(1)
	}
}
