package main

import (
	"github.com/spf13/cobra"

	"scholarships/internal/config"
)

var (
	cfgFile string

	// Viper instance shared by the commands
	v = config.NewViper()
)

var rootCmd = &cobra.Command{
	Use:          "scholarships",
	Short:        "REST API for scholarship documents",
	Long:         "scholarships serves CRUD and JSON Patch (RFC 6902) operations on scholarship documents stored in MongoDB.",
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./scholarships.yaml or $HOME/.scholarships/scholarships.yaml)")
	rootCmd.PersistentFlags().Bool("debug", false, "debug logging with the console encoder")

	// An explicitly set flag overrides every other source
	cobra.CheckErr(v.BindPFlag(config.VLogDevelopment, rootCmd.PersistentFlags().Lookup("debug")))

	rootCmd.AddCommand(newServeCmd())
}
