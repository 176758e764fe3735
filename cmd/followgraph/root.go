package main

import (
	"fmt"
	"os"
	"runtime"

	"followgraph/pkg/ui"

	"github.com/spf13/cobra"
)

var (
	// Version information
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile      string
	logLevel        string
	dataDir         string
	backend         string
	credentialFiles []string
	noLogo          bool
	verbose         bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "followgraph",
	Short: "Crawl follow graphs through a rate-limited API and tile them into adjacency matrices",
	Long: `followgraph collects who-follows-whom edges for a growing set of users
through the social API, rotating between as many credentials as you give it,
and turns the resulting graph into tiled adjacency matrices.

Crawls checkpoint every few users and resume where they stopped; interrupt
one at any time with Ctrl+C.`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noLogo {
			return
		}
		// Commands whose stdout is data stay quiet
		switch cmd.Name() {
		case "version", "help", "show", "export-edges", "vertices":
			return
		}
		if infoJSON {
			return
		}
		ui.PrintLogo(version)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		ui.PrintError("Error", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is ./.followgraph.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "directory of the fs storage backend")
	rootCmd.PersistentFlags().StringVar(&backend, "backend", "", "storage backend (fs, badger, minio)")
	rootCmd.PersistentFlags().StringSliceVar(&credentialFiles, "credentials", nil, "INI credential files, comma separated")
	rootCmd.PersistentFlags().BoolVar(&noLogo, "no-logo", false, "do not print the banner")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "print one line per user instead of a progress bar")

	rootCmd.SetVersionTemplate(`followgraph {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
