package cmd

import (
	"cmp"
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/huddle/internal/logging"
	"github.com/BioHazard786/huddle/internal/ui"
	"github.com/BioHazard786/huddle/internal/version"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "huddle",
	Short: "Small-group audio/video meetings over a WebRTC mesh",
	Long: `Huddle connects a handful of people directly to each other. A small
registry server keeps track of who is in which room and relays the
negotiation; audio and video then flow peer to peer, one link per pair.

Run "huddle serve" for the registry and "huddle join <room>" to take part.`,
	Version: version.Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if flagLogLevel != "" {
			logging.Setup(os.Stderr, logLevel(), os.Getenv("LOG_FORMAT"))
		}
	},
}

var flagLogLevel string

func init() {
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "debug, info, warn or error (env LOG_LEVEL)")
}

// logLevel prefers the flag over LOG_LEVEL.
func logLevel() string {
	return cmp.Or(flagLogLevel, os.Getenv("LOG_LEVEL"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		ui.PrintError(err.Error())
		os.Exit(1)
	}
}
