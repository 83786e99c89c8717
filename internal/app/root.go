// Package app wires the components and exposes them as cobra commands.
package app

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var flagConfig string

var rootCmd = &cobra.Command{
	Use:           "newspulse",
	Short:         "Headline clustering news reader",
	Long:          "newspulse fetches RSS and Atom feeds, groups headlines covering the same story into clusters and serves them with trending tags.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "path to config file")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(refreshCmd, masterCmd, sourceCmd, tagsCmd, summarizeCmd, digestCmd)
	rootCmd.AddCommand(sourcesCmd, tagListsCmd)
	rootCmd.AddCommand(readCmd, libraryCmd("bookmark", "bookmarks"), libraryCmd("favorite", "favorites"))
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "newspulse %s (commit: %s, built: %s)\n", version, commit, date)
	},
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// SetVersionInfo is set from main with linker flags.
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
}

// withApp opens the app for one command and closes it afterwards.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *App) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := Open(ctx, flagConfig)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}
