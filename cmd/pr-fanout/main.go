package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
	logFormat  string
	rootCmd    = &cobra.Command{
		Use:   "pr-fanout",
		Short: "Propose one change to many repositories as pull requests",
		Long: `pr-fanout applies a single change instruction to a list of repositories.
For each repository it checks relevance with an agent, lets a coding agent make
the change in a working copy, evaluates the result and opens or updates a pull
request. Failed repositories never stop the batch.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (text, json)")
}

// errFlagUsage marks errors caused by invalid command line usage
var errFlagUsage = errors.New("usage")

func main() {
	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return fmt.Errorf("%w: %v", errFlagUsage, err)
	})
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(exitCode(err))
	}
}

// exitCode is 2 for configuration and usage errors and 1 for anything else
// that stopped the process before a batch could complete
func exitCode(err error) int {
	if isConfigError(err) || errors.Is(err, errFlagUsage) {
		return 2
	}
	return 1
}
