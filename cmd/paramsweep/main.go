// Command paramsweep generates parameter sweeps over a simulation's XML
// configuration and dispatches one simulation run per combination.
package main

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/banshee-data/paramsweep/internal/monitoring"
)

// Log levels accepted by --log-level.
const (
	logQuiet = "quiet"
	logInfo  = "info"
	logDebug = "debug"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "paramsweep",
		Short: "Parameter sweeps for simulation projects",
		Long: `paramsweep samples input parameters of a simulation project, writes each
combination into a copy of the project's XML configuration and launches one
run per combination.

Experiments are described in a YAML or JSON file; see "paramsweep run --help".`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, _ := cmd.Flags().GetString("log-level")
			return setLogLevel(level, cmd.ErrOrStderr())
		},
	}
	rootCmd.PersistentFlags().String("log-level", logInfo, "Diagnostic output: quiet, info or debug")

	rootCmd.AddCommand(
		newRunCmd(),
		newGenerateCmd(),
		newMigrateCmd(),
		newServeCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

func setLogLevel(level string, w io.Writer) error {
	switch level {
	case logQuiet:
		monitoring.SetLogger(nil)
	case logInfo, logDebug:
		monitoring.SetLogger(log.New(w, "", log.LstdFlags).Printf)
	default:
		return fmt.Errorf("unknown log level %q (want quiet, info or debug)", level)
	}
	return nil
}

// traceLogger returns the node-search trace target for level, or nil.
func traceLogger(cmd *cobra.Command) *log.Logger {
	level, _ := cmd.Flags().GetString("log-level")
	if level != logDebug {
		return nil
	}
	return log.New(cmd.ErrOrStderr(), "", log.LstdFlags)
}
