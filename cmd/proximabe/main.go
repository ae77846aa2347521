// Command proximabe is the vector search backend's process entrypoint: it
// wires configuration, the index service, the query service and (when a
// MySQL source is configured) the binlog ingestion pipeline into one
// running process, one subcommand per operational mode.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is stamped at release time via -ldflags; left as a placeholder
// for local builds.
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "proximabe",
	Short: "Vector search index service, query engine and binlog ingestion pipeline",
}

func init() {
	rootCmd.AddCommand(serveCmd, versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("proximabe " + version)
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
