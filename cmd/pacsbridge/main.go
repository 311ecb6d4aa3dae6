// Command pacsbridge runs the DICOM metadata bridge: an HTTP API over
// query/retrieve orchestration against a remote archive.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "pacsbridge",
		Short: "DICOM metadata extraction and query/retrieve bridge",
		Long: `pacsbridge extracts structured metadata from DICOM instances and
orchestrates find/get workflows against a remote archive, exposed over
an HTTP API.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "pacsbridge.toml", "path to configuration file")

	root.AddCommand(newServeCmd())
	root.AddCommand(newEchoCmd())
	root.AddCommand(newFindCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
