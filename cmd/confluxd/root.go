package confluxd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const Version = "0.1.0"

// RootCmd is the base command when confluxd is called without subcommands.
var RootCmd = &cobra.Command{
	Use:   "confluxd",
	Short: "distributed configuration center",
	Long: fmt.Sprintf(`confluxd (v%s)

Conflux is a distributed configuration center: a Raft-backed consensus and
storage core for versioned configuration releases, label-driven release
targeting, and change notification fan-out.`, Version),
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of confluxd",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("confluxd v%s\n", Version)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	RootCmd.AddCommand(serveCmd)
	RootCmd.AddCommand(configCmd)
	RootCmd.AddCommand(adminCmd)
	RootCmd.AddCommand(versionCmd)

	RootCmd.PersistentFlags().String("serializer", "json", wrapString("serializer to use (json, gob, binary)"))
	RootCmd.PersistentFlags().String("transport", "http", wrapString("transport to use (http, tcp, unix)"))
}

// Execute adds all child commands to the root command and runs it. Called
// once from main.main.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
