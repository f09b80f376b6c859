package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/dTree/cmd/serve"
	"github.com/ValentinKolb/dTree/cmd/tree"
	"github.com/ValentinKolb/dTree/cmd/util"
	"github.com/spf13/cobra"
)

const (
	Version = "0.1.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "dtree",
		Short: "replicated ordered map",
		Long: fmt.Sprintf(`dTree (v%s)

A replicated, consistent ordered map written in Go. Clients talk to the
cluster through sessions of the RAFT log, commands are applied exactly once.`, Version),
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of dTree",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("dTree v%s\n", Version)
		},
	}
)

func init() {
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(tree.TreeCommands)
	RootCmd.AddCommand(versionCmd)

	key := "serializer"
	RootCmd.PersistentFlags().String(key, "binary", util.WrapString("serializer to use (json, gob, binary)"))
	key = "transport"
	RootCmd.PersistentFlags().String(key, "tcp", util.WrapString("transport to use (http, tcp, unix)"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
