package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/luma/ferry/cmd/gen"
)

var RootCmd = &cobra.Command{
	Use:   "ferry",
	Short: "An rsync daemon protocol front end",
	Long: `ferry speaks the rsync daemon protocol: it negotiates legacy
@RSYNCD: and binary sessions, serves module listings and hands accepted
sessions on to a transfer pipeline.`,
	SilenceUsage: true,
}

func init() {
	RootCmd.AddCommand(StartCmd)
	RootCmd.AddCommand(ListCmd)
	RootCmd.AddCommand(ProbeCmd)
	RootCmd.AddCommand(VersionCmd)
	RootCmd.AddCommand(gen.RootCmd)
}

func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
