package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/luma/ferry/internal/meta"
)

var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build and protocol information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), meta.GetInfo())
	},
}
