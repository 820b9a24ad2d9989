package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/luma/ferry/client"
)

func init() {
	addClientFlags(ListCmd.Flags())
}

var ListCmd = &cobra.Command{
	Use:   "list ADDR",
	Short: "List the modules a daemon exports",
	Long: `List the modules a daemon exports

Usage
	ferry list localhost:873
`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		options, err := clientOptions()
		if err != nil {
			return err
		}
		defer options.Log.Sync()

		ctx, cancel := context.WithTimeout(cmd.Context(), clientTimeout)
		defer cancel()

		conn, err := client.Dial(ctx, args[0], options)
		if err != nil {
			return err
		}
		defer conn.Close()

		listing, err := conn.ListModules(ctx)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()

		for _, line := range listing.MOTD {
			fmt.Fprintln(out, line)
		}

		if len(listing.MOTD) > 0 {
			fmt.Fprintln(out)
		}

		for _, module := range listing.Modules {
			fmt.Fprintf(out, "%-15s\t%s\n", module.Name, module.Comment)
		}

		return nil
	},
}
