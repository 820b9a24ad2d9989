package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/luma/ferry/client"
)

func init() {
	addClientFlags(ProbeCmd.Flags())
}

var ProbeCmd = &cobra.Command{
	Use:   "probe ADDR [MODULE]",
	Short: "Negotiate with a daemon and report what was agreed",
	Long: `Negotiate with a daemon and report what was agreed

With a MODULE the module is requested and the daemon's multiplexed reply is
read until it closes the connection.

Usage
	ferry probe localhost:873
	ferry probe --binary localhost:873
	ferry probe localhost:873 pub
`,
	Args: cobra.RangeArgs(1, 2),
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

		out := cmd.OutOrStdout()
		session := conn.Session()

		fmt.Fprintf(out, "prologue:   %s\n", session.Decision())
		fmt.Fprintf(out, "protocol:   %s\n", session.NegotiatedProtocol())
		fmt.Fprintf(out, "remote:     %d\n", session.RemoteAdvertisedProtocol())

		if greeting, ok := session.ServerGreeting(); ok && greeting.HasDigestList() {
			fmt.Fprintf(out, "digests:    %s\n", greeting.DigestList)
		} else {
			fmt.Fprintf(out, "compat:     %s\n", session.CompatibilityFlags())
		}

		if len(args) == 2 {
			if _, err := conn.OpenModule(ctx, args[1]); err != nil {
				return err
			}
			fmt.Fprintf(out, "module:     %s opened\n", args[1])
		}

		if len(args) == 2 || session.Decision().IsBinary() {
			reply, err := conn.ReadReply(ctx)
			if err != nil {
				return err
			}

			for _, frame := range reply.Messages {
				fmt.Fprintf(out, "%-16s %s\n", frame.Code, frame.Text())
			}

			if reply.HasExitCode {
				fmt.Fprintf(out, "exit code:  %d\n", reply.ExitCode)
			}
		}

		return nil
	},
}
