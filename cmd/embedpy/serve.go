package main

import (
	"bufio"

	"github.com/richinsley/embedpy"
	"github.com/spf13/cobra"
)

func (a *app) serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Answer framed msgpack call requests on stdin",
		Long: "Answer call requests read from stdin and write the responses to\n" +
			"stdout. Every message is a msgpack map preceded by its length as a\n" +
			"4-byte big-endian integer. Guest output goes to stderr.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, stop, err := a.bridge(nil, cmd.ErrOrStderr(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer stop()
			w := bufio.NewWriter(cmd.OutOrStdout())
			return b.ServeCalls(embedpy.NewFrameTransport(bufio.NewReader(cmd.InOrStdin()), w))
		},
	}
}
