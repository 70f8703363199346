package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/richinsley/embedpy"
	"github.com/spf13/cobra"
)

func (a *app) runCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run FILE [ARGS...]",
		Short: "Run a guest script file as __main__",
		Long: "Run a guest script file as __main__. Arguments after the file become\n" +
			"sys.argv[1:].",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			b, stop, err := a.bridge(args[1:], cmd.OutOrStdout(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer stop()
			return reportGuestError(cmd, b.ExecFile(args[0], string(src)))
		},
	}
}

func (a *app) execCommand() *cobra.Command {
	var code string
	cmd := &cobra.Command{
		Use:   "exec [-c CODE] [ARGS...]",
		Short: "Execute guest code given with -c or read from stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("command") {
				src, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return err
				}
				code = string(src)
			}
			b, stop, err := a.bridge(args, cmd.OutOrStdout(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer stop()
			return reportGuestError(cmd, b.ExecFile("<command>", code))
		},
	}
	cmd.Flags().StringVarP(&code, "command", "c", "", "guest code to execute")
	return cmd
}

func (a *app) callCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "call MODULE FUNC [ARGS...]",
		Short: "Import a module and call one of its functions",
		Long: "Import a module and call one of its functions. Arguments that parse\n" +
			"as integers, floats or booleans are passed as such; anything else is\n" +
			"passed as a string. The result is printed as text, or written as\n" +
			"msgpack with --format msgpack.",
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, stop, err := a.bridge(nil, cmd.ErrOrStderr(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer stop()

			mod, err := b.Import(args[0])
			if err != nil {
				return reportGuestError(cmd, err)
			}
			defer mod.Release()

			callArgs := make([]any, 0, len(args)-2)
			for _, s := range args[2:] {
				callArgs = append(callArgs, parseArg(s))
			}
			res, err := mod.CallValue(args[1], nil, callArgs...)
			if err != nil {
				return reportGuestError(cmd, err)
			}
			return a.writeResult(cmd.OutOrStdout(), res)
		},
	}
}

func parseArg(s string) any {
	if n, err := strconv.ParseInt(s, 0, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if v, err := strconv.ParseBool(s); err == nil {
		return v
	}
	return s
}

func (a *app) writeResult(w io.Writer, v any) error {
	if a.format == "msgpack" {
		data, err := a.cfg.Serializer.Marshal(v)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	}
	if v == nil {
		_, err := fmt.Fprintln(w, "None")
		return err
	}
	_, err := fmt.Fprintln(w, v)
	return err
}

// reportGuestError prints a guest failure the way the interpreter reports an
// uncaught exception and turns it into exit status 1.
func reportGuestError(cmd *cobra.Command, err error) error {
	if err == nil {
		return nil
	}
	var e *embedpy.Error
	if errors.As(err, &e) && e.Exception != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), e.Exception.String())
		return exitError{code: 1}
	}
	return err
}
