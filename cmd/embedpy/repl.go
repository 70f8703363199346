package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/richinsley/embedpy"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const (
	prompt     = ">>> "
	contPrompt = "... "
)

// lineReader yields input lines; prompt is shown first when interactive.
type lineReader interface {
	ReadLine(prompt string) (string, error)
}

type termReader struct{ t *term.Terminal }

func (r termReader) ReadLine(prompt string) (string, error) {
	r.t.SetPrompt(prompt)
	return r.t.ReadLine()
}

type scanReader struct{ s *bufio.Scanner }

func (r scanReader) ReadLine(string) (string, error) {
	if !r.s.Scan() {
		if err := r.s.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return r.s.Text(), nil
}

func (a *app) replCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Read and evaluate guest code interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				in  lineReader
				out io.Writer
			)
			fd := int(os.Stdin.Fd())
			if term.IsTerminal(fd) {
				old, err := term.MakeRaw(fd)
				if err != nil {
					return err
				}
				defer term.Restore(fd, old)
				t := term.NewTerminal(struct {
					io.Reader
					io.Writer
				}{os.Stdin, os.Stdout}, prompt)
				in, out = termReader{t}, t
			} else {
				in, out = scanReader{bufio.NewScanner(cmd.InOrStdin())}, cmd.OutOrStdout()
			}

			b, stop, err := a.bridge(nil, out, out)
			if err != nil {
				return err
			}
			defer stop()
			fmt.Fprintf(out, "%s\n", b.Version())
			return repl(b, in, out)
		},
	}
}

// repl evaluates one input unit at a time. A line ending in ':' opens a block
// that continues until an empty line.
func repl(b *embedpy.Bridge, in lineReader, out io.Writer) error {
	for {
		line, err := in.ReadLine(prompt)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		src := line
		if strings.HasSuffix(strings.TrimSpace(line), ":") {
			var block strings.Builder
			block.WriteString(line)
			for {
				next, err := in.ReadLine(contPrompt)
				if err != nil || strings.TrimSpace(next) == "" {
					break
				}
				block.WriteString("\n" + next)
			}
			src = block.String()
		}
		evalAndPrint(b, src, out)
	}
}

// evalAndPrint shows the value of an expression; input that is not an
// expression is executed as statements.
func evalAndPrint(b *embedpy.Bridge, src string, out io.Writer) {
	h, err := b.Eval(src)
	if err == nil {
		defer b.DecRef(h)
		v, err := b.AsHostObject(h, nil)
		switch {
		case err != nil:
			fmt.Fprintln(out, err)
		case v != nil:
			fmt.Fprintln(out, v)
		}
		return
	}
	var e *embedpy.Error
	if !errors.As(err, &e) || e.Exception == nil || e.Exception.Type != "SyntaxError" {
		printError(out, err)
		return
	}
	if err := b.Exec(src); err != nil {
		printError(out, err)
	}
}

func printError(out io.Writer, err error) {
	var e *embedpy.Error
	if errors.As(err, &e) && e.Exception != nil {
		fmt.Fprintln(out, e.Exception.String())
		return
	}
	fmt.Fprintln(out, err)
}
