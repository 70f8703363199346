// embedpy runs guest scripts and calls guest functions through the embedpy
// bridge.
package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/richinsley/embedpy"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// exitError carries a process exit status out of a command.
type exitError struct{ code int }

func (e exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

type app struct {
	configPath string
	verbose    bool
	format     string

	cfg embedpy.Config
	log *zap.Logger
}

func main() {
	a := &app{}
	err := a.rootCommand().Execute()
	if err == nil {
		return
	}
	if e, ok := err.(exitError); ok {
		os.Exit(e.code)
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "embedpy",
		Short:         "Run guest code through the embedpy bridge",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "embedpy.yaml", "YAML configuration file")
	pf.StringArrayP("path", "p", nil, "directory added to sys.path (repeatable)")
	pf.String("companion", "", "companion module imported at start")
	pf.String("diag", "", "diagnostic flags, e.g. exec,err or 0x24")
	pf.Bool("no-redirect", false, "write guest output directly to the process streams")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "log bridge activity to stderr")
	pf.StringVar(&a.format, "format", "text", "result format for call: text or msgpack")

	root.AddCommand(
		a.runCommand(),
		a.execCommand(),
		a.callCommand(),
		a.replCommand(),
		a.serveCommand(),
		a.versionCommand(),
	)
	return root
}

func (a *app) load(cmd *cobra.Command) error {
	cfg, err := embedpy.LoadConfig(a.configPath, cmd.Flags())
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	switch a.format {
	case "text", "msgpack":
	default:
		return fmt.Errorf("unknown format %q", a.format)
	}

	a.log = zap.NewNop()
	if a.verbose || cfg.Diag != embedpy.DiagOff {
		if a.log, err = zap.NewDevelopment(); err != nil {
			return err
		}
		embedpy.SetLogger(a.log)
	}
	cfg.Logger = a.log
	a.cfg = cfg
	return nil
}

// bridge starts a bridge for one command. The returned stop function must be
// called when the command is done; a SIGINT or SIGTERM also stops the bridge
// and exits.
func (a *app) bridge(argv []string, stdout, stderr io.Writer) (*embedpy.Bridge, func(), error) {
	cfg := a.cfg
	cfg.Argv = append(append([]string{}, cfg.Argv...), argv...)
	cfg.Stdout, cfg.Stderr = stdout, stderr
	b := embedpy.New(cfg)
	if err := b.Start(nil); err != nil {
		return nil, nil, err
	}

	sigs, stopNotify := notifySignals()
	done := make(chan struct{})
	go func() {
		select {
		case sig := <-sigs:
			a.log.Info("signal received, stopping", zap.Stringer("signal", sig))
			stopped := make(chan struct{})
			go func() {
				b.Stop()
				close(stopped)
			}()
			select {
			case <-stopped:
			case <-time.After(time.Second):
			}
			os.Exit(130)
		case <-done:
		}
	}()

	return b, func() {
		close(done)
		stopNotify()
		b.Stop()
	}, nil
}

func (a *app) versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the bridge and interpreter versions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b := embedpy.New(a.cfg)
			fmt.Fprintln(cmd.OutOrStdout(), b.Version())
			fmt.Fprintf(cmd.OutOrStdout(), "companion API %s\n", embedpy.APIVersion.MinorString())
			return nil
		},
	}
}
