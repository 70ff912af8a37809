// Command mirc runs a configuration file through the lowering and
// pass pipeline and prints the resolved instruction list, in the
// line-oriented record format package backend defines.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"nikand.dev/go/cli"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/dcbaker/meson/backend"
	"github.com/dcbaker/meson/engine"
	"github.com/dcbaker/meson/frontend"
	"github.com/dcbaker/meson/mir"
)

func main() {
	configureCmd := &cli.Command{
		Name:   "configure",
		Action: configureAct,
		Args:   cli.Args{},
	}

	parseCmd := &cli.Command{
		Name:   "parse",
		Action: parseAct,
		Args:   cli.Args{},
	}

	app := &cli.Command{
		Name:        "mirc",
		Description: "mirc configures a build directory from build files",
		Commands: []*cli.Command{
			configureCmd,
			parseCmd,
		},
	}

	cli.RunAndExit(app, os.Args, os.Environ())
}

func parseAct(c *cli.Command) error {
	for _, a := range c.Args {
		b, err := os.ReadFile(a)
		if err != nil {
			return errors.Wrap(err, "read %v", a)
		}

		body, err := frontend.Parse(a, b)
		if err != nil {
			return errors.Wrap(err, "parse %v", a)
		}

		fmt.Printf("%s: %d statements\n", a, len(body.Stmts))
	}

	return nil
}

func configureAct(c *cli.Command) error {
	ctx := tlog.ContextWithSpan(context.Background(), tlog.Root())

	if len(c.Args) == 0 {
		return errors.New("usage: mirc configure <source-root>/meson.build")
	}

	drv := engine.New(".", "build")

	failed := false

	for _, a := range c.Args {
		b, err := os.ReadFile(a)
		if err != nil {
			return errors.Wrap(err, "read %v", a)
		}

		body, err := frontend.Parse(a, b)
		if err != nil {
			return errors.Wrap(err, "parse %v", a)
		}

		res, err := drv.Configure(ctx, a, body)
		if err != nil {
			return errors.Wrap(err, "configure %v", a)
		}

		msgs := res.Diagnostics

		for _, inst := range res.Instructions {
			if m, ok := inst.Obj.(mir.Message); ok && m.Level == mir.LevelError {
				msgs = append(msgs, m)
			}
		}

		printDiagnostics(msgs)

		if hasError(msgs) {
			failed = true
			continue
		}

		fmt.Print(backend.EncodeTests(res.Instructions))
	}

	// spec §7: the engine exits non-zero once any Message(ERROR)
	// survived the pipeline or was reported by a pass, after printing
	// the pass diagnostics and then the instruction list's errors in
	// order; it never hands a backend an instruction list that still
	// contains one.
	if failed {
		return errors.New("configuration failed")
	}

	return nil
}

func hasError(msgs []mir.Message) bool {
	for _, m := range msgs {
		if m.Level == mir.LevelError {
			return true
		}
	}

	return false
}

func printDiagnostics(msgs []mir.Message) {
	for _, m := range msgs {
		switch m.Level {
		case mir.LevelError:
			color.New(color.FgRed, color.Bold).Fprintf(os.Stderr, "ERROR: %s\n", m.Text)
		case mir.LevelWarn:
			color.New(color.FgYellow).Fprintf(os.Stderr, "WARNING: %s\n", m.Text)
		case mir.LevelDebug:
			color.New(color.Faint).Fprintf(os.Stderr, "debug: %s\n", m.Text)
		default:
			fmt.Fprintf(os.Stderr, "%s: %s\n", m.Level, m.Text)
		}
	}
}
