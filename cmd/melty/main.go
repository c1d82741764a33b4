package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"

	"github.com/DuckyOnQuack-999/Melty-Beta/cli"
	"github.com/DuckyOnQuack-999/Melty-Beta/internal/config"
	"github.com/DuckyOnQuack-999/Melty-Beta/internal/coordinator"
	"github.com/DuckyOnQuack-999/Melty-Beta/internal/render"
	"github.com/DuckyOnQuack-999/Melty-Beta/internal/source"
	"github.com/DuckyOnQuack-999/Melty-Beta/internal/tui"
	"github.com/DuckyOnQuack-999/Melty-Beta/internal/ui"
	"github.com/DuckyOnQuack-999/Melty-Beta/melty"
	"github.com/DuckyOnQuack-999/Melty-Beta/model"
)

func main() {
	cfg, err := cli.ParseFlags()
	if err != nil {
		// pflag already prints the error message.
		os.Exit(1)
	}
	if err := run(cfg); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		var detailed *melty.DetailedError
		if errors.As(err, &detailed) {
			fmt.Fprintf(os.Stderr, "\n%s", detailed.Stack)
		}
		os.Exit(1)
	}
}

// errReported marks a turn error that the report already showed.
var errReported = errors.New("error already reported")

func run(cfg *cli.Config) error {
	app, err := melty.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer app.Close()
	cfg = app.Config()

	streamer, origin, err := source.Open(cfg.ChunkSize)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.DryRun {
		return dryRun(ctx, app, streamer)
	}

	var res *coordinator.Result
	useTUI := !cfg.NoTUI && isatty.IsTerminal(os.Stdout.Fd())
	if useTUI {
		res, err = runTUI(ctx, app, streamer, origin)
	} else {
		res, err = app.Run(ctx, streamer, nil)
	}
	if res == nil {
		return err
	}

	// The TUI leaves its own summary on screen.
	if !useTUI || cfg.Format != config.FormatText {
		if rerr := report(os.Stdout, cfg.Format, res); rerr != nil {
			return rerr
		}
	}
	if err != nil {
		return fmt.Errorf("%w: %w", errReported, err)
	}
	return nil
}

func runTUI(ctx context.Context, app *melty.App, streamer coordinator.Streamer, origin source.Origin) (*coordinator.Result, error) {
	m := tui.New(ctx, func(ctx context.Context, sink func(coordinator.Preview)) (*coordinator.Result, error) {
		return app.Run(ctx, streamer, sink)
	})

	var opts []tea.ProgramOption
	if origin == source.OriginStdin {
		// Stdin carries the response; keys come from the terminal.
		opts = append(opts, tea.WithInputTTY())
	}
	p := tea.NewProgram(m, opts...)
	m.SetProgram(p)
	if _, err := p.Run(); err != nil {
		return nil, fmt.Errorf("error running program: %w", err)
	}

	res := m.Result()
	if res == nil {
		return nil, model.ErrOperationCancelled
	}
	return res, res.Err
}

func dryRun(ctx context.Context, app *melty.App, streamer coordinator.Streamer) error {
	final, err := streamer.Stream(ctx, func(string) error { return nil })
	if err != nil {
		return err
	}
	cs, report, err := app.Plan(final.Text)
	if err != nil {
		return err
	}
	printer := ui.New(os.Stdout)
	if cs.IsEmpty() {
		printer.Info("No changes.")
		return nil
	}
	printer.PrintDiff(report.DiffPreview)
	return nil
}

func report(out io.Writer, format string, res *coordinator.Result) error {
	switch format {
	case config.FormatMarkdown:
		_, err := io.WriteString(out, render.Markdown(res))
		return err
	case config.FormatHTML:
		html, err := render.HTML(res)
		if err != nil {
			return err
		}
		_, err = io.WriteString(out, html)
		return err
	default:
		ui.New(out).PrintTurn(res, true)
		return nil
	}
}
