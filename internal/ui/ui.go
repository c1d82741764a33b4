package ui

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/DuckyOnQuack-999/Melty-Beta/internal/apply"
	"github.com/DuckyOnQuack-999/Melty-Beta/internal/coordinator"
	"github.com/DuckyOnQuack-999/Melty-Beta/internal/patcher"
	"github.com/DuckyOnQuack-999/Melty-Beta/model"
)

var (
	HeaderColor  = color.New(color.FgBlue, color.Bold)
	InfoColor    = color.New(color.FgCyan)
	SuccessColor = color.New(color.FgGreen)
	WarningColor = color.New(color.FgYellow)
	ErrorColor   = color.New(color.FgRed)
	PathColor    = color.New(color.FgYellow)
	FaintColor   = color.New(color.Faint)
)

// Printer writes colored status output.
type Printer struct {
	out io.Writer
}

// New creates a Printer writing to out.
func New(out io.Writer) *Printer {
	return &Printer{out: out}
}

func (p *Printer) Header(format string, a ...any) {
	HeaderColor.Fprintf(p.out, format+"\n", a...)
}

func (p *Printer) Info(format string, a ...any) {
	InfoColor.Fprintf(p.out, format+"\n", a...)
}

func (p *Printer) Success(format string, a ...any) {
	SuccessColor.Fprintf(p.out, format+"\n", a...)
}

func (p *Printer) Warning(format string, a ...any) {
	WarningColor.Fprintf(p.out, format+"\n", a...)
}

func (p *Printer) Error(format string, a ...any) {
	ErrorColor.Fprintf(p.out, format+"\n", a...)
}

func (p *Printer) Path(format string, a ...any) {
	PathColor.Fprintf(p.out, "  "+format+"\n", a...)
}

// Summarize sorts the files of a turn into created, modified and failed.
func Summarize(res *coordinator.Result) model.Summary {
	s := model.Summary{Message: res.Message()}
	if res.Err == nil {
		for _, path := range res.Report.FilePathsChanged {
			if fc, ok := res.ChangeSet.Get(path); ok && fc.Created {
				s.Created = append(s.Created, path)
			} else {
				s.Modified = append(s.Modified, path)
			}
		}
		return s
	}

	var instrErr *patcher.InstructionError
	var ioErr *apply.ApplyIOError
	switch {
	case errors.As(res.Err, &instrErr):
		s.Failed = append(s.Failed, instrErr.Instruction.FilePath)
	case errors.As(res.Err, &ioErr):
		s.Modified = append(s.Modified, ioErr.Written...)
		if ioErr.Failed != "" {
			s.Failed = append(s.Failed, ioErr.Failed)
		}
	}
	return s
}

// PrintDiff writes a unified diff with added and removed lines colored.
func (p *Printer) PrintDiff(diff string) {
	for _, line := range strings.SplitAfter(diff, "\n") {
		switch {
		case line == "":
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
			HeaderColor.Fprint(p.out, line)
		case strings.HasPrefix(line, "@@"):
			InfoColor.Fprint(p.out, line)
		case strings.HasPrefix(line, "+"):
			SuccessColor.Fprint(p.out, line)
		case strings.HasPrefix(line, "-"):
			ErrorColor.Fprint(p.out, line)
		default:
			fmt.Fprint(p.out, line)
		}
	}
}

// PrintTurn writes the outcome of a turn: prose, diff, summary and errors.
func (p *Printer) PrintTurn(res *coordinator.Result, showDiff bool) {
	if msg := res.Message(); msg != "" {
		fmt.Fprintln(p.out, msg)
	}
	if showDiff && res.Report.DiffPreview != "" {
		fmt.Fprintln(p.out)
		p.PrintDiff(res.Report.DiffPreview)
	}

	for _, d := range res.Parsed.Diagnostics {
		p.Warning("Skipped change block %d: %v", d.Index, d.Err)
	}
	if res.StopReason == coordinator.StopConfirmCode {
		p.Info("The response wants to make code changes. Run again without --chat to apply them.")
	}

	s := Summarize(res)
	p.Header("\n--- Update Summary ---")
	stats := make(map[string]model.FileStat, len(res.Report.Stats))
	for _, st := range res.Report.Stats {
		stats[st.Path] = st
	}
	if len(s.Created) == 0 && len(s.Modified) == 0 && len(s.Failed) == 0 {
		p.Info("No files were updated.")
	}
	if len(s.Created) > 0 {
		p.Success("Created %d new file(s):", len(s.Created))
		for _, f := range s.Created {
			p.printFile(f, stats)
		}
	}
	if len(s.Modified) > 0 {
		p.Success("Modified %d file(s):", len(s.Modified))
		for _, f := range s.Modified {
			p.printFile(f, stats)
		}
	}
	if len(s.Failed) > 0 {
		p.Error("Failed to process %d file(s):", len(s.Failed))
		for _, f := range s.Failed {
			fmt.Fprintf(p.out, "  - %s\n", f)
		}
	}
	if res.Commit != nil {
		p.Success("Committed %s: %s", res.Commit.ID, res.Commit.Message)
	}
	if res.Err != nil {
		p.Error("Error: %v", res.Err)
	}
}

func (p *Printer) printFile(path string, stats map[string]model.FileStat) {
	st, ok := stats[path]
	if !ok {
		fmt.Fprintf(p.out, "  - %s\n", path)
		return
	}
	fmt.Fprintf(p.out, "  - %s %s %s\n", path,
		SuccessColor.Sprintf("+%d", st.Added),
		ErrorColor.Sprintf("-%d", st.Removed))
}
