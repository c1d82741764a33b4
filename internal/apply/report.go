package apply

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/DuckyOnQuack-999/Melty-Beta/internal/changeset"
	"github.com/DuckyOnQuack-999/Melty-Beta/model"
)

const diffContext = 3

// BuildReport derives the unified diff and per-file stats of a changeset.
// It depends only on the changeset, so it is available before any write.
func BuildReport(cs *changeset.ChangeSet) model.DiffReport {
	if cs.IsEmpty() {
		return model.DiffReport{}
	}

	var preview strings.Builder
	report := model.DiffReport{
		FilePathsChanged: cs.Paths(),
	}
	for _, fc := range cs.Files() {
		preview.WriteString(UnifiedDiff(fc))
		report.Stats = append(report.Stats, Stat(fc))
	}
	report.DiffPreview = preview.String()
	return report
}

// UnifiedDiff renders one file change as a unified diff. Created files are
// diffed against /dev/null.
func UnifiedDiff(fc changeset.FileChange) string {
	from := "a/" + fc.Path
	if fc.Created {
		from = "/dev/null"
	}
	text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        splitLines(fc.Original),
		B:        splitLines(fc.Updated),
		FromFile: from,
		ToFile:   "b/" + fc.Path,
		Context:  diffContext,
	})
	if err != nil {
		return ""
	}
	return text
}

// noNewline marks a last line without a terminator, as git does.
const noNewline = "\n\\ No newline at end of file\n"

// splitLines keeps line terminators and treats empty content as no lines.
// An unterminated last line carries the no-newline marker so that "x" and
// "x\n" differ in the diff.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	} else {
		lines[len(lines)-1] += noNewline
	}
	return lines
}

// Stat counts added and removed lines of one file change.
func Stat(fc changeset.FileChange) model.FileStat {
	dmp := diffmatchpatch.New()
	a, b, lineArray := dmp.DiffLinesToChars(fc.Original, fc.Updated)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lineArray)

	stat := model.FileStat{Path: fc.Path}
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			stat.Added += countLines(d.Text)
		case diffmatchpatch.DiffDelete:
			stat.Removed += countLines(d.Text)
		}
	}
	return stat
}

func countLines(s string) int {
	n := strings.Count(s, "\n")
	if s != "" && !strings.HasSuffix(s, "\n") {
		n++
	}
	return n
}
