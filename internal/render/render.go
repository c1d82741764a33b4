package render

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/DuckyOnQuack-999/Melty-Beta/internal/coordinator"
)

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// Markdown renders a turn as a markdown document: the prose, the changed
// files with their line stats, the unified diff, the commit and any
// dropped blocks or error.
func Markdown(res *coordinator.Result) string {
	var b strings.Builder

	if msg := res.Message(); msg != "" {
		b.WriteString(msg)
		b.WriteString("\n\n")
	}

	if !res.Report.IsEmpty() {
		b.WriteString("## Changes\n\n")
		for _, s := range res.Report.Stats {
			fmt.Fprintf(&b, "- `%s` (+%d -%d)\n", s.Path, s.Added, s.Removed)
		}
		b.WriteString("\n")
		writeFenced(&b, "diff", res.Report.DiffPreview)
	}

	if res.Commit != nil {
		fmt.Fprintf(&b, "Committed `%s`: %s\n\n", shortID(res.Commit.ID), res.Commit.Message)
	}

	if len(res.Parsed.Diagnostics) > 0 {
		b.WriteString("## Dropped blocks\n\n")
		for _, d := range res.Parsed.Diagnostics {
			fmt.Fprintf(&b, "- block %d: %v\n", d.Index, d.Err)
		}
		b.WriteString("\n")
	}

	if res.Err != nil {
		b.WriteString("## Error\n\n")
		writeFenced(&b, "", res.Err.Error()+"\n")
	}

	return strings.TrimRight(b.String(), "\n") + "\n"
}

// HTML renders a turn as an HTML fragment.
func HTML(res *coordinator.Result) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(Markdown(res)), &buf); err != nil {
		return "", fmt.Errorf("failed to render html: %w", err)
	}
	return buf.String(), nil
}

// writeFenced writes content in a code fence longer than any backtick run
// inside it.
func writeFenced(b *strings.Builder, lang, content string) {
	fence := strings.Repeat("`", max(3, longestRun(content, '`')+1))
	b.WriteString(fence)
	b.WriteString(lang)
	b.WriteString("\n")
	b.WriteString(content)
	if !strings.HasSuffix(content, "\n") {
		b.WriteString("\n")
	}
	b.WriteString(fence)
	b.WriteString("\n\n")
}

func longestRun(s string, c byte) int {
	longest, run := 0, 0
	for i := 0; i < len(s); i++ {
		if s[i] == c {
			run++
			longest = max(longest, run)
		} else {
			run = 0
		}
	}
	return longest
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
