package render

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/DuckyOnQuack-999/Melty-Beta/internal/apply"
	"github.com/DuckyOnQuack-999/Melty-Beta/internal/changeset"
	"github.com/DuckyOnQuack-999/Melty-Beta/internal/coordinator"
	"github.com/DuckyOnQuack-999/Melty-Beta/model"
)

type codeBlock struct {
	Lang    string
	Content string
}

// fencedBlocks walks the markdown AST and collects fenced code blocks.
func fencedBlocks(t *testing.T, source []byte) []codeBlock {
	t.Helper()
	var blocks []codeBlock
	root := goldmark.DefaultParser().Parse(text.NewReader(source))
	err := ast.Walk(root, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		fenced, ok := node.(*ast.FencedCodeBlock)
		if !entering || !ok {
			return ast.WalkContinue, nil
		}
		var block codeBlock
		if fenced.Info != nil {
			block.Lang = string(fenced.Info.Text(source))
		}
		var content bytes.Buffer
		lines := fenced.Lines()
		for i := 0; i < lines.Len(); i++ {
			line := lines.At(i)
			content.Write(line.Value(source))
		}
		block.Content = content.String()
		blocks = append(blocks, block)
		return ast.WalkSkipChildren, nil
	})
	require.NoError(t, err)
	return blocks
}

func appliedResult() *coordinator.Result {
	b := changeset.NewBuilder()
	b.Touch("a.txt", "old\n", false)
	b.Set("a.txt", "new\n")
	cs := b.Build()
	return &coordinator.Result{
		Parsed:    model.ParsedResponse{ProseChunks: []string{"Swapped the word.", "Done."}},
		ChangeSet: cs,
		Report:    apply.BuildReport(cs),
		Commit:    &model.CommitRecord{ID: "0123456789abcdef", Message: "Update a.txt"},
	}
}

func TestMarkdown(t *testing.T) {
	md := Markdown(appliedResult())

	assert.True(t, strings.HasPrefix(md, "Swapped the word.\nDone.\n\n## Changes\n\n- `a.txt` (+1 -1)\n"))
	assert.Contains(t, md, "Committed `0123456789ab`: Update a.txt\n")

	blocks := fencedBlocks(t, []byte(md))
	require.Len(t, blocks, 1)
	assert.Equal(t, "diff", blocks[0].Lang)
	assert.Equal(t, "--- a/a.txt\n+++ b/a.txt\n@@ -1 +1 @@\n-old\n+new\n", blocks[0].Content)
}

func TestMarkdownErrorsAndDiagnostics(t *testing.T) {
	res := &coordinator.Result{
		Parsed: model.ParsedResponse{Diagnostics: []model.BlockDiagnostic{
			{Index: 2, Err: model.ErrMalformedBlock},
		}},
		Err: errors.New("search text not found: \"```\""),
	}
	md := Markdown(res)

	assert.Contains(t, md, "## Dropped blocks\n\n- block 2: malformed change block\n")
	blocks := fencedBlocks(t, []byte(md))
	require.Len(t, blocks, 1)
	assert.Equal(t, res.Err.Error()+"\n", blocks[0].Content, "the fence outgrows backticks in the error")
}

func TestMarkdownEmptyTurn(t *testing.T) {
	assert.Equal(t, "\n", Markdown(&coordinator.Result{}))
}

func TestHTML(t *testing.T) {
	out, err := HTML(appliedResult())
	require.NoError(t, err)

	assert.Contains(t, out, "<h2>Changes</h2>")
	assert.Contains(t, out, "<code>a.txt</code>")
	assert.Contains(t, out, `<pre><code class="language-diff">--- a/a.txt`)
}

func TestLongestRun(t *testing.T) {
	assert.Equal(t, 0, longestRun("abc", '`'))
	assert.Equal(t, 4, longestRun("a``b````c", '`'))
}
