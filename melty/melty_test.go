package melty_test

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DuckyOnQuack-999/Melty-Beta/cli"
	"github.com/DuckyOnQuack-999/Melty-Beta/internal/coordinator"
	"github.com/DuckyOnQuack-999/Melty-Beta/melty"
	"github.com/DuckyOnQuack-999/Melty-Beta/model"
)

const response = `Renaming the greeting and adding notes.
<change_code path="main.go">
<search>
	println("hello")
</search>
<replace>
	println("hello, gopher")
</replace>
</change_code>
<change_code path="docs/notes.md">
<<<<<<< SEARCH
=======
# Notes
>>>>>>> REPLACE
</change_code>
Done.`

const mainGo = "package main\n\nfunc main() {\n\tprintln(\"hello\")\n}\n"

func newRoot(t *testing.T) string {
	t.Helper()
	t.Setenv("MELTY_AUTOCOMMIT", "")
	t.Setenv("MELTY_DEBUG", "")
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "main.go"), []byte(mainGo), 0644))
	return root
}

func newApp(t *testing.T, cfg *cli.Config) *melty.App {
	t.Helper()
	app, err := melty.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { app.Close() })
	return app
}

func TestLibraryApply(t *testing.T) {
	root := newRoot(t)

	summary, err := melty.Apply(context.Background(), response, melty.Config{Root: root})
	require.NoError(t, err)
	assert.Equal(t, []string{"docs/notes.md"}, summary.Created)
	assert.Equal(t, []string{"main.go"}, summary.Modified)
	assert.Empty(t, summary.Failed)
	assert.Equal(t, "Renaming the greeting and adding notes.\nDone.", summary.Message)

	data, err := os.ReadFile(filepath.Join(root, "main.go"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `println("hello, gopher")`)

	data, err = os.ReadFile(filepath.Join(root, "docs", "notes.md"))
	require.NoError(t, err)
	assert.Equal(t, "# Notes", string(data))
}

func TestLibraryApplyReportsFailure(t *testing.T) {
	root := newRoot(t)
	content := `<change_code path="main.go"><search>goodbye</search><replace>x</replace></change_code>`

	summary, err := melty.Apply(context.Background(), content, melty.Config{Root: root})
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrSearchTextNotFound))
	assert.Equal(t, []string{"main.go"}, summary.Failed)

	data, err := os.ReadFile(filepath.Join(root, "main.go"))
	require.NoError(t, err)
	assert.Equal(t, mainGo, string(data))
}

func TestAppParseAndPlan(t *testing.T) {
	root := newRoot(t)
	app := newApp(t, &cli.Config{Root: root})
	assert.Equal(t, root, app.Root())
	assert.Equal(t, 256, app.Config().ChunkSize)

	parsed := app.Parse(response)
	require.Len(t, parsed.Instructions, 2)
	assert.Equal(t, "main.go", parsed.Instructions[0].FilePath)
	assert.True(t, parsed.Instructions[1].IsCreate())

	cs, report, err := app.Plan(response)
	require.NoError(t, err)
	assert.Equal(t, []string{"main.go", "docs/notes.md"}, cs.Paths())
	assert.Contains(t, report.DiffPreview, `+	println("hello, gopher")`)

	// Planning never touches the working tree.
	_, err = os.Stat(filepath.Join(root, "docs", "notes.md"))
	assert.True(t, os.IsNotExist(err))
	assert.Empty(t, app.Workset().Entries())
}

func TestAppApplyTracksWorkset(t *testing.T) {
	root := newRoot(t)
	app := newApp(t, &cli.Config{Root: root})

	res, err := app.Apply(context.Background(), response)
	require.NoError(t, err)
	assert.Equal(t, coordinator.Done, res.State)
	assert.Equal(t, []string{"main.go", "docs/notes.md"}, res.Report.FilePathsChanged)

	var tracked []string
	for _, e := range app.Workset().Entries() {
		assert.True(t, e.Edited)
		tracked = append(tracked, e.Path)
	}
	assert.Equal(t, []string{"docs/notes.md", "main.go"}, tracked)
}

func TestAppChatTurnNeverWrites(t *testing.T) {
	root := newRoot(t)
	app := newApp(t, &cli.Config{Root: root, Chat: true})
	assert.Equal(t, coordinator.KindChat, app.Kind())

	res, err := app.Apply(context.Background(), response)
	require.NoError(t, err)
	assert.Len(t, res.Parsed.Instructions, 2)
	assert.True(t, res.Report.IsEmpty())

	data, err := os.ReadFile(filepath.Join(root, "main.go"))
	require.NoError(t, err)
	assert.Equal(t, mainGo, string(data))
}

func TestAppReadsConfigFile(t *testing.T) {
	root := newRoot(t)
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".melty"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".melty", "config.yaml"), []byte("chunk_size: 7\nformat: markdown\n"), 0644))

	app := newApp(t, &cli.Config{Root: root})
	assert.Equal(t, 7, app.Config().ChunkSize)
	assert.Equal(t, "markdown", app.Config().Format)
}

func TestNewRejectsBadRoot(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0644))

	_, err := melty.New(&cli.Config{Root: file})
	assert.Error(t, err)

	_, err = melty.New(&cli.Config{Root: filepath.Join(file, "missing")})
	assert.Error(t, err)
}

type panickingStreamer struct{}

func (panickingStreamer) Stream(context.Context, func(string) error) (coordinator.FinalResponse, error) {
	panic("boom")
}

func TestRunRecoversPanics(t *testing.T) {
	root := newRoot(t)
	app := newApp(t, &cli.Config{Root: root})

	res, err := app.Run(context.Background(), panickingStreamer{}, nil)
	var detailed *melty.DetailedError
	require.ErrorAs(t, err, &detailed)
	assert.Contains(t, detailed.Error(), "boom")
	assert.NotEmpty(t, detailed.Stack)
	assert.Equal(t, err, res.Err)

	// The app stays usable after a panicking turn.
	_, err = app.Apply(context.Background(), response)
	require.NoError(t, err)
}

func TestLibraryApplyAutocommit(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
	root := newRoot(t)
	for _, args := range [][]string{
		{"init", "--quiet"},
		{"config", "user.name", "Test"},
		{"config", "user.email", "test@example.com"},
		{"config", "commit.gpgsign", "false"},
	} {
		cmd := exec.Command("git", args...)
		cmd.Dir = root
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, string(out))
	}

	_, err := melty.Apply(context.Background(), response, melty.Config{Root: root, Autocommit: true, Message: "Greet gophers"})
	require.NoError(t, err)

	cmd := exec.Command("git", "log", "-1", "--format=%s", "--name-only")
	cmd.Dir = root
	out, err := cmd.Output()
	require.NoError(t, err)
	lines := strings.Fields(string(out))
	assert.Equal(t, []string{"Greet", "gophers", "docs/notes.md", "main.go"}, lines)
}
