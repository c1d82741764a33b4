package melty

import (
	"context"
	"fmt"

	"github.com/DuckyOnQuack-999/Melty-Beta/cli"
	"github.com/DuckyOnQuack-999/Melty-Beta/internal/ui"
	"github.com/DuckyOnQuack-999/Melty-Beta/model"
)

// Config for using melty as a library.
type Config struct {
	// Root is the working tree; defaults to the git top level or the
	// current directory.
	Root string
	// Commit the applied edits.
	Autocommit bool
	// Commit message; defaults to one naming the changed files.
	Message string
}

// Apply parses the given model output and applies its edits to files.
// It returns a summary of the operations.
func Apply(ctx context.Context, content string, config Config) (model.Summary, error) {
	cliCfg := &cli.Config{
		Root:       config.Root,
		Autocommit: config.Autocommit,
		Message:    config.Message,
	}
	cliCfg.SetExplicit("autocommit")

	app, err := New(cliCfg)
	if err != nil {
		return model.Summary{}, fmt.Errorf("failed to initialize melty app: %w", err)
	}
	defer app.Close()

	res, err := app.Apply(ctx, content)
	return ui.Summarize(res), err
}
