package melty

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"

	"go.uber.org/zap"

	"github.com/DuckyOnQuack-999/Melty-Beta/cli"
	"github.com/DuckyOnQuack-999/Melty-Beta/internal/apply"
	"github.com/DuckyOnQuack-999/Melty-Beta/internal/changeset"
	"github.com/DuckyOnQuack-999/Melty-Beta/internal/config"
	"github.com/DuckyOnQuack-999/Melty-Beta/internal/coordinator"
	"github.com/DuckyOnQuack-999/Melty-Beta/internal/fs"
	"github.com/DuckyOnQuack-999/Melty-Beta/internal/logging"
	"github.com/DuckyOnQuack-999/Melty-Beta/internal/nvim"
	"github.com/DuckyOnQuack-999/Melty-Beta/internal/parser"
	"github.com/DuckyOnQuack-999/Melty-Beta/internal/patcher"
	"github.com/DuckyOnQuack-999/Melty-Beta/internal/source"
	"github.com/DuckyOnQuack-999/Melty-Beta/internal/vcs"
	"github.com/DuckyOnQuack-999/Melty-Beta/internal/workset"
	"github.com/DuckyOnQuack-999/Melty-Beta/model"
)

// App wires parsing, application and bookkeeping for one working tree.
type App struct {
	cfg         *cli.Config
	root        string
	logger      *zap.Logger
	applicator  *patcher.Applicator
	engine      *apply.Engine
	workset     *workset.Workset
	coordinator *coordinator.Coordinator
	nvim        *nvim.Writer
}

// DetailedError enhances a standard error with a stack trace.
type DetailedError struct {
	Err   error
	Stack []byte
}

func (e *DetailedError) Error() string {
	return e.Err.Error()
}

func (e *DetailedError) Unwrap() error {
	return e.Err
}

// New creates a new App instance. The root defaults to the enclosing git
// work tree, or the current directory outside of one. Settings from the
// config file fill in what cfg does not set explicitly.
func New(cfg *cli.Config) (*App, error) {
	root, err := resolveRoot(cfg.Root)
	if err != nil {
		return nil, err
	}

	configPath := cfg.ConfigPath
	if configPath == "" {
		configPath = config.DefaultPath(root)
	}
	fileCfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	cfg.Merge(fileCfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := logging.New(logging.Options{
		Debug: cfg.Debug,
		Dir:   filepath.Join(root, ".melty", "logs"),
	})
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg:        cfg,
		root:       root,
		logger:     logger,
		applicator: patcher.New(logger),
	}

	var writer fs.Writer = fs.AtomicWriter{}
	if cfg.Nvim {
		a.nvim, err = nvim.New(logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to nvim: %w", err)
		}
		writer = a.nvim
	}

	a.engine, err = apply.New(root, apply.Options{
		Writer:    writer,
		Committer: vcs.NewGit(root, logger),
		Logger:    logger,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	a.workset, err = workset.Open(root, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to open workset: %w", err)
	}

	a.coordinator = a.newCoordinator()
	logger.Debug("app initialized",
		zap.String("root", root),
		zap.Bool("autocommit", cfg.Autocommit),
		zap.Bool("nvim", cfg.Nvim))
	return a, nil
}

func resolveRoot(root string) (string, error) {
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("could not get current working directory: %w", err)
		}
		root = wd
		if top, err := vcs.FindRoot(context.Background(), wd); err == nil {
			root = top
		}
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("invalid root: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("invalid root: %s is not a directory", abs)
	}
	return abs, nil
}

func (a *App) newCoordinator() *coordinator.Coordinator {
	opts := coordinator.Options{
		Root:       a.root,
		NoPrefill:  true,
		Autocommit: a.cfg.Autocommit,
		Applicator: a.applicator,
		Engine:     a.engine,
		Tracker:    a.workset,
		Logger:     a.logger,
	}
	if msg := strings.TrimSpace(a.cfg.Message); msg != "" {
		opts.MessageFunc = func(context.Context, model.ParsedResponse, *changeset.ChangeSet) string {
			return msg
		}
	}
	return coordinator.New(opts)
}

// Root returns the absolute working tree root.
func (a *App) Root() string {
	return a.root
}

// Config returns the effective configuration.
func (a *App) Config() *cli.Config {
	return a.cfg
}

// Workset returns the tracked files.
func (a *App) Workset() *workset.Workset {
	return a.workset
}

// Close flushes the log and releases the editor connection.
func (a *App) Close() error {
	var errs []error
	if a.nvim != nil {
		errs = append(errs, a.nvim.Close())
	}
	_ = a.logger.Sync()
	return errors.Join(errs...)
}

// Kind returns the turn kind selected by the configuration.
func (a *App) Kind() coordinator.Kind {
	if a.cfg.Chat {
		return coordinator.KindChat
	}
	return coordinator.KindCode
}

// Parse scans complete model output without touching the working tree.
func (a *App) Parse(content string) model.ParsedResponse {
	return parser.Scan(content, false)
}

// Plan computes the changes content would make and their diff without
// writing anything.
func (a *App) Plan(content string) (cs *changeset.ChangeSet, report model.DiffReport, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &DetailedError{
				Err:   fmt.Errorf("internal panic: %v", r),
				Stack: debug.Stack(),
			}
		}
	}()

	parsed := a.Parse(content)
	cs, err = a.applicator.Apply(parsed.Instructions, a.root)
	if err != nil {
		return nil, model.DiffReport{}, err
	}
	return cs, apply.BuildReport(cs), nil
}

// Apply runs complete model output as one turn.
func (a *App) Apply(ctx context.Context, content string) (*coordinator.Result, error) {
	streamer := source.NewReaderStreamer(strings.NewReader(content), a.cfg.ChunkSize)
	return a.Run(ctx, streamer, nil)
}

// Run streams one turn from streamer, reporting previews to sink.
func (a *App) Run(ctx context.Context, streamer coordinator.Streamer, sink func(coordinator.Preview)) (res *coordinator.Result, err error) {
	// Centralized panic recovery to provide stack traces for unexpected errors.
	defer func() {
		if r := recover(); r != nil {
			err = &DetailedError{
				Err:   fmt.Errorf("internal panic: %v", r),
				Stack: debug.Stack(),
			}
			res = &coordinator.Result{State: coordinator.Done, Err: err}
			a.logger.Error("panic during turn", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			// The interrupted turn never reached a terminal state.
			a.coordinator = a.newCoordinator()
		}
	}()

	return a.coordinator.Run(ctx, a.Kind(), streamer, sink)
}
