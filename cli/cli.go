package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/DuckyOnQuack-999/Melty-Beta/internal/config"
)

// Config holds all the command-line flag values.
type Config struct {
	Root       string
	Autocommit bool
	Chat       bool
	Message    string
	ChunkSize  int
	Format     string
	Nvim       bool
	NoTUI      bool
	DryRun     bool
	Debug      bool
	ConfigPath string

	changed map[string]bool
}

// ParseFlags parses the process arguments.
func ParseFlags() (*Config, error) {
	return Parse(os.Args[1:], os.Stderr)
}

// Parse defines and parses command-line flags using pflag. Usage and
// errors are written to out.
func Parse(args []string, out io.Writer) (*Config, error) {
	cfg := &Config{}
	defaults := config.DefaultConfig()

	fs := pflag.NewFlagSet("melty", pflag.ContinueOnError)
	fs.SetOutput(out)
	fs.StringVarP(&cfg.Root, "root", "C", "", "Working tree to apply edits to (default: git top level or current directory).")
	fs.BoolVarP(&cfg.Autocommit, "autocommit", "a", false, "Commit the applied edits.")
	fs.BoolVar(&cfg.Chat, "chat", false, "Treat the input as a chat turn: show it but never apply edits.")
	fs.StringVarP(&cfg.Message, "message", "m", "", "Commit message used with --autocommit (default: names the changed files).")
	fs.IntVar(&cfg.ChunkSize, "chunk-size", defaults.ChunkSize, "Bytes read from the input per streamed fragment.")
	fs.StringVar(&cfg.Format, "format", defaults.Format, "Report format printed after the turn: text, markdown or html.")
	fs.BoolVar(&cfg.Nvim, "nvim", false, "Write files through Neovim buffers ($NVIM_LISTEN_ADDRESS or a headless instance).")
	fs.BoolVar(&cfg.NoTUI, "no-tui", false, "Disable the live preview and print plain output.")
	fs.BoolVarP(&cfg.DryRun, "dry-run", "n", false, "Print the diff the edits would produce without writing anything.")
	fs.BoolVar(&cfg.Debug, "debug", false, "Write a debug log to <root>/.melty/logs/melty.log.")
	fs.StringVar(&cfg.ConfigPath, "config", "", "Config file (default: <root>/.melty/config.yaml).")

	fs.Usage = func() {
		fmt.Fprintln(out, "Usage: melty [flags]")
		fmt.Fprintln(out, "\nStream model output containing <change_code> blocks from stdin (pipe) or the clipboard and apply the edits.")
		fmt.Fprintln(out, "\nExample: pbpaste | melty -a")
		fmt.Fprintln(out, "\nFlags:")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	cfg.changed = make(map[string]bool)
	fs.Visit(func(f *pflag.Flag) {
		cfg.changed[f.Name] = true
	})

	if cfg.Chat && cfg.Autocommit {
		return nil, fmt.Errorf("error: --chat and --autocommit are mutually exclusive")
	}
	if cfg.DryRun && (cfg.Chat || cfg.Autocommit) {
		return nil, fmt.Errorf("error: --dry-run cannot be combined with --chat or --autocommit")
	}
	return cfg, nil
}

// SetExplicit marks settings as given explicitly, as if passed as flags,
// so that Merge keeps them.
func (c *Config) SetExplicit(names ...string) {
	if c.changed == nil {
		c.changed = make(map[string]bool)
	}
	for _, n := range names {
		c.changed[n] = true
	}
}

// Merge fills every setting not given on the command line from the config
// file. Explicit flags win.
func (c *Config) Merge(file *config.Config) {
	if !c.changed["autocommit"] {
		c.Autocommit = file.Autocommit
	}
	if !c.changed["debug"] {
		c.Debug = file.Debug
	}
	if !c.changed["chunk-size"] {
		c.ChunkSize = file.ChunkSize
	}
	if !c.changed["format"] {
		c.Format = file.Format
	}
	if !c.changed["nvim"] {
		c.Nvim = file.Nvim
	}
	if c.Chat {
		c.Autocommit = false
	}
}

// Validate checks the merged settings.
func (c *Config) Validate() error {
	return (&config.Config{ChunkSize: c.ChunkSize, Format: c.Format}).Validate()
}
