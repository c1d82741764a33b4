package nvim

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/neovim/go-client/nvim"
	"go.uber.org/zap"
)

// EnvListenAddress names the socket of a running Neovim to write through.
const EnvListenAddress = "NVIM_LISTEN_ADDRESS"

// Writer writes files through Neovim buffers so that an open editor sees
// the new content and can undo it. It implements fs.Writer.
type Writer struct {
	nvim          *nvim.Nvim
	isSelfStarted bool
	cmd           *exec.Cmd
	socketPath    string
	logger        *zap.Logger
}

// New connects to the Neovim at $NVIM_LISTEN_ADDRESS or, failing that,
// starts a temporary headless instance.
func New(logger *zap.Logger) (*Writer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if addr := os.Getenv(EnvListenAddress); addr != "" {
		v, err := nvim.Dial(addr)
		if err == nil {
			logger.Debug("connected to running nvim", zap.String("addr", addr))
			return &Writer{nvim: v, logger: logger}, nil
		}
		logger.Warn("could not connect to running nvim", zap.String("addr", addr), zap.Error(err))
	}

	tmpDir, err := os.MkdirTemp("", "melty-nvim-")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir for nvim: %w", err)
	}
	socketPath := filepath.Join(tmpDir, "nvim.sock")

	cmd := exec.Command("nvim", "--headless", "--clean", "--listen", socketPath)
	if err := cmd.Start(); err != nil {
		os.RemoveAll(tmpDir)
		return nil, fmt.Errorf("failed to start headless nvim: %w. Is 'nvim' in your PATH?", err)
	}

	for i := 0; i < 40; i++ {
		if _, err := os.Stat(socketPath); err == nil {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}

	v, err := nvim.Dial(socketPath)
	if err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		os.RemoveAll(tmpDir)
		return nil, fmt.Errorf("failed to connect to headless nvim: %w", err)
	}

	w := &Writer{
		nvim:          v,
		isSelfStarted: true,
		cmd:           cmd,
		socketPath:    socketPath,
		logger:        logger,
	}
	if err := v.Command("set noswapfile"); err != nil {
		logger.Warn("could not configure headless nvim", zap.Error(err))
	}
	return w, nil
}

// Close disconnects from Neovim and stops it if it was started by New.
func (w *Writer) Close() error {
	var errs []error
	if w.nvim != nil {
		errs = append(errs, w.nvim.Close())
	}
	if w.isSelfStarted && w.cmd != nil && w.cmd.Process != nil {
		if err := w.cmd.Process.Kill(); err == nil {
			_ = w.cmd.Wait()
		}
		errs = append(errs, os.RemoveAll(filepath.Dir(w.socketPath)))
	}
	return errors.Join(errs...)
}

// WriteFile loads path into a buffer, replaces its lines with content and
// writes it. Parent directories are created first.
func (w *Writer) WriteFile(path string, content string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(absPath), 0755); err != nil {
		return err
	}

	lines, eol := splitContent(content)
	eolOption := "setlocal endofline fixendofline"
	if !eol {
		eolOption = "setlocal noendofline nofixendofline"
	}

	b := w.nvim.NewBatch()
	b.Command("edit! " + escapePath(absPath))
	b.SetBufferLines(0, 0, -1, true, lines)
	b.Command(eolOption)
	b.Command("write!")
	if err := b.Execute(); err != nil {
		return fmt.Errorf("nvim failed to write %s: %w", path, err)
	}
	w.logger.Debug("wrote buffer", zap.String("path", absPath), zap.Int("lines", len(lines)))
	return nil
}

// splitContent turns file content into buffer lines and reports whether the
// content ends with a newline.
func splitContent(content string) (lines [][]byte, eol bool) {
	eol = strings.HasSuffix(content, "\n")
	content = strings.TrimSuffix(content, "\n")
	for _, l := range strings.Split(content, "\n") {
		lines = append(lines, []byte(l))
	}
	return lines, eol
}

// escapePath escapes characters that are special on an Ex command line.
func escapePath(p string) string {
	var b strings.Builder
	for _, r := range p {
		if strings.ContainsRune(` \%#|"`, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
