package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/atotto/clipboard"
	"golang.org/x/sync/errgroup"

	"github.com/DuckyOnQuack-999/Melty-Beta/internal/coordinator"
)

// DefaultChunkSize is the read size used when none is configured.
const DefaultChunkSize = 256

// ErrEmptySource is returned when there is nothing to read.
var ErrEmptySource = errors.New("source is empty")

// ReaderStreamer streams the content of a reader as fragments. Fragments
// never split a UTF-8 sequence.
type ReaderStreamer struct {
	r         io.Reader
	chunkSize int
}

// NewReaderStreamer creates a streamer reading chunkSize bytes at a time.
func NewReaderStreamer(r io.Reader, chunkSize int) *ReaderStreamer {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &ReaderStreamer{r: r, chunkSize: chunkSize}
}

// Stream reads in one goroutine and delivers fragments to onFragment from
// another. It stops at EOF, at the first error of either side, or when ctx
// is done. A Read already in progress is not interrupted.
func (s *ReaderStreamer) Stream(ctx context.Context, onFragment func(string) error) (coordinator.FinalResponse, error) {
	g, gctx := errgroup.WithContext(ctx)
	chunks := make(chan string)

	g.Go(func() error {
		defer close(chunks)
		buf := make([]byte, s.chunkSize)
		var pending []byte
		for {
			n, err := s.r.Read(buf)
			if n > 0 {
				pending = append(pending, buf[:n]...)
				cut := completePrefix(pending)
				if cut > 0 {
					select {
					case chunks <- string(pending[:cut]):
					case <-gctx.Done():
						return gctx.Err()
					}
					pending = append(pending[:0], pending[cut:]...)
				}
			}
			if errors.Is(err, io.EOF) {
				if len(pending) > 0 {
					select {
					case chunks <- string(pending):
					case <-gctx.Done():
						return gctx.Err()
					}
				}
				return nil
			}
			if err != nil {
				return fmt.Errorf("failed to read source: %w", err)
			}
		}
	})

	var text strings.Builder
	g.Go(func() error {
		for chunk := range chunks {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := onFragment(chunk); err != nil {
				return err
			}
			text.WriteString(chunk)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return coordinator.FinalResponse{}, err
	}
	if err := ctx.Err(); err != nil {
		return coordinator.FinalResponse{}, err
	}
	return coordinator.FinalResponse{Text: text.String(), StopReason: "end_turn"}, nil
}

// completePrefix returns the length of the longest prefix of b that does not
// end inside a UTF-8 sequence.
func completePrefix(b []byte) int {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if !utf8.RuneStart(b[i]) {
			continue
		}
		if utf8.FullRune(b[i:]) {
			return len(b)
		}
		return i
	}
	return len(b)
}

// Origin names where the input comes from.
type Origin string

const (
	OriginStdin     Origin = "stdin"
	OriginClipboard Origin = "clipboard"
)

// Open returns a streamer over stdin when it is piped, otherwise over the
// clipboard content.
func Open(chunkSize int) (coordinator.Streamer, Origin, error) {
	if stat, err := os.Stdin.Stat(); err == nil && stat.Mode()&os.ModeCharDevice == 0 {
		return NewReaderStreamer(os.Stdin, chunkSize), OriginStdin, nil
	}

	content, err := clipboard.ReadAll()
	if err != nil {
		return nil, OriginClipboard, fmt.Errorf("failed to read from clipboard: %w", err)
	}
	if strings.TrimSpace(content) == "" {
		return nil, OriginClipboard, ErrEmptySource
	}
	return NewReaderStreamer(strings.NewReader(content), chunkSize), OriginClipboard, nil
}
