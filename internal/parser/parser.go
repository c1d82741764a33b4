package parser

import (
	"strings"

	"github.com/DuckyOnQuack-999/Melty-Beta/model"
)

const (
	// OpenMarker starts a change block. It is also the stop sequence a chat
	// turn uses to hand over to a code turn.
	OpenMarker = "<change_code"
	// CloseMarker ends a change block.
	CloseMarker = "</change_code>"
)

// Scan splits text into prose chunks and edit instructions.
//
// Every call scans the whole text from scratch. In partial mode the text is
// still being streamed: a block that has not been closed yet is neither
// emitted nor shown as prose, and neither is a half-written opening marker
// at the very end of the text. In final mode an unterminated trailing block
// is recovered if it already holds a complete search/replace body, otherwise
// it is reported as a diagnostic. Blocks that fail to decode are dropped and
// reported; they never affect the blocks around them.
func Scan(text string, partial bool) model.ParsedResponse {
	var resp model.ParsedResponse
	blockIndex := 0
	rest := text

	for {
		start := findOpenMarker(rest)
		if start < 0 {
			if partial {
				rest = rest[:len(rest)-partialMarkerSuffix(rest)]
			}
			appendProse(&resp, rest)
			return resp
		}

		appendProse(&resp, rest[:start])
		block := rest[start:]

		end := strings.Index(block, CloseMarker)
		if end < 0 {
			if !partial {
				decodeInto(&resp, blockIndex, block)
			}
			return resp
		}

		raw := block[:end+len(CloseMarker)]
		decodeInto(&resp, blockIndex, raw)
		blockIndex++
		rest = block[len(raw):]
	}
}

func decodeInto(resp *model.ParsedResponse, index int, raw string) {
	instr, err := Decode(raw)
	if err != nil {
		resp.Diagnostics = append(resp.Diagnostics, model.BlockDiagnostic{
			Index: index,
			Raw:   raw,
			Err:   err,
		})
		return
	}
	resp.Instructions = append(resp.Instructions, instr)
}

func appendProse(resp *model.ParsedResponse, prose string) {
	prose = strings.TrimSpace(prose)
	if prose == "" {
		return
	}
	resp.ProseChunks = append(resp.ProseChunks, prose)
}

// findOpenMarker returns the offset of the first opening marker that starts
// a tag, skipping look-alikes such as "<change_codes".
func findOpenMarker(s string) int {
	offset := 0
	for {
		idx := strings.Index(s[offset:], OpenMarker)
		if idx < 0 {
			return -1
		}
		pos := offset + idx
		after := pos + len(OpenMarker)
		if after == len(s) || isTagBoundary(s[after]) {
			return pos
		}
		offset = after
	}
}

func isTagBoundary(c byte) bool {
	switch c {
	case ' ', '\t', '\r', '\n', '>', '/':
		return true
	}
	return false
}

// partialMarkerSuffix returns the length of the longest proper prefix of
// OpenMarker that s ends with.
func partialMarkerSuffix(s string) int {
	n := len(OpenMarker) - 1
	if len(s) < n {
		n = len(s)
	}
	for ; n > 0; n-- {
		if strings.HasSuffix(s, OpenMarker[:n]) {
			return n
		}
	}
	return 0
}
