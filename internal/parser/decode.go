package parser

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/DuckyOnQuack-999/Melty-Beta/model"
)

var (
	attrRegex = regexp.MustCompile(`([A-Za-z_][\w-]*)\s*=\s*(?:"([^"]*)"|'([^']*)')`)

	// conflictRegex matches the marker-delimited body form:
	//
	//	<<<<<<< SEARCH
	//	old
	//	=======
	//	new
	//	>>>>>>> REPLACE
	conflictRegex = regexp.MustCompile(
		`(?ms)^[ \t]*<<<<<<< SEARCH[ \t]*\r?\n` +
			`(?P<search>.*?)` +
			`^[ \t]*=======[ \t]*\r?\n` +
			`(?P<replace>.*?)` +
			`^[ \t]*>>>>>>> REPLACE[ \t]*$`)
)

const (
	searchOpen   = "<search>"
	searchClose  = "</search>"
	replaceOpen  = "<replace>"
	replaceClose = "</replace>"
)

// Decode turns a raw change block into an edit instruction. The closing
// marker is optional so that a truncated trailing block can be recovered.
// Decode never touches the filesystem.
func Decode(rawBlock string) (model.EditInstruction, error) {
	if !strings.HasPrefix(rawBlock, OpenMarker) {
		return model.EditInstruction{}, malformed("block does not start with %s", OpenMarker)
	}

	tagEnd := strings.IndexByte(rawBlock, '>')
	if tagEnd < 0 {
		return model.EditInstruction{}, malformed("opening tag is not terminated")
	}
	attrs := parseAttributes(rawBlock[len(OpenMarker):tagEnd])

	path := strings.TrimSpace(attrs["path"])
	if path == "" {
		path = strings.TrimSpace(attrs["file"])
	}
	if path == "" {
		return model.EditInstruction{}, malformed("missing file path")
	}

	body := rawBlock[tagEnd+1:]
	if end := strings.Index(body, CloseMarker); end >= 0 {
		body = body[:end]
	}

	search, replace, ok := splitSubTags(body)
	if !ok {
		search, replace, ok = splitConflictMarkers(body)
	}
	if !ok {
		return model.EditInstruction{}, malformed("no search/replace regions in block for %s", path)
	}

	return model.EditInstruction{
		FilePath:    path,
		SearchText:  search,
		ReplaceText: replace,
	}, nil
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", model.ErrMalformedBlock, fmt.Sprintf(format, args...))
}

func parseAttributes(tag string) map[string]string {
	attrs := make(map[string]string)
	for _, m := range attrRegex.FindAllStringSubmatch(tag, -1) {
		value := m[2]
		if value == "" {
			value = m[3]
		}
		attrs[strings.ToLower(m[1])] = value
	}
	return attrs
}

// splitSubTags reads <search>...</search><replace>...</replace>. Both regions
// must be closed.
func splitSubTags(body string) (search, replace string, ok bool) {
	search, rest, ok := region(body, searchOpen, searchClose)
	if !ok {
		return "", "", false
	}
	replace, _, ok = region(rest, replaceOpen, replaceClose)
	if !ok {
		return "", "", false
	}
	return trimRegion(search), trimRegion(replace), true
}

func region(s, open, closeTag string) (inner, rest string, ok bool) {
	start := strings.Index(s, open)
	if start < 0 {
		return "", "", false
	}
	s = s[start+len(open):]
	end := strings.Index(s, closeTag)
	if end < 0 {
		return "", "", false
	}
	return s[:end], s[end+len(closeTag):], true
}

func splitConflictMarkers(body string) (search, replace string, ok bool) {
	m := conflictRegex.FindStringSubmatch(body)
	if m == nil {
		return "", "", false
	}
	search = m[conflictRegex.SubexpIndex("search")]
	replace = m[conflictRegex.SubexpIndex("replace")]
	return trimTrailingNewline(search), trimTrailingNewline(replace), true
}

// trimRegion drops the single formatting newline models put right after an
// opening sub-tag and right before a closing one.
func trimRegion(s string) string {
	if strings.HasPrefix(s, "\r\n") {
		s = s[2:]
	} else {
		s = strings.TrimPrefix(s, "\n")
	}
	return trimTrailingNewline(s)
}

func trimTrailingNewline(s string) string {
	if strings.HasSuffix(s, "\r\n") {
		return s[:len(s)-2]
	}
	return strings.TrimSuffix(s, "\n")
}
