package index

import (
	"bytes"

	"gopkg.in/yaml.v3"
)

// Frontmatter is the YAML header block of a markdown artifact file.
type Frontmatter struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Version     string   `yaml:"version"`
	Tags        []string `yaml:"tags"`
}

var fmDelimiter = []byte("---")

// ParseFrontmatter extracts the leading YAML frontmatter block from a
// markdown document. It returns the parsed header, the remaining body, and
// whether a well-formed block was found. Malformed YAML counts as not found
// so a stray "---" in prose never breaks import.
func ParseFrontmatter(data []byte) (*Frontmatter, []byte, bool) {
	trimmed := bytes.TrimPrefix(data, []byte("\xef\xbb\xbf")) // tolerate a UTF-8 BOM
	if !bytes.HasPrefix(trimmed, fmDelimiter) {
		return nil, data, false
	}
	rest := trimmed[len(fmDelimiter):]
	rest = bytes.TrimPrefix(rest, []byte("\r"))
	if len(rest) == 0 || rest[0] != '\n' {
		return nil, data, false
	}
	rest = rest[1:]

	end := findClosingDelimiter(rest)
	if end < 0 {
		return nil, data, false
	}

	var fm Frontmatter
	if err := yaml.Unmarshal(rest[:end], &fm); err != nil {
		return nil, data, false
	}

	body := rest[end:]
	if i := bytes.IndexByte(body, '\n'); i >= 0 {
		body = body[i+1:]
	} else {
		body = nil
	}
	return &fm, body, true
}

// findClosingDelimiter returns the offset of the line that closes the
// frontmatter block, or -1.
func findClosingDelimiter(data []byte) int {
	offset := 0
	for offset <= len(data) {
		lineEnd := bytes.IndexByte(data[offset:], '\n')
		var line []byte
		if lineEnd < 0 {
			line = data[offset:]
			lineEnd = len(data) - offset
		} else {
			line = data[offset : offset+lineEnd]
		}
		if bytes.Equal(bytes.TrimRight(line, "\r"), fmDelimiter) {
			return offset
		}
		offset += lineEnd + 1
	}
	return -1
}
