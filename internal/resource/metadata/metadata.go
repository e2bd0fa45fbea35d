// Package metadata reads the before/after states and destructiveness of a
// transition script, either from its leading comment block or from its
// file name.
package metadata

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"path"
	"regexp"
	"strconv"
	"strings"
)

// ErrInvalidMetadata indicates a script does not declare a usable transition.
var ErrInvalidMetadata = errors.New("metadata: invalid transition metadata")

// Metadata describes one transition script.
type Metadata struct {
	Before      string
	After       string
	Destructive bool
}

// Parser extracts Metadata from a script name and its content.
type Parser interface {
	Parse(name string, script []byte) (Metadata, error)
}

// Parser kinds accepted by New.
const (
	KindHeader   = "header"   // leading comment block, see HeaderParser
	KindFilename = "filename" // file name convention, see FilenameParser
)

// DefaultPrefix marks header keys, as in "-- @before: 0.1.0".
const DefaultPrefix = "@"

// New returns the parser for kind; an empty kind selects the header parser.
func New(kind, prefix string) (Parser, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", KindHeader:
		return HeaderParser{Prefix: prefix}, nil
	case KindFilename:
		return FilenameParser{}, nil
	}
	return nil, fmt.Errorf("unknown metadata parser %q", kind)
}

// HeaderParser reads keys from the comment lines at the top of a script:
//
//	-- @before: 0.1.0
//	-- @after: 0.2.0
//	-- @destructive: true
//
// Lines may start with "--" or "//". Blank lines are skipped and the block
// ends at the first line that is not a comment.
type HeaderParser struct {
	Prefix string
}

// Parse implements Parser. Both before and after must be declared.
func (p HeaderParser) Parse(name string, script []byte) (Metadata, error) {
	prefix := p.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}

	var (
		md          Metadata
		destructive string
	)
	scanner := bufio.NewScanner(bytes.NewReader(script))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var body string
		switch {
		case strings.HasPrefix(line, "--"):
			body = strings.TrimSpace(strings.TrimPrefix(line, "--"))
		case strings.HasPrefix(line, "//"):
			body = strings.TrimSpace(strings.TrimPrefix(line, "//"))
		default:
			return p.finish(name, md, destructive)
		}

		if !strings.HasPrefix(body, prefix) {
			continue
		}
		key, value, ok := strings.Cut(strings.TrimPrefix(body, prefix), ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "before":
			md.Before = value
		case "after":
			md.After = value
		case "destructive":
			destructive = value
		}
	}
	if err := scanner.Err(); err != nil {
		return Metadata{}, fmt.Errorf("%w: %s: %w", ErrInvalidMetadata, name, err)
	}
	return p.finish(name, md, destructive)
}

func (p HeaderParser) finish(name string, md Metadata, destructive string) (Metadata, error) {
	if destructive != "" {
		value, err := strconv.ParseBool(destructive)
		if err != nil {
			return Metadata{}, fmt.Errorf("%w: %s: destructive must be true or false, got %q",
				ErrInvalidMetadata, name, destructive)
		}
		md.Destructive = value
	}
	if md.Before == "" || md.After == "" {
		return Metadata{}, fmt.Errorf("%w: %s: header must declare both before and after states",
			ErrInvalidMetadata, name)
	}
	return md, nil
}

var filenamePattern = regexp.MustCompile(`^(.+?)_to_(.+?)(\.destructive)?\.sql$`)

// FilenameParser reads "<before>_to_<after>[.destructive].sql".
type FilenameParser struct{}

// Parse implements Parser. The script content is ignored.
func (FilenameParser) Parse(name string, _ []byte) (Metadata, error) {
	matches := filenamePattern.FindStringSubmatch(path.Base(name))
	if matches == nil {
		return Metadata{}, fmt.Errorf("%w: %s does not match '<before>_to_<after>[.destructive].sql'",
			ErrInvalidMetadata, name)
	}
	return Metadata{
		Before:      matches[1],
		After:       matches[2],
		Destructive: matches[3] != "",
	}, nil
}
