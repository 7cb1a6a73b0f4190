// Package diff extracts the files a unified diff touches and matches them
// against per-project path whitelists.
package diff

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	godiff "github.com/sourcegraph/go-diff/diff"
)

// ErrMalformed is returned for diff text that cannot be parsed.
var ErrMalformed = errors.New("diff: malformed")

const devNull = "/dev/null"

// extendedNames are git extended header lines that carry a bare path.
var extendedNames = []string{"rename from ", "rename to ", "copy from ", "copy to "}

// ChangedFiles parses a unified diff and returns every path it adds, removes,
// modifies or renames. Nothing is applied. Text that is not blank but names
// no file, or whose hunks are shorter than their headers claim, is
// ErrMalformed.
func ChangedFiles(text string) (map[string]struct{}, error) {
	files := make(map[string]struct{})
	text = strings.ReplaceAll(text, "\r\n", "\n")
	if strings.TrimSpace(text) == "" {
		return files, nil
	}

	fileDiffs, err := godiff.ParseMultiFileDiff([]byte(text))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(fileDiffs) == 0 {
		return nil, fmt.Errorf("%w: no file headers", ErrMalformed)
	}

	for _, fd := range fileDiffs {
		addHeaderPath(files, fd.OrigName)
		addHeaderPath(files, fd.NewName)
		for _, line := range fd.Extended {
			for _, prefix := range extendedNames {
				if name, ok := strings.CutPrefix(line, prefix); ok {
					addPath(files, unquote(strings.TrimRight(name, "\r")))
				}
			}
		}
		for _, h := range fd.Hunks {
			if err := checkHunk(h); err != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, fd.NewName, err)
			}
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no file paths", ErrMalformed)
	}
	return files, nil
}

// checkHunk rejects a hunk whose body holds fewer lines than its header
// declares. Extra trailing lines are tolerated; mail trailers such as the
// "-- " signature of git format-patch land there.
func checkHunk(h *godiff.Hunk) error {
	var orig, added int32
	body := strings.TrimSuffix(string(h.Body), "\n")
	if body != "" {
		for _, line := range strings.Split(body, "\n") {
			switch {
			case line == "", line[0] == ' ':
				orig++
				added++
			case line[0] == '-':
				orig++
			case line[0] == '+':
				added++
			}
		}
	}
	if orig < h.OrigLines || added < h.NewLines {
		return fmt.Errorf("truncated hunk at line %d: have -%d +%d, header says -%d +%d",
			h.OrigStartLine, orig, added, h.OrigLines, h.NewLines)
	}
	return nil
}

// addHeaderPath records a path from a ---/+++ or diff --git header, which
// carries the a/ or b/ prefix.
func addHeaderPath(files map[string]struct{}, name string) {
	name = unquote(strings.TrimRight(name, "\r"))
	if name == devNull {
		return
	}
	addPath(files, stripPrefix(name))
}

func addPath(files map[string]struct{}, path string) {
	if path == "" || path == devNull {
		return
	}
	files[path] = struct{}{}
}

func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		if u, err := strconv.Unquote(s); err == nil {
			return u
		}
	}
	return s
}

func stripPrefix(s string) string {
	if strings.HasPrefix(s, "a/") || strings.HasPrefix(s, "b/") {
		return s[2:]
	}
	return s
}

// MatchesWhitelist reports whether any path matches any pattern. An empty
// whitelist matches everything. Patterns use doublestar syntax, so "src/**"
// covers every file below src.
func MatchesWhitelist(paths map[string]struct{}, patterns []string) bool {
	if len(patterns) == 0 {
		return true
	}
	for path := range paths {
		for _, pattern := range patterns {
			if ok, err := doublestar.Match(pattern, path); err == nil && ok {
				return true
			}
		}
	}
	return false
}

// ParseWhitelist splits a stored whitelist option into patterns, skipping
// blank lines.
func ParseWhitelist(value string) []string {
	var patterns []string
	for _, line := range strings.Split(value, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			patterns = append(patterns, line)
		}
	}
	return patterns
}
