// Package sanitize cleans user-entered text before it is stored. Media
// descriptions and file names are plain text; bluemonday's strict policy
// strips every tag so nothing rendered later can carry markup.
package sanitize

import (
	"html"
	"strings"
	"sync"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

// policy is the shared strict policy, initialized once.
var (
	policy     *bluemonday.Policy
	policyOnce sync.Once
)

func getPolicy() *bluemonday.Policy {
	policyOnce.Do(func() {
		policy = bluemonday.StrictPolicy()
	})
	return policy
}

// Text strips all HTML from input, unescapes the entities bluemonday emits,
// and trims surrounding whitespace.
func Text(input string) string {
	if input == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(getPolicy().Sanitize(input)))
}

// FileName reduces a client-supplied file name to a safe display name: no
// markup, no path components, no control characters.
func FileName(name string) string {
	name = Text(name)
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." {
		return "file"
	}
	if len(name) > 255 {
		name = name[:255]
	}
	return name
}
