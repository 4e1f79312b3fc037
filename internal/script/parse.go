// Package script turns annotated sign-in script source into validated task
// definitions. The annotation header is a userscript-style metadata block
// delimited by ==UserScript== markers, holding one @directive per line.
package script

import (
	"regexp"
	"strings"

	"github.com/signkeeper/signkeeper/models"
	"github.com/signkeeper/signkeeper/types"
)

const (
	startMarker = "==UserScript=="
	endMarker   = "==/UserScript=="
)

// Header maps directive names to their parsed values.
type Header map[string]models.Directive

var (
	commentPrefixRe  = regexp.MustCompile(`\n\s*// ?`)
	directiveSplitRe = regexp.MustCompile(`\n\s*@`)
	directiveNameRe  = regexp.MustCompile(`^\w+\s*`)
)

// Parse extracts the annotation block from raw source text and returns its
// directive mapping. The first occurrence of a directive sets the singular
// value; repetitions overwrite it while the full ordered history accumulates
// in Directive.All (most recent wins for the singular form, full history for
// the plural view).
func Parse(text string) (Header, error) {
	beg := strings.Index(text, startMarker)
	end := strings.Index(text, endMarker)
	if beg < 0 || end < 0 || end < beg+len(startMarker) {
		return nil, types.FormatErrorf("missing %s block", startMarker)
	}

	body := text[beg+len(startMarker) : end]
	// Strip one leading line-comment prefix per line so headers written
	// inside // comments parse the same as bare ones.
	body = commentPrefixRe.ReplaceAllString(body, "\n")

	header := Header{}
	for _, fragment := range directiveSplitRe.Split(body, -1) {
		fragment = strings.TrimSpace(fragment)
		if fragment == "" {
			continue
		}
		match := directiveNameRe.FindString(fragment)
		if match == "" {
			continue
		}
		// Multi-line values are written indented to align under the value
		// column; drop those alignment runs before trimming.
		indent := strings.Repeat(" ", len(match)+1)
		value := strings.TrimSpace(strings.ReplaceAll(fragment[len(match):], indent, ""))
		name := strings.TrimSpace(match)

		d, seen := header[name]
		if seen {
			if d.All == nil {
				d.All = []string{d.Latest, value}
			} else {
				d.All = append(d.All, value)
			}
		}
		d.Latest = value
		header[name] = d
	}
	return header, nil
}
