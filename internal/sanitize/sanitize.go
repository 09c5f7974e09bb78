// Package sanitize strips <script> blocks from text that crosses the proxy
// boundary. It is a narrow filter for reflected markup, not an HTML
// sanitizer; callers rendering model output as HTML still need to encode it.
package sanitize

import "regexp"

// scriptPattern matches a <script ...>...</script> block, case-insensitively
// and non-greedily, across newlines.
var scriptPattern = regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script\s*>`)

// StripScripts removes every script block from s. Removal is repeated until
// nothing matches, so fragments that reassemble into a new block after one
// pass are removed as well and the function is idempotent.
func StripScripts(s string) string {
	for {
		cleaned := scriptPattern.ReplaceAllString(s, "")
		if cleaned == s {
			return s
		}
		s = cleaned
	}
}

// ContainsScript reports whether s holds at least one script block.
func ContainsScript(s string) bool {
	return scriptPattern.MatchString(s)
}
