// ABOUTME: Neutralizes HTML and script content in free-text fields before persistence
// ABOUTME: Entity escaping is idempotent so already-sanitized values pass through unchanged

package sanitize

import (
	"regexp"
	"strings"
)

var (
	scriptBlockRE  = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	jsProtocolRE   = regexp.MustCompile(`(?i)javascript:[^"']*`)
	eventHandlerRE = regexp.MustCompile(`(?i)on\w+\s*=\s*["'][^"']*["']`)
)

// entities produced by escape. An ampersand already starting one of these is
// left alone so that escaping a sanitized string is a no-op.
var knownEntities = []string{"amp;", "lt;", "gt;", "quot;", "#39;"}

// Text sanitizes a free-text field: escapes HTML special characters, strips
// script blocks (case-insensitive, spanning newlines), javascript: protocol
// strings and inline event handlers, then trims surrounding whitespace.
// Applying Text twice yields the same result as applying it once.
func Text(s string) string {
	s = escape(s)
	s = scriptBlockRE.ReplaceAllString(s, "")
	s = jsProtocolRE.ReplaceAllString(s, "")
	s = eventHandlerRE.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// Ptr sanitizes through a pointer, passing nil through.
func Ptr(s *string) *string {
	if s == nil {
		return nil
	}
	clean := Text(*s)
	return &clean
}

// escape entity-escapes <, >, ", ' and bare ampersands. Ampersands that
// already begin an entity emitted by this function are preserved.
func escape(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '&':
			if startsKnownEntity(s[i+1:]) {
				b.WriteByte('&')
			} else {
				b.WriteString("&amp;")
			}
		case '<':
			b.WriteString("&lt;")
		case '>':
			b.WriteString("&gt;")
		case '"':
			b.WriteString("&quot;")
		case '\'':
			b.WriteString("&#39;")
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func startsKnownEntity(rest string) bool {
	for _, e := range knownEntities {
		if strings.HasPrefix(rest, e) {
			return true
		}
	}
	return false
}
