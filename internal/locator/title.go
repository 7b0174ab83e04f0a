package locator

import "regexp"

const (
	DefaultTitle   = "Untitled notebook"
	maxTitleLength = 25
)

var titleRe = regexp.MustCompile(`(?://|#)\s*title:\s*(.*)`)

// Title reads the "// title: ..." (or "# title: ...") comment of a script.
func Title(code string) string {
	m := titleRe.FindStringSubmatch(code)
	if m == nil || m[1] == "" {
		return DefaultTitle
	}
	title := []rune(m[1])
	if len(title) > maxTitleLength {
		return string(title[:maxTitleLength]) + "..."
	}
	return string(title)
}
