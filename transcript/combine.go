package transcript

import "strings"

// DefaultConnective joins remembered turns when context memory is on.
const DefaultConnective = ". Following up on that: "

// Combine joins the frozen base text and the live feed with a single space.
// Both parts are trimmed first, so the result never carries a stray separator.
func Combine(base, live string) string {
	base = strings.TrimSpace(base)
	live = strings.TrimSpace(live)
	switch {
	case base == "":
		return live
	case live == "":
		return base
	}
	return base + " " + live
}

// ComposePrompt builds the text sent to the backend from the remembered turns
// and the new one, oldest first. History entries are never modified.
func ComposePrompt(history []string, text, connective string) string {
	if len(history) == 0 {
		return text
	}
	parts := make([]string, 0, len(history)+1)
	parts = append(parts, history...)
	parts = append(parts, text)
	return strings.Join(parts, connective)
}
