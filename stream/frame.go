package stream

import "strings"

const (
	dataMarker   = "data:"
	doneSentinel = "[DONE]"
)

// processFragment strips event-stream framing from one decoded fragment.
// Fragments without a data marker pass through untouched. framed reports
// whether the fragment carried framing.
func processFragment(chunk string) (text string, framed bool) {
	if !strings.Contains(chunk, dataMarker) {
		return chunk, false
	}

	var payloads []string
	for line := range strings.SplitSeq(chunk, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		if rest, ok := strings.CutPrefix(line, dataMarker); ok {
			line = strings.TrimLeft(rest, " \t")
		}
		if strings.TrimSpace(line) == doneSentinel {
			continue
		}
		if line == "" {
			continue
		}
		payloads = append(payloads, line)
	}
	return strings.Join(payloads, " "), true
}

// appendFramed joins a framed payload onto the accumulator with a single
// space, mirroring how payload lines inside one fragment are joined.
func appendFramed(acc *strings.Builder, text string) {
	if text == "" {
		return
	}
	if acc.Len() > 0 {
		s := acc.String()
		if last := s[len(s)-1]; last != ' ' && last != '\n' && !strings.HasPrefix(text, " ") {
			acc.WriteByte(' ')
		}
	}
	acc.WriteString(text)
}
