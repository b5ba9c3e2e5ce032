package scanning

import "strings"

// cleanTranscript strips markdown fences and trailing spaces from an LLM transcription
func cleanTranscript(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		// drop the opening fence and its language tag
		if i := strings.Index(text, "\n"); i >= 0 {
			text = text[i+1:]
		} else {
			text = ""
		}
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")

	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t\r")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
