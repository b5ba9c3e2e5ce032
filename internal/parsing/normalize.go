package parsing

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// ocrReplacements maps known OCR misreads to their intended text.
// Order matters: longer keys sharing a prefix come first.
var ocrReplacements = []struct{ from, to string }{
	{"‚Äî", "-"},
	{"‚Äì", "-"},
	{"‚Äú", `"`},
	{"‚Äù", `"`},
	{"‚Äô", "'"},
	{"‚Äò", "'"},
	{"—", "-"},
	{"–", "-"},
	{"“", `"`},
	{"”", `"`},
	{"‘", "'"},
	{"’", "'"},
	{"Orugs", "Drugs"},
	{"iv.hebd.com", "www.heb.com"},
	{"hebd.com", "heb.com"},
	{"Hessage", "Message"},
	{"InterlNK", "INTERLINK"},
}

var (
	reControlSpace = regexp.MustCompile(`[\t\v\f\r]`)
	reSpaceRun     = regexp.MustCompile(` {2,}`)
	reDecimalComma = regexp.MustCompile(`(\d),(\d{2})\b`)
	reRuleLine     = regexp.MustCompile(`[~=]{2,}`)
	// "7 A M" and "9 PW" are common misreads of a meridiem after an hour
	reSplitMeridiem = regexp.MustCompile(`(\d) ?([AP]) M\b`)
	rePWMeridiem    = regexp.MustCompile(`(\d) PW\b`)
)

// Normalize cleans OCR text without adding or removing lines.
// Normalize(Normalize(s)) == Normalize(s) for every s.
func Normalize(raw string) string {
	lines := strings.Split(raw, "\n")
	for i, line := range lines {
		lines[i] = normalizeLine(line)
	}
	return strings.Join(lines, "\n")
}

func normalizeLine(line string) string {
	for {
		next := normalizeOnce(line)
		if next == line {
			return next
		}
		line = next
	}
}

func normalizeOnce(line string) string {
	line = norm.NFKC.String(line)
	line = reControlSpace.ReplaceAllString(line, " ")
	line = reSpaceRun.ReplaceAllString(line, " ")
	for _, r := range ocrReplacements {
		line = strings.ReplaceAll(line, r.from, r.to)
	}
	line = reSplitMeridiem.ReplaceAllString(line, "$1 $2.M.")
	line = rePWMeridiem.ReplaceAllString(line, "$1 P.M.")
	line = reDecimalComma.ReplaceAllString(line, "$1.$2")
	line = reRuleLine.ReplaceAllString(line, "~")
	return line
}
