package parsing

import (
	"regexp"
	"strings"
)

// Merchant identifies a known store chain
type Merchant string

const (
	MerchantHEB             Merchant = "heb"
	MerchantHomeDepot       Merchant = "home_depot"
	MerchantRestaurantDepot Merchant = "restaurant_depot"
	MerchantUnknown         Merchant = "unknown"
)

// DisplayName returns the name printed in records, empty for unknown merchants
func (m Merchant) DisplayName() string {
	switch m {
	case MerchantHEB:
		return "H-E-B"
	case MerchantHomeDepot:
		return "Home Depot"
	case MerchantRestaurantDepot:
		return "Restaurant Depot"
	}
	return ""
}

const (
	headerWindow        = 30
	confidenceThreshold = 2
)

type merchantProfile struct {
	merchant Merchant
	patterns []*regexp.Regexp
}

// merchantProfiles is in priority order
var merchantProfiles = []merchantProfile{
	{MerchantHEB, compileAll(
		`\bH[-\s]*E[-\s]*B\b`,
		`\bHEB\b`,
		`Food-Drugs`,
		`Burnet\s*Rd`,
		`Austin.*TX`,
	)},
	{MerchantHomeDepot, compileAll(
		`HOME\s*DEPOT`,
		`\bHD\b`,
		`HOMEDepot\.com`,
		`\bPRO\b`,
	)},
	{MerchantRestaurantDepot, compileAll(
		`RESTAURANT\s*DEPOT`,
		`\bRD#?\b`,
		`Jetro`,
	)},
}

func compileAll(patterns ...string) []*regexp.Regexp {
	res := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		res[i] = regexp.MustCompile("(?i)" + p)
	}
	return res
}

// DetectMerchant classifies a document by the lines in its header window.
// A profile needs at least two matching lines; the first profile to get
// there in priority order wins.
func DetectMerchant(text string) Merchant {
	header := nonEmptyLines(text)
	if len(header) > headerWindow {
		header = header[:headerWindow]
	}

	for _, profile := range merchantProfiles {
		hits := 0
		for _, l := range header {
			if matchesAny(profile.patterns, l.text) {
				hits++
			}
		}
		if hits >= confidenceThreshold {
			return profile.merchant
		}
	}
	return MerchantUnknown
}

func matchesAny(patterns []*regexp.Regexp, s string) bool {
	for _, p := range patterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}

// sourceLine is a trimmed, non-empty line and its position in the text
type sourceLine struct {
	text  string
	index int
}

func nonEmptyLines(text string) []sourceLine {
	var lines []sourceLine
	for i, l := range strings.Split(text, "\n") {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		lines = append(lines, sourceLine{text: l, index: i})
	}
	return lines
}
