package parsing

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultSnapTolerance is the largest gap between a printed line total and
// quantity × unit price that is still treated as an OCR misread.
var DefaultSnapTolerance = decimal.RequireFromString("0.11")

// maxQuantity bounds a printed quantity; longer digit runs are PLU codes or misreads
const maxQuantity = 999

const (
	// quantity, an "each"/"x"/"@" marker or a space, an optional "LB/" style unit, and a unit price
	qtyUnitShape = `(?P<qty>\d+)(?:\s*(?:e\s*a\.?|each|x)\s*@?\s*|\s*@\s*|\s+)(?:[A-Za-z0-9]+\s*/\s*)?\$?(?P<unit>\d+\.\d{2})`
	totalShape   = `\s*(?:(?P<sep>=|fw?)|[^0-9$])?\s*\$?(?P<total>\d+\.\d{2})`
	trailShape   = `\s*(?:[^0-9].*)?$`
	namePrefix   = `^(?:(?P<seq>\d+)\s*[-.)]\s*)?(?P<name>.+?)\s+`
)

var (
	reQtyUnitTotal    = regexp.MustCompile(`(?i)^\s*` + qtyUnitShape + totalShape + trailShape)
	reQtyUnitOnly     = regexp.MustCompile(`(?i)^\s*` + qtyUnitShape + trailShape)
	reCombinedTotal   = regexp.MustCompile(`(?i)` + namePrefix + qtyUnitShape + totalShape + trailShape)
	reCombinedUnit    = regexp.MustCompile(`(?i)` + namePrefix + qtyUnitShape + trailShape)
	reNoisySingleLine = regexp.MustCompile(`(?i)^(?:(?P<seq>\d+)\s*[-.)]\s*)?(?P<name>.+?)(?:\s*(?P<sep>[:=~$])|\s+(?P<word>fw?|for))\s*(?P<price>\d+\.\d{2})\s*$`)

	reSequence     = regexp.MustCompile(`^\s*(\d+)\s*[-.)]\s*`)
	rePriceToken   = regexp.MustCompile(`\d+\.\d{2}`)
	reAlphaToken   = regexp.MustCompile(`[A-Za-z]{2,}`)
	reLeadingJunk  = regexp.MustCompile(`^[^A-Za-z]+`)
	reLeadingCount = regexp.MustCompile(`^\d+\s+`)
	reWhitespace   = regexp.MustCompile(`\s+`)
)

// fallbackShape is a loose single-line item shape; group indexes of 0 mean absent
type fallbackShape struct {
	mode              ParseMode
	re                *regexp.Regexp
	qty, name, amount int
}

var fallbackShapes = []fallbackShape{
	{ModeFallbackQtyName, regexp.MustCompile(`^(\d+)\s+(.+?)\s+(\d+\.\d{2})$`), 1, 2, 3},
	{ModeFallbackNamePrice, regexp.MustCompile(`^(.+?)\s+(\d+\.\d{2})$`), 0, 1, 2},
	{ModeFallbackQtyTimes, regexp.MustCompile(`(?i)^(\d+)\s*x\s*(.+?)\s+(\d+\.\d{2})$`), 1, 2, 3},
	{ModeFallbackNameQtyLast, regexp.MustCompile(`^(.+?)\s+(\d+)\s+(\d+\.\d{2})$`), 2, 1, 3},
}

// boilerplatePhrases mark store metadata, payment and footer lines
var boilerplatePhrases = []string{
	"food-drugs", "survey", "certificate", "expires", "burnet rd", "austin, tx",
	"debit", "credit", "ref no", "appr no", "interlink", "chip read", "phone:",
	"pharmacy", "store hours", "receipt", "items purchased", "subtotal", "total sale",
	"balance", "change due", "you saved", "savings", "cashier", "self checkout", "thank you",
}

var reBoilerplateWord = regexp.MustCompile(`(?i)\b(?:aid|tsi|tax|total)\b`)

// nameStopWords never appear in a product name line
var nameStopWords = []string{
	"survey", "certificate", "expires", "receipt", "items purchased", "total",
	"subtotal", "tax", "debit", "credit", "pharmacy", "store hours",
}

func isBoilerplate(line string) bool {
	lower := strings.ToLower(line)
	for _, p := range boilerplatePhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return reBoilerplateWord.MatchString(line)
}

// looksLikeItemName reports whether a line can be the name half of a two-line item
func looksLikeItemName(line string, minWords int) bool {
	if rePriceToken.MatchString(line) || isBoilerplate(line) {
		return false
	}
	lower := strings.ToLower(line)
	for _, w := range nameStopWords {
		if strings.Contains(lower, w) {
			return false
		}
	}
	return len(reAlphaToken.FindAllString(line, -1)) >= minWords
}

func cleanItemName(name string) string {
	name = reLeadingJunk.ReplaceAllString(name, "")
	name = reLeadingCount.ReplaceAllString(name, "")
	name = reWhitespace.ReplaceAllString(name, " ")
	return strings.TrimSpace(name)
}

func sequenceOf(line string) *int {
	m := reSequence.FindStringSubmatch(line)
	if m == nil {
		return nil
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return nil
	}
	return &n
}

// groups returns the named groups of the first match of re in s, or nil
func groups(re *regexp.Regexp, s string) map[string]string {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return nil
	}
	res := make(map[string]string, len(m))
	for i, name := range re.SubexpNames() {
		if name != "" {
			res[name] = m[i]
		}
	}
	return res
}

// Segmenter turns item lines into LineItems
type Segmenter struct {
	tolerance decimal.Decimal
}

// NewSegmenter returns a Segmenter that snaps printed totals within tolerance
func NewSegmenter(tolerance decimal.Decimal) *Segmenter {
	return &Segmenter{tolerance: tolerance}
}

// SegmentItems segments text with DefaultSnapTolerance
func SegmentItems(text string) []LineItem {
	return NewSegmenter(DefaultSnapTolerance).Segment(text)
}

// segmentation is the state of one Segment call
type segmentation struct {
	*Segmenter
	lines    []sourceLine
	consumed map[int]bool
}

// step is what a recognizer decided at the cursor
type step struct {
	item    *LineItem
	consume []int
	advance int
}

type recognizer struct {
	name string
	try  func(s *segmentation, i int) (step, bool)
}

// recognizers are tried in order at every unconsumed line; the first to
// return true decides the step.
var recognizers = []recognizer{
	{"boilerplate", skipBoilerplate},
	{"reverse_pair", reversePair},
	{"combined_total", combinedWithTotal},
	{"combined_unit_only", combinedUnitOnly},
	{"orphan_pricing", orphanPricing},
	{"forward_pair", forwardPair},
	{"noisy_single_line", noisySingleLine},
	{"fallback", fallback},
}

// Segment walks the non-empty lines of text once and returns the items in order
func (sg *Segmenter) Segment(text string) []LineItem {
	s := &segmentation{
		Segmenter: sg,
		lines:     nonEmptyLines(text),
		consumed:  make(map[int]bool),
	}

	var items []LineItem
	for i := 0; i < len(s.lines); {
		if s.consumed[i] {
			i++
			continue
		}

		advance := 1
		for _, r := range recognizers {
			st, ok := r.try(s, i)
			if !ok {
				continue
			}
			for _, p := range st.consume {
				s.consumed[p] = true
			}
			if st.item != nil {
				for _, p := range st.consume {
					st.item.Lines = append(st.item.Lines, s.lines[p].index)
				}
				items = append(items, *st.item)
			}
			advance = st.advance
			break
		}
		i += advance
	}
	return items
}

func skipBoilerplate(s *segmentation, i int) (step, bool) {
	if !isBoilerplate(s.lines[i].text) {
		return step{}, false
	}
	return step{advance: 1}, true
}

// nameBefore returns the line before i if it is free and reads as a product name
func (s *segmentation) nameBefore(i int, minWords int) (string, bool) {
	if i == 0 || s.consumed[i-1] {
		return "", false
	}
	prev := s.lines[i-1].text
	return prev, looksLikeItemName(prev, minWords)
}

func reversePair(s *segmentation, i int) (step, bool) {
	g := pricingGroups(s.lines[i].text)
	if g == nil {
		return step{}, false
	}
	name, ok := s.nameBefore(i, 2)
	if !ok {
		return step{}, false
	}
	item, ok := s.qtyUnitItem(name, g, ModeTwoLine, ModeTwoLine)
	if !ok {
		return step{}, false
	}
	item.Sequence = sequenceOf(name)
	return step{item: item, consume: []int{i - 1, i}, advance: 1}, true
}

func combinedWithTotal(s *segmentation, i int) (step, bool) {
	g := groups(reCombinedTotal, s.lines[i].text)
	if g == nil {
		return step{}, false
	}
	return s.combined(i, g)
}

func combinedUnitOnly(s *segmentation, i int) (step, bool) {
	g := groups(reCombinedUnit, s.lines[i].text)
	if g == nil {
		return step{}, false
	}
	return s.combined(i, g)
}

func (s *segmentation) combined(i int, g map[string]string) (step, bool) {
	item, ok := s.qtyUnitItem(g["name"], g, ModeCombined, ModeCombinedUnitOnly)
	if !ok {
		return step{}, false
	}
	item.Sequence = seqGroup(g)
	return step{item: item, consume: []int{i}, advance: 1}, true
}

// orphanPricing drops quantity/price fragments that have no name line before them
func orphanPricing(s *segmentation, i int) (step, bool) {
	if pricingGroups(s.lines[i].text) == nil {
		return step{}, false
	}
	if _, ok := s.nameBefore(i, 2); ok {
		return step{}, false
	}
	return step{advance: 1}, true
}

func forwardPair(s *segmentation, i int) (step, bool) {
	name := s.lines[i].text
	next := i + 1
	if next >= len(s.lines) || s.consumed[next] || !looksLikeItemName(name, 1) {
		return step{}, false
	}
	g := pricingGroups(s.lines[next].text)
	if g == nil {
		return step{}, false
	}
	item, ok := s.qtyUnitItem(name, g, ModeTwoLine, ModeTwoLineUnitOnly)
	if !ok {
		return step{}, false
	}
	item.Sequence = sequenceOf(name)
	return step{item: item, consume: []int{i, next}, advance: 2}, true
}

func noisySingleLine(s *segmentation, i int) (step, bool) {
	g := groups(reNoisySingleLine, s.lines[i].text)
	if g == nil {
		return step{}, false
	}
	name := cleanItemName(g["name"])
	price, err := decimal.NewFromString(g["price"])
	if name == "" || err != nil {
		return step{}, false
	}
	sep := g["sep"]
	if sep == "" {
		sep = g["word"]
	}
	return step{
		item: &LineItem{
			Name:        name,
			Quantity:    1,
			UnitPrice:   price,
			Total:       price,
			ParseMode:   ModeSingleLine,
			TotalSource: TotalLine,
			UnitSource:  UnitFromLine,
			Separator:   sep,
			Sequence:    seqGroup(g),
		},
		consume: []int{i},
		advance: 1,
	}, true
}

func fallback(s *segmentation, i int) (step, bool) {
	line := s.lines[i].text
	for _, shape := range fallbackShapes {
		m := shape.re.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		name := cleanItemName(m[shape.name])
		total, err := decimal.NewFromString(m[shape.amount])
		if name == "" || err != nil {
			continue
		}
		qty := 1
		if shape.qty > 0 {
			var ok bool
			if qty, ok = parseQuantity(m[shape.qty]); !ok {
				continue
			}
		}
		return step{
			item: &LineItem{
				Name:        name,
				Quantity:    qty,
				UnitPrice:   total.DivRound(decimal.NewFromInt(int64(qty)), 2),
				Total:       total,
				ParseMode:   shape.mode,
				TotalSource: TotalLine,
			},
			consume: []int{i},
			advance: 1,
		}, true
	}
	return step{}, false
}

// parseQuantity accepts 1 through maxQuantity
func parseQuantity(s string) (int, bool) {
	qty, err := strconv.Atoi(s)
	if err != nil || qty < 1 || qty > maxQuantity {
		return 0, false
	}
	return qty, true
}

// pricingGroups matches a "qty @ unit [= total]" line
func pricingGroups(line string) map[string]string {
	if g := groups(reQtyUnitTotal, line); g != nil {
		return g
	}
	return groups(reQtyUnitOnly, line)
}

// qtyUnitItem builds an item from quantity, unit and optional total groups.
// A printed total is snapped to quantity × unit when within tolerance.
func (s *segmentation) qtyUnitItem(rawName string, g map[string]string, withTotal, unitOnly ParseMode) (*LineItem, bool) {
	name := cleanItemName(rawName)
	qty, ok := parseQuantity(g["qty"])
	if name == "" || !ok {
		return nil, false
	}
	unit, err := decimal.NewFromString(g["unit"])
	if err != nil {
		return nil, false
	}
	computed := unit.Mul(decimal.NewFromInt(int64(qty))).Round(2)

	item := &LineItem{
		Name:        name,
		Quantity:    qty,
		UnitPrice:   unit,
		Total:       computed,
		ParseMode:   unitOnly,
		TotalSource: TotalComputed,
		UnitSource:  UnitFromLine,
	}
	if g["total"] == "" {
		return item, true
	}

	printed, err := decimal.NewFromString(g["total"])
	if err != nil {
		return item, true
	}
	item.ParseMode = withTotal
	item.TotalSource = TotalLineOrSnapped
	item.Separator = g["sep"]
	item.Total = s.snap(printed, computed)
	return item, true
}

func (s *segmentation) snap(printed, computed decimal.Decimal) decimal.Decimal {
	if printed.Sub(computed).Abs().LessThanOrEqual(s.tolerance) {
		return computed
	}
	return printed
}

func seqGroup(g map[string]string) *int {
	if g["seq"] == "" {
		return nil
	}
	n, err := strconv.Atoi(g["seq"])
	if err != nil {
		return nil
	}
	return &n
}
