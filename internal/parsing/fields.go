package parsing

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// fieldRule inspects line i and may set one field of the bag.
// Rules never overwrite a field that is already set.
type fieldRule struct {
	name  string
	apply func(b *FieldBag, lines []sourceLine, i int)
}

// fieldRules run in this order against every line
var fieldRules = []fieldRule{
	{"transaction_date", extractDate},
	{"transaction_time", extractTime},
	{"phone", extractPhone},
	{"store_hours", extractHours},
	{"cashier", extractCashier},
	{"store_location", extractLocation},
	{"receipt_number", extractReceiptNumber},
	{"expires", extractExpiry},
	{"financial", extractFinancial},
	{"payment_method", extractPaymentMethod},
	{"last4", extractLast4},
	{"ref_no", extractRefNo},
	{"transaction_id", extractTransactionID},
}

// ExtractFields scans the document once and collects its scalar fields.
// The first line to satisfy a rule wins.
func ExtractFields(text string) FieldBag {
	lines := nonEmptyLines(text)

	var b FieldBag
	for i := range lines {
		for _, rule := range fieldRules {
			rule.apply(&b, lines, i)
		}
	}

	if b.totalSale.Valid {
		b.TotalAmount = b.totalSale
	}
	return b
}

type datePattern struct {
	re               *regexp.Regexp
	year, month, day int
}

var datePatterns = []datePattern{
	{regexp.MustCompile(`\b(\d{2})[/-](\d{2})[/-](\d{2,4})\b`), 3, 1, 2},
	{regexp.MustCompile(`\b(\d{1,2})[/-](\d{1,2})[/-](\d{2,4})\b`), 3, 1, 2},
	{regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`), 1, 2, 3},
}

func extractDate(b *FieldBag, lines []sourceLine, i int) {
	if b.TransactionDate != "" {
		return
	}
	for _, p := range datePatterns {
		m := p.re.FindStringSubmatch(lines[i].text)
		if m == nil {
			continue
		}
		if d, ok := isoDate(m[p.year], m[p.month], m[p.day]); ok {
			b.TransactionDate = d
			return
		}
	}
}

// isoDate validates a date and formats it as YYYY-MM-DD.
// Two-digit years are read as 20yy.
func isoDate(year, month, day string) (string, bool) {
	y, err := strconv.Atoi(year)
	if err != nil {
		return "", false
	}
	if len(year) == 2 {
		y += 2000
	}
	m, err := strconv.Atoi(month)
	if err != nil {
		return "", false
	}
	d, err := strconv.Atoi(day)
	if err != nil {
		return "", false
	}
	if y < 1900 || y > 2199 {
		return "", false
	}

	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	if t.Year() != y || int(t.Month()) != m || t.Day() != d {
		return "", false
	}
	return t.Format("2006-01-02"), true
}

var (
	reTime12 = regexp.MustCompile(`(?i)\b(\d{1,2}):(\d{2})\s*([AP])\.?\s?M\b`)
	reTime24 = regexp.MustCompile(`\b(\d{1,2}):(\d{2})\b`)
)

func extractTime(b *FieldBag, lines []sourceLine, i int) {
	if b.TransactionTime != "" {
		return
	}
	line := lines[i].text

	if m := reTime12.FindStringSubmatch(line); m != nil {
		h, _ := strconv.Atoi(m[1])
		minute, _ := strconv.Atoi(m[2])
		if h >= 1 && h <= 12 && minute <= 59 {
			b.TransactionTime = fmt.Sprintf("%d:%02d %sM", h, minute, strings.ToUpper(m[3]))
		}
		return
	}
	if m := reTime24.FindStringSubmatch(line); m != nil {
		h, _ := strconv.Atoi(m[1])
		minute, _ := strconv.Atoi(m[2])
		if h <= 23 && minute <= 59 {
			b.TransactionTime = fmt.Sprintf("%d:%02d", h, minute)
		}
	}
}

var rePhone = regexp.MustCompile(`\((\d{3})\)\s*(\d{3})-(\d{4})`)

const pharmacyContext = 2

func extractPhone(b *FieldBag, lines []sourceLine, i int) {
	m := rePhone.FindStringSubmatch(lines[i].text)
	if m == nil {
		return
	}
	phone := fmt.Sprintf("(%s) %s-%s", m[1], m[2], m[3])

	if b.Store.PharmacyPhone == "" && nearPharmacy(lines, i) {
		b.Store.PharmacyPhone = phone
		return
	}
	if b.Store.Phone == "" {
		b.Store.Phone = phone
	}
}

func nearPharmacy(lines []sourceLine, i int) bool {
	from := max(0, i-pharmacyContext)
	to := min(len(lines)-1, i+pharmacyContext)
	for j := from; j <= to; j++ {
		if strings.Contains(strings.ToLower(lines[j].text), "pharm") {
			return true
		}
	}
	return false
}

var reStoreHours = regexp.MustCompile(`(?i)store\s*hours|\d+\s*a\.?m\.?\s*(?:to|-)\s*\d+\s*p\.?m\.?`)

func extractHours(b *FieldBag, lines []sourceLine, i int) {
	if b.Store.Hours != "" || !reStoreHours.MatchString(lines[i].text) {
		return
	}
	end := min(len(lines), i+3)
	parts := make([]string, 0, end-i)
	for _, l := range lines[i:end] {
		parts = append(parts, l.text)
	}
	b.Store.Hours = strings.Join(parts, " ")
}

var reCashier = regexp.MustCompile(`(?i)self\s*checkout\s*\d+|cashier\s*\d+|self\s*checkout`)

func extractCashier(b *FieldBag, lines []sourceLine, i int) {
	if b.Store.Cashier == "" && reCashier.MatchString(lines[i].text) {
		b.Store.Cashier = lines[i].text
	}
}

var (
	reStreetLine = compileAll(
		`\d+.*burnet.*rd.*austin.*tx`,
		`\d+.*austin.*tx.*\d{5}`,
	)
	reCityStateZip = regexp.MustCompile(`^[A-Za-z][A-Za-z .'-]*,\s*[A-Z]{2}\s+\d{5}(?:-\d{4})?$`)
	reStreetNumber = regexp.MustCompile(`^\d+\s+[A-Za-z]`)
)

func extractLocation(b *FieldBag, lines []sourceLine, i int) {
	if b.Store.Location != "" {
		return
	}
	line := lines[i].text
	if matchesAny(reStreetLine, line) {
		b.Store.Location = line
		return
	}
	if reCityStateZip.MatchString(line) {
		if i > 0 && reStreetNumber.MatchString(lines[i-1].text) {
			line = lines[i-1].text + ", " + line
		}
		b.Store.Location = line
	}
}

// receiptNumberPatterns are tried in priority order on each line
var receiptNumberPatterns = compileAll(
	`(\d{13,}[A-Z]+\d+/\d+/\d+)`,
	`receipt.*?([A-Z0-9/]{10,})`,
	`ref.*?no.*?[:\s]*([A-Z0-9]+)`,
	`transaction.*?id.*?[:\s]*([A-Z0-9]+)`,
)

func extractReceiptNumber(b *FieldBag, lines []sourceLine, i int) {
	if b.ReceiptNumber != "" {
		return
	}
	for _, p := range receiptNumberPatterns {
		if m := p.FindStringSubmatch(lines[i].text); m != nil {
			b.ReceiptNumber = m[1]
			return
		}
	}
}

var reExpiry = regexp.MustCompile(`(?i)receipt\s+expires\s+on\s+(\d{2})[-/](\d{2})[-/](\d{2,4})`)

func extractExpiry(b *FieldBag, lines []sourceLine, i int) {
	if b.Expires != "" {
		return
	}
	if m := reExpiry.FindStringSubmatch(lines[i].text); m != nil {
		if d, ok := isoDate(m[3], m[1], m[2]); ok {
			b.Expires = d
		}
	}
}

// financialRule classifies a line by keyword. Only the first matching
// rule handles a line, even when it finds no amount.
type financialRule struct {
	name    string
	matches func(lower string) bool
	apply   func(b *FieldBag, line string)
}

var (
	reMoney          = regexp.MustCompile(`\$?(\d+\.\d{2})`)
	reSavings        = regexp.MustCompile(`sav(?:ed|ings?)`)
	reItemsPurchased = regexp.MustCompile(`items?\s*purchased`)
	reInteger        = regexp.MustCompile(`\d+`)
	financialStrip   = strings.NewReplacer("*", "", "~", "")
)

var financialRules = []financialRule{
	{
		name:    "total_sale",
		matches: func(l string) bool { return strings.Contains(l, "total sale") },
		apply:   func(b *FieldBag, line string) { setMoney(&b.totalSale, line) },
	},
	{
		name:    "subtotal",
		matches: func(l string) bool { return strings.Contains(l, "subtotal") },
		apply:   func(b *FieldBag, line string) { setMoney(&b.Subtotal, line) },
	},
	{
		name: "total",
		matches: func(l string) bool {
			return strings.Contains(l, "total") && !isTaxLine(l) && !reSavings.MatchString(l) && !reItemsPurchased.MatchString(l)
		},
		apply: func(b *FieldBag, line string) { setMoney(&b.TotalAmount, line) },
	},
	{
		name:    "tax",
		matches: isTaxLine,
		apply:   func(b *FieldBag, line string) { setMoney(&b.TaxAmount, line) },
	},
	{
		name:    "savings",
		matches: reSavings.MatchString,
		apply:   func(b *FieldBag, line string) { setMoney(&b.Savings, line) },
	},
	{
		name:    "items_purchased",
		matches: reItemsPurchased.MatchString,
		apply: func(b *FieldBag, line string) {
			if b.ItemCountHint != 0 {
				return
			}
			if s := reInteger.FindString(line); s != "" {
				b.ItemCountHint, _ = strconv.Atoi(s)
			}
		},
	},
}

func isTaxLine(l string) bool {
	return strings.Contains(l, "tax")
}

func extractFinancial(b *FieldBag, lines []sourceLine, i int) {
	line := lines[i].text
	lower := strings.ToLower(financialStrip.Replace(line))
	for _, rule := range financialRules {
		if rule.matches(lower) {
			rule.apply(b, line)
			return
		}
	}
}

// setMoney stores the last amount on the line if the field is unset
func setMoney(field *decimal.NullDecimal, line string) {
	if field.Valid {
		return
	}
	if amount, ok := lastAmount(line); ok {
		*field = decimal.NewNullDecimal(amount)
	}
}

func lastAmount(line string) (decimal.Decimal, bool) {
	all := reMoney.FindAllStringSubmatch(line, -1)
	if len(all) == 0 {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(all[len(all)-1][1])
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

var (
	reCardKeyword  = regexp.MustCompile(`(?i)debit|credit`)
	reLast4Keyword = regexp.MustCompile(`(?i)debit|credit|chip\s*read`)
	reLast4        = regexp.MustCompile(`(?:^|[^\d./])(\d{4})(?:$|[^\d./])`)
	reRefNo        = regexp.MustCompile(`(?i)ref.*no.*?[:\s]*(\d+)`)
	reTransaction  = regexp.MustCompile(`(?i)(?:appr.*no|transaction).*?[:\s]*(\d+)`)
)

// cardBrands are checked in order; the first brand on a card line names the card
var cardBrands = []struct {
	re   *regexp.Regexp
	name string
}{
	{regexp.MustCompile(`(?i)capital\s*one`), "CapitalOne"},
	{regexp.MustCompile(`(?i)\bvisa\b`), "Visa"},
	{regexp.MustCompile(`(?i)master\s*card`), "Mastercard"},
	{regexp.MustCompile(`(?i)\bamex\b|american\s*express`), "Amex"},
	{regexp.MustCompile(`(?i)\bdiscover\b`), "Discover"},
}

func extractPaymentMethod(b *FieldBag, lines []sourceLine, i int) {
	if b.Payment.Method != "" {
		return
	}
	line := lines[i].text
	m := reCardKeyword.FindString(line)
	if m == "" {
		return
	}

	method := "Credit"
	if strings.EqualFold(m, "debit") {
		method = "Debit"
	}
	for _, brand := range cardBrands {
		if brand.re.MatchString(line) {
			// CapitalOne cards on these receipts are always debit
			if brand.name == "CapitalOne" {
				method = "Debit"
			}
			b.Payment.CardType = brand.name + " " + method
			break
		}
	}
	b.Payment.Method = method
}

func extractLast4(b *FieldBag, lines []sourceLine, i int) {
	if b.Payment.Last4 != "" || !reLast4Keyword.MatchString(lines[i].text) {
		return
	}
	if m := reLast4.FindStringSubmatch(lines[i].text); m != nil {
		b.Payment.Last4 = m[1]
	}
}

func extractRefNo(b *FieldBag, lines []sourceLine, i int) {
	if b.Payment.RefNo != "" {
		return
	}
	if m := reRefNo.FindStringSubmatch(lines[i].text); m != nil {
		b.Payment.RefNo = m[1]
	}
}

func extractTransactionID(b *FieldBag, lines []sourceLine, i int) {
	if b.Payment.TransactionID != "" {
		return
	}
	if m := reTransaction.FindStringSubmatch(lines[i].text); m != nil {
		b.Payment.TransactionID = m[1]
	}
}
