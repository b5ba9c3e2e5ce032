package parsing

import (
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	StrategyFull           = "full"
	StrategyNotImplemented = "not_implemented"
)

// strategy turns normalized text into a record for one merchant
type strategy func(e *Engine, normalized string, merchant Merchant) *Record

// strategies maps every merchant to its parser. Merchants missing from the
// map get the not-implemented record.
var strategies = map[Merchant]strategy{
	MerchantHEB:             parseFull,
	MerchantUnknown:         parseFull,
	MerchantHomeDepot:       parseNotImplemented,
	MerchantRestaurantDepot: parseNotImplemented,
}

// Engine parses OCR text into receipt records. It is safe for concurrent use.
type Engine struct {
	segmenter *Segmenter
	newID     func() string
	logger    *slog.Logger
}

// Option configures an Engine
type Option func(*Engine)

// WithSnapTolerance overrides DefaultSnapTolerance
func WithSnapTolerance(tolerance decimal.Decimal) Option {
	return func(e *Engine) {
		e.segmenter = NewSegmenter(tolerance)
	}
}

// WithIDGenerator sets the correlation ID source
func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) {
		e.newID = newID
	}
}

// WithLogger sets the logger used for debug output
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// NewEngine creates an Engine
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		segmenter: NewSegmenter(DefaultSnapTolerance),
		newID:     shortID,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) log() *slog.Logger {
	if e.logger == nil {
		return slog.Default()
	}
	return e.logger
}

func shortID() string {
	return uuid.NewString()[:8]
}

// Parse normalizes raw OCR text, picks the merchant parser and assembles the record.
// It returns ErrNoText when raw has no visible characters.
func (e *Engine) Parse(raw string) (*Record, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, ErrNoText
	}

	normalized := Normalize(raw)
	merchant := DetectMerchant(normalized)

	parse, ok := strategies[merchant]
	if !ok {
		parse = parseNotImplemented
	}
	rec := parse(e, normalized, merchant)

	rec.Merchant = merchant
	rec.MerchantName = merchant.DisplayName()
	rec.Currency = Currency
	rec.RawText = raw
	rec.NormalizedText = normalized
	rec.CorrelationID = e.newID()

	e.log().Debug("receipt parsed",
		"correlation_id", rec.CorrelationID,
		"merchant", merchant,
		"strategy", rec.Diagnostics.Strategy,
		"items", len(rec.Items),
		"items_purchased", rec.ItemsPurchased,
	)
	if rec.Diagnostics.CountMismatch {
		e.log().Warn("item count mismatch",
			"correlation_id", rec.CorrelationID,
			"printed", rec.Diagnostics.PrintedItemCount,
			"segmented", rec.Diagnostics.SegmentedQuantity,
		)
	}
	return rec, nil
}

func parseFull(e *Engine, normalized string, _ Merchant) *Record {
	rec := &Record{
		FieldBag: ExtractFields(normalized),
		Items:    e.segmenter.Segment(normalized),
	}
	for _, item := range rec.Items {
		e.log().Debug("line item",
			"name", item.Name,
			"quantity", item.Quantity,
			"total", item.Total,
			"parse_mode", item.ParseMode,
			"lines", item.Lines,
		)
	}
	assemble(rec)
	rec.Diagnostics.Strategy = StrategyFull
	return rec
}

func parseNotImplemented(e *Engine, _ string, merchant Merchant) *Record {
	e.log().Info("merchant parser not implemented", "merchant", merchant)
	return &Record{
		Items:       []LineItem{},
		Diagnostics: Diagnostics{Strategy: StrategyNotImplemented},
	}
}

// assemble reconciles the printed item count with the segmented items
func assemble(rec *Record) {
	printed := rec.ItemCountHint
	rec.Diagnostics.PrintedItemCount = printed

	if len(rec.Items) == 0 {
		rec.Items = []LineItem{}
		rec.ItemsPurchased = printed
		rec.Diagnostics.CountMismatch = printed > 0
		return
	}

	qty := 0
	for _, item := range rec.Items {
		qty += item.Quantity
	}
	rec.ItemsPurchased = qty
	rec.Diagnostics.SegmentedQuantity = qty
	rec.Diagnostics.CountMismatch = printed > 0 && printed != qty
}

var defaultEngine = NewEngine()

// Parse parses raw with a default Engine
func Parse(raw string) (*Record, error) {
	return defaultEngine.Parse(raw)
}
