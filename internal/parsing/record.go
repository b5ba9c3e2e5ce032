package parsing

import (
	"errors"

	"github.com/shopspring/decimal"
)

// ErrNoText is returned when the input has no usable text
var ErrNoText = errors.New("no text to parse")

// Currency is the only currency the engine reports
const Currency = "USD"

// ParseMode identifies the recognizer that produced a line item
type ParseMode string

const (
	ModeTwoLine             ParseMode = "two_line"
	ModeTwoLineUnitOnly     ParseMode = "two_line_unit_only"
	ModeCombined            ParseMode = "combined_one_line"
	ModeCombinedUnitOnly    ParseMode = "combined_one_line_unit_only"
	ModeSingleLine          ParseMode = "single_line"
	ModeFallbackQtyName     ParseMode = "fallback_qty_name_price"
	ModeFallbackNamePrice   ParseMode = "fallback_name_price"
	ModeFallbackQtyTimes    ParseMode = "fallback_qty_x_name_price"
	ModeFallbackNameQtyLast ParseMode = "fallback_name_qty_price"
)

// TotalSource records where a line item's total came from
type TotalSource string

const (
	TotalComputed      TotalSource = "computed"
	TotalLine          TotalSource = "line"
	TotalLineOrSnapped TotalSource = "line_or_snapped"
)

// UnitFromLine marks a unit price read directly from the receipt
const UnitFromLine = "line"

// LineItem is one purchased product
type LineItem struct {
	Name        string          `json:"name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Total       decimal.Decimal `json:"total"`
	ParseMode   ParseMode       `json:"parse_mode"`
	TotalSource TotalSource     `json:"total_source"`
	UnitSource  string          `json:"unit_source,omitempty"`
	Separator   string          `json:"separator,omitempty"`
	Sequence    *int            `json:"sequence,omitempty"`
	// Lines holds the source line numbers (0-based, in the normalized text) folded into the item
	Lines []int `json:"lines"`
}

// StoreInfo describes the store that printed the receipt
type StoreInfo struct {
	Location      string `json:"location"`
	Phone         string `json:"phone"`
	PharmacyPhone string `json:"pharmacy_phone"`
	Hours         string `json:"hours"`
	Cashier       string `json:"cashier"`
}

// PaymentInfo describes how the receipt was paid
type PaymentInfo struct {
	Method        string `json:"method"`
	CardType      string `json:"card_type"`
	Last4         string `json:"last4"`
	TransactionID string `json:"transaction_id"`
	RefNo         string `json:"ref_no"`
}

// FieldBag holds the scalar fields found by ExtractFields.
// Empty strings and invalid decimals mean the field was not found.
type FieldBag struct {
	TransactionDate string              `json:"transaction_date"` // YYYY-MM-DD
	TransactionTime string              `json:"transaction_time"`
	Subtotal        decimal.NullDecimal `json:"subtotal"`
	TotalAmount     decimal.NullDecimal `json:"total_amount"`
	TaxAmount       decimal.NullDecimal `json:"tax_amount"`
	Savings         decimal.NullDecimal `json:"savings"`
	ReceiptNumber   string              `json:"receipt_number"`
	Expires         string              `json:"expires"`
	Store           StoreInfo           `json:"store"`
	Payment         PaymentInfo         `json:"payment"`

	// ItemCountHint is the printed "items purchased" count, 0 when absent
	ItemCountHint int `json:"-"`

	totalSale decimal.NullDecimal
}

// Diagnostics carries data for caller-side logging
type Diagnostics struct {
	Strategy          string `json:"strategy"`
	PrintedItemCount  int    `json:"printed_item_count"`
	SegmentedQuantity int    `json:"segmented_quantity"`
	CountMismatch     bool   `json:"count_mismatch"`
}

// Record is the assembled result of parsing one receipt
type Record struct {
	Merchant     Merchant `json:"merchant"`
	MerchantName string   `json:"merchant_name"`
	Currency     string   `json:"currency"`
	FieldBag
	Items          []LineItem  `json:"items"`
	ItemsPurchased int         `json:"items_purchased"`
	Diagnostics    Diagnostics `json:"diagnostics"`

	RawText        string `json:"raw_text"`
	NormalizedText string `json:"normalized_text"`
	CorrelationID  string `json:"correlation_id"`
}
