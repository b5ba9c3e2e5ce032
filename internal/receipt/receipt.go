package receipt

import (
	"time"

	"github.com/shopspring/decimal"
)

// Receipt is a parsed receipt as stored for a user
type Receipt struct {
	ID       string   `json:"id"`
	Store    Store    `json:"store"`
	Details  Details  `json:"receipt"`
	Items    []Item   `json:"items"`
	Summary  Summary  `json:"summary"`
	Payment  Payment  `json:"payment"`
	Metadata Metadata `json:"metadata"`
}

// Store describes where the purchase happened
type Store struct {
	Name          string `json:"name"`
	Location      string `json:"location,omitempty"`
	Phone         string `json:"phone,omitempty"`
	PharmacyPhone string `json:"pharmacy_phone,omitempty"`
	Hours         string `json:"store_hours,omitempty"`
}

// Details holds the receipt header fields
type Details struct {
	Date      string `json:"date,omitempty"`
	Time      string `json:"time,omitempty"`
	Cashier   string `json:"cashier,omitempty"`
	ReceiptID string `json:"receipt_id,omitempty"`
	Expires   string `json:"expires,omitempty"`
}

// Item is one purchased product
type Item struct {
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Total     decimal.Decimal `json:"total"`
	Meta      ItemMeta        `json:"meta"`
}

// ItemMeta records how an item was read off the receipt
type ItemMeta struct {
	ParseMode   string `json:"parse_mode"`
	TotalSource string `json:"total_source"`
	UnitSource  string `json:"unit_source,omitempty"`
	Separator   string `json:"separator,omitempty"`
	Sequence    *int   `json:"sequence,omitempty"`
	Lines       []int  `json:"lines,omitempty"`
}

type Summary struct {
	ItemsPurchased int                 `json:"items_purchased"`
	Subtotal       decimal.NullDecimal `json:"subtotal"`
	Savings        decimal.NullDecimal `json:"savings"`
	Total          decimal.NullDecimal `json:"total"`
	Tax            decimal.NullDecimal `json:"tax"`
	Currency       string              `json:"currency"`
}

type Payment struct {
	Method        string              `json:"method,omitempty"`
	CardType      string              `json:"card_type,omitempty"`
	Last4         string              `json:"last4,omitempty"`
	Amount        decimal.NullDecimal `json:"amount"`
	TransactionID string              `json:"transaction_id,omitempty"`
	RefNo         string              `json:"ref_no,omitempty"`
}

// Metadata tracks where a receipt came from and how it was processed
type Metadata struct {
	CreatedAt         time.Time `json:"created_at"`
	ProcessedBy       string    `json:"processed_by"`
	Merchant          string    `json:"merchant"`
	Strategy          string    `json:"strategy"`
	RawOCRText        string    `json:"raw_ocr_text"`
	NormalizedOCRText string    `json:"normalized_ocr_text"`
	CorrelationID     string    `json:"correlation_id"`
	UserID            string    `json:"user_id"`
	Filename          string    `json:"filename"`
	FilePath          string    `json:"file_path"`
	ContentType       string    `json:"content_type"`
	CountMismatch     bool      `json:"count_mismatch"`
}

// globalReceipt is the copy kept in the cross-user collection
type globalReceipt struct {
	*Receipt
	UserID     string `json:"user_id"`
	DocumentID string `json:"document_id"`
}
