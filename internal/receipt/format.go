package receipt

import (
	"regexp"
	"strings"
	"time"

	"github.com/zombor/receipt-processor/internal/parsing"
)

const unknownStore = "Unknown Store"

// Upload describes the stored file a receipt was read from
type Upload struct {
	Filename    string
	FilePath    string
	ContentType string
}

// FormatReceipt maps a parsed record onto the stored document layout
func FormatReceipt(rec *parsing.Record, userID string, upload Upload, now time.Time) *Receipt {
	name := rec.MerchantName
	if name == "" {
		name = unknownStore
	}

	items := make([]Item, 0, len(rec.Items))
	for _, it := range rec.Items {
		items = append(items, Item{
			Name:      it.Name,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
			Total:     it.Total,
			Meta: ItemMeta{
				ParseMode:   string(it.ParseMode),
				TotalSource: string(it.TotalSource),
				UnitSource:  it.UnitSource,
				Separator:   it.Separator,
				Sequence:    it.Sequence,
				Lines:       it.Lines,
			},
		})
	}

	return &Receipt{
		Store: Store{
			Name:          name,
			Location:      rec.Store.Location,
			Phone:         rec.Store.Phone,
			PharmacyPhone: rec.Store.PharmacyPhone,
			Hours:         rec.Store.Hours,
		},
		Details: Details{
			Date:      rec.TransactionDate,
			Time:      rec.TransactionTime,
			Cashier:   rec.Store.Cashier,
			ReceiptID: rec.ReceiptNumber,
			Expires:   rec.Expires,
		},
		Items: items,
		Summary: Summary{
			ItemsPurchased: rec.ItemsPurchased,
			Subtotal:       rec.Subtotal,
			Savings:        rec.Savings,
			Total:          rec.TotalAmount,
			Tax:            rec.TaxAmount,
			Currency:       rec.Currency,
		},
		Payment: Payment{
			Method:        rec.Payment.Method,
			CardType:      rec.Payment.CardType,
			Last4:         rec.Payment.Last4,
			Amount:        rec.TotalAmount,
			TransactionID: rec.Payment.TransactionID,
			RefNo:         rec.Payment.RefNo,
		},
		Metadata: Metadata{
			CreatedAt:         now,
			ProcessedBy:       "OCR",
			Merchant:          string(rec.Merchant),
			Strategy:          rec.Diagnostics.Strategy,
			RawOCRText:        rec.RawText,
			NormalizedOCRText: rec.NormalizedText,
			CorrelationID:     rec.CorrelationID,
			UserID:            userID,
			Filename:          upload.Filename,
			FilePath:          upload.FilePath,
			ContentType:       upload.ContentType,
			CountMismatch:     rec.Diagnostics.CountMismatch,
		},
	}
}

var (
	reSlugDrop  = regexp.MustCompile(`[^a-z0-9\s-]`)
	reSlugSpace = regexp.MustCompile(`\s+`)
)

// vendorSlug turns a store name into the vendor part of a document ID
func vendorSlug(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.NewReplacer("h-e-b", "heb", "h‑e‑b", "heb", "h–e–b", "heb", "&", "and").Replace(n)
	n = reSlugDrop.ReplaceAllString(n, "")
	n = strings.TrimSpace(reSlugSpace.ReplaceAllString(n, " "))
	n = strings.ReplaceAll(n, " ", "-")
	if n == "" {
		return "unknown-vendor"
	}
	return n
}

// baseDocumentID is "<vendor>, <date>" before any collision suffix
func baseDocumentID(r *Receipt) string {
	date := strings.TrimSpace(r.Details.Date)
	if date == "" {
		date = "unknown-date"
	}
	id := vendorSlug(r.Store.Name) + ", " + date
	return strings.ReplaceAll(id, "/", "-")
}

// globalDocumentID keys the cross-user copy of a document
func globalDocumentID(id, userID string) string {
	short := userID
	if len(short) > 6 {
		short = short[:6]
	}
	return id + "__" + short
}
