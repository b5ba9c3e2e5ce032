package receipt

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/zombor/receipt-processor/internal/parsing"
)

var _ = Describe("FormatReceipt", func() {
	var (
		rec     *parsing.Record
		now     time.Time
		receipt *Receipt
	)

	BeforeEach(func() {
		now = time.Date(2024, 3, 2, 12, 0, 0, 0, time.UTC)
		rec = newMockParser().record
		rec.FieldBag.Store = parsing.StoreInfo{
			Location:      "6900 Burnet Rd Austin TX 78757",
			Phone:         "(512) 555-0100",
			PharmacyPhone: "(512) 555-0101",
			Hours:         "Store hours 6 AM to 11 PM",
			Cashier:       "SELF CHECKOUT",
		}
		rec.FieldBag.Payment = parsing.PaymentInfo{
			Method:        "Debit",
			CardType:      "Visa Debit",
			Last4:         "1234",
			TransactionID: "TX99",
			RefNo:         "REF42",
		}
		rec.FieldBag.TransactionTime = "7:45 PM"
		rec.FieldBag.ReceiptNumber = "4567"
		rec.FieldBag.Subtotal = decimal.NewNullDecimal(decimal.RequireFromString("3.99"))
		rec.FieldBag.TaxAmount = decimal.NewNullDecimal(decimal.RequireFromString("0.00"))
		rec.RawText = "raw"
		rec.NormalizedText = "normalized"
	})

	JustBeforeEach(func() {
		receipt = FormatReceipt(rec, "user-1", Upload{Filename: "r.jpg", FilePath: "user-1/x_r.jpg", ContentType: "image/jpeg"}, now)
	})

	It("should fill the store block", func() {
		Expect(receipt.Store).To(Equal(Store{
			Name:          "H-E-B",
			Location:      "6900 Burnet Rd Austin TX 78757",
			Phone:         "(512) 555-0100",
			PharmacyPhone: "(512) 555-0101",
			Hours:         "Store hours 6 AM to 11 PM",
		}))
	})

	It("should fill the receipt block", func() {
		Expect(receipt.Details).To(Equal(Details{
			Date:      "2024-01-15",
			Time:      "7:45 PM",
			Cashier:   "SELF CHECKOUT",
			ReceiptID: "4567",
		}))
	})

	It("should copy items with their parse metadata", func() {
		Expect(receipt.Items).To(HaveLen(1))
		item := receipt.Items[0]
		Expect(item.Name).To(Equal("ORGANIC BANANAS"))
		Expect(item.Total.String()).To(Equal("3.99"))
		Expect(item.Meta.ParseMode).To(Equal("two_line"))
		Expect(item.Meta.TotalSource).To(Equal("line_or_snapped"))
		Expect(item.Meta.UnitSource).To(Equal("line"))
		Expect(*item.Meta.Sequence).To(Equal(1))
		Expect(item.Meta.Lines).To(Equal([]int{2, 3}))
	})

	It("should fill the summary block", func() {
		Expect(receipt.Summary.ItemsPurchased).To(Equal(1))
		Expect(receipt.Summary.Total.Decimal.String()).To(Equal("3.99"))
		Expect(receipt.Summary.Tax.Valid).To(BeTrue())
		Expect(receipt.Summary.Savings.Valid).To(BeFalse())
		Expect(receipt.Summary.Currency).To(Equal("USD"))
	})

	It("should use the total as the payment amount", func() {
		Expect(receipt.Payment.Amount).To(Equal(rec.TotalAmount))
		Expect(receipt.Payment.CardType).To(Equal("Visa Debit"))
		Expect(receipt.Payment.Last4).To(Equal("1234"))
		Expect(receipt.Payment.RefNo).To(Equal("REF42"))
	})

	It("should fill the metadata block", func() {
		Expect(receipt.Metadata).To(Equal(Metadata{
			CreatedAt:         now,
			ProcessedBy:       "OCR",
			Merchant:          "heb",
			Strategy:          "full",
			RawOCRText:        "raw",
			NormalizedOCRText: "normalized",
			CorrelationID:     "abcd1234",
			UserID:            "user-1",
			Filename:          "r.jpg",
			FilePath:          "user-1/x_r.jpg",
			ContentType:       "image/jpeg",
		}))
	})

	When("the merchant is unknown", func() {
		BeforeEach(func() {
			rec.Merchant = parsing.MerchantUnknown
			rec.MerchantName = ""
		})

		It("should name the store Unknown Store", func() {
			Expect(receipt.Store.Name).To(Equal("Unknown Store"))
		})
	})
})

var _ = Describe("Document IDs", func() {
	DescribeTable("vendorSlug",
		func(name, slug string) {
			Expect(vendorSlug(name)).To(Equal(slug))
		},
		Entry("hyphenated brand", "H-E-B", "heb"),
		Entry("spaces", "Home Depot", "home-depot"),
		Entry("ampersand", "Bed Bath & Beyond", "bed-bath-and-beyond"),
		Entry("punctuation dropped", "Joe's Café!", "joes-caf"),
		Entry("runs of whitespace", "  Restaurant   Depot ", "restaurant-depot"),
		Entry("empty", "", "unknown-vendor"),
		Entry("nothing usable", "***", "unknown-vendor"),
	)

	It("should combine vendor and date", func() {
		r := &Receipt{Store: Store{Name: "H-E-B"}, Details: Details{Date: "2024-01-15"}}
		Expect(baseDocumentID(r)).To(Equal("heb, 2024-01-15"))
	})

	It("should fall back to unknown-date", func() {
		r := &Receipt{Store: Store{Name: "H-E-B"}}
		Expect(baseDocumentID(r)).To(Equal("heb, unknown-date"))
	})

	It("should never contain a slash", func() {
		r := &Receipt{Store: Store{Name: "H-E-B"}, Details: Details{Date: "01/15/2024"}}
		Expect(baseDocumentID(r)).To(Equal("heb, 01-15-2024"))
	})

	It("should key global copies by the first six characters of the user", func() {
		Expect(globalDocumentID("heb, 2024-01-15", "abcdefghij")).To(Equal("heb, 2024-01-15__abcdef"))
		Expect(globalDocumentID("heb, 2024-01-15", "abc")).To(Equal("heb, 2024-01-15__abc"))
	})
})
