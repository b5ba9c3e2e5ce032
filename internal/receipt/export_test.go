package receipt

import (
	"bytes"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

var _ = Describe("ExportXLSX", func() {
	var (
		db      *mockDB
		service *Service
		data    []byte
		err     error
	)

	openWorkbook := func() *excelize.File {
		f, openErr := excelize.OpenReader(bytes.NewReader(data))
		Expect(openErr).NotTo(HaveOccurred())
		DeferCleanup(f.Close)
		return f
	}

	BeforeEach(func() {
		db = newMockDB()
		service = NewService(db, newMockScanner(), newMockStorage(), newMockParser())
	})

	JustBeforeEach(func() {
		data, err = service.ExportXLSX("user-1")
	})

	When("the user has receipts", func() {
		BeforeEach(func() {
			db.put("user-1", &Receipt{
				ID:      "heb, 2024-01-15",
				Store:   Store{Name: "H-E-B"},
				Details: Details{Date: "2024-01-15"},
				Items: []Item{
					{Name: "BANANAS", Quantity: 2, UnitPrice: decimal.RequireFromString("0.50"), Total: decimal.RequireFromString("1.00"), Meta: ItemMeta{ParseMode: "two_line"}},
					{Name: "MILK", Quantity: 1, UnitPrice: decimal.RequireFromString("3.49"), Total: decimal.RequireFromString("3.49"), Meta: ItemMeta{ParseMode: "single_line"}},
				},
				Summary:  Summary{ItemsPurchased: 3, Total: decimal.NewNullDecimal(decimal.RequireFromString("4.49"))},
				Metadata: Metadata{CreatedAt: time.Now(), Filename: "r.jpg"},
			})
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("should write a receipts sheet with one row per receipt", func() {
			rows, rowsErr := openWorkbook().GetRows("Receipts")
			Expect(rowsErr).NotTo(HaveOccurred())
			Expect(rows).To(HaveLen(2))
			Expect(rows[0][0]).To(Equal("Document ID"))
			Expect(rows[1][0]).To(Equal("heb, 2024-01-15"))
			Expect(rows[1][3]).To(Equal("H-E-B"))
			Expect(rows[1][9]).To(Equal("4.49"))
		})

		It("should write an items sheet with one row per item", func() {
			rows, rowsErr := openWorkbook().GetRows("Items")
			Expect(rowsErr).NotTo(HaveOccurred())
			Expect(rows).To(HaveLen(3))
			Expect(rows[1][3]).To(Equal("BANANAS"))
			Expect(rows[1][4]).To(Equal("2"))
			Expect(rows[2][7]).To(Equal("single_line"))
		})
	})

	When("the user has no receipts", func() {
		It("should write only the headers", func() {
			Expect(err).NotTo(HaveOccurred())
			rows, rowsErr := openWorkbook().GetRows("Receipts")
			Expect(rowsErr).NotTo(HaveOccurred())
			Expect(rows).To(HaveLen(1))
		})
	})

	When("listing fails", func() {
		BeforeEach(func() {
			db.listErr = errors.New("database error")
		})

		It("returns the error", func() {
			Expect(err).To(MatchError(ContainSubstring("listing receipts")))
		})
	})
})
