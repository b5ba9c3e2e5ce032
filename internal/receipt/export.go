package receipt

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

const (
	receiptsSheet = "Receipts"
	itemsSheet    = "Items"
)

var (
	receiptHeaders = []string{
		"Document ID", "Date", "Time", "Store", "Location", "Items Purchased",
		"Subtotal", "Tax", "Savings", "Total", "Payment Method", "Card", "Receipt ID", "File",
	}
	itemHeaders = []string{
		"Document ID", "Date", "Store", "Item", "Quantity", "Unit Price", "Total", "Parse Mode",
	}
)

// ExportXLSX builds a workbook of the user's receipts with one row per
// receipt on the first sheet and one row per line item on the second
func (s *Service) ExportXLSX(userID string) ([]byte, error) {
	receipts, err := s.db.ListReceipts(userID)
	if err != nil {
		return nil, fmt.Errorf("listing receipts: %w", err)
	}
	return buildWorkbook(receipts)
}

func buildWorkbook(receipts []*Receipt) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	// the default sheet becomes the receipts sheet
	if err := f.SetSheetName(f.GetSheetName(0), receiptsSheet); err != nil {
		return nil, fmt.Errorf("naming sheet: %w", err)
	}
	if _, err := f.NewSheet(itemsSheet); err != nil {
		return nil, fmt.Errorf("creating sheet: %w", err)
	}

	if err := writeRow(f, receiptsSheet, 1, toCells(receiptHeaders)); err != nil {
		return nil, err
	}
	if err := writeRow(f, itemsSheet, 1, toCells(itemHeaders)); err != nil {
		return nil, err
	}

	itemRow := 2
	for i, r := range receipts {
		err := writeRow(f, receiptsSheet, i+2, []any{
			r.ID,
			r.Details.Date,
			r.Details.Time,
			r.Store.Name,
			r.Store.Location,
			r.Summary.ItemsPurchased,
			money(r.Summary.Subtotal),
			money(r.Summary.Tax),
			money(r.Summary.Savings),
			money(r.Summary.Total),
			r.Payment.Method,
			r.Payment.CardType,
			r.Details.ReceiptID,
			r.Metadata.Filename,
		})
		if err != nil {
			return nil, err
		}

		for _, it := range r.Items {
			err := writeRow(f, itemsSheet, itemRow, []any{
				r.ID,
				r.Details.Date,
				r.Store.Name,
				it.Name,
				it.Quantity,
				it.UnitPrice.InexactFloat64(),
				it.Total.InexactFloat64(),
				it.Meta.ParseMode,
			})
			if err != nil {
				return nil, err
			}
			itemRow++
		}
	}

	_ = f.SetColWidth(receiptsSheet, "A", "A", 28)
	_ = f.SetColWidth(receiptsSheet, "D", "E", 32)
	_ = f.SetColWidth(itemsSheet, "A", "A", 28)
	_ = f.SetColWidth(itemsSheet, "D", "D", 36)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("writing %s row %d: %w", sheet, row, err)
	}
	return nil
}

func toCells(headers []string) []any {
	cells := make([]any, len(headers))
	for i, h := range headers {
		cells[i] = h
	}
	return cells
}

// money renders a nullable amount as a number, or an empty cell when absent
func money(d decimal.NullDecimal) any {
	if !d.Valid {
		return ""
	}
	return d.Decimal.InexactFloat64()
}
