package tellergo

import (
	"fmt"
	"io"
	"time"

	"github.com/go-pdf/fpdf"
)

// WriteStatement renders an account statement as a single PDF document.
func WriteStatement(w io.Writer, info AccountInfo, txns []Transaction, at time.Time) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Statement "+info.Number, true)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 10, "Account Statement", "", 1, "L", false, 0, "")

	pdf.SetFont("Helvetica", "", 10)
	header := [][2]string{
		{"Account Holder", info.Holder},
		{"Account Number", info.Number},
		{"Account Type", string(info.Type)},
		{"Interest Rate", info.InterestRate.StringFixed(2) + "%"},
		{"Balance", usd(info.Balance)},
		{"Generated", at.Format(HistoryTimeLayout)},
	}
	for _, kv := range header {
		pdf.CellFormat(40, 6, kv[0], "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 6, kv[1], "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetFillColor(230, 230, 230)
	pdf.CellFormat(40, 7, "Date", "1", 0, "L", true, 0, "")
	pdf.CellFormat(30, 7, "Type", "1", 0, "L", true, 0, "")
	pdf.CellFormat(30, 7, "Amount", "1", 0, "R", true, 0, "")
	pdf.CellFormat(0, 7, "Description", "1", 1, "L", true, 0, "")

	pdf.SetFont("Helvetica", "", 9)
	if len(txns) == 0 {
		pdf.CellFormat(0, 6, "No transactions yet.", "1", 1, "L", false, 0, "")
	}
	for _, t := range txns {
		pdf.CellFormat(40, 6, t.Time.Format(HistoryTimeLayout), "1", 0, "L", false, 0, "")
		pdf.CellFormat(30, 6, string(t.Kind), "1", 0, "L", false, 0, "")
		pdf.CellFormat(30, 6, t.Amount.StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.CellFormat(0, 6, t.Description, "1", 1, "L", false, 0, "")
	}

	if err := pdf.Error(); err != nil {
		return fmt.Errorf("render statement: %w", err)
	}
	return pdf.Output(w)
}
