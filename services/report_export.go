package services

import (
	"bytes"
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"
)

const reportSheet = "Balance"

var reportHeader = []interface{}{
	"Date", "Reason", "Type", "Amount", "Balance before", "Balance after", "Marked for delete", "Comment",
}

// ExportDebitCreditReport renders the debit/credit report of a student as XLSX.
func (s *ReportService) ExportDebitCreditReport(ctx context.Context, studentID uint) ([]byte, error) {
	changes, err := s.DebitCreditReport(ctx, studentID)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName(f.GetSheetName(0), reportSheet); err != nil {
		return nil, fmt.Errorf("export report: %w", err)
	}
	if err := f.SetSheetRow(reportSheet, "A1", &reportHeader); err != nil {
		return nil, fmt.Errorf("export report: %w", err)
	}
	for i, c := range changes {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, fmt.Errorf("export report: %w", err)
		}
		row := []interface{}{
			c.Date.Format("2006-01-02 15:04"),
			string(c.Reason),
			string(c.BalanceChangeType),
			c.Total.InexactFloat64(),
			c.BalanceBefore.InexactFloat64(),
			c.BalanceAfter.InexactFloat64(),
			c.MarkedForDelete,
			c.Comment,
		}
		if err := f.SetSheetRow(reportSheet, cell, &row); err != nil {
			return nil, fmt.Errorf("export report: %w", err)
		}
	}
	_ = f.SetColWidth(reportSheet, "A", "A", 18)
	_ = f.SetColWidth(reportSheet, "H", "H", 40)

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("export report: %w", err)
	}
	return buf.Bytes(), nil
}
