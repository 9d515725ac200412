package service

import (
	"bytes"
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"

	"fieldops/internal/model"
)

// ExportStatement renders the agent's commission lines as an Excel
// statement, one row per line plus a totals row.
func (s *CommissionService) ExportStatement(ctx context.Context, tenantID, agentID string, q *model.CommissionListQuery) (*bytes.Buffer, error) {
	lines, err := s.ListForAgent(ctx, tenantID, agentID, q)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Commission Statement"
	f.SetSheetName("Sheet1", sheetName)

	headers := []string{"Date", "Visit ID", "Activity", "Amount", "Currency", "Status", "Needs Review"}
	for i, h := range headers {
		cell := fmt.Sprintf("%c1", 'A'+i)
		f.SetCellValue(sheetName, cell, h)
	}

	var total float64
	for i, line := range lines {
		row := i + 2
		f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), line.CreatedAt.Format("2006-01-02 15:04"))
		f.SetCellValue(sheetName, fmt.Sprintf("B%d", row), line.VisitID)
		f.SetCellValue(sheetName, fmt.Sprintf("C%d", row), string(line.ActivityType))
		f.SetCellValue(sheetName, fmt.Sprintf("D%d", row), line.Amount)
		f.SetCellValue(sheetName, fmt.Sprintf("E%d", row), line.Currency)
		f.SetCellValue(sheetName, fmt.Sprintf("F%d", row), string(line.Status))
		if line.NeedsReview {
			f.SetCellValue(sheetName, fmt.Sprintf("G%d", row), "yes")
		}
		total += line.Amount
	}

	totalRow := len(lines) + 2
	f.SetCellValue(sheetName, fmt.Sprintf("C%d", totalRow), "Total")
	f.SetCellValue(sheetName, fmt.Sprintf("D%d", totalRow), total)

	widths := map[string]float64{"A": 18, "B": 38, "C": 22, "D": 12, "E": 10, "F": 12, "G": 14}
	for col, w := range widths {
		f.SetColWidth(sheetName, col, col, w)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write statement failed: %w", err)
	}
	return &buf, nil
}
