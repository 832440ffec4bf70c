package report

import (
	"fmt"
	"io"
	"time"

	"github.com/garyjia/ers-reimbursement/internal/domain/entity"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// SheetName is the worksheet holding the export
const SheetName = "Reimbursements"

// ContentType is the MIME type of the generated workbook
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

const timeLayout = "2006-01-02 15:04:05"

var header = []interface{}{
	"ID", "Amount", "Submitted", "Resolved", "Status", "Type",
	"Author", "Resolver", "Description", "Receipt",
}

// ExcelExporter writes reimbursements to an xlsx workbook
type ExcelExporter struct {
	logger *zap.Logger
}

// NewExcelExporter creates a new exporter
func NewExcelExporter(logger *zap.Logger) *ExcelExporter {
	return &ExcelExporter{logger: logger}
}

// Write renders one row per record plus a total row and writes the workbook to w
func (e *ExcelExporter) Write(w io.Writer, records []*entity.Reimbursement) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"DDEBF7"}},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	amountFormat := "#,##0.00"
	amountStyle, err := f.NewStyle(&excelize.Style{CustomNumFmt: &amountFormat})
	if err != nil {
		return fmt.Errorf("failed to create amount style: %w", err)
	}
	totalStyle, err := f.NewStyle(&excelize.Style{
		Font:         &excelize.Font{Bold: true},
		CustomNumFmt: &amountFormat,
	})
	if err != nil {
		return fmt.Errorf("failed to create total style: %w", err)
	}

	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if err := f.SetCellStyle(SheetName, "A1", "J1", headerStyle); err != nil {
		return fmt.Errorf("failed to style header: %w", err)
	}

	total := decimal.Zero
	for i, r := range records {
		row := i + 2
		cell, _ := excelize.CoordinatesToCellName(1, row)
		values := []interface{}{
			r.ID,
			r.Amount.InexactFloat64(),
			r.SubmittedAt.UTC().Format(timeLayout),
			formatTime(r.ResolvedAt),
			r.Status,
			r.Type,
			r.Author,
			deref(r.Resolver),
			r.Description,
			deref(r.ReceiptRef),
		}
		if err := f.SetSheetRow(SheetName, cell, &values); err != nil {
			return fmt.Errorf("failed to write row %d: %w", row, err)
		}
		amountCell, _ := excelize.CoordinatesToCellName(2, row)
		if err := f.SetCellStyle(SheetName, amountCell, amountCell, amountStyle); err != nil {
			return fmt.Errorf("failed to style row %d: %w", row, err)
		}
		total = total.Add(r.Amount)
	}

	totalRow := len(records) + 2
	labelCell, _ := excelize.CoordinatesToCellName(1, totalRow)
	totalCell, _ := excelize.CoordinatesToCellName(2, totalRow)
	if err := f.SetCellValue(SheetName, labelCell, "Total"); err != nil {
		return fmt.Errorf("failed to write total label: %w", err)
	}
	if err := f.SetCellValue(SheetName, totalCell, total.InexactFloat64()); err != nil {
		return fmt.Errorf("failed to write total: %w", err)
	}
	if err := f.SetCellStyle(SheetName, labelCell, totalCell, totalStyle); err != nil {
		return fmt.Errorf("failed to style total: %w", err)
	}

	_ = f.SetColWidth(SheetName, "C", "D", 20)
	_ = f.SetColWidth(SheetName, "I", "J", 36)

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}

	e.logger.Debug("Exported reimbursements",
		zap.Int("rows", len(records)),
		zap.String("total", total.StringFixed(2)))
	return nil
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
