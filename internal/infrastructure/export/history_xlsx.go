package export

import (
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/garyjia/purchase-workflow/internal/application/port"
	"github.com/garyjia/purchase-workflow/internal/domain/entity"
)

const (
	summarySheet = "Request"
	historySheet = "History"
	timeLayout   = "2006-01-02 15:04:05"
)

var historyHeader = []interface{}{
	"#", "Timestamp", "Action", "From", "Via", "To", "Actor ID", "Actor", "Role", "Remark",
}

// HistoryExporter renders a request summary and its approval trail as an XLSX workbook
type HistoryExporter struct {
	location *time.Location
	logger   *zap.Logger
}

// NewHistoryExporter creates an exporter; timestamps are written in loc (UTC when nil)
func NewHistoryExporter(loc *time.Location, logger *zap.Logger) *HistoryExporter {
	if loc == nil {
		loc = time.UTC
	}
	return &HistoryExporter{
		location: loc,
		logger:   logger,
	}
}

// ContentType of the rendered workbook
func (e *HistoryExporter) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

// Extension of the rendered workbook
func (e *HistoryExporter) Extension() string {
	return ".xlsx"
}

// Render builds the workbook in memory
func (e *HistoryExporter) Render(req *entity.PurchaseRequest, history []*entity.ApprovalHistory) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, fmt.Errorf("failed to rename sheet: %w", err)
	}
	if _, err := f.NewSheet(historySheet); err != nil {
		return nil, fmt.Errorf("failed to create history sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("failed to create style: %w", err)
	}

	if err := e.writeSummary(f, req, bold); err != nil {
		return nil, err
	}
	if err := e.writeHistory(f, history, bold); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}

	e.logger.Debug("History workbook rendered",
		zap.Int64("request_id", req.ID),
		zap.Int("entries", len(history)),
		zap.Int("size", buf.Len()))

	return buf.Bytes(), nil
}

func (e *HistoryExporter) writeSummary(f *excelize.File, req *entity.PurchaseRequest, bold int) error {
	rejection := ""
	if req.RejectionReason != nil {
		rejection = *req.RejectionReason
	}

	rows := [][]interface{}{
		{"Request ID", req.ID},
		{"Title", req.Title},
		{"Description", req.Description},
		{"Justification", req.Justification},
		{"Item type", string(req.ItemType)},
		{"Quantity", req.Quantity},
		{"Estimated cost", req.EstimatedCost.StringFixed(2)},
		{"Requester", fmt.Sprintf("%s (%s)", req.RequesterName, req.RequesterID)},
		{"Status", string(req.Status)},
		{"Rejection count", req.RejectionCount},
		{"Last rejection reason", rejection},
		{"Created", req.CreatedAt.In(e.location).Format(timeLayout)},
		{"Updated", req.UpdatedAt.In(e.location).Format(timeLayout)},
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(summarySheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write summary row: %w", err)
		}
	}

	last, _ := excelize.CoordinatesToCellName(1, len(rows))
	if err := f.SetCellStyle(summarySheet, "A1", last, bold); err != nil {
		return fmt.Errorf("failed to style summary: %w", err)
	}
	return f.SetColWidth(summarySheet, "A", "A", 22)
}

func (e *HistoryExporter) writeHistory(f *excelize.File, history []*entity.ApprovalHistory, bold int) error {
	if err := f.SetSheetRow(historySheet, "A1", &historyHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if err := f.SetRowStyle(historySheet, 1, 1, bold); err != nil {
		return fmt.Errorf("failed to style header: %w", err)
	}

	for i, h := range history {
		remark := ""
		if h.Remark != nil {
			remark = *h.Remark
		}
		row := []interface{}{
			i + 1,
			h.Timestamp.In(e.location).Format(timeLayout),
			string(h.Action),
			string(h.PreviousStatus),
			string(h.IntermediateStatus),
			string(h.NewStatus),
			h.ActorID,
			h.ActorName,
			string(h.ActorRole),
			remark,
		}

		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(historySheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write history row %d: %w", i+1, err)
		}
	}

	if err := f.SetColWidth(historySheet, "B", "J", 20); err != nil {
		return err
	}
	return f.SetPanes(historySheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

// Verify interface compliance
var _ port.HistoryRenderer = (*HistoryExporter)(nil)
