package report

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"

	"shuttlegate/internal/engine"
)

func generateXLSX(snap Snapshot) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	f.DeleteSheet("Sheet1")

	writeDeviceSheet(f, snap)
	writeQueueSheet(f, "Pending", snap.Pending)
	writeQueueSheet(f, "Processing", snap.Processing)

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeDeviceSheet(f *excelize.File, snap Snapshot) {
	sheet := "Devices"
	f.NewSheet(sheet)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"2C3E50"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})

	f.SetCellValue(sheet, "A1", "Shuttlegate Shift Report")
	f.MergeCell(sheet, "A1", "D1")
	f.SetCellValue(sheet, "A2", "Generated")
	f.SetCellValue(sheet, "B2", snap.GeneratedAt)

	row := 4
	headers := []string{"Device", "Pending", "Processing", "Completed"}
	for i, h := range headers {
		f.SetCellValue(sheet, cellAddr(string(rune('A'+i)), row), h)
	}
	f.SetCellStyle(sheet, cellAddr("A", row), cellAddr("D", row), headerStyle)
	row++

	for _, stats := range snap.PerDevice {
		f.SetCellValue(sheet, cellAddr("A", row), stats.DeviceID)
		f.SetCellValue(sheet, cellAddr("B", row), stats.Pending)
		f.SetCellValue(sheet, cellAddr("C", row), stats.Processing)
		f.SetCellValue(sheet, cellAddr("D", row), stats.Completed)
		row++
	}

	f.SetColWidth(sheet, "A", "D", 18)
}

func writeQueueSheet(f *excelize.File, name string, entries []engine.CommandTrackingInfo) {
	f.NewSheet(name)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
	})

	headers := []string{"Command ID", "Device", "Type", "Submitted At"}
	for i, h := range headers {
		f.SetCellValue(name, cellAddr(string(rune('A'+i)), 1), h)
	}
	f.SetCellStyle(name, "A1", "D1", headerStyle)

	for i, entry := range entries {
		row := i + 2
		f.SetCellValue(name, cellAddr("A", row), entry.Envelope.CommandID)
		f.SetCellValue(name, cellAddr("B", row), entry.Envelope.DeviceID)
		f.SetCellValue(name, cellAddr("C", row), string(entry.Envelope.CommandType))
		f.SetCellValue(name, cellAddr("D", row), entry.SubmittedAt.Format("2006-01-02 15:04:05"))
	}

	f.SetColWidth(name, "A", "D", 20)
}

func cellAddr(col string, row int) string {
	return fmt.Sprintf("%s%d", col, row)
}
