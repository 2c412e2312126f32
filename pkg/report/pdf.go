package report

import (
	"fmt"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

var (
	headerBgColor  = &props.Color{Red: 44, Green: 62, Blue: 80}
	darkGrayColor  = &props.Color{Red: 127, Green: 140, Blue: 141}
	primaryColor   = &props.Color{Red: 52, Green: 152, Blue: 219}

	titleStyle = props.Text{Size: 20, Style: fontstyle.Bold, Align: align.Center, Color: headerBgColor}
	h2Style    = props.Text{Size: 13, Style: fontstyle.Bold, Color: headerBgColor, Top: 4}
	smallStyle = props.Text{Size: 8, Color: darkGrayColor}
	cellStyle  = props.Text{Size: 9}
	headerText = props.Text{Size: 9, Style: fontstyle.Bold, Color: &props.Color{Red: 255, Green: 255, Blue: 255}, Align: align.Center}
	headerCell = &props.Cell{BackgroundColor: primaryColor}
)

func generatePDF(snap Snapshot) ([]byte, error) {
	cfg := config.NewBuilder().
		WithPageNumber().
		WithLeftMargin(15).
		WithTopMargin(15).
		WithRightMargin(15).
		Build()

	m := maroto.New(cfg)

	m.AddRow(12, text.NewCol(12, "Shuttlegate Shift Report", titleStyle))
	m.AddRow(5, line.NewCol(12))
	m.AddRow(6, text.NewCol(12, fmt.Sprintf("Generated: %s", snap.GeneratedAt), smallStyle))

	m.AddRow(8, text.NewCol(12, "Device Summary", h2Style))
	m.AddRow(7,
		text.NewCol(3, "Device", headerText).WithStyle(headerCell),
		text.NewCol(3, "Pending", headerText).WithStyle(headerCell),
		text.NewCol(3, "Processing", headerText).WithStyle(headerCell),
		text.NewCol(3, "Completed", headerText).WithStyle(headerCell),
	)

	for _, stats := range snap.PerDevice {
		m.AddRow(6,
			col.New(3).Add(text.New(stats.DeviceID, cellStyle)),
			col.New(3).Add(text.New(fmt.Sprintf("%d", stats.Pending), cellStyle)),
			col.New(3).Add(text.New(fmt.Sprintf("%d", stats.Processing), cellStyle)),
			col.New(3).Add(text.New(fmt.Sprintf("%d", stats.Completed), cellStyle)),
		)
	}

	m.AddRow(8, text.NewCol(12, "In-Flight Commands", h2Style))
	m.AddRow(7,
		text.NewCol(4, "Command ID", headerText).WithStyle(headerCell),
		text.NewCol(4, "Device", headerText).WithStyle(headerCell),
		text.NewCol(4, "Type", headerText).WithStyle(headerCell),
	)

	for _, entry := range snap.Processing {
		m.AddRow(6,
			col.New(4).Add(text.New(entry.Envelope.CommandID, cellStyle)),
			col.New(4).Add(text.New(entry.Envelope.DeviceID, cellStyle)),
			col.New(4).Add(text.New(string(entry.Envelope.CommandType), cellStyle)),
		)
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("failed to generate pdf: %w", err)
	}
	return doc.GetBytes(), nil
}
