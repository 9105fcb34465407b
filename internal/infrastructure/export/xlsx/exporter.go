package xlsx

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/evidence-vault/internal/core/domain"
)

const (
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	sheetName   = "Exhibits"
)

var header = []any{
	"Exhibit", "Filename", "Category", "Tags", "Date", "Relevance",
	"Status", "Summary", "Source", "Uploaded", "Evidence ID",
}

var columnWidths = map[string]float64{
	"A": 10, "B": 36, "C": 20, "D": 36, "E": 12, "F": 10,
	"G": 12, "H": 60, "I": 10, "J": 20, "K": 38,
}

// Exporter renders an exhibit log: one row per evidence record, in the
// order given.
type Exporter struct{}

func NewExporter() *Exporter {
	return &Exporter{}
}

func (e *Exporter) ContentType() string {
	return ContentType
}

func (e *Exporter) Filename(vaultID string, now time.Time) string {
	return fmt.Sprintf("exhibits-%s-%s.xlsx", sanitize(vaultID), now.UTC().Format("20060102"))
}

func (e *Exporter) Export(w io.Writer, records []domain.Evidence) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}
	if err := f.SetRowStyle(sheetName, 1, 1, bold); err != nil {
		return fmt.Errorf("style header: %w", err)
	}

	for i, rec := range records {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []any{
			fmt.Sprintf("EX-%03d", i+1),
			rec.Filename,
			string(rec.Category),
			strings.Join(rec.Tags, ", "),
			rec.EffectiveDate(),
			rec.RelevanceScore,
			string(rec.IngestionStatus),
			rec.Summary,
			string(rec.ClassificationSource),
			rec.CreatedAt.UTC().Format(time.RFC3339),
			rec.ID,
		}
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	for col, width := range columnWidths {
		if err := f.SetColWidth(sheetName, col, col, width); err != nil {
			return fmt.Errorf("set column width: %w", err)
		}
	}
	lastCell, err := excelize.CoordinatesToCellName(len(header), len(records)+1)
	if err != nil {
		return err
	}
	if err := f.AutoFilter(sheetName, "A1:"+lastCell, nil); err != nil {
		return fmt.Errorf("set autofilter: %w", err)
	}
	if err := f.SetPanes(sheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("freeze header: %w", err)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func sanitize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "vault"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '-'
		}
	}, s)
}
