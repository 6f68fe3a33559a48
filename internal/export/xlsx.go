package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

func xlsxStyle(sp styleSpec) *excelize.Style {
	st := &excelize.Style{
		Font: &excelize.Font{Bold: sp.Bold, Italic: sp.Italic, Size: sp.Size, Family: "Calibri"},
		Alignment: &excelize.Alignment{
			Horizontal: sp.Align,
			Vertical:   "center",
			WrapText:   sp.Wrap,
		},
	}
	if sp.Fill != "" {
		st.Fill = excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{sp.Fill}}
	}
	if sp.Border {
		for _, side := range []string{"left", "top", "right", "bottom"} {
			st.Border = append(st.Border, excelize.Border{Type: side, Color: "000000", Style: 1})
		}
	}
	return st
}

// renderXLSX пишет документ в w: лист на секцию, ширины, объединения и стили ячеек.
func renderXLSX(doc *Document, w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	styleIDs := map[Style]int{}
	styleID := func(st Style) (int, error) {
		if id, ok := styleIDs[st]; ok {
			return id, nil
		}
		id, err := f.NewStyle(xlsxStyle(styleSpecs[st]))
		if err != nil {
			return 0, err
		}
		styleIDs[st] = id
		return id, nil
	}

	for i, sh := range doc.Sheets {
		if i == 0 {
			if err := f.SetSheetName(f.GetSheetName(0), sh.Name); err != nil {
				return fmt.Errorf("лист %q: %w", sh.Name, err)
			}
		} else if _, err := f.NewSheet(sh.Name); err != nil {
			return fmt.Errorf("лист %q: %w", sh.Name, err)
		}
		for c, width := range sh.Widths {
			col, err := excelize.ColumnNumberToName(c + 1)
			if err != nil {
				return err
			}
			if err := f.SetColWidth(sh.Name, col, col, width); err != nil {
				return err
			}
		}
		for row, h := range sh.RowHeights {
			if err := f.SetRowHeight(sh.Name, row, h); err != nil {
				return err
			}
		}
		for _, c := range sh.Cells {
			start, err := excelize.CoordinatesToCellName(c.Col, c.Row)
			if err != nil {
				return err
			}
			end, err := excelize.CoordinatesToCellName(c.EndCol, c.Row)
			if err != nil {
				return err
			}
			if err := f.SetCellStr(sh.Name, start, c.Text); err != nil {
				return err
			}
			if c.EndCol > c.Col {
				if err := f.MergeCell(sh.Name, start, end); err != nil {
					return err
				}
			}
			id, err := styleID(c.Style)
			if err != nil {
				return err
			}
			if err := f.SetCellStyle(sh.Name, start, end, id); err != nil {
				return err
			}
		}
	}
	f.SetActiveSheet(0)

	if err := f.SetDocProps(&excelize.DocProperties{
		Title:       doc.Title,
		Subject:     doc.Subject,
		Creator:     doc.Company,
		Category:    doc.Kind,
		Identifier:  doc.AuditID,
		Keywords:    "audit:" + doc.AuditID,
		Description: "Prüf-ID " + doc.AuditID,
	}); err != nil {
		return err
	}
	return f.Write(w)
}
