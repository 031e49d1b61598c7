package application

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"

	reports "building-monitor/internal/reports/domain"
)

const (
	summarySheet = "Resumen"
	tableSheet   = "Detalle"
	maxSheetName = 31
)

// BuildWorkbook renders a report result as XLSX: a summary sheet, one sheet
// per dataset and, when present, the detail table.
func BuildWorkbook(def reports.Definition, q reports.Query, environment, runID string, res reports.Result) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}

	_ = f.SetCellValue(summarySheet, "A1", def.Title)
	_ = f.SetCellValue(summarySheet, "A3", "Ambiente")
	_ = f.SetCellValue(summarySheet, "B3", environment)
	_ = f.SetCellValue(summarySheet, "A4", "Desde")
	_ = f.SetCellValue(summarySheet, "B4", q.From.Format(reports.QueryTimeLayout))
	_ = f.SetCellValue(summarySheet, "A5", "Hasta")
	_ = f.SetCellValue(summarySheet, "B5", q.To.Format(reports.QueryTimeLayout))
	_ = f.SetCellValue(summarySheet, "A6", "Ejecución")
	_ = f.SetCellValue(summarySheet, "B6", runID)
	row := 8
	if len(res.Summary) > 0 {
		_ = f.SetCellValue(summarySheet, cell(1, row), "Línea")
		_ = f.SetCellValue(summarySheet, cell(2, row), "Consumo total (kWh)")
		_ = f.SetCellValue(summarySheet, cell(3, row), "Consumo promedio por hora (kWh)")
		for _, s := range res.Summary {
			row++
			_ = f.SetCellValue(summarySheet, cell(1, row), s.Title)
			_ = f.SetCellValue(summarySheet, cell(2, row), s.Total)
			_ = f.SetCellValue(summarySheet, cell(3, row), s.Hourly)
		}
		row += 2
	}
	if res.Lapse != "" {
		_ = f.SetCellValue(summarySheet, cell(1, row), "Lapso de tiempo")
		_ = f.SetCellValue(summarySheet, cell(2, row), res.Lapse)
	}

	for _, ds := range res.Datasets {
		sheet := sheetName(ds.Name)
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
		_ = f.SetCellValue(sheet, "A1", ds.Title)
		_ = f.SetCellValue(sheet, "A2", "Etiqueta")
		for j, s := range ds.Series {
			_ = f.SetCellValue(sheet, cell(j+2, 2), s.Name)
		}
		for i, label := range ds.Labels {
			r := i + 3
			_ = f.SetCellValue(sheet, cell(1, r), label)
			for j, s := range ds.Series {
				_ = f.SetCellValue(sheet, cell(j+2, r), s.Values[i])
			}
		}
	}

	if res.Table != nil {
		if _, err := f.NewSheet(tableSheet); err != nil {
			return nil, err
		}
		for j, c := range res.Table.Columns {
			_ = f.SetCellValue(tableSheet, cell(j+1, 1), c)
		}
		warn, err := f.NewStyle(&excelize.Style{
			Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"F1D2D2"}},
		})
		if err != nil {
			return nil, err
		}
		for i, r := range res.Table.Rows {
			for j, v := range r {
				_ = f.SetCellValue(tableSheet, cell(j+1, i+2), v)
			}
			if i < len(res.Table.Flagged) && res.Table.Flagged[i] && len(r) > 0 {
				_ = f.SetCellStyle(tableSheet, cell(1, i+2), cell(len(r), i+2), warn)
			}
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func cell(col, row int) string {
	name, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return fmt.Sprintf("A%d", row)
	}
	return name
}

func sheetName(name string) string {
	if len(name) > maxSheetName {
		return name[:maxSheetName]
	}
	return name
}
