package batch

import (
	"github.com/xuri/excelize/v2"
)

// WriteSummaryXLSX 写出批量结果汇总表
// Summary 页为总体统计，Cases 页每组一行
func WriteSummaryXLSX(filename string, outcomes []Outcome) error {
	f := excelize.NewFile()
	defer f.Close()

	s := Summarize(outcomes)
	summary := "Summary"
	f.SetSheetName("Sheet1", summary)
	rows := [][2]any{
		{"Type", "Value"},
		{"Total", s.Total},
		{"Succeeded", s.Succeeded},
		{"Failed", s.Failed},
		{"SuccessRate", s.SuccessRate},
		{"Seconds", s.Duration.Seconds()},
	}
	for i, r := range rows {
		for j, v := range r {
			cell, _ := excelize.CoordinatesToCellName(j+1, i+1)
			f.SetCellValue(summary, cell, v)
		}
	}

	sheet := "Cases"
	f.NewSheet(sheet)
	header := []string{"Case", "MaxConductivity", "RobinCoeff", "Success", "Seconds", "MaxE", "BoxAirPoints", "Percentage", "Path", "Error", "RunID"}
	for col, h := range header {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		f.SetCellValue(sheet, cell, h)
	}
	for i, o := range outcomes {
		row := i + 2
		values := []any{o.Name, o.MaxConductivity, o.RobinCoeff, o.Success, o.Duration.Seconds(),
			o.MaxE, o.BoxAirPoints, o.Percentage, o.Path, o.Err, o.RunID}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			f.SetCellValue(sheet, cell, v)
		}
	}
	return f.SaveAs(filename)
}
