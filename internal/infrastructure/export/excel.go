// Package export renders calculation results as an Excel workbook.
package export

import (
	"bytes"
	"fmt"

	"github.com/felixgeelhaar/kalk/pkg/application"
	"github.com/felixgeelhaar/kalk/pkg/domain/calculation"
	"github.com/xuri/excelize/v2"
)

const (
	SummarySheet   = "Projects"
	EmployeesSheet = "Employees"
)

// Project is one project with its classifications, as written to the workbook.
type Project struct {
	Project   calculation.Project
	Overall   application.ProjectClassification
	Employees []application.EmployeeClassification
}

var statusFill = map[calculation.Status]string{
	calculation.StatusGreen:  "#C6EFCE",
	calculation.StatusYellow: "#FFEB9C",
	calculation.StatusRed:    "#FFC7CE",
}

// Workbook builds an .xlsx with one summary row per project and one row per
// crew member. Hours are rounded for display with rule.
func Workbook(projects []Project, rule calculation.RoundingRule) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SummarySheet); err != nil {
		return nil, fmt.Errorf("set sheet name: %w", err)
	}
	if _, err := f.NewSheet(EmployeesSheet); err != nil {
		return nil, fmt.Errorf("create employee sheet: %w", err)
	}

	st, err := newStyles(f)
	if err != nil {
		return nil, err
	}

	summary := sheet{f: f, name: SummarySheet, st: st}
	if err := summary.header([]string{"Project", "Name", "Planned h", "Actual h", "% of plan", "Status", "Planned EUR", "Actual EUR"},
		[]float64{12, 32, 12, 12, 12, 10, 14, 14}); err != nil {
		return nil, err
	}
	crew := sheet{f: f, name: EmployeesSheet, st: st}
	if err := crew.header([]string{"Project", "Employee", "Name", "Planned h", "Actual h", "% of plan", "Status"},
		[]float64{12, 12, 28, 12, 12, 12, 10}); err != nil {
		return nil, err
	}

	for _, p := range projects {
		c := p.Overall
		if err := summary.row(c.Status,
			p.Project.ID, p.Project.Name,
			calculation.DisplayHours(c.Hours.Planned, rule), calculation.DisplayHours(c.Hours.Actual, rule),
			c.DeviationPercent.Round(1).InexactFloat64(), string(c.Status),
			c.Revenue.Planned.Round(2).InexactFloat64(), c.Revenue.Actual.Round(2).InexactFloat64(),
		); err != nil {
			return nil, err
		}
		for _, e := range p.Employees {
			if err := crew.row(e.Status,
				p.Project.ID, e.EmployeeID, e.EmployeeName,
				calculation.DisplayHours(e.Hours.Planned, rule), calculation.DisplayHours(e.Hours.Actual, rule),
				e.DeviationPercent.Round(1).InexactFloat64(), string(e.Status),
			); err != nil {
				return nil, err
			}
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

type styles struct {
	header int
	cell   int
	status map[calculation.Status]int
}

func newStyles(f *excelize.File) (styles, error) {
	st := styles{status: make(map[calculation.Status]int, len(statusFill))}
	var err error
	st.header, err = f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "#FFFFFF", Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#333333"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
		Border:    thinBorders(),
	})
	if err != nil {
		return st, fmt.Errorf("create header style: %w", err)
	}
	st.cell, err = f.NewStyle(&excelize.Style{Font: &excelize.Font{Size: 10}, Border: thinBorders()})
	if err != nil {
		return st, fmt.Errorf("create cell style: %w", err)
	}
	for status, color := range statusFill {
		id, err := f.NewStyle(&excelize.Style{
			Font:      &excelize.Font{Bold: true, Size: 10},
			Fill:      excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1},
			Alignment: &excelize.Alignment{Horizontal: "center"},
			Border:    thinBorders(),
		})
		if err != nil {
			return st, fmt.Errorf("create %s style: %w", status, err)
		}
		st.status[status] = id
	}
	return st, nil
}

func thinBorders() []excelize.Border {
	return []excelize.Border{
		{Type: "left", Color: "#999999", Style: 1},
		{Type: "right", Color: "#999999", Style: 1},
		{Type: "top", Color: "#999999", Style: 1},
		{Type: "bottom", Color: "#999999", Style: 1},
	}
}

// sheet appends rows below a header and colors the "Status" column.
type sheet struct {
	f         *excelize.File
	name      string
	st        styles
	next      int
	cols      int
	statusCol int
}

func (s *sheet) header(titles []string, widths []float64) error {
	for i, title := range titles {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := s.f.SetColWidth(s.name, col, col, widths[i]); err != nil {
			return fmt.Errorf("set col width %s: %w", col, err)
		}
		if err := s.f.SetCellValue(s.name, col+"1", title); err != nil {
			return err
		}
		if title == "Status" {
			s.statusCol = i + 1
		}
	}
	last, _ := excelize.CoordinatesToCellName(len(titles), 1)
	if err := s.f.SetCellStyle(s.name, "A1", last, s.st.header); err != nil {
		return err
	}
	if err := s.f.SetPanes(s.name, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return fmt.Errorf("freeze header: %w", err)
	}
	s.next = 2
	s.cols = len(titles)
	return nil
}

func (s *sheet) row(status calculation.Status, values ...any) error {
	first, _ := excelize.CoordinatesToCellName(1, s.next)
	if err := s.f.SetSheetRow(s.name, first, &values); err != nil {
		return fmt.Errorf("write row %d: %w", s.next, err)
	}
	last, _ := excelize.CoordinatesToCellName(s.cols, s.next)
	if err := s.f.SetCellStyle(s.name, first, last, s.st.cell); err != nil {
		return err
	}
	if id, ok := s.st.status[status]; ok && s.statusCol > 0 {
		cell, _ := excelize.CoordinatesToCellName(s.statusCol, s.next)
		if err := s.f.SetCellStyle(s.name, cell, cell, id); err != nil {
			return err
		}
	}
	s.next++
	return nil
}
