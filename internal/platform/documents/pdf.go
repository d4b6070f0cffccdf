package documents

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/shopspring/decimal"

	"payrun/internal/domain/payroll"
	"payrun/internal/platform/money"
)

type pdfColumn struct {
	title string
	width float64
}

func newPDF(orientation string) *gofpdf.Fpdf {
	pdf := gofpdf.New(orientation, "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.AddPage()
	return pdf
}

func (r *Renderer) letterhead(pdf *gofpdf.Fpdf, title, subtitle string) {
	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(0, 8, r.Company)
	pdf.Ln(9)
	pdf.SetFont("Helvetica", "B", 13)
	pdf.Cell(0, 7, title)
	pdf.Ln(7)
	if subtitle != "" {
		pdf.SetFont("Helvetica", "", 10)
		pdf.Cell(0, 6, subtitle)
		pdf.Ln(6)
	}
	pdf.Ln(4)
}

func tableHeader(pdf *gofpdf.Fpdf, columns []pdfColumn) {
	pdf.SetFont("Helvetica", "B", 9)
	pdf.SetFillColor(230, 230, 230)
	for i, col := range columns {
		align := "R"
		if i == 0 {
			align = "L"
		}
		pdf.CellFormat(col.width, 7, col.title, "1", 0, align, true, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont("Helvetica", "", 9)
}

func tableRow(pdf *gofpdf.Fpdf, columns []pdfColumn, values []string, bold bool) {
	if bold {
		pdf.SetFont("Helvetica", "B", 9)
	}
	for i, col := range columns {
		align := "R"
		if i == 0 {
			align = "L"
		}
		pdf.CellFormat(col.width, 6, values[i], "1", 0, align, false, 0, "")
	}
	pdf.Ln(-1)
	if bold {
		pdf.SetFont("Helvetica", "", 9)
	}
}

// lineItem writes a label on the left and an amount flush right.
func lineItem(pdf *gofpdf.Fpdf, label string, amount decimal.Decimal, bold bool) {
	style := ""
	if bold {
		style = "B"
	}
	pdf.SetFont("Helvetica", style, 10)
	pdf.CellFormat(120, 6, label, "", 0, "L", false, 0, "")
	pdf.CellFormat(60, 6, money.Format(amount), "", 1, "R", false, 0, "")
}

func section(pdf *gofpdf.Fpdf, title string) {
	pdf.Ln(3)
	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(180, 7, title, "B", 1, "L", false, 0, "")
}

func output(pdf *gofpdf.Fpdf) ([]byte, error) {
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (r *Renderer) payslipPDF(req payroll.DocumentRequest, entry payroll.Entry) ([]byte, error) {
	emp := employeeFor(req, entry)
	pdf := newPDF("P")
	r.letterhead(pdf, "Payslip", fmt.Sprintf("Pay period %s (%s run)", req.Run.Period(), req.Run.RunType))

	pdf.SetFont("Helvetica", "", 10)
	for _, line := range [][2]string{
		{"Employee", entry.EmployeeName},
		{"Employee number", emp.Number},
		{"Department", entry.Department},
		{"KRA PIN", emp.KRAPIN},
		{"NSSF number", emp.NSSFNumber},
	} {
		if line[1] == "" {
			continue
		}
		pdf.CellFormat(45, 6, line[0], "", 0, "L", false, 0, "")
		pdf.CellFormat(135, 6, line[1], "", 1, "L", false, 0, "")
	}

	adjustments := req.Adjustments[entry.EmployeeID]
	section(pdf, "Earnings")
	lineItem(pdf, "Basic salary", entry.BasicSalary, false)
	if !entry.Allowances.IsZero() {
		lineItem(pdf, "Allowances", entry.Allowances, false)
	}
	for _, adj := range adjustments {
		if adj.Type == payroll.AdjustmentEarning {
			lineItem(pdf, adj.Name, adj.Amount, false)
		}
	}
	lineItem(pdf, "Gross pay", entry.Gross, true)

	section(pdf, "Deductions")
	lineItem(pdf, "PAYE", entry.Deductions.Tax, false)
	lineItem(pdf, "NSSF", entry.Deductions.Pension, false)
	lineItem(pdf, "SHIF", entry.Deductions.HealthLevy, false)
	lineItem(pdf, "Housing levy", entry.Deductions.HousingLevy, false)
	for _, adj := range adjustments {
		if adj.Type == payroll.AdjustmentDeduction {
			lineItem(pdf, adj.Name, adj.Amount, false)
		}
	}
	lineItem(pdf, "Total deductions", entry.Deductions.Total().Add(entry.AdjustmentDeductions), true)

	pdf.Ln(4)
	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(120, 8, "Net pay ("+req.Currency+")", "TB", 0, "L", false, 0, "")
	pdf.CellFormat(60, 8, money.Format(entry.Net), "TB", 1, "R", false, 0, "")
	return output(pdf)
}

// taxReturnPDF is the employer's monthly PAYE return (P10).
func (r *Renderer) taxReturnPDF(req payroll.DocumentRequest) (payroll.Artifact, error) {
	pdf := newPDF("L")
	r.letterhead(pdf, "P10 PAYE return", fmt.Sprintf("Period %s, %s run", req.Run.Period(), req.Run.RunType))

	columns := []pdfColumn{
		{"Employee", 70}, {"KRA PIN", 35}, {"Gross pay", 35}, {"NSSF", 30}, {"SHIF", 30}, {"Housing levy", 30}, {"PAYE", 35},
	}
	tableHeader(pdf, columns)
	for _, entry := range req.Entries {
		emp := employeeFor(req, entry)
		tableRow(pdf, columns, []string{
			entry.EmployeeName,
			emp.KRAPIN,
			money.Format(entry.Gross),
			money.Format(entry.Deductions.Pension),
			money.Format(entry.Deductions.HealthLevy),
			money.Format(entry.Deductions.HousingLevy),
			money.Format(entry.Deductions.Tax),
		}, false)
	}
	s := req.Summary
	tableRow(pdf, columns, []string{
		"Total", "",
		money.Format(s.TotalGross),
		money.Format(s.TotalPension),
		money.Format(s.TotalHealthLevy),
		money.Format(s.TotalHousingLevy),
		money.Format(s.TotalTax),
	}, true)

	data, err := output(pdf)
	if err != nil {
		return payroll.Artifact{}, err
	}
	return payroll.Artifact{FileName: "p10-" + runSlug(req.Run) + ".pdf", ContentType: contentTypePDF, Data: data}, nil
}

func (r *Renderer) housingLevyPDF(req payroll.DocumentRequest) (payroll.Artifact, error) {
	pdf := newPDF("P")
	r.letterhead(pdf, "Affordable housing levy return", fmt.Sprintf("Period %s, %s run", req.Run.Period(), req.Run.RunType))

	columns := []pdfColumn{{"Employee", 60}, {"KRA PIN", 35}, {"Gross pay", 30}, {"Employee", 27}, {"Employer", 28}}
	tableHeader(pdf, columns)
	total := decimal.Zero
	for _, entry := range req.Entries {
		emp := employeeFor(req, entry)
		levy := entry.Deductions.HousingLevy
		total = total.Add(levy)
		tableRow(pdf, columns, []string{
			entry.EmployeeName,
			emp.KRAPIN,
			money.Format(entry.Gross),
			money.Format(levy),
			money.Format(levy),
		}, false)
	}
	tableRow(pdf, columns, []string{"Total", "", money.Format(req.Summary.TotalGross), money.Format(total), money.Format(total)}, true)
	pdf.Ln(4)
	lineItem(pdf, "Amount due ("+req.Currency+")", total.Add(total), true)

	data, err := output(pdf)
	if err != nil {
		return payroll.Artifact{}, err
	}
	return payroll.Artifact{FileName: "housing-levy-" + runSlug(req.Run) + ".pdf", ContentType: contentTypePDF, Data: data}, nil
}

// taxCardPDF is the employee's annual P9 card built from locked runs.
func (r *Renderer) taxCardPDF(req payroll.DocumentRequest) (payroll.Artifact, error) {
	if len(req.Employees) != 1 {
		return payroll.Artifact{}, fmt.Errorf("tax card needs exactly one employee, got %d", len(req.Employees))
	}
	var employeeID int64
	for id := range req.Employees {
		employeeID = id
	}
	emp := req.Employees[employeeID]

	pdf := newPDF("L")
	r.letterhead(pdf, fmt.Sprintf("P9 tax deduction card %d", req.TaxYear), emp.DisplayName()+"  KRA PIN "+emp.KRAPIN)

	columns := []pdfColumn{
		{"Month", 40}, {"Gross pay", 40}, {"NSSF", 35}, {"SHIF", 35}, {"Housing levy", 35}, {"PAYE", 35}, {"Net pay", 40},
	}
	tableHeader(pdf, columns)
	var totals payroll.TaxCardLine
	for _, line := range req.TaxCard {
		totals.Gross = totals.Gross.Add(line.Gross)
		totals.Deductions.Pension = totals.Deductions.Pension.Add(line.Deductions.Pension)
		totals.Deductions.HealthLevy = totals.Deductions.HealthLevy.Add(line.Deductions.HealthLevy)
		totals.Deductions.HousingLevy = totals.Deductions.HousingLevy.Add(line.Deductions.HousingLevy)
		totals.Deductions.Tax = totals.Deductions.Tax.Add(line.Deductions.Tax)
		totals.Net = totals.Net.Add(line.Net)
		tableRow(pdf, columns, taxCardValues(time.Month(line.Period.Month).String(), line), false)
	}
	tableRow(pdf, columns, taxCardValues("Total", totals), true)

	data, err := output(pdf)
	if err != nil {
		return payroll.Artifact{}, err
	}
	id := emp.Number
	if id == "" {
		id = fmt.Sprintf("%d", emp.ID)
	}
	return payroll.Artifact{FileName: fmt.Sprintf("p9-%d-%s.pdf", req.TaxYear, id), ContentType: contentTypePDF, Data: data}, nil
}

func taxCardValues(label string, line payroll.TaxCardLine) []string {
	return []string{
		label,
		money.Format(line.Gross),
		money.Format(line.Deductions.Pension),
		money.Format(line.Deductions.HealthLevy),
		money.Format(line.Deductions.HousingLevy),
		money.Format(line.Deductions.Tax),
		money.Format(line.Net),
	}
}
