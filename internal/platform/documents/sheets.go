package documents

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"payrun/internal/domain/payroll"
)

// amountFormat is the built-in "#,##0.00" number format.
const amountFormat = 4

type sheet struct {
	file   *excelize.File
	name   string
	amount int
	bold   int
	row    int
}

func newSheet(name string, headers []string, widths []float64) (*sheet, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", name); err != nil {
		return nil, err
	}
	index, err := f.GetSheetIndex(name)
	if err != nil {
		return nil, err
	}
	f.SetActiveSheet(index)

	amount, err := f.NewStyle(&excelize.Style{NumFmt: amountFormat})
	if err != nil {
		return nil, err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}, NumFmt: amountFormat})
	if err != nil {
		return nil, err
	}
	s := &sheet{file: f, name: name, amount: amount, bold: bold}

	row := make([]any, len(headers))
	for i, h := range headers {
		row[i] = h
	}
	if err := s.append(row, true); err != nil {
		return nil, err
	}
	for i, width := range widths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetColWidth(name, col, col, width); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// append writes one row. Decimal values become numeric cells with the
// amount format so totals can be recomputed in the spreadsheet.
func (s *sheet) append(values []any, bold bool) error {
	s.row++
	for i, value := range values {
		cell, err := excelize.CoordinatesToCellName(i+1, s.row)
		if err != nil {
			return err
		}
		style := 0
		if d, ok := value.(decimal.Decimal); ok {
			value = d.InexactFloat64()
			style = s.amount
		}
		if bold {
			style = s.bold
		}
		if err := s.file.SetCellValue(s.name, cell, value); err != nil {
			return err
		}
		if style != 0 {
			if err := s.file.SetCellStyle(s.name, cell, cell, style); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *sheet) bytes() ([]byte, error) {
	defer s.file.Close()
	buf, err := s.file.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// bankTransferXLSX lists entries that still need paying by bank. Entries
// already disbursed through mobile money are left out.
func (r *Renderer) bankTransferXLSX(req payroll.DocumentRequest) (payroll.Artifact, error) {
	s, err := newSheet("Bank transfers",
		[]string{"Employee number", "Name", "Bank", "Account", "Amount", "Currency", "Reference"},
		[]float64{16, 28, 20, 20, 14, 10, 26})
	if err != nil {
		return payroll.Artifact{}, err
	}
	reference := "SALARY " + runSlug(req.Run)
	total := decimal.Zero
	for _, entry := range req.Entries {
		if entry.Disbursed() {
			continue
		}
		emp := employeeFor(req, entry)
		total = total.Add(entry.Net)
		if err := s.append([]any{emp.Number, entry.EmployeeName, entry.BankName, entry.BankAccount, entry.Net, req.Currency, reference}, false); err != nil {
			return payroll.Artifact{}, err
		}
	}
	if err := s.append([]any{"Total", "", "", "", total, req.Currency, ""}, true); err != nil {
		return payroll.Artifact{}, err
	}
	data, err := s.bytes()
	if err != nil {
		return payroll.Artifact{}, err
	}
	return payroll.Artifact{FileName: "bank-transfer-" + runSlug(req.Run) + ".xlsx", ContentType: contentTypeXLSX, Data: data}, nil
}

func (r *Renderer) healthLevyXLSX(req payroll.DocumentRequest) (payroll.Artifact, error) {
	s, err := newSheet("SHIF",
		[]string{"Employee number", "Name", "SHIF number", "KRA PIN", "Gross pay", "Contribution"},
		[]float64{16, 28, 18, 16, 14, 14})
	if err != nil {
		return payroll.Artifact{}, err
	}
	for _, entry := range req.Entries {
		emp := employeeFor(req, entry)
		if err := s.append([]any{emp.Number, entry.EmployeeName, emp.SHIFNumber, emp.KRAPIN, entry.Gross, entry.Deductions.HealthLevy}, false); err != nil {
			return payroll.Artifact{}, err
		}
	}
	if err := s.append([]any{"Total", "", "", "", req.Summary.TotalGross, req.Summary.TotalHealthLevy}, true); err != nil {
		return payroll.Artifact{}, err
	}
	data, err := s.bytes()
	if err != nil {
		return payroll.Artifact{}, err
	}
	return payroll.Artifact{FileName: fmt.Sprintf("shif-%s.xlsx", runSlug(req.Run)), ContentType: contentTypeXLSX, Data: data}, nil
}
