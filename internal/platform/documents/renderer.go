package documents

import (
	"context"
	"fmt"
	"strings"

	"payrun/internal/domain/directory"
	"payrun/internal/domain/payroll"
)

const (
	contentTypePDF  = "application/pdf"
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	contentTypeCSV  = "text/csv"
	contentTypeZIP  = "application/zip"
)

// Renderer produces statutory returns, bank files and payslips from run
// data. It holds no state besides the letterhead.
type Renderer struct {
	Company string
}

func NewRenderer(company string) *Renderer {
	return &Renderer{Company: company}
}

func (r *Renderer) Render(ctx context.Context, req payroll.DocumentRequest) (payroll.Artifact, error) {
	if err := ctx.Err(); err != nil {
		return payroll.Artifact{}, err
	}
	switch req.Kind {
	case payroll.DocumentPayslip:
		if len(req.Entries) != 1 {
			return payroll.Artifact{}, fmt.Errorf("payslip needs exactly one entry, got %d", len(req.Entries))
		}
		entry := req.Entries[0]
		data, err := r.payslipPDF(req, entry)
		if err != nil {
			return payroll.Artifact{}, err
		}
		return payroll.Artifact{FileName: payslipName(req.Run, entry, employeeFor(req, entry)), ContentType: contentTypePDF, Data: data}, nil
	case payroll.DocumentPayslipBundle:
		return r.payslipBundle(ctx, req)
	case payroll.DocumentBankTransfer:
		return r.bankTransferXLSX(req)
	case payroll.DocumentTaxReturn:
		return r.taxReturnPDF(req)
	case payroll.DocumentPensionReturn:
		return r.pensionReturnCSV(req)
	case payroll.DocumentHealthLevyReturn:
		return r.healthLevyXLSX(req)
	case payroll.DocumentHousingLevyReturn:
		return r.housingLevyPDF(req)
	case payroll.DocumentRegister:
		return r.registerCSV(req)
	case payroll.DocumentJournal:
		return r.journalCSV(req)
	case payroll.DocumentTaxCard:
		return r.taxCardPDF(req)
	}
	return payroll.Artifact{}, fmt.Errorf("unsupported document kind %q", req.Kind)
}

func runSlug(run payroll.Run) string {
	return run.Period().String() + "-" + strings.ReplaceAll(string(run.RunType), "_", "-")
}

func payslipName(run payroll.Run, entry payroll.Entry, emp directory.Employee) string {
	id := emp.Number
	if id == "" {
		id = fmt.Sprintf("%d", entry.EmployeeID)
	}
	return fmt.Sprintf("payslip-%s-%s.pdf", runSlug(run), id)
}

func employeeFor(req payroll.DocumentRequest, entry payroll.Entry) directory.Employee {
	if emp, ok := req.Employees[entry.EmployeeID]; ok {
		return emp
	}
	return directory.Employee{ID: entry.EmployeeID, FirstName: entry.EmployeeName}
}
