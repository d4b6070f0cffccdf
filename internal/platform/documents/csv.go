package documents

import (
	"bytes"
	"encoding/csv"
	"strconv"

	"github.com/shopspring/decimal"

	"payrun/internal/domain/payroll"
)

func amount(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func writeCSV(records [][]string) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	if err := writer.WriteAll(records); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (r *Renderer) registerCSV(req payroll.DocumentRequest) (payroll.Artifact, error) {
	records := [][]string{{
		"employee_id", "employee_name", "department", "basic_salary", "allowances", "gross",
		"paye", "nssf", "shif", "housing_levy", "other_deductions", "net", "payment_status", "currency",
	}}
	for _, entry := range req.Entries {
		records = append(records, []string{
			strconv.FormatInt(entry.EmployeeID, 10),
			entry.EmployeeName,
			entry.Department,
			amount(entry.BasicSalary),
			amount(entry.Allowances),
			amount(entry.Gross),
			amount(entry.Deductions.Tax),
			amount(entry.Deductions.Pension),
			amount(entry.Deductions.HealthLevy),
			amount(entry.Deductions.HousingLevy),
			amount(entry.AdjustmentDeductions),
			amount(entry.Net),
			string(entry.PaymentStatus),
			req.Currency,
		})
	}
	data, err := writeCSV(records)
	if err != nil {
		return payroll.Artifact{}, err
	}
	return payroll.Artifact{FileName: "payroll-register-" + runSlug(req.Run) + ".csv", ContentType: contentTypeCSV, Data: data}, nil
}

// journalCSV posts the run as a balanced entry: gross salaries debited,
// each liability and net pay credited.
func (r *Renderer) journalCSV(req payroll.DocumentRequest) (payroll.Artifact, error) {
	s := req.Summary
	records := [][]string{
		{"account", "debit", "credit"},
		{"Salaries Expense", amount(s.TotalGross), ""},
		{"PAYE Payable", "", amount(s.TotalTax)},
		{"NSSF Payable", "", amount(s.TotalPension)},
		{"SHIF Payable", "", amount(s.TotalHealthLevy)},
		{"Housing Levy Payable", "", amount(s.TotalHousingLevy)},
		{"Other Deductions Payable", "", amount(s.TotalAdjustmentDeductions)},
		{"Net Salaries Payable", "", amount(s.TotalNet)},
	}
	data, err := writeCSV(records)
	if err != nil {
		return payroll.Artifact{}, err
	}
	return payroll.Artifact{FileName: "payroll-journal-" + runSlug(req.Run) + ".csv", ContentType: contentTypeCSV, Data: data}, nil
}

// pensionReturnCSV is the NSSF monthly contribution schedule. Employee and
// employer tiers are equal.
func (r *Renderer) pensionReturnCSV(req payroll.DocumentRequest) (payroll.Artifact, error) {
	records := [][]string{{"payroll_number", "employee_name", "nssf_number", "kra_pin", "gross_pay", "employee_contribution", "employer_contribution", "total"}}
	for _, entry := range req.Entries {
		emp := employeeFor(req, entry)
		contribution := entry.Deductions.Pension
		records = append(records, []string{
			emp.Number,
			entry.EmployeeName,
			emp.NSSFNumber,
			emp.KRAPIN,
			amount(entry.Gross),
			amount(contribution),
			amount(contribution),
			amount(contribution.Add(contribution)),
		})
	}
	data, err := writeCSV(records)
	if err != nil {
		return payroll.Artifact{}, err
	}
	return payroll.Artifact{FileName: "nssf-" + runSlug(req.Run) + ".csv", ContentType: contentTypeCSV, Data: data}, nil
}
