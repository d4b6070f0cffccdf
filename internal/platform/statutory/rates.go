package statutory

import (
	"github.com/shopspring/decimal"

	"payrun/internal/domain/directory"
	"payrun/internal/domain/payroll"
)

var (
	nssfRate        = decimal.RequireFromString("0.06")
	nssfUpperLimit  = decimal.NewFromInt(72000)
	shifRate        = decimal.RequireFromString("0.0275")
	shifMinimum     = decimal.NewFromInt(300)
	housingLevyRate = decimal.RequireFromString("0.015")
	personalRelief  = decimal.NewFromInt(2400)
)

type band struct {
	width decimal.Decimal
	rate  decimal.Decimal
}

// payeBands are monthly widths; the last band is open-ended.
var payeBands = []band{
	{width: decimal.NewFromInt(24000), rate: decimal.RequireFromString("0.10")},
	{width: decimal.NewFromInt(8333), rate: decimal.RequireFromString("0.25")},
	{width: decimal.NewFromInt(467667), rate: decimal.RequireFromString("0.30")},
	{width: decimal.NewFromInt(300000), rate: decimal.RequireFromString("0.325")},
	{width: decimal.Zero, rate: decimal.RequireFromString("0.35")},
}

// Calculate applies the monthly statutory rules to one employee.
func Calculate(emp directory.Employee) payroll.Computation {
	basic := emp.BasicSalary.Round(2)
	allowances := emp.Allowances.Round(2)
	gross := basic.Add(allowances)

	deductions := payroll.Deductions{
		Pension:     NSSF(gross),
		HealthLevy:  SHIF(gross),
		HousingLevy: HousingLevy(gross),
	}
	taxable := gross.Sub(deductions.Pension).Sub(deductions.HealthLevy).Sub(deductions.HousingLevy)
	deductions.Tax = PAYE(taxable)

	return payroll.Computation{
		EmployeeID:  emp.ID,
		BasicSalary: basic,
		Allowances:  allowances,
		Gross:       gross,
		Deductions:  deductions,
		Net:         gross.Sub(deductions.Total()),
	}
}

func NSSF(gross decimal.Decimal) decimal.Decimal {
	return decimal.Min(gross, nssfUpperLimit).Mul(nssfRate).Round(2)
}

func SHIF(gross decimal.Decimal) decimal.Decimal {
	if !gross.IsPositive() {
		return decimal.Zero
	}
	return decimal.Max(gross.Mul(shifRate), shifMinimum).Round(2)
}

func HousingLevy(gross decimal.Decimal) decimal.Decimal {
	return gross.Mul(housingLevyRate).Round(2)
}

// PAYE returns monthly income tax on taxable pay after personal relief,
// floored at zero.
func PAYE(taxable decimal.Decimal) decimal.Decimal {
	remaining := taxable
	tax := decimal.Zero
	for _, b := range payeBands {
		if !remaining.IsPositive() {
			break
		}
		portion := remaining
		if !b.width.IsZero() {
			portion = decimal.Min(remaining, b.width)
		}
		tax = tax.Add(portion.Mul(b.rate))
		remaining = remaining.Sub(portion)
	}
	return decimal.Max(tax.Sub(personalRelief), decimal.Zero).Round(2)
}
