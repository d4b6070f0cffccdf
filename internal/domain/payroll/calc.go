package payroll

import (
	"fmt"

	"github.com/shopspring/decimal"
)

type InputLine struct {
	Type   AdjustmentType
	Amount decimal.Decimal
}

// ComputePayroll adds earning lines to base and subtracts statutory plus
// deduction lines from the resulting gross. Unknown line types are ignored.
func ComputePayroll(base, statutory decimal.Decimal, inputs []InputLine) (gross, deductions, net decimal.Decimal) {
	gross = base
	deductions = decimal.Zero
	for _, input := range inputs {
		switch input.Type {
		case AdjustmentEarning:
			gross = gross.Add(input.Amount)
		case AdjustmentDeduction:
			deductions = deductions.Add(input.Amount)
		}
	}
	net = gross.Sub(statutory).Sub(deductions)
	return gross, deductions, net
}

func inputLines(adjustments []Adjustment) []InputLine {
	lines := make([]InputLine, 0, len(adjustments))
	for _, adj := range adjustments {
		lines = append(lines, InputLine{Type: adj.Type, Amount: adj.Amount})
	}
	return lines
}

// RecomputeEntry derives gross and net from the entry's snapshot pay, its
// statutory deductions and the complete adjustment set. Statutory amounts
// are left as the engine produced them.
func RecomputeEntry(entry Entry, adjustments []Adjustment) Entry {
	base := entry.BasicSalary.Add(entry.Allowances)
	gross, extra, net := ComputePayroll(base, entry.Deductions.Total(), inputLines(adjustments))
	entry.Gross = gross.Round(moneyPlaces)
	entry.AdjustmentDeductions = extra.Round(moneyPlaces)
	entry.Net = net.Round(moneyPlaces)
	return entry
}

// entryFromComputation checks one engine computation against the entry
// arithmetic before it becomes an entry.
func entryFromComputation(c Computation) (Entry, error) {
	if c.BasicSalary.IsNegative() || c.Allowances.IsNegative() || c.Deductions.negative() {
		return Entry{}, fmt.Errorf("negative amount in computation for employee %d", c.EmployeeID)
	}

	entry := RecomputeEntry(Entry{
		EmployeeID:    c.EmployeeID,
		BasicSalary:   c.BasicSalary.Round(moneyPlaces),
		Allowances:    c.Allowances.Round(moneyPlaces),
		Deductions:    roundDeductions(c.Deductions),
		PaymentStatus: PaymentStatusUnpaid,
	}, nil)

	if !entry.Gross.Equal(c.Gross.Round(moneyPlaces)) {
		return Entry{}, fmt.Errorf("gross %s for employee %d does not equal basic salary plus allowances", c.Gross, c.EmployeeID)
	}
	if !entry.Net.Equal(c.Net.Round(moneyPlaces)) {
		return Entry{}, fmt.Errorf("net %s for employee %d does not equal gross less statutory deductions", c.Net, c.EmployeeID)
	}
	return entry, nil
}

func roundDeductions(d Deductions) Deductions {
	return Deductions{
		Tax:         d.Tax.Round(moneyPlaces),
		Pension:     d.Pension.Round(moneyPlaces),
		HealthLevy:  d.HealthLevy.Round(moneyPlaces),
		HousingLevy: d.HousingLevy.Round(moneyPlaces),
	}
}
