package statutory

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"payrun/internal/domain/directory"
	"payrun/internal/domain/payroll"
	"payrun/internal/platform/money"
)

// History supplies previous net pay for the anomaly scan.
type History interface {
	TrailingNetPay(ctx context.Context, employeeID int64, before payroll.Period, limit int) ([]decimal.Decimal, error)
}

type Options struct {
	VarianceThreshold float64
	LookbackRuns      int
}

// Engine computes Kenyan monthly statutory deductions and flags net pay
// that moves sharply against the employee's recent regular runs.
type Engine struct {
	history   History
	threshold decimal.Decimal
	lookback  int
}

func New(history History, opts Options) *Engine {
	threshold := opts.VarianceThreshold
	if threshold <= 0 {
		threshold = 0.25
	}
	lookback := opts.LookbackRuns
	if lookback < 1 {
		lookback = 3
	}
	return &Engine{
		history:   history,
		threshold: decimal.NewFromFloat(threshold),
		lookback:  lookback,
	}
}

func (e *Engine) Compute(ctx context.Context, req payroll.ComputeRequest) (payroll.ComputeResult, error) {
	result := payroll.ComputeResult{Computations: make([]payroll.Computation, 0, len(req.Employees))}
	for _, emp := range req.Employees {
		if err := ctx.Err(); err != nil {
			return payroll.ComputeResult{}, err
		}
		c := Calculate(emp)
		result.Computations = append(result.Computations, c)

		if c.Net.IsNegative() {
			result.Warnings = append(result.Warnings, fmt.Sprintf("%s: net pay %s is negative", emp.DisplayName(), money.Format(c.Net)))
			continue
		}
		if req.RunType != payroll.RunTypeRegular || e.history == nil {
			continue
		}
		warning, err := e.scan(ctx, emp, req.Period, c.Net)
		if err != nil {
			return payroll.ComputeResult{}, fmt.Errorf("net pay history for employee %d: %w", emp.ID, err)
		}
		if warning != "" {
			result.Warnings = append(result.Warnings, warning)
		}
	}
	return result, nil
}

func (e *Engine) scan(ctx context.Context, emp directory.Employee, period payroll.Period, net decimal.Decimal) (string, error) {
	previous, err := e.history.TrailingNetPay(ctx, emp.ID, period, e.lookback)
	if err != nil {
		return "", err
	}
	if len(previous) == 0 {
		return "", nil
	}
	average := decimal.Sum(decimal.Zero, previous...).Div(decimal.NewFromInt(int64(len(previous))))
	if !average.IsPositive() {
		return "", nil
	}
	change := net.Sub(average).Div(average)
	if change.Abs().LessThan(e.threshold) {
		return "", nil
	}
	direction := "above"
	if change.IsNegative() {
		direction = "below"
	}
	return fmt.Sprintf("%s: net pay %s is %s%% %s trailing average %s",
		emp.DisplayName(), money.Format(net), change.Abs().Mul(decimal.NewFromInt(100)).StringFixed(1), direction, money.Format(average.Round(2))), nil
}
