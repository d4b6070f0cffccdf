package notifications

const (
	KindTaxCard = "tax_card"
	KindPayslip = "payslip"
)

const (
	StatusSent   = "sent"
	StatusFailed = "failed"
)
