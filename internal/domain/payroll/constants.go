package payroll

type RunType string

const (
	RunTypeRegular  RunType = "regular"
	RunTypeOffCycle RunType = "off_cycle"
)

func (t RunType) Valid() bool {
	return t == RunTypeRegular || t == RunTypeOffCycle
}

type RunStatus string

const (
	RunStatusOpen   RunStatus = "open"
	RunStatusLocked RunStatus = "locked"
)

type AdjustmentType string

const (
	AdjustmentEarning   AdjustmentType = "earning"
	AdjustmentDeduction AdjustmentType = "deduction"
)

func (t AdjustmentType) Valid() bool {
	return t == AdjustmentEarning || t == AdjustmentDeduction
}

type PaymentStatus string

const (
	PaymentStatusUnpaid      PaymentStatus = "unpaid"
	PaymentStatusSubmitting  PaymentStatus = "submitting"
	PaymentStatusPaid        PaymentStatus = "paid"
	PaymentStatusRejected    PaymentStatus = "rejected"
	PaymentStatusUnconfirmed PaymentStatus = "unconfirmed"
)

type GenerateOutcome string

const (
	OutcomeCommitted     GenerateOutcome = "committed"
	OutcomeExisting      GenerateOutcome = "existing"
	OutcomeNeedsOverride GenerateOutcome = "needs_override"
)

type DocumentKind string

const (
	DocumentPayslip           DocumentKind = "payslip"
	DocumentPayslipBundle     DocumentKind = "payslip_bundle"
	DocumentBankTransfer      DocumentKind = "bank_transfer"
	DocumentTaxReturn         DocumentKind = "tax_return"
	DocumentPensionReturn     DocumentKind = "pension_return"
	DocumentHealthLevyReturn  DocumentKind = "health_levy_return"
	DocumentHousingLevyReturn DocumentKind = "housing_levy_return"
	DocumentRegister          DocumentKind = "register"
	DocumentJournal           DocumentKind = "journal"
	DocumentTaxCard           DocumentKind = "tax_card"
)

// RunDocumentKinds lists the kinds that can be requested against a run.
var RunDocumentKinds = []DocumentKind{
	DocumentPayslip,
	DocumentPayslipBundle,
	DocumentBankTransfer,
	DocumentTaxReturn,
	DocumentPensionReturn,
	DocumentHealthLevyReturn,
	DocumentHousingLevyReturn,
	DocumentRegister,
	DocumentJournal,
}

func (k DocumentKind) forRun() bool {
	for _, kind := range RunDocumentKinds {
		if k == kind {
			return true
		}
	}
	return false
}

const (
	JobPayslipDelivery = "payslip_delivery"

	MinYear = 2000
	MaxYear = 2100

	// Net pay is kept in cents.
	moneyPlaces = 2
)
