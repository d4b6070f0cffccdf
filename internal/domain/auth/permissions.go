package auth

import "context"

const (
	RolePayrollViewer = "payroll_viewer"
	RolePayrollAdmin  = "payroll_admin"
)

const (
	PermPayrollRead     = "payroll.read"
	PermPayrollRun      = "payroll.run"
	PermPayrollAdjust   = "payroll.adjust"
	PermPayrollLock     = "payroll.lock"
	PermPayrollDisburse = "payroll.disburse"
	PermReportsRead     = "reports.read"
	PermReportsExport   = "reports.export"
	PermAuditRead       = "audit.read"
)

var DefaultPermissions = []string{
	PermPayrollRead,
	PermPayrollRun,
	PermPayrollAdjust,
	PermPayrollLock,
	PermPayrollDisburse,
	PermReportsRead,
	PermReportsExport,
	PermAuditRead,
}

var RolePermissions = map[string][]string{
	RolePayrollViewer: {
		PermPayrollRead,
		PermReportsRead,
	},
	RolePayrollAdmin: DefaultPermissions,
}

// StaticPermissions resolves permissions from RolePermissions.
type StaticPermissions struct{}

func (StaticPermissions) HasPermission(ctx context.Context, role, permission string) (bool, error) {
	for _, granted := range RolePermissions[role] {
		if granted == permission {
			return true, nil
		}
	}
	return false, nil
}
