package documents

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"

	"payrun/internal/domain/payroll"
)

// payslipBundle zips one payslip per entry.
func (r *Renderer) payslipBundle(ctx context.Context, req payroll.DocumentRequest) (payroll.Artifact, error) {
	var buf bytes.Buffer
	archive := zip.NewWriter(&buf)
	for _, entry := range req.Entries {
		if err := ctx.Err(); err != nil {
			return payroll.Artifact{}, err
		}
		data, err := r.payslipPDF(req, entry)
		if err != nil {
			return payroll.Artifact{}, fmt.Errorf("payslip for employee %d: %w", entry.EmployeeID, err)
		}
		w, err := archive.Create(payslipName(req.Run, entry, employeeFor(req, entry)))
		if err != nil {
			return payroll.Artifact{}, err
		}
		if _, err := w.Write(data); err != nil {
			return payroll.Artifact{}, err
		}
	}
	if err := archive.Close(); err != nil {
		return payroll.Artifact{}, err
	}
	return payroll.Artifact{FileName: "payslips-" + runSlug(req.Run) + ".zip", ContentType: contentTypeZIP, Data: buf.Bytes()}, nil
}
