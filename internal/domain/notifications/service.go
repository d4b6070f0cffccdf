package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"payrun/internal/domain/directory"
)

type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// Service composes payroll mail for employees and records each attempt.
// The store is optional.
type Service struct {
	store       StoreAPI
	Mailer      Mailer
	DefaultFrom string
	Company     string
	now         func() time.Time
}

func New(store StoreAPI, mailer Mailer, from, company string) *Service {
	if from == "" {
		from = "no-reply@example.com"
	}
	return &Service{store: store, Mailer: mailer, DefaultFrom: from, Company: company, now: time.Now}
}

func (s *Service) SendTaxCard(ctx context.Context, employee directory.Employee, year int, attachment Attachment) error {
	subject := fmt.Sprintf("%s tax card (P9) for %d", s.Company, year)
	body := fmt.Sprintf("Dear %s,\r\n\r\nPlease find attached your P9 tax deduction card for %d.\r\n\r\nRegards,\r\n%s Payroll\r\n",
		employee.DisplayName(), year, s.Company)
	return s.send(ctx, KindTaxCard, employee, subject, body, attachment)
}

func (s *Service) SendPayslip(ctx context.Context, employee directory.Employee, period string, attachment Attachment) error {
	subject := fmt.Sprintf("%s payslip for %s", s.Company, period)
	body := fmt.Sprintf("Dear %s,\r\n\r\nYour payslip for %s is attached.\r\n\r\nRegards,\r\n%s Payroll\r\n",
		employee.DisplayName(), period, s.Company)
	return s.send(ctx, KindPayslip, employee, subject, body, attachment)
}

func (s *Service) send(ctx context.Context, kind string, employee directory.Employee, subject, body string, attachment Attachment) error {
	if s.Mailer == nil {
		return fmt.Errorf("no mailer configured")
	}
	err := s.Mailer.Send(ctx, Message{
		From:        s.DefaultFrom,
		To:          employee.Email,
		Subject:     subject,
		Body:        body,
		Attachments: []Attachment{attachment},
	})

	delivery := Delivery{
		Kind:       kind,
		EmployeeID: employee.ID,
		Recipient:  employee.Email,
		Subject:    subject,
		Status:     StatusSent,
		CreatedAt:  s.now().UTC(),
	}
	if err != nil {
		delivery.Status = StatusFailed
		delivery.Error = err.Error()
	}
	if s.store != nil {
		if recErr := s.store.RecordDelivery(context.WithoutCancel(ctx), delivery); recErr != nil {
			slog.Warn("email delivery record failed", "kind", kind, "employeeId", employee.ID, "err", recErr)
		}
	}
	return err
}

// Deliveries pages through the delivery log, newest first.
func (s *Service) Deliveries(ctx context.Context, filter DeliveryFilter, limit, offset int) ([]Delivery, int, error) {
	if s.store == nil {
		return []Delivery{}, 0, nil
	}
	total, err := s.store.CountDeliveries(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	items, err := s.store.ListDeliveries(ctx, filter, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}
