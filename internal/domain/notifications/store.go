package notifications

import (
	"context"
	"strconv"

	"github.com/jackc/pgx/v5/pgxpool"
)

type StoreAPI interface {
	RecordDelivery(ctx context.Context, delivery Delivery) error
	ListDeliveries(ctx context.Context, filter DeliveryFilter, limit, offset int) ([]Delivery, error)
	CountDeliveries(ctx context.Context, filter DeliveryFilter) (int, error)
}

type Store struct {
	DB *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{DB: db}
}

func (s *Store) RecordDelivery(ctx context.Context, delivery Delivery) error {
	_, err := s.DB.Exec(ctx, `
    INSERT INTO email_deliveries (kind, employee_id, recipient, subject, status, error, created_at)
    VALUES ($1,$2,$3,$4,$5,$6,$7)
  `, delivery.Kind, delivery.EmployeeID, delivery.Recipient, delivery.Subject, delivery.Status, nullIfEmpty(delivery.Error), delivery.CreatedAt)
	return err
}

func (s *Store) ListDeliveries(ctx context.Context, filter DeliveryFilter, limit, offset int) ([]Delivery, error) {
	query, args := buildDeliveriesQuery(`SELECT id, kind, COALESCE(employee_id, 0), recipient, subject, status, COALESCE(error, ''), created_at`, filter)
	query += " ORDER BY created_at DESC, id DESC LIMIT $" + strconv.Itoa(len(args)+1) + " OFFSET $" + strconv.Itoa(len(args)+2)
	args = append(args, limit, offset)

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Delivery{}
	for rows.Next() {
		var d Delivery
		if err := rows.Scan(&d.ID, &d.Kind, &d.EmployeeID, &d.Recipient, &d.Subject, &d.Status, &d.Error, &d.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) CountDeliveries(ctx context.Context, filter DeliveryFilter) (int, error) {
	query, args := buildDeliveriesQuery("SELECT COUNT(1)", filter)
	var total int
	err := s.DB.QueryRow(ctx, query, args...).Scan(&total)
	return total, err
}

func buildDeliveriesQuery(prefix string, filter DeliveryFilter) (string, []any) {
	query := prefix + " FROM email_deliveries WHERE 1 = 1"
	args := []any{}
	if filter.Kind != "" {
		args = append(args, filter.Kind)
		query += " AND kind = $" + strconv.Itoa(len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += " AND status = $" + strconv.Itoa(len(args))
	}
	if filter.EmployeeID > 0 {
		args = append(args, filter.EmployeeID)
		query += " AND employee_id = $" + strconv.Itoa(len(args))
	}
	return query, args
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}
