package directory

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	cryptoutil "payrun/internal/platform/crypto"
)

// Store reads employees from Postgres. Bank accounts and tax PINs may be
// stored encrypted; plaintext columns are the fallback.
type Store struct {
	DB     *pgxpool.Pool
	Crypto *cryptoutil.Service
}

func NewStore(db *pgxpool.Pool, crypto *cryptoutil.Service) *Store {
	return &Store{DB: db, Crypto: crypto}
}

const employeeColumns = `id,
           COALESCE(employee_number, ''),
           first_name, last_name,
           COALESCE(department, ''),
           COALESCE(email, ''),
           COALESCE(phone, ''),
           COALESCE(bank_name, ''),
           COALESCE(bank_account, ''),
           bank_account_enc,
           COALESCE(kra_pin, ''),
           kra_pin_enc,
           COALESCE(nssf_number, ''),
           COALESCE(shif_number, ''),
           basic_salary, allowances, status, hired_at`

func (s *Store) scanEmployee(row pgx.Row) (Employee, error) {
	var emp Employee
	var bankEnc, pinEnc []byte
	var bankPlain, pinPlain string
	if err := row.Scan(
		&emp.ID, &emp.Number, &emp.FirstName, &emp.LastName, &emp.Department, &emp.Email, &emp.Phone,
		&emp.BankName, &bankPlain, &bankEnc, &pinPlain, &pinEnc, &emp.NSSFNumber, &emp.SHIFNumber,
		&emp.BasicSalary, &emp.Allowances, &emp.Status, &emp.HiredAt,
	); err != nil {
		return Employee{}, err
	}
	emp.BankAccount = decryptStringFallback(s.Crypto, bankEnc, bankPlain)
	emp.KRAPIN = decryptStringFallback(s.Crypto, pinEnc, pinPlain)
	return emp, nil
}

func (s *Store) ActiveEmployees(ctx context.Context, asOf time.Time) ([]Employee, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT `+employeeColumns+`
    FROM employees
    WHERE status = $1 AND hired_at <= $2
    ORDER BY last_name, first_name, id
  `, StatusActive, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Employee
	for rows.Next() {
		emp, err := s.scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, emp)
	}
	return out, rows.Err()
}

func (s *Store) Employee(ctx context.Context, id int64) (Employee, error) {
	emp, err := s.scanEmployee(s.DB.QueryRow(ctx, `
    SELECT `+employeeColumns+`
    FROM employees
    WHERE id = $1
  `, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Employee{}, ErrNotFound
	}
	return emp, err
}

func (s *Store) CountActive(ctx context.Context) (int, error) {
	var count int
	err := s.DB.QueryRow(ctx, `SELECT COUNT(1) FROM employees WHERE status = $1`, StatusActive).Scan(&count)
	return count, err
}

// Create inserts an employee, encrypting the bank account and PIN when a key is configured.
func (s *Store) Create(ctx context.Context, emp Employee) (int64, error) {
	bankEnc, bankPlain, err := encryptField(s.Crypto, emp.BankAccount)
	if err != nil {
		return 0, err
	}
	pinEnc, pinPlain, err := encryptField(s.Crypto, emp.KRAPIN)
	if err != nil {
		return 0, err
	}
	if emp.Status == "" {
		emp.Status = StatusActive
	}
	var id int64
	err = s.DB.QueryRow(ctx, `
    INSERT INTO employees (employee_number, first_name, last_name, department, email, phone, bank_name,
      bank_account, bank_account_enc, kra_pin, kra_pin_enc, nssf_number, shif_number,
      basic_salary, allowances, status, hired_at)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
    ON CONFLICT (employee_number) DO UPDATE SET updated_at = now()
    RETURNING id
  `, emp.Number, emp.FirstName, emp.LastName, emp.Department, emp.Email, emp.Phone, emp.BankName,
		bankPlain, bankEnc, pinPlain, pinEnc, emp.NSSFNumber, emp.SHIFNumber,
		emp.BasicSalary.Round(2), emp.Allowances.Round(2), emp.Status, emp.HiredAt).Scan(&id)
	return id, err
}

func encryptField(crypto *cryptoutil.Service, value string) ([]byte, any, error) {
	if crypto == nil || !crypto.Configured() || value == "" {
		return nil, value, nil
	}
	enc, err := crypto.EncryptString(value)
	if err != nil {
		return nil, nil, err
	}
	return enc, nil, nil
}

func decryptStringFallback(crypto *cryptoutil.Service, encrypted []byte, plain string) string {
	if crypto == nil || !crypto.Configured() || len(encrypted) == 0 {
		return plain
	}
	decrypted, err := crypto.DecryptString(encrypted)
	if err != nil {
		return plain
	}
	return decrypted
}
