package db

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"payrun/internal/domain/directory"
)

// EmployeeWriter is the part of the directory store the seed needs.
type EmployeeWriter interface {
	CountActive(ctx context.Context) (int, error)
	Create(ctx context.Context, emp directory.Employee) (int64, error)
}

// Seed loads the demo employees when the directory has no active staff.
func Seed(ctx context.Context, store EmployeeWriter) error {
	count, err := store.CountActive(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	for _, emp := range DemoEmployees() {
		if _, err := store.Create(ctx, emp); err != nil {
			return err
		}
	}
	slog.Info("demo employees seeded", "count", len(DemoEmployees()))
	return nil
}

func DemoEmployees() []directory.Employee {
	hired := func(year int, month time.Month) time.Time {
		return time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	}
	return []directory.Employee{
		{
			Number: "EMP-001", FirstName: "John", LastName: "Kamau", Department: "Engineering",
			Email: "john.k@sheriaflow.co.ke", Phone: "254712000001", BankName: "KCB", BankAccount: "1100223344",
			KRAPIN: "A001234567B", NSSFNumber: "NSSF0001", SHIFNumber: "SHIF0001",
			BasicSalary: decimal.NewFromInt(250000), Allowances: decimal.NewFromInt(20000),
			Status: directory.StatusActive, HiredAt: hired(2024, time.January),
		},
		{
			Number: "EMP-002", FirstName: "Sarah", LastName: "Wanjiku", Department: "Legal",
			Email: "sarah.w@sheriaflow.co.ke", Phone: "254712000002", BankName: "Equity", BankAccount: "0200334455",
			KRAPIN: "A002345678C", NSSFNumber: "NSSF0002", SHIFNumber: "SHIF0002",
			BasicSalary: decimal.NewFromInt(180000), Allowances: decimal.NewFromInt(15000),
			Status: directory.StatusActive, HiredAt: hired(2024, time.February),
		},
		{
			Number: "EMP-003", FirstName: "Michael", LastName: "Omondi", Department: "HR",
			Email: "michael.o@sheriaflow.co.ke", Phone: "254712000003", BankName: "Co-op", BankAccount: "0300445566",
			KRAPIN: "A003456789D", NSSFNumber: "NSSF0003", SHIFNumber: "SHIF0003",
			BasicSalary: decimal.NewFromInt(120000), Allowances: decimal.NewFromInt(10000),
			Status: directory.StatusActive, HiredAt: hired(2023, time.March),
		},
		{
			Number: "EMP-004", FirstName: "Lucy", LastName: "Achieng", Department: "Finance",
			Email: "lucy.a@sheriaflow.co.ke", Phone: "254712000004", BankName: "NCBA", BankAccount: "0400556677",
			KRAPIN: "A004567890E", NSSFNumber: "NSSF0004", SHIFNumber: "SHIF0004",
			BasicSalary: decimal.NewFromInt(100000), Allowances: decimal.Zero,
			Status: directory.StatusActive, HiredAt: hired(2025, time.January),
		},
		{
			Number: "EMP-005", FirstName: "Brian", LastName: "Koech", Department: "Sales",
			Email: "brian.k@sheriaflow.co.ke", Phone: "254712000005", BankName: "KCB", BankAccount: "1100667788",
			KRAPIN: "A005678901F", NSSFNumber: "NSSF0005", SHIFNumber: "SHIF0005",
			BasicSalary: decimal.NewFromInt(60000), Allowances: decimal.NewFromInt(5000),
			Status: directory.StatusTerminated, HiredAt: hired(2023, time.December),
		},
	}
}
