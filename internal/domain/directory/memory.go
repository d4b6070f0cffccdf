package directory

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory is an in-process directory used by the demo server and tests.
type Memory struct {
	mu        sync.RWMutex
	employees map[int64]Employee
	nextID    int64
}

func NewMemory(employees ...Employee) *Memory {
	m := &Memory{employees: make(map[int64]Employee)}
	for _, emp := range employees {
		m.Put(emp)
	}
	return m
}

// Put stores the employee, assigning an ID when none is set.
func (m *Memory) Put(emp Employee) Employee {
	m.mu.Lock()
	defer m.mu.Unlock()
	if emp.ID == 0 {
		m.nextID++
		emp.ID = m.nextID
	} else if emp.ID > m.nextID {
		m.nextID = emp.ID
	}
	if emp.Status == "" {
		emp.Status = StatusActive
	}
	m.employees[emp.ID] = emp
	return emp
}

func (m *Memory) ActiveEmployees(ctx context.Context, asOf time.Time) ([]Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Employee
	for _, emp := range m.employees {
		if emp.ActiveOn(asOf) {
			out = append(out, emp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastName != out[j].LastName {
			return out[i].LastName < out[j].LastName
		}
		if out[i].FirstName != out[j].FirstName {
			return out[i].FirstName < out[j].FirstName
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) Employee(ctx context.Context, id int64) (Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	emp, ok := m.employees[id]
	if !ok {
		return Employee{}, ErrNotFound
	}
	return emp, nil
}

func (m *Memory) CountActive(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, emp := range m.employees {
		if emp.Status == StatusActive {
			count++
		}
	}
	return count, nil
}

// Create satisfies the seed writer.
func (m *Memory) Create(ctx context.Context, emp Employee) (int64, error) {
	return m.Put(emp).ID, nil
}
