package notifications

import "time"

type Attachment struct {
	FileName    string
	ContentType string
	Data        []byte
}

type Message struct {
	From        string
	To          string
	Subject     string
	Body        string
	Attachments []Attachment
}

// Delivery is one recorded mail attempt.
type Delivery struct {
	ID         int64     `json:"id"`
	Kind       string    `json:"kind"`
	EmployeeID int64     `json:"employeeId"`
	Recipient  string    `json:"recipient"`
	Subject    string    `json:"subject"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

type DeliveryFilter struct {
	Kind       string
	Status     string
	EmployeeID int64
}

func (f DeliveryFilter) matches(d Delivery) bool {
	if f.Kind != "" && d.Kind != f.Kind {
		return false
	}
	if f.Status != "" && d.Status != f.Status {
		return false
	}
	if f.EmployeeID > 0 && d.EmployeeID != f.EmployeeID {
		return false
	}
	return true
}
