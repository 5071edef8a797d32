package library

import "time"

// Book is a catalog title and its copy counters.
// AvailableCopies is only ever changed by issue and return.
type Book struct {
	ID              int64     `json:"id"`
	ISBN            string    `json:"isbn"`
	Title           string    `json:"title"`
	Author          string    `json:"author"`
	Category        string    `json:"category"`
	Publisher       string    `json:"publisher"`
	TotalCopies     int       `json:"total_copies"`
	AvailableCopies int       `json:"available_copies"`
	CreatedAt       time.Time `json:"created_at"`
}

// OnLoan is the number of copies currently borrowed.
func (b *Book) OnLoan() int { return b.TotalCopies - b.AvailableCopies }

// NewBook carries the fields needed to add a title to the catalog.
type NewBook struct {
	ISBN        string
	Title       string
	Author      string
	Category    string
	Publisher   string
	TotalCopies int
}

// MemberStatus marks whether a member is in good standing.
type MemberStatus string

const (
	MemberActive   MemberStatus = "active"
	MemberInactive MemberStatus = "inactive"
)

func (s MemberStatus) valid() bool {
	return s == MemberActive || s == MemberInactive
}

// Member represents a registered library member. Contact is unique.
type Member struct {
	ID           int64        `json:"id"`
	Name         string       `json:"name"`
	Contact      string       `json:"contact"`
	Status       MemberStatus `json:"status"`
	RegisteredAt time.Time    `json:"registered_at"`
}

// TransactionStatus is the state of a loan record.
type TransactionStatus string

const (
	StatusBorrowed TransactionStatus = "BORROWED"
	StatusReturned TransactionStatus = "RETURNED"
)

// Transaction is one loan, from issue to return. Records are never deleted.
//
// A BORROWED transaction has a nil ReturnDate and a zero FineAmount; a
// RETURNED one has both set and they do not change again.
type Transaction struct {
	ID         string            `json:"id"`
	BookID     int64             `json:"book_id"`
	MemberID   int64             `json:"member_id"`
	IssuedBy   string            `json:"issued_by"`
	IssuedDate time.Time         `json:"issued_date"`
	DueDate    time.Time         `json:"due_date"`
	ReturnDate *time.Time        `json:"return_date,omitempty"`
	FineAmount int64             `json:"fine_amount"`
	Status     TransactionStatus `json:"status"`
}

// IsOverdue reports whether the loan is still out after its due date.
func (t *Transaction) IsOverdue(asOf time.Time) bool {
	return t.Status == StatusBorrowed && t.DueDate.Before(Date(asOf))
}

// Stats is a snapshot of catalog and circulation counts.
type Stats struct {
	Books          int   `json:"books"`
	Copies         int   `json:"copies"`
	CopiesOnLoan   int   `json:"copies_on_loan"`
	Members        int   `json:"members"`
	Issued         int   `json:"issued"`
	Returned       int   `json:"returned"`
	Overdue        int   `json:"overdue"`
	FinesCollected int64 `json:"fines_collected"`
}
