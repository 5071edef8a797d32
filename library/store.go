package library

import (
	"context"
	"time"
)

// Store is the persistence boundary shared by the Catalog and the Ledger.
//
// Atomically runs fn as one unit of work: every StoreTx call made by fn
// becomes visible together when fn returns nil, and none of them does when
// it returns an error. Concurrent Atomically calls are serialized, so a
// check made inside fn still holds when fn writes.
type Store interface {
	Atomically(ctx context.Context, fn func(tx StoreTx) error) error
	Close() error
}

// StoreTx is the view of the store inside a unit of work. Lookups fail with
// ErrNotFound, inserts on a taken unique key with ErrDuplicateKey. Returned
// records are copies owned by the caller.
type StoreTx interface {
	InsertBook(b *Book) error
	BookByID(id int64) (*Book, error)
	BookByISBN(isbn string) (*Book, error)
	ListBooks() ([]*Book, error)
	DeleteBook(id int64) error
	// AdjustAvailability adds delta to the book's available copies and
	// returns the new value. It fails with ErrInvariantViolation, leaving the
	// book unchanged, when the result would leave [0, TotalCopies].
	AdjustAvailability(bookID int64, delta int) (int, error)

	InsertMember(m *Member) error
	MemberByID(id int64) (*Member, error)
	ListMembers() ([]*Member, error)
	SetMemberStatus(id int64, status MemberStatus) error
	DeleteMember(id int64) error

	InsertTransaction(t *Transaction) error
	TransactionByID(id string) (*Transaction, error)
	// CloseTransaction records the return of a BORROWED transaction.
	CloseTransaction(id string, returned time.Time, fine int64) error
	ListTransactions(f TransactionFilter) ([]*Transaction, error)
	CountTransactions(f TransactionFilter) (int, error)
	SumFines() (int64, error)
}

// TransactionFilter narrows loan queries. Zero fields match everything.
type TransactionFilter struct {
	BookID   int64
	MemberID int64
	Status   TransactionStatus
	// DueBefore keeps loans whose due date is strictly before this day.
	DueBefore time.Time
}

func (f TransactionFilter) matches(t *Transaction) bool {
	if f.BookID != 0 && t.BookID != f.BookID {
		return false
	}
	if f.MemberID != 0 && t.MemberID != f.MemberID {
		return false
	}
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if !f.DueBefore.IsZero() && !t.DueDate.Before(Date(f.DueBefore)) {
		return false
	}
	return true
}

func openLoansOf(tx StoreTx, f TransactionFilter) (int, error) {
	f.Status = StatusBorrowed
	return tx.CountTransactions(f)
}
