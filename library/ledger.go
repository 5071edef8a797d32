package library

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Ledger issues and returns copies and owns the loan records. Every issue and
// return runs as a single unit of work on the store, so the availability
// counter and the loan table always change together.
type Ledger struct {
	store  Store
	policy FinePolicy
	now    func() time.Time
	newID  func() string
	logger *slog.Logger
}

// LedgerOption configures a Ledger.
type LedgerOption func(*Ledger)

// WithPolicy sets the loan period and fine policy.
func WithPolicy(p FinePolicy) LedgerOption {
	return func(l *Ledger) { l.policy = p }
}

// WithClock replaces time.Now, which decides "today" for issue and return.
func WithClock(now func() time.Time) LedgerOption {
	return func(l *Ledger) { l.now = now }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) LedgerOption {
	return func(l *Ledger) { l.logger = logger }
}

// NewLedger returns a Ledger over store with the default policy.
func NewLedger(store Store, opts ...LedgerOption) *Ledger {
	l := &Ledger{
		store:  store,
		policy: DefaultPolicy(),
		now:    time.Now,
		newID:  uuid.NewString,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Policy returns the policy in force.
func (l *Ledger) Policy() FinePolicy { return l.policy }

func (l *Ledger) today() time.Time { return Date(l.now()) }

// IssueBook lends one copy of the book identified by bookRef (ISBN or id) to
// the member. issuerRef names the staff member and is stored as given.
// loanDays of zero uses the policy's loan period.
func (l *Ledger) IssueBook(ctx context.Context, bookRef string, memberID int64, issuerRef string, loanDays int) (*Transaction, error) {
	if loanDays < 0 || loanDays > MaxLoanDays {
		return nil, fmt.Errorf("%w: loan days must be between 1 and %d, got %d", ErrInvalidArgument, MaxLoanDays, loanDays)
	}
	if loanDays == 0 {
		loanDays = l.policy.LoanDays
	}

	today := l.today()
	loan := &Transaction{
		ID:         l.newID(),
		MemberID:   memberID,
		IssuedBy:   issuerRef,
		IssuedDate: today,
		DueDate:    today.AddDate(0, 0, loanDays),
		Status:     StatusBorrowed,
	}

	var left int
	err := l.store.Atomically(ctx, func(tx StoreTx) error {
		book, err := resolveBook(tx, bookRef)
		if err != nil {
			return err
		}
		if _, err := tx.MemberByID(memberID); err != nil {
			return err
		}
		if book.AvailableCopies <= 0 {
			return fmt.Errorf("%w: book %d (%s) has all %d copies on loan",
				ErrUnavailable, book.ID, book.ISBN, book.TotalCopies)
		}

		loan.BookID = book.ID
		if left, err = tx.AdjustAvailability(book.ID, -1); err != nil {
			return err
		}
		return tx.InsertTransaction(loan)
	})
	if err != nil {
		l.logger.DebugContext(ctx, "issue rejected",
			slog.String("book", bookRef), slog.Int64("member_id", memberID), slog.Any("error", err))
		return nil, err
	}

	l.logger.InfoContext(ctx, "book issued",
		slog.String("transaction_id", loan.ID),
		slog.Int64("book_id", loan.BookID),
		slog.Int64("member_id", loan.MemberID),
		slog.String("due_date", FormatDate(loan.DueDate)),
		slog.Int("available_copies", left),
	)
	return loan, nil
}

// ReturnBook closes a BORROWED loan as of today, records its fine and puts
// the copy back. A second return of the same loan fails with
// ErrAlreadyReturned and changes nothing.
func (l *Ledger) ReturnBook(ctx context.Context, transactionID string) (*Transaction, error) {
	today := l.today()

	var (
		loan *Transaction
		left int
	)
	err := l.store.Atomically(ctx, func(tx StoreTx) error {
		var err error
		if loan, err = tx.TransactionByID(transactionID); err != nil {
			return err
		}
		if loan.Status == StatusReturned {
			return fmt.Errorf("%w: transaction %s on %s", ErrAlreadyReturned, transactionID, FormatDate(*loan.ReturnDate))
		}

		fine := l.policy.Fine(daysBetween(loan.DueDate, today))
		if err := tx.CloseTransaction(transactionID, today, fine); err != nil {
			return err
		}
		if left, err = tx.AdjustAvailability(loan.BookID, +1); err != nil {
			return err
		}

		loan.Status = StatusReturned
		loan.ReturnDate = &today
		loan.FineAmount = fine
		return nil
	})
	if err != nil {
		l.logger.DebugContext(ctx, "return rejected",
			slog.String("transaction_id", transactionID), slog.Any("error", err))
		return nil, err
	}

	l.logger.InfoContext(ctx, "book returned",
		slog.String("transaction_id", loan.ID),
		slog.Int64("book_id", loan.BookID),
		slog.Int64("fine", loan.FineAmount),
		slog.Int("available_copies", left),
	)
	return loan, nil
}

// AccruedFine is the fine an open loan would carry if returned on asOf.
// Returned loans report the fine that was charged.
func (l *Ledger) AccruedFine(t *Transaction, asOf time.Time) int64 {
	if t.Status == StatusReturned {
		return t.FineAmount
	}
	return l.policy.Fine(daysBetween(t.DueDate, asOf))
}

// GetTransaction fetches one loan record.
func (l *Ledger) GetTransaction(ctx context.Context, id string) (*Transaction, error) {
	var t *Transaction
	err := l.store.Atomically(ctx, func(tx StoreTx) error {
		var err error
		t, err = tx.TransactionByID(id)
		return err
	})
	return t, err
}

// ListTransactions returns loans matching f in issue order.
func (l *Ledger) ListTransactions(ctx context.Context, f TransactionFilter) ([]*Transaction, error) {
	var loans []*Transaction
	err := l.store.Atomically(ctx, func(tx StoreTx) error {
		var err error
		loans, err = tx.ListTransactions(f)
		return err
	})
	return loans, err
}

// GetOverdueCount counts BORROWED loans whose due date is before asOf.
func (l *Ledger) GetOverdueCount(ctx context.Context, asOf time.Time) (int, error) {
	var n int
	err := l.store.Atomically(ctx, func(tx StoreTx) error {
		var err error
		n, err = tx.CountTransactions(overdueFilter(asOf))
		return err
	})
	return n, err
}

// ListOverdue returns the loans GetOverdueCount counts.
func (l *Ledger) ListOverdue(ctx context.Context, asOf time.Time) ([]*Transaction, error) {
	return l.ListTransactions(ctx, overdueFilter(asOf))
}

func overdueFilter(asOf time.Time) TransactionFilter {
	return TransactionFilter{Status: StatusBorrowed, DueBefore: Date(asOf)}
}

// Stats counts catalog and circulation records as of asOf, read in one unit
// of work so the numbers agree with each other.
func (l *Ledger) Stats(ctx context.Context, asOf time.Time) (Stats, error) {
	var s Stats
	err := l.store.Atomically(ctx, func(tx StoreTx) error {
		books, err := tx.ListBooks()
		if err != nil {
			return err
		}
		s.Books = len(books)
		for _, b := range books {
			s.Copies += b.TotalCopies
			s.CopiesOnLoan += b.OnLoan()
		}

		members, err := tx.ListMembers()
		if err != nil {
			return err
		}
		s.Members = len(members)

		if s.Issued, err = tx.CountTransactions(TransactionFilter{}); err != nil {
			return err
		}
		if s.Returned, err = tx.CountTransactions(TransactionFilter{Status: StatusReturned}); err != nil {
			return err
		}
		if s.Overdue, err = tx.CountTransactions(overdueFilter(asOf)); err != nil {
			return err
		}
		s.FinesCollected, err = tx.SumFines()
		return err
	})
	return s, err
}

// CheckInvariant verifies that every book's available copies equal its total
// minus its BORROWED loans. It reports the first mismatch as
// ErrInvariantViolation.
func (l *Ledger) CheckInvariant(ctx context.Context) error {
	return l.store.Atomically(ctx, func(tx StoreTx) error {
		books, err := tx.ListBooks()
		if err != nil {
			return err
		}
		for _, b := range books {
			open, err := openLoansOf(tx, TransactionFilter{BookID: b.ID})
			if err != nil {
				return err
			}
			if b.AvailableCopies < 0 || b.AvailableCopies > b.TotalCopies || b.AvailableCopies != b.TotalCopies-open {
				return fmt.Errorf("%w: book %d has %d of %d available with %d open loans",
					ErrInvariantViolation, b.ID, b.AvailableCopies, b.TotalCopies, open)
			}
		}
		return nil
	})
}
