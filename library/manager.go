package library

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"
)

// LibraryManager is a thin façade over the Catalog and the Ledger, keeping
// CLI code simple. It owns the store it opened.
type LibraryManager struct {
	store   Store
	catalog *Catalog
	ledger  *Ledger
	logger  *slog.Logger
	now     func() time.Time
}

// ManagerOption configures a LibraryManager.
type ManagerOption func(*managerOptions)

type managerOptions struct {
	logger *slog.Logger
	now    func() time.Time
}

// WithManagerLogger sets the logger handed to the ledger.
func WithManagerLogger(logger *slog.Logger) ManagerOption {
	return func(o *managerOptions) { o.logger = logger }
}

// WithManagerClock replaces time.Now for circulation dates.
func WithManagerClock(now func() time.Time) ManagerOption {
	return func(o *managerOptions) { o.now = now }
}

// NewLibraryManager opens the store selected by cfg.
func NewLibraryManager(cfg Config, opts ...ManagerOption) (*LibraryManager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var (
		store Store
		err   error
	)
	switch cfg.Backend {
	case BackendMemory:
		store = NewMemoryStore()
	default:
		store, err = NewDatabase(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", cfg.DBPath, err)
		}
	}
	return NewLibraryManagerWithStore(store, cfg.Policy, opts...), nil
}

// NewLibraryManagerWithStore wraps an already opened store. Closing the
// manager closes the store.
func NewLibraryManagerWithStore(store Store, policy FinePolicy, opts ...ManagerOption) *LibraryManager {
	o := managerOptions{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &LibraryManager{
		store:   store,
		catalog: NewCatalog(store),
		ledger:  NewLedger(store, WithPolicy(policy), WithClock(o.now), WithLogger(o.logger)),
		logger:  o.logger,
		now:     o.now,
	}
}

// Close closes the underlying store.
func (lm *LibraryManager) Close() error { return lm.store.Close() }

// Catalog exposes the catalog component.
func (lm *LibraryManager) Catalog() *Catalog { return lm.catalog }

// Ledger exposes the circulation ledger.
func (lm *LibraryManager) Ledger() *Ledger { return lm.ledger }

// Today is the current calendar date by the manager's clock.
func (lm *LibraryManager) Today() time.Time { return Date(lm.now()) }

// ------------------ Book helpers ------------------

func (lm *LibraryManager) AddBook(ctx context.Context, isbn, title, author, category, publisher string, totalCopies int) (*Book, error) {
	b, err := lm.catalog.AddBook(ctx, NewBook{
		ISBN:        isbn,
		Title:       title,
		Author:      author,
		Category:    category,
		Publisher:   publisher,
		TotalCopies: totalCopies,
	})
	if err != nil {
		return nil, err
	}
	lm.logger.InfoContext(ctx, "book added", slog.Int64("book_id", b.ID), slog.String("isbn", b.ISBN), slog.Int("copies", b.TotalCopies))
	return b, nil
}

func (lm *LibraryManager) GetBook(ctx context.Context, ref string) (*Book, error) {
	return lm.catalog.GetBook(ctx, ref)
}

func (lm *LibraryManager) ListBooks(ctx context.Context) ([]*Book, error) {
	return lm.catalog.ListBooks(ctx)
}

func (lm *LibraryManager) SearchBooks(ctx context.Context, q string) ([]*Book, error) {
	return lm.catalog.SearchBooks(ctx, q)
}

func (lm *LibraryManager) DeleteBook(ctx context.Context, id int64) error {
	return lm.catalog.DeleteBook(ctx, id)
}

// ------------------ Member helpers ------------------

func (lm *LibraryManager) AddMember(ctx context.Context, name, contact string) (*Member, error) {
	m, err := lm.catalog.AddMember(ctx, name, contact)
	if err != nil {
		return nil, err
	}
	lm.logger.InfoContext(ctx, "member added", slog.Int64("member_id", m.ID))
	return m, nil
}

func (lm *LibraryManager) GetMember(ctx context.Context, id int64) (*Member, error) {
	return lm.catalog.GetMember(ctx, id)
}

func (lm *LibraryManager) ListMembers(ctx context.Context) ([]*Member, error) {
	return lm.catalog.ListMembers(ctx)
}

func (lm *LibraryManager) SetMemberStatus(ctx context.Context, id int64, status MemberStatus) error {
	return lm.catalog.SetMemberStatus(ctx, id, status)
}

func (lm *LibraryManager) DeleteMember(ctx context.Context, id int64) error {
	return lm.catalog.DeleteMember(ctx, id)
}

// ------------------ Circulation ------------------

func (lm *LibraryManager) IssueBook(ctx context.Context, bookRef string, memberID int64, issuerRef string, loanDays int) (*Transaction, error) {
	return lm.ledger.IssueBook(ctx, bookRef, memberID, issuerRef, loanDays)
}

// ReturnBook returns the copy and yields the closed loan with its fine.
func (lm *LibraryManager) ReturnBook(ctx context.Context, transactionID string) (*Transaction, error) {
	return lm.ledger.ReturnBook(ctx, transactionID)
}

func (lm *LibraryManager) GetTransaction(ctx context.Context, id string) (*Transaction, error) {
	return lm.ledger.GetTransaction(ctx, id)
}

func (lm *LibraryManager) ListTransactions(ctx context.Context, f TransactionFilter) ([]*Transaction, error) {
	return lm.ledger.ListTransactions(ctx, f)
}

func (lm *LibraryManager) GetOverdueCount(ctx context.Context, asOf time.Time) (int, error) {
	return lm.ledger.GetOverdueCount(ctx, asOf)
}

func (lm *LibraryManager) ListOverdue(ctx context.Context, asOf time.Time) ([]*Transaction, error) {
	return lm.ledger.ListOverdue(ctx, asOf)
}

func (lm *LibraryManager) Stats(ctx context.Context) (Stats, error) {
	return lm.ledger.Stats(ctx, lm.Today())
}
