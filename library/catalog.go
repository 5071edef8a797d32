package library

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Catalog stores books and members and owns their existence rules.
type Catalog struct {
	store Store
}

// NewCatalog returns a Catalog over store. The caller keeps ownership of the
// store and closes it.
func NewCatalog(store Store) *Catalog {
	return &Catalog{store: store}
}

// AddBook adds a title with all of its copies available.
func (c *Catalog) AddBook(ctx context.Context, nb NewBook) (*Book, error) {
	nb.ISBN = strings.TrimSpace(nb.ISBN)
	nb.Title = strings.TrimSpace(nb.Title)
	if nb.ISBN == "" || nb.Title == "" {
		return nil, fmt.Errorf("%w: isbn and title are required", ErrInvalidArgument)
	}
	if nb.TotalCopies < 1 {
		return nil, fmt.Errorf("%w: total copies must be at least 1, got %d", ErrInvalidArgument, nb.TotalCopies)
	}

	b := &Book{
		ISBN:            nb.ISBN,
		Title:           nb.Title,
		Author:          strings.TrimSpace(nb.Author),
		Category:        strings.TrimSpace(nb.Category),
		Publisher:       strings.TrimSpace(nb.Publisher),
		TotalCopies:     nb.TotalCopies,
		AvailableCopies: nb.TotalCopies,
	}
	err := c.store.Atomically(ctx, func(tx StoreTx) error {
		return tx.InsertBook(b)
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

// AddMember registers an active member. Contact must be unique, ignoring case.
func (c *Catalog) AddMember(ctx context.Context, name, contact string) (*Member, error) {
	name = strings.TrimSpace(name)
	contact = strings.TrimSpace(contact)
	if name == "" || contact == "" {
		return nil, fmt.Errorf("%w: name and contact are required", ErrInvalidArgument)
	}

	m := &Member{Name: name, Contact: contact, Status: MemberActive}
	err := c.store.Atomically(ctx, func(tx StoreTx) error {
		return tx.InsertMember(m)
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// GetBook looks a book up by ISBN, falling back to its numeric id.
func (c *Catalog) GetBook(ctx context.Context, ref string) (*Book, error) {
	var b *Book
	err := c.store.Atomically(ctx, func(tx StoreTx) error {
		var err error
		b, err = resolveBook(tx, ref)
		return err
	})
	return b, err
}

// resolveBook gives an exact ISBN match precedence over an id match.
func resolveBook(tx StoreTx, ref string) (*Book, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, fmt.Errorf("%w: empty book reference", ErrNotFound)
	}
	b, err := tx.BookByISBN(ref)
	if err == nil {
		return b, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	id, convErr := strconv.ParseInt(ref, 10, 64)
	if convErr != nil || id <= 0 {
		return nil, err
	}
	return tx.BookByID(id)
}

// GetMember fetches a single member.
func (c *Catalog) GetMember(ctx context.Context, id int64) (*Member, error) {
	var m *Member
	err := c.store.Atomically(ctx, func(tx StoreTx) error {
		var err error
		m, err = tx.MemberByID(id)
		return err
	})
	return m, err
}

// ListBooks returns every book ordered by id.
func (c *Catalog) ListBooks(ctx context.Context) ([]*Book, error) {
	var books []*Book
	err := c.store.Atomically(ctx, func(tx StoreTx) error {
		var err error
		books, err = tx.ListBooks()
		return err
	})
	return books, err
}

// ListMembers returns every member ordered by id.
func (c *Catalog) ListMembers(ctx context.Context) ([]*Member, error) {
	var members []*Member
	err := c.store.Atomically(ctx, func(tx StoreTx) error {
		var err error
		members, err = tx.ListMembers()
		return err
	})
	return members, err
}

// SearchBooks matches q case-insensitively against title, author and ISBN.
func (c *Catalog) SearchBooks(ctx context.Context, q string) ([]*Book, error) {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return []*Book{}, nil
	}
	books, err := c.ListBooks(ctx)
	if err != nil {
		return nil, err
	}
	results := []*Book{}
	for _, b := range books {
		if strings.Contains(strings.ToLower(b.Title), q) ||
			strings.Contains(strings.ToLower(b.Author), q) ||
			strings.Contains(strings.ToLower(b.ISBN), q) {
			results = append(results, b)
		}
	}
	return results, nil
}

// AdjustAvailability moves a book's available copies by delta and returns the
// new count. It fails with ErrInvariantViolation rather than leave the count
// outside [0, TotalCopies].
func (c *Catalog) AdjustAvailability(ctx context.Context, bookID int64, delta int) (int, error) {
	var n int
	err := c.store.Atomically(ctx, func(tx StoreTx) error {
		var err error
		n, err = tx.AdjustAvailability(bookID, delta)
		return err
	})
	return n, err
}

// SetMemberStatus activates or deactivates a member.
func (c *Catalog) SetMemberStatus(ctx context.Context, id int64, status MemberStatus) error {
	if !status.valid() {
		return fmt.Errorf("%w: member status %q", ErrInvalidArgument, status)
	}
	return c.store.Atomically(ctx, func(tx StoreTx) error {
		return tx.SetMemberStatus(id, status)
	})
}

// DeleteBook removes a book that has no copies out on loan.
func (c *Catalog) DeleteBook(ctx context.Context, id int64) error {
	return c.store.Atomically(ctx, func(tx StoreTx) error {
		if _, err := tx.BookByID(id); err != nil {
			return err
		}
		open, err := openLoansOf(tx, TransactionFilter{BookID: id})
		if err != nil {
			return err
		}
		if open > 0 {
			return fmt.Errorf("%w: book %d has %d open loans", ErrInUse, id, open)
		}
		return tx.DeleteBook(id)
	})
}

// DeleteMember removes a member who has nothing borrowed.
func (c *Catalog) DeleteMember(ctx context.Context, id int64) error {
	return c.store.Atomically(ctx, func(tx StoreTx) error {
		if _, err := tx.MemberByID(id); err != nil {
			return err
		}
		open, err := openLoansOf(tx, TransactionFilter{MemberID: id})
		if err != nil {
			return err
		}
		if open > 0 {
			return fmt.Errorf("%w: member %d has %d open loans", ErrInUse, id, open)
		}
		return tx.DeleteMember(id)
	})
}
