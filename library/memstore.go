package library

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"
)

// MemoryStore keeps the library state in process memory. Each unit of work
// runs on a copy of the state under a mutex and the copy replaces the live
// state only on success.
type MemoryStore struct {
	mu    sync.Mutex
	state memState
	now   func() time.Time
}

type memState struct {
	books      map[int64]Book
	isbns      map[string]int64
	members    map[int64]Member
	contacts   map[string]int64
	loans      map[string]Transaction
	loanOrder  []string
	nextBook   int64
	nextMember int64
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		state: memState{
			books:      map[int64]Book{},
			isbns:      map[string]int64{},
			members:    map[int64]Member{},
			contacts:   map[string]int64{},
			loans:      map[string]Transaction{},
			nextBook:   1,
			nextMember: 1,
		},
		now: time.Now,
	}
}

func (s memState) clone() memState {
	c := s
	c.books = maps.Clone(s.books)
	c.isbns = maps.Clone(s.isbns)
	c.members = maps.Clone(s.members)
	c.contacts = maps.Clone(s.contacts)
	c.loans = maps.Clone(s.loans)
	c.loanOrder = slices.Clone(s.loanOrder)
	return c
}

// Atomically implements Store.
func (s *MemoryStore) Atomically(ctx context.Context, fn func(tx StoreTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	if err := fn(&memTx{state: &work, now: s.now}); err != nil {
		return err
	}
	s.state = work
	return nil
}

// Close is a no-op; the state goes away with the store.
func (s *MemoryStore) Close() error { return nil }

type memTx struct {
	state *memState
	now   func() time.Time
}

func (tx *memTx) InsertBook(b *Book) error {
	if _, ok := tx.state.isbns[b.ISBN]; ok {
		return fmt.Errorf("%w: isbn %s", ErrDuplicateKey, b.ISBN)
	}
	b.ID = tx.state.nextBook
	tx.state.nextBook++
	if b.CreatedAt.IsZero() {
		b.CreatedAt = tx.now().UTC()
	}
	tx.state.books[b.ID] = *b
	tx.state.isbns[b.ISBN] = b.ID
	return nil
}

func (tx *memTx) BookByID(id int64) (*Book, error) {
	b, ok := tx.state.books[id]
	if !ok {
		return nil, fmt.Errorf("%w: book %d", ErrNotFound, id)
	}
	return &b, nil
}

func (tx *memTx) BookByISBN(isbn string) (*Book, error) {
	id, ok := tx.state.isbns[isbn]
	if !ok {
		return nil, fmt.Errorf("%w: isbn %s", ErrNotFound, isbn)
	}
	return tx.BookByID(id)
}

func (tx *memTx) ListBooks() ([]*Book, error) {
	books := make([]*Book, 0, len(tx.state.books))
	for _, id := range slices.Sorted(maps.Keys(tx.state.books)) {
		b := tx.state.books[id]
		books = append(books, &b)
	}
	return books, nil
}

func (tx *memTx) DeleteBook(id int64) error {
	b, ok := tx.state.books[id]
	if !ok {
		return fmt.Errorf("%w: book %d", ErrNotFound, id)
	}
	delete(tx.state.books, id)
	delete(tx.state.isbns, b.ISBN)
	return nil
}

func (tx *memTx) AdjustAvailability(bookID int64, delta int) (int, error) {
	b, ok := tx.state.books[bookID]
	if !ok {
		return 0, fmt.Errorf("%w: book %d", ErrNotFound, bookID)
	}
	next := b.AvailableCopies + delta
	if next < 0 || next > b.TotalCopies {
		return b.AvailableCopies, fmt.Errorf("%w: book %d available copies %d%+d outside [0,%d]",
			ErrInvariantViolation, bookID, b.AvailableCopies, delta, b.TotalCopies)
	}
	b.AvailableCopies = next
	tx.state.books[bookID] = b
	return next, nil
}

func (tx *memTx) InsertMember(m *Member) error {
	key := strings.ToLower(m.Contact)
	if _, ok := tx.state.contacts[key]; ok {
		return fmt.Errorf("%w: contact %s", ErrDuplicateKey, m.Contact)
	}
	m.ID = tx.state.nextMember
	tx.state.nextMember++
	if m.RegisteredAt.IsZero() {
		m.RegisteredAt = tx.now().UTC()
	}
	tx.state.members[m.ID] = *m
	tx.state.contacts[key] = m.ID
	return nil
}

func (tx *memTx) MemberByID(id int64) (*Member, error) {
	m, ok := tx.state.members[id]
	if !ok {
		return nil, fmt.Errorf("%w: member %d", ErrNotFound, id)
	}
	return &m, nil
}

func (tx *memTx) ListMembers() ([]*Member, error) {
	members := make([]*Member, 0, len(tx.state.members))
	for _, id := range slices.Sorted(maps.Keys(tx.state.members)) {
		m := tx.state.members[id]
		members = append(members, &m)
	}
	return members, nil
}

func (tx *memTx) SetMemberStatus(id int64, status MemberStatus) error {
	m, ok := tx.state.members[id]
	if !ok {
		return fmt.Errorf("%w: member %d", ErrNotFound, id)
	}
	m.Status = status
	tx.state.members[id] = m
	return nil
}

func (tx *memTx) DeleteMember(id int64) error {
	m, ok := tx.state.members[id]
	if !ok {
		return fmt.Errorf("%w: member %d", ErrNotFound, id)
	}
	delete(tx.state.members, id)
	delete(tx.state.contacts, strings.ToLower(m.Contact))
	return nil
}

func (tx *memTx) InsertTransaction(t *Transaction) error {
	if _, ok := tx.state.loans[t.ID]; ok {
		return fmt.Errorf("%w: transaction %s", ErrDuplicateKey, t.ID)
	}
	tx.state.loans[t.ID] = *t
	tx.state.loanOrder = append(tx.state.loanOrder, t.ID)
	return nil
}

func (tx *memTx) TransactionByID(id string) (*Transaction, error) {
	t, ok := tx.state.loans[id]
	if !ok {
		return nil, fmt.Errorf("%w: transaction %s", ErrNotFound, id)
	}
	if t.ReturnDate != nil {
		rd := *t.ReturnDate
		t.ReturnDate = &rd
	}
	return &t, nil
}

func (tx *memTx) CloseTransaction(id string, returned time.Time, fine int64) error {
	t, ok := tx.state.loans[id]
	if !ok {
		return fmt.Errorf("%w: transaction %s", ErrNotFound, id)
	}
	if t.Status != StatusBorrowed {
		return fmt.Errorf("%w: transaction %s", ErrAlreadyReturned, id)
	}
	rd := Date(returned)
	t.ReturnDate = &rd
	t.FineAmount = fine
	t.Status = StatusReturned
	tx.state.loans[id] = t
	return nil
}

func (tx *memTx) ListTransactions(f TransactionFilter) ([]*Transaction, error) {
	var out []*Transaction
	for _, id := range tx.state.loanOrder {
		t := tx.state.loans[id]
		if !f.matches(&t) {
			continue
		}
		loan, err := tx.TransactionByID(id)
		if err != nil {
			return nil, err
		}
		out = append(out, loan)
	}
	return out, nil
}

func (tx *memTx) CountTransactions(f TransactionFilter) (int, error) {
	n := 0
	for _, t := range tx.state.loans {
		if f.matches(&t) {
			n++
		}
	}
	return n, nil
}

func (tx *memTx) SumFines() (int64, error) {
	var sum int64
	for _, t := range tx.state.loans {
		sum += t.FineAmount
	}
	return sum, nil
}
