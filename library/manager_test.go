package library

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newManager(t *testing.T) *LibraryManager {
	dir := t.TempDir()
	cfg := Config{Backend: BackendSQLite, DBPath: filepath.Join(dir, "lib.db"), Policy: DefaultPolicy()}
	mgr, err := NewLibraryManager(cfg, WithManagerClock(func() time.Time {
		return time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	}))
	if err != nil {
		t.Fatalf("mgr: %v", err)
	}
	t.Cleanup(func() { mgr.Close() })
	return mgr
}

func TestManagerRejectsBadConfig(t *testing.T) {
	cases := []Config{
		{Backend: "postgres", Policy: DefaultPolicy()},
		{Backend: BackendSQLite, DBPath: "", Policy: DefaultPolicy()},
		{Backend: BackendMemory, Policy: FinePolicy{LoanDays: 0, Rate: 5}},
		{Backend: BackendMemory, Policy: FinePolicy{LoanDays: 14, Rate: -1}},
	}
	for _, cfg := range cases {
		if _, err := NewLibraryManager(cfg); !errors.Is(err, ErrInvalidArgument) {
			t.Fatalf("config %+v: want ErrInvalidArgument, got %v", cfg, err)
		}
	}
}

func TestManagerCirculation(t *testing.T) {
	mgr := newManager(t)
	ctx := context.Background()

	b, err := mgr.AddBook(ctx, "978-0-00-000000-1", "Go in Practice", "Butcher", "Programming", "Manning", 1)
	if err != nil {
		t.Fatalf("add book: %v", err)
	}
	if b.AvailableCopies != 1 {
		t.Fatalf("want 1 available, got %d", b.AvailableCopies)
	}
	m, err := mgr.AddMember(ctx, "Alice", "alice@example.com")
	if err != nil {
		t.Fatalf("add member: %v", err)
	}

	loan, err := mgr.IssueBook(ctx, b.ISBN, m.ID, "emp-1", 0)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if got := FormatDate(loan.DueDate); got != "2024-01-15" {
		t.Fatalf("want due 2024-01-15, got %s", got)
	}
	if _, err := mgr.IssueBook(ctx, b.ISBN, m.ID, "emp-1", 0); ErrorKind(err) != "Unavailable" {
		t.Fatalf("want Unavailable, got %v", err)
	}
	if err := mgr.DeleteBook(ctx, b.ID); !errors.Is(err, ErrInUse) {
		t.Fatalf("delete book with open loan: want ErrInUse, got %v", err)
	}
	if err := mgr.DeleteMember(ctx, m.ID); !errors.Is(err, ErrInUse) {
		t.Fatalf("delete member with open loan: want ErrInUse, got %v", err)
	}

	returned, err := mgr.ReturnBook(ctx, loan.ID)
	if err != nil {
		t.Fatalf("return: %v", err)
	}
	if returned.FineAmount != 0 {
		t.Fatalf("want no fine, got %d", returned.FineAmount)
	}

	stats, err := mgr.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Books != 1 || stats.Members != 1 || stats.Issued != 1 || stats.Returned != 1 || stats.CopiesOnLoan != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	if err := mgr.DeleteBook(ctx, b.ID); err != nil {
		t.Fatalf("delete book: %v", err)
	}
	if _, err := mgr.GetBook(ctx, b.ISBN); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound after delete, got %v", err)
	}
	// the loan record outlives the book
	if _, err := mgr.GetTransaction(ctx, loan.ID); err != nil {
		t.Fatalf("loan should survive book deletion: %v", err)
	}
}

func TestManagerAddBookDuplicateKeepsOriginal(t *testing.T) {
	mgr := newManager(t)
	ctx := context.Background()

	if _, err := mgr.AddBook(ctx, "X", "Original", "A", "C", "P", 2); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := mgr.AddBook(ctx, "X", "Other", "B", "D", "Q", 5); ErrorKind(err) != "DuplicateKey" {
		t.Fatalf("want DuplicateKey, got %v", err)
	}
	b, err := mgr.GetBook(ctx, "X")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if b.Title != "Original" || b.TotalCopies != 2 || b.AvailableCopies != 2 {
		t.Fatalf("existing record changed: %+v", b)
	}
}

func TestManagerValidatesInput(t *testing.T) {
	mgr := newManager(t)
	ctx := context.Background()

	if _, err := mgr.AddBook(ctx, "", "No ISBN", "", "", "", 1); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("empty isbn: got %v", err)
	}
	if _, err := mgr.AddBook(ctx, "Z", "No copies", "", "", "", 0); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("zero copies: got %v", err)
	}
	if _, err := mgr.AddMember(ctx, "Nobody", "  "); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("empty contact: got %v", err)
	}
	if err := mgr.SetMemberStatus(ctx, 1, "banned"); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("bad status: got %v", err)
	}
}

func TestManagerSearchAndMembers(t *testing.T) {
	mgr := newManager(t)
	ctx := context.Background()

	for _, title := range []string{"The Go Programming Language", "Dune", "Go Web Programming"} {
		if _, err := mgr.AddBook(ctx, "isbn-"+title, title, "Someone", "", "", 1); err != nil {
			t.Fatalf("add %q: %v", title, err)
		}
	}
	res, err := mgr.SearchBooks(ctx, "go ")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(res) != 2 {
		t.Fatalf("want 2 results, got %d", len(res))
	}
	if res, _ := mgr.SearchBooks(ctx, "   "); len(res) != 0 {
		t.Fatalf("blank query should match nothing, got %d", len(res))
	}

	m, err := mgr.AddMember(ctx, "Bob", "bob@example.com")
	if err != nil {
		t.Fatalf("add member: %v", err)
	}
	if err := mgr.SetMemberStatus(ctx, m.ID, MemberInactive); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	members, err := mgr.ListMembers(ctx)
	if err != nil {
		t.Fatalf("list members: %v", err)
	}
	if len(members) != 1 || members[0].Status != MemberInactive {
		t.Fatalf("unexpected members: %+v", members)
	}
	if err := mgr.DeleteMember(ctx, m.ID); err != nil {
		t.Fatalf("delete member: %v", err)
	}
}

func TestErrorKind(t *testing.T) {
	if ErrorKind(nil) != "" || ErrorKind(errors.New("other")) != "" {
		t.Fatalf("unrelated errors should have no kind")
	}
	wrapped := errors.Join(errors.New("context"), ErrAlreadyReturned)
	if got := ErrorKind(wrapped); got != "AlreadyReturned" {
		t.Fatalf("want AlreadyReturned, got %q", got)
	}
}
