package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"github.com/mattn/go-sqlite3"
)

// Database is the SQLite-backed Store.
type Database struct {
	db      *sql.DB
	dialect goqu.DialectWrapper
	now     func() time.Time

	addBookStmt   *sql.Stmt
	addMemberStmt *sql.Stmt
	addLoanStmt   *sql.Stmt
}

// NewDatabase opens (or creates) the SQLite database at dbPath, applies schema
// migrations, and prepares common statements.
func NewDatabase(dbPath string) (*Database, error) {
	// Ensure directory exists so first-run succeeds.
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	// IMMEDIATE transactions take the write lock at BEGIN, so two units of
	// work never both read a counter before either writes it.
	dsn := fmt.Sprintf("file:%s?_busy_timeout=10000&_txlock=immediate", (&url.URL{Path: dbPath}).EscapedPath())
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := applyMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	database := &Database{db: db, dialect: goqu.Dialect("sqlite3"), now: time.Now}
	if err := database.prepareStatements(); err != nil {
		database.Close()
		return nil, err
	}
	return database, nil
}

// Close releases prepared statements and closes the DB.
func (d *Database) Close() error {
	for _, stmt := range []*sql.Stmt{d.addBookStmt, d.addMemberStmt, d.addLoanStmt} {
		if stmt != nil {
			stmt.Close()
		}
	}
	return d.db.Close()
}

// ---------------------------------------------------------------------------
// Schema migration
// ---------------------------------------------------------------------------

const schemaVersion = 1

func applyMigrations(db *sql.DB) error {
	// WAL improves write concurrency.
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return fmt.Errorf("enable WAL: %w", err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS meta (key TEXT PRIMARY KEY, value TEXT);`); err != nil {
		return err
	}

	var current int
	_ = db.QueryRow(`SELECT value FROM meta WHERE key='schema_version';`).Scan(&current)
	if current >= schemaVersion {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// loans reference books and members by id without a foreign key: loan
	// rows are an audit trail and outlive deleted catalog entries.
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS books (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            isbn TEXT NOT NULL UNIQUE,
            title TEXT NOT NULL,
            author TEXT NOT NULL DEFAULT '',
            category TEXT NOT NULL DEFAULT '',
            publisher TEXT NOT NULL DEFAULT '',
            total_copies INTEGER NOT NULL CHECK (total_copies >= 1),
            available_copies INTEGER NOT NULL CHECK (available_copies BETWEEN 0 AND total_copies),
            created_at TEXT NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS members (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            name TEXT NOT NULL,
            contact TEXT NOT NULL UNIQUE COLLATE NOCASE,
            status TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active','inactive')),
            registered_at TEXT NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS loans (
            id TEXT PRIMARY KEY,
            book_id INTEGER NOT NULL,
            member_id INTEGER NOT NULL,
            issued_by TEXT NOT NULL DEFAULT '',
            issued_date TEXT NOT NULL,
            due_date TEXT NOT NULL,
            return_date TEXT,
            fine_amount INTEGER NOT NULL DEFAULT 0 CHECK (fine_amount >= 0),
            status TEXT NOT NULL CHECK (status IN ('BORROWED','RETURNED'))
        );`,
		`CREATE INDEX IF NOT EXISTS idx_loans_book_status ON loans(book_id, status);`,
		`CREATE INDEX IF NOT EXISTS idx_loans_member_status ON loans(member_id, status);`,
		`CREATE INDEX IF NOT EXISTS idx_loans_status_due ON loans(status, due_date);`,
	}

	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("apply migration: %w", err)
		}
	}
	if _, err := tx.Exec(`INSERT INTO meta(key,value) VALUES('schema_version',?)
            ON CONFLICT(key) DO UPDATE SET value=excluded.value;`, schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}

	return tx.Commit()
}

// ---------------------------------------------------------------------------
// Prepared statements
// ---------------------------------------------------------------------------

func (d *Database) prepareStatements() error {
	var err error
	if d.addBookStmt, err = d.db.Prepare(`INSERT INTO books(isbn,title,author,category,publisher,total_copies,available_copies,created_at)
        VALUES(?,?,?,?,?,?,?,?)`); err != nil {
		return err
	}
	if d.addMemberStmt, err = d.db.Prepare(`INSERT INTO members(name,contact,status,registered_at) VALUES(?,?,?,?)`); err != nil {
		return err
	}
	if d.addLoanStmt, err = d.db.Prepare(`INSERT INTO loans(id,book_id,member_id,issued_by,issued_date,due_date,fine_amount,status)
        VALUES(?,?,?,?,?,?,?,?)`); err != nil {
		return err
	}
	return nil
}

// ---------------------------------------------------------------------------
// Units of work
// ---------------------------------------------------------------------------

// Atomically runs fn inside one SQLite transaction and commits only if fn
// succeeds.
func (d *Database) Atomically(ctx context.Context, fn func(tx StoreTx) error) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&sqlTx{ctx: ctx, tx: tx, d: d}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type sqlTx struct {
	ctx context.Context
	tx  *sql.Tx
	d   *Database
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// ------------------ Books ------------------

const bookColumns = `id,isbn,title,author,category,publisher,total_copies,available_copies,created_at`

func scanBook(row rowScanner) (*Book, error) {
	var (
		b       Book
		created string
	)
	if err := row.Scan(&b.ID, &b.ISBN, &b.Title, &b.Author, &b.Category, &b.Publisher,
		&b.TotalCopies, &b.AvailableCopies, &created); err != nil {
		return nil, err
	}
	var err error
	if b.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return nil, fmt.Errorf("book %d created_at: %w", b.ID, err)
	}
	return &b, nil
}

func (t *sqlTx) InsertBook(b *Book) error {
	if b.CreatedAt.IsZero() {
		b.CreatedAt = t.d.now().UTC()
	}
	res, err := t.tx.Stmt(t.d.addBookStmt).ExecContext(t.ctx, b.ISBN, b.Title, b.Author, b.Category, b.Publisher,
		b.TotalCopies, b.AvailableCopies, b.CreatedAt.Format(time.RFC3339Nano))
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: isbn %s", ErrDuplicateKey, b.ISBN)
	}
	if err != nil {
		return fmt.Errorf("insert book: %w", err)
	}
	b.ID, err = res.LastInsertId()
	return err
}

func (t *sqlTx) BookByID(id int64) (*Book, error) {
	b, err := scanBook(t.tx.QueryRowContext(t.ctx, `SELECT `+bookColumns+` FROM books WHERE id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: book %d", ErrNotFound, id)
	}
	return b, err
}

func (t *sqlTx) BookByISBN(isbn string) (*Book, error) {
	b, err := scanBook(t.tx.QueryRowContext(t.ctx, `SELECT `+bookColumns+` FROM books WHERE isbn=?`, isbn))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: isbn %s", ErrNotFound, isbn)
	}
	return b, err
}

func (t *sqlTx) ListBooks() ([]*Book, error) {
	rows, err := t.tx.QueryContext(t.ctx, `SELECT `+bookColumns+` FROM books ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	books := []*Book{}
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		books = append(books, b)
	}
	return books, rows.Err()
}

func (t *sqlTx) DeleteBook(id int64) error {
	return t.deleteByID("books", "book", id)
}

func (t *sqlTx) AdjustAvailability(bookID int64, delta int) (int, error) {
	res, err := t.tx.ExecContext(t.ctx, `UPDATE books SET available_copies = available_copies + ?
        WHERE id = ? AND available_copies + ? BETWEEN 0 AND total_copies`, delta, bookID, delta)
	if err != nil {
		return 0, fmt.Errorf("adjust availability: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	b, err := t.BookByID(bookID)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return b.AvailableCopies, fmt.Errorf("%w: book %d available copies %d%+d outside [0,%d]",
			ErrInvariantViolation, bookID, b.AvailableCopies, delta, b.TotalCopies)
	}
	return b.AvailableCopies, nil
}

// ------------------ Members ------------------

const memberColumns = `id,name,contact,status,registered_at`

func scanMember(row rowScanner) (*Member, error) {
	var (
		m          Member
		registered string
	)
	if err := row.Scan(&m.ID, &m.Name, &m.Contact, &m.Status, &registered); err != nil {
		return nil, err
	}
	var err error
	if m.RegisteredAt, err = time.Parse(time.RFC3339Nano, registered); err != nil {
		return nil, fmt.Errorf("member %d registered_at: %w", m.ID, err)
	}
	return &m, nil
}

func (t *sqlTx) InsertMember(m *Member) error {
	if m.RegisteredAt.IsZero() {
		m.RegisteredAt = t.d.now().UTC()
	}
	res, err := t.tx.Stmt(t.d.addMemberStmt).ExecContext(t.ctx, m.Name, m.Contact, string(m.Status),
		m.RegisteredAt.Format(time.RFC3339Nano))
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: contact %s", ErrDuplicateKey, m.Contact)
	}
	if err != nil {
		return fmt.Errorf("insert member: %w", err)
	}
	m.ID, err = res.LastInsertId()
	return err
}

func (t *sqlTx) MemberByID(id int64) (*Member, error) {
	m, err := scanMember(t.tx.QueryRowContext(t.ctx, `SELECT `+memberColumns+` FROM members WHERE id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: member %d", ErrNotFound, id)
	}
	return m, err
}

func (t *sqlTx) ListMembers() ([]*Member, error) {
	rows, err := t.tx.QueryContext(t.ctx, `SELECT `+memberColumns+` FROM members ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	members := []*Member{}
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (t *sqlTx) SetMemberStatus(id int64, status MemberStatus) error {
	res, err := t.tx.ExecContext(t.ctx, `UPDATE members SET status=? WHERE id=?`, string(status), id)
	if err != nil {
		return err
	}
	return requireOneRow(res, fmt.Errorf("%w: member %d", ErrNotFound, id))
}

func (t *sqlTx) DeleteMember(id int64) error {
	return t.deleteByID("members", "member", id)
}

func (t *sqlTx) deleteByID(table, noun string, id int64) error {
	res, err := t.tx.ExecContext(t.ctx, `DELETE FROM `+table+` WHERE id=?`, id)
	if err != nil {
		return fmt.Errorf("delete %s: %w", noun, err)
	}
	return requireOneRow(res, fmt.Errorf("%w: %s %d", ErrNotFound, noun, id))
}

func requireOneRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

// ------------------ Loans ------------------

var loanColumns = []any{"id", "book_id", "member_id", "issued_by", "issued_date", "due_date", "return_date", "fine_amount", "status"}

func scanLoan(row rowScanner) (*Transaction, error) {
	var (
		l           Transaction
		issued, due string
		returned    sql.NullString
	)
	if err := row.Scan(&l.ID, &l.BookID, &l.MemberID, &l.IssuedBy, &issued, &due, &returned, &l.FineAmount, &l.Status); err != nil {
		return nil, err
	}
	var err error
	if l.IssuedDate, err = ParseDate(issued); err != nil {
		return nil, fmt.Errorf("loan %s issued date: %w", l.ID, err)
	}
	if l.DueDate, err = ParseDate(due); err != nil {
		return nil, fmt.Errorf("loan %s due date: %w", l.ID, err)
	}
	if returned.Valid {
		rd, err := ParseDate(returned.String)
		if err != nil {
			return nil, fmt.Errorf("loan %s return date: %w", l.ID, err)
		}
		l.ReturnDate = &rd
	}
	return &l, nil
}

func (t *sqlTx) InsertTransaction(l *Transaction) error {
	_, err := t.tx.Stmt(t.d.addLoanStmt).ExecContext(t.ctx, l.ID, l.BookID, l.MemberID, l.IssuedBy,
		FormatDate(l.IssuedDate), FormatDate(l.DueDate), l.FineAmount, string(l.Status))
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: transaction %s", ErrDuplicateKey, l.ID)
	}
	if err != nil {
		return fmt.Errorf("insert loan: %w", err)
	}
	return nil
}

func (t *sqlTx) TransactionByID(id string) (*Transaction, error) {
	query, args, err := t.d.dialect.From("loans").Prepared(true).
		Select(loanColumns...).
		Where(goqu.C("id").Eq(id)).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build loan query: %w", err)
	}
	l, err := scanLoan(t.tx.QueryRowContext(t.ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: transaction %s", ErrNotFound, id)
	}
	return l, err
}

func (t *sqlTx) CloseTransaction(id string, returned time.Time, fine int64) error {
	res, err := t.tx.ExecContext(t.ctx, `UPDATE loans SET return_date=?, fine_amount=?, status=?
        WHERE id=? AND status=?`, FormatDate(returned), fine, string(StatusReturned), id, string(StatusBorrowed))
	if err != nil {
		return fmt.Errorf("close loan: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	if _, err := t.TransactionByID(id); err != nil {
		return err
	}
	return fmt.Errorf("%w: transaction %s", ErrAlreadyReturned, id)
}

func loanFilter(ds *goqu.SelectDataset, f TransactionFilter) *goqu.SelectDataset {
	if f.BookID != 0 {
		ds = ds.Where(goqu.C("book_id").Eq(f.BookID))
	}
	if f.MemberID != 0 {
		ds = ds.Where(goqu.C("member_id").Eq(f.MemberID))
	}
	if f.Status != "" {
		ds = ds.Where(goqu.C("status").Eq(string(f.Status)))
	}
	if !f.DueBefore.IsZero() {
		ds = ds.Where(goqu.C("due_date").Lt(FormatDate(Date(f.DueBefore))))
	}
	return ds
}

func (t *sqlTx) ListTransactions(f TransactionFilter) ([]*Transaction, error) {
	ds := t.d.dialect.From("loans").Prepared(true).
		Select(loanColumns...).
		Order(goqu.L("rowid").Asc())
	query, args, err := loanFilter(ds, f).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build loan query: %w", err)
	}

	rows, err := t.tx.QueryContext(t.ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var loans []*Transaction
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, err
		}
		loans = append(loans, l)
	}
	return loans, rows.Err()
}

func (t *sqlTx) CountTransactions(f TransactionFilter) (int, error) {
	ds := t.d.dialect.From("loans").Prepared(true).Select(goqu.COUNT(goqu.Star()))
	query, args, err := loanFilter(ds, f).ToSQL()
	if err != nil {
		return 0, fmt.Errorf("build loan count: %w", err)
	}
	var n int
	if err := t.tx.QueryRowContext(t.ctx, query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (t *sqlTx) SumFines() (int64, error) {
	var sum int64
	err := t.tx.QueryRowContext(t.ctx, `SELECT COALESCE(SUM(fine_amount),0) FROM loans`).Scan(&sum)
	return sum, err
}
