package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	"library-circulation/library"
)

const defaultWidth = 100

// termWidth reports the column count of w when it is a terminal.
func termWidth(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return defaultWidth
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil || width <= 0 {
		return defaultWidth
	}
	return width
}

// titleWidth gives the flexible column whatever the fixed columns leave over.
func titleWidth(w io.Writer, fixed int) int {
	n := termWidth(w) - fixed
	if n < 20 {
		return 20
	}
	if n > 60 {
		return 60
	}
	return n
}

func printBooks(w io.Writer, books []*library.Book) {
	// ID, ISBN, Author, Available columns plus separators
	tw := titleWidth(w, 5+1+18+1+22+1+10+1)
	fmt.Fprintf(w, "%-5s %-18s %-*s %-22s %s\n", "ID", "ISBN", tw, "Title", "Author", "Available")
	fmt.Fprintln(w, strings.Repeat("-", 5+1+18+1+tw+1+22+1+10))
	for _, b := range books {
		fmt.Fprintf(w, "%-5d %-18s %-*s %-22s %d/%d\n",
			b.ID,
			truncateString(b.ISBN, 18),
			tw, truncateString(b.Title, tw),
			truncateString(b.Author, 22),
			b.AvailableCopies, b.TotalCopies)
	}
}

func printMembers(w io.Writer, members []*library.Member) {
	fmt.Fprintf(w, "%-5s %-30s %-30s %-8s %s\n", "ID", "Name", "Contact", "Status", "Registered")
	for _, m := range members {
		fmt.Fprintf(w, "%-5d %-30s %-30s %-8s %s\n",
			m.ID,
			truncateString(m.Name, 30),
			truncateString(m.Contact, 30),
			m.Status,
			library.FormatDate(m.RegisteredAt))
	}
}

// printLoans lists loans with the fine each one has accrued as of asOf.
func printLoans(w io.Writer, loans []*library.Transaction, ledger *library.Ledger, asOf time.Time) {
	fmt.Fprintf(w, "%-36s %-6s %-6s %-10s %-10s %-10s %-8s %s\n",
		"Transaction", "Book", "Member", "Issued", "Due", "Returned", "Status", "Fine")
	for _, t := range loans {
		returned := "-"
		if t.ReturnDate != nil {
			returned = library.FormatDate(*t.ReturnDate)
		}
		fmt.Fprintf(w, "%-36s %-6d %-6d %-10s %-10s %-10s %-8s %d\n",
			t.ID, t.BookID, t.MemberID,
			library.FormatDate(t.IssuedDate),
			library.FormatDate(t.DueDate),
			returned,
			t.Status,
			ledger.AccruedFine(t, asOf))
	}
}

func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
