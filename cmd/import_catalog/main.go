package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"library-circulation/library"
)

var columns = []string{"isbn", "title", "author", "category", "publisher", "copies"}

// readCatalog parses rows of isbn,title,author,category,publisher,copies.
// A first row whose first cell is "isbn" is treated as a header.
func readCatalog(r io.Reader) ([]library.NewBook, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var books []library.NewBook
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return books, nil
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if line == 1 && strings.EqualFold(strings.TrimSpace(rec[0]), columns[0]) {
			continue
		}
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}
		if len(rec) < 2 {
			return nil, fmt.Errorf("line %d: want at least isbn and title, got %d fields", line, len(rec))
		}
		for len(rec) < len(columns) {
			rec = append(rec, "")
		}
		copies := 1
		if s := strings.TrimSpace(rec[5]); s != "" {
			copies, err = strconv.Atoi(s)
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid copies %q", line, s)
			}
		}
		books = append(books, library.NewBook{
			ISBN:        strings.TrimSpace(rec[0]),
			Title:       strings.TrimSpace(rec[1]),
			Author:      strings.TrimSpace(rec[2]),
			Category:    strings.TrimSpace(rec[3]),
			Publisher:   strings.TrimSpace(rec[4]),
			TotalCopies: copies,
		})
	}
}

type importResult struct {
	added, skipped, failed int
}

// importBooks adds every row. Rows whose ISBN is already catalogued are skipped
// and leave the existing record untouched.
func importBooks(ctx context.Context, mgr *library.LibraryManager, books []library.NewBook, out io.Writer) importResult {
	var res importResult
	for _, nb := range books {
		fmt.Fprintf(out, "Importing: %s by %s... ", nb.Title, nb.Author)
		b, err := mgr.Catalog().AddBook(ctx, nb)
		switch {
		case errors.Is(err, library.ErrDuplicateKey):
			fmt.Fprintln(out, "SKIPPED - already in catalog")
			res.skipped++
		case err != nil:
			fmt.Fprintf(out, "ERROR - %v\n", err)
			res.failed++
		default:
			fmt.Fprintf(out, "SUCCESS (ID: %d)\n", b.ID)
			res.added++
		}
	}
	return res
}

func main() {
	var dbPath string
	cmd := &cobra.Command{
		Use:          "import_catalog <file.csv>",
		Short:        "Load books from a CSV file into the catalog",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			books, err := readCatalog(f)
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[0], err)
			}

			cfg, err := library.LoadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("db") {
				cfg.DBPath = dbPath
			}
			cfg.Backend = library.BackendSQLite

			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
			mgr, err := library.NewLibraryManager(cfg, library.WithManagerLogger(logger))
			if err != nil {
				return fmt.Errorf("opening database: %w", err)
			}
			defer mgr.Close()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Importing %d book(s) from %s into %s...\n", len(books), args[0], cfg.DBPath)
			res := importBooks(cmd.Context(), mgr, books, out)

			fmt.Fprintf(out, "\nImport complete!\n")
			fmt.Fprintf(out, "Successfully imported: %d books\n", res.added)
			fmt.Fprintf(out, "Already present: %d\n", res.skipped)
			fmt.Fprintf(out, "Errors: %d\n", res.failed)
			if res.failed > 0 {
				return fmt.Errorf("%d row(s) failed", res.failed)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database path (overrides LIBRARY_DB_PATH)")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
