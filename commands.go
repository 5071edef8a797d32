package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"library-circulation/library"
)

// app carries the opened manager between cobra hooks and commands.
type app struct {
	cfg     library.Config
	manager *library.LibraryManager

	dbPath   string
	backend  string
	logLevel string
}

// execute runs one command line and closes whatever store it opened.
func execute(args []string, out io.Writer) error {
	a := &app{}
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(out)
	root.SetErr(out)
	err := root.Execute()
	if a.manager != nil {
		if cerr := a.manager.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "librarian",
		Short:         "Library circulation desk: catalog, issue, return and fines",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.open(cmd)
		},
	}
	root.PersistentFlags().StringVar(&a.dbPath, "db", "", "SQLite database path (overrides LIBRARY_DB_PATH)")
	root.PersistentFlags().StringVar(&a.backend, "backend", "", "storage backend; the CLI needs sqlite because memory is lost when a command exits (overrides LIBRARY_BACKEND)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "debug, info, warn or error (overrides LIBRARY_LOG_LEVEL)")

	root.AddCommand(
		a.bookCmd(),
		a.memberCmd(),
		a.issueCmd(),
		a.returnCmd(),
		a.loansCmd(),
		a.overdueCmd(),
		a.statsCmd(),
	)
	return root
}

func (a *app) open(cmd *cobra.Command) error {
	if cmd.Name() == "help" || strings.HasPrefix(cmd.CommandPath(), "librarian completion") {
		return nil
	}
	cfg, err := library.LoadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("db") {
		cfg.DBPath = a.dbPath
	}
	if cmd.Flags().Changed("backend") {
		cfg.Backend = a.backend
	}
	if cfg.Backend != library.BackendSQLite {
		return fmt.Errorf("%w: backend %q keeps nothing once the command exits, use sqlite", library.ErrInvalidArgument, cfg.Backend)
	}
	if cmd.Flags().Changed("log-level") {
		if err := cfg.LogLevel.UnmarshalText([]byte(a.logLevel)); err != nil {
			return fmt.Errorf("%w: log level %q", library.ErrInvalidArgument, a.logLevel)
		}
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	mgr, err := library.NewLibraryManager(cfg, library.WithManagerLogger(logger))
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.manager = mgr
	return nil
}

func parseID(kind, s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid %s ID: %s", library.ErrInvalidArgument, kind, s)
	}
	return id, nil
}

// ------------------ Books ------------------

func (a *app) bookCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "book", Short: "Manage the catalog"}

	var nb library.NewBook
	add := &cobra.Command{
		Use:   "add",
		Short: "Add a title to the catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			b, err := a.manager.AddBook(cmd.Context(), nb.ISBN, nb.Title, nb.Author, nb.Category, nb.Publisher, nb.TotalCopies)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added book ID %d (ISBN %s) with %d copies.\n", b.ID, b.ISBN, b.TotalCopies)
			return nil
		},
	}
	add.Flags().StringVar(&nb.ISBN, "isbn", "", "ISBN (unique)")
	add.Flags().StringVar(&nb.Title, "title", "", "title")
	add.Flags().StringVar(&nb.Author, "author", "", "author")
	add.Flags().StringVar(&nb.Category, "category", "", "category")
	add.Flags().StringVar(&nb.Publisher, "publisher", "", "publisher")
	add.Flags().IntVar(&nb.TotalCopies, "copies", 1, "number of copies")
	_ = add.MarkFlagRequired("isbn")
	_ = add.MarkFlagRequired("title")

	list := &cobra.Command{
		Use:   "list",
		Short: "List every book with its availability",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			books, err := a.manager.ListBooks(cmd.Context())
			if err != nil {
				return err
			}
			if len(books) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No books in library.")
				return nil
			}
			printBooks(cmd.OutOrStdout(), books)
			return nil
		},
	}

	show := &cobra.Command{
		Use:   "show <isbn-or-id>",
		Short: "Show one book and its open loans",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := a.manager.GetBook(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			loans, err := a.manager.ListTransactions(cmd.Context(), library.TransactionFilter{BookID: b.ID, Status: library.StatusBorrowed})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "ID:        %d\nISBN:      %s\nTitle:     %s\nAuthor:    %s\nCategory:  %s\nPublisher: %s\nCopies:    %d available of %d\n",
				b.ID, b.ISBN, b.Title, b.Author, b.Category, b.Publisher, b.AvailableCopies, b.TotalCopies)
			if len(loans) > 0 {
				fmt.Fprintln(out)
				printLoans(out, loans, a.manager.Ledger(), a.manager.Today())
			}
			return nil
		},
	}

	search := &cobra.Command{
		Use:   "search <query>",
		Short: "Search titles, authors and ISBNs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			books, err := a.manager.SearchBooks(cmd.Context(), query)
			if err != nil {
				return err
			}
			if len(books) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No books found matching '%s'.\n", query)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Found %d book(s) matching '%s':\n", len(books), query)
			printBooks(cmd.OutOrStdout(), books)
			return nil
		},
	}

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Remove a book that has no copies on loan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("book", args[0])
			if err != nil {
				return err
			}
			if err := a.manager.DeleteBook(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted book %d.\n", id)
			return nil
		},
	}

	cmd.AddCommand(add, list, show, search, del)
	return cmd
}

// ------------------ Members ------------------

func (a *app) memberCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "member", Short: "Manage members"}

	var name, contact string
	add := &cobra.Command{
		Use:   "add",
		Short: "Register a member",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := a.manager.AddMember(cmd.Context(), name, contact)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added member '%s' with ID %d\n", m.Name, m.ID)
			return nil
		},
	}
	add.Flags().StringVar(&name, "name", "", "member name")
	add.Flags().StringVar(&contact, "contact", "", "email or phone (unique)")
	_ = add.MarkFlagRequired("name")
	_ = add.MarkFlagRequired("contact")

	list := &cobra.Command{
		Use:   "list",
		Short: "List members",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			members, err := a.manager.ListMembers(cmd.Context())
			if err != nil {
				return err
			}
			if len(members) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No members registered.")
				return nil
			}
			printMembers(cmd.OutOrStdout(), members)
			return nil
		},
	}

	setStatus := func(use string, status library.MemberStatus) *cobra.Command {
		return &cobra.Command{
			Use:   use + " <id>",
			Short: "Mark a member " + string(status),
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID("member", args[0])
				if err != nil {
					return err
				}
				if err := a.manager.SetMemberStatus(cmd.Context(), id, status); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Member %d is now %s.\n", id, status)
				return nil
			},
		}
	}

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Remove a member with nothing on loan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("member", args[0])
			if err != nil {
				return err
			}
			if err := a.manager.DeleteMember(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted member %d.\n", id)
			return nil
		},
	}

	cmd.AddCommand(add, list, setStatus("activate", library.MemberActive), setStatus("deactivate", library.MemberInactive), del)
	return cmd
}

// ------------------ Circulation ------------------

func (a *app) issueCmd() *cobra.Command {
	var (
		issuer string
		days   int
	)
	cmd := &cobra.Command{
		Use:   "issue <isbn-or-book-id> <member-id>",
		Short: "Lend a copy to a member",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			memberID, err := parseID("member", args[1])
			if err != nil {
				return err
			}
			loan, err := a.manager.IssueBook(cmd.Context(), args[0], memberID, issuer, days)
			if err != nil {
				return err
			}
			book, _ := a.manager.GetBook(cmd.Context(), args[0])
			member, _ := a.manager.GetMember(cmd.Context(), memberID)
			title, name := "book "+args[0], fmt.Sprintf("member %d", memberID)
			if book != nil {
				title = book.Title
			}
			if member != nil {
				name = member.Name
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Book '%s' issued to %s. Due %s.\nTransaction ID: %s\n",
				title, name, library.FormatDate(loan.DueDate), loan.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&issuer, "by", "", "staff member issuing the book")
	cmd.Flags().IntVar(&days, "days", 0, "loan period in days (default from LIBRARY_LOAN_DAYS)")
	return cmd
}

func (a *app) returnCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "return <transaction-id>",
		Short: "Take a copy back and compute any overdue fine",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loan, err := a.manager.ReturnBook(cmd.Context(), strings.TrimSpace(args[0]))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Returned on %s (due %s).\n", library.FormatDate(*loan.ReturnDate), library.FormatDate(loan.DueDate))
			if loan.FineAmount > 0 {
				fmt.Fprintf(out, "Overdue fine: %d %s\n", loan.FineAmount, a.cfg.Policy.Currency)
			} else {
				fmt.Fprintln(out, "No fine.")
			}
			return nil
		},
	}
}

func (a *app) loansCmd() *cobra.Command {
	var (
		bookID, memberID int64
		open             bool
	)
	cmd := &cobra.Command{
		Use:   "loans",
		Short: "List loan records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f := library.TransactionFilter{BookID: bookID, MemberID: memberID}
			if open {
				f.Status = library.StatusBorrowed
			}
			loans, err := a.manager.ListTransactions(cmd.Context(), f)
			if err != nil {
				return err
			}
			if len(loans) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No loans.")
				return nil
			}
			printLoans(cmd.OutOrStdout(), loans, a.manager.Ledger(), a.manager.Today())
			return nil
		},
	}
	cmd.Flags().Int64Var(&bookID, "book", 0, "only loans of this book ID")
	cmd.Flags().Int64Var(&memberID, "member", 0, "only loans of this member ID")
	cmd.Flags().BoolVar(&open, "open", false, "only loans still borrowed")
	return cmd
}

func (a *app) overdueCmd() *cobra.Command {
	var asOf string
	cmd := &cobra.Command{
		Use:   "overdue",
		Short: "List borrowed copies past their due date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			day := a.manager.Today()
			if asOf != "" {
				var err error
				if day, err = library.ParseDate(asOf); err != nil {
					return fmt.Errorf("%w: --as-of must be YYYY-MM-DD", library.ErrInvalidArgument)
				}
			}
			loans, err := a.manager.ListOverdue(cmd.Context(), day)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d overdue as of %s\n", len(loans), library.FormatDate(day))
			if len(loans) > 0 {
				printLoans(cmd.OutOrStdout(), loans, a.manager.Ledger(), day)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&asOf, "as-of", "", "date to evaluate (YYYY-MM-DD, default today)")
	return cmd
}

func (a *app) statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show catalog and circulation counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := a.manager.Stats(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Books:           %d (%d copies, %d on loan)\n", s.Books, s.Copies, s.CopiesOnLoan)
			fmt.Fprintf(out, "Members:         %d\n", s.Members)
			fmt.Fprintf(out, "Issued records:  %d\n", s.Issued)
			fmt.Fprintf(out, "Return records:  %d\n", s.Returned)
			fmt.Fprintf(out, "Overdue now:     %d\n", s.Overdue)
			fmt.Fprintf(out, "Fines collected: %d %s\n", s.FinesCollected, a.cfg.Policy.Currency)
			return nil
		},
	}
}
