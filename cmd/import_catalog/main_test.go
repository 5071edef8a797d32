package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"library-circulation/library"
)

const sample = `isbn,title,author,category,publisher,copies
978-0134190440,The Go Programming Language,Donovan,Programming,Addison-Wesley,3
978-0441172719,Dune,Frank Herbert,Fiction,Ace,
"978-0-00-1","Title, With Comma",Anon
`

func TestReadCatalog(t *testing.T) {
	books, err := readCatalog(strings.NewReader(sample))
	require.NoError(t, err)
	require.Len(t, books, 3)

	assert.Equal(t, library.NewBook{
		ISBN: "978-0134190440", Title: "The Go Programming Language", Author: "Donovan",
		Category: "Programming", Publisher: "Addison-Wesley", TotalCopies: 3,
	}, books[0])
	assert.Equal(t, 1, books[1].TotalCopies)
	assert.Equal(t, "Title, With Comma", books[2].Title)
	assert.Equal(t, 1, books[2].TotalCopies)
}

func TestReadCatalogRejectsBadRows(t *testing.T) {
	_, err := readCatalog(strings.NewReader("only-isbn\n"))
	assert.ErrorContains(t, err, "line 1")

	_, err = readCatalog(strings.NewReader("x,Title,A,C,P,many\n"))
	assert.ErrorContains(t, err, "invalid copies")
}

func TestImportBooksSkipsDuplicates(t *testing.T) {
	mgr := library.NewLibraryManagerWithStore(library.NewMemoryStore(), library.DefaultPolicy())
	ctx := context.Background()

	books, err := readCatalog(strings.NewReader(sample))
	require.NoError(t, err)
	books = append(books,
		library.NewBook{ISBN: "978-0441172719", Title: "Dune (again)", TotalCopies: 9},
		library.NewBook{ISBN: "bad", Title: "No copies", TotalCopies: 0},
	)

	var out bytes.Buffer
	res := importBooks(ctx, mgr, books, &out)
	assert.Equal(t, importResult{added: 3, skipped: 1, failed: 1}, res)

	dune, err := mgr.GetBook(ctx, "978-0441172719")
	require.NoError(t, err)
	assert.Equal(t, "Dune", dune.Title)
	assert.Contains(t, out.String(), "SKIPPED")
}
