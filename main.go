package main

import (
	"errors"
	"fmt"
	"os"

	"library-circulation/library"
)

func main() {
	if err := execute(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", describeError(err))
		os.Exit(1)
	}
}

// describeError turns library error kinds into messages for the desk clerk.
func describeError(err error) string {
	switch {
	case errors.Is(err, library.ErrNotFound):
		return fmt.Sprintf("not found (%v)", err)
	case errors.Is(err, library.ErrDuplicateKey):
		return fmt.Sprintf("already exists (%v)", err)
	case errors.Is(err, library.ErrUnavailable):
		return fmt.Sprintf("book not available (%v)", err)
	case errors.Is(err, library.ErrAlreadyReturned):
		return fmt.Sprintf("this loan was already returned (%v)", err)
	case errors.Is(err, library.ErrInUse):
		return fmt.Sprintf("cannot delete while copies are on loan (%v)", err)
	case errors.Is(err, library.ErrInvalidArgument):
		return err.Error()
	case errors.Is(err, library.ErrInvariantViolation):
		return fmt.Sprintf("internal consistency check failed, nothing was changed (%v)", err)
	default:
		return err.Error()
	}
}
