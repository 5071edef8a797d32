package library

import "errors"

// Error kinds returned by the catalog and the ledger. Callers match them with
// errors.Is; the wrapped message carries the offending key.
var (
	ErrNotFound           = errors.New("not found")
	ErrDuplicateKey       = errors.New("duplicate key")
	ErrUnavailable        = errors.New("no copies available")
	ErrAlreadyReturned    = errors.New("already returned")
	ErrInvariantViolation = errors.New("invariant violation")
	ErrInUse              = errors.New("in use by open loans")
	ErrInvalidArgument    = errors.New("invalid argument")
)

var errorKinds = []struct {
	err  error
	name string
}{
	{ErrNotFound, "NotFound"},
	{ErrDuplicateKey, "DuplicateKey"},
	{ErrUnavailable, "Unavailable"},
	{ErrAlreadyReturned, "AlreadyReturned"},
	{ErrInvariantViolation, "InvariantViolation"},
	{ErrInUse, "InUse"},
	{ErrInvalidArgument, "InvalidArgument"},
}

// ErrorKind names the kind of err, or returns "" when err is nil or not one
// of the library's error kinds.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return ""
}
