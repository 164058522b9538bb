package directory

import "errors"

var (
	// ErrConflict is returned by Register when the directory rejects an
	// upsert outright (reserved for directory-side policy; register is
	// otherwise upsert semantics).
	ErrConflict = errors.New("directory: conflict")
	// ErrNotFound is returned by Lookup for an unknown username.
	ErrNotFound = errors.New("directory: not found")
)
