package tabular

import "errors"

var (
	// ErrDimensionMismatch reports disagreement between matrix dimensions
	// and the number of row/column labels or metadata rows.
	ErrDimensionMismatch = errors.New("tabular: dimension mismatch")

	// ErrDuplicateID reports a repeated identifier within one axis.
	ErrDuplicateID = errors.New("tabular: duplicate identifier")

	// ErrColumnExists reports an attempt to add a column under a name that
	// is already taken. Use SetColumn to replace explicitly.
	ErrColumnExists = errors.New("tabular: column already exists")
)
