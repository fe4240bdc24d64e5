package repository

import (
	"fmt"
	"strconv"

	"evrewards/backend/services/rewards-service/internal/address"
)

// u64 values are stored as NUMERIC(20,0) and travel as decimal text.
func numeric(v uint64) string { return strconv.FormatUint(v, 10) }

// decoder converts scanned text columns, keeping the first error.
type decoder struct {
	err error
}

func (d *decoder) addr(column, s string) address.Address {
	if d.err != nil {
		return address.Zero
	}
	a, err := address.Parse(s)
	if err != nil {
		d.err = fmt.Errorf("repository: column %s: %w", column, err)
	}
	return a
}

func (d *decoder) u64(column, s string) uint64 {
	if d.err != nil {
		return 0
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		d.err = fmt.Errorf("repository: column %s: %w", column, err)
	}
	return v
}

type scanner interface {
	Scan(dest ...any) error
}
