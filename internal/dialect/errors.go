package dialect

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"github.com/roach88/relmap/internal/ir"
)

// IsUniqueConstraintError reports if err is a duplicate primary-key or
// unique-index violation from any supported driver.
func IsUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique ||
			se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var pe *pq.Error
	if errors.As(err, &pe) {
		return pe.Code == "23505"
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == 1062
	}
	// Fallback to string matching for wrapped or proxied drivers.
	for _, s := range []string{
		"Error 1062",
		"violates unique constraint",
		"UNIQUE constraint failed",
	} {
		if strings.Contains(err.Error(), s) {
			return true
		}
	}
	return false
}

// Classify maps driver errors onto the mapping error taxonomy. Duplicate
// keys become DUPLICATE_KEY conflicts; anything else is returned unchanged.
func Classify(err error, table string) error {
	if IsUniqueConstraintError(err) {
		return ir.Wrap(ir.ErrCodeDuplicateKey, err, "duplicate key in %s", table)
	}
	return err
}
