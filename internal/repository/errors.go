// Package repository holds the MySQL data access layer. Every state change
// on show_seats and reservations is a conditional UPDATE whose affected-row
// count is returned to the caller, so races resolve in the database rather
// than in application locks.
package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when a row addressed by id, token, number or code
// does not exist. Handlers translate it into 404.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when an insert violates a unique index, for
// example a second order for the same payment reference.
var ErrDuplicate = errors.New("duplicate")

// mysqlDuplicateEntry is ER_DUP_ENTRY.
const mysqlDuplicateEntry = 1062

func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}
