package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Dialect names a supported SQL backend.  All repositories write queries
// with `?` placeholders; Rebind adapts them for the backend.
type Dialect string

const (
	MySQL    Dialect = "mysql"
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

// ParseDialect validates a DB_DRIVER value.
func ParseDialect(s string) (Dialect, error) {
	switch d := Dialect(strings.ToLower(strings.TrimSpace(s))); d {
	case MySQL, Postgres, SQLite:
		return d, nil
	case "postgresql", "pg":
		return Postgres, nil
	case "sqlite3":
		return SQLite, nil
	}
	return "", fmt.Errorf("unsupported database driver %q", s)
}

// DriverName is the database/sql driver registered for the dialect.
func (d Dialect) DriverName() string { return string(d) }

// Rebind rewrites `?` placeholders into `$n` for PostgreSQL.  Queries must
// not contain literal question marks.
func (d Dialect) Rebind(query string) string {
	if d != Postgres || !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// Constraint identifies the partial unique indexes the store relies on to
// settle concurrent writers.
type Constraint int

const (
	ConstraintUnknown Constraint = iota
	// ConstraintOpenSeat allows one open rating slip per (table, seat).
	ConstraintOpenSeat
	// ConstraintOpenPlayerSlip allows one open rating slip per player.
	ConstraintOpenPlayerSlip
	// ConstraintOpenVisit allows one open visit per player.
	ConstraintOpenVisit
	// ConstraintActiveSettings allows one active settings binding per table.
	ConstraintActiveSettings
)

func (c Constraint) String() string {
	switch c {
	case ConstraintOpenSeat:
		return "ux_ratingslip_open_seat"
	case ConstraintOpenPlayerSlip:
		return "ux_ratingslip_open_player"
	case ConstraintOpenVisit:
		return "ux_visit_open_player"
	case ConstraintActiveSettings:
		return "ux_gamingtablesettings_active"
	}
	return "unknown"
}

var constraintsByName = []Constraint{
	ConstraintOpenSeat,
	ConstraintOpenPlayerSlip,
	ConstraintOpenVisit,
	ConstraintActiveSettings,
}

// sqlite reports the indexed columns instead of the index name.
var sqliteColumns = []struct {
	columns    string
	constraint Constraint
}{
	{"ratingslip.gaming_table_id, ratingslip.seat_number", ConstraintOpenSeat},
	{"ratingslip.player_id", ConstraintOpenPlayerSlip},
	{"visit.player_id", ConstraintOpenVisit},
	{"gamingtablesettings.gaming_table_id", ConstraintActiveSettings},
}

func constraintFromText(s string) Constraint {
	for _, c := range constraintsByName {
		if strings.Contains(s, c.String()) {
			return c
		}
	}
	return ConstraintUnknown
}

// UniqueViolation reports whether err is a unique-constraint violation and
// which constraint was hit.  A violation of an unrelated unique key reports
// ConstraintUnknown with ok == true.
func (d Dialect) UniqueViolation(err error) (Constraint, bool) {
	if err == nil {
		return ConstraintUnknown, false
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		if me.Number != 1062 {
			return ConstraintUnknown, false
		}
		return constraintFromText(me.Message), true
	}
	var pe *pq.Error
	if errors.As(err, &pe) {
		if pe.Code != "23505" {
			return ConstraintUnknown, false
		}
		return constraintFromText(pe.Constraint), true
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		if se.Code() != sqlite3.SQLITE_CONSTRAINT_UNIQUE {
			return ConstraintUnknown, false
		}
		msg := se.Error()
		for _, c := range sqliteColumns {
			if strings.Contains(msg, c.columns) {
				return c.constraint, true
			}
		}
		return ConstraintUnknown, true
	}
	return ConstraintUnknown, false
}

// IsTransient reports whether err means the store could not be reached or
// could not serve the request in time.  Such failures are safe for the
// caller to retry.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, mysql.ErrInvalidConn) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		// lock wait timeout, deadlock
		return me.Number == 1205 || me.Number == 1213
	}
	var pe *pq.Error
	if errors.As(err, &pe) {
		return pe.Code.Class() == "08" || pe.Code == "40001" || pe.Code == "40P01" || pe.Code == "57P01"
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		primary := se.Code() & 0xff
		return primary == sqlite3.SQLITE_BUSY || primary == sqlite3.SQLITE_LOCKED
	}
	return false
}
