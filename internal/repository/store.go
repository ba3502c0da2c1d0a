package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/iliyamo/casino-floor/internal/database"
)

// Store bundles the repositories over one database handle. It is the
// explicit store handle passed to the session and visit layers; the
// hosting process owns its lifecycle.
type Store struct {
	db      *sql.DB
	dialect database.Dialect

	Casinos *CasinoRepo
	Players *PlayerRepo
	Tables  *TableRepo
	Visits  *VisitRepo
	Slips   *RatingSlipRepo
}

// NewStore wires every repository to db.
func NewStore(db *sql.DB, d database.Dialect) *Store {
	return &Store{
		db:      db,
		dialect: d,
		Casinos: NewCasinoRepo(db, d),
		Players: NewPlayerRepo(db, d),
		Tables:  NewTableRepo(db, d),
		Visits:  NewVisitRepo(db, d),
		Slips:   NewRatingSlipRepo(db, d),
	}
}

// DB returns the underlying handle.
func (s *Store) DB() *sql.DB { return s.db }

// Dialect returns the SQL dialect of the store.
func (s *Store) Dialect() database.Dialect { return s.dialect }

// WithTx runs fn inside one transaction. The transaction is committed when
// fn returns nil and rolled back otherwise. Inside fn only tx may be used;
// the embedded store holds a single connection.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Unavailable(err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return Unavailable(err)
	}
	committed = true
	return nil
}

// Ping checks that the store answers.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Unavailable wraps transient store failures in ErrStoreUnavailable and
// returns every other error unchanged.
func Unavailable(err error) error {
	if err == nil || !database.IsTransient(err) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
