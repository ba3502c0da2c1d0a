package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/casino-floor/internal/database"
	"github.com/iliyamo/casino-floor/internal/model"
)

// VisitRepo persists visits. A visit is open while check_out_date is NULL
// and the store allows one open visit per player
// (ux_visit_open_player). All timestamps are stored in UTC.
type VisitRepo struct {
	db *sql.DB
	d  database.Dialect
}

// NewVisitRepo constructs a VisitRepo with the provided DB handle.
func NewVisitRepo(db *sql.DB, d database.Dialect) *VisitRepo {
	return &VisitRepo{db: db, d: d}
}

const visitColumns = `v.id, v.player_id, v.casino_id, v.check_in_date, v.check_out_date`

func scanVisit(sc interface{ Scan(...any) error }, extra ...any) (*model.Visit, error) {
	var (
		v        model.Visit
		checkOut sql.NullTime
	)
	dest := append([]any{&v.ID, &v.PlayerID, &v.CasinoID, &v.CheckInDate, &checkOut}, extra...)
	if err := sc.Scan(dest...); err != nil {
		return nil, err
	}
	v.CheckInDate = v.CheckInDate.UTC()
	if checkOut.Valid {
		t := checkOut.Time.UTC()
		v.CheckOutDate = &t
	}
	return &v, nil
}

// GetByID returns ErrVisitNotFound if no row matches.
func (r *VisitRepo) GetByID(ctx context.Context, id string) (*model.Visit, error) {
	return r.get(ctx, r.db, id)
}

// GetTx is GetByID inside an existing transaction.
func (r *VisitRepo) GetTx(ctx context.Context, tx *sql.Tx, id string) (*model.Visit, error) {
	return r.get(ctx, tx, id)
}

func (r *VisitRepo) get(ctx context.Context, q queryer, id string) (*model.Visit, error) {
	v, err := scanVisit(q.QueryRowContext(ctx, r.d.Rebind(`SELECT `+visitColumns+` FROM visit v WHERE v.id = ?`), id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrVisitNotFound
		}
		return nil, err
	}
	return v, nil
}

// OpenByPlayer returns the player's open visit, or nil when there is none.
func (r *VisitRepo) OpenByPlayer(ctx context.Context, playerID string) (*model.Visit, error) {
	return r.openByPlayer(ctx, r.db, playerID)
}

// OpenByPlayerTx is OpenByPlayer inside an existing transaction.
func (r *VisitRepo) OpenByPlayerTx(ctx context.Context, tx *sql.Tx, playerID string) (*model.Visit, error) {
	return r.openByPlayer(ctx, tx, playerID)
}

func (r *VisitRepo) openByPlayer(ctx context.Context, q queryer, playerID string) (*model.Visit, error) {
	v, err := scanVisit(q.QueryRowContext(ctx,
		r.d.Rebind(`SELECT `+visitColumns+` FROM visit v WHERE v.player_id = ? AND v.check_out_date IS NULL`), playerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return v, nil
}

// InsertTx inserts an open visit. A unique violation on the open-visit
// index is reported as ErrDuplicateOpenVisit; the transaction is then
// unusable on some backends and must be rolled back.
func (r *VisitRepo) InsertTx(ctx context.Context, tx *sql.Tx, v *model.Visit) error {
	q := r.d.Rebind(`INSERT INTO visit (id, player_id, casino_id, check_in_date) VALUES (?, ?, ?, ?)`)
	if _, err := tx.ExecContext(ctx, q, v.ID, v.PlayerID, v.CasinoID, v.CheckInDate); err != nil {
		if c, ok := r.d.UniqueViolation(err); ok && c == database.ConstraintOpenVisit {
			return fmt.Errorf("%w: player %s", ErrDuplicateOpenVisit, v.PlayerID)
		}
		return err
	}
	return nil
}

// CloseTx stamps check_out_date if the visit is still open. It reports
// whether a row changed, so a concurrent check-out loses cleanly.
func (r *VisitRepo) CloseTx(ctx context.Context, tx *sql.Tx, id string, at time.Time) (bool, error) {
	res, err := tx.ExecContext(ctx,
		r.d.Rebind(`UPDATE visit SET check_out_date = ? WHERE id = ? AND check_out_date IS NULL`), at, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ListOpenByCasino returns the casino's open visits with the player's
// display name, oldest check-in first.
func (r *VisitRepo) ListOpenByCasino(ctx context.Context, casinoID string) ([]model.Visit, error) {
	q := r.d.Rebind(`SELECT ` + visitColumns + `, p.first_name, p.last_name
FROM visit v
JOIN player p ON p.id = v.player_id
WHERE v.casino_id = ? AND v.check_out_date IS NULL
ORDER BY v.check_in_date, v.id`)
	rows, err := r.db.QueryContext(ctx, q, casinoID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Visit
	for rows.Next() {
		var first, last string
		v, err := scanVisit(rows, &first, &last)
		if err != nil {
			return nil, err
		}
		v.PlayerName = model.Player{FirstName: first, LastName: last}.FullName()
		out = append(out, *v)
	}
	return out, rows.Err()
}
