package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/casino-floor/internal/database"
	"github.com/iliyamo/casino-floor/internal/model"
)

// RatingSlipRepo persists rating slips. A slip is open while end_time is
// NULL. The store allows one open slip per player and one per
// (gaming_table_id, seat_number); InsertTx turns violations of either index
// into ErrPlayerAlreadyRated or ErrSeatTaken.
type RatingSlipRepo struct {
	db *sql.DB
	d  database.Dialect
}

// NewRatingSlipRepo constructs a RatingSlipRepo with the provided DB handle.
func NewRatingSlipRepo(db *sql.DB, d database.Dialect) *RatingSlipRepo {
	return &RatingSlipRepo{db: db, d: d}
}

const slipColumns = `rs.id, rs.player_id, rs.visit_id, rs.gaming_table_id, rs.seat_number,
       rs.average_bet, rs.cash_in, rs.chips_brought, rs.chips_taken,
       rs.start_time, rs.end_time, rs.game_settings, rs.points_earned, rs.previous_slip_id`

func scanSlip(sc interface{ Scan(...any) error }) (*model.RatingSlip, error) {
	var (
		s        model.RatingSlip
		endTime  sql.NullTime
		settings []byte
		points   sql.NullInt64
		previous sql.NullString
	)
	if err := sc.Scan(&s.ID, &s.PlayerID, &s.VisitID, &s.GamingTableID, &s.SeatNumber,
		&s.AverageBet, &s.CashIn, &s.ChipsBrought, &s.ChipsTaken,
		&s.StartTime, &endTime, &settings, &points, &previous); err != nil {
		return nil, err
	}
	s.StartTime = s.StartTime.UTC()
	if endTime.Valid {
		t := endTime.Time.UTC()
		s.EndTime = &t
	}
	if len(settings) > 0 {
		if err := json.Unmarshal(settings, &s.GameSettings); err != nil {
			return nil, fmt.Errorf("decode game_settings of slip %s: %w", s.ID, err)
		}
	}
	if points.Valid {
		p := points.Int64
		s.PointsEarned = &p
	}
	if previous.Valid {
		id := previous.String
		s.PreviousSlipID = &id
	}
	return &s, nil
}

// Get returns ErrSessionNotFound if no row matches.
func (r *RatingSlipRepo) Get(ctx context.Context, id string) (*model.RatingSlip, error) {
	return r.get(ctx, r.db, id)
}

// GetTx is Get inside an existing transaction.
func (r *RatingSlipRepo) GetTx(ctx context.Context, tx *sql.Tx, id string) (*model.RatingSlip, error) {
	return r.get(ctx, tx, id)
}

func (r *RatingSlipRepo) get(ctx context.Context, q queryer, id string) (*model.RatingSlip, error) {
	s, err := scanSlip(q.QueryRowContext(ctx, r.d.Rebind(`SELECT `+slipColumns+` FROM ratingslip rs WHERE rs.id = ?`), id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return s, nil
}

// OpenByPlayerTx returns the player's open slip, or nil when there is none.
func (r *RatingSlipRepo) OpenByPlayerTx(ctx context.Context, tx *sql.Tx, playerID string) (*model.RatingSlip, error) {
	return r.openOne(ctx, tx, `rs.player_id = ?`, playerID)
}

// OpenBySeatTx returns the open slip on a seat, or nil when the seat is free.
func (r *RatingSlipRepo) OpenBySeatTx(ctx context.Context, tx *sql.Tx, tableID string, seat int) (*model.RatingSlip, error) {
	return r.openOne(ctx, tx, `rs.gaming_table_id = ? AND rs.seat_number = ?`, tableID, seat)
}

func (r *RatingSlipRepo) openOne(ctx context.Context, tx *sql.Tx, where string, args ...any) (*model.RatingSlip, error) {
	q := r.d.Rebind(`SELECT ` + slipColumns + ` FROM ratingslip rs WHERE ` + where + ` AND rs.end_time IS NULL`)
	s, err := scanSlip(tx.QueryRowContext(ctx, q, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return s, nil
}

// InsertTx inserts a new open slip with its settings snapshot.
func (r *RatingSlipRepo) InsertTx(ctx context.Context, tx *sql.Tx, s *model.RatingSlip) error {
	settings, err := json.Marshal(s.GameSettings)
	if err != nil {
		return err
	}
	var previous sql.NullString
	if s.PreviousSlipID != nil {
		previous = sql.NullString{String: *s.PreviousSlipID, Valid: true}
	}
	q := r.d.Rebind(`INSERT INTO ratingslip
(id, player_id, visit_id, gaming_table_id, seat_number, average_bet, cash_in, chips_brought, chips_taken, start_time, game_settings, previous_slip_id)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err = tx.ExecContext(ctx, q, s.ID, s.PlayerID, s.VisitID, s.GamingTableID, s.SeatNumber,
		s.AverageBet, s.CashIn, s.ChipsBrought, s.ChipsTaken, s.StartTime, string(settings), previous)
	if err != nil {
		if c, ok := r.d.UniqueViolation(err); ok {
			switch c {
			case database.ConstraintOpenSeat:
				return fmt.Errorf("%w: table %s seat %d", ErrSeatTaken, s.GamingTableID, s.SeatNumber)
			case database.ConstraintOpenPlayerSlip:
				return fmt.Errorf("%w: player %s", ErrPlayerAlreadyRated, s.PlayerID)
			}
		}
		return err
	}
	return nil
}

// CloseTx stamps end_time and points_earned if the slip is still open. It
// reports whether a row changed; false means another writer closed it
// first.
func (r *RatingSlipRepo) CloseTx(ctx context.Context, tx *sql.Tx, id string, end time.Time, points int64) (bool, error) {
	res, err := tx.ExecContext(ctx,
		r.d.Rebind(`UPDATE ratingslip SET end_time = ?, points_earned = ? WHERE id = ? AND end_time IS NULL`),
		end, points, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// SlipDetails holds the editable figures of an open slip. Nil fields are
// left unchanged.
type SlipDetails struct {
	AverageBet   *decimal.Decimal
	CashIn       *decimal.Decimal
	ChipsBrought *decimal.Decimal
	ChipsTaken   *decimal.Decimal
	StartTime    *time.Time
}

// Empty reports whether no field is set.
func (d SlipDetails) Empty() bool {
	return d.AverageBet == nil && d.CashIn == nil && d.ChipsBrought == nil &&
		d.ChipsTaken == nil && d.StartTime == nil
}

// UpdateDetailsTx applies the set fields to an open slip. It reports
// whether a row changed; false means the slip is closed or missing.
func (r *RatingSlipRepo) UpdateDetailsTx(ctx context.Context, tx *sql.Tx, id string, d SlipDetails) (bool, error) {
	if d.Empty() {
		return false, Validation("no fields to update")
	}
	var (
		sets []string
		args []any
	)
	if d.AverageBet != nil {
		sets = append(sets, "average_bet = ?")
		args = append(args, *d.AverageBet)
	}
	if d.CashIn != nil {
		sets = append(sets, "cash_in = ?")
		args = append(args, *d.CashIn)
	}
	if d.ChipsBrought != nil {
		sets = append(sets, "chips_brought = ?")
		args = append(args, *d.ChipsBrought)
	}
	if d.ChipsTaken != nil {
		sets = append(sets, "chips_taken = ?")
		args = append(args, *d.ChipsTaken)
	}
	if d.StartTime != nil {
		sets = append(sets, "start_time = ?")
		args = append(args, d.StartTime.UTC())
	}
	args = append(args, id)
	q := r.d.Rebind(`UPDATE ratingslip SET ` + strings.Join(sets, ", ") + ` WHERE id = ? AND end_time IS NULL`)
	res, err := tx.ExecContext(ctx, q, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ListOpenByCasino returns the open slips at tables of the casino ordered
// by table and seat. This is the input of the seat maps.
func (r *RatingSlipRepo) ListOpenByCasino(ctx context.Context, casinoID string) ([]model.RatingSlip, error) {
	q := r.d.Rebind(`SELECT ` + slipColumns + `
FROM ratingslip rs
JOIN gamingtable t ON t.id = rs.gaming_table_id
WHERE t.casino_id = ? AND rs.end_time IS NULL
ORDER BY rs.gaming_table_id, rs.seat_number`)
	return r.list(ctx, r.db, q, casinoID)
}

// ListOpenByVisitTx returns the open slips of a visit.
func (r *RatingSlipRepo) ListOpenByVisitTx(ctx context.Context, tx *sql.Tx, visitID string) ([]model.RatingSlip, error) {
	q := r.d.Rebind(`SELECT ` + slipColumns + ` FROM ratingslip rs WHERE rs.visit_id = ? AND rs.end_time IS NULL ORDER BY rs.start_time, rs.id`)
	return r.list(ctx, tx, q, visitID)
}

// ListByVisit returns every slip of a visit, oldest first.
func (r *RatingSlipRepo) ListByVisit(ctx context.Context, visitID string) ([]model.RatingSlip, error) {
	q := r.d.Rebind(`SELECT ` + slipColumns + ` FROM ratingslip rs WHERE rs.visit_id = ? ORDER BY rs.start_time, rs.id`)
	return r.list(ctx, r.db, q, visitID)
}

func (r *RatingSlipRepo) list(ctx context.Context, q queryer, query string, args ...any) ([]model.RatingSlip, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.RatingSlip
	for rows.Next() {
		s, err := scanSlip(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}
