package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/casino-floor/internal/database"
	"github.com/iliyamo/casino-floor/internal/model"
)

// TableRepo reads gaming tables joined with their active settings binding.
// Only one binding per table may be active; the store enforces it with a
// partial unique index.
type TableRepo struct {
	db *sql.DB
	d  database.Dialect
}

// NewTableRepo constructs a TableRepo with the provided DB handle.
func NewTableRepo(db *sql.DB, d database.Dialect) *TableRepo {
	return &TableRepo{db: db, d: d}
}

const tableSelect = `SELECT t.id, t.casino_id, t.name, t.table_number, t.type,
       gs.id, gs.name, gs.house_edge, gs.average_rounds_per_hour,
       gs.point_multiplier, gs.points_conversion_rate, gs.seats_available
FROM gamingtable t
LEFT JOIN gamingtablesettings gts ON gts.gaming_table_id = t.id AND gts.is_active = TRUE
LEFT JOIN gamesettings gs ON gs.id = gts.game_settings_id`

func scanTable(sc interface{ Scan(...any) error }) (*model.GamingTable, error) {
	var (
		t          model.GamingTable
		gsID       sql.NullString
		gsName     sql.NullString
		houseEdge  sql.NullFloat64
		rph        sql.NullFloat64
		multiplier sql.NullFloat64
		conversion sql.NullFloat64
		seats      sql.NullInt64
	)
	if err := sc.Scan(&t.ID, &t.CasinoID, &t.Name, &t.TableNumber, &t.Type,
		&gsID, &gsName, &houseEdge, &rph, &multiplier, &conversion, &seats); err != nil {
		return nil, err
	}
	if gsID.Valid {
		gs := &model.GameSettings{
			ID:                   gsID.String,
			Name:                 gsName.String,
			HouseEdge:            houseEdge.Float64,
			AverageRoundsPerHour: rph.Float64,
			SeatsAvailable:       int(seats.Int64),
		}
		if multiplier.Valid {
			v := multiplier.Float64
			gs.PointMultiplier = &v
		}
		if conversion.Valid {
			v := conversion.Float64
			gs.PointsConversionRate = &v
		}
		t.Settings = gs
	}
	return &t, nil
}

// GetByID returns ErrTableNotFound if no row matches.
func (r *TableRepo) GetByID(ctx context.Context, id string) (*model.GamingTable, error) {
	return r.get(ctx, r.db, id)
}

// GetTx is GetByID inside an existing transaction. The settings it returns
// are the ones a new slip snapshots.
func (r *TableRepo) GetTx(ctx context.Context, tx *sql.Tx, id string) (*model.GamingTable, error) {
	return r.get(ctx, tx, id)
}

func (r *TableRepo) get(ctx context.Context, q queryer, id string) (*model.GamingTable, error) {
	t, err := scanTable(q.QueryRowContext(ctx, r.d.Rebind(tableSelect+` WHERE t.id = ?`), id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTableNotFound
		}
		return nil, err
	}
	return t, nil
}

// ListByCasino returns every table of a casino ordered by table number.
func (r *TableRepo) ListByCasino(ctx context.Context, casinoID string) ([]model.GamingTable, error) {
	rows, err := r.db.QueryContext(ctx, r.d.Rebind(tableSelect+` WHERE t.casino_id = ? ORDER BY t.table_number, t.name, t.id`), casinoID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.GamingTable
	for rows.Next() {
		t, err := scanTable(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// Create inserts a gaming table without settings.
func (r *TableRepo) Create(ctx context.Context, t *model.GamingTable) error {
	q := r.d.Rebind(`INSERT INTO gamingtable (id, casino_id, name, table_number, type) VALUES (?, ?, ?, ?, ?)`)
	_, err := r.db.ExecContext(ctx, q, t.ID, t.CasinoID, t.Name, t.TableNumber, t.Type)
	return err
}

// CreateSettings inserts a game settings row.
func (r *TableRepo) CreateSettings(ctx context.Context, gs *model.GameSettings) error {
	q := r.d.Rebind(`INSERT INTO gamesettings (id, name, house_edge, average_rounds_per_hour, point_multiplier, points_conversion_rate, seats_available)
VALUES (?, ?, ?, ?, ?, ?, ?)`)
	_, err := r.db.ExecContext(ctx, q, gs.ID, gs.Name, gs.HouseEdge, gs.AverageRoundsPerHour,
		nullFloat(gs.PointMultiplier), nullFloat(gs.PointsConversionRate), gs.SeatsAvailable)
	return err
}

// ActivateSettingsTx makes settingsID the active binding of tableID,
// deactivating the previous one. Open slips keep the snapshot they were
// created with.
func (r *TableRepo) ActivateSettingsTx(ctx context.Context, tx *sql.Tx, bindingID, tableID, settingsID string, at time.Time) error {
	if _, err := tx.ExecContext(ctx,
		r.d.Rebind(`UPDATE gamingtablesettings SET is_active = FALSE WHERE gaming_table_id = ? AND is_active = TRUE`),
		tableID); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx,
		r.d.Rebind(`INSERT INTO gamingtablesettings (id, gaming_table_id, game_settings_id, active_from, is_active) VALUES (?, ?, ?, ?, TRUE)`),
		bindingID, tableID, settingsID, at)
	return err
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
