package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/casino-floor/internal/database"
	"github.com/iliyamo/casino-floor/internal/model"
)

// CasinoRepo reads and registers casinos. Casino maintenance is outside
// this service; Create exists for provisioning and fixtures.
type CasinoRepo struct {
	db *sql.DB
	d  database.Dialect
}

// NewCasinoRepo constructs a CasinoRepo with the provided DB handle.
func NewCasinoRepo(db *sql.DB, d database.Dialect) *CasinoRepo {
	return &CasinoRepo{db: db, d: d}
}

// Create inserts a casino. The caller supplies the id.
func (r *CasinoRepo) Create(ctx context.Context, c *model.Casino) error {
	q := r.d.Rebind(`INSERT INTO casino (id, name, location) VALUES (?, ?, ?)`)
	_, err := r.db.ExecContext(ctx, q, c.ID, c.Name, c.Location)
	return err
}

// GetByID returns ErrCasinoNotFound if no row matches.
func (r *CasinoRepo) GetByID(ctx context.Context, id string) (*model.Casino, error) {
	return r.get(ctx, r.db, id)
}

// GetByIDTx is GetByID inside an existing transaction.
func (r *CasinoRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id string) (*model.Casino, error) {
	return r.get(ctx, tx, id)
}

func (r *CasinoRepo) get(ctx context.Context, q queryer, id string) (*model.Casino, error) {
	var c model.Casino
	err := q.QueryRowContext(ctx, r.d.Rebind(`SELECT id, name, location FROM casino WHERE id = ?`), id).
		Scan(&c.ID, &c.Name, &c.Location)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCasinoNotFound
		}
		return nil, err
	}
	return &c, nil
}

// List returns all casinos ordered by name.
func (r *CasinoRepo) List(ctx context.Context) ([]model.Casino, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, location FROM casino ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Casino
	for rows.Next() {
		var c model.Casino
		if err := rows.Scan(&c.ID, &c.Name, &c.Location); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
