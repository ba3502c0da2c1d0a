package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/iliyamo/casino-floor/internal/database"
	"github.com/iliyamo/casino-floor/internal/model"
)

// PlayerRepo exposes the player rows needed to seat and label players.
// Profile management happens elsewhere.
type PlayerRepo struct {
	db *sql.DB
	d  database.Dialect
}

// NewPlayerRepo constructs a PlayerRepo with the provided DB handle.
func NewPlayerRepo(db *sql.DB, d database.Dialect) *PlayerRepo {
	return &PlayerRepo{db: db, d: d}
}

const playerColumns = `id, first_name, last_name, email, phone_number`

// Create inserts a player. The caller supplies the id.
func (r *PlayerRepo) Create(ctx context.Context, p *model.Player) error {
	q := r.d.Rebind(`INSERT INTO player (` + playerColumns + `) VALUES (?, ?, ?, ?, ?)`)
	_, err := r.db.ExecContext(ctx, q, p.ID, p.FirstName, p.LastName, p.Email, p.PhoneNumber)
	return err
}

// GetByID returns ErrPlayerNotFound if no row matches.
func (r *PlayerRepo) GetByID(ctx context.Context, id string) (*model.Player, error) {
	return r.get(ctx, r.db, id)
}

// GetByIDTx is GetByID inside an existing transaction.
func (r *PlayerRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id string) (*model.Player, error) {
	return r.get(ctx, tx, id)
}

func (r *PlayerRepo) get(ctx context.Context, q queryer, id string) (*model.Player, error) {
	var p model.Player
	err := q.QueryRowContext(ctx, r.d.Rebind(`SELECT `+playerColumns+` FROM player WHERE id = ?`), id).
		Scan(&p.ID, &p.FirstName, &p.LastName, &p.Email, &p.PhoneNumber)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPlayerNotFound
		}
		return nil, err
	}
	return &p, nil
}

// likeEscaper protects LIKE wildcards in user input. '!' is the escape
// character because none of the three dialects agree on a default.
var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

// Search finds up to limit players whose name, email or phone number
// contains term, ignoring case. Each result carries the player's open
// rating slip, if any.
func (r *PlayerRepo) Search(ctx context.Context, term string, limit int) ([]model.PlayerSearchResult, error) {
	pattern := "%" + likeEscaper.Replace(strings.ToLower(term)) + "%"
	q := r.d.Rebind(`
		SELECT p.id, p.first_name, p.last_name, p.email, p.phone_number, rs.id
		FROM player p
		LEFT JOIN ratingslip rs ON rs.player_id = p.id AND rs.end_time IS NULL
		WHERE LOWER(p.first_name) LIKE ? ESCAPE '!'
		   OR LOWER(p.last_name) LIKE ? ESCAPE '!'
		   OR LOWER(p.email) LIKE ? ESCAPE '!'
		   OR LOWER(p.phone_number) LIKE ? ESCAPE '!'
		ORDER BY p.last_name, p.first_name, p.id
		LIMIT ?`)
	rows, err := r.db.QueryContext(ctx, q, pattern, pattern, pattern, pattern, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.PlayerSearchResult{}
	for rows.Next() {
		var (
			res  model.PlayerSearchResult
			slip sql.NullString
		)
		if err := rows.Scan(&res.ID, &res.FirstName, &res.LastName, &res.Email, &res.PhoneNumber, &slip); err != nil {
			return nil, err
		}
		if slip.Valid {
			id := slip.String
			res.OpenSlipID = &id
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
