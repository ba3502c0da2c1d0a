// Package repotest builds migrated in-memory stores with a small casino
// floor for tests of the layers above the repositories.
package repotest

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/casino-floor/internal/database"
	"github.com/iliyamo/casino-floor/internal/model"
	"github.com/iliyamo/casino-floor/internal/repository"
)

// NewStore opens a migrated in-memory SQLite store closed at test cleanup.
func NewStore(t testing.TB) *repository.Store {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(ctx, database.SQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	_, err = database.Migrate(ctx, db, database.SQLite)
	require.NoError(t, err)
	return repository.NewStore(db, database.SQLite)
}

// Floor is the seeded data.
type Floor struct {
	Casino      model.Casino
	OtherCasino model.Casino
	// Blackjack has 6 seats, 1.5% edge, 60 rounds/hour, multiplier 1 and
	// conversion 10.
	Blackjack model.GamingTable
	// Roulette has 8 seats and no multiplier or conversion rate set.
	Roulette model.GamingTable
	// Elsewhere is a table of OtherCasino.
	Elsewhere model.GamingTable
	Players   []model.Player
}

func f64(v float64) *float64 { return &v }

// Seed creates two casinos, three tables and the given number of players.
func Seed(t testing.TB, s *repository.Store, players int) Floor {
	t.Helper()
	ctx := context.Background()
	var f Floor

	f.Casino = model.Casino{ID: uuid.NewString(), Name: "Riverside", Location: "Dock 4"}
	f.OtherCasino = model.Casino{ID: uuid.NewString(), Name: "Hilltop", Location: "Ridge Rd"}
	require.NoError(t, s.Casinos.Create(ctx, &f.Casino))
	require.NoError(t, s.Casinos.Create(ctx, &f.OtherCasino))

	bj := model.GameSettings{ID: uuid.NewString(), Name: "Blackjack", HouseEdge: 1.5, AverageRoundsPerHour: 60,
		PointMultiplier: f64(1), PointsConversionRate: f64(10), SeatsAvailable: 6}
	rl := model.GameSettings{ID: uuid.NewString(), Name: "Roulette", HouseEdge: 5.26, AverageRoundsPerHour: 38, SeatsAvailable: 8}
	f.Blackjack = addTable(t, s, f.Casino.ID, "BJ-01", "blackjack", &bj)
	f.Roulette = addTable(t, s, f.Casino.ID, "RL-01", "roulette", &rl)

	bj2 := bj
	bj2.ID = uuid.NewString()
	f.Elsewhere = addTable(t, s, f.OtherCasino.ID, "BJ-01", "blackjack", &bj2)

	for i := 0; i < players; i++ {
		p := model.Player{ID: uuid.NewString(), FirstName: fmt.Sprintf("Player%d", i+1), LastName: "Test"}
		require.NoError(t, s.Players.Create(ctx, &p))
		f.Players = append(f.Players, p)
	}
	return f
}

func addTable(t testing.TB, s *repository.Store, casinoID, number, kind string, gs *model.GameSettings) model.GamingTable {
	t.Helper()
	ctx := context.Background()
	tbl := model.GamingTable{ID: uuid.NewString(), CasinoID: casinoID, Name: kind + " " + number, TableNumber: number, Type: kind}
	require.NoError(t, s.Tables.Create(ctx, &tbl))
	require.NoError(t, s.Tables.CreateSettings(ctx, gs))
	Activate(t, s, tbl.ID, gs.ID)
	tbl.Settings = gs
	return tbl
}

// Activate binds settingsID to the table.
func Activate(t testing.TB, s *repository.Store, tableID, settingsID string) {
	t.Helper()
	err := s.WithTx(context.Background(), func(tx *sql.Tx) error {
		return s.Tables.ActivateSettingsTx(context.Background(), tx, uuid.NewString(), tableID, settingsID, time.Now().UTC())
	})
	require.NoError(t, err)
}
