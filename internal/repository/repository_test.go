package repository_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/iliyamo/casino-floor/internal/model"
	"github.com/iliyamo/casino-floor/internal/repository"
	"github.com/iliyamo/casino-floor/internal/repository/repotest"
)

type RepositorySuite struct {
	suite.Suite
	ctx   context.Context
	store *repository.Store
	floor repotest.Floor
	start time.Time
}

func TestRepositorySuite(t *testing.T) {
	suite.Run(t, new(RepositorySuite))
}

func (s *RepositorySuite) SetupTest() {
	s.ctx = context.Background()
	s.store = repotest.NewStore(s.T())
	s.floor = repotest.Seed(s.T(), s.store, 3)
	s.start = time.Date(2024, 3, 1, 20, 0, 0, 0, time.UTC)
}

func (s *RepositorySuite) openVisit(playerID string) model.Visit {
	v := model.Visit{ID: uuid.NewString(), PlayerID: playerID, CasinoID: s.floor.Casino.ID, CheckInDate: s.start}
	s.Require().NoError(s.store.WithTx(s.ctx, func(tx *sql.Tx) error {
		return s.store.Visits.InsertTx(s.ctx, tx, &v)
	}))
	return v
}

func (s *RepositorySuite) newSlip(v model.Visit, table model.GamingTable, seat int) *model.RatingSlip {
	return &model.RatingSlip{
		ID:            uuid.NewString(),
		PlayerID:      v.PlayerID,
		VisitID:       v.ID,
		GamingTableID: table.ID,
		SeatNumber:    seat,
		AverageBet:    decimal.RequireFromString("25.50"),
		CashIn:        decimal.NewNullDecimal(decimal.NewFromInt(500)),
		StartTime:     s.start,
		GameSettings:  *table.Settings,
	}
}

func (s *RepositorySuite) insert(slip *model.RatingSlip) error {
	return s.store.WithTx(s.ctx, func(tx *sql.Tx) error {
		return s.store.Slips.InsertTx(s.ctx, tx, slip)
	})
}

func (s *RepositorySuite) TestTableJoinsActiveSettings() {
	tbl, err := s.store.Tables.GetByID(s.ctx, s.floor.Blackjack.ID)
	s.Require().NoError(err)
	s.Require().NotNil(tbl.Settings)
	s.Equal(6, tbl.SeatsAvailable())
	s.Equal(1.5, tbl.Settings.HouseEdge)
	s.Require().NotNil(tbl.Settings.PointsConversionRate)
	s.Equal(10.0, *tbl.Settings.PointsConversionRate)

	rl, err := s.store.Tables.GetByID(s.ctx, s.floor.Roulette.ID)
	s.Require().NoError(err)
	s.Nil(rl.Settings.PointMultiplier)
	s.Nil(rl.Settings.PointsConversionRate)

	tables, err := s.store.Tables.ListByCasino(s.ctx, s.floor.Casino.ID)
	s.Require().NoError(err)
	s.Len(tables, 2)

	_, err = s.store.Tables.GetByID(s.ctx, uuid.NewString())
	s.ErrorIs(err, repository.ErrTableNotFound)
}

func (s *RepositorySuite) TestActivateSettingsReplacesBinding() {
	gs := model.GameSettings{ID: uuid.NewString(), Name: "Blackjack 7", HouseEdge: 2, AverageRoundsPerHour: 50, SeatsAvailable: 7}
	s.Require().NoError(s.store.Tables.CreateSettings(s.ctx, &gs))
	repotest.Activate(s.T(), s.store, s.floor.Blackjack.ID, gs.ID)

	tbl, err := s.store.Tables.GetByID(s.ctx, s.floor.Blackjack.ID)
	s.Require().NoError(err)
	s.Equal(7, tbl.SeatsAvailable())
	s.Equal(gs.ID, tbl.Settings.ID)
}

func (s *RepositorySuite) TestSlipRoundTrip() {
	v := s.openVisit(s.floor.Players[0].ID)
	slip := s.newSlip(v, s.floor.Blackjack, 2)
	s.Require().NoError(s.insert(slip))

	got, err := s.store.Slips.Get(s.ctx, slip.ID)
	s.Require().NoError(err)
	s.True(got.IsOpen())
	s.True(got.AverageBet.Equal(decimal.RequireFromString("25.5")))
	s.True(got.CashIn.Valid)
	s.True(got.CashIn.Decimal.Equal(decimal.NewFromInt(500)))
	s.False(got.ChipsBrought.Valid)
	s.True(got.StartTime.Equal(s.start))
	s.Equal("Blackjack", got.GameSettings.Name)
	s.Equal(6, got.GameSettings.SeatsAvailable)
	s.Nil(got.PointsEarned)
	s.Nil(got.PreviousSlipID)

	_, err = s.store.Slips.Get(s.ctx, uuid.NewString())
	s.ErrorIs(err, repository.ErrSessionNotFound)
}

func (s *RepositorySuite) TestInsertMapsUniqueViolations() {
	v1 := s.openVisit(s.floor.Players[0].ID)
	v2 := s.openVisit(s.floor.Players[1].ID)
	s.Require().NoError(s.insert(s.newSlip(v1, s.floor.Blackjack, 3)))

	err := s.insert(s.newSlip(v2, s.floor.Blackjack, 3))
	s.ErrorIs(err, repository.ErrSeatTaken)
	s.ErrorIs(err, repository.ErrConflict)

	err = s.insert(s.newSlip(v1, s.floor.Roulette, 1))
	s.ErrorIs(err, repository.ErrPlayerAlreadyRated)
}

func (s *RepositorySuite) TestCloseIsConditional() {
	v := s.openVisit(s.floor.Players[0].ID)
	slip := s.newSlip(v, s.floor.Blackjack, 1)
	s.Require().NoError(s.insert(slip))

	end := s.start.Add(30 * time.Minute)
	var first, second bool
	s.Require().NoError(s.store.WithTx(s.ctx, func(tx *sql.Tx) error {
		var err error
		if first, err = s.store.Slips.CloseTx(s.ctx, tx, slip.ID, end, 113); err != nil {
			return err
		}
		second, err = s.store.Slips.CloseTx(s.ctx, tx, slip.ID, end.Add(time.Minute), 200)
		return err
	}))
	s.True(first)
	s.False(second)

	got, err := s.store.Slips.Get(s.ctx, slip.ID)
	s.Require().NoError(err)
	s.False(got.IsOpen())
	s.True(got.EndTime.Equal(end))
	s.Equal(int64(113), *got.PointsEarned)

	// seat and player are free again
	v2 := s.openVisit(s.floor.Players[1].ID)
	s.NoError(s.insert(s.newSlip(v2, s.floor.Blackjack, 1)))
	s.NoError(s.insert(s.newSlip(v, s.floor.Blackjack, 2)))
}

func (s *RepositorySuite) TestUpdateDetails() {
	v := s.openVisit(s.floor.Players[0].ID)
	slip := s.newSlip(v, s.floor.Blackjack, 1)
	s.Require().NoError(s.insert(slip))

	bet := decimal.NewFromInt(40)
	chips := decimal.RequireFromString("120.25")
	start := s.start.Add(-15 * time.Minute)
	var changed bool
	s.Require().NoError(s.store.WithTx(s.ctx, func(tx *sql.Tx) error {
		var err error
		changed, err = s.store.Slips.UpdateDetailsTx(s.ctx, tx, slip.ID, repository.SlipDetails{
			AverageBet: &bet, ChipsBrought: &chips, StartTime: &start,
		})
		return err
	}))
	s.True(changed)

	got, err := s.store.Slips.Get(s.ctx, slip.ID)
	s.Require().NoError(err)
	s.True(got.AverageBet.Equal(bet))
	s.True(got.ChipsBrought.Decimal.Equal(chips))
	s.True(got.CashIn.Decimal.Equal(decimal.NewFromInt(500)))
	s.True(got.StartTime.Equal(start))

	err = s.store.WithTx(s.ctx, func(tx *sql.Tx) error {
		_, err := s.store.Slips.UpdateDetailsTx(s.ctx, tx, slip.ID, repository.SlipDetails{})
		return err
	})
	s.ErrorIs(err, repository.ErrValidation)
}

func (s *RepositorySuite) TestOpenLookupsAndLists() {
	v := s.openVisit(s.floor.Players[0].ID)
	slip := s.newSlip(v, s.floor.Roulette, 4)
	s.Require().NoError(s.insert(slip))

	s.Require().NoError(s.store.WithTx(s.ctx, func(tx *sql.Tx) error {
		byPlayer, err := s.store.Slips.OpenByPlayerTx(s.ctx, tx, v.PlayerID)
		s.Require().NoError(err)
		s.Require().NotNil(byPlayer)
		s.Equal(slip.ID, byPlayer.ID)

		bySeat, err := s.store.Slips.OpenBySeatTx(s.ctx, tx, s.floor.Roulette.ID, 4)
		s.Require().NoError(err)
		s.Require().NotNil(bySeat)

		free, err := s.store.Slips.OpenBySeatTx(s.ctx, tx, s.floor.Roulette.ID, 5)
		s.Require().NoError(err)
		s.Nil(free)

		open, err := s.store.Slips.ListOpenByVisitTx(s.ctx, tx, v.ID)
		s.Require().NoError(err)
		s.Len(open, 1)
		return nil
	}))

	open, err := s.store.Slips.ListOpenByCasino(s.ctx, s.floor.Casino.ID)
	s.Require().NoError(err)
	s.Len(open, 1)

	other, err := s.store.Slips.ListOpenByCasino(s.ctx, s.floor.OtherCasino.ID)
	s.Require().NoError(err)
	s.Empty(other)
}

func (s *RepositorySuite) TestVisits() {
	p := s.floor.Players[0]
	v := s.openVisit(p.ID)

	open, err := s.store.Visits.OpenByPlayer(s.ctx, p.ID)
	s.Require().NoError(err)
	s.Require().NotNil(open)
	s.Equal(v.ID, open.ID)
	s.True(open.CheckInDate.Equal(s.start))

	dup := model.Visit{ID: uuid.NewString(), PlayerID: p.ID, CasinoID: s.floor.Casino.ID, CheckInDate: s.start}
	err = s.store.WithTx(s.ctx, func(tx *sql.Tx) error { return s.store.Visits.InsertTx(s.ctx, tx, &dup) })
	s.ErrorIs(err, repository.ErrDuplicateOpenVisit)

	active, err := s.store.Visits.ListOpenByCasino(s.ctx, s.floor.Casino.ID)
	s.Require().NoError(err)
	s.Require().Len(active, 1)
	s.Equal("Player1 Test", active[0].PlayerName)

	var closed, again bool
	s.Require().NoError(s.store.WithTx(s.ctx, func(tx *sql.Tx) error {
		var err error
		if closed, err = s.store.Visits.CloseTx(s.ctx, tx, v.ID, s.start.Add(time.Hour)); err != nil {
			return err
		}
		again, err = s.store.Visits.CloseTx(s.ctx, tx, v.ID, s.start.Add(2*time.Hour))
		return err
	}))
	s.True(closed)
	s.False(again)

	got, err := s.store.Visits.GetByID(s.ctx, v.ID)
	s.Require().NoError(err)
	s.False(got.IsOpen())

	none, err := s.store.Visits.OpenByPlayer(s.ctx, p.ID)
	s.Require().NoError(err)
	s.Nil(none)
}

func (s *RepositorySuite) TestPlayerSearch() {
	ana := model.Player{ID: uuid.NewString(), FirstName: "Ana", LastName: "Lopez", Email: "Ana.Lopez@example.com", PhoneNumber: "555-0100"}
	bob := model.Player{ID: uuid.NewString(), FirstName: "Bo_b", LastName: "Ng", Email: "bob@example.com", PhoneNumber: "555-0199"}
	s.Require().NoError(s.store.Players.Create(s.ctx, &ana))
	s.Require().NoError(s.store.Players.Create(s.ctx, &bob))
	slip := s.newSlip(s.openVisit(ana.ID), s.floor.Blackjack, 1)
	s.Require().NoError(s.insert(slip))

	found, err := s.store.Players.Search(s.ctx, "ana.LOPEZ", 10)
	s.Require().NoError(err)
	s.Require().Len(found, 1)
	s.Equal(ana.ID, found[0].ID)
	s.Require().NotNil(found[0].OpenSlipID)
	s.Equal(slip.ID, *found[0].OpenSlipID)

	found, err = s.store.Players.Search(s.ctx, "0199", 10)
	s.Require().NoError(err)
	s.Require().Len(found, 1)
	s.Equal(bob.ID, found[0].ID)
	s.Nil(found[0].OpenSlipID)

	// wildcards in the term are literal
	found, err = s.store.Players.Search(s.ctx, "o_b", 10)
	s.Require().NoError(err)
	s.Require().Len(found, 1)
	s.Equal(bob.ID, found[0].ID)
	found, err = s.store.Players.Search(s.ctx, "%", 10)
	s.Require().NoError(err)
	s.Empty(found)

	found, err = s.store.Players.Search(s.ctx, "player", 2)
	s.Require().NoError(err)
	s.Len(found, 2)
}

func (s *RepositorySuite) TestCasinoList() {
	casinos, err := s.store.Casinos.List(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(casinos, 2)
	s.Equal("Hilltop", casinos[0].Name)
	s.Equal("Riverside", casinos[1].Name)
}

func (s *RepositorySuite) TestWithTxRollsBackOnError() {
	boom := errors.New("boom")
	v := model.Visit{ID: uuid.NewString(), PlayerID: s.floor.Players[2].ID, CasinoID: s.floor.Casino.ID, CheckInDate: s.start}
	err := s.store.WithTx(s.ctx, func(tx *sql.Tx) error {
		if err := s.store.Visits.InsertTx(s.ctx, tx, &v); err != nil {
			return err
		}
		return boom
	})
	s.ErrorIs(err, boom)
	_, err = s.store.Visits.GetByID(s.ctx, v.ID)
	s.ErrorIs(err, repository.ErrVisitNotFound)
}

func TestValidationError(t *testing.T) {
	err := repository.Validation("seat_number must be >= 1", "player_id is required")
	assert.ErrorIs(t, err, repository.ErrValidation)
	assert.Contains(t, err.Error(), "seat_number must be >= 1; player_id is required")
	assert.NotErrorIs(t, err, repository.ErrConflict)
}

func TestUnavailable(t *testing.T) {
	err := repository.Unavailable(context.DeadlineExceeded)
	require.ErrorIs(t, err, repository.ErrStoreUnavailable)
	assert.NoError(t, repository.Unavailable(nil))
	assert.Equal(t, sql.ErrNoRows, repository.Unavailable(sql.ErrNoRows))
}
