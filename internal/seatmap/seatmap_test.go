package seatmap

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/casino-floor/internal/model"
)

func table(id string, seats int) model.GamingTable {
	return model.GamingTable{ID: id, Settings: &model.GameSettings{SeatsAvailable: seats}}
}

func slip(id, tableID string, seat int, bet int64) model.RatingSlip {
	return model.RatingSlip{ID: id, GamingTableID: tableID, SeatNumber: seat, AverageBet: decimal.NewFromInt(bet)}
}

func TestBuildProjectsOpenSlips(t *testing.T) {
	closedAt := time.Now()
	closed := slip("s3", "t1", 2, 100)
	closed.EndTime = &closedAt

	m, err := Build(table("t1", 7), []model.RatingSlip{
		slip("s1", "t1", 1, 25),
		slip("s2", "t1", 7, 75),
		closed,
		slip("s4", "t2", 3, 10),
	})
	require.NoError(t, err)
	require.Len(t, m, 7)

	for i, s := range m {
		assert.Equal(t, i+1, s.Number)
	}
	assert.Equal(t, "s1", m[0].Slip.ID)
	assert.Equal(t, "s2", m[6].Slip.ID)
	assert.False(t, m[1].Occupied(), "closed slip must not occupy its seat")
	assert.Equal(t, 2, m.Occupied())
	assert.Equal(t, []int{2, 3, 4, 5, 6}, m.Free())
	assert.True(t, m.AverageBet().Equal(decimal.NewFromInt(50)))
}

func TestBuildTableWithoutSettings(t *testing.T) {
	m, err := Build(model.GamingTable{ID: "t1"}, nil)
	require.NoError(t, err)
	assert.Empty(t, m)
}

func TestBuildRejectsOutOfRangeSeat(t *testing.T) {
	_, err := Build(table("t1", 5), []model.RatingSlip{slip("s1", "t1", 6, 25)})
	assert.ErrorIs(t, err, ErrInconsistent)

	_, err = Build(table("t1", 5), []model.RatingSlip{slip("s1", "t1", 0, 25)})
	assert.ErrorIs(t, err, ErrInconsistent)
}

func TestBuildRejectsDoubleOccupancy(t *testing.T) {
	_, err := Build(table("t1", 5), []model.RatingSlip{slip("s1", "t1", 3, 25), slip("s2", "t1", 3, 25)})
	assert.ErrorIs(t, err, ErrInconsistent)

	// the same slip delivered twice is not a conflict
	m, err := Build(table("t1", 5), []model.RatingSlip{slip("s1", "t1", 3, 25), slip("s1", "t1", 3, 25)})
	require.NoError(t, err)
	assert.Equal(t, 1, m.Occupied())
}

func TestSeatLookup(t *testing.T) {
	m, err := Build(table("t1", 3), []model.RatingSlip{slip("s1", "t1", 2, 25)})
	require.NoError(t, err)

	s, ok := m.Seat(2)
	require.True(t, ok)
	assert.True(t, s.Occupied())

	_, ok = m.Seat(4)
	assert.False(t, ok)
}

func TestAverageBetEmpty(t *testing.T) {
	assert.True(t, AverageBet(nil).IsZero())
	m, _ := Build(table("t1", 3), nil)
	assert.True(t, m.AverageBet().IsZero())
}
