// Package seatmap projects open rating slips onto the seats of a table.
//
// A seat map has no storage of its own.  It is rebuilt from the current set
// of open slips whenever that set changes.
package seatmap

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/casino-floor/internal/model"
)

// ErrInconsistent is returned when the open slips cannot describe a valid
// occupancy of the table, e.g. a seat outside the table or two open slips
// on one seat.  Callers should refetch from the store.
var ErrInconsistent = errors.New("seat map inconsistent with open rating slips")

// Seat is the state of one seat.  Slip is nil for an empty seat.
type Seat struct {
	Number int               `json:"number"`
	Slip   *model.RatingSlip `json:"rating_slip,omitempty"`
}

// Occupied reports whether an open slip names this seat.
func (s Seat) Occupied() bool { return s.Slip != nil }

// SeatMap holds one entry per seat; seat n lives at index n-1.
type SeatMap []Seat

// Build derives the seat map of table from slips.  Closed slips and slips
// of other tables are ignored.
func Build(table model.GamingTable, slips []model.RatingSlip) (SeatMap, error) {
	m := make(SeatMap, table.SeatsAvailable())
	for i := range m {
		m[i].Number = i + 1
	}
	for i := range slips {
		s := slips[i]
		if s.GamingTableID != table.ID || !s.IsOpen() {
			continue
		}
		if !table.ValidSeat(s.SeatNumber) {
			return nil, fmt.Errorf("%w: slip %s names seat %d of table %s with %d seats",
				ErrInconsistent, s.ID, s.SeatNumber, table.ID, table.SeatsAvailable())
		}
		seat := &m[s.SeatNumber-1]
		if seat.Slip != nil && seat.Slip.ID != s.ID {
			return nil, fmt.Errorf("%w: seat %d of table %s held by %s and %s",
				ErrInconsistent, s.SeatNumber, table.ID, seat.Slip.ID, s.ID)
		}
		seat.Slip = &s
	}
	return m, nil
}

// Seat returns seat n and whether it exists.
func (m SeatMap) Seat(n int) (Seat, bool) {
	if n < 1 || n > len(m) {
		return Seat{}, false
	}
	return m[n-1], true
}

// Occupied returns the number of occupied seats.
func (m SeatMap) Occupied() int {
	n := 0
	for _, s := range m {
		if s.Occupied() {
			n++
		}
	}
	return n
}

// Free returns the seat numbers that are currently empty.
func (m SeatMap) Free() []int {
	out := make([]int, 0, len(m))
	for _, s := range m {
		if !s.Occupied() {
			out = append(out, s.Number)
		}
	}
	return out
}

// AverageBet returns the mean average bet of the open slips in the map,
// or zero when no seat is occupied.
func (m SeatMap) AverageBet() decimal.Decimal {
	slips := make([]model.RatingSlip, 0, len(m))
	for _, s := range m {
		if s.Slip != nil {
			slips = append(slips, *s.Slip)
		}
	}
	return AverageBet(slips)
}

// AverageBet returns sum(average_bet)/count over the open slips, or zero
// when there are none.
func AverageBet(slips []model.RatingSlip) decimal.Decimal {
	sum := decimal.Zero
	n := int64(0)
	for _, s := range slips {
		if !s.IsOpen() {
			continue
		}
		sum = sum.Add(s.AverageBet)
		n++
	}
	if n == 0 {
		return decimal.Zero
	}
	return sum.Div(decimal.NewFromInt(n))
}
