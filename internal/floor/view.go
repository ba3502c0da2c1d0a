package floor

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/casino-floor/internal/model"
	"github.com/iliyamo/casino-floor/internal/scoring"
	"github.com/iliyamo/casino-floor/internal/seatmap"
)

// TableView is one table with its derived seat map.
type TableView struct {
	Table        model.GamingTable `json:"table"`
	Seats        seatmap.SeatMap   `json:"seats"`
	AverageBet   decimal.Decimal   `json:"average_bet"`
	OpenSessions int               `json:"open_sessions"`
}

// View is a terminal's projection of a casino floor. It may lag the store;
// Stale is set while the last refetch failed and the view shows the last
// known-good state.
type View struct {
	CasinoID string      `json:"casino_id"`
	Tables   []TableView `json:"tables"`
	Stale    bool        `json:"stale"`
	SyncedAt time.Time   `json:"synced_at"`
	Version  uint64      `json:"version"`
}

// Table returns the view of one table.
func (v View) Table(id string) (TableView, bool) {
	for _, t := range v.Tables {
		if t.Table.ID == id {
			return t, true
		}
	}
	return TableView{}, false
}

// LiveSeat is a seat with the points its session has earned so far.
type LiveSeat struct {
	Number     int               `json:"number"`
	Occupied   bool              `json:"occupied"`
	Slip       *model.RatingSlip `json:"rating_slip,omitempty"`
	LivePoints int64             `json:"live_points"`
}

// LiveTable is a TableView with live points per seat.
type LiveTable struct {
	Table        model.GamingTable `json:"table"`
	Seats        []LiveSeat        `json:"seats"`
	AverageBet   decimal.Decimal   `json:"average_bet"`
	OpenSessions int               `json:"open_sessions"`
}

// LiveView is the floor as displayed at a given instant.
type LiveView struct {
	CasinoID string      `json:"casino_id"`
	Tables   []LiveTable `json:"tables"`
	Stale    bool        `json:"stale"`
	SyncedAt time.Time   `json:"synced_at"`
	Version  uint64      `json:"version"`
	At       time.Time   `json:"at"`
}

// Live scores every open session of v at now. It only reads the view; the
// store is not consulted.
func (v View) Live(now time.Time) LiveView {
	out := LiveView{
		CasinoID: v.CasinoID,
		Tables:   make([]LiveTable, 0, len(v.Tables)),
		Stale:    v.Stale,
		SyncedAt: v.SyncedAt,
		Version:  v.Version,
		At:       now,
	}
	for _, t := range v.Tables {
		lt := LiveTable{
			Table:        t.Table,
			Seats:        make([]LiveSeat, 0, len(t.Seats)),
			AverageBet:   t.AverageBet,
			OpenSessions: t.OpenSessions,
		}
		for _, seat := range t.Seats {
			ls := LiveSeat{Number: seat.Number, Occupied: seat.Occupied(), Slip: seat.Slip}
			if seat.Slip != nil {
				ls.LivePoints = scoring.LivePoints(*seat.Slip, now)
			}
			lt.Seats = append(lt.Seats, ls)
		}
		out.Tables = append(out.Tables, lt)
	}
	return out
}
