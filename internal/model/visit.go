package model

import "time"

// Visit is one continuous presence of a player at a casino, from check-in
// to check-out.  A player has at most one open visit at any time.
type Visit struct {
	ID           string     `json:"id"`             // visit.id
	PlayerID     string     `json:"player_id"`      // visit.player_id
	CasinoID     string     `json:"casino_id"`      // visit.casino_id
	CheckInDate  time.Time  `json:"check_in_date"`  // visit.check_in_date
	CheckOutDate *time.Time `json:"check_out_date"` // visit.check_out_date (null while open)

	// PlayerName is filled by listing queries that join the player row.
	PlayerName string `json:"player_name,omitempty"`
}

// IsOpen reports whether the visit has not been checked out.
func (v Visit) IsOpen() bool { return v.CheckOutDate == nil }
