package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// RatingSlip is one continuous interval of tracked play for a player at
// one table seat.  A slip is open while EndTime is nil.  Closing a slip
// stamps EndTime and PointsEarned; slips are never physically deleted.
//
// Fields:
//
//	ID             – primary key identifier (UUID).
//	PlayerID       – rated player; one open slip per player.
//	VisitID        – visit this session belongs to.
//	GamingTableID  – table of the seat; one open slip per (table, seat).
//	SeatNumber     – 1-based seat index.
//	AverageBet     – average bet per round.
//	CashIn         – cash bought in at the table, if recorded.
//	ChipsBrought   – chips carried to the table, if recorded.
//	ChipsTaken     – chips carried away, if recorded.
//	StartTime      – start of play.
//	EndTime        – end of play, nil while open.
//	GameSettings   – settings snapshot captured at open or move time.
//	PointsEarned   – points awarded at close, nil while open.
//	PreviousSlipID – source slip when this slip was created by a move.
type RatingSlip struct {
	ID             string              `json:"id"`
	PlayerID       string              `json:"player_id"`
	VisitID        string              `json:"visit_id"`
	GamingTableID  string              `json:"gaming_table_id"`
	SeatNumber     int                 `json:"seat_number"`
	AverageBet     decimal.Decimal     `json:"average_bet"`
	CashIn         decimal.NullDecimal `json:"cash_in"`
	ChipsBrought   decimal.NullDecimal `json:"chips_brought"`
	ChipsTaken     decimal.NullDecimal `json:"chips_taken"`
	StartTime      time.Time           `json:"start_time"`
	EndTime        *time.Time          `json:"end_time"`
	GameSettings   GameSettings        `json:"game_settings"`
	PointsEarned   *int64              `json:"points_earned"`
	PreviousSlipID *string             `json:"previous_slip_id,omitempty"`
}

// IsOpen reports whether the slip is still being rated.
func (s RatingSlip) IsOpen() bool { return s.EndTime == nil }
