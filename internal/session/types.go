package session

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/casino-floor/internal/model"
	"github.com/iliyamo/casino-floor/internal/repository"
)

// OpenRequest seats a player.
type OpenRequest struct {
	PlayerID   string
	CasinoID   string
	TableID    string
	SeatNumber int
	AverageBet decimal.Decimal
}

func (r OpenRequest) validate() error {
	var problems []string
	if strings.TrimSpace(r.PlayerID) == "" {
		problems = append(problems, "player_id is required")
	}
	if strings.TrimSpace(r.CasinoID) == "" {
		problems = append(problems, "casino_id is required")
	}
	if strings.TrimSpace(r.TableID) == "" {
		problems = append(problems, "gaming_table_id is required")
	}
	if r.SeatNumber < 1 {
		problems = append(problems, "seat_number must be >= 1")
	}
	if r.AverageBet.IsNegative() {
		problems = append(problems, "average_bet must be >= 0")
	}
	if len(problems) > 0 {
		return repository.Validation(problems...)
	}
	return nil
}

// SessionDetails holds the correctable figures of an open session. Nil
// fields are left unchanged.
type SessionDetails = repository.SlipDetails

func validateDetails(d SessionDetails) error {
	if d.Empty() {
		return repository.Validation("at least one of average_bet, cash_in, chips_brought, chips_taken, start_time is required")
	}
	var problems []string
	for _, f := range []struct {
		name string
		v    *decimal.Decimal
	}{
		{"average_bet", d.AverageBet},
		{"cash_in", d.CashIn},
		{"chips_brought", d.ChipsBrought},
		{"chips_taken", d.ChipsTaken},
	} {
		if f.v != nil && f.v.IsNegative() {
			problems = append(problems, f.name+" must be >= 0")
		}
	}
	if d.StartTime != nil && d.StartTime.IsZero() {
		problems = append(problems, "start_time is invalid")
	}
	if len(problems) > 0 {
		return repository.Validation(problems...)
	}
	return nil
}

// EndVisitResult is the checked-out visit and the slips that were still
// open under it.
type EndVisitResult struct {
	Visit       model.Visit        `json:"visit"`
	ClosedSlips []model.RatingSlip `json:"closed_slips"`
}
