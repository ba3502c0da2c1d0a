package model

// GameSettings is the scoring basis bound to a gaming table.  The same
// shape is stored as a JSON snapshot on every rating slip so that a later
// edit of the table's settings does not change an in-flight session.
//
// Fields:
//
//	ID                   – gamesettings.id (empty inside some snapshots).
//	Name                 – game name, e.g. "Blackjack 6 deck".
//	HouseEdge            – percentage, 5.55 means 5.55%.
//	AverageRoundsPerHour – expected rounds dealt per hour.
//	PointMultiplier      – promotional multiplier; nil means 1.0.
//	PointsConversionRate – points per unit of theoretical win; nil means 10.0.
//	SeatsAvailable       – number of seats at a table using these settings.
type GameSettings struct {
	ID                   string   `json:"id,omitempty"`
	Name                 string   `json:"name,omitempty"`
	HouseEdge            float64  `json:"house_edge"`
	AverageRoundsPerHour float64  `json:"average_rounds_per_hour"`
	PointMultiplier      *float64 `json:"point_multiplier,omitempty"`
	PointsConversionRate *float64 `json:"points_conversion_rate,omitempty"`
	SeatsAvailable       int      `json:"seats_available"`
}

// GamingTable is a table on a casino floor together with its active
// settings binding.  Settings is nil when the table has no active binding;
// such a table has no usable seats.
type GamingTable struct {
	ID          string        `json:"id"`           // gamingtable.id
	CasinoID    string        `json:"casino_id"`    // gamingtable.casino_id
	Name        string        `json:"name"`         // gamingtable.name
	TableNumber string        `json:"table_number"` // gamingtable.table_number
	Type        string        `json:"type"`         // gamingtable.type
	Settings    *GameSettings `json:"settings"`     // active gamingtablesettings -> gamesettings
}

// SeatsAvailable returns the seat count of the active settings binding.
func (t GamingTable) SeatsAvailable() int {
	if t.Settings == nil {
		return 0
	}
	return t.Settings.SeatsAvailable
}

// ValidSeat reports whether n addresses a seat of this table.
func (t GamingTable) ValidSeat(n int) bool {
	return n >= 1 && n <= t.SeatsAvailable()
}
