package model

// Player is a rated patron.  Profile data is read-only here; it is only
// needed to label seats and ledger entries.
type Player struct {
	ID          string `json:"id"`           // player.id
	FirstName   string `json:"first_name"`   // player.first_name
	LastName    string `json:"last_name"`    // player.last_name
	Email       string `json:"email"`        // player.email
	PhoneNumber string `json:"phone_number"` // player.phone_number
}

// FullName joins first and last name the way the pit displays them.
func (p Player) FullName() string {
	switch {
	case p.FirstName == "":
		return p.LastName
	case p.LastName == "":
		return p.FirstName
	}
	return p.FirstName + " " + p.LastName
}

// PlayerSearchResult is a player found by the seating search.  OpenSlipID
// is set when the player is already rated at a table.
type PlayerSearchResult struct {
	Player
	OpenSlipID *string `json:"open_slip_id"`
}
