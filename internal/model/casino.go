package model

// Casino represents a gaming venue.  A casino owns its gaming tables and
// is the scope for visits and floor views.
//
// Fields:
//
//	ID       – primary key identifier (UUID).
//	Name     – display name of the casino.
//	Location – free-form address or city.
type Casino struct {
	ID       string `json:"id"`       // casino.id
	Name     string `json:"name"`     // casino.name
	Location string `json:"location"` // casino.location
}
