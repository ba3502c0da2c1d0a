// Package queue defines message payloads exchanged over the message broker
// and the consumer that appends them to the raw point ledger.
package queue

// PointsQueueName is the durable queue carrying point awards.
const PointsQueueName = "ratingslip.points"

// Reasons a slip was closed.
const (
	ReasonClose    = "close"
	ReasonMove     = "move"
	ReasonEndVisit = "end_visit"
)

// PointsAwardedEvent is published once for every rating slip that is
// closed. It carries enough information for the ledger consumer and
// downstream loyalty systems to record the award without querying the
// primary database.
type PointsAwardedEvent struct {
	SlipID         string `json:"slip_id"`
	PlayerID       string `json:"player_id"`
	VisitID        string `json:"visit_id"`
	CasinoID       string `json:"casino_id"`
	GamingTableID  string `json:"gaming_table_id"`
	SeatNumber     int    `json:"seat_number"`
	AverageBet     string `json:"average_bet"`
	StartTime      string `json:"start_time"`
	EndTime        string `json:"end_time"`
	ElapsedMinutes int64  `json:"elapsed_minutes"`
	PointsEarned   int64  `json:"points_earned"`
	Reason         string `json:"reason"`
	AwardedAt      string `json:"awarded_at"`
}
