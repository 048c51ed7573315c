package model

// PositionStatus tracks whether a strategy currently holds the base asset.
type PositionStatus string

const (
	PositionNone         PositionStatus = "NONE"
	PositionOpen         PositionStatus = "OPEN"
	PositionPendingClose PositionStatus = "PENDING_CLOSE"
)

// Position is a strategy's single held lot. A strategy holds at most one
// open position at a time; it never averages in.
type Position struct {
	OrderID    string         `json:"order_id"`
	EntryPrice float64        `json:"entry_price"`
	Quantity   float64        `json:"quantity"`
	Status     PositionStatus `json:"status"`
}

// Open reports whether there are held assets to liquidate or value.
func (p Position) Open() bool {
	return p.Status == PositionOpen || p.Status == PositionPendingClose
}
