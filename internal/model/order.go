package model

// OrderStatus is the normalized order lifecycle state. Exchange adapters map
// their own vocabularies onto this set.
type OrderStatus string

const (
	OrderNew             OrderStatus = "NEW"
	OrderPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderFilled          OrderStatus = "FILLED"
	OrderCanceled        OrderStatus = "CANCELED"
	OrderRejected        OrderStatus = "REJECTED"
	OrderExpired         OrderStatus = "EXPIRED"
)

// Terminal reports whether the order can no longer fill. A terminal
// non-filled order must never be polled again.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderFilled, OrderCanceled, OrderRejected, OrderExpired:
		return true
	}
	return false
}

// OrderSide is the trade direction.
type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

// Order is the normalized view of an exchange order.
type Order struct {
	ID       string      `json:"id"`
	Symbol   string      `json:"symbol"`
	Side     OrderSide   `json:"side"`
	Status   OrderStatus `json:"status"`
	Price    float64     `json:"price"` // average fill price, 0 until filled
	Quantity float64     `json:"quantity"`
	Time     int64       `json:"time"` // ms
}
