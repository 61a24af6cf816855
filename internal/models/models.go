package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Account is the point-in-time account snapshot shown on the home view.
// Alpaca sends amounts as JSON strings; decimal.Decimal accepts strings and numbers.
type Account struct {
	ID             string          `json:"id,omitempty"`
	Currency       string          `json:"currency,omitempty"`
	Status         string          `json:"status,omitempty"`
	PortfolioValue decimal.Decimal `json:"portfolio_value"`
	BuyingPower    decimal.Decimal `json:"buying_power"`
	Cash           decimal.Decimal `json:"cash"`
	Equity         decimal.Decimal `json:"equity"`
}

// Position represents a position held at the broker.
// Symbol is unique within a single poll.
type Position struct {
	Symbol         string          `json:"symbol"`
	Qty            decimal.Decimal `json:"qty"`
	MarketValue    decimal.Decimal `json:"market_value"`
	AvgEntryPrice  decimal.Decimal `json:"avg_entry_price"`
	CurrentPrice   decimal.Decimal `json:"current_price"`
	UnrealizedPL   decimal.Decimal `json:"unrealized_pl"`
	UnrealizedPLPC decimal.Decimal `json:"unrealized_plpc"`
}

// Side is the direction of an order.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// OrderStatus is the coarse classification of a broker order status.
type OrderStatus string

const (
	StatusNew      OrderStatus = "new"
	StatusAccepted OrderStatus = "accepted"
	StatusPending  OrderStatus = "pending"
	StatusFilled   OrderStatus = "filled"
	StatusCanceled OrderStatus = "canceled"
	StatusRejected OrderStatus = "rejected"
	StatusOther    OrderStatus = "other"
)

// ClassifyStatus maps a raw broker status (e.g. "pending_new") onto OrderStatus.
func ClassifyStatus(raw string) OrderStatus {
	s := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case s == "new":
		return StatusNew
	case s == "accepted":
		return StatusAccepted
	case strings.HasPrefix(s, "pending"):
		return StatusPending
	case s == "filled":
		return StatusFilled
	case s == "canceled" || s == "cancelled":
		return StatusCanceled
	case s == "rejected":
		return StatusRejected
	default:
		return StatusOther
	}
}

// Order represents an order as reported by the broker.
// Status is authoritative from the broker and never mutated locally.
type Order struct {
	ID             string           `json:"id"`
	ClientOrderID  string           `json:"client_order_id,omitempty"`
	Symbol         string           `json:"symbol"`
	Side           Side             `json:"side"`
	Type           string           `json:"type"` // market, limit, stop, etc.
	TimeInForce    string           `json:"time_in_force,omitempty"`
	Qty            *decimal.Decimal `json:"qty"`
	FilledQty      decimal.Decimal  `json:"filled_qty"`
	FilledAvgPrice *decimal.Decimal `json:"filled_avg_price"`
	LimitPrice     *decimal.Decimal `json:"limit_price"`
	Status         string           `json:"status"`
	CreatedAt      time.Time        `json:"created_at"`
	FilledAt       *time.Time       `json:"filled_at"`
	CanceledAt     *time.Time       `json:"canceled_at"`
}

// StatusKind classifies the raw status.
func (o Order) StatusKind() OrderStatus {
	return ClassifyStatus(o.Status)
}

// DisplayPrice returns the filled average price, falling back to the limit price.
// Nil means neither is known.
func (o Order) DisplayPrice() *decimal.Decimal {
	if o.FilledAvgPrice != nil {
		return o.FilledAvgPrice
	}
	return o.LimitPrice
}

// OrderQuery selects which orders GetOrders returns.
type OrderQuery string

const (
	OrdersOpen   OrderQuery = "open"
	OrdersClosed OrderQuery = "closed"
	OrdersAll    OrderQuery = "all"
)

// ParseOrderQuery validates a status filter. An empty string means all orders.
func ParseOrderQuery(s string) (OrderQuery, error) {
	switch OrderQuery(strings.ToLower(s)) {
	case "", OrdersAll:
		return OrdersAll, nil
	case OrdersOpen:
		return OrdersOpen, nil
	case OrdersClosed:
		return OrdersClosed, nil
	}
	return "", fmt.Errorf("invalid order status filter %q", s)
}

// MarketOrder is the body of a new market order. Only day market orders are supported.
type MarketOrder struct {
	Symbol      string          `json:"symbol"`
	Qty         decimal.Decimal `json:"qty"`
	Side        Side            `json:"side"`
	Type        string          `json:"type"`
	TimeInForce string          `json:"time_in_force"`
}

// NewMarketOrder builds a day market order.
func NewMarketOrder(symbol string, qty decimal.Decimal, side Side) MarketOrder {
	return MarketOrder{
		Symbol:      strings.ToUpper(strings.TrimSpace(symbol)),
		Qty:         qty,
		Side:        side,
		Type:        "market",
		TimeInForce: "day",
	}
}

// MarshalJSON sends qty as a JSON number, the form the web client used.
func (m MarketOrder) MarshalJSON() ([]byte, error) {
	type wire MarketOrder
	return json.Marshal(struct {
		wire
		Qty json.Number `json:"qty"`
	}{wire: wire(m), Qty: json.Number(m.Qty.String())})
}

// Validate checks the fields the broker would otherwise reject.
func (m MarketOrder) Validate() error {
	if m.Symbol == "" {
		return fmt.Errorf("symbol is required")
	}
	if !m.Qty.IsPositive() {
		return fmt.Errorf("qty must be positive, got %s", m.Qty)
	}
	if m.Side != Buy && m.Side != Sell {
		return fmt.Errorf("side must be buy or sell, got %q", m.Side)
	}
	if m.Type != "market" || m.TimeInForce != "day" {
		return fmt.Errorf("only market day orders are supported")
	}
	return nil
}
