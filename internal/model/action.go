package model

import (
	"errors"
	"fmt"
	"strings"

	"equity-backtest/internal/clock"

	"github.com/shopspring/decimal"
)

// ErrMalformedOrder is returned when an order cannot be accepted at all:
// empty symbol, non-positive quantity, unknown direction or type.
var ErrMalformedOrder = errors.New("malformed order")

// Direction is the side of an order. Keep these values stable; they are
// used in CSV output and the HTTP API.
type Direction string

const (
	Buy  Direction = "BUY"
	Sell Direction = "SELL"
)

func (d Direction) Valid() bool { return d == Buy || d == Sell }

// ParseDirection accepts "buy"/"sell" in any case.
func ParseDirection(s string) (Direction, error) {
	d := Direction(strings.ToUpper(strings.TrimSpace(s)))
	if !d.Valid() {
		return "", fmt.Errorf("%w: unknown direction %q", ErrMalformedOrder, s)
	}
	return d, nil
}

// OrderType selects how an order is matched against a quote.
type OrderType string

const (
	Market OrderType = "MARKET"
	Limit  OrderType = "LIMIT"
	Stop   OrderType = "STOP"
)

func (t OrderType) Valid() bool { return t == Market || t == Limit || t == Stop }

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	Pending   OrderStatus = "PENDING"
	Filled    OrderStatus = "FILLED"
	Rejected  OrderStatus = "REJECTED"
	Cancelled OrderStatus = "CANCELLED"
)

// OrderID is assigned by the exchange on submission. IDs are sequential per
// exchange so that identical runs produce identical ids.
type OrderID uint64

// Order is a request to trade Quantity shares of Symbol.
// Price is the trigger for Limit and Stop orders and ignored for Market.
type Order struct {
	ID          OrderID         `json:"id"`
	Symbol      string          `json:"symbol"`
	Direction   Direction       `json:"direction"`
	Type        OrderType       `json:"type"`
	Quantity    decimal.Decimal `json:"quantity"`
	Price       decimal.Decimal `json:"price,omitempty"`
	SubmittedAt clock.Tick      `json:"submitted_at"`
	Status      OrderStatus     `json:"status"`
}

// MarketBuy and MarketSell are shorthands used by strategies and tests.
func MarketBuy(symbol string, qty decimal.Decimal) Order {
	return Order{Symbol: symbol, Direction: Buy, Type: Market, Quantity: qty}
}

func MarketSell(symbol string, qty decimal.Decimal) Order {
	return Order{Symbol: symbol, Direction: Sell, Type: Market, Quantity: qty}
}

// Validate checks the order shape. An empty Type is treated as Market.
func (o Order) Validate() error {
	if strings.TrimSpace(o.Symbol) == "" {
		return fmt.Errorf("%w: symbol is required", ErrMalformedOrder)
	}
	if !o.Quantity.IsPositive() {
		return fmt.Errorf("%w: quantity must be > 0, got %s", ErrMalformedOrder, o.Quantity)
	}
	if !o.Direction.Valid() {
		return fmt.Errorf("%w: unknown direction %q", ErrMalformedOrder, o.Direction)
	}
	switch o.Type {
	case "", Market:
	case Limit, Stop:
		if !o.Price.IsPositive() {
			return fmt.Errorf("%w: %s order needs a positive price", ErrMalformedOrder, strings.ToLower(string(o.Type)))
		}
	default:
		return fmt.Errorf("%w: unknown order type %q", ErrMalformedOrder, o.Type)
	}
	return nil
}
