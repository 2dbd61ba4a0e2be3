package exchange

import (
	"time"

	"github.com/shopspring/decimal"
)

// Quantity is an exact decimal amount. Alias kept so call sites read as
// domain language rather than library plumbing.
type Quantity = decimal.Decimal

type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

func (s OrderSide) String() string {
	return string(s)
}

type OrderStatus string

const (
	OrderStatusNew             OrderStatus = "NEW"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusCanceled        OrderStatus = "CANCELED"
	OrderStatusRejected        OrderStatus = "REJECTED"
)

func (o OrderStatus) String() string {
	return string(o)
}

// OrderResult is the normalized fill report of a created order. Raw keeps
// the venue's response verbatim for the execution record.
type OrderResult struct {
	OrderID     string
	Symbol      string
	Side        OrderSide
	Status      OrderStatus
	ExecutedQty decimal.Decimal
	AvgPrice    decimal.Decimal
	Fee         decimal.Decimal
	FeeAsset    string
	Raw         []byte
	ExecutedAt  time.Time
}

// Ticker is a mark-price observation. At lets callers enforce freshness;
// dust consolidation refuses to act on a stale ticker.
type Ticker struct {
	Symbol string
	Price  decimal.Decimal
	At     time.Time
}

type AssetBalance struct {
	Asset  string
	Free   decimal.Decimal
	Locked decimal.Decimal
}

// SymbolInfo carries the venue trading rules the core needs: the minimum
// order notional for residue group closes and the quantity step.
type SymbolInfo struct {
	Symbol      string
	MinNotional decimal.Decimal
	StepSize    decimal.Decimal
	MinQuantity decimal.Decimal
}
