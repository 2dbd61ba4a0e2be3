package exchange

import "context"

// Exchange is the trade-execution collaborator seen by the ledger core: a
// normalized order/ticker/balance surface so the bookkeeping never touches
// venue-specific wire formats. Binance is the live implementation; the
// paper exchange backs simulated vaults and tests.
type Exchange interface {
	CreateOrder(ctx context.Context, symbol string, side OrderSide, quantity Quantity) (*OrderResult, error)
	FetchTicker(ctx context.Context, symbol string) (*Ticker, error)
	FetchBalance(ctx context.Context) ([]AssetBalance, error)
	FetchSymbolInfo(ctx context.Context, symbol string) (*SymbolInfo, error)
}
