package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// PaperExchange is a deterministic in-memory Exchange for simulated vaults
// and tests. Prices are set by the caller; every market order fills
// instantly and completely at the current price.
type PaperExchange struct {
	mu       sync.RWMutex
	prices   map[string]Ticker
	balances map[string]AssetBalance
	infos    map[string]SymbolInfo
	feeRate  decimal.Decimal
	orderSeq int64
	now      func() time.Time
}

func NewPaperExchange() *PaperExchange {
	return &PaperExchange{
		prices:   make(map[string]Ticker),
		balances: make(map[string]AssetBalance),
		infos:    make(map[string]SymbolInfo),
		feeRate:  decimal.NewFromFloat(0.001),
		orderSeq: 1000000,
		now:      time.Now,
	}
}

var _ Exchange = (*PaperExchange)(nil)

// SetPrice sets the mark price for a symbol, stamped now.
func (p *PaperExchange) SetPrice(symbol string, price decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prices[symbol] = Ticker{Symbol: symbol, Price: price, At: p.now()}
}

// SetStalePrice sets a price with an old observation timestamp. Tests use
// it to exercise the freshness guard.
func (p *PaperExchange) SetStalePrice(symbol string, price decimal.Decimal, at time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prices[symbol] = Ticker{Symbol: symbol, Price: price, At: at}
}

// RemovePrice drops the price for a symbol entirely.
func (p *PaperExchange) RemovePrice(symbol string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.prices, symbol)
}

func (p *PaperExchange) SetBalance(asset string, free, locked decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.balances[asset] = AssetBalance{Asset: asset, Free: free, Locked: locked}
}

func (p *PaperExchange) SetSymbolInfo(info SymbolInfo) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.infos[info.Symbol] = info
}

func (p *PaperExchange) SetFeeRate(rate decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.feeRate = rate
}

func (p *PaperExchange) CreateOrder(ctx context.Context, symbol string, side OrderSide, quantity Quantity) (*OrderResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ticker, ok := p.prices[symbol]
	if !ok {
		return nil, fmt.Errorf("paper exchange: no price for %s", symbol)
	}

	p.orderSeq++
	executedAt := p.now()

	result := &OrderResult{
		OrderID:     fmt.Sprintf("%d", p.orderSeq),
		Symbol:      symbol,
		Side:        side,
		Status:      OrderStatusFilled,
		ExecutedQty: quantity,
		AvgPrice:    ticker.Price,
		Fee:         quantity.Mul(ticker.Price).Mul(p.feeRate),
		FeeAsset:    "USDT",
		ExecutedAt:  executedAt,
	}
	result.Raw, _ = json.Marshal(map[string]any{
		"orderId":     result.OrderID,
		"symbol":      symbol,
		"side":        side,
		"executedQty": quantity.String(),
		"avgPrice":    ticker.Price.String(),
		"simulated":   true,
	})

	return result, nil
}

func (p *PaperExchange) FetchTicker(ctx context.Context, symbol string) (*Ticker, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	ticker, ok := p.prices[symbol]
	if !ok {
		return nil, fmt.Errorf("paper exchange: no price for %s", symbol)
	}
	t := ticker
	return &t, nil
}

func (p *PaperExchange) FetchBalance(ctx context.Context) ([]AssetBalance, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	result := make([]AssetBalance, 0, len(p.balances))
	for _, bal := range p.balances {
		result = append(result, bal)
	}
	return result, nil
}

func (p *PaperExchange) FetchSymbolInfo(ctx context.Context, symbol string) (*SymbolInfo, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if info, ok := p.infos[symbol]; ok {
		i := info
		return &i, nil
	}
	// Default rules when a test has not configured the symbol.
	return &SymbolInfo{
		Symbol:      symbol,
		MinNotional: decimal.NewFromInt(5),
		StepSize:    decimal.New(1, -8),
		MinQuantity: decimal.New(1, -8),
	}, nil
}
