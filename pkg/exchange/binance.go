package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"
)

// BinanceClient is the spot-market implementation of Exchange.
type BinanceClient struct {
	client *binance.Client

	symbolInfoMap  map[string]*cachedSymbolInfo
	symbolInfoLock sync.RWMutex
}

type cachedSymbolInfo struct {
	info        *SymbolInfo
	lastUpdated time.Time
}

const symbolInfoTTL = time.Hour

func NewBinanceClient(apiKey, secretKey, proxyURL string, testnet bool) *BinanceClient {
	var client *binance.Client
	if proxyURL != "" {
		client = binance.NewProxiedClient(apiKey, secretKey, proxyURL)
	} else {
		client = binance.NewClient(apiKey, secretKey)
	}

	if testnet {
		binance.UseTestnet = true
	}

	return &BinanceClient{
		client:        client,
		symbolInfoMap: make(map[string]*cachedSymbolInfo),
	}
}

var _ Exchange = (*BinanceClient)(nil)

// CreateOrder places a market order and normalizes the fill report.
func (b *BinanceClient) CreateOrder(ctx context.Context, symbol string, side OrderSide, quantity Quantity) (*OrderResult, error) {
	sideType := binance.SideTypeBuy
	if side == OrderSideSell {
		sideType = binance.SideTypeSell
	}

	order, err := b.client.NewCreateOrderService().
		Symbol(symbol).
		Side(sideType).
		Type(binance.OrderTypeMarket).
		Quantity(quantity.String()).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s order for %s: %w", side, symbol, err)
	}

	executedQty, err := decimal.NewFromString(order.ExecutedQuantity)
	if err != nil {
		return nil, fmt.Errorf("invalid executed quantity %q: %w", order.ExecutedQuantity, err)
	}
	quoteQty, err := decimal.NewFromString(order.CummulativeQuoteQuantity)
	if err != nil {
		return nil, fmt.Errorf("invalid quote quantity %q: %w", order.CummulativeQuoteQuantity, err)
	}

	avgPrice := decimal.Zero
	if executedQty.IsPositive() {
		avgPrice = quoteQty.Div(executedQty)
	}

	fee := decimal.Zero
	feeAsset := ""
	for _, fill := range order.Fills {
		commission, cerr := decimal.NewFromString(fill.Commission)
		if cerr != nil {
			continue
		}
		fee = fee.Add(commission)
		feeAsset = fill.CommissionAsset
	}

	raw, _ := json.Marshal(order)

	return &OrderResult{
		OrderID:     fmt.Sprintf("%d", order.OrderID),
		Symbol:      order.Symbol,
		Side:        side,
		Status:      OrderStatus(order.Status),
		ExecutedQty: executedQty,
		AvgPrice:    avgPrice,
		Fee:         fee,
		FeeAsset:    feeAsset,
		Raw:         raw,
		ExecutedAt:  time.UnixMilli(order.TransactTime),
	}, nil
}

// FetchTicker returns the current price for a symbol, stamped at fetch time.
func (b *BinanceClient) FetchTicker(ctx context.Context, symbol string) (*Ticker, error) {
	prices, err := b.client.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch ticker for %s: %w", symbol, err)
	}
	if len(prices) == 0 {
		return nil, fmt.Errorf("no ticker returned for %s", symbol)
	}

	price, err := decimal.NewFromString(prices[0].Price)
	if err != nil {
		return nil, fmt.Errorf("invalid ticker price %q: %w", prices[0].Price, err)
	}

	return &Ticker{
		Symbol: symbol,
		Price:  price,
		At:     time.Now(),
	}, nil
}

// FetchBalance returns the spot account balances.
func (b *BinanceClient) FetchBalance(ctx context.Context) ([]AssetBalance, error) {
	account, err := b.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch account: %w", err)
	}

	result := make([]AssetBalance, 0, len(account.Balances))
	for _, bal := range account.Balances {
		free, ferr := decimal.NewFromString(bal.Free)
		locked, lerr := decimal.NewFromString(bal.Locked)
		if ferr != nil || lerr != nil {
			continue
		}
		if free.IsZero() && locked.IsZero() {
			continue
		}
		result = append(result, AssetBalance{
			Asset:  bal.Asset,
			Free:   free,
			Locked: locked,
		})
	}

	return result, nil
}

// FetchSymbolInfo returns the trading rules for a symbol, cached for an hour.
func (b *BinanceClient) FetchSymbolInfo(ctx context.Context, symbol string) (*SymbolInfo, error) {
	b.symbolInfoLock.RLock()
	cached, ok := b.symbolInfoMap[symbol]
	b.symbolInfoLock.RUnlock()
	if ok && time.Since(cached.lastUpdated) < symbolInfoTTL {
		return cached.info, nil
	}

	info, err := b.client.NewExchangeInfoService().Symbols(symbol).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch exchange info for %s: %w", symbol, err)
	}

	for i := range info.Symbols {
		s := info.Symbols[i]
		if s.Symbol != symbol {
			continue
		}

		result := &SymbolInfo{Symbol: symbol}
		if lot := s.LotSizeFilter(); lot != nil {
			result.StepSize, _ = decimal.NewFromString(lot.StepSize)
			result.MinQuantity, _ = decimal.NewFromString(lot.MinQuantity)
		}
		if notional := s.NotionalFilter(); notional != nil {
			result.MinNotional, _ = decimal.NewFromString(notional.MinNotional)
		}

		b.symbolInfoLock.Lock()
		b.symbolInfoMap[symbol] = &cachedSymbolInfo{info: result, lastUpdated: time.Now()}
		b.symbolInfoLock.Unlock()

		return result, nil
	}

	return nil, fmt.Errorf("symbol %s not found in exchange info", symbol)
}
