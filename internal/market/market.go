package market

import (
	"context"

	"paper_dashboard/internal/models"
)

// Broker is the set of brokerage operations the dashboard consumes.
// Implementations return *DomainError on failure so callers can show Error() to the user.
type Broker interface {
	GetAccount(ctx context.Context) (*models.Account, error)
	GetPositions(ctx context.Context) ([]models.Position, error)
	GetOrders(ctx context.Context, status models.OrderQuery) ([]models.Order, error)
	PlaceOrder(ctx context.Context, order models.MarketOrder) (*models.Order, error)
	GetBars(ctx context.Context, symbol, timeframe string) ([]models.PriceBar, error)
	GetMarketData(ctx context.Context, symbols []string) (map[string]models.MarketTicker, error)
}

// DefaultTimeframe is used by GetBars when the caller passes "".
const DefaultTimeframe = "1D"

// DefaultOrderLimit caps the number of orders returned by GetOrders.
const DefaultOrderLimit = 50

// DefaultSymbols are the most traded stocks shown on the markets view.
var DefaultSymbols = []string{
	"AAPL", "MSFT", "AMZN", "GOOGL", "META",
	"TSLA", "NVDA", "JPM", "V", "WMT",
	"JNJ", "UNH", "BAC", "PG", "HD",
	"MA", "XOM", "DIS", "NFLX", "ADBE",
}
